package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"bakehouse/backend/internal/domain"
	"bakehouse/backend/internal/events"
	"bakehouse/backend/internal/inventory"
	"bakehouse/backend/internal/store"
	"bakehouse/backend/internal/xid"
)

// ConfirmPayment approves or declines a queued receipt exactly once. A
// declined receipt changes nothing but its own status.
//
// On approval a run sale counts toward the run's collection, a walk-in sale
// debits the seller's stock and becomes an order on the daily ledger, and a
// debt payment is applied to the customer and, when tied to an active run, to
// that run's collection. A run whose collection reaches its revenue is
// completed.
func (s *Service) ConfirmPayment(ctx context.Context, id string, req domain.ConfirmPaymentRequest) (domain.ConfirmPaymentResponse, error) {
	if err := s.check(req); err != nil {
		return domain.ConfirmPaymentResponse{}, err
	}
	actor := actorOrSystem(ctx)

	var resp domain.ConfirmPaymentResponse
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		resp = domain.ConfirmPaymentResponse{}
		confirmation, err := store.Get[domain.PaymentConfirmation](ctx, tx, store.Confirmations, id)
		if err != nil {
			return err
		}
		if confirmation.Status != domain.ConfirmationPending {
			return fmt.Errorf("payment confirmation %s is %s: %w", id, confirmation.Status, store.ErrAlreadyProcessed)
		}
		now := s.clock()
		confirmation.DecidedBy = actor.Username
		confirmation.DecidedAt = &now

		if req.Action == domain.ActionDecline {
			confirmation.Status = domain.ConfirmationDeclined
			resp.Confirmation = confirmation
			return tx.Put(ctx, store.Confirmations, confirmation.ID, confirmation)
		}

		var post func() error
		switch confirmation.Kind {
		case domain.ConfirmationRunSale:
			post, err = s.approveRunSale(ctx, tx, confirmation, &resp, now)
		case domain.ConfirmationWalkIn:
			post, err = s.approveWalkIn(ctx, tx, confirmation, &resp, now)
		case domain.ConfirmationDebtPayment:
			post, err = s.approveDebtPayment(ctx, tx, confirmation, &resp, now)
		default:
			err = store.Validationf("unknown confirmation kind %q", confirmation.Kind)
		}
		if err != nil {
			return err
		}
		if err := post(); err != nil {
			return err
		}

		if resp.Order != nil {
			confirmation.OrderID = resp.Order.ID
		}
		confirmation.PostClosure = resp.PostClosure
		confirmation.Status = domain.ConfirmationApproved
		resp.Confirmation = confirmation
		return tx.Put(ctx, store.Confirmations, confirmation.ID, confirmation)
	})
	if err != nil {
		return domain.ConfirmPaymentResponse{}, err
	}

	c := resp.Confirmation
	if c.Status == domain.ConfirmationDeclined {
		s.logAudit(ctx, "payment_decline", "payment_confirmation", c.ID, fmt.Sprintf("kind=%s,amount=%s", c.Kind, c.Amount))
		s.publish(ctx, events.PaymentDeclined, "payment_confirmation", c.ID, nil)
		return resp, nil
	}
	s.logAudit(ctx, "payment_approve", "payment_confirmation", c.ID, fmt.Sprintf("kind=%s,amount=%s,post_closure=%t", c.Kind, c.Amount, c.PostClosure))
	s.publish(ctx, events.PaymentApproved, "payment_confirmation", c.ID, map[string]any{"kind": c.Kind, "amount": c.Amount.String()})
	if resp.RunCompleted {
		s.logAudit(ctx, "run_auto_complete", "transfer", c.SalesRunID, "collected reached revenue")
		s.publish(ctx, events.RunCompleted, "transfer", c.SalesRunID, map[string]any{"auto": true})
	}
	return resp, nil
}

// The approve helpers do all of their reads and return the writes as a
// closure, so the caller can keep every read ahead of every write.

// approveRunSale adds the cash to the run's collection. Cash approved after
// the run was completed is still recorded: it counts toward the run and
// reduces the shortage on the run's daily ledger, and the confirmation is
// marked post-closure.
func (s *Service) approveRunSale(ctx context.Context, tx store.Tx, c domain.PaymentConfirmation, resp *domain.ConfirmPaymentResponse, now time.Time) (func() error, error) {
	run, err := store.Get[domain.Transfer](ctx, tx, store.Transfers, c.SalesRunID)
	if err != nil {
		return nil, fmt.Errorf("sales run %s: %w", c.SalesRunID, err)
	}
	if !run.IsSalesRun {
		return nil, store.Validationf("transfer %s is not a sales run", run.ID)
	}
	if run.Status != domain.TransferActive && run.Status != domain.TransferCompleted {
		return nil, fmt.Errorf("sales run %s is %s: %w", run.ID, run.Status, store.ErrNotActive)
	}
	var order *domain.Order
	if c.OrderID != "" {
		o, found, err := store.Find[domain.Order](ctx, tx, store.Orders, c.OrderID)
		if err != nil {
			return nil, err
		}
		if found {
			order = &o
		}
	}
	resp.Order = order

	if run.Status == domain.TransferActive {
		resp.RunCompleted = collect(&run, c.Amount, now)
		return func() error {
			return tx.Put(ctx, store.Transfers, run.ID, run)
		}, nil
	}

	day := dateKey(run.Date)
	daily, _, err := store.Find[domain.DailySales](ctx, tx, store.DailySales, day)
	if err != nil {
		return nil, err
	}
	run.TotalCollected = run.TotalCollected.Add(c.Amount)
	daily.Date = day
	daily.Shortage = daily.Shortage.Sub(c.Amount)
	daily.UpdatedAt = now
	resp.PostClosure = true
	return func() error {
		if err := tx.Put(ctx, store.Transfers, run.ID, run); err != nil {
			return err
		}
		return tx.Put(ctx, store.DailySales, day, daily)
	}, nil
}

func (s *Service) approveWalkIn(ctx context.Context, tx store.Tx, c domain.PaymentConfirmation, resp *domain.ConfirmPaymentResponse, now time.Time) (func() error, error) {
	if len(c.Items) == 0 {
		return nil, store.Validationf("walk-in confirmation %s has no items", c.ID)
	}
	var customer domain.Customer
	if c.CustomerID != "" {
		var err error
		if customer, err = store.Get[domain.Customer](ctx, tx, store.Customers, c.CustomerID); err != nil {
			return nil, fmt.Errorf("customer %s: %w", c.CustomerID, err)
		}
	}
	day := dateKey(now)
	daily, _, err := store.Find[domain.DailySales](ctx, tx, store.DailySales, day)
	if err != nil {
		return nil, err
	}
	lines := make([]inventory.Line, 0, len(c.Items))
	for _, item := range c.Items {
		lines = append(lines, inventory.Line{Key: domain.PersonalProduct(c.StaffID, item.ProductID), Name: item.ProductName, Quantity: item.Quantity})
	}
	book, err := inventory.Load(ctx, tx, lineKeys(lines)...)
	if err != nil {
		return nil, err
	}

	if err := book.DebitAll(lines); err != nil {
		return nil, err
	}
	order := domain.Order{
		ID:            xid.New("ord"),
		CustomerID:    customer.ID,
		CustomerName:  customer.Name,
		StaffID:       c.StaffID,
		Items:         c.Items,
		Total:         c.Amount,
		PaymentMethod: c.PaymentMethod,
		Status:        domain.OrderCompleted,
		CreatedAt:     now,
	}
	daily.Date = day
	postToDaily(&daily, c.PaymentMethod, c.Amount)
	daily.UpdatedAt = now

	resp.Order = &order
	return func() error {
		if err := book.Flush(ctx, tx, now); err != nil {
			return err
		}
		if err := tx.Put(ctx, store.Orders, order.ID, order); err != nil {
			return err
		}
		return tx.Put(ctx, store.DailySales, day, daily)
	}, nil
}

func (s *Service) approveDebtPayment(ctx context.Context, tx store.Tx, c domain.PaymentConfirmation, resp *domain.ConfirmPaymentResponse, now time.Time) (func() error, error) {
	customer, err := store.Get[domain.Customer](ctx, tx, store.Customers, c.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("customer %s: %w", c.CustomerID, err)
	}
	var run *domain.Transfer
	if c.SalesRunID != "" {
		r, found, err := store.Find[domain.Transfer](ctx, tx, store.Transfers, c.SalesRunID)
		if err != nil {
			return nil, err
		}
		if found && r.IsSalesRun && r.Status == domain.TransferActive {
			run = &r
		}
	}

	// Another payment approved since this one was queued may have settled part of the debt.
	if c.Amount.GreaterThan(customer.Balance()) {
		return nil, store.Validationf("payment %s of %s exceeds outstanding balance %s", c.ID, c.Amount, customer.Balance())
	}

	customer.AmountPaid = customer.AmountPaid.Add(c.Amount)
	if run != nil {
		resp.RunCompleted = collect(run, c.Amount, now)
	}
	return func() error {
		if err := tx.Put(ctx, store.Customers, customer.ID, customer); err != nil {
			return err
		}
		if run != nil {
			return tx.Put(ctx, store.Transfers, run.ID, *run)
		}
		return nil
	}, nil
}

// collect adds amount to a run's collection and completes the run once the
// collection covers its revenue. It reports whether the run was completed.
func collect(run *domain.Transfer, amount decimal.Decimal, now time.Time) bool {
	run.TotalCollected = run.TotalCollected.Add(amount)
	if run.TotalCollected.GreaterThanOrEqual(run.TotalRevenue) {
		run.Status = domain.TransferCompleted
		run.TimeCompleted = &now
		return true
	}
	return false
}

func postToDaily(daily *domain.DailySales, method string, amount decimal.Decimal) {
	switch method {
	case domain.PaymentCash:
		daily.Cash = daily.Cash.Add(amount)
	case domain.PaymentPOS:
		daily.POS = daily.POS.Add(amount)
	case domain.PaymentPaystack:
		daily.Transfer = daily.Transfer.Add(amount)
	case domain.PaymentCredit:
		daily.CreditSales = daily.CreditSales.Add(amount)
	}
	daily.Total = daily.Total.Add(amount)
}

func (s *Service) GetConfirmation(ctx context.Context, id string) (domain.PaymentConfirmation, error) {
	return store.Get[domain.PaymentConfirmation](ctx, s.store, store.Confirmations, id)
}

func (s *Service) ListConfirmations(ctx context.Context, status string, kind string) ([]domain.PaymentConfirmation, error) {
	var where []store.Where
	if status != "" {
		where = append(where, store.Where{Field: "status", Value: status})
	}
	if kind != "" {
		where = append(where, store.Where{Field: "kind", Value: kind})
	}
	out, err := store.List[domain.PaymentConfirmation](ctx, s.store, store.Confirmations, where...)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// GetDailySales returns the ledger for date (YYYY-MM-DD). A day with no
// postings reads as zeroes.
func (s *Service) GetDailySales(ctx context.Context, date string) (domain.DailySales, error) {
	if date == "" {
		date = dateKey(s.clock())
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return domain.DailySales{}, store.Validationf("date must be YYYY-MM-DD")
	}
	daily, _, err := store.Find[domain.DailySales](ctx, s.store, store.DailySales, date)
	if err != nil {
		return domain.DailySales{}, err
	}
	daily.Date = date
	return daily, nil
}
