package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"bakehouse/backend/internal/domain"
	"bakehouse/backend/internal/events"
	"bakehouse/backend/internal/gateway"
	"bakehouse/backend/internal/inventory"
	"bakehouse/backend/internal/store"
	"bakehouse/backend/internal/xid"
)

// SellToCustomer records a sale from an active sales run. Every line is
// debited from the run holder's personal stock or the sale fails as a whole.
// Credit sales raise the customer's debt, POS and Paystack receipts count
// toward the run's collection at once, and cash waits in the approval queue.
func (s *Service) SellToCustomer(ctx context.Context, runID string, req domain.SaleRequest) (domain.SaleResponse, error) {
	req.PaymentReference = strings.TrimSpace(req.PaymentReference)
	if err := s.check(req); err != nil {
		return domain.SaleResponse{}, err
	}
	if err := validateCart(req.Items); err != nil {
		return domain.SaleResponse{}, err
	}
	if req.PaymentMethod == domain.PaymentCredit && req.CustomerID == "" {
		return domain.SaleResponse{}, store.Validationf("credit sales require a customer")
	}

	// The gateway is consulted before the transaction so a retried commit
	// never repeats the remote call.
	var verified gateway.Verification
	if req.PaymentMethod == domain.PaymentPaystack {
		if req.PaymentReference == "" {
			return domain.SaleResponse{}, store.Validationf("payment_reference is required for Paystack sales")
		}
		v, err := s.gateway.Verify(ctx, req.PaymentReference)
		if err != nil {
			if errors.Is(err, gateway.ErrNotVerified) {
				return domain.SaleResponse{}, store.Validationf("payment %s could not be verified", req.PaymentReference)
			}
			return domain.SaleResponse{}, fmt.Errorf("verify payment %s: %w", req.PaymentReference, err)
		}
		if !v.Success {
			return domain.SaleResponse{}, store.Validationf("payment %s was not successful", req.PaymentReference)
		}
		verified = v
	}

	var (
		resp  domain.SaleResponse
		queue *domain.PaymentConfirmation
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		queue = nil
		run, err := s.activeRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		seller := run.ToOwner

		products, err := readProducts(ctx, tx, cartProductIDs(req.Items))
		if err != nil {
			return err
		}
		var customer domain.Customer
		if req.CustomerID != "" {
			if customer, err = store.Get[domain.Customer](ctx, tx, store.Customers, req.CustomerID); err != nil {
				return fmt.Errorf("customer %s: %w", req.CustomerID, err)
			}
		}
		if req.PaymentMethod == domain.PaymentPaystack {
			used, err := store.List[domain.Order](ctx, tx, store.Orders, store.Where{Field: "payment_reference", Value: req.PaymentReference})
			if err != nil {
				return err
			}
			if len(used) > 0 {
				return fmt.Errorf("payment %s already recorded on order %s: %w", req.PaymentReference, used[0].ID, store.ErrAlreadyProcessed)
			}
		}
		lines, orderItems, total, err := priceCart(req.Items, products, seller)
		if err != nil {
			return err
		}
		book, err := inventory.Load(ctx, tx, lineKeys(lines)...)
		if err != nil {
			return err
		}

		if err := book.DebitAll(lines); err != nil {
			return err
		}
		now := s.clock()
		order := domain.Order{
			ID:               xid.New("ord"),
			SalesRunID:       run.ID,
			CustomerID:       customer.ID,
			CustomerName:     customer.Name,
			StaffID:          seller,
			Items:            orderItems,
			Total:            total,
			PaymentMethod:    req.PaymentMethod,
			PaymentReference: req.PaymentReference,
			Status:           domain.OrderCompleted,
			CreatedAt:        now,
		}

		switch req.PaymentMethod {
		case domain.PaymentCredit:
			customer.AmountOwed = customer.AmountOwed.Add(total)
		case domain.PaymentPOS:
			run.TotalCollected = run.TotalCollected.Add(total)
		case domain.PaymentPaystack:
			if verified.AmountPaid.LessThan(total) {
				return store.Validationf("payment %s covers %s of %s", req.PaymentReference, verified.AmountPaid, total)
			}
			run.TotalCollected = run.TotalCollected.Add(verified.AmountPaid)
		case domain.PaymentCash:
			queue = &domain.PaymentConfirmation{
				ID:            xid.New("pay"),
				Kind:          domain.ConfirmationRunSale,
				Status:        domain.ConfirmationPending,
				Amount:        total,
				PaymentMethod: domain.PaymentCash,
				SalesRunID:    run.ID,
				OrderID:       order.ID,
				CustomerID:    customer.ID,
				StaffID:       seller,
				CreatedAt:     now,
			}
		}

		if err := book.Flush(ctx, tx, now); err != nil {
			return err
		}
		if err := tx.Put(ctx, store.Orders, order.ID, order); err != nil {
			return err
		}
		if req.PaymentMethod == domain.PaymentCredit {
			if err := tx.Put(ctx, store.Customers, customer.ID, customer); err != nil {
				return err
			}
		}
		if req.PaymentMethod == domain.PaymentPOS || req.PaymentMethod == domain.PaymentPaystack {
			if err := tx.Put(ctx, store.Transfers, run.ID, run); err != nil {
				return err
			}
		}
		if queue != nil {
			if err := tx.Put(ctx, store.Confirmations, queue.ID, *queue); err != nil {
				return err
			}
		}
		resp = domain.SaleResponse{Order: order, Confirmation: queue, TotalCollected: run.TotalCollected}
		return nil
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}

	s.logAudit(ctx, "sale_record", "order", resp.Order.ID, fmt.Sprintf("run=%s,method=%s,total=%s", runID, resp.Order.PaymentMethod, resp.Order.Total))
	s.publish(ctx, events.SaleRecorded, "order", resp.Order.ID, map[string]any{
		"sales_run_id":   runID,
		"payment_method": resp.Order.PaymentMethod,
		"total":          resp.Order.Total.String(),
	})
	if resp.Confirmation != nil {
		s.publish(ctx, events.PaymentQueued, "payment_confirmation", resp.Confirmation.ID, map[string]any{"amount": resp.Confirmation.Amount.String()})
	}
	return resp, nil
}

// SubmitCounterSale queues a walk-in sale made from the seller's personal
// stock. Stock and the daily ledger move only when the sale is approved.
func (s *Service) SubmitCounterSale(ctx context.Context, req domain.CounterSaleRequest) (domain.PaymentConfirmation, error) {
	if err := s.check(req); err != nil {
		return domain.PaymentConfirmation{}, err
	}
	if err := validateCart(req.Items); err != nil {
		return domain.PaymentConfirmation{}, err
	}
	seller := actorOrSystem(ctx).Username

	products, err := readProducts(ctx, s.store, cartProductIDs(req.Items))
	if err != nil {
		return domain.PaymentConfirmation{}, err
	}
	if req.CustomerID != "" {
		if _, err := store.Get[domain.Customer](ctx, s.store, store.Customers, req.CustomerID); err != nil {
			return domain.PaymentConfirmation{}, fmt.Errorf("customer %s: %w", req.CustomerID, err)
		}
	}
	_, items, total, err := priceCart(req.Items, products, seller)
	if err != nil {
		return domain.PaymentConfirmation{}, err
	}

	confirmation := domain.PaymentConfirmation{
		ID:            xid.New("pay"),
		Kind:          domain.ConfirmationWalkIn,
		Status:        domain.ConfirmationPending,
		Amount:        total,
		PaymentMethod: req.PaymentMethod,
		CustomerID:    req.CustomerID,
		StaffID:       seller,
		Items:         items,
		CreatedAt:     s.clock(),
	}
	if err := s.store.Put(ctx, store.Confirmations, confirmation.ID, confirmation); err != nil {
		return domain.PaymentConfirmation{}, err
	}
	s.publish(ctx, events.PaymentQueued, "payment_confirmation", confirmation.ID, map[string]any{"amount": total.String(), "kind": confirmation.Kind})
	return confirmation, nil
}

// RecordDebtPayment queues a repayment against a customer's credit balance.
func (s *Service) RecordDebtPayment(ctx context.Context, customerID string, req domain.DebtPaymentRequest) (domain.PaymentConfirmation, error) {
	if err := s.check(req); err != nil {
		return domain.PaymentConfirmation{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.PaymentConfirmation{}, store.Validationf("amount must be positive")
	}
	customer, err := store.Get[domain.Customer](ctx, s.store, store.Customers, customerID)
	if err != nil {
		return domain.PaymentConfirmation{}, err
	}
	if req.Amount.GreaterThan(customer.Balance()) {
		return domain.PaymentConfirmation{}, store.Validationf("amount %s exceeds outstanding balance %s", req.Amount, customer.Balance())
	}
	if req.SalesRunID != "" {
		if _, err := s.activeRun(ctx, s.store, req.SalesRunID); err != nil {
			return domain.PaymentConfirmation{}, err
		}
	}

	confirmation := domain.PaymentConfirmation{
		ID:            xid.New("pay"),
		Kind:          domain.ConfirmationDebtPayment,
		Status:        domain.ConfirmationPending,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		SalesRunID:    req.SalesRunID,
		CustomerID:    customer.ID,
		StaffID:       actorOrSystem(ctx).Username,
		CreatedAt:     s.clock(),
	}
	if err := s.store.Put(ctx, store.Confirmations, confirmation.ID, confirmation); err != nil {
		return domain.PaymentConfirmation{}, err
	}
	s.publish(ctx, events.PaymentQueued, "payment_confirmation", confirmation.ID, map[string]any{"amount": req.Amount.String(), "kind": confirmation.Kind})
	return confirmation, nil
}

func (s *Service) ListOrders(ctx context.Context, runID string) ([]domain.Order, error) {
	if runID != "" {
		return store.List[domain.Order](ctx, s.store, store.Orders, store.Where{Field: "sales_run_id", Value: runID})
	}
	return store.List[domain.Order](ctx, s.store, store.Orders)
}

// activeRun reads a transfer and requires it to be an active sales run.
func (s *Service) activeRun(ctx context.Context, r store.Reader, runID string) (domain.Transfer, error) {
	run, err := store.Get[domain.Transfer](ctx, r, store.Transfers, runID)
	if err != nil {
		return domain.Transfer{}, fmt.Errorf("sales run %s: %w", runID, err)
	}
	if !run.IsSalesRun {
		return domain.Transfer{}, store.Validationf("transfer %s is not a sales run", runID)
	}
	if run.Status != domain.TransferActive {
		return domain.Transfer{}, fmt.Errorf("sales run %s is %s: %w", runID, run.Status, store.ErrNotActive)
	}
	return run, nil
}

func validateCart(items []domain.CartItem) error {
	for _, item := range items {
		if !item.Quantity.IsPositive() {
			return store.Validationf("quantity for %s must be positive", item.ProductID)
		}
	}
	return nil
}

func cartProductIDs(items []domain.CartItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

func readProducts(ctx context.Context, r store.Reader, ids []string) (map[string]domain.Product, error) {
	products := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if _, seen := products[id]; seen {
			continue
		}
		product, err := store.Get[domain.Product](ctx, r, store.Products, id)
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", id, err)
		}
		products[id] = product
	}
	return products, nil
}

// priceCart resolves unit prices and builds the debit lines against owner's
// personal stock. A discretionary price must lie within the product's bounds.
func priceCart(items []domain.CartItem, products map[string]domain.Product, owner string) ([]inventory.Line, []domain.OrderItem, decimal.Decimal, error) {
	lines := make([]inventory.Line, 0, len(items))
	orderItems := make([]domain.OrderItem, 0, len(items))
	total := decimal.Zero
	for _, item := range items {
		product := products[item.ProductID]
		price := product.Price
		if item.UnitPrice != nil {
			lo, hi := product.Price, product.Price
			if product.MinPrice != nil {
				lo = *product.MinPrice
			}
			if product.MaxPrice != nil {
				hi = *product.MaxPrice
			}
			if item.UnitPrice.LessThan(lo) || item.UnitPrice.GreaterThan(hi) {
				return nil, nil, decimal.Zero, store.Validationf("price %s for %s is outside %s..%s", item.UnitPrice, product.Name, lo, hi)
			}
			price = *item.UnitPrice
		}
		lineTotal := price.Mul(item.Quantity)
		total = total.Add(lineTotal)
		lines = append(lines, inventory.Line{Key: domain.PersonalProduct(owner, product.ID), Name: product.Name, Quantity: item.Quantity})
		orderItems = append(orderItems, domain.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   price,
			LineTotal:   lineTotal,
		})
	}
	return lines, orderItems, total, nil
}
