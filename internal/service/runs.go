package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"bakehouse/backend/internal/domain"
	"bakehouse/backend/internal/events"
	"bakehouse/backend/internal/inventory"
	"bakehouse/backend/internal/store"
	"bakehouse/backend/internal/xid"
)

// CompleteRun closes an active sales run and reconciles its cash.
//
//	expected_cash = total_revenue - credit_sales
//	shortage      = expected_cash - total_collected
//
// A positive shortage is cash missing, a negative one is overage. When its
// magnitude exceeds the configured epsilon the signed value is added to the
// daily ledger of the run's start date. The holder must have returned every
// unsold unit of the run's products first.
func (s *Service) CompleteRun(ctx context.Context, runID string) (domain.ShortageReport, error) {
	var report domain.ShortageReport
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		run, err := s.activeRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		orders, err := store.List[domain.Order](ctx, tx, store.Orders, store.Where{Field: "sales_run_id", Value: run.ID})
		if err != nil {
			return err
		}
		keys := make([]domain.StockKey, 0, len(run.Items))
		for _, item := range run.Items {
			keys = append(keys, domain.PersonalProduct(run.ToOwner, item.ProductID))
		}
		held, err := inventory.Load(ctx, tx, keys...)
		if err != nil {
			return err
		}
		day := dateKey(run.Date)
		daily, _, err := store.Find[domain.DailySales](ctx, tx, store.DailySales, day)
		if err != nil {
			return err
		}

		var remaining []string
		for _, item := range run.Items {
			key := domain.PersonalProduct(run.ToOwner, item.ProductID)
			if qty := held.Available(key); qty.IsPositive() {
				remaining = append(remaining, fmt.Sprintf("%s x%s", item.ProductName, qty))
			}
		}
		if len(remaining) > 0 {
			return fmt.Errorf("sales run %s still holds %s: %w", run.ID, strings.Join(remaining, ", "), store.ErrStockRemaining)
		}

		report = reconcile(run, orders)
		report.Date = day
		now := s.clock()
		run.Status = domain.TransferCompleted
		run.TimeCompleted = &now
		if report.Shortage.Abs().GreaterThan(s.epsilon) {
			daily.Date = day
			daily.Shortage = daily.Shortage.Add(report.Shortage)
			daily.UpdatedAt = now
			report.Posted = true
			if err := tx.Put(ctx, store.DailySales, day, daily); err != nil {
				return err
			}
		}
		return tx.Put(ctx, store.Transfers, run.ID, run)
	})
	if err != nil {
		return domain.ShortageReport{}, err
	}

	s.logAudit(ctx, "run_complete", "transfer", runID,
		fmt.Sprintf("expected=%s,collected=%s,shortage=%s,posted=%t", report.ExpectedCash, report.TotalCollected, report.Shortage, report.Posted))
	s.publish(ctx, events.RunCompleted, "transfer", runID, map[string]any{"shortage": report.Shortage.String()})
	return report, nil
}

func reconcile(run domain.Transfer, orders []domain.Order) domain.ShortageReport {
	credit := decimal.Zero
	for _, o := range orders {
		if o.PaymentMethod == domain.PaymentCredit {
			credit = credit.Add(o.Total)
		}
	}
	expected := run.TotalRevenue.Sub(credit)
	return domain.ShortageReport{
		RunID:          run.ID,
		TotalRevenue:   run.TotalRevenue,
		CreditSales:    credit,
		ExpectedCash:   expected,
		TotalCollected: run.TotalCollected,
		Shortage:       expected.Sub(run.TotalCollected),
	}
}

// ReturnRunStock sends unsold units of an active run back to the warehouse.
// The units leave the holder's stock now, the run's revenue drops by their
// catalog value, and a pending return transfer waits for the storekeeper.
func (s *Service) ReturnRunStock(ctx context.Context, runID string, req domain.RunReturnRequest) (domain.Transfer, error) {
	if err := s.check(req); err != nil {
		return domain.Transfer{}, err
	}
	items, err := normalizeTransferItems(req.Items)
	if err != nil {
		return domain.Transfer{}, err
	}

	actor := actorOrSystem(ctx)
	warehouse := s.directory.Name(ctx, domain.WarehouseOwner)
	var out domain.Transfer
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		run, err := s.activeRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		onRun := make(map[string]bool, len(run.Items))
		for _, item := range run.Items {
			onRun[item.ProductID] = true
		}
		ids := make([]string, 0, len(items))
		for _, item := range items {
			if !onRun[item.ProductID] {
				return store.Validationf("product %s was not dispatched on run %s", item.ProductID, run.ID)
			}
			ids = append(ids, item.ProductID)
		}
		products, err := readProducts(ctx, tx, ids)
		if err != nil {
			return err
		}
		lines := make([]inventory.Line, 0, len(items))
		for _, item := range items {
			lines = append(lines, inventory.Line{Key: domain.PersonalProduct(run.ToOwner, item.ProductID), Name: products[item.ProductID].Name, Quantity: item.Quantity})
		}
		book, err := inventory.Load(ctx, tx, lineKeys(lines)...)
		if err != nil {
			return err
		}

		if err := book.DebitAll(lines); err != nil {
			return err
		}
		now := s.clock()
		returned := make([]domain.TransferItem, 0, len(items))
		value := decimal.Zero
		for _, item := range items {
			product := products[item.ProductID]
			item.ProductName = product.Name
			returned = append(returned, item)
			value = value.Add(item.Quantity.Mul(product.Price))
		}
		run.TotalRevenue = run.TotalRevenue.Sub(value)
		if run.TotalRevenue.IsNegative() {
			run.TotalRevenue = decimal.Zero
		}

		notes := strings.TrimSpace(req.Notes)
		if notes == "" {
			notes = fmt.Sprintf("unsold stock from run %s", run.ID)
		}
		out = domain.Transfer{
			ID:             xid.New("trf"),
			FromOwner:      run.ToOwner,
			ToOwner:        domain.WarehouseOwner,
			RecipientName:  warehouse,
			Items:          returned,
			Status:         domain.TransferPending,
			IsReturn:       true,
			Notes:          notes,
			SourceID:       run.ID,
			Date:           now,
			TotalRevenue:   decimal.Zero,
			TotalCollected: decimal.Zero,
			CreatedBy:      actor.Username,
		}
		if err := book.Flush(ctx, tx, now); err != nil {
			return err
		}
		if err := tx.Put(ctx, store.Transfers, run.ID, run); err != nil {
			return err
		}
		return tx.Put(ctx, store.Transfers, out.ID, out)
	})
	if err != nil {
		return domain.Transfer{}, err
	}

	s.logAudit(ctx, "run_return_stock", "transfer", runID, fmt.Sprintf("return=%s,items=%d", out.ID, len(out.Items)))
	s.publish(ctx, events.RunStockReturned, "transfer", runID, map[string]any{"return_transfer_id": out.ID})
	return out, nil
}
