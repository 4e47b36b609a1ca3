package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"bakehouse/backend/internal/domain"
	"bakehouse/backend/internal/events"
	"bakehouse/backend/internal/inventory"
	"bakehouse/backend/internal/store"
	"bakehouse/backend/internal/xid"
)

// TransferFilter narrows ListTransfers. Owner matches either side of a transfer.
type TransferFilter struct {
	Owner     string
	Status    string
	SalesRuns bool
}

// CreateTransfer records a pending movement of products between two owners.
// No stock moves until the recipient accepts it.
func (s *Service) CreateTransfer(ctx context.Context, req domain.TransferCreateRequest) (domain.Transfer, error) {
	if err := s.check(req); err != nil {
		return domain.Transfer{}, err
	}
	items, err := normalizeTransferItems(req.Items)
	if err != nil {
		return domain.Transfer{}, err
	}
	from := strings.TrimSpace(req.FromOwner)
	if from == "" {
		from = domain.WarehouseOwner
	}
	to := strings.TrimSpace(req.ToOwner)
	if from == to {
		return domain.Transfer{}, store.Validationf("from_owner and to_owner must differ")
	}
	// Only ReturnRunStock and CompleteBatch stage returns; accepting one is credit-only.
	if req.IsReturn {
		return domain.Transfer{}, store.Validationf("returns are raised from a sales run or a completed batch")
	}
	recipient, err := s.directory.Lookup(ctx, to)
	if err != nil {
		return domain.Transfer{}, fmt.Errorf("recipient %s: %w", to, err)
	}

	actor := actorOrSystem(ctx)
	transfer := domain.Transfer{
		ID:             xid.New("trf"),
		FromOwner:      from,
		ToOwner:        to,
		RecipientName:  recipient.Name,
		Status:         domain.TransferPending,
		IsSalesRun:     req.IsSalesRun,
		Notes:          strings.TrimSpace(req.Notes),
		Date:           s.clock(),
		TotalRevenue:   decimal.Zero,
		TotalCollected: decimal.Zero,
		CreatedBy:      actor.Username,
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		transfer.Items = make([]domain.TransferItem, 0, len(items))
		transfer.TotalRevenue = decimal.Zero
		for _, item := range items {
			product, err := store.Get[domain.Product](ctx, tx, store.Products, item.ProductID)
			if err != nil {
				return fmt.Errorf("product %s: %w", item.ProductID, err)
			}
			item.ProductName = product.Name
			transfer.Items = append(transfer.Items, item)
			if transfer.IsSalesRun {
				transfer.TotalRevenue = transfer.TotalRevenue.Add(item.Quantity.Mul(product.Price))
			}
		}
		return tx.Put(ctx, store.Transfers, transfer.ID, transfer)
	})
	if err != nil {
		return domain.Transfer{}, err
	}

	s.logAudit(ctx, "transfer_create", "transfer", transfer.ID,
		fmt.Sprintf("from=%s,to=%s,items=%d,sales_run=%t", transfer.FromOwner, transfer.ToOwner, len(transfer.Items), transfer.IsSalesRun))
	s.publish(ctx, events.TransferCreated, "transfer", transfer.ID, map[string]any{"to_owner": transfer.ToOwner})
	return transfer, nil
}

// AcknowledgeTransfer accepts or declines a pending transfer. Acceptance of a
// dispatch debits the sender and credits the recipient for every item, or
// fails without touching any row. Acceptance of a return only credits the
// warehouse since the sender was debited when the return was raised.
func (s *Service) AcknowledgeTransfer(ctx context.Context, id string, req domain.TransferAcknowledgeRequest) (domain.Transfer, error) {
	if err := s.check(req); err != nil {
		return domain.Transfer{}, err
	}

	var out domain.Transfer
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		transfer, err := store.Get[domain.Transfer](ctx, tx, store.Transfers, id)
		if err != nil {
			return err
		}
		if transfer.Status != domain.TransferPending {
			return fmt.Errorf("transfer %s is %s: %w", id, transfer.Status, store.ErrAlreadyProcessed)
		}
		now := s.clock()

		if req.Action == domain.ActionDecline {
			transfer.Status = domain.TransferCancelled
			transfer.TimeCompleted = &now
			out = transfer
			return tx.Put(ctx, store.Transfers, transfer.ID, transfer)
		}

		var debits, credits []inventory.Line
		for _, item := range transfer.Items {
			if transfer.IsReturn {
				credits = append(credits, inventory.Line{Key: domain.WarehouseProduct(item.ProductID), Name: item.ProductName, Quantity: item.Quantity})
				continue
			}
			debits = append(debits, inventory.Line{Key: domain.PersonalProduct(transfer.FromOwner, item.ProductID), Name: item.ProductName, Quantity: item.Quantity})
			credits = append(credits, inventory.Line{Key: domain.PersonalProduct(transfer.ToOwner, item.ProductID), Name: item.ProductName, Quantity: item.Quantity})
		}
		book, err := inventory.Load(ctx, tx, lineKeys(debits, credits)...)
		if err != nil {
			return err
		}

		if err := book.DebitAll(debits); err != nil {
			return err
		}
		for _, line := range credits {
			if err := book.Credit(line); err != nil {
				return err
			}
		}
		if err := book.Flush(ctx, tx, now); err != nil {
			return err
		}

		transfer.TimeReceived = &now
		if transfer.IsSalesRun {
			transfer.Status = domain.TransferActive
		} else {
			transfer.Status = domain.TransferCompleted
			transfer.TimeCompleted = &now
		}
		out = transfer
		return tx.Put(ctx, store.Transfers, transfer.ID, transfer)
	})
	if err != nil {
		return domain.Transfer{}, err
	}

	if out.Status == domain.TransferCancelled {
		s.logAudit(ctx, "transfer_decline", "transfer", out.ID, "")
		s.publish(ctx, events.TransferDeclined, "transfer", out.ID, nil)
		return out, nil
	}
	s.logAudit(ctx, "transfer_accept", "transfer", out.ID, fmt.Sprintf("status=%s,return=%t", out.Status, out.IsReturn))
	s.publish(ctx, events.TransferAccepted, "transfer", out.ID, map[string]any{"status": out.Status})
	if out.FromOwner == domain.WarehouseOwner && !out.IsReturn {
		s.flagLowStock(ctx, transferProductIDs(out))
	}
	return out, nil
}

// CancelTransfer withdraws a transfer that has not been acknowledged yet.
func (s *Service) CancelTransfer(ctx context.Context, id string) (domain.Transfer, error) {
	var out domain.Transfer
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		transfer, err := store.Get[domain.Transfer](ctx, tx, store.Transfers, id)
		if err != nil {
			return err
		}
		if transfer.Status != domain.TransferPending {
			return fmt.Errorf("transfer %s is %s: %w", id, transfer.Status, store.ErrNotPending)
		}
		now := s.clock()
		transfer.Status = domain.TransferCancelled
		transfer.TimeCompleted = &now
		out = transfer
		return tx.Put(ctx, store.Transfers, transfer.ID, transfer)
	})
	if err != nil {
		return domain.Transfer{}, err
	}
	s.logAudit(ctx, "transfer_cancel", "transfer", out.ID, "")
	s.publish(ctx, events.TransferCancelled, "transfer", out.ID, nil)
	return out, nil
}

func (s *Service) GetTransfer(ctx context.Context, id string) (domain.Transfer, error) {
	return store.Get[domain.Transfer](ctx, s.store, store.Transfers, id)
}

func (s *Service) ListTransfers(ctx context.Context, filter TransferFilter) ([]domain.Transfer, error) {
	var where []store.Where
	if filter.Status != "" {
		where = append(where, store.Where{Field: "status", Value: filter.Status})
	}
	if filter.SalesRuns {
		where = append(where, store.Where{Field: "is_sales_run", Value: "true"})
	}
	transfers, err := store.List[domain.Transfer](ctx, s.store, store.Transfers, where...)
	if err != nil {
		return nil, err
	}
	if filter.Owner != "" {
		kept := transfers[:0]
		for _, t := range transfers {
			if t.FromOwner == filter.Owner || t.ToOwner == filter.Owner {
				kept = append(kept, t)
			}
		}
		transfers = kept
	}
	sort.Slice(transfers, func(i, j int) bool {
		return transfers[i].Date.After(transfers[j].Date)
	})
	return transfers, nil
}

func lineKeys(groups ...[]inventory.Line) []domain.StockKey {
	var keys []domain.StockKey
	for _, lines := range groups {
		for _, line := range lines {
			keys = append(keys, line.Key)
		}
	}
	return keys
}

func transferProductIDs(t domain.Transfer) []string {
	ids := make([]string, 0, len(t.Items))
	for _, item := range t.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
