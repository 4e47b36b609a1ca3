package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"bakehouse/backend/internal/domain"
	"bakehouse/backend/internal/events"
	"bakehouse/backend/internal/inventory"
	"bakehouse/backend/internal/store"
	"bakehouse/backend/internal/xid"
)

// StartBatch requests a production batch. The ingredient plan is the recipe
// scaled to the requested quantity; nothing is debited until approval.
func (s *Service) StartBatch(ctx context.Context, req domain.BatchStartRequest) (domain.ProductionBatch, error) {
	if err := s.check(req); err != nil {
		return domain.ProductionBatch{}, err
	}
	if !req.Quantity.IsPositive() {
		return domain.ProductionBatch{}, store.Validationf("quantity must be positive")
	}

	recipe, err := store.Get[domain.Recipe](ctx, s.store, store.Recipes, req.RecipeID)
	if err != nil {
		return domain.ProductionBatch{}, fmt.Errorf("recipe %s: %w", req.RecipeID, err)
	}
	product, err := store.Get[domain.Product](ctx, s.store, store.Products, recipe.ProductID)
	if err != nil {
		return domain.ProductionBatch{}, fmt.Errorf("product %s: %w", recipe.ProductID, err)
	}

	scale := req.Quantity.Div(recipe.YieldQuantity)
	planned := make([]domain.BatchIngredient, 0, len(recipe.Ingredients))
	for _, ri := range recipe.Ingredients {
		ingredient, err := store.Get[domain.Ingredient](ctx, s.store, store.Ingredients, ri.IngredientID)
		if err != nil {
			return domain.ProductionBatch{}, fmt.Errorf("ingredient %s: %w", ri.IngredientID, err)
		}
		planned = append(planned, domain.BatchIngredient{
			IngredientID: ri.IngredientID,
			Name:         ingredient.Name,
			Quantity:     ri.Quantity.Mul(scale).Round(3),
		})
	}

	actor := actorOrSystem(ctx)
	batch := domain.ProductionBatch{
		ID:            xid.New("bat"),
		RecipeID:      recipe.ID,
		RecipeName:    recipe.Name,
		ProductID:     product.ID,
		ProductName:   product.Name,
		Quantity:      req.Quantity,
		Status:        domain.BatchPendingApproval,
		Planned:       planned,
		RequestedBy:   actor.Username,
		RequesterName: s.directory.Name(ctx, actor.Username),
		CreatedAt:     s.clock(),
	}
	if err := s.store.Put(ctx, store.Batches, batch.ID, batch); err != nil {
		return domain.ProductionBatch{}, err
	}

	s.publish(ctx, events.BatchRequested, "batch", batch.ID, map[string]any{"recipe_id": batch.RecipeID, "quantity": batch.Quantity.String()})
	return batch, nil
}

// ApproveBatch debits every ingredient from the warehouse and moves the batch
// into production. If any ingredient is short nothing is debited and the
// batch stays pending. An empty ingredient list approves the planned amounts.
func (s *Service) ApproveBatch(ctx context.Context, id string, req domain.BatchApproveRequest) (domain.ProductionBatch, error) {
	if err := s.check(req); err != nil {
		return domain.ProductionBatch{}, err
	}

	var out domain.ProductionBatch
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		batch, err := store.Get[domain.ProductionBatch](ctx, tx, store.Batches, id)
		if err != nil {
			return err
		}
		if batch.Status != domain.BatchPendingApproval {
			return fmt.Errorf("batch %s is %s: %w", id, batch.Status, store.ErrNotPending)
		}

		requested := req.Ingredients
		if len(requested) == 0 {
			for _, p := range batch.Planned {
				requested = append(requested, domain.RecipeIngredient{IngredientID: p.IngredientID, Quantity: p.Quantity})
			}
		}
		if len(requested) == 0 {
			return store.Validationf("batch %s has no ingredients to approve", id)
		}

		lines := make([]inventory.Line, 0, len(requested))
		for _, ri := range requested {
			ingredient, err := store.Get[domain.Ingredient](ctx, tx, store.Ingredients, ri.IngredientID)
			if err != nil {
				return fmt.Errorf("ingredient %s: %w", ri.IngredientID, err)
			}
			lines = append(lines, inventory.Line{Key: domain.WarehouseIngredient(ri.IngredientID), Name: ingredient.Name, Quantity: ri.Quantity})
		}
		book, err := inventory.Load(ctx, tx, lineKeys(lines)...)
		if err != nil {
			return err
		}

		if err := book.DebitAll(lines); err != nil {
			return err
		}
		now := s.clock()
		batch.Ingredients = make([]domain.BatchIngredient, 0, len(lines))
		for _, line := range lines {
			batch.Ingredients = append(batch.Ingredients, domain.BatchIngredient{
				IngredientID: line.Key.ItemID,
				Name:         line.Name,
				Quantity:     line.Quantity,
				OpeningStock: book.Opening(line.Key),
				ClosingStock: book.Available(line.Key),
			})
		}
		if err := book.Flush(ctx, tx, now); err != nil {
			return err
		}
		batch.Status = domain.BatchInProduction
		batch.ApprovedBy = actorOrSystem(ctx).Username
		batch.ApprovedAt = &now
		out = batch
		return tx.Put(ctx, store.Batches, batch.ID, batch)
	})
	if err != nil {
		return domain.ProductionBatch{}, err
	}

	parts := make([]string, 0, len(out.Ingredients))
	for _, ing := range out.Ingredients {
		parts = append(parts, fmt.Sprintf("%s:%s->%s", ing.IngredientID, ing.OpeningStock, ing.ClosingStock))
	}
	sort.Strings(parts)
	s.logAudit(ctx, "batch_approve", "batch", out.ID, fmt.Sprintf("ingredients=%v", parts))
	s.publish(ctx, events.BatchApproved, "batch", out.ID, nil)
	return out, nil
}

func (s *Service) DeclineBatch(ctx context.Context, id string) (domain.ProductionBatch, error) {
	out, err := s.closePendingBatch(ctx, id, domain.BatchDeclined, false)
	if err != nil {
		return domain.ProductionBatch{}, err
	}
	s.logAudit(ctx, "batch_decline", "batch", out.ID, "")
	s.publish(ctx, events.BatchDeclined, "batch", out.ID, nil)
	return out, nil
}

// CancelBatch lets the requester withdraw a batch that has not been approved.
func (s *Service) CancelBatch(ctx context.Context, id string) (domain.ProductionBatch, error) {
	out, err := s.closePendingBatch(ctx, id, domain.BatchCancelled, true)
	if err != nil {
		return domain.ProductionBatch{}, err
	}
	s.logAudit(ctx, "batch_cancel", "batch", out.ID, "")
	s.publish(ctx, events.BatchCancelled, "batch", out.ID, nil)
	return out, nil
}

func (s *Service) closePendingBatch(ctx context.Context, id string, status string, requesterOnly bool) (domain.ProductionBatch, error) {
	actor := actorOrSystem(ctx)
	var out domain.ProductionBatch
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		batch, err := store.Get[domain.ProductionBatch](ctx, tx, store.Batches, id)
		if err != nil {
			return err
		}
		if batch.Status != domain.BatchPendingApproval {
			return fmt.Errorf("batch %s is %s: %w", id, batch.Status, store.ErrNotPending)
		}
		if requesterOnly && actor.Role != domain.RoleAdmin && actor.Username != batch.RequestedBy {
			return store.Validationf("only %s can cancel batch %s", batch.RequestedBy, id)
		}
		batch.Status = status
		out = batch
		return tx.Put(ctx, store.Batches, batch.ID, batch)
	})
	return out, err
}

// CompleteBatch closes a batch in production. Finished goods are staged as a
// pending return transfer from the producer to the storekeeper; warehouse
// stock only changes when that transfer is accepted. Wasted lines are logged.
func (s *Service) CompleteBatch(ctx context.Context, id string, req domain.BatchCompleteRequest) (domain.ProductionBatch, error) {
	if err := s.check(req); err != nil {
		return domain.ProductionBatch{}, err
	}
	var produced, wasted []domain.TransferItem
	var err error
	if len(req.Produced) > 0 {
		if produced, err = normalizeTransferItems(req.Produced); err != nil {
			return domain.ProductionBatch{}, err
		}
	}
	if len(req.Wasted) > 0 {
		if wasted, err = normalizeTransferItems(req.Wasted); err != nil {
			return domain.ProductionBatch{}, err
		}
	}
	keeper := req.StorekeeperID
	if keeper == "" {
		keeper = s.keeper
	}
	recipient, err := s.directory.Lookup(ctx, keeper)
	if err != nil {
		return domain.ProductionBatch{}, fmt.Errorf("storekeeper %s: %w", keeper, err)
	}

	actor := actorOrSystem(ctx)
	var (
		out    domain.ProductionBatch
		staged *domain.Transfer
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		staged = nil
		batch, err := store.Get[domain.ProductionBatch](ctx, tx, store.Batches, id)
		if err != nil {
			return err
		}
		switch batch.Status {
		case domain.BatchInProduction:
		case domain.BatchCompleted:
			return fmt.Errorf("batch %s is %s: %w", id, batch.Status, store.ErrAlreadyProcessed)
		default:
			return fmt.Errorf("batch %s is %s: %w", id, batch.Status, store.ErrNotPending)
		}

		names := make(map[string]string)
		for _, item := range append(append([]domain.TransferItem{}, produced...), wasted...) {
			if _, seen := names[item.ProductID]; seen {
				continue
			}
			product, err := store.Get[domain.Product](ctx, tx, store.Products, item.ProductID)
			if err != nil {
				return fmt.Errorf("product %s: %w", item.ProductID, err)
			}
			names[item.ProductID] = product.Name
		}

		now := s.clock()
		producer := batch.RequestedBy
		batch.SuccessfullyProduced = sumItems(produced)
		batch.Wasted = sumItems(wasted)
		batch.Status = domain.BatchCompleted
		batch.CompletedAt = &now

		if len(produced) > 0 {
			items := make([]domain.TransferItem, 0, len(produced))
			for _, item := range produced {
				item.ProductName = names[item.ProductID]
				items = append(items, item)
			}
			transfer := domain.Transfer{
				ID:             xid.New("trf"),
				FromOwner:      producer,
				ToOwner:        keeper,
				RecipientName:  recipient.Name,
				Items:          items,
				Status:         domain.TransferPending,
				IsReturn:       true,
				Notes:          fmt.Sprintf("production return for batch %s", batch.ID),
				SourceID:       batch.ID,
				Date:           now,
				TotalRevenue:   decimal.Zero,
				TotalCollected: decimal.Zero,
				CreatedBy:      actor.Username,
			}
			batch.ReturnTransferID = transfer.ID
			staged = &transfer
			if err := tx.Put(ctx, store.Transfers, transfer.ID, transfer); err != nil {
				return err
			}
		}
		for _, item := range wasted {
			entry := domain.WasteLog{
				ID:          xid.New("wst"),
				BatchID:     batch.ID,
				Owner:       producer,
				ProductID:   item.ProductID,
				ProductName: names[item.ProductID],
				Quantity:    item.Quantity,
				Reason:      "production waste",
				ReportedBy:  actor.Username,
				CreatedAt:   now,
			}
			if err := tx.Put(ctx, store.WasteLogs, entry.ID, entry); err != nil {
				return err
			}
		}
		out = batch
		return tx.Put(ctx, store.Batches, batch.ID, batch)
	})
	if err != nil {
		return domain.ProductionBatch{}, err
	}

	s.logAudit(ctx, "batch_complete", "batch", out.ID, fmt.Sprintf("produced=%s,wasted=%s", out.SuccessfullyProduced, out.Wasted))
	s.publish(ctx, events.BatchCompleted, "batch", out.ID, map[string]any{"return_transfer_id": out.ReturnTransferID})
	if staged != nil {
		s.publish(ctx, events.TransferCreated, "transfer", staged.ID, map[string]any{"to_owner": staged.ToOwner})
	}
	return out, nil
}

func (s *Service) GetBatch(ctx context.Context, id string) (domain.ProductionBatch, error) {
	return store.Get[domain.ProductionBatch](ctx, s.store, store.Batches, id)
}

func (s *Service) ListBatches(ctx context.Context, status string) ([]domain.ProductionBatch, error) {
	var where []store.Where
	if status != "" {
		where = append(where, store.Where{Field: "status", Value: status})
	}
	batches, err := store.List[domain.ProductionBatch](ctx, s.store, store.Batches, where...)
	if err != nil {
		return nil, err
	}
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].CreatedAt.After(batches[j].CreatedAt)
	})
	return batches, nil
}

func sumItems(items []domain.TransferItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Quantity)
	}
	return total
}
