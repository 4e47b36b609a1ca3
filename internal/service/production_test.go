package service

import (
	"errors"
	"sync"
	"testing"

	"bakehouse/backend/internal/domain"
	"bakehouse/backend/internal/store"
)

func TestApproveBatchDebitsPlannedIngredients(t *testing.T) {
	f := newTestService(t)

	batch, err := f.svc.StartBatch(asBaker, domain.BatchStartRequest{RecipeID: "rcp-white-loaf", Quantity: dec("100")})
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}
	if batch.Status != domain.BatchPendingApproval || len(batch.Planned) != 4 {
		t.Fatalf("unexpected new batch %+v", batch)
	}
	assertDec(t, "flour untouched before approval", f.stock(t, domain.WarehouseIngredient("ing-flour")), "250")

	approved, err := f.svc.ApproveBatch(asStore, batch.ID, domain.BatchApproveRequest{})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.BatchInProduction || approved.ApprovedBy != "store" || approved.ApprovedAt == nil {
		t.Fatalf("unexpected approved batch %+v", approved)
	}

	assertDec(t, "flour", f.stock(t, domain.WarehouseIngredient("ing-flour")), "200")
	assertDec(t, "sugar", f.stock(t, domain.WarehouseIngredient("ing-sugar")), "56")
	assertDec(t, "yeast", f.stock(t, domain.WarehouseIngredient("ing-yeast")), "6.5")
	assertDec(t, "butter", f.stock(t, domain.WarehouseIngredient("ing-butter")), "23")

	for _, ing := range approved.Ingredients {
		if ing.IngredientID != "ing-flour" {
			continue
		}
		assertDec(t, "flour opening", ing.OpeningStock, "250")
		assertDec(t, "flour closing", ing.ClosingStock, "200")
	}

	logs, err := f.svc.ListAuditLogs(asAdmin, "batch", 0)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	found := false
	for _, entry := range logs {
		if entry.Action == "batch_approve" && entry.EntityID == batch.ID && entry.ActorUsername == "store" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a batch_approve audit row, got %+v", logs)
	}
}

func TestApproveBatchWithShortIngredientChangesNothing(t *testing.T) {
	f := newTestService(t)
	malt, err := f.svc.CreateIngredient(asStore, domain.IngredientCreateRequest{Name: "Malt", Unit: "kg", InitialStock: dec("3")})
	if err != nil {
		t.Fatalf("create ingredient: %v", err)
	}
	recipe, err := f.svc.CreateRecipe(asAdmin, domain.RecipeCreateRequest{
		Name:          "Malt Loaf x10",
		ProductID:     "prd-wheat-loaf",
		YieldQuantity: dec("10"),
		Ingredients: []domain.RecipeIngredient{
			{IngredientID: "ing-flour", Quantity: dec("4")},
			{IngredientID: malt.ID, Quantity: dec("5")},
		},
	})
	if err != nil {
		t.Fatalf("create recipe: %v", err)
	}
	batch, err := f.svc.StartBatch(asBaker, domain.BatchStartRequest{RecipeID: recipe.ID, Quantity: dec("10")})
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}

	_, err = f.svc.ApproveBatch(asStore, batch.ID, domain.BatchApproveRequest{})
	var short *store.InsufficientStockError
	if !errors.As(err, &short) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if short.ItemID != malt.ID {
		t.Fatalf("expected shortage on malt, got %s", short.ItemID)
	}
	assertDec(t, "missing", short.Missing(), "2")
	assertDec(t, "malt", f.stock(t, domain.WarehouseIngredient(malt.ID)), "3")
	assertDec(t, "flour", f.stock(t, domain.WarehouseIngredient("ing-flour")), "250")

	after, err := f.svc.GetBatch(asAdmin, batch.ID)
	if err != nil || after.Status != domain.BatchPendingApproval {
		t.Fatalf("expected batch to stay pending, got %+v err=%v", after, err)
	}
}

func TestConcurrentApproveDebitsOnce(t *testing.T) {
	f := newTestService(t)
	batch, err := f.svc.StartBatch(asBaker, domain.BatchStartRequest{RecipeID: "rcp-white-loaf", Quantity: dec("50")})
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}

	const workers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ApproveBatch(asStore, batch.ID, domain.BatchApproveRequest{})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if !errors.Is(err, store.ErrNotPending) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one approval, got %d", successes)
	}
	assertDec(t, "flour", f.stock(t, domain.WarehouseIngredient("ing-flour")), "225")
}

func TestApproveBatchAcceptsAdjustedQuantities(t *testing.T) {
	f := newTestService(t)
	batch, err := f.svc.StartBatch(asBaker, domain.BatchStartRequest{RecipeID: "rcp-white-loaf", Quantity: dec("50")})
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}
	approved, err := f.svc.ApproveBatch(asStore, batch.ID, domain.BatchApproveRequest{
		Ingredients: []domain.RecipeIngredient{{IngredientID: "ing-flour", Quantity: dec("20")}},
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if len(approved.Ingredients) != 1 {
		t.Fatalf("expected only the adjusted ingredient, got %+v", approved.Ingredients)
	}
	assertDec(t, "flour", f.stock(t, domain.WarehouseIngredient("ing-flour")), "230")
	assertDec(t, "sugar", f.stock(t, domain.WarehouseIngredient("ing-sugar")), "60")
}

func TestCompleteBatchStagesReturnForStorekeeper(t *testing.T) {
	f := newTestService(t)
	batch, err := f.svc.StartBatch(asBaker, domain.BatchStartRequest{RecipeID: "rcp-white-loaf", Quantity: dec("50")})
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}
	if _, err := f.svc.ApproveBatch(asStore, batch.ID, domain.BatchApproveRequest{}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	completed, err := f.svc.CompleteBatch(asBaker, batch.ID, domain.BatchCompleteRequest{
		Produced: []domain.TransferItem{{ProductID: "prd-white-loaf", Quantity: dec("48")}},
		Wasted:   []domain.TransferItem{{ProductID: "prd-white-loaf", Quantity: dec("2")}},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	assertDec(t, "produced", completed.SuccessfullyProduced, "48")
	assertDec(t, "wasted", completed.Wasted, "2")
	if completed.ReturnTransferID == "" {
		t.Fatalf("expected a staged return transfer")
	}
	assertDec(t, "warehouse before receipt", f.stock(t, domain.WarehouseProduct("prd-white-loaf")), "200")

	staged, err := f.svc.GetTransfer(asAdmin, completed.ReturnTransferID)
	if err != nil {
		t.Fatalf("get staged transfer: %v", err)
	}
	if !staged.IsReturn || staged.FromOwner != "baker" || staged.ToOwner != "store" || staged.SourceID != batch.ID {
		t.Fatalf("unexpected staged transfer %+v", staged)
	}

	waste, err := f.svc.ListWasteLogs(asAdmin, batch.ID)
	if err != nil || len(waste) != 1 {
		t.Fatalf("expected one waste log, got %d err=%v", len(waste), err)
	}

	if _, err := f.svc.AcknowledgeTransfer(asStore, staged.ID, domain.TransferAcknowledgeRequest{Action: domain.ActionAccept}); err != nil {
		t.Fatalf("receive production: %v", err)
	}
	assertDec(t, "warehouse after receipt", f.stock(t, domain.WarehouseProduct("prd-white-loaf")), "248")

	_, err = f.svc.CompleteBatch(asBaker, batch.ID, domain.BatchCompleteRequest{})
	if !errors.Is(err, store.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed on second completion, got %v", err)
	}
}

func TestCompleteBatchRequiresProduction(t *testing.T) {
	f := newTestService(t)
	batch, err := f.svc.StartBatch(asBaker, domain.BatchStartRequest{RecipeID: "rcp-white-loaf", Quantity: dec("50")})
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}
	_, err = f.svc.CompleteBatch(asBaker, batch.ID, domain.BatchCompleteRequest{})
	if !errors.Is(err, store.ErrNotPending) {
		t.Fatalf("expected ErrNotPending for an unapproved batch, got %v", err)
	}
}

func TestDeclineAndCancelCloseOnlyPendingBatches(t *testing.T) {
	f := newTestService(t)
	declined, err := f.svc.StartBatch(asBaker, domain.BatchStartRequest{RecipeID: "rcp-white-loaf", Quantity: dec("50")})
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}
	out, err := f.svc.DeclineBatch(asStore, declined.ID)
	if err != nil || out.Status != domain.BatchDeclined {
		t.Fatalf("decline: %+v err=%v", out, err)
	}
	if _, err := f.svc.ApproveBatch(asStore, declined.ID, domain.BatchApproveRequest{}); !errors.Is(err, store.ErrNotPending) {
		t.Fatalf("expected ErrNotPending approving a declined batch, got %v", err)
	}
	assertDec(t, "flour", f.stock(t, domain.WarehouseIngredient("ing-flour")), "250")

	cancelled, err := f.svc.StartBatch(asBaker, domain.BatchStartRequest{RecipeID: "rcp-white-loaf", Quantity: dec("50")})
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}
	if _, err := f.svc.CancelBatch(asDriver, cancelled.ID); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation when someone else cancels, got %v", err)
	}
	out, err = f.svc.CancelBatch(asBaker, cancelled.ID)
	if err != nil || out.Status != domain.BatchCancelled {
		t.Fatalf("cancel: %+v err=%v", out, err)
	}
}

func TestStartBatchScalesRecipe(t *testing.T) {
	f := newTestService(t)
	batch, err := f.svc.StartBatch(asBaker, domain.BatchStartRequest{RecipeID: "rcp-white-loaf", Quantity: dec("75")})
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}
	want := map[string]string{"ing-flour": "37.5", "ing-sugar": "3", "ing-yeast": "0.75", "ing-butter": "1.5"}
	for _, p := range batch.Planned {
		assertDec(t, p.IngredientID, p.Quantity, want[p.IngredientID])
	}
	if batch.RequesterName != "Head Baker" {
		t.Fatalf("expected requester name from directory, got %q", batch.RequesterName)
	}

	if _, err := f.svc.StartBatch(asBaker, domain.BatchStartRequest{RecipeID: "rcp-white-loaf"}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for zero quantity, got %v", err)
	}
}
