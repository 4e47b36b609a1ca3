package service

import (
	"errors"
	"testing"

	"bakehouse/backend/internal/domain"
	"bakehouse/backend/internal/events"
	"bakehouse/backend/internal/store"
)

func TestReceiveSupplyOnAccountRaisesSupplierBalance(t *testing.T) {
	f := newTestService(t)

	receipt, err := f.svc.ReceiveSupply(asStore, "ing-flour", domain.SupplyReceiveRequest{
		SupplierID: "sup-mill",
		Quantity:   dec("50"),
		UnitCost:   dec("900"),
		OnAccount:  true,
	})
	if err != nil {
		t.Fatalf("receive supply: %v", err)
	}
	assertDec(t, "receipt total", receipt.Total, "45000")
	assertDec(t, "flour", f.stock(t, domain.WarehouseIngredient("ing-flour")), "300")

	suppliers, err := f.svc.ListSuppliers(asAdmin)
	if err != nil || len(suppliers) != 1 {
		t.Fatalf("expected one supplier, got %d err=%v", len(suppliers), err)
	}
	assertDec(t, "supplier owed", suppliers[0].AmountOwed, "45000")
	if f.events.count(events.IngredientsReceived) != 1 {
		t.Fatalf("expected an ingredients received event")
	}

	_, err = f.svc.ReceiveSupply(asStore, "ing-flour", domain.SupplyReceiveRequest{Quantity: dec("1"), OnAccount: true})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation without supplier, got %v", err)
	}
	if _, err := f.svc.ReceiveSupply(asStore, "ing-missing", domain.SupplyReceiveRequest{Quantity: dec("1")}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown ingredient, got %v", err)
	}
}

func TestReportWasteDebitsStockAndFlagsLowLevels(t *testing.T) {
	f := newTestService(t)

	entry, err := f.svc.ReportWaste(asStore, domain.WasteReportRequest{ProductID: "prd-meat-pie", Quantity: dec("125"), Reason: "mould"})
	if err != nil {
		t.Fatalf("report waste: %v", err)
	}
	if entry.Owner != domain.WarehouseOwner || entry.ProductName != "Meat Pie" {
		t.Fatalf("unexpected waste entry %+v", entry)
	}
	assertDec(t, "warehouse", f.stock(t, domain.WarehouseProduct("prd-meat-pie")), "25")
	if f.events.count(events.StockLow) != 1 {
		t.Fatalf("expected a low stock event")
	}

	_, err = f.svc.ReportWaste(asStore, domain.WasteReportRequest{ProductID: "prd-meat-pie", Quantity: dec("26")})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	logs, err := f.svc.ListWasteLogs(asAdmin, "")
	if err != nil || len(logs) != 1 {
		t.Fatalf("expected one waste log, got %d err=%v", len(logs), err)
	}
}

func TestProductPricingIsValidated(t *testing.T) {
	f := newTestService(t)

	lo, hi := dec("1200"), dec("900")
	_, err := f.svc.CreateProduct(asAdmin, domain.ProductCreateRequest{Name: "Bad Bounds", Category: "bread", Price: dec("1000"), MinPrice: &lo})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for min above price, got %v", err)
	}
	_, err = f.svc.CreateProduct(asAdmin, domain.ProductCreateRequest{Name: "Bad Bounds", Category: "bread", Price: dec("1000"), MaxPrice: &hi})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for max below price, got %v", err)
	}

	price := dec("850")
	updated, err := f.svc.UpdateProduct(asAdmin, "prd-white-loaf", domain.ProductUpdateRequest{Price: &price})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	assertDec(t, "price", updated.Price, "850")
	assertDec(t, "stock carried through", updated.Stock, "200")

	tooHigh := dec("950")
	if _, err := f.svc.UpdateProduct(asAdmin, "prd-white-loaf", domain.ProductUpdateRequest{Price: &tooHigh}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation above max price, got %v", err)
	}

	logs, err := f.svc.ListAuditLogs(asAdmin, "product", 0)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	changes := 0
	for _, entry := range logs {
		if entry.Action == "product_price_change" {
			changes++
		}
	}
	if changes != 1 {
		t.Fatalf("expected one price change audit row, got %d", changes)
	}
}

func TestManualStockAdjustments(t *testing.T) {
	f := newTestService(t)

	level, err := f.svc.CreditStock(asStore, domain.StockAdjustRequest{
		Owner: "baker", Kind: domain.ItemProduct, ItemID: "prd-chin-chin", Quantity: dec("5"),
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	assertDec(t, "baker after credit", level.Quantity, "5")

	_, err = f.svc.DebitStock(asStore, domain.StockAdjustRequest{
		Owner: "baker", Kind: domain.ItemProduct, ItemID: "prd-chin-chin", Quantity: dec("6"),
	})
	var short *store.InsufficientStockError
	if !errors.As(err, &short) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	assertDec(t, "missing", short.Missing(), "1")

	held, err := f.svc.ListStock(asAdmin, "baker")
	if err != nil || len(held) != 1 {
		t.Fatalf("expected one row for baker, got %d err=%v", len(held), err)
	}

	if _, err := f.svc.CreditStock(asStore, domain.StockAdjustRequest{
		Owner: "baker", Kind: "gadget", ItemID: "prd-chin-chin", Quantity: dec("1"),
	}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown kind, got %v", err)
	}
}

func TestListProductsReportsWarehouseStock(t *testing.T) {
	f := newTestService(t)
	products, err := f.svc.ListProducts(asAdmin)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(products) != 4 {
		t.Fatalf("expected 4 seeded products, got %d", len(products))
	}
	for _, p := range products {
		if p.ID == "prd-white-loaf" {
			assertDec(t, "white loaf stock", p.Stock, "200")
		}
	}
}

func TestCreateUserRejectsReservedAndDuplicateNames(t *testing.T) {
	f := newTestService(t)
	if err := f.svc.CreateUser(asAdmin, domain.UserAccount{Username: domain.WarehouseOwner, Role: domain.RoleDriver}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for reserved name, got %v", err)
	}
	if err := f.svc.CreateUser(asAdmin, domain.UserAccount{Username: "driver", Role: domain.RoleDriver}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for duplicate, got %v", err)
	}
	if err := f.svc.CreateUser(asAdmin, domain.UserAccount{Username: "driver2", DisplayName: "Second Van", Role: domain.RoleDriver, Active: true}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	staff, err := f.svc.ListStaff(asAdmin)
	if err != nil || len(staff) != 6 {
		t.Fatalf("expected 6 staff members, got %d err=%v", len(staff), err)
	}
}
