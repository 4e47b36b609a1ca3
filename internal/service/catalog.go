package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bakehouse/backend/internal/domain"
	"bakehouse/backend/internal/events"
	"bakehouse/backend/internal/inventory"
	"bakehouse/backend/internal/store"
	"bakehouse/backend/internal/xid"
)

// warehouseLevels returns warehouse stock for one item kind keyed by item id.
func (s *Service) warehouseLevels(ctx context.Context, kind string) (map[string]decimal.Decimal, error) {
	levels, err := store.List[domain.StockLevel](ctx, s.store, store.Stock,
		store.Where{Field: "owner", Value: domain.WarehouseOwner},
		store.Where{Field: "kind", Value: kind},
	)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(levels))
	for _, l := range levels {
		out[l.ItemID] = l.Quantity
	}
	return out, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := store.List[domain.Product](ctx, s.store, store.Products)
	if err != nil {
		return nil, err
	}
	stock, err := s.warehouseLevels(ctx, domain.ItemProduct)
	if err != nil {
		return nil, err
	}
	for i := range products {
		products[i].Stock = stock[products[i].ID]
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Category != products[j].Category {
			return products[i].Category < products[j].Category
		}
		return products[i].Name < products[j].Name
	})
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := store.Get[domain.Product](ctx, s.store, store.Products, id)
	if err != nil {
		return domain.Product{}, err
	}
	level, _, err := store.Find[domain.StockLevel](ctx, s.store, store.Stock, domain.WarehouseProduct(id).ID())
	if err != nil {
		return domain.Product{}, err
	}
	product.Stock = level.Quantity
	return product, nil
}

func validatePricing(p domain.Product) error {
	if p.Price.IsNegative() || p.CostPrice.IsNegative() || p.LowStockThreshold.IsNegative() {
		return store.Validationf("prices and threshold must not be negative")
	}
	if p.MinPrice != nil && p.MinPrice.GreaterThan(p.Price) {
		return store.Validationf("min_price must not exceed price")
	}
	if p.MaxPrice != nil && p.MaxPrice.LessThan(p.Price) {
		return store.Validationf("max_price must not be below price")
	}
	return nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}
	if req.InitialStock.IsNegative() {
		return domain.Product{}, store.Validationf("initial_stock must not be negative")
	}

	now := s.clock()
	product := domain.Product{
		ID:                xid.New("prd"),
		Name:              req.Name,
		Category:          req.Category,
		Unit:              strings.TrimSpace(req.Unit),
		CostPrice:         req.CostPrice,
		Price:             req.Price,
		MinPrice:          req.MinPrice,
		MaxPrice:          req.MaxPrice,
		LowStockThreshold: req.LowStockThreshold,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := validatePricing(product); err != nil {
		return domain.Product{}, err
	}
	if err := s.store.Put(ctx, store.Products, product.ID, product); err != nil {
		return domain.Product{}, err
	}

	if req.InitialStock.IsPositive() {
		level, err := inventory.CreditStock(ctx, s.store, inventory.Line{
			Key:      domain.WarehouseProduct(product.ID),
			Name:     product.Name,
			Quantity: req.InitialStock,
		}, now)
		if err != nil {
			return domain.Product{}, err
		}
		product.Stock = level.Quantity
	}

	s.logAudit(ctx, "product_create", "product", product.ID, fmt.Sprintf("name=%s,price=%s,stock=%s", product.Name, product.Price, req.InitialStock))
	return product, nil
}

// UpdateProduct edits descriptive and pricing fields. These are not part of
// any stock transaction, so the write is a plain document put.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := store.Get[domain.Product](ctx, s.store, store.Products, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.Validationf("name must not be empty")
		}
		updated.Name = name
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Unit != nil {
		updated.Unit = strings.TrimSpace(*req.Unit)
	}
	if req.CostPrice != nil {
		updated.CostPrice = *req.CostPrice
	}
	if req.Price != nil {
		updated.Price = *req.Price
	}
	if req.MinPrice != nil {
		updated.MinPrice = req.MinPrice
	}
	if req.MaxPrice != nil {
		updated.MaxPrice = req.MaxPrice
	}
	if req.LowStockThreshold != nil {
		updated.LowStockThreshold = *req.LowStockThreshold
	}
	if err := validatePricing(updated); err != nil {
		return domain.Product{}, err
	}
	updated.UpdatedAt = s.clock()

	if err := s.store.Put(ctx, store.Products, updated.ID, updated); err != nil {
		return domain.Product{}, err
	}
	if !existing.Price.Equal(updated.Price) {
		s.logAudit(ctx, "product_price_change", "product", updated.ID, fmt.Sprintf("old=%s,new=%s", existing.Price, updated.Price))
	}
	return s.GetProduct(ctx, updated.ID)
}

func (s *Service) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	ingredients, err := store.List[domain.Ingredient](ctx, s.store, store.Ingredients)
	if err != nil {
		return nil, err
	}
	stock, err := s.warehouseLevels(ctx, domain.ItemIngredient)
	if err != nil {
		return nil, err
	}
	for i := range ingredients {
		ingredients[i].Stock = stock[ingredients[i].ID]
	}
	sort.Slice(ingredients, func(i, j int) bool {
		return ingredients[i].Name < ingredients[j].Name
	})
	return ingredients, nil
}

func (s *Service) CreateIngredient(ctx context.Context, req domain.IngredientCreateRequest) (domain.Ingredient, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Unit = strings.TrimSpace(req.Unit)
	if err := s.check(req); err != nil {
		return domain.Ingredient{}, err
	}
	if req.CostPerUnit.IsNegative() || req.InitialStock.IsNegative() {
		return domain.Ingredient{}, store.Validationf("cost and initial stock must not be negative")
	}

	now := s.clock()
	ingredient := domain.Ingredient{
		ID:          xid.New("ing"),
		Name:        req.Name,
		Unit:        req.Unit,
		CostPerUnit: req.CostPerUnit,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Put(ctx, store.Ingredients, ingredient.ID, ingredient); err != nil {
		return domain.Ingredient{}, err
	}
	if req.InitialStock.IsPositive() {
		level, err := inventory.CreditStock(ctx, s.store, inventory.Line{
			Key:      domain.WarehouseIngredient(ingredient.ID),
			Name:     ingredient.Name,
			Quantity: req.InitialStock,
		}, now)
		if err != nil {
			return domain.Ingredient{}, err
		}
		ingredient.Stock = level.Quantity
	}
	s.logAudit(ctx, "ingredient_create", "ingredient", ingredient.ID, fmt.Sprintf("name=%s,stock=%s", ingredient.Name, req.InitialStock))
	return ingredient, nil
}

// ReceiveSupply credits warehouse ingredient stock, records the receipt and,
// when bought on account, raises the supplier's balance, all in one transaction.
func (s *Service) ReceiveSupply(ctx context.Context, ingredientID string, req domain.SupplyReceiveRequest) (domain.SupplyReceipt, error) {
	if !req.Quantity.IsPositive() {
		return domain.SupplyReceipt{}, store.Validationf("quantity must be positive")
	}
	if req.UnitCost.IsNegative() {
		return domain.SupplyReceipt{}, store.Validationf("unit_cost must not be negative")
	}
	if req.OnAccount && req.SupplierID == "" {
		return domain.SupplyReceipt{}, store.Validationf("supplier_id is required for purchases on account")
	}

	actor := actorOrSystem(ctx)
	now := s.clock()
	receipt := domain.SupplyReceipt{
		ID:           xid.New("rcv"),
		IngredientID: ingredientID,
		SupplierID:   req.SupplierID,
		Quantity:     req.Quantity,
		UnitCost:     req.UnitCost,
		Total:        req.Quantity.Mul(req.UnitCost),
		OnAccount:    req.OnAccount,
		ReceivedBy:   actor.Username,
		ReceivedAt:   now,
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ingredient, err := store.Get[domain.Ingredient](ctx, tx, store.Ingredients, ingredientID)
		if err != nil {
			return err
		}
		var supplier domain.Supplier
		if req.SupplierID != "" {
			if supplier, err = store.Get[domain.Supplier](ctx, tx, store.Suppliers, req.SupplierID); err != nil {
				return err
			}
		}
		book, err := inventory.Load(ctx, tx, domain.WarehouseIngredient(ingredientID))
		if err != nil {
			return err
		}

		if err := book.Credit(inventory.Line{Key: domain.WarehouseIngredient(ingredientID), Name: ingredient.Name, Quantity: req.Quantity}); err != nil {
			return err
		}
		if err := book.Flush(ctx, tx, now); err != nil {
			return err
		}
		if req.OnAccount {
			supplier.AmountOwed = supplier.AmountOwed.Add(receipt.Total)
			if err := tx.Put(ctx, store.Suppliers, supplier.ID, supplier); err != nil {
				return err
			}
		}
		return tx.Put(ctx, store.SupplyReceipts, receipt.ID, receipt)
	})
	if err != nil {
		return domain.SupplyReceipt{}, err
	}

	s.logAudit(ctx, "supply_receive", "ingredient", ingredientID, fmt.Sprintf("qty=%s,total=%s,on_account=%t", receipt.Quantity, receipt.Total, receipt.OnAccount))
	s.publish(ctx, events.IngredientsReceived, "ingredient", ingredientID, map[string]any{"quantity": receipt.Quantity.String()})
	return receipt, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Supplier{}, err
	}
	supplier := domain.Supplier{ID: xid.New("sup"), Name: req.Name, Phone: strings.TrimSpace(req.Phone), CreatedAt: s.clock()}
	if err := s.store.Put(ctx, store.Suppliers, supplier.ID, supplier); err != nil {
		return domain.Supplier{}, err
	}
	return supplier, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return store.List[domain.Supplier](ctx, s.store, store.Suppliers)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Customer{}, err
	}
	customer := domain.Customer{ID: xid.New("cus"), Name: req.Name, Phone: strings.TrimSpace(req.Phone), CreatedAt: s.clock()}
	if err := s.store.Put(ctx, store.Customers, customer.ID, customer); err != nil {
		return domain.Customer{}, err
	}
	return customer, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return store.List[domain.Customer](ctx, s.store, store.Customers)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	return store.Get[domain.Customer](ctx, s.store, store.Customers, id)
}

func (s *Service) CreateRecipe(ctx context.Context, req domain.RecipeCreateRequest) (domain.Recipe, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Recipe{}, err
	}
	if !req.YieldQuantity.IsPositive() {
		return domain.Recipe{}, store.Validationf("yield_quantity must be positive")
	}
	if _, err := store.Get[domain.Product](ctx, s.store, store.Products, req.ProductID); err != nil {
		return domain.Recipe{}, err
	}
	for _, ing := range req.Ingredients {
		if !ing.Quantity.IsPositive() {
			return domain.Recipe{}, store.Validationf("quantity for %s must be positive", ing.IngredientID)
		}
		if _, err := store.Get[domain.Ingredient](ctx, s.store, store.Ingredients, ing.IngredientID); err != nil {
			return domain.Recipe{}, err
		}
	}

	recipe := domain.Recipe{
		ID:            xid.New("rcp"),
		Name:          req.Name,
		ProductID:     req.ProductID,
		YieldQuantity: req.YieldQuantity,
		Ingredients:   req.Ingredients,
		CreatedAt:     s.clock(),
	}
	if err := s.store.Put(ctx, store.Recipes, recipe.ID, recipe); err != nil {
		return domain.Recipe{}, err
	}
	return recipe, nil
}

func (s *Service) ListRecipes(ctx context.Context) ([]domain.Recipe, error) {
	return store.List[domain.Recipe](ctx, s.store, store.Recipes)
}

// ListStock returns every ledger row held by owner.
func (s *Service) ListStock(ctx context.Context, owner string) ([]domain.StockLevel, error) {
	if owner == "" {
		owner = domain.WarehouseOwner
	}
	return store.List[domain.StockLevel](ctx, s.store, store.Stock, store.Where{Field: "owner", Value: owner})
}

// DebitStock removes quantity from one owner's holding. It fails with
// store.ErrInsufficientStock rather than going negative.
func (s *Service) DebitStock(ctx context.Context, req domain.StockAdjustRequest) (domain.StockLevel, error) {
	return s.adjustStock(ctx, req, inventory.DebitStock, "stock_debit")
}

func (s *Service) CreditStock(ctx context.Context, req domain.StockAdjustRequest) (domain.StockLevel, error) {
	return s.adjustStock(ctx, req, inventory.CreditStock, "stock_credit")
}

type stockMove func(context.Context, store.Store, inventory.Line, time.Time) (domain.StockLevel, error)

func (s *Service) adjustStock(ctx context.Context, req domain.StockAdjustRequest, move stockMove, action string) (domain.StockLevel, error) {
	if err := s.check(req); err != nil {
		return domain.StockLevel{}, err
	}
	name, err := s.itemName(ctx, req.Kind, req.ItemID)
	if err != nil {
		return domain.StockLevel{}, err
	}
	key := domain.StockKey{Owner: req.Owner, Kind: req.Kind, ItemID: req.ItemID}
	level, err := move(ctx, s.store, inventory.Line{Key: key, Name: name, Quantity: req.Quantity}, s.clock())
	if err != nil {
		return domain.StockLevel{}, err
	}
	s.logAudit(ctx, action, "stock", key.ID(), fmt.Sprintf("qty=%s,balance=%s", req.Quantity, level.Quantity))
	return level, nil
}

func (s *Service) itemName(ctx context.Context, kind string, id string) (string, error) {
	if kind == domain.ItemIngredient {
		ing, err := store.Get[domain.Ingredient](ctx, s.store, store.Ingredients, id)
		return ing.Name, err
	}
	p, err := store.Get[domain.Product](ctx, s.store, store.Products, id)
	return p.Name, err
}

// ReportWaste debits spoiled goods from an owner's stock and logs them.
func (s *Service) ReportWaste(ctx context.Context, req domain.WasteReportRequest) (domain.WasteLog, error) {
	if err := s.check(req); err != nil {
		return domain.WasteLog{}, err
	}
	if req.Owner == "" {
		req.Owner = domain.WarehouseOwner
	}
	key := domain.StockKey{Owner: req.Owner, Kind: domain.ItemProduct, ItemID: req.ProductID}
	now := s.clock()

	var entry domain.WasteLog
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		product, err := store.Get[domain.Product](ctx, tx, store.Products, req.ProductID)
		if err != nil {
			return err
		}
		book, err := inventory.Load(ctx, tx, key)
		if err != nil {
			return err
		}

		if err := book.Debit(inventory.Line{Key: key, Name: product.Name, Quantity: req.Quantity}); err != nil {
			return err
		}
		entry = domain.WasteLog{
			ID:          xid.New("wst"),
			Owner:       req.Owner,
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    req.Quantity,
			Reason:      strings.TrimSpace(req.Reason),
			ReportedBy:  actorOrSystem(ctx).Username,
			CreatedAt:   now,
		}
		if err := book.Flush(ctx, tx, now); err != nil {
			return err
		}
		return tx.Put(ctx, store.WasteLogs, entry.ID, entry)
	})
	if err != nil {
		return domain.WasteLog{}, err
	}

	s.logAudit(ctx, "waste_report", "product", entry.ProductID, fmt.Sprintf("owner=%s,qty=%s", entry.Owner, entry.Quantity))
	s.publish(ctx, events.StockWasted, "product", entry.ProductID, map[string]any{"owner": entry.Owner, "quantity": entry.Quantity.String()})
	if entry.Owner == domain.WarehouseOwner {
		s.flagLowStock(ctx, []string{entry.ProductID})
	}
	return entry, nil
}

func (s *Service) ListWasteLogs(ctx context.Context, batchID string) ([]domain.WasteLog, error) {
	if batchID != "" {
		return store.List[domain.WasteLog](ctx, s.store, store.WasteLogs, store.Where{Field: "batch_id", Value: batchID})
	}
	return store.List[domain.WasteLog](ctx, s.store, store.WasteLogs)
}

// flagLowStock publishes a low-stock event for any product whose warehouse
// quantity has fallen to its threshold. It runs after commit and never fails
// the caller.
func (s *Service) flagLowStock(ctx context.Context, productIDs []string) {
	for _, id := range productIDs {
		product, err := s.GetProduct(ctx, id)
		if err != nil {
			s.logger.Debug("low stock check skipped", zap.String("product_id", id), zap.Error(err))
			continue
		}
		if product.LowStock() {
			s.publish(ctx, events.StockLow, "product", id, map[string]any{
				"stock":     product.Stock.String(),
				"threshold": product.LowStockThreshold.String(),
			})
		}
	}
}
