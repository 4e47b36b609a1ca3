package memory

import (
	"encoding/json"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"bakehouse/backend/internal/domain"
	"bakehouse/backend/internal/store"
)

// seedUsers builds the dev/demo accounts. Passwords come from SEED_ADMIN_PASSWORD
// and SEED_STAFF_PASSWORD, falling back to fixed dev defaults.
func seedUsers(now time.Time) []domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		zap.L().Warn("memory store is using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	users := make([]domain.UserAccount, 0, 5)
	for _, u := range []struct {
		username string
		name     string
		password string
		role     string
	}{
		{"admin", "Owner", adminPwd, domain.RoleAdmin},
		{"store", "Store Keeper", staffPwd, domain.RoleStorekeeper},
		{"baker", "Head Baker", staffPwd, domain.RoleBaker},
		{"driver", "Van Driver", staffPwd, domain.RoleDriver},
		{"cashier", "Shop Cashier", staffPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			zap.L().Fatal("failed to hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users = append(users, domain.UserAccount{
			Username:    u.username,
			DisplayName: u.name,
			Password:    string(hash),
			Role:        u.role,
			Active:      true,
			CreatedAt:   now,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store holding a small bakery catalog, warehouse stock,
// one recipe and the demo staff accounts.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	d := decimal.NewFromInt

	products := []struct {
		product domain.Product
		stock   int64
	}{
		{domain.Product{ID: "prd-white-loaf", Name: "White Loaf", Category: "bread", Unit: "loaf", CostPrice: d(450), Price: d(800), LowStockThreshold: d(20)}, 200},
		{domain.Product{ID: "prd-wheat-loaf", Name: "Wheat Loaf", Category: "bread", Unit: "loaf", CostPrice: d(600), Price: d(1000), LowStockThreshold: d(10)}, 120},
		{domain.Product{ID: "prd-meat-pie", Name: "Meat Pie", Category: "pastry", Unit: "piece", CostPrice: d(250), Price: d(500), LowStockThreshold: d(30)}, 150},
		{domain.Product{ID: "prd-chin-chin", Name: "Chin Chin Pack", Category: "snack", Unit: "pack", CostPrice: d(300), Price: d(600), LowStockThreshold: d(15)}, 80},
	}
	for _, p := range products {
		lo, hi := d(700), d(900)
		if p.product.ID == "prd-white-loaf" {
			p.product.MinPrice, p.product.MaxPrice = &lo, &hi
		}
		p.product.CreatedAt, p.product.UpdatedAt = now, now
		s.seed(store.Products, p.product.ID, p.product)
		key := domain.WarehouseProduct(p.product.ID)
		s.seed(store.Stock, key.ID(), domain.StockLevel{StockKey: key, ItemName: p.product.Name, Quantity: d(p.stock), UpdatedAt: now})
	}

	ingredients := []struct {
		ingredient domain.Ingredient
		stock      decimal.Decimal
	}{
		{domain.Ingredient{ID: "ing-flour", Name: "Flour", Unit: "kg", CostPerUnit: d(900)}, d(250)},
		{domain.Ingredient{ID: "ing-sugar", Name: "Sugar", Unit: "kg", CostPerUnit: d(1200)}, d(60)},
		{domain.Ingredient{ID: "ing-yeast", Name: "Yeast", Unit: "kg", CostPerUnit: d(4000)}, decimal.RequireFromString("7.5")},
		{domain.Ingredient{ID: "ing-butter", Name: "Butter", Unit: "kg", CostPerUnit: d(5500)}, d(25)},
	}
	for _, i := range ingredients {
		i.ingredient.CreatedAt, i.ingredient.UpdatedAt = now, now
		s.seed(store.Ingredients, i.ingredient.ID, i.ingredient)
		key := domain.WarehouseIngredient(i.ingredient.ID)
		s.seed(store.Stock, key.ID(), domain.StockLevel{StockKey: key, ItemName: i.ingredient.Name, Quantity: i.stock, UpdatedAt: now})
	}

	s.seed(store.Recipes, "rcp-white-loaf", domain.Recipe{
		ID:            "rcp-white-loaf",
		Name:          "White Loaf x50",
		ProductID:     "prd-white-loaf",
		YieldQuantity: d(50),
		Ingredients: []domain.RecipeIngredient{
			{IngredientID: "ing-flour", Quantity: d(25)},
			{IngredientID: "ing-sugar", Quantity: d(2)},
			{IngredientID: "ing-yeast", Quantity: decimal.RequireFromString("0.5")},
			{IngredientID: "ing-butter", Quantity: d(1)},
		},
		CreatedAt: now,
	})

	s.seed(store.Customers, "cus-mama-t", domain.Customer{ID: "cus-mama-t", Name: "Mama T Provisions", Phone: "08030000001", CreatedAt: now})
	s.seed(store.Customers, "cus-corner-shop", domain.Customer{ID: "cus-corner-shop", Name: "Corner Shop", Phone: "08030000002", CreatedAt: now})
	s.seed(store.Suppliers, "sup-mill", domain.Supplier{ID: "sup-mill", Name: "Golden Mill", CreatedAt: now})

	for _, u := range seedUsers(now) {
		s.seed(store.Users, u.Username, u)
	}
	return s
}

func (s *Store) seed(collection string, id string, doc any) {
	body, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	s.write(collection, id, body)
	s.mu.Unlock()
}
