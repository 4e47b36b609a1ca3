package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const WarehouseOwner = "warehouse"

const (
	ItemProduct    = "product"
	ItemIngredient = "ingredient"
)

const (
	TransferPending   = "pending"
	TransferActive    = "active"
	TransferCompleted = "completed"
	TransferCancelled = "cancelled"
)

const (
	BatchPendingApproval = "pending_approval"
	BatchInProduction    = "in_production"
	BatchCompleted       = "completed"
	BatchDeclined        = "declined"
	BatchCancelled       = "cancelled"
)

const (
	PaymentCash     = "Cash"
	PaymentPOS      = "POS"
	PaymentPaystack = "Paystack"
	PaymentCredit   = "Credit"
)

const OrderCompleted = "Completed"

const (
	ConfirmationPending  = "pending"
	ConfirmationApproved = "approved"
	ConfirmationDeclined = "declined"
)

const (
	ConfirmationRunSale     = "run_sale"
	ConfirmationWalkIn      = "walk_in"
	ConfirmationDebtPayment = "debt_payment"
)

const (
	ActionAccept  = "accept"
	ActionDecline = "decline"
	ActionApprove = "approve"
)

const (
	RoleAdmin       = "admin"
	RoleStorekeeper = "storekeeper"
	RoleBaker       = "baker"
	RoleDriver      = "driver"
	RoleCashier     = "cashier"
)

type Product struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Category          string           `json:"category"`
	Unit              string           `json:"unit"`
	Stock             decimal.Decimal  `json:"stock"`
	CostPrice         decimal.Decimal  `json:"cost_price"`
	Price             decimal.Decimal  `json:"price"`
	MinPrice          *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice          *decimal.Decimal `json:"max_price,omitempty"`
	LowStockThreshold decimal.Decimal  `json:"low_stock_threshold"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// LowStock reports whether the warehouse quantity is at or below the threshold.
func (p Product) LowStock() bool {
	return p.LowStockThreshold.IsPositive() && p.Stock.LessThanOrEqual(p.LowStockThreshold)
}

type Ingredient struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Unit        string          `json:"unit"`
	Stock       decimal.Decimal `json:"stock"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// StockKey addresses one ledger row: an owner's holding of one product or ingredient.
type StockKey struct {
	Owner  string `json:"owner"`
	Kind   string `json:"kind"`
	ItemID string `json:"item_id"`
}

func (k StockKey) ID() string {
	return k.Owner + ":" + k.Kind + ":" + k.ItemID
}

func WarehouseProduct(productID string) StockKey {
	return StockKey{Owner: WarehouseOwner, Kind: ItemProduct, ItemID: productID}
}

func WarehouseIngredient(ingredientID string) StockKey {
	return StockKey{Owner: WarehouseOwner, Kind: ItemIngredient, ItemID: ingredientID}
}

func PersonalProduct(owner string, productID string) StockKey {
	return StockKey{Owner: owner, Kind: ItemProduct, ItemID: productID}
}

type StockLevel struct {
	StockKey
	ItemName  string          `json:"item_name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type TransferItem struct {
	ProductID   string          `json:"product_id" validate:"required"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// Transfer moves a list of products between two owners. A sales run is a
// transfer with IsSalesRun set plus revenue and collection counters.
type Transfer struct {
	ID             string          `json:"id"`
	FromOwner      string          `json:"from_owner"`
	ToOwner        string          `json:"to_owner"`
	RecipientName  string          `json:"recipient_name,omitempty"`
	Items          []TransferItem  `json:"items"`
	Status         string          `json:"status"`
	IsSalesRun     bool            `json:"is_sales_run"`
	IsReturn       bool            `json:"is_return"`
	Notes          string          `json:"notes,omitempty"`
	SourceID       string          `json:"source_id,omitempty"`
	Date           time.Time       `json:"date"`
	TimeReceived   *time.Time      `json:"time_received,omitempty"`
	TimeCompleted  *time.Time      `json:"time_completed,omitempty"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	TotalCollected decimal.Decimal `json:"total_collected"`
	CreatedBy      string          `json:"created_by"`
}

type RecipeIngredient struct {
	IngredientID string          `json:"ingredient_id" validate:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// Recipe lists the ingredients needed to produce YieldQuantity units of a product.
type Recipe struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	ProductID     string             `json:"product_id"`
	YieldQuantity decimal.Decimal    `json:"yield_quantity"`
	Ingredients   []RecipeIngredient `json:"ingredients"`
	CreatedAt     time.Time          `json:"created_at"`
}

type BatchIngredient struct {
	IngredientID string          `json:"ingredient_id"`
	Name         string          `json:"name,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	OpeningStock decimal.Decimal `json:"opening_stock"`
	ClosingStock decimal.Decimal `json:"closing_stock"`
}

type ProductionBatch struct {
	ID                   string            `json:"id"`
	RecipeID             string            `json:"recipe_id"`
	RecipeName           string            `json:"recipe_name"`
	ProductID            string            `json:"product_id"`
	ProductName          string            `json:"product_name"`
	Quantity             decimal.Decimal   `json:"quantity"`
	Status               string            `json:"status"`
	Planned              []BatchIngredient `json:"planned"`
	Ingredients          []BatchIngredient `json:"ingredients"`
	SuccessfullyProduced decimal.Decimal   `json:"successfully_produced"`
	Wasted               decimal.Decimal   `json:"wasted"`
	ReturnTransferID     string            `json:"return_transfer_id,omitempty"`
	RequestedBy          string            `json:"requested_by"`
	RequesterName        string            `json:"requester_name,omitempty"`
	ApprovedBy           string            `json:"approved_by,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	ApprovedAt           *time.Time        `json:"approved_at,omitempty"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
}

type OrderItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type Order struct {
	ID               string          `json:"id"`
	SalesRunID       string          `json:"sales_run_id,omitempty"`
	CustomerID       string          `json:"customer_id,omitempty"`
	CustomerName     string          `json:"customer_name,omitempty"`
	StaffID          string          `json:"staff_id"`
	Items            []OrderItem     `json:"items"`
	Total            decimal.Decimal `json:"total"`
	PaymentMethod    string          `json:"payment_method"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
}

// PaymentConfirmation is a cash or POS receipt held until an approver
// reconciles it. It carries whatever is needed to post it on approval.
type PaymentConfirmation struct {
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	SalesRunID    string          `json:"sales_run_id,omitempty"`
	OrderID       string          `json:"order_id,omitempty"`
	CustomerID    string          `json:"customer_id,omitempty"`
	StaffID       string          `json:"staff_id"`
	Items         []OrderItem     `json:"items,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	DecidedBy     string          `json:"decided_by,omitempty"`
	DecidedAt     *time.Time      `json:"decided_at,omitempty"`
	// PostClosure marks a run sale approved after its run was completed.
	PostClosure bool `json:"post_closure,omitempty"`
}

type Customer struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Phone      string          `json:"phone,omitempty"`
	AmountOwed decimal.Decimal `json:"amount_owed"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (c Customer) Balance() decimal.Decimal {
	return c.AmountOwed.Sub(c.AmountPaid)
}

type Supplier struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Phone      string          `json:"phone,omitempty"`
	AmountOwed decimal.Decimal `json:"amount_owed"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	CreatedAt  time.Time       `json:"created_at"`
}

type SupplyReceipt struct {
	ID           string          `json:"id"`
	IngredientID string          `json:"ingredient_id"`
	SupplierID   string          `json:"supplier_id,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	Total        decimal.Decimal `json:"total"`
	OnAccount    bool            `json:"on_account"`
	ReceivedBy   string          `json:"received_by"`
	ReceivedAt   time.Time       `json:"received_at"`
}

// DailySales aggregates one calendar day, keyed by Date in YYYY-MM-DD.
type DailySales struct {
	Date        string          `json:"date"`
	Cash        decimal.Decimal `json:"cash"`
	POS         decimal.Decimal `json:"pos"`
	Transfer    decimal.Decimal `json:"transfer"`
	CreditSales decimal.Decimal `json:"credit_sales"`
	Shortage    decimal.Decimal `json:"shortage"`
	Total       decimal.Decimal `json:"total"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type WasteLog struct {
	ID          string          `json:"id"`
	BatchID     string          `json:"batch_id,omitempty"`
	Owner       string          `json:"owner"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	Reason      string          `json:"reason,omitempty"`
	ReportedBy  string          `json:"reported_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type ShortageReport struct {
	RunID          string          `json:"run_id"`
	Date           string          `json:"date"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	CreditSales    decimal.Decimal `json:"credit_sales"`
	ExpectedCash   decimal.Decimal `json:"expected_cash"`
	TotalCollected decimal.Decimal `json:"total_collected"`
	Shortage       decimal.Decimal `json:"shortage"`
	Posted         bool            `json:"posted"`
}
