package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type UserAccount struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Password    string    `json:"password"`
	Role        string    `json:"role"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// StaffMember is the public view of a user account.
type StaffMember struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type StaffCreateRequest struct {
	Username    string `json:"username" validate:"required,min=4,max=64"`
	DisplayName string `json:"display_name" validate:"required"`
	Password    string `json:"password" validate:"required,min=6"`
	Role        string `json:"role" validate:"required,oneof=admin storekeeper baker driver cashier"`
}

type ProductCreateRequest struct {
	Name              string           `json:"name" validate:"required"`
	Category          string           `json:"category" validate:"required"`
	Unit              string           `json:"unit"`
	CostPrice         decimal.Decimal  `json:"cost_price"`
	Price             decimal.Decimal  `json:"price"`
	MinPrice          *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice          *decimal.Decimal `json:"max_price,omitempty"`
	LowStockThreshold decimal.Decimal  `json:"low_stock_threshold"`
	InitialStock      decimal.Decimal  `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Name              *string          `json:"name,omitempty"`
	Category          *string          `json:"category,omitempty"`
	Unit              *string          `json:"unit,omitempty"`
	CostPrice         *decimal.Decimal `json:"cost_price,omitempty"`
	Price             *decimal.Decimal `json:"price,omitempty"`
	MinPrice          *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice          *decimal.Decimal `json:"max_price,omitempty"`
	LowStockThreshold *decimal.Decimal `json:"low_stock_threshold,omitempty"`
}

type IngredientCreateRequest struct {
	Name         string          `json:"name" validate:"required"`
	Unit         string          `json:"unit" validate:"required"`
	CostPerUnit  decimal.Decimal `json:"cost_per_unit"`
	InitialStock decimal.Decimal `json:"initial_stock"`
}

type SupplyReceiveRequest struct {
	SupplierID string          `json:"supplier_id,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	OnAccount  bool            `json:"on_account"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone,omitempty"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone,omitempty"`
}

type RecipeCreateRequest struct {
	Name          string             `json:"name" validate:"required"`
	ProductID     string             `json:"product_id" validate:"required"`
	YieldQuantity decimal.Decimal    `json:"yield_quantity"`
	Ingredients   []RecipeIngredient `json:"ingredients" validate:"required,min=1,dive"`
}

type StockAdjustRequest struct {
	Owner    string          `json:"owner" validate:"required"`
	Kind     string          `json:"kind" validate:"required,oneof=product ingredient"`
	ItemID   string          `json:"item_id" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
}

type WasteReportRequest struct {
	Owner     string          `json:"owner,omitempty"`
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	Reason    string          `json:"reason,omitempty"`
}

type TransferCreateRequest struct {
	FromOwner  string         `json:"from_owner,omitempty"`
	ToOwner    string         `json:"to_owner" validate:"required"`
	Items      []TransferItem `json:"items" validate:"required,min=1,dive"`
	Notes      string         `json:"notes,omitempty"`
	IsSalesRun bool           `json:"is_sales_run"`
	IsReturn   bool           `json:"is_return"`
}

type TransferAcknowledgeRequest struct {
	Action string `json:"action" validate:"required,oneof=accept decline"`
}

type BatchStartRequest struct {
	RecipeID string          `json:"recipe_id" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
}

type BatchApproveRequest struct {
	Ingredients []RecipeIngredient `json:"ingredients,omitempty" validate:"dive"`
}

type BatchCompleteRequest struct {
	Produced      []TransferItem `json:"produced,omitempty" validate:"dive"`
	Wasted        []TransferItem `json:"wasted,omitempty" validate:"dive"`
	StorekeeperID string         `json:"storekeeper_id,omitempty"`
}

type CartItem struct {
	ProductID string           `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type SaleRequest struct {
	Items            []CartItem `json:"items" validate:"required,min=1,dive"`
	CustomerID       string     `json:"customer_id,omitempty"`
	PaymentMethod    string     `json:"payment_method" validate:"required,oneof=Cash POS Paystack Credit"`
	PaymentReference string     `json:"payment_reference,omitempty"`
}

type SaleResponse struct {
	Order          Order                `json:"order"`
	Confirmation   *PaymentConfirmation `json:"confirmation,omitempty"`
	TotalCollected decimal.Decimal      `json:"total_collected"`
}

type CounterSaleRequest struct {
	Items         []CartItem `json:"items" validate:"required,min=1,dive"`
	CustomerID    string     `json:"customer_id,omitempty"`
	PaymentMethod string     `json:"payment_method" validate:"required,oneof=Cash POS"`
}

type DebtPaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method" validate:"required,oneof=Cash POS"`
	SalesRunID    string          `json:"sales_run_id,omitempty"`
}

type ConfirmPaymentRequest struct {
	Action string `json:"action" validate:"required,oneof=approve decline"`
}

type ConfirmPaymentResponse struct {
	Confirmation PaymentConfirmation `json:"confirmation"`
	Order        *Order              `json:"order,omitempty"`
	RunCompleted bool                `json:"run_completed"`
	PostClosure  bool                `json:"post_closure,omitempty"`
}

type RunReturnRequest struct {
	Items []TransferItem `json:"items" validate:"required,min=1,dive"`
	Notes string         `json:"notes,omitempty"`
}
