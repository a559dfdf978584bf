package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// User roles
const (
	RoleFarmer  = "FARMER"
	RoleAgrovet = "AGROVET"
	RoleAdmin   = "ADMIN"
)

// Product categories (fixed set from the inventory screen)
var ProductCategories = []string{"Pesticides", "Fertilizers", "Seeds", "Tools", "Medications"}

// User represents a platform account. Accounts are owned by the external
// auth service; this service only reads them.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Phone     string    `db:"phone" json:"phone"`
	Role      string    `db:"role" json:"role"`
	Location  string    `db:"location" json:"location"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Product represents an agrovet's catalog entry
type Product struct {
	ID            int64           `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Description   string          `db:"description" json:"description"`
	Category      string          `db:"category" json:"category"`
	Price         decimal.Decimal `db:"price" json:"price"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	ImageURL      string          `db:"image_url" json:"image_url"`
	Manufacturer  string          `db:"manufacturer" json:"manufacturer"`
	AgrovetID     int64           `db:"agrovet_id" json:"agrovet_id"`
	IsActive      bool            `db:"is_active" json:"is_active"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Order represents a purchase, either a marketplace order or a POS sale.
// FarmerID is null for walk-in POS customers; AgrovetID is null for
// open-marketplace orders.
type Order struct {
	ID              int64           `db:"id" json:"id"`
	FarmerID        sql.NullInt64   `db:"farmer_id" json:"farmer_id"`
	AgrovetID       sql.NullInt64   `db:"agrovet_id" json:"agrovet_id"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status          OrderStatus     `db:"status" json:"status"`
	DeliveryAddress string          `db:"delivery_address" json:"delivery_address"`
	Notes           string          `db:"notes" json:"notes"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem represents a line of an order. UnitPrice is the price snapshot
// taken at checkout; it never follows later product price edits.
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	Subtotal  decimal.Decimal `db:"subtotal" json:"subtotal"`
}

// DeliveryAddressInStore is the sentinel address recorded for POS sales.
const DeliveryAddressInStore = "In-store purchase"

// OrderStatus is the order lifecycle state
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

var orderStatuses = map[OrderStatus]bool{
	OrderStatusPending:    true,
	OrderStatusProcessing: true,
	OrderStatusCompleted:  true,
	OrderStatusCancelled:  true,
}

// statusTransitions encodes the workflow:
// PENDING -> PROCESSING -> COMPLETED, CANCELLED from PENDING or PROCESSING.
// COMPLETED and CANCELLED are terminal.
var statusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted:  {},
	OrderStatusCancelled:  {},
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	return orderStatuses[s]
}

// Terminal reports whether no further transitions are permitted.
func (s OrderStatus) Terminal() bool {
	return len(statusTransitions[s]) == 0 && orderStatuses[s]
}

// CanTransitionTo reports whether the workflow permits moving to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DiseaseDetection is a stored AI diagnosis for a farmer's plant photo
type DiseaseDetection struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	PlantType       string    `db:"plant_type" json:"plant_type"`
	DiseaseName     string    `db:"disease_name" json:"disease_name"`
	ConfidenceScore float64   `db:"confidence_score" json:"confidence_score"`
	Severity        string    `db:"severity" json:"severity"`
	ImagePath       string    `db:"image_path" json:"image_path"`
	Symptoms        string    `db:"symptoms" json:"symptoms"`
	Causes          string    `db:"causes" json:"causes"`
	Treatment       string    `db:"treatment" json:"treatment"`
	Prevention      string    `db:"prevention" json:"prevention"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// CustomerInteraction is a CRM note linking an agrovet and a farmer
type CustomerInteraction struct {
	ID              int64     `db:"id" json:"id"`
	AgrovetID       int64     `db:"agrovet_id" json:"agrovet_id"`
	FarmerID        int64     `db:"farmer_id" json:"farmer_id"`
	InteractionType string    `db:"interaction_type" json:"interaction_type"`
	Notes           string    `db:"notes" json:"notes"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// CustomerSummary is the CRM roll-up of a farmer's history with one agrovet
type CustomerSummary struct {
	User        User            `json:"user"`
	TotalOrders int             `json:"total_orders"`
	TotalSpent  decimal.Decimal `json:"total_spent"`
}
