package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced        = "order.placed"
	EventTypeOrderStatusChanged = "order.status_changed"
	EventTypeLowStock           = "inventory.low_stock"
)

// BaseEvent contains common event fields
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderLineData is the per-line payload carried by order events
type OrderLineData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// OrderPlacedEvent is published after a checkout commits, for both
// marketplace orders and POS sales.
type OrderPlacedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	FarmerID    *int64          `json:"farmer_id,omitempty"`
	AgrovetID   *int64          `json:"agrovet_id,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      OrderStatus     `json:"status"`
	PointOfSale bool            `json:"point_of_sale"`
	Items       []OrderLineData `json:"items"`
}

// OrderStatusChangedEvent is published on every workflow transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID   int64       `json:"order_id"`
	OldStatus OrderStatus `json:"old_status"`
	NewStatus OrderStatus `json:"new_status"`
	ActorID   int64       `json:"actor_id"`
	Restocked bool        `json:"restocked"`
}

// LowStockEvent flags a product whose stock fell to or below the threshold
// after a checkout decrement.
type LowStockEvent struct {
	BaseEvent
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	AgrovetID int64  `json:"agrovet_id"`
	Remaining int    `json:"remaining"`
}
