package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is one cart line. UnitPrice is snapshotted when the product is first
// added and does not follow later catalog price edits.
type Item struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Subtotal returns quantity × snapshotted unit price
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is a session-scoped list of intended purchases. Entries keep insertion
// order and there is at most one entry per product.
type Cart struct {
	SessionID string    `json:"session_id"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Find returns the entry for productID, or nil
func (c *Cart) Find(productID int64) *Item {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// Add merges quantity into an existing entry or appends a new one
func (c *Cart) Add(item Item) {
	if existing := c.Find(item.ProductID); existing != nil {
		existing.Quantity += item.Quantity
		return
	}
	c.Items = append(c.Items, item)
}

// SetQuantity replaces the stored quantity; false if the product is absent
func (c *Cart) SetQuantity(productID int64, quantity int) bool {
	item := c.Find(productID)
	if item == nil {
		return false
	}
	item.Quantity = quantity
	return true
}

// Remove drops the entry if present; false when it was absent
func (c *Cart) Remove(productID int64) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}

// Total sums quantity × snapshotted unit price over all entries
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// IsEmpty reports whether the cart has no entries
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}
