package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id int64, price string, qty int) Item {
	return Item{ProductID: id, Name: "p", UnitPrice: decimal.RequireFromString(price), Quantity: qty}
}

func TestAddMergesQuantities(t *testing.T) {
	c := &Cart{SessionID: "s1"}

	c.Add(item(1, "25.99", 2))
	c.Add(item(2, "8.99", 1))
	c.Add(item(1, "25.99", 1))

	require.Len(t, c.Items, 2)
	assert.Equal(t, 3, c.Items[0].Quantity)
	assert.Equal(t, int64(1), c.Items[0].ProductID)
}

func TestAddKeepsFirstPriceSnapshot(t *testing.T) {
	c := &Cart{SessionID: "s1"}

	c.Add(item(1, "25.99", 1))
	// A later add carries the current catalog price; the entry keeps the
	// snapshot taken on first add.
	c.Add(item(1, "30.00", 1))

	require.Len(t, c.Items, 1)
	assert.True(t, c.Items[0].UnitPrice.Equal(decimal.RequireFromString("25.99")))
}

func TestTotalIsExact(t *testing.T) {
	c := &Cart{SessionID: "s1"}
	c.Add(item(1, "25.99", 2))
	c.Add(item(2, "8.99", 3))

	assert.True(t, c.Total().Equal(decimal.RequireFromString("78.95")),
		"got %s", c.Total())
}

func TestSetQuantity(t *testing.T) {
	c := &Cart{SessionID: "s1"}
	c.Add(item(1, "25.99", 2))

	assert.True(t, c.SetQuantity(1, 5))
	assert.Equal(t, 5, c.Items[0].Quantity)
	assert.False(t, c.SetQuantity(9, 1))
}

func TestRemove(t *testing.T) {
	c := &Cart{SessionID: "s1"}
	c.Add(item(1, "25.99", 2))
	c.Add(item(2, "8.99", 1))

	assert.True(t, c.Remove(1))
	require.Len(t, c.Items, 1)
	assert.Equal(t, int64(2), c.Items[0].ProductID)

	assert.False(t, c.Remove(1))
}

func TestIsEmpty(t *testing.T) {
	c := &Cart{SessionID: "s1"}
	assert.True(t, c.IsEmpty())
	assert.True(t, c.Total().IsZero())

	c.Add(item(1, "1.00", 1))
	assert.False(t, c.IsEmpty())
}
