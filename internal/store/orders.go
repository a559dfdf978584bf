package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"agrimarket/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// CheckoutLine is one cart entry entering the checkout transaction. UnitPrice
// is the cart's snapshot, not the product's live price.
type CheckoutLine struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// CheckoutParams describes the order to be created atomically
type CheckoutParams struct {
	FarmerID        *int64
	AgrovetID       *int64
	Status          models.OrderStatus
	DeliveryAddress string
	Notes           string
	Total           decimal.Decimal
	Lines           []CheckoutLine
}

// StockLevel is a product's stock after the checkout decrement
type StockLevel struct {
	ProductID int64
	Name      string
	AgrovetID int64
	Remaining int
}

// CheckoutResult carries the committed order plus the post-decrement stock
// levels, so callers can raise low-stock alerts without re-reading.
type CheckoutResult struct {
	Order *models.Order
	Items []models.OrderItem
	Stock []StockLevel
}

// CheckoutTx converts validated cart lines into an order, its items and the
// matching stock decrements as a single atomic unit. Every product row is
// locked (FOR UPDATE) and re-validated inside the transaction, so two racing
// checkouts for the last units serialize: one commits, the other fails with
// InsufficientStockError and nothing it touched persists.
func (s *Store) CheckoutTx(ctx context.Context, p CheckoutParams) (*CheckoutResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Lock rows in product-id order regardless of cart order, so concurrent
	// checkouts over overlapping products cannot deadlock.
	locked := make([]CheckoutLine, len(p.Lines))
	copy(locked, p.Lines)
	sort.Slice(locked, func(i, j int) bool { return locked[i].ProductID < locked[j].ProductID })

	stock := make([]StockLevel, 0, len(p.Lines))
	for _, line := range locked {
		var row struct {
			Name          string `db:"name"`
			StockQuantity int    `db:"stock_quantity"`
			IsActive      bool   `db:"is_active"`
			AgrovetID     int64  `db:"agrovet_id"`
		}
		err = tx.GetContext(ctx, &row,
			"SELECT name, stock_quantity, is_active, agrovet_id FROM products WHERE id = $1 FOR UPDATE",
			line.ProductID)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("product %d: %w", line.ProductID, ErrProductNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to lock product %d: %w", line.ProductID, err)
		}

		available := row.StockQuantity
		if !row.IsActive {
			available = 0
		}
		if available < line.Quantity {
			return nil, &InsufficientStockError{
				ProductID: line.ProductID,
				Name:      row.Name,
				Requested: line.Quantity,
				Available: available,
			}
		}
		stock = append(stock, StockLevel{
			ProductID: line.ProductID,
			Name:      row.Name,
			AgrovetID: row.AgrovetID,
			Remaining: row.StockQuantity - line.Quantity,
		})
	}

	order := &models.Order{
		FarmerID:        toNullInt64(p.FarmerID),
		AgrovetID:       toNullInt64(p.AgrovetID),
		TotalAmount:     p.Total,
		Status:          p.Status,
		DeliveryAddress: p.DeliveryAddress,
		Notes:           p.Notes,
	}

	err = tx.GetContext(ctx, order, `
		INSERT INTO orders (farmer_id, agrovet_id, total_amount, status, delivery_address, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		order.FarmerID, order.AgrovetID, order.TotalAmount, order.Status,
		order.DeliveryAddress, order.Notes)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	items := make([]models.OrderItem, 0, len(p.Lines))
	for _, line := range p.Lines {
		item := models.OrderItem{
			OrderID:   order.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))),
		}

		err = tx.GetContext(ctx, &item.ID, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price, subtotal)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.Subtotal)
		if err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE products SET stock_quantity = stock_quantity - $1 WHERE id = $2",
			line.Quantity, line.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to decrement stock for product %d: %w", line.ProductID, err)
		}

		items = append(items, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit checkout: %w", err)
	}

	return &CheckoutResult{Order: order, Items: items, Stock: stock}, nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByFarmerID retrieves a farmer's orders, newest first
func (s *Store) GetOrdersByFarmerID(ctx context.Context, farmerID int64, status *models.OrderStatus) ([]models.Order, error) {
	query := "SELECT * FROM orders WHERE farmer_id = $1"
	args := []interface{}{farmerID}
	if status != nil {
		args = append(args, *status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, query, args...)
	return orders, err
}

// GetOrdersByAgrovetID retrieves the orders an agrovet fulfills, newest first
func (s *Store) GetOrdersByAgrovetID(ctx context.Context, agrovetID int64, status *models.OrderStatus) ([]models.Order, error) {
	query := "SELECT * FROM orders WHERE agrovet_id = $1"
	args := []interface{}{agrovetID}
	if status != nil {
		args = append(args, *status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, query, args...)
	return orders, err
}

// ListOrders retrieves all orders (admin view), newest first
func (s *Store) ListOrders(ctx context.Context, status *models.OrderStatus) ([]models.Order, error) {
	query := "SELECT * FROM orders"
	args := []interface{}{}
	if status != nil {
		args = append(args, *status)
		query += " WHERE status = $1"
	}
	query += " ORDER BY created_at DESC"

	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, query, args...)
	return orders, err
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// UpdateOrderStatus moves an order from one status to another. The write is
// guarded by the status the caller read, so two racing transitions serialize:
// the loser gets ErrStatusConflict instead of silently overwriting.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, from, to models.OrderStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, orderID, from)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.statusWriteFailure(ctx, s.db, orderID)
	}
	return nil
}

// CancelOrderRestockTx cancels an order and returns every line's quantity to
// product stock, in one transaction. Used only when the restock-on-cancel
// policy is enabled. The status flip is guarded by the status the caller
// read, so a raced duplicate cancel fails with ErrStatusConflict and restocks
// nothing.
func (s *Store) CancelOrderRestockTx(ctx context.Context, orderID int64, from models.OrderStatus) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		models.OrderStatusCancelled, orderID, from)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.statusWriteFailure(ctx, tx, orderID)
	}

	var items []models.OrderItem
	err = tx.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	if err != nil {
		return err
	}

	for _, item := range items {
		_, err = tx.ExecContext(ctx,
			"UPDATE products SET stock_quantity = stock_quantity + $1 WHERE id = $2",
			item.Quantity, item.ProductID)
		if err != nil {
			return fmt.Errorf("failed to restock product %d: %w", item.ProductID, err)
		}
	}

	return tx.Commit()
}

// statusWriteFailure explains a guarded status update that touched no rows:
// either the order is gone or its status moved under the caller.
func (s *Store) statusWriteFailure(ctx context.Context, q sqlx.QueryerContext, orderID int64) error {
	var current models.OrderStatus
	err := sqlx.GetContext(ctx, q, &current, "SELECT status FROM orders WHERE id = $1", orderID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("order %d is %s: %w", orderID, current, ErrStatusConflict)
}

func toNullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
