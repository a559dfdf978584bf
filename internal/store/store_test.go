package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"agrimarket/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(sqlx.NewDb(db, "sqlmock")), mock
}

const lockProductQuery = "SELECT name, stock_quantity, is_active, agrovet_id FROM products WHERE id = $1 FOR UPDATE"

func expectProductLock(mock sqlmock.Sqlmock, id int64, name string, stock int, active bool, agrovetID int64) {
	mock.ExpectQuery(regexp.QuoteMeta(lockProductQuery)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"name", "stock_quantity", "is_active", "agrovet_id"}).
			AddRow(name, stock, active, agrovetID))
}

func TestCheckoutTxCommitsOrderItemsAndDecrements(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	farmerID := int64(7)
	agrovetID := int64(2)
	// Cart lists product 3 before product 1; locks must still be taken in
	// ascending product-id order.
	lines := []CheckoutLine{
		{ProductID: 3, Quantity: 2, UnitPrice: decimal.RequireFromString("25.99")},
		{ProductID: 1, Quantity: 3, UnitPrice: decimal.RequireFromString("8.99")},
	}
	total := decimal.RequireFromString("78.95")

	mock.ExpectBegin()
	expectProductLock(mock, 1, "Tomato Seeds (Premium)", 200, true, agrovetID)
	expectProductLock(mock, 3, "Organic Fertilizer 5kg", 100, true, agrovetID)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			string(models.OrderStatusPending), "123 Farm Road", "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(10), now, now))

	// Items are written in cart order.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO order_items")).
		WithArgs(int64(10), int64(3), 2, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(100)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET stock_quantity = stock_quantity - $1 WHERE id = $2")).
		WithArgs(2, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO order_items")).
		WithArgs(int64(10), int64(1), 3, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(101)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET stock_quantity = stock_quantity - $1 WHERE id = $2")).
		WithArgs(3, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectCommit()

	result, err := store.CheckoutTx(ctx, CheckoutParams{
		FarmerID:        &farmerID,
		Status:          models.OrderStatusPending,
		DeliveryAddress: "123 Farm Road",
		Total:           total,
		Lines:           lines,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(10), result.Order.ID)
	assert.True(t, result.Order.TotalAmount.Equal(total))
	assert.Equal(t, models.OrderStatusPending, result.Order.Status)

	require.Len(t, result.Items, 2)
	assert.True(t, result.Items[0].Subtotal.Equal(decimal.RequireFromString("51.98")))
	assert.True(t, result.Items[1].Subtotal.Equal(decimal.RequireFromString("26.97")))

	require.Len(t, result.Stock, 2)
	assert.Equal(t, 197, result.Stock[0].Remaining)
	assert.Equal(t, 98, result.Stock[1].Remaining)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutTxInsufficientStockRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	farmerID := int64(7)

	mock.ExpectBegin()
	expectProductLock(mock, 5, "Garden Hoe", 3, true, 2)
	mock.ExpectRollback()

	_, err := store.CheckoutTx(context.Background(), CheckoutParams{
		FarmerID:        &farmerID,
		Status:          models.OrderStatusPending,
		DeliveryAddress: "123 Farm Road",
		Total:           decimal.RequireFromString("92.50"),
		Lines:           []CheckoutLine{{ProductID: 5, Quantity: 5, UnitPrice: decimal.RequireFromString("18.50")}},
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(5), stockErr.ProductID)
	assert.Equal(t, "Garden Hoe", stockErr.Name)
	assert.Equal(t, 5, stockErr.Requested)
	assert.Equal(t, 3, stockErr.Available)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutTxLastLineFailurePersistsNothing(t *testing.T) {
	store, mock := newMockStore(t)
	farmerID := int64(7)

	// The first line locks and validates clean; the last line comes up short.
	// No order row, no items and no decrement may survive — the only
	// statements the transaction is allowed to issue are the two locks and
	// the rollback.
	mock.ExpectBegin()
	expectProductLock(mock, 1, "Tomato Seeds (Premium)", 200, true, 2)
	expectProductLock(mock, 3, "Organic Fertilizer 5kg", 1, true, 2)
	mock.ExpectRollback()

	_, err := store.CheckoutTx(context.Background(), CheckoutParams{
		FarmerID:        &farmerID,
		Status:          models.OrderStatusPending,
		DeliveryAddress: "123 Farm Road",
		Total:           decimal.RequireFromString("78.95"),
		Lines: []CheckoutLine{
			{ProductID: 1, Quantity: 3, UnitPrice: decimal.RequireFromString("8.99")},
			{ProductID: 3, Quantity: 2, UnitPrice: decimal.RequireFromString("25.99")},
		},
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(3), stockErr.ProductID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutTxInactiveProductReadsAsZeroStock(t *testing.T) {
	store, mock := newMockStore(t)
	farmerID := int64(7)

	mock.ExpectBegin()
	expectProductLock(mock, 5, "Garden Hoe", 30, false, 2)
	mock.ExpectRollback()

	_, err := store.CheckoutTx(context.Background(), CheckoutParams{
		FarmerID:        &farmerID,
		Status:          models.OrderStatusPending,
		DeliveryAddress: "123 Farm Road",
		Total:           decimal.RequireFromString("18.50"),
		Lines:           []CheckoutLine{{ProductID: 5, Quantity: 1, UnitPrice: decimal.RequireFromString("18.50")}},
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 0, stockErr.Available)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutTxUnknownProduct(t *testing.T) {
	store, mock := newMockStore(t)
	farmerID := int64(7)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockProductQuery)).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "stock_quantity", "is_active", "agrovet_id"}))
	mock.ExpectRollback()

	_, err := store.CheckoutTx(context.Background(), CheckoutParams{
		FarmerID:        &farmerID,
		Status:          models.OrderStatusPending,
		DeliveryAddress: "123 Farm Road",
		Total:           decimal.RequireFromString("1.00"),
		Lines:           []CheckoutLine{{ProductID: 99, Quantity: 1, UnitPrice: decimal.RequireFromString("1.00")}},
	})

	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

const guardedStatusUpdate = "UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3"

func TestUpdateOrderStatus(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(guardedStatusUpdate)).
		WithArgs(string(models.OrderStatusProcessing), int64(10), string(models.OrderStatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateOrderStatus(context.Background(), 10, models.OrderStatusPending, models.OrderStatusProcessing)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusUnknownOrder(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(guardedStatusUpdate)).
		WithArgs(string(models.OrderStatusProcessing), int64(404), string(models.OrderStatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM orders WHERE id = $1")).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	err := store.UpdateOrderStatus(context.Background(), 404, models.OrderStatusPending, models.OrderStatusProcessing)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusConcurrentChange(t *testing.T) {
	store, mock := newMockStore(t)

	// The caller read PENDING, but another request moved the order first.
	mock.ExpectExec(regexp.QuoteMeta(guardedStatusUpdate)).
		WithArgs(string(models.OrderStatusProcessing), int64(10), string(models.OrderStatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM orders WHERE id = $1")).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(models.OrderStatusCancelled)))

	err := store.UpdateOrderStatus(context.Background(), 10, models.OrderStatusPending, models.OrderStatusProcessing)
	assert.ErrorIs(t, err, ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelOrderRestockTx(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(guardedStatusUpdate)).
		WithArgs(string(models.OrderStatusCancelled), int64(10), string(models.OrderStatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM order_items WHERE order_id = $1 ORDER BY id")).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "quantity", "unit_price", "subtotal"}).
			AddRow(int64(100), int64(10), int64(3), 2, "25.99", "51.98"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET stock_quantity = stock_quantity + $1 WHERE id = $2")).
		WithArgs(2, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.CancelOrderRestockTx(context.Background(), 10, models.OrderStatusPending)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelOrderRestockTxRacedCancelRestocksNothing(t *testing.T) {
	store, mock := newMockStore(t)

	// A duplicate cancel whose guarded flip touches no rows must roll back
	// without issuing a single restock update.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(guardedStatusUpdate)).
		WithArgs(string(models.OrderStatusCancelled), int64(10), string(models.OrderStatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM orders WHERE id = $1")).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(models.OrderStatusCancelled)))
	mock.ExpectRollback()

	err := store.CancelOrderRestockTx(context.Background(), 10, models.OrderStatusPending)
	assert.ErrorIs(t, err, ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteProductReferencedByOrders(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM order_items WHERE product_id = $1)")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := store.DeleteProduct(context.Background(), 3, 2)
	assert.ErrorIs(t, err, ErrProductReferenced)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteProductReferencedAfterExistenceCheck(t *testing.T) {
	store, mock := newMockStore(t)

	// A checkout commits an order item between the existence check and the
	// delete; the foreign-key violation must still surface as
	// ErrProductReferenced so callers fall back to deactivation.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM order_items WHERE product_id = $1)")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM products WHERE id = $1 AND agrovet_id = $2")).
		WithArgs(int64(3), int64(2)).
		WillReturnError(&pq.Error{Code: "23503"})
	mock.ExpectRollback()

	err := store.DeleteProduct(context.Background(), 3, 2)
	assert.ErrorIs(t, err, ErrProductReferenced)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteProductUnreferenced(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM order_items WHERE product_id = $1)")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM products WHERE id = $1 AND agrovet_id = $2")).
		WithArgs(int64(3), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.DeleteProduct(context.Background(), 3, 2)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
