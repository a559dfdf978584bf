package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agrimarket/internal/models"
	"agrimarket/internal/store"
	"agrimarket/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderStore is the persistence surface the order workflow needs
type OrderStore interface {
	CheckoutTx(ctx context.Context, p store.CheckoutParams) (*store.CheckoutResult, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetOrdersByFarmerID(ctx context.Context, farmerID int64, status *models.OrderStatus) ([]models.Order, error)
	GetOrdersByAgrovetID(ctx context.Context, agrovetID int64, status *models.OrderStatus) ([]models.Order, error)
	ListOrders(ctx context.Context, status *models.OrderStatus) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, from, to models.OrderStatus) error
	CancelOrderRestockTx(ctx context.Context, orderID int64, from models.OrderStatus) error
}

// EventPublisher publishes domain events after commits
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishLowStock(ctx context.Context, event *models.LowStockEvent) error
}

// OrderPolicy captures the configurable workflow decisions: whether the
// status transition table is enforced and whether cancellation restocks.
type OrderPolicy struct {
	StrictStatusTransitions bool
	RestockOnCancel         bool
	LowStockThreshold       int
}

// OrderService owns the cart-to-order transaction path and the order status
// workflow.
type OrderService struct {
	store     OrderStore
	carts     CartStore
	publisher EventPublisher
	policy    OrderPolicy
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(orderStore OrderStore, carts CartStore, publisher EventPublisher, policy OrderPolicy) *OrderService {
	return &OrderService{
		store:     orderStore,
		carts:     carts,
		publisher: publisher,
		policy:    policy,
		logger:    util.GetLogger(),
	}
}

// Checkout converts the session's cart into a PENDING marketplace order.
// The cart's snapshotted unit prices are what get persisted, not the live
// catalog prices. On success the cart is cleared.
func (s *OrderService) Checkout(ctx context.Context, sessionID string, farmerID int64, deliveryAddress, notes string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Checkout")
	defer span.End()

	if strings.TrimSpace(deliveryAddress) == "" {
		util.CheckoutsFailedTotal.WithLabelValues("missing_address").Inc()
		return nil, ErrMissingDeliveryAddress
	}

	return s.checkout(ctx, sessionID, checkoutIntent{
		farmerID:        &farmerID,
		status:          models.OrderStatusPending,
		deliveryAddress: deliveryAddress,
		notes:           notes,
		pointOfSale:     false,
	})
}

// CompleteSale converts the session's cart into a COMPLETED point-of-sale
// order: payment is taken in person, so PENDING/PROCESSING are bypassed. The
// purchaser is optional (walk-in customers) and the delivery address is the
// in-store sentinel.
func (s *OrderService) CompleteSale(ctx context.Context, sessionID string, agrovetID int64, customerID *int64, paymentMethod, notes string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CompleteSale")
	defer span.End()

	saleNotes := fmt.Sprintf("Payment: %s.", paymentMethod)
	if notes != "" {
		saleNotes += " " + notes
	}

	return s.checkout(ctx, sessionID, checkoutIntent{
		farmerID:        customerID,
		agrovetID:       &agrovetID,
		status:          models.OrderStatusCompleted,
		deliveryAddress: models.DeliveryAddressInStore,
		notes:           saleNotes,
		pointOfSale:     true,
	})
}

type checkoutIntent struct {
	farmerID        *int64
	agrovetID       *int64
	status          models.OrderStatus
	deliveryAddress string
	notes           string
	pointOfSale     bool
}

func (s *OrderService) checkout(ctx context.Context, sessionID string, intent checkoutIntent) (*models.Order, error) {
	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	c, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if c.IsEmpty() {
		util.CheckoutsFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, ErrEmptyCart
	}

	lines := make([]store.CheckoutLine, 0, len(c.Items))
	for _, item := range c.Items {
		lines = append(lines, store.CheckoutLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	result, err := s.store.CheckoutTx(ctx, store.CheckoutParams{
		FarmerID:        intent.farmerID,
		AgrovetID:       intent.agrovetID,
		Status:          intent.status,
		DeliveryAddress: intent.deliveryAddress,
		Notes:           intent.notes,
		Total:           c.Total(),
		Lines:           lines,
	})
	if err != nil {
		var stockErr *store.InsufficientStockError
		if errors.As(err, &stockErr) {
			util.CheckoutsFailedTotal.WithLabelValues("insufficient_stock").Inc()
			s.logger.Info("Checkout rejected",
				zap.String("session_id", sessionID),
				zap.Int64("product_id", stockErr.ProductID),
				zap.Int("requested", stockErr.Requested),
				zap.Int("available", stockErr.Available))
			return nil, err
		}
		util.CheckoutsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("checkout transaction failed: %w", err)
	}

	if err := s.carts.Clear(ctx, sessionID); err != nil {
		// The order is committed; a stale cart only haunts this session.
		s.logger.Error("Failed to clear cart after checkout",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	order := result.Order
	if intent.pointOfSale {
		util.POSSalesTotal.Inc()
	} else {
		util.OrdersPlacedTotal.Inc()
	}
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.String("status", string(order.Status)),
		zap.String("total", order.TotalAmount.String()),
		zap.Bool("point_of_sale", intent.pointOfSale))

	s.publishOrderPlaced(ctx, result, intent.pointOfSale)
	s.flagLowStock(ctx, result.Stock)

	return order, nil
}

func (s *OrderService) publishOrderPlaced(ctx context.Context, result *store.CheckoutResult, pointOfSale bool) {
	order := result.Order
	items := make([]models.OrderLineData, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, models.OrderLineData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
		})
	}

	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		TotalAmount: order.TotalAmount,
		Status:      order.Status,
		PointOfSale: pointOfSale,
		Items:       items,
	}
	if order.FarmerID.Valid {
		farmerID := order.FarmerID.Int64
		event.FarmerID = &farmerID
	}
	if order.AgrovetID.Valid {
		agrovetID := order.AgrovetID.Int64
		event.AgrovetID = &agrovetID
	}

	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}
}

func (s *OrderService) flagLowStock(ctx context.Context, stock []store.StockLevel) {
	for _, level := range stock {
		if level.Remaining > s.policy.LowStockThreshold {
			continue
		}
		util.LowStockAlertsTotal.Inc()
		event := &models.LowStockEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeLowStock,
				Timestamp: time.Now(),
			},
			ProductID: level.ProductID,
			Name:      level.Name,
			AgrovetID: level.AgrovetID,
			Remaining: level.Remaining,
		}
		if err := s.publisher.PublishLowStock(ctx, event); err != nil {
			s.logger.Error("Failed to publish LowStock event", zap.Error(err))
		}
	}
}

// GetOrder retrieves an order with its items, restricted to the purchaser,
// the fulfilling agrovet or an admin.
func (s *OrderService) GetOrder(ctx context.Context, orderID, actorID int64, actorRole string) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	if !canViewOrder(order, actorID, actorRole) {
		return nil, nil, ErrForbidden
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

func canViewOrder(order *models.Order, actorID int64, actorRole string) bool {
	if actorRole == models.RoleAdmin {
		return true
	}
	if order.FarmerID.Valid && order.FarmerID.Int64 == actorID {
		return true
	}
	return order.AgrovetID.Valid && order.AgrovetID.Int64 == actorID
}

// ListFarmerOrders retrieves the purchaser's own orders
func (s *OrderService) ListFarmerOrders(ctx context.Context, farmerID int64, status *models.OrderStatus) ([]models.Order, error) {
	return s.store.GetOrdersByFarmerID(ctx, farmerID, status)
}

// ListAgrovetOrders retrieves the orders an agrovet fulfills
func (s *OrderService) ListAgrovetOrders(ctx context.Context, agrovetID int64, status *models.OrderStatus) ([]models.Order, error) {
	return s.store.GetOrdersByAgrovetID(ctx, agrovetID, status)
}

// ListAllOrders retrieves every order (admin only)
func (s *OrderService) ListAllOrders(ctx context.Context, status *models.OrderStatus) ([]models.Order, error) {
	return s.store.ListOrders(ctx, status)
}

// ParseStatus converts a request string into an order status
func ParseStatus(raw string) (models.OrderStatus, error) {
	status := models.OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("%q: %w", raw, ErrUnknownStatus)
	}
	return status, nil
}

// UpdateStatus moves an order through the workflow. Only the fulfilling
// agrovet or an admin may transition it; under the strict policy the
// transition table is enforced, so terminal orders stay terminal. When the
// restock-on-cancel policy is on, cancelling returns every line's quantity to
// stock in the same transaction.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, actorID int64, actorRole string, next models.OrderStatus) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	if !next.Valid() {
		return nil, fmt.Errorf("%q: %w", next, ErrUnknownStatus)
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if actorRole != models.RoleAdmin {
		if !order.AgrovetID.Valid || order.AgrovetID.Int64 != actorID {
			return nil, ErrForbidden
		}
	}

	if s.policy.StrictStatusTransitions && !order.Status.CanTransitionTo(next) {
		return nil, &InvalidStatusTransitionError{From: order.Status, To: next}
	}

	// The store write is guarded by the status just read, so a transition
	// raced by another request loses at the database rather than here: the
	// table check alone cannot stop two requests that both read the same
	// pre-transition status.
	restocked := false
	if next == models.OrderStatusCancelled && s.policy.RestockOnCancel {
		err = s.store.CancelOrderRestockTx(ctx, orderID, order.Status)
		restocked = err == nil
	} else {
		err = s.store.UpdateOrderStatus(ctx, orderID, order.Status, next)
	}
	if errors.Is(err, store.ErrStatusConflict) {
		if fresh, ferr := s.store.GetOrderByID(ctx, orderID); ferr == nil {
			return nil, &InvalidStatusTransitionError{From: fresh.Status, To: next}
		}
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	if next == models.OrderStatusCancelled {
		util.OrdersCancelledTotal.Inc()
	}
	s.logger.Info("Order status updated",
		zap.Int64("order_id", orderID),
		zap.String("from", string(order.Status)),
		zap.String("to", string(next)),
		zap.Bool("restocked", restocked))

	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
		},
		OrderID:   orderID,
		OldStatus: order.Status,
		NewStatus: next,
		ActorID:   actorID,
		Restocked: restocked,
	}
	if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}

	order.Status = next
	return order, nil
}
