package service

import (
	"context"
	"fmt"

	"agrimarket/internal/cart"
	"agrimarket/internal/models"
	"agrimarket/internal/util"

	"go.uber.org/zap"
)

// CartStore persists session carts
type CartStore interface {
	Get(ctx context.Context, sessionID string) (*cart.Cart, error)
	Save(ctx context.Context, c *cart.Cart) error
	Clear(ctx context.Context, sessionID string) error
}

// ProductReader is the slice of the catalog the cart needs
type ProductReader interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
}

// CartService accumulates candidate purchases for a session before checkout.
// It never mutates the catalog; stock is only read for validation.
type CartService struct {
	carts   CartStore
	catalog ProductReader
	logger  *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(carts CartStore, catalog ProductReader) *CartService {
	return &CartService{
		carts:   carts,
		catalog: catalog,
		logger:  util.GetLogger(),
	}
}

// Add puts quantity units of a product into the session's cart. Adding a
// product already present merges quantities; the unit price snapshot taken on
// first add is kept. Fails with ErrOutOfStock when the combined quantity
// exceeds current stock or the product is inactive, leaving the cart as it was.
func (s *CartService) Add(ctx context.Context, sessionID string, productID int64, quantity int) (*cart.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Add")
	defer span.End()

	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.catalog.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	c, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	requested := quantity
	if existing := c.Find(productID); existing != nil {
		requested += existing.Quantity
	}
	if !product.IsActive || product.StockQuantity < requested {
		return nil, fmt.Errorf("%q: %w", product.Name, ErrOutOfStock)
	}

	c.Add(cart.Item{
		ProductID: product.ID,
		Name:      product.Name,
		UnitPrice: product.Price,
		Quantity:  quantity,
	})

	if err := s.carts.Save(ctx, c); err != nil {
		return nil, err
	}

	util.CartOperationsTotal.WithLabelValues("add").Inc()
	s.logger.Debug("Added to cart",
		zap.String("session_id", sessionID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity))

	return c, nil
}

// UpdateQuantity replaces the stored quantity of a cart entry
func (s *CartService) UpdateQuantity(ctx context.Context, sessionID string, productID int64, quantity int) (*cart.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateQuantity")
	defer span.End()

	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	c, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !c.SetQuantity(productID, quantity) {
		return nil, ErrCartItemNotFound
	}

	if err := s.carts.Save(ctx, c); err != nil {
		return nil, err
	}

	util.CartOperationsTotal.WithLabelValues("update").Inc()
	return c, nil
}

// Remove drops a product from the cart; removing an absent product is a no-op
func (s *CartService) Remove(ctx context.Context, sessionID string, productID int64) (*cart.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Remove")
	defer span.End()

	c, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if c.Remove(productID) {
		if err := s.carts.Save(ctx, c); err != nil {
			return nil, err
		}
		util.CartOperationsTotal.WithLabelValues("remove").Inc()
	}
	return c, nil
}

// Get returns the session's cart
func (s *CartService) Get(ctx context.Context, sessionID string) (*cart.Cart, error) {
	return s.carts.Get(ctx, sessionID)
}

// Clear empties the cart, used on explicit cancellation
func (s *CartService) Clear(ctx context.Context, sessionID string) error {
	ctx, span := util.StartSpan(ctx, "CartService.Clear")
	defer span.End()

	if err := s.carts.Clear(ctx, sessionID); err != nil {
		return err
	}
	util.CartOperationsTotal.WithLabelValues("clear").Inc()
	return nil
}
