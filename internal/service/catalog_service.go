package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"agrimarket/internal/models"
	"agrimarket/internal/store"
	"agrimarket/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogStore is the persistence surface for product management
type CatalogStore interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	ListMarketplaceProducts(ctx context.Context, search, category string) ([]models.Product, error)
	ListAgrovetProducts(ctx context.Context, agrovetID int64, includeInactive bool, search string) ([]models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	SetProductActive(ctx context.Context, id, agrovetID int64, active bool) error
	DeleteProduct(ctx context.Context, id, agrovetID int64) error
}

// ProductInput carries a create/update request for a catalog entry
type ProductInput struct {
	Name          string
	Description   string
	Category      string
	Price         decimal.Decimal
	StockQuantity int
	ImageURL      string
}

// CatalogService manages each agrovet's product listings and the shared
// marketplace view of them.
type CatalogService struct {
	store  CatalogStore
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(catalogStore CatalogStore) *CatalogService {
	return &CatalogService{
		store:  catalogStore,
		logger: util.GetLogger(),
	}
}

func validateProductInput(in ProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("product name is required")
	}
	if !in.Price.IsPositive() {
		return ErrInvalidPrice
	}
	if in.StockQuantity < 0 {
		return fmt.Errorf("stock quantity cannot be negative")
	}
	for _, c := range models.ProductCategories {
		if c == in.Category {
			return nil
		}
	}
	return fmt.Errorf("%q: %w", in.Category, ErrInvalidCategory)
}

// CreateProduct adds a product to the owning agrovet's catalog
func (s *CatalogService) CreateProduct(ctx context.Context, agrovetID int64, in ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	if err := validateProductInput(in); err != nil {
		return nil, err
	}

	product := &models.Product{
		AgrovetID:     agrovetID,
		Name:          in.Name,
		Description:   in.Description,
		Category:      in.Category,
		Price:         in.Price,
		StockQuantity: in.StockQuantity,
		ImageURL:      in.ImageURL,
		IsActive:      true,
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created",
		zap.Int64("product_id", product.ID),
		zap.Int64("agrovet_id", agrovetID),
		zap.String("name", product.Name))
	return product, nil
}

// UpdateProduct replaces a product's listing fields. Only the owning agrovet
// or an admin may update it.
func (s *CatalogService) UpdateProduct(ctx context.Context, productID, actorID int64, actorRole string, in ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduct")
	defer span.End()

	if err := validateProductInput(in); err != nil {
		return nil, err
	}

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if actorRole != models.RoleAdmin && product.AgrovetID != actorID {
		return nil, ErrForbidden
	}

	product.Name = in.Name
	product.Description = in.Description
	product.Category = in.Category
	product.Price = in.Price
	product.StockQuantity = in.StockQuantity
	product.ImageURL = in.ImageURL

	if err := s.store.UpdateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return product, nil
}

// DeleteProduct removes a product from the catalog. A product referenced by
// any order line cannot be deleted without orphaning history, so it is
// deactivated instead; the caller learns which happened.
func (s *CatalogService) DeleteProduct(ctx context.Context, productID, actorID int64, actorRole string) (deactivated bool, err error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.DeleteProduct")
	defer span.End()

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		return false, err
	}
	if actorRole != models.RoleAdmin && product.AgrovetID != actorID {
		return false, ErrForbidden
	}

	err = s.store.DeleteProduct(ctx, productID, product.AgrovetID)
	if errors.Is(err, store.ErrProductReferenced) {
		if err := s.store.SetProductActive(ctx, productID, product.AgrovetID, false); err != nil {
			return false, fmt.Errorf("failed to deactivate product: %w", err)
		}
		s.logger.Info("Product deactivated instead of deleted",
			zap.Int64("product_id", productID))
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete product: %w", err)
	}
	return false, nil
}

// SetActive toggles a product's marketplace visibility. Deactivated products
// stay in the agrovet's inventory but cannot be browsed or purchased.
func (s *CatalogService) SetActive(ctx context.Context, productID, actorID int64, actorRole string, active bool) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.SetActive")
	defer span.End()

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		return err
	}
	if actorRole != models.RoleAdmin && product.AgrovetID != actorID {
		return ErrForbidden
	}
	return s.store.SetProductActive(ctx, productID, product.AgrovetID, active)
}

// GetProduct returns a single catalog entry
func (s *CatalogService) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	return s.store.GetProductByID(ctx, productID)
}

// Marketplace returns active, in-stock products across all agrovets,
// optionally narrowed by a search term and a category.
func (s *CatalogService) Marketplace(ctx context.Context, search, category string) ([]models.Product, error) {
	if category != "" && category != "All" {
		valid := false
		for _, c := range models.ProductCategories {
			if c == category {
				valid = true
				break
			}
		}
		if !valid {
			return nil, fmt.Errorf("%q: %w", category, ErrInvalidCategory)
		}
	} else {
		category = ""
	}
	return s.store.ListMarketplaceProducts(ctx, search, category)
}

// AgrovetInventory returns the products an agrovet owns, optionally with
// inactive entries and narrowed by a name search.
func (s *CatalogService) AgrovetInventory(ctx context.Context, agrovetID int64, includeInactive bool, search string) ([]models.Product, error) {
	return s.store.ListAgrovetProducts(ctx, agrovetID, includeInactive, search)
}
