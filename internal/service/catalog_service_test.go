package service

import (
	"context"
	"testing"

	"agrimarket/internal/models"
	"agrimarket/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCatalogStore struct {
	mock.Mock
}

func (m *mockCatalogStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *mockCatalogStore) ListMarketplaceProducts(ctx context.Context, search, category string) ([]models.Product, error) {
	args := m.Called(ctx, search, category)
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *mockCatalogStore) ListAgrovetProducts(ctx context.Context, agrovetID int64, includeInactive bool, search string) ([]models.Product, error) {
	args := m.Called(ctx, agrovetID, includeInactive, search)
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *mockCatalogStore) CreateProduct(ctx context.Context, p *models.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockCatalogStore) UpdateProduct(ctx context.Context, p *models.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockCatalogStore) SetProductActive(ctx context.Context, id, agrovetID int64, active bool) error {
	args := m.Called(ctx, id, agrovetID, active)
	return args.Error(0)
}

func (m *mockCatalogStore) DeleteProduct(ctx context.Context, id, agrovetID int64) error {
	args := m.Called(ctx, id, agrovetID)
	return args.Error(0)
}

func validInput() ProductInput {
	return ProductInput{
		Name:          "Organic Fertilizer 5kg",
		Category:      "Fertilizers",
		Price:         decimal.RequireFromString("25.99"),
		StockQuantity: 100,
	}
}

func TestCreateProductRejectsNonPositivePrice(t *testing.T) {
	svc := NewCatalogService(new(mockCatalogStore))

	in := validInput()
	in.Price = decimal.Zero
	_, err := svc.CreateProduct(context.Background(), 2, in)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	in.Price = decimal.RequireFromString("-1.50")
	_, err = svc.CreateProduct(context.Background(), 2, in)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestCreateProductRejectsUnknownCategory(t *testing.T) {
	svc := NewCatalogService(new(mockCatalogStore))

	in := validInput()
	in.Category = "Snacks"
	_, err := svc.CreateProduct(context.Background(), 2, in)
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestCreateProduct(t *testing.T) {
	catalogStore := new(mockCatalogStore)
	svc := NewCatalogService(catalogStore)

	catalogStore.On("CreateProduct", mock.Anything, mock.MatchedBy(func(p *models.Product) bool {
		return p.AgrovetID == 2 && p.IsActive && p.Name == "Organic Fertilizer 5kg"
	})).Return(nil)

	product, err := svc.CreateProduct(context.Background(), 2, validInput())
	require.NoError(t, err)
	assert.True(t, product.IsActive)
}

func TestUpdateProductOwnerCheck(t *testing.T) {
	catalogStore := new(mockCatalogStore)
	svc := NewCatalogService(catalogStore)

	catalogStore.On("GetProductByID", mock.Anything, int64(3)).Return(&models.Product{
		ID: 3, AgrovetID: 2, IsActive: true,
	}, nil)

	_, err := svc.UpdateProduct(context.Background(), 3, 99, models.RoleAgrovet, validInput())
	assert.ErrorIs(t, err, ErrForbidden)

	catalogStore.AssertNotCalled(t, "UpdateProduct", mock.Anything, mock.Anything)
}

func TestDeleteProductFallsBackToDeactivation(t *testing.T) {
	catalogStore := new(mockCatalogStore)
	svc := NewCatalogService(catalogStore)

	catalogStore.On("GetProductByID", mock.Anything, int64(3)).Return(&models.Product{
		ID: 3, AgrovetID: 2, IsActive: true,
	}, nil)
	catalogStore.On("DeleteProduct", mock.Anything, int64(3), int64(2)).Return(store.ErrProductReferenced)
	catalogStore.On("SetProductActive", mock.Anything, int64(3), int64(2), false).Return(nil)

	deactivated, err := svc.DeleteProduct(context.Background(), 3, 2, models.RoleAgrovet)
	require.NoError(t, err)
	assert.True(t, deactivated)
	catalogStore.AssertExpectations(t)
}

func TestDeleteProductUnreferencedHardDeletes(t *testing.T) {
	catalogStore := new(mockCatalogStore)
	svc := NewCatalogService(catalogStore)

	catalogStore.On("GetProductByID", mock.Anything, int64(3)).Return(&models.Product{
		ID: 3, AgrovetID: 2, IsActive: true,
	}, nil)
	catalogStore.On("DeleteProduct", mock.Anything, int64(3), int64(2)).Return(nil)

	deactivated, err := svc.DeleteProduct(context.Background(), 3, 2, models.RoleAgrovet)
	require.NoError(t, err)
	assert.False(t, deactivated)
	catalogStore.AssertNotCalled(t, "SetProductActive", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMarketplaceRejectsUnknownCategoryFilter(t *testing.T) {
	svc := NewCatalogService(new(mockCatalogStore))

	_, err := svc.Marketplace(context.Background(), "", "Snacks")
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestMarketplaceAllCategoryMeansNoFilter(t *testing.T) {
	catalogStore := new(mockCatalogStore)
	svc := NewCatalogService(catalogStore)

	catalogStore.On("ListMarketplaceProducts", mock.Anything, "fert", "").
		Return([]models.Product{}, nil)

	_, err := svc.Marketplace(context.Background(), "fert", "All")
	assert.NoError(t, err)
	catalogStore.AssertExpectations(t)
}
