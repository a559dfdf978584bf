package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"agrimarket/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, used by tests
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %d: %w", id, ErrProductNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListMarketplaceProducts retrieves purchasable products: active with stock
// on hand, optionally filtered by a name search and a category.
func (s *Store) ListMarketplaceProducts(ctx context.Context, search, category string) ([]models.Product, error) {
	query := "SELECT * FROM products WHERE is_active = TRUE AND stock_quantity > 0"
	args := []interface{}{}

	if search != "" {
		args = append(args, "%"+search+"%")
		query += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}
	if category != "" {
		args = append(args, category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	query += " ORDER BY name"

	var products []models.Product
	err := s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// ListAgrovetProducts retrieves an agrovet's own catalog, including inactive
// entries when requested (the inventory screen's "show inactive" toggle).
func (s *Store) ListAgrovetProducts(ctx context.Context, agrovetID int64, includeInactive bool, search string) ([]models.Product, error) {
	query := "SELECT * FROM products WHERE agrovet_id = $1"
	args := []interface{}{agrovetID}

	if !includeInactive {
		query += " AND is_active = TRUE"
	}
	if search != "" {
		args = append(args, "%"+search+"%")
		query += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}
	query += " ORDER BY name"

	var products []models.Product
	err := s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// CreateProduct creates a new catalog entry
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, description, category, price, stock_quantity, image_url, manufacturer, agrovet_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, product, query,
		product.Name, product.Description, product.Category, product.Price,
		product.StockQuantity, product.ImageURL, product.Manufacturer,
		product.AgrovetID, product.IsActive)
}

// UpdateProduct updates a product owned by the given agrovet
func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $1, description = $2, category = $3, price = $4,
		    stock_quantity = $5, image_url = $6, manufacturer = $7, is_active = $8
		WHERE id = $9 AND agrovet_id = $10`,
		product.Name, product.Description, product.Category, product.Price,
		product.StockQuantity, product.ImageURL, product.Manufacturer,
		product.IsActive, product.ID, product.AgrovetID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("product %d: %w", product.ID, ErrProductNotFound)
	}
	return nil
}

// SetProductActive toggles a product's activation flag
func (s *Store) SetProductActive(ctx context.Context, id, agrovetID int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET is_active = $1 WHERE id = $2 AND agrovet_id = $3",
		active, id, agrovetID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("product %d: %w", id, ErrProductNotFound)
	}
	return nil
}

// DeleteProduct hard-deletes a product owned by the given agrovet. It fails
// with ErrProductReferenced once order items point at the product; callers
// deactivate instead in that case.
func (s *Store) DeleteProduct(ctx context.Context, id, agrovetID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var referenced bool
	err = tx.GetContext(ctx, &referenced,
		"SELECT EXISTS(SELECT 1 FROM order_items WHERE product_id = $1)", id)
	if err != nil {
		return err
	}
	if referenced {
		return ErrProductReferenced
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM products WHERE id = $1 AND agrovet_id = $2", id, agrovetID)
	if err != nil {
		// A checkout can commit an order item between the existence check and
		// the delete; the foreign key catches what the check missed.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrProductReferenced
		}
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("product %d: %w", id, ErrProductNotFound)
	}

	return tx.Commit()
}
