package store

import (
	"context"
	"database/sql"
	"fmt"

	"agrimarket/internal/models"

	"github.com/shopspring/decimal"
)

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		"SELECT id, username, email, full_name, phone, role, location, is_active, created_at FROM users WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", id, ErrUserNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListFarmers retrieves active farmer accounts, optionally filtered by a
// name/username/location search (POS customer pick and CRM listing).
func (s *Store) ListFarmers(ctx context.Context, search string) ([]models.User, error) {
	query := `SELECT id, username, email, full_name, phone, role, location, is_active, created_at
		FROM users WHERE role = $1 AND is_active = TRUE`
	args := []interface{}{models.RoleFarmer}

	if search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		query += fmt.Sprintf(" AND (full_name ILIKE $%d OR username ILIKE $%d OR location ILIKE $%d)", n, n, n)
	}
	query += " ORDER BY full_name"

	var users []models.User
	err := s.db.SelectContext(ctx, &users, query, args...)
	return users, err
}

type customerRow struct {
	models.User
	TotalOrders int             `db:"total_orders"`
	TotalSpent  decimal.Decimal `db:"total_spent"`
}

// CustomerSummaries rolls up each farmer's order count and total spend with
// the given agrovet.
func (s *Store) CustomerSummaries(ctx context.Context, agrovetID int64, search string) ([]models.CustomerSummary, error) {
	query := `
		SELECT u.id, u.username, u.email, u.full_name, u.phone, u.role, u.location, u.is_active, u.created_at,
		       COUNT(o.id) AS total_orders,
		       COALESCE(SUM(o.total_amount), 0) AS total_spent
		FROM users u
		LEFT JOIN orders o ON o.farmer_id = u.id AND o.agrovet_id = $1
		WHERE u.role = $2 AND u.is_active = TRUE`
	args := []interface{}{agrovetID, models.RoleFarmer}

	if search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		query += fmt.Sprintf(" AND (u.full_name ILIKE $%d OR u.username ILIKE $%d OR u.location ILIKE $%d)", n, n, n)
	}
	query += " GROUP BY u.id ORDER BY total_spent DESC, u.full_name"

	var rows []customerRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	summaries := make([]models.CustomerSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, models.CustomerSummary{
			User:        row.User,
			TotalOrders: row.TotalOrders,
			TotalSpent:  row.TotalSpent,
		})
	}
	return summaries, nil
}

// CreateInteraction records a CRM interaction
func (s *Store) CreateInteraction(ctx context.Context, interaction *models.CustomerInteraction) error {
	query := `
		INSERT INTO customer_interactions (agrovet_id, farmer_id, interaction_type, notes)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, interaction, query,
		interaction.AgrovetID, interaction.FarmerID,
		interaction.InteractionType, interaction.Notes)
}

// ListInteractions retrieves an agrovet's CRM interactions, newest first
func (s *Store) ListInteractions(ctx context.Context, agrovetID int64) ([]models.CustomerInteraction, error) {
	var interactions []models.CustomerInteraction
	err := s.db.SelectContext(ctx, &interactions,
		"SELECT * FROM customer_interactions WHERE agrovet_id = $1 ORDER BY created_at DESC", agrovetID)
	return interactions, err
}

// CreateDetection stores a successful AI diagnosis
func (s *Store) CreateDetection(ctx context.Context, detection *models.DiseaseDetection) error {
	query := `
		INSERT INTO disease_detections (user_id, plant_type, disease_name, confidence_score, severity, image_path, symptoms, causes, treatment, prevention)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, detection, query,
		detection.UserID, detection.PlantType, detection.DiseaseName,
		detection.ConfidenceScore, detection.Severity, detection.ImagePath,
		detection.Symptoms, detection.Causes, detection.Treatment, detection.Prevention)
}

// ListDetectionsByUser retrieves a farmer's diagnosis history, newest first
func (s *Store) ListDetectionsByUser(ctx context.Context, userID int64) ([]models.DiseaseDetection, error) {
	var detections []models.DiseaseDetection
	err := s.db.SelectContext(ctx, &detections,
		"SELECT * FROM disease_detections WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return detections, err
}
