package service

import (
	"context"
	"fmt"
	"strings"

	"agrimarket/internal/models"
	"agrimarket/internal/util"

	"go.uber.org/zap"
)

// CRMStore is the persistence surface for customer relationship data
type CRMStore interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	ListFarmers(ctx context.Context, search string) ([]models.User, error)
	CustomerSummaries(ctx context.Context, agrovetID int64, search string) ([]models.CustomerSummary, error)
	CreateInteraction(ctx context.Context, interaction *models.CustomerInteraction) error
	ListInteractions(ctx context.Context, agrovetID int64) ([]models.CustomerInteraction, error)
}

// Interaction types recorded in the CRM log
var interactionTypes = map[string]bool{
	"purchase":     true,
	"inquiry":      true,
	"complaint":    true,
	"follow-up":    true,
	"consultation": true,
}

// CRMService gives agrovets a view of their farmer customers: who they are,
// what they have spent, and an interaction log.
type CRMService struct {
	store  CRMStore
	logger *zap.Logger
}

// NewCRMService creates a new CRM service
func NewCRMService(crmStore CRMStore) *CRMService {
	return &CRMService{
		store:  crmStore,
		logger: util.GetLogger(),
	}
}

// Customers returns the agrovet's customer roll-up, highest spend first
func (s *CRMService) Customers(ctx context.Context, agrovetID int64, search string) ([]models.CustomerSummary, error) {
	return s.store.CustomerSummaries(ctx, agrovetID, search)
}

// Farmers lists active farmer accounts for the POS customer picker
func (s *CRMService) Farmers(ctx context.Context, search string) ([]models.User, error) {
	return s.store.ListFarmers(ctx, search)
}

// RecordInteraction logs a CRM interaction with a farmer. The farmer must be
// an existing farmer account.
func (s *CRMService) RecordInteraction(ctx context.Context, agrovetID, farmerID int64, interactionType, notes string) (*models.CustomerInteraction, error) {
	ctx, span := util.StartSpan(ctx, "CRMService.RecordInteraction")
	defer span.End()

	interactionType = strings.ToLower(strings.TrimSpace(interactionType))
	if !interactionTypes[interactionType] {
		return nil, fmt.Errorf("unknown interaction type %q", interactionType)
	}

	farmer, err := s.store.GetUserByID(ctx, farmerID)
	if err != nil {
		return nil, err
	}
	if farmer.Role != models.RoleFarmer {
		return nil, fmt.Errorf("user %d is not a farmer", farmerID)
	}

	interaction := &models.CustomerInteraction{
		AgrovetID:       agrovetID,
		FarmerID:        farmerID,
		InteractionType: interactionType,
		Notes:           notes,
	}
	if err := s.store.CreateInteraction(ctx, interaction); err != nil {
		return nil, fmt.Errorf("failed to record interaction: %w", err)
	}

	s.logger.Info("Interaction recorded",
		zap.Int64("agrovet_id", agrovetID),
		zap.Int64("farmer_id", farmerID),
		zap.String("type", interactionType))
	return interaction, nil
}

// Interactions returns the agrovet's interaction log, newest first
func (s *CRMService) Interactions(ctx context.Context, agrovetID int64) ([]models.CustomerInteraction, error) {
	return s.store.ListInteractions(ctx, agrovetID)
}
