package service

import (
	"context"

	"agrimarket/internal/diagnosis"
	"agrimarket/internal/models"
	"agrimarket/internal/util"

	"go.uber.org/zap"
)

// Analyzer is the AI collaborator behind disease detection
type Analyzer interface {
	AnalyzePlantImage(ctx context.Context, image []byte) *diagnosis.Result
	Advice(ctx context.Context, question, contextText string) (string, error)
}

// DetectionStore persists diagnosis history
type DetectionStore interface {
	CreateDetection(ctx context.Context, detection *models.DiseaseDetection) error
	ListDetectionsByUser(ctx context.Context, userID int64) ([]models.DiseaseDetection, error)
}

// DiagnosisService runs plant photos through the AI analyzer and keeps the
// per-farmer history. Only diagnostic results are persisted; error-flagged
// fallbacks are returned to the caller but never enter the history.
type DiagnosisService struct {
	analyzer Analyzer
	store    DetectionStore
	logger   *zap.Logger
}

// NewDiagnosisService creates a new diagnosis service
func NewDiagnosisService(analyzer Analyzer, detectionStore DetectionStore) *DiagnosisService {
	return &DiagnosisService{
		analyzer: analyzer,
		store:    detectionStore,
		logger:   util.GetLogger(),
	}
}

// Analyze diagnoses a plant photo for the given farmer. The returned result
// is always usable for display; Saved reports whether it entered the history.
func (s *DiagnosisService) Analyze(ctx context.Context, userID int64, image []byte, imagePath string) (*diagnosis.Result, bool, error) {
	ctx, span := util.StartSpan(ctx, "DiagnosisService.Analyze")
	defer span.End()

	result := s.analyzer.AnalyzePlantImage(ctx, image)
	if !result.Diagnostic() {
		util.DiagnosisRequestsTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("Diagnosis not saved",
			zap.Int64("user_id", userID),
			zap.String("error", result.Error))
		return result, false, nil
	}

	detection := &models.DiseaseDetection{
		UserID:          userID,
		PlantType:       result.PlantType,
		DiseaseName:     result.DiseaseName,
		ConfidenceScore: result.Confidence,
		Severity:        result.Severity,
		ImagePath:       imagePath,
		Symptoms:        result.Symptoms,
		Causes:          result.Causes,
		Treatment:       result.Treatment,
		Prevention:      result.Prevention,
	}
	if err := s.store.CreateDetection(ctx, detection); err != nil {
		util.DiagnosisRequestsTotal.WithLabelValues("store_error").Inc()
		return result, false, err
	}

	util.DiagnosisRequestsTotal.WithLabelValues("success").Inc()
	s.logger.Info("Diagnosis saved",
		zap.Int64("user_id", userID),
		zap.String("disease", result.DiseaseName),
		zap.Float64("confidence", result.Confidence))
	return result, true, nil
}

// History returns a farmer's saved diagnoses, newest first
func (s *DiagnosisService) History(ctx context.Context, userID int64) ([]models.DiseaseDetection, error) {
	return s.store.ListDetectionsByUser(ctx, userID)
}

// Advice answers a free-form farming question via the AI collaborator
func (s *DiagnosisService) Advice(ctx context.Context, question, contextText string) (string, error) {
	ctx, span := util.StartSpan(ctx, "DiagnosisService.Advice")
	defer span.End()
	return s.analyzer.Advice(ctx, question, contextText)
}
