package service

import (
	"context"
	"fmt"
	"time"

	"geowatch/internal/apperr"
	"geowatch/internal/models"
	"geowatch/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AOIStore is the storage surface the AOI service needs.
type AOIStore interface {
	CreateAOI(ctx context.Context, aoi *models.AOI) error
	GetAOIForUser(ctx context.Context, userID, id uuid.UUID) (*models.AOI, error)
	ListAOIsByUser(ctx context.Context, userID uuid.UUID) ([]models.AOI, error)
	ActivateAOI(ctx context.Context, id uuid.UUID, start, end time.Time) (bool, error)
	GetDetectionForUser(ctx context.Context, userID, id uuid.UUID) (*models.EncroachmentDetection, error)
	ConfirmDetection(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	ListDetectionsByAOI(ctx context.Context, aoiID uuid.UUID) ([]models.EncroachmentDetection, error)
}

// AOIService manages AOI lifecycle outside the order flow: creation, explicit
// activation and manual detection confirmation.
type AOIService struct {
	store  AOIStore
	logger *zap.Logger
}

// NewAOIService creates a new AOI service
func NewAOIService(store AOIStore) *AOIService {
	return &AOIService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// CreateAOI registers a new AOI in in_cart status. Cart enrollment is a
// separate, independently retriable step.
func (as *AOIService) CreateAOI(ctx context.Context, userID uuid.UUID, name string, geometry models.Polygon, cadence models.Cadence) (*models.AOI, error) {
	if !cadence.Valid() {
		return nil, fmt.Errorf("unknown cadence %q: %w", cadence, apperr.ErrInvalidState)
	}
	if len(geometry.Polygon) == 0 {
		return nil, fmt.Errorf("empty geometry: %w", apperr.ErrInvalidState)
	}

	aoi := &models.AOI{
		ID:       uuid.New(),
		UserID:   userID,
		Name:     name,
		Geometry: geometry,
		Cadence:  cadence,
		Status:   models.AOIStatusInCart,
	}
	if err := as.store.CreateAOI(ctx, aoi); err != nil {
		return nil, fmt.Errorf("failed to create aoi: %w", err)
	}

	as.logger.Info("AOI created",
		zap.String("aoi_id", aoi.ID.String()),
		zap.String("name", name))
	return aoi, nil
}

// GetAOI retrieves an AOI scoped to its owner
func (as *AOIService) GetAOI(ctx context.Context, userID, aoiID uuid.UUID) (*models.AOI, error) {
	return as.store.GetAOIForUser(ctx, userID, aoiID)
}

// ListAOIs retrieves the owner's AOIs
func (as *AOIService) ListAOIs(ctx context.Context, userID uuid.UUID) ([]models.AOI, error) {
	return as.store.ListAOIsByUser(ctx, userID)
}

// Activate moves a paid, inactive AOI to active. The monitoring window runs
// from now for one cadence period.
func (as *AOIService) Activate(ctx context.Context, userID, aoiID uuid.UUID) (*models.AOI, error) {
	ctx, span := util.StartSpan(ctx, "AOIService.Activate")
	defer span.End()

	aoi, err := as.store.GetAOIForUser(ctx, userID, aoiID)
	if err != nil {
		return nil, err
	}

	start := time.Now().UTC()
	end := start.Add(aoi.Cadence.Period())
	activated, err := as.store.ActivateAOI(ctx, aoiID, start, end)
	if err != nil {
		return nil, err
	}
	if !activated {
		return nil, fmt.Errorf("aoi %s is not activatable (status=%s, paid=%t): %w",
			aoiID, aoi.Status, aoi.IsPaid, apperr.ErrInvalidState)
	}

	as.logger.Info("AOI activated",
		zap.String("aoi_id", aoiID.String()),
		zap.Time("end_date", end))
	return as.store.GetAOIForUser(ctx, userID, aoiID)
}

// ConfirmDetection is the manual confirmation step for a detector finding.
// It is never triggered by detection itself.
func (as *AOIService) ConfirmDetection(ctx context.Context, userID, detectionID uuid.UUID) (*models.EncroachmentDetection, error) {
	if _, err := as.store.GetDetectionForUser(ctx, userID, detectionID); err != nil {
		return nil, err
	}

	confirmed, err := as.store.ConfirmDetection(ctx, detectionID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !confirmed {
		as.logger.Info("Detection already confirmed", zap.String("detection_id", detectionID.String()))
	}
	return as.store.GetDetectionForUser(ctx, userID, detectionID)
}

// ListDetections retrieves detections for an AOI, scoped to its owner
func (as *AOIService) ListDetections(ctx context.Context, userID, aoiID uuid.UUID) ([]models.EncroachmentDetection, error) {
	if _, err := as.store.GetAOIForUser(ctx, userID, aoiID); err != nil {
		return nil, err
	}
	return as.store.ListDetectionsByAOI(ctx, aoiID)
}
