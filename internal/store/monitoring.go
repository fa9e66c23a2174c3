package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"geowatch/internal/apperr"
	"geowatch/internal/models"

	"github.com/google/uuid"
)

// CreateJobIfAbsent atomically creates a running monitoring job for the AOI
// unless one is already pending or running. Mutual exclusion rests on the
// partial unique index on (aoi_id) WHERE status IN ('pending', 'running'):
// a NOT EXISTS subquery would leave a window under READ COMMITTED where two
// concurrent inserts both miss each other's uncommitted row, while the index
// makes the second insert a no-op even in that race.
func (s *Store) CreateJobIfAbsent(ctx context.Context, aoiID uuid.UUID) (*models.MonitoringJob, bool, error) {
	var job models.MonitoringJob
	err := s.db.GetContext(ctx, &job, `
		INSERT INTO monitoring_jobs (id, aoi_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (aoi_id) WHERE status IN ('pending', 'running') DO NOTHING
		RETURNING *`,
		uuid.New(), aoiID, models.JobStatusRunning)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &job, true, nil
}

// FinishJob resolves a job to a terminal status with its counters
func (s *Store) FinishJob(ctx context.Context, jobID uuid.UUID, status string, imagesProcessed, encroachments int, errMsg string, completedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE monitoring_jobs
		SET status = $1, images_processed = $2, encroachments_detected = $3,
			error_message = $4, completed_at = $5
		WHERE id = $6`,
		status, imagesProcessed, encroachments, errMsg, completedAt, jobID)
	return err
}

// GetJobByID retrieves a monitoring job by ID
func (s *Store) GetJobByID(ctx context.Context, id uuid.UUID) (*models.MonitoringJob, error) {
	var job models.MonitoringJob
	err := s.db.GetContext(ctx, &job, "SELECT * FROM monitoring_jobs WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("monitoring job %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// LastCompletedJob returns the most recent completed job for an AOI, or nil
// when the AOI has never completed a run
func (s *Store) LastCompletedJob(ctx context.Context, aoiID uuid.UUID) (*models.MonitoringJob, error) {
	var job models.MonitoringJob
	err := s.db.GetContext(ctx, &job, `
		SELECT * FROM monitoring_jobs
		WHERE aoi_id = $1 AND status = $2
		ORDER BY completed_at DESC LIMIT 1`, aoiID, models.JobStatusCompleted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobsByAOI retrieves jobs for an AOI, newest first
func (s *Store) ListJobsByAOI(ctx context.Context, aoiID uuid.UUID) ([]models.MonitoringJob, error) {
	var jobs []models.MonitoringJob
	err := s.db.SelectContext(ctx, &jobs,
		"SELECT * FROM monitoring_jobs WHERE aoi_id = $1 ORDER BY started_at DESC", aoiID)
	return jobs, err
}

// QueryImagery returns recent scenes intersecting the AOI geometry, below
// the cloud ceiling, newest first
func (s *Store) QueryImagery(ctx context.Context, geometry models.Polygon, since time.Time, maxCloudCoverage float64, limit int) ([]models.SatelliteImage, error) {
	var images []models.SatelliteImage
	err := s.db.SelectContext(ctx, &images, `
		SELECT * FROM satellite_images
		WHERE ST_Intersects(geometry, $1)
			AND acquisition_date >= $2
			AND cloud_coverage < $3
		ORDER BY acquisition_date DESC
		LIMIT $4`, geometry, since, maxCloudCoverage, limit)
	return images, err
}

// UpsertSatelliteImage inserts scene metadata, skipping known scene IDs
func (s *Store) UpsertSatelliteImage(ctx context.Context, img *models.SatelliteImage) (bool, error) {
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO satellite_images (id, scene_id, satellite, acquisition_date, cloud_coverage, geometry, image_url, thumbnail_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (scene_id) DO NOTHING`,
		img.ID, img.SceneID, img.Satellite, img.AcquisitionDate, img.CloudCoverage,
		img.Geometry, img.ImageURL, img.ThumbnailURL)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CreateDetection persists a detector finding for an AOI
func (s *Store) CreateDetection(ctx context.Context, d *models.EncroachmentDetection) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return s.db.QueryRowxContext(ctx, `
		INSERT INTO encroachment_detections (id, aoi_id, severity, affected_area, confidence, description, satellite_image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING detected_at`,
		d.ID, d.AOIID, d.Severity, d.AffectedArea, d.Confidence, d.Description, d.SatelliteImageURL).
		Scan(&d.DetectedAt)
}

// GetDetectionForUser retrieves a detection scoped to the AOI owner
func (s *Store) GetDetectionForUser(ctx context.Context, userID, id uuid.UUID) (*models.EncroachmentDetection, error) {
	var d models.EncroachmentDetection
	err := s.db.GetContext(ctx, &d, `
		SELECT d.* FROM encroachment_detections d
		JOIN aois a ON a.id = d.aoi_id
		WHERE d.id = $1 AND a.user_id = $2`, id, userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("detection %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ConfirmDetection flips the manual confirmation flag. Returns false when
// the detection was already confirmed.
func (s *Store) ConfirmDetection(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE encroachment_detections
		SET is_confirmed = TRUE, confirmed_at = $1
		WHERE id = $2 AND is_confirmed = FALSE`, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListDetectionsByAOI retrieves detections for an AOI, newest first
func (s *Store) ListDetectionsByAOI(ctx context.Context, aoiID uuid.UUID) ([]models.EncroachmentDetection, error) {
	var detections []models.EncroachmentDetection
	err := s.db.SelectContext(ctx, &detections,
		"SELECT * FROM encroachment_detections WHERE aoi_id = $1 ORDER BY detected_at DESC", aoiID)
	return detections, err
}

// DeleteOldJobs removes terminal jobs older than the cutoff
func (s *Store) DeleteOldJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM monitoring_jobs
		WHERE status IN ($1, $2) AND completed_at < $3`,
		models.JobStatusCompleted, models.JobStatusFailed, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
