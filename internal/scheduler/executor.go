package scheduler

import (
	"context"
	"fmt"
	"time"

	"geowatch/config"
	"geowatch/internal/broker"
	"geowatch/internal/models"
	"geowatch/internal/service"
	"geowatch/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExecutorStore is the storage surface a job run needs.
type ExecutorStore interface {
	QueryImagery(ctx context.Context, geometry models.Polygon, since time.Time, maxCloudCoverage float64, limit int) ([]models.SatelliteImage, error)
	CreateDetection(ctx context.Context, d *models.EncroachmentDetection) error
	FinishJob(ctx context.Context, jobID uuid.UUID, status string, imagesProcessed, encroachments int, errMsg string, completedAt time.Time) error
}

// Executor runs a single monitoring job: it selects recent imagery for the
// AOI, evaluates each scene, and records findings and the terminal job state.
type Executor struct {
	store     ExecutorStore
	detector  service.Detector
	notifier  *service.Notifier
	publisher *broker.EventPublisher
	cfg       config.SchedulerConfig
	logger    *zap.Logger
}

// NewExecutor creates a new executor
func NewExecutor(store ExecutorStore, detector service.Detector, notifier *service.Notifier, publisher *broker.EventPublisher, cfg config.SchedulerConfig) *Executor {
	return &Executor{
		store:     store,
		detector:  detector,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		logger:    util.GetLogger(),
	}
}

// Execute runs the job to completion. The run is bounded by the job budget
// and each image by its own timeout; a single bad image is skipped, not
// fatal. The terminal status is always written, even on panic or timeout.
func (e *Executor) Execute(ctx context.Context, job *models.MonitoringJob, aoi models.AOI) {
	runCtx, cancel := context.WithTimeout(ctx, e.cfg.JobBudget)
	defer cancel()

	start := time.Now()
	imagesProcessed := 0
	encroachments := 0

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Monitoring job panicked",
				zap.String("job_id", job.ID.String()),
				zap.String("aoi_id", aoi.ID.String()),
				zap.Any("panic", r))
			e.finish(job, models.JobStatusFailed, imagesProcessed, encroachments,
				fmt.Sprintf("panic: %v", r), start)
		}
	}()

	e.logger.Info("Monitoring job started",
		zap.String("job_id", job.ID.String()),
		zap.String("aoi_id", aoi.ID.String()),
		zap.String("cadence", string(aoi.Cadence)))

	since := time.Now().UTC().Add(-e.cfg.ImageryWindow)
	images, err := e.store.QueryImagery(runCtx, aoi.Geometry, since, e.cfg.MaxCloudCoverage, e.cfg.MaxImagesPerJob)
	if err != nil {
		e.finish(job, models.JobStatusFailed, 0, 0,
			fmt.Sprintf("imagery query failed: %v", err), start)
		return
	}

	for _, img := range images {
		if runCtx.Err() != nil {
			e.finish(job, models.JobStatusFailed, imagesProcessed, encroachments,
				"timeout: job budget exceeded", start)
			return
		}

		found, err := e.processImage(runCtx, &aoi, img)
		// Detections persisted before the failure still count.
		encroachments += found
		if err != nil {
			e.logger.Warn("Image processing failed, skipping",
				zap.String("job_id", job.ID.String()),
				zap.String("scene_id", img.SceneID),
				zap.Error(err))
			continue
		}
		imagesProcessed++
		util.ImagesProcessedTotal.Inc()
	}

	e.finish(job, models.JobStatusCompleted, imagesProcessed, encroachments, "", start)
	e.logger.Info("Monitoring job completed",
		zap.String("job_id", job.ID.String()),
		zap.Int("images_processed", imagesProcessed),
		zap.Int("encroachments_detected", encroachments))
}

// processImage evaluates one scene and persists any findings. Returns the
// number of detections recorded.
func (e *Executor) processImage(ctx context.Context, aoi *models.AOI, img models.SatelliteImage) (int, error) {
	imgCtx, cancel := context.WithTimeout(ctx, e.cfg.PerImageTimeout)
	defer cancel()

	findings, err := e.detector.Detect(imgCtx, aoi.Geometry, img)
	if err != nil {
		return 0, err
	}

	recorded := 0
	for _, f := range findings {
		detection := &models.EncroachmentDetection{
			AOIID:             aoi.ID,
			Severity:          f.Severity,
			AffectedArea:      f.AffectedArea,
			Confidence:        f.Confidence,
			Description:       f.Description,
			SatelliteImageURL: img.ImageURL,
		}
		if err := e.store.CreateDetection(imgCtx, detection); err != nil {
			return recorded, fmt.Errorf("persist detection: %w", err)
		}
		recorded++
		util.DetectionsTotal.WithLabelValues(f.Severity).Inc()

		if _, err := e.notifier.EncroachmentDetected(imgCtx, aoi, detection); err != nil {
			e.logger.Error("Failed to notify encroachment",
				zap.String("detection_id", detection.ID.String()),
				zap.Error(err))
		}
		e.publishFound(imgCtx, aoi, detection)
	}
	return recorded, nil
}

func (e *Executor) publishFound(ctx context.Context, aoi *models.AOI, d *models.EncroachmentDetection) {
	if e.publisher == nil {
		return
	}
	event := &models.EncroachmentFoundEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeEncroachmentFound,
			Timestamp: time.Now(),
		},
		DetectionID: d.ID,
		AOIID:       aoi.ID,
		UserID:      aoi.UserID,
		Severity:    d.Severity,
		Confidence:  d.Confidence,
	}
	if err := e.publisher.PublishEncroachmentFound(ctx, event); err != nil {
		e.logger.Error("Failed to publish encroachment event",
			zap.String("detection_id", d.ID.String()), zap.Error(err))
	}
}

// finish writes the terminal job state on a fresh context so it lands even
// when the job budget is already spent.
func (e *Executor) finish(job *models.MonitoringJob, status string, images, encroachments int, errMsg string, start time.Time) {
	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.store.FinishJob(finishCtx, job.ID, status, images, encroachments, errMsg, time.Now().UTC()); err != nil {
		e.logger.Error("Failed to record job result",
			zap.String("job_id", job.ID.String()),
			zap.String("status", status),
			zap.Error(err))
		return
	}

	util.JobDuration.Observe(time.Since(start).Seconds())
	if status == models.JobStatusCompleted {
		util.JobsCompletedTotal.Inc()
	} else {
		util.JobsFailedTotal.Inc()
	}
}
