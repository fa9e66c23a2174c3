package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"geowatch/config"
	"geowatch/internal/apperr"
	"geowatch/internal/models"
	"geowatch/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sweepLockKey elects one sweep leader across replicas
const sweepLockKey = "monitoring:sweep"

// Store is the storage surface the scheduler needs.
type Store interface {
	GetAOIByID(ctx context.Context, id uuid.UUID) (*models.AOI, error)
	ListMonitorableAOIs(ctx context.Context, now time.Time) ([]models.AOI, error)
	ListPaidInactiveAOIs(ctx context.Context) ([]models.AOI, error)
	ActivateAOI(ctx context.Context, id uuid.UUID, start, end time.Time) (bool, error)
	ExpireAOIs(ctx context.Context, now time.Time) (int64, error)
	LastCompletedJob(ctx context.Context, aoiID uuid.UUID) (*models.MonitoringJob, error)
	CreateJobIfAbsent(ctx context.Context, aoiID uuid.UUID) (*models.MonitoringJob, bool, error)
	DeleteOldJobs(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOldNotifications(ctx context.Context, cutoff time.Time) (int64, error)
}

// Locker is the distributed lock surface, backed by Redis SetNX.
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

type dispatch struct {
	job *models.MonitoringJob
	aoi models.AOI
}

// Scheduler runs the periodic monitoring sweep and dispatches jobs to a
// bounded worker pool. Per-AOI mutual exclusion is enforced by the store's
// unique in-flight job constraint; the sweep never waits for job completion.
type Scheduler struct {
	store    Store
	locker   Locker
	executor *Executor
	cfg      config.SchedulerConfig
	queue    chan dispatch
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(store Store, locker Locker, executor *Executor, cfg config.SchedulerConfig) *Scheduler {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	return &Scheduler{
		store:    store,
		locker:   locker,
		executor: executor,
		cfg:      cfg,
		queue:    make(chan dispatch, 4*cfg.WorkerCount),
		logger:   util.GetLogger(),
	}
}

// Run drives sweeps and cleanup until the context is cancelled. It blocks;
// call it from its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	for i := 0; i < s.cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	sweepTicker := time.NewTicker(s.cfg.SweepInterval)
	defer sweepTicker.Stop()
	cleanupTicker := time.NewTicker(s.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			close(s.queue)
			s.wg.Wait()
			s.logger.Info("Scheduler stopped")
			return
		case <-sweepTicker.C:
			s.Sweep(ctx)
		case <-cleanupTicker.C:
			s.cleanup(ctx)
		}
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for d := range s.queue {
		s.executor.Execute(ctx, d.job, d.aoi)
	}
}

// Sweep performs one scheduling pass: lifecycle housekeeping, then cadence
// evaluation and job dispatch for every monitorable AOI.
func (s *Scheduler) Sweep(ctx context.Context) {
	acquired, err := s.locker.AcquireLock(ctx, sweepLockKey, 5*time.Minute)
	if err != nil {
		s.logger.Error("Sweep lock acquisition failed", zap.Error(err))
		return
	}
	if !acquired {
		s.logger.Info("Sweep already running elsewhere, skipping")
		return
	}
	defer func() {
		if err := s.locker.ReleaseLock(ctx, sweepLockKey); err != nil {
			s.logger.Warn("Failed to release sweep lock", zap.Error(err))
		}
	}()

	util.SweepsTotal.Inc()
	now := time.Now().UTC()

	s.housekeep(ctx, now)

	candidates, err := s.store.ListMonitorableAOIs(ctx, now)
	if err != nil {
		s.logger.Error("Failed to list monitorable AOIs", zap.Error(err))
		return
	}

	dispatched := 0
	for _, aoi := range candidates {
		run, err := s.shouldRun(ctx, &aoi, now)
		if err != nil {
			s.logger.Error("Cadence check failed",
				zap.String("aoi_id", aoi.ID.String()), zap.Error(err))
			continue
		}
		if !run {
			continue
		}
		if s.dispatchJob(ctx, aoi) {
			dispatched++
		}
	}

	s.logger.Info("Sweep finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("jobs_dispatched", dispatched))
}

// housekeep expires ended AOIs and activates paid ones waiting for their
// monitoring window.
func (s *Scheduler) housekeep(ctx context.Context, now time.Time) {
	if expired, err := s.store.ExpireAOIs(ctx, now); err != nil {
		s.logger.Error("Failed to expire AOIs", zap.Error(err))
	} else if expired > 0 {
		s.logger.Info("AOIs expired", zap.Int64("count", expired))
	}

	pending, err := s.store.ListPaidInactiveAOIs(ctx)
	if err != nil {
		s.logger.Error("Failed to list paid inactive AOIs", zap.Error(err))
		return
	}
	for _, aoi := range pending {
		end := now.Add(aoi.Cadence.Period())
		activated, err := s.store.ActivateAOI(ctx, aoi.ID, now, end)
		if err != nil {
			s.logger.Error("Failed to activate AOI",
				zap.String("aoi_id", aoi.ID.String()), zap.Error(err))
			continue
		}
		if activated {
			s.logger.Info("AOI activated by sweep",
				zap.String("aoi_id", aoi.ID.String()),
				zap.Time("end_date", end))
		}
	}
}

// shouldRun decides whether the AOI is due for a monitoring run
func (s *Scheduler) shouldRun(ctx context.Context, aoi *models.AOI, now time.Time) (bool, error) {
	last, err := s.store.LastCompletedJob(ctx, aoi.ID)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	return cadenceDue(aoi.Cadence, last.CompletedAt.Time, now), nil
}

// cadenceDue reports whether enough time has passed since the last
// completed run for the cadence's refresh window.
func cadenceDue(cadence models.Cadence, lastCompleted, now time.Time) bool {
	return now.Sub(lastCompleted) > cadence.RefreshWindow()
}

// dispatchJob creates the job under the per-AOI guard and enqueues it.
// Returns true when a job was created and handed to the pool.
func (s *Scheduler) dispatchJob(ctx context.Context, aoi models.AOI) bool {
	// Fast path: skip the insert when another dispatcher very recently
	// claimed this AOI. The store's unique constraint remains authoritative.
	lockKey := fmt.Sprintf("aoi-job:%s", aoi.ID)
	if acquired, err := s.locker.AcquireLock(ctx, lockKey, time.Minute); err == nil && !acquired {
		return false
	}
	defer func() {
		_ = s.locker.ReleaseLock(ctx, lockKey)
	}()

	job, created, err := s.store.CreateJobIfAbsent(ctx, aoi.ID)
	if err != nil {
		s.logger.Error("Job creation failed",
			zap.String("aoi_id", aoi.ID.String()), zap.Error(err))
		return false
	}
	if !created {
		return false
	}

	util.JobsDispatchedTotal.Inc()
	s.queue <- dispatch{job: job, aoi: aoi}
	return true
}

// TriggerManual dispatches a monitoring job outside the sweep. Unlike the
// sweep it reports an in-flight duplicate as a conflict to the caller.
func (s *Scheduler) TriggerManual(ctx context.Context, aoiID uuid.UUID) (*models.MonitoringJob, error) {
	aoi, err := s.store.GetAOIByID(ctx, aoiID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if aoi.Status != models.AOIStatusActive || !aoi.IsPaid ||
		!aoi.EndDate.Valid || !aoi.EndDate.Time.After(now) {
		return nil, fmt.Errorf("aoi %s is not monitorable: %w", aoiID, apperr.ErrInvalidState)
	}

	job, created, err := s.store.CreateJobIfAbsent(ctx, aoiID)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, fmt.Errorf("monitoring job already in flight for aoi %s: %w", aoiID, apperr.ErrConflict)
	}

	util.JobsDispatchedTotal.Inc()
	s.queue <- dispatch{job: job, aoi: *aoi}
	return job, nil
}

// cleanup applies the retention policy to terminal jobs and notifications
func (s *Scheduler) cleanup(ctx context.Context) {
	now := time.Now().UTC()
	if deleted, err := s.store.DeleteOldJobs(ctx, now.Add(-s.cfg.JobRetention)); err != nil {
		s.logger.Error("Job cleanup failed", zap.Error(err))
	} else if deleted > 0 {
		s.logger.Info("Old monitoring jobs deleted", zap.Int64("count", deleted))
	}

	if deleted, err := s.store.DeleteOldNotifications(ctx, now.Add(-s.cfg.NotifRetention)); err != nil {
		s.logger.Error("Notification cleanup failed", zap.Error(err))
	} else if deleted > 0 {
		s.logger.Info("Old notifications deleted", zap.Int64("count", deleted))
	}
}
