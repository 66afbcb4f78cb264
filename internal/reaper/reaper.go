// Package reaper periodically deletes jobs and their on-disk assets once
// their retention window has elapsed (spec.md §5). A Redis lock keeps
// multiple server instances from racing the same sweep.
package reaper

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/trackforge/engine/internal/cache"
	"github.com/trackforge/engine/internal/monitoring"
	"github.com/trackforge/engine/internal/objectstorage"
	"github.com/trackforge/engine/internal/store"
)

const lockKey = "trackforge:reaper:lock"

// quietPeriod is how long a job's row must go untouched before the Reaper
// considers it safe to delete, so a sweep never races an orchestrator still
// writing progress to a job whose expires_at already elapsed mid-retry.
const quietPeriod = 2 * time.Minute

type Reaper struct {
	store   store.Store
	storage *objectstorage.Storage
	redis   *redis.Client
	logger  *zap.Logger
	metrics *monitoring.PrometheusMetrics
	period  time.Duration
	lockTTL time.Duration
}

func New(st store.Store, storage *objectstorage.Storage, redisClient *redis.Client, logger *zap.Logger, metrics *monitoring.PrometheusMetrics, period time.Duration) *Reaper {
	return &Reaper{
		store:   st,
		storage: storage,
		redis:   redisClient,
		logger:  logger,
		metrics: metrics,
		period:  period,
		lockTTL: period / 2,
	}
}

// Run blocks, sweeping every r.period until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce(ctx)
		}
	}
}

func (r *Reaper) sweepOnce(ctx context.Context) {
	locked, err := cache.AcquireLock(ctx, r.redis, lockKey, r.lockTTL)
	if err != nil {
		r.logger.Error("reaper lock acquisition", zap.Error(err))
		return
	}
	if !locked {
		r.logger.Debug("reaper sweep skipped, another instance holds the lock")
		return
	}
	defer cache.ReleaseLock(ctx, r.redis, lockKey)

	start := time.Now()
	deleted := r.deleteExpired(ctx)
	r.metrics.RecordReaperRun(time.Since(start), deleted)
	r.logger.Info("reaper sweep complete", zap.Int("deleted", deleted), zap.Duration("duration", time.Since(start)))
}

func (r *Reaper) deleteExpired(ctx context.Context) int {
	jobs, err := r.store.ExpiredJobs(ctx, quietPeriod)
	if err != nil {
		r.logger.Error("listing expired jobs", zap.Error(err))
		return 0
	}

	deleted := 0
	for _, job := range jobs {
		if err := r.storage.DeleteJobDirs(job.ID.String()); err != nil {
			r.logger.Error("deleting job directories", zap.String("job_id", job.ID.String()), zap.Error(err))
			continue
		}
		if err := r.store.DeleteJob(ctx, job.ID); err != nil {
			r.logger.Error("deleting job row", zap.String("job_id", job.ID.String()), zap.Error(err))
			continue
		}
		deleted++
	}
	return deleted
}
