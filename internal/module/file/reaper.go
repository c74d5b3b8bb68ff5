package file

import (
	"context"
	"time"

	"github.com/convertly/server/internal/shared/clock"
	"github.com/convertly/server/internal/shared/metrics"
	"go.uber.org/zap"
)

// Locker is an optional best-effort sweep lock so overlapping instances
// usually skip duplicate sweeps. Correctness never depends on it: Delete is
// idempotent, so double-reaping is harmless.
type Locker interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// ReaperConfig holds reaper configuration.
type ReaperConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Reaper periodically deletes expired file resources.
type Reaper struct {
	manager *Manager
	repo    Repository
	lock    Locker // nil disables locking
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
	cfg     ReaperConfig
}

// NewReaper creates a new reaper.
func NewReaper(manager *Manager, repo Repository, lock Locker, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics, cfg ReaperConfig) *Reaper {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &Reaper{
		manager: manager,
		repo:    repo,
		lock:    lock,
		clock:   clk,
		logger:  logger.Named("reaper"),
		metrics: m,
		cfg:     cfg,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("starting reaper",
		zap.Duration("interval", r.cfg.Interval),
		zap.Int("batch_size", r.cfg.BatchSize),
	)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep deletes all expired, not-yet-deleted files. A failure on one file
// is logged and skipped; the file stays expired and is retried on the next
// cycle. Returns the number of files reaped.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	if r.lock != nil {
		acquired, err := r.lock.TryAcquire(ctx)
		if err != nil {
			r.logger.Warn("sweep lock unavailable, sweeping anyway", zap.Error(err))
		} else if !acquired {
			r.logger.Debug("sweep lock held elsewhere, skipping cycle")
			return 0, nil
		} else {
			defer func() {
				if err := r.lock.Release(ctx); err != nil {
					r.logger.Warn("sweep lock release failed", zap.Error(err))
				}
			}()
		}
	}

	start := time.Now()
	now := r.clock.Now().UTC()

	expired, err := r.repo.ListExpired(ctx, now, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, f := range expired {
		if err := r.manager.Delete(ctx, f.ID); err != nil {
			if r.metrics != nil {
				r.metrics.ReapFailuresTotal.Inc()
			}
			r.logger.Warn("failed to reap file, will retry next cycle",
				zap.String("file_id", f.ID.String()),
				zap.Error(err),
			)
			continue
		}
		reaped++
	}

	if r.metrics != nil {
		r.metrics.FilesReapedTotal.Add(float64(reaped))
		r.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}
	if reaped > 0 {
		r.logger.Info("sweep complete",
			zap.Int("reaped", reaped),
			zap.Int("expired", len(expired)),
		)
	}
	return reaped, nil
}
