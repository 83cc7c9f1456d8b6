package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler re-runs the integrity sweep on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	engine  *Engine
	logger  *slog.Logger
	timeout time.Duration
}

// NewScheduler registers a sweep on schedule (standard cron or a
// descriptor such as "@every 5m").
func NewScheduler(engine *Engine, schedule string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		engine:  engine,
		logger:  logger,
		timeout: time.Minute,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid integrity schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.engine.Sweep(ctx); err != nil {
		s.logger.Warn("scheduled integrity sweep failed", "error", err)
	}
}

// Start starts the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("integrity scheduler started")
}

// Stop stops the scheduler and waits for a running sweep to finish or ctx
// to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.logger.Info("integrity scheduler stopped")
}
