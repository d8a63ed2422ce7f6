package backup

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler creates a backup at a fixed interval, and optionally once at
// startup.
type Scheduler struct {
	svc       *Service
	interval  time.Duration
	onStartup bool
	logger    *slog.Logger
}

// NewScheduler creates a Scheduler. An interval of zero or less means 24h.
func NewScheduler(svc *Service, interval time.Duration, onStartup bool) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		svc:       svc,
		interval:  interval,
		onStartup: onStartup,
		logger:    slog.Default().With("component", "backup_scheduler"),
	}
}

// Run blocks until ctx is cancelled. Backup failures are logged and do not
// stop the schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.onStartup {
		s.runOnce(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	info, err := s.svc.Create(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("scheduled backup failed", "error", err)
		}
		return
	}
	s.logger.Debug("scheduled backup done", "filename", info.Filename)
}
