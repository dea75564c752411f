package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/household-energy-dashboard/internal/household"
)

// Refresher runs one refresh cycle.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler periodically rebuilds the household table.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a new Scheduler. timeout bounds a single run; zero means the
// run is only bounded by the refresher itself.
func New(interval, timeout time.Duration, refresher Refresher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		refresher: refresher,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first run happens one interval after Start; callers refresh eagerly
// themselves at boot. A tick that fires while the previous run is still
// going is skipped.
func (s *Scheduler) Start() error {
	interval := s.interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	_, err := s.scheduler.Every(interval).WaitForSchedule().SingletonMode().Do(s.run)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "interval", interval)
	return nil
}

func (s *Scheduler) run() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.logger.Debug("scheduler: running refresh job")
	err := s.refresher.Refresh(ctx)
	switch {
	case errors.Is(err, household.ErrRefreshInProgress):
		s.logger.Info("scheduler: refresh still running, skipping tick")
	case err != nil:
		// Already logged with cycle context by the refresher.
		s.logger.Debug("scheduler: refresh job failed", "error", err)
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
