package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/commacm/comma-auth/internal/auth/metrics"
	"github.com/commacm/comma-auth/internal/auth/store"
)

// Sweeper removes expired entries and reports how many went.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

type SweeperFunc func(ctx context.Context) (int64, error)

func (f SweeperFunc) Sweep(ctx context.Context) (int64, error) { return f(ctx) }

// SweepTask is a named Sweeper.
type SweepTask struct {
	Name    string
	Sweeper Sweeper
}

// StateSweeper sweeps expired authorization states and counts them.
func StateSweeper(states store.StateStore, rec metrics.Recorder) SweepTask {
	return SweepTask{
		Name: "authorization_states",
		Sweeper: SweeperFunc(func(ctx context.Context) (int64, error) {
			n, err := states.DeleteExpired(ctx)
			if n > 0 && rec != nil {
				rec.StatesSwept(n)
			}
			return n, err
		}),
	}
}

// HousekeepingService periodically sweeps orphaned authorization states,
// stale OTP challenges and idle rate limiter buckets.
type HousekeepingService struct {
	Tasks    []SweepTask
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService defaults a non-positive interval to one minute.
func NewHousekeepingService(logger *slog.Logger, interval time.Duration, tasks ...SweepTask) *HousekeepingService {
	if interval <= 0 {
		interval = time.Minute
	}

	return &HousekeepingService{
		Tasks:    tasks,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "tasks", len(s.Tasks))
}

// Stop blocks until any in-progress sweep has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce sweeps every task once. A failing task does not stop the others.
func (s *HousekeepingService) RunOnce(ctx context.Context) int64 {
	var total int64
	for _, task := range s.Tasks {
		n, err := task.Sweeper.Sweep(ctx)
		if err != nil {
			s.Logger.Error("housekeeping sweep failed", "task", task.Name, "error", err)
			continue
		}
		if n > 0 {
			s.Logger.Debug("housekeeping swept entries", "task", task.Name, "deleted", n)
		}
		total += n
	}
	s.Logger.Debug("housekeeping cleanup completed", "deleted", total)
	return total
}
