// Package jobs runs periodic maintenance over the reservation store.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/labstack/gommon/log"
)

// DefaultSweepInterval is how often missed usage is flagged when no
// interval is configured.
const DefaultSweepInterval = 5 * time.Minute

// MissedUsageSweeper flags approved reservations whose window elapsed
// without any usage.
type MissedUsageSweeper interface {
	FlagMissedUsage(ctx context.Context) (int, error)
}

// Scheduler drives the missed-usage sweep on a fixed interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	sweeper   MissedUsageSweeper
	interval  time.Duration
	log       *log.Logger

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler returns a stopped scheduler.
func NewScheduler(sweeper MissedUsageSweeper, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		sweeper:   sweeper,
		interval:  interval,
		log:       log.New("scheduler"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// RunOnce performs one sweep.
func (s *Scheduler) RunOnce(ctx context.Context) {
	n, err := s.sweeper.FlagMissedUsage(ctx)
	if err != nil {
		s.log.Errorf("missed usage sweep failed: %v", err)
		return
	}
	if n > 0 {
		s.log.Infof("flagged %d reservations with missed usage", n)
	}
}

// Start registers the sweep and starts the scheduler in the background.
// The first sweep runs immediately.  Calling Start twice is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		s.RunOnce(s.ctx)
	})
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.started = true
	s.log.Infof("missed usage sweep every %s", s.interval)
	return nil
}

// Stop cancels a running sweep and stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.cancel()
	s.scheduler.Stop()
	s.started = false
}
