package origin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper purges expired cache entries on a cron schedule, so origins that
// are never looked up again do not hold capacity until they are evicted.
type Sweeper struct {
	cache    *Cache
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewSweeper creates a sweeper for cache. schedule accepts standard cron
// expressions and descriptors such as "@every 10m".
func NewSweeper(cache *Cache, schedule string, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cache:    cache,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With("component", "origin.sweeper"),
	}
}

// Start schedules sweeping and returns immediately. The sweeper stops when
// ctx is cancelled or Stop is called. An empty schedule disables it.
//
// Common schedules:
//   - "@every 10m"   - every ten minutes
//   - "*/5 * * * *"  - every five minutes, on the minute
//   - "0 * * * *"    - hourly
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("cache sweep schedule not configured, skipping sweeper")
		return nil
	}
	if s.running {
		return fmt.Errorf("sweeper already running")
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, s.RunOnce); err != nil {
		return fmt.Errorf("failed to schedule cache sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("cache sweeper started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce performs one sweep.
func (s *Sweeper) RunOnce() {
	removed := s.cache.Sweep()
	if removed > 0 {
		s.logger.Debug("cache sweep completed", "removed", removed)
	}
}

// Stop stops the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("cache sweeper stopped")
	}
}

// IsRunning reports whether the schedule is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled sweep, or nil if none is scheduled.
func (s *Sweeper) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
