package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/twofa/internal/twofa/store"
)

// HousekeepingService periodically removes registrations that were never
// verified within TTL.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration
	TTL      time.Duration
	Now      func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval, ttl time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    store,
		Logger:   logger,
		Interval: interval,
		TTL:      ttl,
		Now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// Call Stop() to gracefully shutdown the worker. Extra calls are no-ops.
func (s *HousekeepingService) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.run()
		s.Logger.Info("housekeeping service started", "interval", s.Interval, "ttl", s.TTL)
	})
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress cleanup. It returns
// immediately when Start was never called, and is safe to call twice.
func (s *HousekeepingService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.started.Load() {
			<-s.doneCh
		}
		s.Logger.Info("housekeeping service stopped")
	})
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// Sweep deletes unverified records older than TTL and reports how many went.
func (s *HousekeepingService) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.Now().UTC().Add(-s.TTL)
	return s.Store.Records().DeleteUnverifiedBefore(ctx, cutoff)
}

func (s *HousekeepingService) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), s.Interval)
	defer cancel()

	deleted, err := s.Sweep(ctx)
	if err != nil {
		s.Logger.Error("failed to delete stale registrations", "error", err)
		return
	}
	s.Logger.Info("housekeeping cleanup completed", "deleted", deleted)
}
