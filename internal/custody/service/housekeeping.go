package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/tagcustody/tagcustody/internal/custody/store"
)

// HousekeepingService periodically cleans up expired protocol state: auth
// sessions, stale token leases, OPEN pending transfers and STAGED records
// past their deadline. Expiry is also checked synchronously on every use, so
// this sweep is a backstop against unbounded growth, not a correctness
// requirement.
type HousekeepingService struct {
	Store    store.Store
	Transfer *TransferService
	Staged   *StagedTransferService
	Logger   *slog.Logger
	Interval time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 minute.
func NewHousekeepingService(st store.Store, transfer *TransferService, staged *StagedTransferService, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Minute
	}

	return &HousekeepingService{
		Store:    st,
		Transfer: transfer,
		Staged:   staged,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// This is non-blocking and should be called after the database is ready.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

// run is the main background worker loop.
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

// cleanup performs the actual sweep. Each step is independent - failures in
// one won't stop the others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	now := time.Now().UTC()
	s.Logger.Debug("starting housekeeping cleanup")

	if err := s.Store.AuthSessions().DeleteExpiredAuthSessions(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired auth sessions", "error", err)
	}

	if err := s.Store.Tokens().ReleaseExpiredLeases(ctx, now); err != nil {
		s.Logger.Error("failed to release expired token leases", "error", err)
	}

	if swept, err := s.Transfer.SweepExpired(ctx); err != nil {
		s.Logger.Error("failed to sweep expired pending transfers", "error", err)
	} else if swept > 0 {
		s.Logger.Info("expired pending transfers swept", "count", swept)
	}

	if swept, err := s.Staged.SweepExpired(ctx); err != nil {
		s.Logger.Error("failed to sweep expired staged transfers", "error", err)
	} else if swept > 0 {
		s.Logger.Info("expired staged transfers swept", "count", swept)
	}
}
