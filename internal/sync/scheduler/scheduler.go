// Package scheduler runs the background timers of the sync core: periodic
// retry of the offline queue while online and the cache expiry sweep.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/wahabsharif/premierspaces-app/backend/internal/errors"
	"github.com/wahabsharif/premierspaces-app/backend/internal/logging"
	syncpkg "github.com/wahabsharif/premierspaces-app/backend/internal/sync"
)

// Cleaner removes expired cache rows.
type Cleaner interface {
	CleanExpired(ctx context.Context) (int64, error)
}

// Scheduler manages background sync operations.
type Scheduler struct {
	syncer          syncpkg.Syncer
	cleaner         Cleaner
	retryInterval   time.Duration
	cleanupInterval time.Duration
	waitTimeout     time.Duration
	stopCh          chan struct{}
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	passes          sync.WaitGroup
	mu              sync.RWMutex
	isRunning       bool
	isOnline        bool
	lastSyncTime    time.Time
	lastCleanupTime time.Time
	cleanedTotal    int64
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	RetryInterval   time.Duration // How often to retry the queue when online (default: 5 minutes)
	CleanupInterval time.Duration // How often to sweep expired cache rows (default: 30 minutes)
	WaitTimeout     time.Duration // How long a tick waits for its pass; the pass is not cancelled (default: 30 seconds)
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		RetryInterval:   5 * time.Minute,
		CleanupInterval: 30 * time.Minute,
		WaitTimeout:     30 * time.Second,
	}
}

// NewScheduler creates a new Scheduler. cleaner may be nil.
func NewScheduler(syncer syncpkg.Syncer, cleaner Cleaner, config *SchedulerConfig) *Scheduler {
	def := DefaultSchedulerConfig()
	if config == nil {
		config = def
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = def.RetryInterval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = def.WaitTimeout
	}

	return &Scheduler{
		syncer:          syncer,
		cleaner:         cleaner,
		retryInterval:   config.RetryInterval,
		cleanupInterval: config.CleanupInterval,
		waitTimeout:     config.WaitTimeout,
		isOnline:        true, // Assume online initially
	}
}

// Start starts the background loops.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.retryLoop(ctx, stopCh)

	if s.cleaner != nil {
		s.wg.Add(1)
		go s.cleanupLoop(ctx, stopCh)
	}

	logging.Info("Background sync scheduler started", map[string]interface{}{
		"retry_interval":   s.retryInterval.String(),
		"cleanup_interval": s.cleanupInterval.String(),
	})
}

// Stop stops the background loops, cancels a scheduled pass still in
// flight and waits for all of them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopCh)
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.passes.Wait()

	logging.Info("Background sync scheduler stopped", nil)
}

// SetOnlineStatus changes the online status of the scheduler.
// Offline, the retry loop skips its ticks; the cleanup sweep keeps running.
func (s *Scheduler) SetOnlineStatus(isOnline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasOnline := s.isOnline
	s.isOnline = isOnline

	if wasOnline != isOnline {
		logging.Info("Online status changed",
			map[string]interface{}{
				"was_online": wasOnline,
				"is_online":  isOnline,
			})
	}
}

// retryLoop retries the offline queue while online.
func (s *Scheduler) retryLoop(ctx context.Context, stopCh chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if !s.IsOnline() {
				continue
			}
			if s.syncer.Running() {
				logging.Debug("Sync already in progress, skipping", nil)
				continue
			}
			if n, err := s.syncer.PendingCount(); err == nil && n == 0 {
				continue
			}
			s.runSync(ctx)
		}
	}
}

// cleanupLoop sweeps expired cache rows.
func (s *Scheduler) cleanupLoop(ctx context.Context, stopCh chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.runCleanup(ctx)
		}
	}
}

// runSync starts one scheduled pass on ctx and waits for it at most the
// wait timeout. A pass still running after that keeps going and records
// its result when it ends.
func (s *Scheduler) runSync(ctx context.Context) {
	if !s.IsOnline() {
		logging.Debug("Skipping sync - scheduler is offline", nil)
		return
	}

	done := make(chan struct{})
	s.passes.Add(1)
	go func() {
		defer s.passes.Done()
		defer close(done)
		s.recordSync(s.syncer.SyncPendingJobs(ctx))
	}()

	t := time.NewTimer(s.waitTimeout)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		logging.Warn("Scheduled sync still running, no longer waiting",
			map[string]interface{}{"wait": s.waitTimeout.String()})
	}
}

func (s *Scheduler) recordSync(result syncpkg.Result, err error) {
	if errors.Is(err, errors.ErrSyncInProgress) {
		return
	}
	if err != nil {
		logging.ErrorWithCode("Scheduled sync failed", string(errors.ErrSyncFailed), err,
			map[string]interface{}{"interval_minutes": s.retryInterval.Minutes()})
		return
	}

	s.mu.Lock()
	s.lastSyncTime = time.Now()
	s.mu.Unlock()

	logging.Info("Scheduled sync completed",
		map[string]interface{}{
			"synced": result.Synced,
			"failed": result.Failed,
		})
}

// runCleanup removes expired cache rows.
func (s *Scheduler) runCleanup(ctx context.Context) {
	n, err := s.cleaner.CleanExpired(ctx)
	if err != nil {
		logging.Error("Cache cleanup failed", err)
		return
	}

	s.mu.Lock()
	s.lastCleanupTime = time.Now()
	s.cleanedTotal += n
	s.mu.Unlock()

	if n > 0 {
		logging.Info("Expired cache entries removed", map[string]interface{}{"count": n})
	}
}

// TriggerSync starts a pass in the background.
// Returns true if a pass was started, false if one is already in progress.
func (s *Scheduler) TriggerSync(ctx context.Context) bool {
	if s.syncer.Running() {
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSync(ctx)
	}()
	return true
}

// SchedulerStatus is a snapshot of the scheduler state.
type SchedulerStatus struct {
	IsRunning       bool       `json:"is_running"`
	IsOnline        bool       `json:"is_online"`
	LastSyncTime    *time.Time `json:"last_sync_time,omitempty"`
	LastCleanupTime *time.Time `json:"last_cleanup_time,omitempty"`
	SyncInProgress  bool       `json:"sync_in_progress"`
	PendingItems    int        `json:"pending_items"`
	CleanedEntries  int64      `json:"cleaned_entries"`
}

// GetStatus returns the current status of the scheduler.
func (s *Scheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	status := SchedulerStatus{
		IsRunning:      s.isRunning,
		IsOnline:       s.isOnline,
		CleanedEntries: s.cleanedTotal,
	}
	if !s.lastSyncTime.IsZero() {
		t := s.lastSyncTime
		status.LastSyncTime = &t
	}
	if !s.lastCleanupTime.IsZero() {
		t := s.lastCleanupTime
		status.LastCleanupTime = &t
	}
	s.mu.RUnlock()

	status.SyncInProgress = s.syncer.Running()
	if n, err := s.syncer.PendingCount(); err == nil {
		status.PendingItems = n
	}
	return status
}

// SyncNow runs a manual pass and waits for it.
func (s *Scheduler) SyncNow(ctx context.Context) (syncpkg.Result, error) {
	result, err := s.syncer.ManualSync(ctx)
	if err != nil {
		return result, err
	}

	s.mu.Lock()
	s.lastSyncTime = time.Now()
	s.mu.Unlock()

	logging.Info("Manual sync completed",
		map[string]interface{}{
			"synced": result.Synced,
			"failed": result.Failed,
		})
	return result, nil
}

// IsOnline returns whether the scheduler is in online mode.
func (s *Scheduler) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOnline
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
