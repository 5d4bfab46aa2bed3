// Package sync drains the offline job queue to the remote API when the
// device is online.
package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/wahabsharif/premierspaces-app/backend/internal/cache"
	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
	"github.com/wahabsharif/premierspaces-app/backend/internal/events"
	"github.com/wahabsharif/premierspaces-app/backend/internal/logging"
	"github.com/wahabsharif/premierspaces-app/backend/internal/metrics"
	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
	"github.com/wahabsharif/premierspaces-app/backend/internal/sync/queue"
)

// DefaultAwaitTimeout bounds AwaitIdle when no timeout is given.
const DefaultAwaitTimeout = 30 * time.Second

// Messages carried by sync states.
const (
	MessageNothingToSync = "No jobs to sync"
	MessageOffline       = "You are offline. Pending jobs will sync when the connection returns."
)

// Deps are the collaborators of a Manager. Cache and Segments are optional.
type Deps struct {
	Queue        *queue.Queue
	Jobs         JobStore
	Remote       JobCreator
	Connectivity Connectivity
	Bus          *events.Bus

	// Cache holds remote job lists, consulted for an existing common_id
	// before a queued job is posted.
	Cache *cache.Cache

	// Segments uploads file segments stored while offline.
	Segments SegmentSyncer

	AwaitTimeout time.Duration
	Clock        func() time.Time
}

// Result summarizes one sync run.
type Result struct {
	Total   int `json:"total"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`

	SegmentsSynced int `json:"segments_synced"`
	SegmentsFailed int `json:"segments_failed"`
}

// Manager runs sync passes over the offline queue. At most one pass runs
// at a time.
type Manager struct {
	deps Deps
	log  *logging.Logger

	listeners events.Topic[models.SyncState]

	initOnce stdsync.Once
	unsubs   []func()
	wg       stdsync.WaitGroup
	baseCtx  context.Context
	cancel   context.CancelFunc

	mu       stdsync.Mutex
	done     chan struct{}
	state    models.SyncState
	lastSync time.Time
	last     Result
}

// NewManager creates a Manager. It does nothing until Initialize or a sync
// method is called.
func NewManager(deps Deps) *Manager {
	if deps.Bus == nil {
		deps.Bus = events.NewBus()
	}
	if deps.AwaitTimeout <= 0 {
		deps.AwaitTimeout = DefaultAwaitTimeout
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Manager{
		deps:  deps,
		log:   logging.Component("sync"),
		state: models.SyncState{Status: models.SyncIdle},
	}
}

// Initialize subscribes to connectivity transitions and manual sync
// requests. A transition to online starts a sync pass. Only the first call
// has an effect.
func (m *Manager) Initialize(ctx context.Context) {
	m.initOnce.Do(func() {
		m.baseCtx, m.cancel = context.WithCancel(ctx)

		if m.deps.Connectivity != nil {
			m.unsubs = append(m.unsubs, m.deps.Connectivity.Subscribe(func(online bool) {
				if !online {
					return
				}
				m.log.Info("connection restored, syncing pending jobs")
				m.background(func(ctx context.Context) {
					m.SyncPendingJobs(ctx)
				})
			}))
		}
		m.unsubs = append(m.unsubs, m.deps.Bus.ManualSyncRequested.Subscribe(func(struct{}) {
			m.background(func(ctx context.Context) {
				m.ManualSync(ctx)
			})
		}))
	})
}

func (m *Manager) background(fn func(ctx context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn(m.baseCtx)
	}()
}

// Close removes the subscriptions made by Initialize and waits for
// background passes to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, fn := range unsubs {
		fn()
	}
	m.wg.Wait()
	if m.cancel != nil {
		m.cancel()
	}
}

// AddSyncListener registers fn for sync state notifications. Listeners run
// synchronously in registration order.
func (m *Manager) AddSyncListener(fn func(models.SyncState)) func() {
	return m.listeners.Subscribe(fn)
}

func (m *Manager) notify(st models.SyncState) {
	m.mu.Lock()
	m.state = st
	m.mu.Unlock()

	m.listeners.Publish(st)
	m.deps.Bus.SyncProgress.Publish(st)
}

// State returns the most recent notification, or idle.
func (m *Manager) State() models.SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Running reports whether a sync pass is in flight.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done != nil
}

// LastSync returns the end time and result of the last completed pass.
func (m *Manager) LastSync() (time.Time, Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSync, m.last
}

// PendingCount returns the number of queued jobs.
func (m *Manager) PendingCount() (int, error) {
	return m.deps.Queue.Size()
}

// AwaitIdle blocks until the running pass finishes or timeout elapses. It
// reports false on timeout; the pass itself keeps running.
func (m *Manager) AwaitIdle(timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = m.deps.AwaitTimeout
	}
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return true
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		m.log.Warn("timed out waiting for sync to finish", map[string]interface{}{
			"timeout": timeout.String(),
		})
		return false
	}
}

// ManualSync syncs when a live connectivity check succeeds. Offline it
// notifies an informational idle state and returns OFFLINE without
// touching the network.
func (m *Manager) ManualSync(ctx context.Context) (Result, error) {
	if m.deps.Connectivity != nil && !m.deps.Connectivity.IsOnline(ctx) {
		m.notify(models.SyncState{Status: models.SyncIdle, Message: MessageOffline})
		return Result{}, apperrors.New(apperrors.ErrOffline, MessageOffline)
	}
	return m.SyncPendingJobs(ctx)
}

// begin claims the single sync slot. It returns nil when a pass is running.
func (m *Manager) begin() chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return nil
	}
	m.done = make(chan struct{})
	return m.done
}

func (m *Manager) end(done chan struct{}, res Result, failed bool) {
	m.mu.Lock()
	m.done = nil
	if !failed {
		m.lastSync = m.deps.Clock()
		m.last = res
	}
	m.state = models.SyncState{Status: models.SyncIdle, SyncedCount: res.Synced, FailedCount: res.Failed}
	m.mu.Unlock()
	close(done)
}

// SyncPendingJobs posts every queued job, one at a time. A failed item is
// counted and left queued; it never stops the pass. If a pass is already
// running it returns SYNC_IN_PROGRESS immediately.
func (m *Manager) SyncPendingJobs(ctx context.Context) (res Result, err error) {
	done := m.begin()
	if done == nil {
		m.log.Debug("sync already in progress, skipping")
		return Result{}, apperrors.New(apperrors.ErrSyncInProgress, "sync already in progress")
	}

	start := time.Now()
	defer func() {
		metrics.SyncDuration.Observe(time.Since(start).Seconds())
		m.end(done, res, err != nil)
	}()

	m.deps.Bus.SyncStarted.Publish(struct{}{})
	m.notify(models.SyncState{Status: models.SyncSyncing})

	items, err := m.deps.Queue.List()
	if err != nil {
		m.abort(err)
		return Result{}, err
	}
	res.Total = len(items)

	if len(items) == 0 {
		res = m.syncSegments(ctx, res)
		m.complete(res, MessageNothingToSync)
		return res, nil
	}

	m.log.Info("syncing pending jobs", map[string]interface{}{"count": len(items)})
	for _, it := range items {
		switch m.syncOne(ctx, it) {
		case outcomeSynced:
			res.Synced++
			m.notify(models.SyncState{
				Status:      models.SyncInProgress,
				Progress:    float64(res.Synced) / float64(res.Total),
				SyncedCount: res.Synced,
				FailedCount: res.Failed,
			})
		case outcomeFailed:
			res.Failed++
		case outcomeSkipped:
			res.Skipped++
		}
	}

	res = m.syncSegments(ctx, res)
	m.complete(res, fmt.Sprintf("Synced %d of %d jobs", res.Synced, res.Total))
	return res, nil
}

type outcome int

const (
	outcomeSynced outcome = iota
	outcomeFailed
	outcomeSkipped
)

func (m *Manager) syncOne(ctx context.Context, it queue.Item) outcome {
	fields := map[string]interface{}{"job_id": it.JobID}

	// Accepted remotely on an earlier pass; only local cleanup is left.
	if it.Synced {
		return m.finalize(ctx, it, "finalized")
	}

	if it.UserID == "" {
		m.log.Warn("queued job has no user, skipping", fields)
		metrics.SyncJobs.WithLabelValues("skipped").Inc()
		return outcomeSkipped
	}
	job, err := m.deps.Jobs.Get(ctx, it.JobID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		m.log.Warn("queued job has no local record, skipping", fields)
		metrics.SyncJobs.WithLabelValues("skipped").Inc()
		return outcomeSkipped
	}
	if err != nil {
		return m.failItem(it, err)
	}

	if m.knownRemotely(ctx, it.UserID, job.CommonID) {
		m.log.Info("job already present remotely, not posting again", fields)
		if err := m.deps.Queue.MarkSynced(it.JobID); err != nil {
			return m.failItem(it, err)
		}
		return m.finalize(ctx, it, "deduplicated")
	}

	if _, err := m.deps.Remote.CreateJob(ctx, it.UserID, job); err != nil {
		if apperrors.IsSessionExpired(err) {
			m.deps.Bus.SessionExpired.Publish(events.SessionExpired{Source: "sync"})
		}
		return m.failItem(it, err)
	}

	// Recorded before the local delete so a crash in between never leads
	// to a second POST.
	if err := m.deps.Queue.MarkSynced(it.JobID); err != nil {
		return m.failItem(it, err)
	}
	return m.finalize(ctx, it, "synced")
}

// finalize removes the local record and the queue entry of a job the
// remote API already holds.
func (m *Manager) finalize(ctx context.Context, it queue.Item, label string) outcome {
	if _, err := m.deps.Jobs.Delete(ctx, it.JobID); err != nil {
		return m.failItem(it, err)
	}
	if err := m.deps.Queue.Remove(it.JobID); err != nil {
		return m.failItem(it, err)
	}
	metrics.SyncJobs.WithLabelValues(label).Inc()
	return outcomeSynced
}

func (m *Manager) failItem(it queue.Item, err error) outcome {
	m.log.Error("failed to sync job", err, map[string]interface{}{"job_id": it.JobID})
	metrics.SyncJobs.WithLabelValues("failed").Inc()
	if qerr := m.deps.Queue.Failed(it.JobID, err); qerr != nil {
		m.log.Warn("failed to record sync attempt", map[string]interface{}{
			"job_id": it.JobID, "error": qerr.Error(),
		})
	}
	return outcomeFailed
}

// knownRemotely reports whether the cached remote job list for userID
// already holds a job with commonID.
func (m *Manager) knownRemotely(ctx context.Context, userID, commonID string) bool {
	if m.deps.Cache == nil || commonID == "" {
		return false
	}
	jobs, ok, err := cache.GetValue[[]models.Job](ctx, m.deps.Cache, cache.UserKey(cache.PrefixJobs, userID))
	if err != nil || !ok {
		return false
	}
	for _, j := range jobs {
		if j.CommonID == commonID {
			return true
		}
	}
	return false
}

func (m *Manager) syncSegments(ctx context.Context, res Result) Result {
	if m.deps.Segments == nil {
		return res
	}
	synced, failed, err := m.deps.Segments.SyncPending(ctx)
	if err != nil {
		m.log.Error("failed to sync pending uploads", err)
	}
	res.SegmentsSynced = synced
	res.SegmentsFailed = failed
	return res
}

func (m *Manager) complete(res Result, message string) {
	m.notify(models.SyncState{
		Status:      models.SyncComplete,
		Message:     message,
		Progress:    1,
		SyncedCount: res.Synced,
		FailedCount: res.Failed,
	})
	metrics.SyncRuns.WithLabelValues("complete").Inc()

	m.deps.Bus.SyncCompleted.Publish(events.SyncCompleted{
		SyncedCount: res.Synced,
		FailedCount: res.Failed,
		Message:     message,
	})
	m.publishPending()

	m.log.Info("sync complete", map[string]interface{}{
		"synced": res.Synced, "failed": res.Failed, "skipped": res.Skipped,
	})
}

// abort reports a failure outside per-item handling. The queue is left as
// it was.
func (m *Manager) abort(err error) {
	m.log.ErrorWithCode("sync failed", string(apperrors.ErrSyncFailed), err)
	metrics.SyncRuns.WithLabelValues("error").Inc()
	m.notify(models.SyncState{Status: models.SyncError, Message: err.Error()})
	m.deps.Bus.SyncFailed.Publish(events.SyncFailed{Err: err})
}

func (m *Manager) publishPending() {
	n, err := m.deps.Queue.Size()
	if err != nil {
		m.log.Warn("failed to count pending jobs", map[string]interface{}{"error": err.Error()})
		return
	}
	metrics.PendingJobs.Set(float64(n))
	m.deps.Bus.PendingCountUpdated.Publish(events.PendingCountUpdated{Count: n})
}
