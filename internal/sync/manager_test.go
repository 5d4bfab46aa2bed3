package sync

import (
	"context"
	stderrors "errors"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wahabsharif/premierspaces-app/backend/internal/cache"
	"github.com/wahabsharif/premierspaces-app/backend/internal/db"
	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
	"github.com/wahabsharif/premierspaces-app/backend/internal/events"
	"github.com/wahabsharif/premierspaces-app/backend/internal/kvstore"
	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
	"github.com/wahabsharif/premierspaces-app/backend/internal/store"
	"github.com/wahabsharif/premierspaces-app/backend/internal/sync/queue"
)

// =====================================================
// Test doubles
// =====================================================

type fakeRemote struct {
	mu      stdsync.Mutex
	posts   map[string]int
	fail    map[string]error
	block   chan struct{}
	started chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{posts: make(map[string]int), fail: make(map[string]error)}
}

func (r *fakeRemote) CreateJob(ctx context.Context, userID string, job *models.Job) (*models.Job, error) {
	if r.started != nil {
		select {
		case r.started <- struct{}{}:
		default:
		}
	}
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts[job.ID]++
	if err := r.fail[job.ID]; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *fakeRemote) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.posts[id]
}

type fakeConn struct {
	online atomic.Bool
	topic  events.Topic[bool]
}

func (c *fakeConn) IsOnline(ctx context.Context) bool { return c.online.Load() }

func (c *fakeConn) Subscribe(fn func(bool)) func() { return c.topic.Subscribe(fn) }

func (c *fakeConn) set(online bool) {
	c.online.Store(online)
	c.topic.Publish(online)
}

type fakeSegments struct {
	calls atomic.Int32
}

func (s *fakeSegments) SyncPending(ctx context.Context) (int, int, error) {
	s.calls.Add(1)
	return 2, 0, nil
}

type testEnv struct {
	mgr    *Manager
	queue  *queue.Queue
	jobs   *store.Store[*models.Job]
	cache  *cache.Cache
	remote *fakeRemote
	conn   *fakeConn
	bus    *events.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	database, err := db.Open(dir)
	if err != nil {
		t.Fatalf("db.Open() failed: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	stmts := db.NewStmtCache(database.DB)
	kv, err := kvstore.Open(dir)
	if err != nil {
		t.Fatalf("kvstore.Open() failed: %v", err)
	}

	env := &testEnv{
		queue:  queue.New(kv),
		jobs:   store.NewJobs(stmts),
		cache:  cache.New(database, stmts, cache.Options{}),
		remote: newFakeRemote(),
		conn:   &fakeConn{},
		bus:    events.NewBus(),
	}
	env.conn.online.Store(true)
	env.mgr = NewManager(Deps{
		Queue:        env.queue,
		Jobs:         env.jobs,
		Remote:       env.remote,
		Connectivity: env.conn,
		Bus:          env.bus,
		Cache:        env.cache,
	})
	t.Cleanup(func() {
		env.mgr.Close()
		stmts.Close()
		database.Close()
	})
	return env
}

// addJob stores a job locally and queues it.
func (e *testEnv) addJob(t *testing.T, id, userID string) {
	t.Helper()
	job := &models.Job{ID: id, CommonID: "job" + id, PropertyID: "p1", Tasks: []models.Task{{Description: "task"}}}
	if _, err := e.jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("Create(%s) failed: %v", id, err)
	}
	if _, err := e.queue.Enqueue(id, userID); err != nil {
		t.Fatalf("Enqueue(%s) failed: %v", id, err)
	}
}

func (e *testEnv) queued(t *testing.T) []string {
	t.Helper()
	items, err := e.queue.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.JobID
	}
	return ids
}

func (e *testEnv) hasLocal(t *testing.T, id string) bool {
	t.Helper()
	_, err := e.jobs.Get(context.Background(), id)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("Get(%s) failed: %v", id, err)
	}
	return err == nil
}

// =====================================================
// SyncPendingJobs
// =====================================================

// TestSync_empty tests an empty queue completes immediately.
func TestSync_empty(t *testing.T) {
	env := newTestEnv(t)

	var states []models.SyncState
	env.mgr.AddSyncListener(func(s models.SyncState) { states = append(states, s) })

	res, err := env.mgr.SyncPendingJobs(context.Background())
	if err != nil {
		t.Fatalf("SyncPendingJobs() failed: %v", err)
	}
	if res.Total != 0 {
		t.Errorf("Total = %d, want 0", res.Total)
	}
	if len(states) != 2 || states[0].Status != models.SyncSyncing || states[1].Status != models.SyncComplete {
		t.Fatalf("states = %+v", states)
	}
	if states[1].Message != MessageNothingToSync {
		t.Errorf("message = %q", states[1].Message)
	}
	if env.mgr.State().Status != models.SyncIdle {
		t.Errorf("state after run = %s, want idle", env.mgr.State().Status)
	}
}

// TestSync_partialFailure tests one failed POST does not abort the batch.
func TestSync_partialFailure(t *testing.T) {
	env := newTestEnv(t)
	env.addJob(t, "j1", "u1")
	env.addJob(t, "j2", "u1")
	env.addJob(t, "j3", "u1")
	env.remote.fail["j2"] = apperrors.New(apperrors.ErrNetwork, "connection reset")

	var states []models.SyncState
	env.mgr.AddSyncListener(func(s models.SyncState) { states = append(states, s) })

	var completed []events.SyncCompleted
	env.bus.SyncCompleted.Subscribe(func(e events.SyncCompleted) { completed = append(completed, e) })

	res, err := env.mgr.SyncPendingJobs(context.Background())
	if err != nil {
		t.Fatalf("SyncPendingJobs() failed: %v", err)
	}
	if res.Synced != 2 || res.Failed != 1 {
		t.Errorf("result = %+v, want synced=2 failed=1", res)
	}

	if ids := env.queued(t); len(ids) != 1 || ids[0] != "j2" {
		t.Errorf("queue = %v, want [j2]", ids)
	}
	if env.hasLocal(t, "j1") || env.hasLocal(t, "j3") {
		t.Error("synced jobs should be deleted locally")
	}
	if !env.hasLocal(t, "j2") {
		t.Error("failed job should remain locally")
	}

	item, _ := env.queue.Get("j2")
	if item.Attempts != 1 || item.LastError == "" || item.Synced {
		t.Errorf("failed item = %+v", item)
	}

	last := states[len(states)-1]
	if last.Status != models.SyncComplete || last.SyncedCount != 2 || last.FailedCount != 1 {
		t.Errorf("final state = %+v", last)
	}
	var progress []float64
	for _, s := range states {
		if s.Status == models.SyncInProgress {
			progress = append(progress, s.Progress)
		}
	}
	if len(progress) != 2 || progress[0] >= progress[1] {
		t.Errorf("progress = %v, want two increasing values", progress)
	}
	if len(completed) != 1 || completed[0].SyncedCount != 2 || completed[0].FailedCount != 1 {
		t.Errorf("SyncCompleted events = %+v", completed)
	}
}

// TestSync_atMostOne tests a second call while a pass runs does not POST.
func TestSync_atMostOne(t *testing.T) {
	env := newTestEnv(t)
	env.addJob(t, "j1", "u1")
	env.addJob(t, "j2", "u1")
	env.remote.block = make(chan struct{})
	env.remote.started = make(chan struct{}, 1)

	errCh := make(chan error, 1)
	go func() {
		_, err := env.mgr.SyncPendingJobs(context.Background())
		errCh <- err
	}()
	<-env.remote.started

	if !env.mgr.Running() {
		t.Error("Running() = false during a pass")
	}
	_, err := env.mgr.SyncPendingJobs(context.Background())
	if !apperrors.Is(err, apperrors.ErrSyncInProgress) {
		t.Errorf("second call error = %v, want SYNC_IN_PROGRESS", err)
	}

	close(env.remote.block)
	if err := <-errCh; err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	for _, id := range []string{"j1", "j2"} {
		if n := env.remote.count(id); n != 1 {
			t.Errorf("posts for %s = %d, want 1", id, n)
		}
	}
}

// TestSync_alreadySynced tests a job accepted remotely on an earlier pass
// is finalized without posting again.
func TestSync_alreadySynced(t *testing.T) {
	env := newTestEnv(t)
	env.addJob(t, "j1", "u1")
	env.queue.MarkSynced("j1")

	res, err := env.mgr.SyncPendingJobs(context.Background())
	if err != nil {
		t.Fatalf("SyncPendingJobs() failed: %v", err)
	}
	if res.Synced != 1 || env.remote.count("j1") != 0 {
		t.Errorf("result = %+v, posts = %d", res, env.remote.count("j1"))
	}
	if len(env.queued(t)) != 0 || env.hasLocal(t, "j1") {
		t.Error("job should be removed from queue and store")
	}
}

// TestSync_commonIDKnownRemotely tests the cached remote job list prevents
// a duplicate POST.
func TestSync_commonIDKnownRemotely(t *testing.T) {
	env := newTestEnv(t)
	env.addJob(t, "j1", "u1")
	remote := []models.Job{{ID: "900", CommonID: "jobj1"}}
	if _, err := cache.SetValue(context.Background(), env.cache, cache.UserKey(cache.PrefixJobs, "u1"), remote); err != nil {
		t.Fatalf("SetValue() failed: %v", err)
	}

	res, err := env.mgr.SyncPendingJobs(context.Background())
	if err != nil {
		t.Fatalf("SyncPendingJobs() failed: %v", err)
	}
	if res.Synced != 1 || env.remote.count("j1") != 0 {
		t.Errorf("result = %+v, posts = %d, want deduplicated", res, env.remote.count("j1"))
	}
}

// TestSync_skips tests entries without a user or a local record are left
// queued and not posted.
func TestSync_skips(t *testing.T) {
	env := newTestEnv(t)
	env.addJob(t, "j1", "")
	env.queue.Enqueue("ghost", "u1")

	res, err := env.mgr.SyncPendingJobs(context.Background())
	if err != nil {
		t.Fatalf("SyncPendingJobs() failed: %v", err)
	}
	if res.Skipped != 2 || res.Synced != 0 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(env.queued(t)) != 2 {
		t.Errorf("queue = %v, want both entries kept", env.queued(t))
	}
}

// TestSync_sessionExpired tests a 401 publishes SessionExpired.
func TestSync_sessionExpired(t *testing.T) {
	env := newTestEnv(t)
	env.addJob(t, "j1", "u1")
	env.remote.fail["j1"] = apperrors.New(apperrors.ErrSessionExpired, "session expired")

	var expired []events.SessionExpired
	env.bus.SessionExpired.Subscribe(func(e events.SessionExpired) { expired = append(expired, e) })

	res, _ := env.mgr.SyncPendingJobs(context.Background())
	if res.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Failed)
	}
	if len(expired) != 1 || expired[0].Source != "sync" {
		t.Errorf("SessionExpired events = %+v", expired)
	}
}

// TestSync_segments tests pending uploads are drained after jobs.
func TestSync_segments(t *testing.T) {
	env := newTestEnv(t)
	segs := &fakeSegments{}
	env.mgr.deps.Segments = segs

	res, err := env.mgr.SyncPendingJobs(context.Background())
	if err != nil {
		t.Fatalf("SyncPendingJobs() failed: %v", err)
	}
	if segs.calls.Load() != 1 || res.SegmentsSynced != 2 {
		t.Errorf("segment calls = %d, result = %+v", segs.calls.Load(), res)
	}
}

// =====================================================
// Triggers and listeners
// =====================================================

// TestManualSync_offline tests no network call is made offline.
func TestManualSync_offline(t *testing.T) {
	env := newTestEnv(t)
	env.addJob(t, "j1", "u1")
	env.conn.online.Store(false)

	var states []models.SyncState
	env.mgr.AddSyncListener(func(s models.SyncState) { states = append(states, s) })

	_, err := env.mgr.ManualSync(context.Background())
	if !apperrors.Is(err, apperrors.ErrOffline) {
		t.Errorf("ManualSync() error = %v, want OFFLINE", err)
	}
	if env.remote.count("j1") != 0 {
		t.Error("ManualSync() posted while offline")
	}
	if len(states) != 1 || states[0].Message != MessageOffline {
		t.Errorf("states = %+v", states)
	}
}

// TestInitialize_reconnect tests a transition to online starts one pass and
// repeated Initialize calls do not register twice.
func TestInitialize_reconnect(t *testing.T) {
	env := newTestEnv(t)
	env.addJob(t, "j1", "u1")

	env.mgr.Initialize(context.Background())
	env.mgr.Initialize(context.Background())
	if n := env.conn.topic.Len(); n != 1 {
		t.Fatalf("connectivity subscribers = %d, want 1", n)
	}

	pending := make(chan int, 4)
	env.bus.PendingCountUpdated.Subscribe(func(e events.PendingCountUpdated) { pending <- e.Count })

	env.conn.set(false)
	env.conn.set(true)

	select {
	case n := <-pending:
		if n != 0 {
			t.Errorf("pending count = %d, want 0", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no sync after reconnect")
	}
	if env.remote.count("j1") != 1 {
		t.Errorf("posts = %d, want 1", env.remote.count("j1"))
	}
}

// TestInitialize_manualRequest tests the bus manual sync signal.
func TestInitialize_manualRequest(t *testing.T) {
	env := newTestEnv(t)
	env.addJob(t, "j1", "u1")
	env.mgr.Initialize(context.Background())

	done := make(chan struct{}, 1)
	env.bus.SyncCompleted.Subscribe(func(events.SyncCompleted) { done <- struct{}{} })
	env.bus.ManualSyncRequested.Publish(struct{}{})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("manual sync request was ignored")
	}
}

// TestListeners tests ordering and unsubscribe.
func TestListeners(t *testing.T) {
	env := newTestEnv(t)

	var order []string
	env.mgr.AddSyncListener(func(models.SyncState) { order = append(order, "a") })
	unsub := env.mgr.AddSyncListener(func(models.SyncState) { order = append(order, "b") })

	env.mgr.SyncPendingJobs(context.Background())
	if len(order) != 4 || order[0] != "a" || order[1] != "b" {
		t.Errorf("order = %v", order)
	}

	unsub()
	unsub()
	order = nil
	env.mgr.SyncPendingJobs(context.Background())
	for _, o := range order {
		if o == "b" {
			t.Fatal("unsubscribed listener was called")
		}
	}
}

// TestAwaitIdle tests the safety valve returns while a pass is stuck.
func TestAwaitIdle(t *testing.T) {
	env := newTestEnv(t)
	if !env.mgr.AwaitIdle(time.Millisecond) {
		t.Error("AwaitIdle() = false with no pass running")
	}

	env.addJob(t, "j1", "u1")
	env.remote.block = make(chan struct{})
	env.remote.started = make(chan struct{}, 1)
	go env.mgr.SyncPendingJobs(context.Background())
	<-env.remote.started

	if env.mgr.AwaitIdle(20 * time.Millisecond) {
		t.Error("AwaitIdle() = true while the pass is blocked")
	}
	close(env.remote.block)
	if !env.mgr.AwaitIdle(5 * time.Second) {
		t.Error("AwaitIdle() = false after the pass finished")
	}
}

// TestSync_queueError tests a queue read failure reports error state.
func TestSync_queueError(t *testing.T) {
	env := newTestEnv(t)
	// Corrupt the stored list so decoding fails.
	kvPath := t.TempDir()
	kv, _ := kvstore.Open(kvPath)
	kv.Set(kvstore.KeyPendingJobs, map[string]string{"not": "a list"})
	env.mgr.deps.Queue = queue.New(kv)

	var failed []events.SyncFailed
	env.bus.SyncFailed.Subscribe(func(e events.SyncFailed) { failed = append(failed, e) })

	_, err := env.mgr.SyncPendingJobs(context.Background())
	if err == nil {
		t.Fatal("SyncPendingJobs() should fail")
	}
	if len(failed) != 1 || !stderrors.Is(failed[0].Err, err) {
		t.Errorf("SyncFailed events = %+v", failed)
	}
	if env.mgr.Running() {
		t.Error("Running() = true after failure")
	}
}
