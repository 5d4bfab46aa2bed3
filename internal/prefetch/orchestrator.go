package prefetch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wahabsharif/premierspaces-app/backend/internal/cache"
	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
	"github.com/wahabsharif/premierspaces-app/backend/internal/events"
	"github.com/wahabsharif/premierspaces-app/backend/internal/logging"
	"github.com/wahabsharif/premierspaces-app/backend/internal/metrics"
	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
)

// Defaults
const (
	DefaultDebounce     = 300 * time.Millisecond
	DefaultCleanupChunk = 20
)

// Navigator is the UI collaborator the orchestrator redirects through.
type Navigator interface {
	OnLoginScreen() bool
	RedirectToLogin()
	ShowSessionExpired()
}

// Sessions returns the stored login.
type Sessions interface {
	Load() (*models.Session, error)
}

// Options configures an Orchestrator.
type Options struct {
	Debounce     time.Duration
	CleanupChunk int
	Navigator    Navigator
	Bus          *events.Bus
}

// Result describes one prefetch pass.
type Result struct {
	UserID   string           `json:"user_id,omitempty"`
	Skipped  string           `json:"skipped,omitempty"`
	Removed  int              `json:"removed"`
	Failed   map[string]error `json:"-"`
	Complete bool             `json:"complete"`
}

// Skip reasons
const (
	SkipInFlight  = "in_flight"
	SkipComplete  = "complete"
	SkipOffline   = "offline"
	SkipNoSession = "no_session"
)

// Orchestrator fills the cache after login and on reconnect.
type Orchestrator struct {
	res      *Resources
	cache    *cache.Cache
	sessions Sessions
	opts     Options
	log      *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	loggedIn bool
	loading  bool
	complete bool
	timer    *time.Timer
}

// NewOrchestrator creates an Orchestrator. Background passes use ctx.
func NewOrchestrator(ctx context.Context, res *Resources, sessions Sessions, opts Options) *Orchestrator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.CleanupChunk <= 0 {
		opts.CleanupChunk = DefaultCleanupChunk
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Orchestrator{
		res:      res,
		cache:    res.cache,
		sessions: sessions,
		opts:     opts,
		log:      logging.Component("prefetch"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetLoggedIn records the login state. Every call while logged in restarts
// the debounce timer, so a burst of calls runs a single pass. A change of
// state resets the complete flag; logging out cancels a pending pass.
func (o *Orchestrator) SetLoggedIn(loggedIn bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if loggedIn != o.loggedIn {
		o.complete = false
	}
	o.loggedIn = loggedIn
	o.stopTimerLocked()

	if !loggedIn {
		return
	}
	o.timer = time.AfterFunc(o.opts.Debounce, func() {
		o.mu.Lock()
		o.timer = nil
		o.mu.Unlock()
		o.run(false)
	})
}

// OnReconnect forces a pass when logged in and online again.
func (o *Orchestrator) OnReconnect(online bool) {
	if !online {
		return
	}
	o.mu.Lock()
	loggedIn := o.loggedIn
	o.mu.Unlock()
	if loggedIn {
		o.run(true)
	}
}

func (o *Orchestrator) run(force bool) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if _, err := o.Prefetch(o.ctx, force); err != nil {
			o.log.Debug("prefetch did not complete", map[string]interface{}{"error": err.Error()})
		}
	}()
}

func (o *Orchestrator) stopTimerLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

// Complete reports whether the last pass filled every resource.
func (o *Orchestrator) Complete() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.complete
}

// Close cancels a pending debounce and waits for running passes.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.stopTimerLocked()
	o.mu.Unlock()
	o.cancel()
	o.wg.Wait()
}

// Prefetch removes other users' cached data and fetches job types, jobs,
// categories and files in parallel. The pass counts as complete only if
// every fetch succeeds. Without force a completed cache is not refetched.
func (o *Orchestrator) Prefetch(ctx context.Context, force bool) (Result, error) {
	o.mu.Lock()
	switch {
	case o.loading:
		o.mu.Unlock()
		return Result{Skipped: SkipInFlight}, nil
	case o.complete && !force:
		o.mu.Unlock()
		return Result{Skipped: SkipComplete}, nil
	}
	o.loading = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.loading = false
		o.mu.Unlock()
	}()

	if o.res.conn != nil && !o.res.conn.IsOnline(ctx) {
		metrics.PrefetchRuns.WithLabelValues(SkipOffline).Inc()
		return Result{Skipped: SkipOffline}, nil
	}

	sess, err := o.sessions.Load()
	if err != nil {
		return Result{}, err
	}
	if !sess.Valid() {
		metrics.PrefetchRuns.WithLabelValues(SkipNoSession).Inc()
		if nav := o.opts.Navigator; nav != nil && !nav.OnLoginScreen() {
			nav.RedirectToLogin()
		}
		return Result{Skipped: SkipNoSession}, apperrors.New(apperrors.ErrNoSession, "no user session")
	}
	userID := sess.UserID.String()
	res := Result{UserID: userID, Failed: map[string]error{}}

	removed, err := o.cleanupStaleUsers(ctx, userID)
	res.Removed = removed
	if err != nil {
		o.log.Error("failed to remove other users' cache entries", err)
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, rs := range o.res.prefetched() {
		rs := rs
		g.Go(func() error {
			if err := rs.refresh(ctx, userID); err != nil {
				mu.Lock()
				res.Failed[rs.name] = err
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	res.Complete = len(res.Failed) == 0
	o.mu.Lock()
	o.complete = res.Complete
	o.mu.Unlock()

	if res.Complete {
		metrics.PrefetchRuns.WithLabelValues("complete").Inc()
		o.log.Info("prefetch complete", map[string]interface{}{"user_id": userID, "removed": removed})
		return res, nil
	}

	metrics.PrefetchRuns.WithLabelValues("partial").Inc()
	for name, err := range res.Failed {
		o.log.Warn("prefetch failed", map[string]interface{}{"resource": name, "error": err.Error()})
	}
	for _, err := range res.Failed {
		if apperrors.IsSessionExpired(err) {
			o.sessionExpired()
			return res, err
		}
	}
	return res, nil
}

func (o *Orchestrator) sessionExpired() {
	nav := o.opts.Navigator
	if nav != nil && nav.OnLoginScreen() {
		return
	}
	o.opts.Bus.SessionExpired.Publish(events.SessionExpired{Source: "prefetch"})
	if nav != nil {
		nav.ShowSessionExpired()
	}
}

// cleanupStaleUsers deletes per-user cache keys that belong to anyone but
// userID. Keys are deleted concurrently, one chunk at a time.
func (o *Orchestrator) cleanupStaleUsers(ctx context.Context, userID string) (int, error) {
	keys, err := o.cache.Keys(ctx, "")
	if err != nil {
		return 0, err
	}

	var stale []string
	for _, k := range keys {
		if owner, ok := cache.KeyOwner(k); ok && owner != userID {
			stale = append(stale, k)
		}
	}

	removed := 0
	for start := 0; start < len(stale); start += o.opts.CleanupChunk {
		end := start + o.opts.CleanupChunk
		if end > len(stale) {
			end = len(stale)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, k := range stale[start:end] {
			k := k
			g.Go(func() error {
				_, err := o.cache.Delete(gctx, k)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return removed, err
		}
		removed += end - start
	}
	return removed, nil
}
