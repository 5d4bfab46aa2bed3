// Package app assembles the field-sync core from configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	stdsync "sync"

	"github.com/wahabsharif/premierspaces-app/backend/internal/api"
	"github.com/wahabsharif/premierspaces-app/backend/internal/cache"
	"github.com/wahabsharif/premierspaces-app/backend/internal/config"
	"github.com/wahabsharif/premierspaces-app/backend/internal/connectivity"
	"github.com/wahabsharif/premierspaces-app/backend/internal/crypto"
	"github.com/wahabsharif/premierspaces-app/backend/internal/db"
	"github.com/wahabsharif/premierspaces-app/backend/internal/events"
	"github.com/wahabsharif/premierspaces-app/backend/internal/kvstore"
	"github.com/wahabsharif/premierspaces-app/backend/internal/logging"
	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
	"github.com/wahabsharif/premierspaces-app/backend/internal/prefetch"
	"github.com/wahabsharif/premierspaces-app/backend/internal/services"
	"github.com/wahabsharif/premierspaces-app/backend/internal/session"
	"github.com/wahabsharif/premierspaces-app/backend/internal/store"
	syncpkg "github.com/wahabsharif/premierspaces-app/backend/internal/sync"
	"github.com/wahabsharif/premierspaces-app/backend/internal/sync/queue"
	"github.com/wahabsharif/premierspaces-app/backend/internal/sync/scheduler"
	"github.com/wahabsharif/premierspaces-app/backend/internal/upload"
)

// Options overrides collaborators that are normally built from config.
type Options struct {
	// HTTPClient is used for the API and the connectivity probe.
	HTTPClient *http.Client

	// Navigator receives login redirects. Without one they are only logged.
	Navigator prefetch.Navigator

	// Online is the connectivity state before the first probe.
	Online bool

	// SkipLogging leaves the global logger untouched.
	SkipLogging bool
}

// App holds every component of a running core.
type App struct {
	Config *config.Config

	DB       *db.DB
	Stmts    *db.StmtCache
	KV       *kvstore.Store
	Bus      *events.Bus
	Cache    *cache.Cache
	Jobs     *store.Store[*models.Job]
	Costs    *store.Store[*models.Cost]
	Segments *store.Store[*models.UploadSegment]
	Queue    *queue.Queue
	Session  *session.Store
	Monitor  *connectivity.Monitor
	API      *api.Client

	Resources *prefetch.Resources
	Prefetch  *prefetch.Orchestrator
	Uploads   *upload.Pipeline
	Sync      *syncpkg.Manager
	Scheduler *scheduler.Scheduler

	JobService  *services.JobService
	CostService *services.CostService

	log      *logging.Logger
	logClose io.Closer
	unsubs   []func()
	cancel   context.CancelFunc

	startOnce stdsync.Once
	closeOnce stdsync.Once
}

// logNavigator is used when no UI is attached.
type logNavigator struct {
	log *logging.Logger
}

func (n logNavigator) OnLoginScreen() bool { return false }

func (n logNavigator) RedirectToLogin() {
	n.log.Warn("login required")
}

func (n logNavigator) ShowSessionExpired() {
	n.log.Warn("session expired, login required")
}

// New builds the core from cfg. Nothing runs until Start.
func New(cfg *config.Config, opts Options) (a *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a = &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if !opts.SkipLogging {
		a.logClose, err = logging.Configure(logging.Options{
			Level:      logging.ParseLevel(cfg.Log.Level),
			Format:     cfg.Log.Format,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure logging: %w", err)
		}
	}
	a.log = logging.Component("app")

	a.DB, err = db.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	if err = a.DB.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	a.Stmts = db.NewStmtCache(a.DB.DB)

	a.KV, err = kvstore.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	a.Bus = events.NewBus()
	a.Cache = cache.New(a.DB, a.Stmts, cache.Options{
		DefaultTTL: cfg.Cache.DefaultTTL,
		ChunkSize:  cfg.Cache.ChunkSize,
		MemorySize: cfg.Cache.MemorySize,
		MemoryTTL:  cfg.Cache.MemoryTTL,
		Notifier:   a.Bus,
	})
	a.Jobs = store.NewJobs(a.Stmts)
	a.Costs = store.NewCosts(a.Stmts)
	a.Segments = store.NewSegments(a.Stmts)
	a.Queue = queue.New(a.KV)
	tokenKey, err := crypto.LoadOrCreateKey(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	a.Session = session.New(a.KV, session.WithTokenKey(tokenKey))

	a.Monitor = connectivity.NewMonitor(connectivity.Options{
		ProbeURL:     cfg.Connectivity.ProbeURL,
		PollInterval: cfg.Connectivity.PollInterval,
		ProbeTimeout: cfg.Connectivity.ProbeTimeout,
		Initial:      opts.Online,
		Client:       opts.HTTPClient,
	})
	a.API = api.New(api.Options{
		BaseURL:          cfg.API.BaseURL,
		Timeout:          cfg.API.Timeout,
		ThrottleWindow:   cfg.API.ThrottleWindow,
		BreakerFailures:  cfg.API.BreakerFailures,
		BreakerOpenFor:   cfg.API.BreakerOpenFor,
		BreakerHalfProbe: cfg.API.BreakerHalfProbe,
		HTTPClient:       opts.HTTPClient,
	})

	a.Resources = prefetch.NewResources(a.API, a.Cache, a.Monitor, prefetch.NewLookup())
	a.Uploads = upload.NewPipeline(a.API, a.Segments, cfg.Upload.Concurrency)

	a.Sync = syncpkg.NewManager(syncpkg.Deps{
		Queue:        a.Queue,
		Jobs:         a.Jobs,
		Remote:       a.API,
		Connectivity: a.Monitor,
		Bus:          a.Bus,
		Cache:        a.Cache,
		Segments:     a.Uploads,
		AwaitTimeout: cfg.Sync.CompletionTimeout,
	})
	a.Scheduler = scheduler.NewScheduler(a.Sync, a.Cache, &scheduler.SchedulerConfig{
		RetryInterval:   cfg.Sync.RetryInterval,
		CleanupInterval: cfg.Cache.CleanupInterval,
		WaitTimeout:     cfg.Sync.CompletionTimeout,
	})

	a.JobService = services.NewJobService(a.Jobs, a.Queue, a.API, a.Monitor, a.Session, a.Bus)
	a.CostService = services.NewCostService(a.Costs, a.API, a.Resources, a.Monitor, a.Session)

	nav := opts.Navigator
	if nav == nil {
		nav = logNavigator{log: a.log}
	}
	a.Prefetch = prefetch.NewOrchestrator(context.Background(), a.Resources, a.Session, prefetch.Options{
		Debounce:     cfg.Prefetch.Debounce,
		CleanupChunk: cfg.Prefetch.CleanupChunk,
		Navigator:    nav,
		Bus:          a.Bus,
	})

	return a, nil
}

// Start wires connectivity and session changes to their consumers and
// starts the background loops. Only the first call has an effect.
func (a *App) Start(ctx context.Context) {
	a.startOnce.Do(func() {
		ctx, a.cancel = context.WithCancel(ctx)

		online := a.Monitor.Online()
		a.Scheduler.SetOnlineStatus(online)
		a.unsubs = append(a.unsubs,
			a.Monitor.Subscribe(a.Scheduler.SetOnlineStatus),
			a.Monitor.Subscribe(a.Prefetch.OnReconnect),
			a.Session.Subscribe(a.Prefetch.SetLoggedIn),
			a.Bus.StorageError.Subscribe(func(e events.StorageError) {
				a.log.Error("storage error", e.Err, map[string]interface{}{"op": e.Op})
			}),
		)

		a.Sync.Initialize(ctx)
		a.Monitor.Start(ctx)
		a.Scheduler.Start(ctx)

		if sess, err := a.Session.Load(); err == nil && sess != nil {
			a.Prefetch.SetLoggedIn(true)
		}

		a.log.Info("core started", map[string]interface{}{
			"data_dir": a.Config.DataDir,
			"online":   online,
		})
	})
}

// Close stops every component in reverse order of construction. It is safe
// to call on a partially built App.
func (a *App) Close() error {
	var firstErr error
	a.closeOnce.Do(func() {
		for _, unsub := range a.unsubs {
			unsub()
		}
		if a.Scheduler != nil {
			a.Scheduler.Stop()
		}
		if a.Sync != nil {
			a.Sync.Close()
		}
		if a.Prefetch != nil {
			a.Prefetch.Close()
		}
		if a.cancel != nil {
			a.cancel()
		}
		if a.Stmts != nil {
			if err := a.Stmts.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if a.DB != nil {
			if err := a.DB.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if a.logClose != nil {
			a.logClose.Close()
		}
	})
	return firstErr
}
