// Package connectivity tracks whether the remote API is reachable and
// announces offline/online transitions.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/wahabsharif/premierspaces-app/backend/internal/events"
	"github.com/wahabsharif/premierspaces-app/backend/internal/logging"
)

// Options configures a Monitor.
type Options struct {
	// ProbeURL is requested to check reachability. Without it the monitor
	// only reflects SetOnline calls.
	ProbeURL     string
	PollInterval time.Duration
	ProbeTimeout time.Duration
	Initial      bool
	Client       *http.Client
}

// Monitor holds the current connectivity state.
type Monitor struct {
	opts   Options
	client *http.Client
	log    *logging.Logger

	mu     sync.Mutex
	online bool

	changes events.Topic[bool]
}

// NewMonitor creates a monitor starting in opts.Initial state.
func NewMonitor(opts Options) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 3 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.ProbeTimeout}
	}
	return &Monitor{
		opts:   opts,
		client: client,
		online: opts.Initial,
		log:    logging.Component("connectivity"),
	}
}

// Online returns the last known state without probing.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records the state and notifies subscribers when it changed.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if changed {
		m.log.Info("connectivity changed", map[string]interface{}{"online": online})
		m.changes.Publish(online)
	}
}

// IsOnline returns the live state. With a probe URL configured it checks
// reachability now and records the result; otherwise it returns Online().
func (m *Monitor) IsOnline(ctx context.Context) bool {
	if m.opts.ProbeURL == "" {
		return m.Online()
	}
	online := m.probe(ctx)
	m.SetOnline(online)
	return online
}

func (m *Monitor) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.opts.ProbeURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Subscribe registers fn for state transitions and returns an unsubscribe
// function.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	return m.changes.Subscribe(fn)
}

// Start polls the probe URL until ctx is done. It returns immediately when
// no probe URL is configured.
func (m *Monitor) Start(ctx context.Context) {
	if m.opts.ProbeURL == "" {
		return
	}
	go func() {
		ticker := time.NewTicker(m.opts.PollInterval)
		defer ticker.Stop()

		m.IsOnline(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.IsOnline(ctx)
			}
		}
	}()
}
