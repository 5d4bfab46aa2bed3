// Package api is the client for the remote job-management API. Every
// endpoint answers with the envelope {"status": 1|0, "payload": ...}.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
	"github.com/wahabsharif/premierspaces-app/backend/internal/logging"
	"github.com/wahabsharif/premierspaces-app/backend/internal/metrics"
	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
)

// Endpoints
const (
	EndpointJobTypes    = "jobtypes.php"
	EndpointJobs        = "getjobs.php"
	EndpointCategories  = "fileuploadcats.php"
	EndpointFiles       = "get-files.php"
	EndpointCosts       = "costs.php"
	EndpointContractors = "contractors.php"
	EndpointProperties  = "searchproperty.php"
	EndpointNewJob      = "newjob.php"
	EndpointUpload      = "media-uploader.php"
)

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration

	// ThrottleWindow rejects a repeat of the same GET issued within the
	// window with THROTTLED. Zero disables throttling.
	ThrottleWindow time.Duration

	BreakerFailures  uint32
	BreakerOpenFor   time.Duration
	BreakerHalfProbe uint32

	HTTPClient *http.Client
	Clock      func() time.Time
}

// Client calls the remote API.
type Client struct {
	base    string
	http    *http.Client
	opts    Options
	breaker *gobreaker.CircuitBreaker
	flight  singleflight.Group
	log     *logging.Logger

	mu       sync.Mutex
	lastCall map[string]time.Time
}

// Envelope is the response wrapper of every endpoint.
type Envelope struct {
	Status  interface{}     `json:"status"`
	Payload json.RawMessage `json:"payload"`
}

// OK reports whether status is 1 (number or string).
func (e *Envelope) OK() bool {
	n, ok := models.SafeNumber(e.Status)
	return ok && n == 1
}

// Message extracts payload.message for failed envelopes.
func (e *Envelope) Message() string {
	var m struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(e.Payload, &m) == nil {
		if m.Message != "" {
			return m.Message
		}
		return m.Error
	}
	return ""
}

// New creates a client. Zero option fields take defaults.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerOpenFor <= 0 {
		opts.BreakerOpenFor = 30 * time.Second
	}
	if opts.BreakerHalfProbe == 0 {
		opts.BreakerHalfProbe = 1
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{
		base:     opts.BaseURL,
		http:     httpClient,
		opts:     opts,
		log:      logging.Component("api"),
		lastCall: make(map[string]time.Time),
	}

	failures := opts.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote-api",
		MaxRequests: opts.BreakerHalfProbe,
		Timeout:     opts.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Only transport failures and 5xx trip the breaker; a 401 or a bad
		// payload says nothing about reachability.
		IsSuccessful: func(err error) bool {
			return err == nil || !apperrors.Is(err, apperrors.ErrNetwork)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("circuit breaker state changed", map[string]interface{}{
				"from": from.String(), "to": to.String(),
			})
		},
	})
	return c
}

// BreakerState returns the circuit breaker state name.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

func (c *Client) endpointURL(endpoint string, query url.Values) string {
	u := c.base + "/" + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// throttled records a call to key and reports whether an identical call
// happened within the throttle window.
func (c *Client) throttled(key string) bool {
	if c.opts.ThrottleWindow <= 0 {
		return false
	}
	now := c.opts.Clock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.lastCall[key]; ok && now.Sub(last) < c.opts.ThrottleWindow {
		return true
	}
	c.lastCall[key] = now
	return false
}

// ResetThrottle forgets previous calls so the next request goes out.
func (c *Client) ResetThrottle() {
	c.mu.Lock()
	c.lastCall = make(map[string]time.Time)
	c.mu.Unlock()
}

// get performs a throttled GET. Identical concurrent GETs share one request.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values) (*Envelope, error) {
	u := c.endpointURL(endpoint, query)

	v, err, _ := c.flight.Do(u, func() (interface{}, error) {
		if c.throttled(u) {
			metrics.APIRequests.WithLabelValues(endpoint, "throttled").Inc()
			return nil, apperrors.New(apperrors.ErrThrottled, fmt.Sprintf("%s called too recently", endpoint))
		}
		return c.do(ctx, endpoint, func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		})
	})
	if err != nil {
		return nil, err
	}
	return v.(*Envelope), nil
}

// postJSON performs a JSON POST.
func (c *Client) postJSON(ctx context.Context, endpoint string, query url.Values, body interface{}) (*Envelope, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "failed to encode request", err)
	}
	u := c.endpointURL(endpoint, query)
	return c.do(ctx, endpoint, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
}

// do sends one request through the circuit breaker with the call timeout
// and decodes the envelope.
func (c *Client) do(ctx context.Context, endpoint string, build func(context.Context) (*http.Request, error)) (*Envelope, error) {
	start := time.Now()
	v, err := c.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		req, err := build(ctx)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrNetwork, fmt.Sprintf("%s request failed", endpoint), err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrNetwork, fmt.Sprintf("%s response read failed", endpoint), err)
		}
		return decodeResponse(endpoint, resp.StatusCode, body)
	})
	metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		err = apperrors.Wrap(apperrors.ErrNetwork, "remote API unavailable", err)
	}
	if err != nil {
		metrics.APIRequests.WithLabelValues(endpoint, string(apperrors.CodeOf(err))).Inc()
		return nil, err
	}
	metrics.APIRequests.WithLabelValues(endpoint, "ok").Inc()
	return v.(*Envelope), nil
}

func decodeResponse(endpoint string, status int, body []byte) (*Envelope, error) {
	switch {
	case status == http.StatusUnauthorized:
		return nil, apperrors.New(apperrors.ErrSessionExpired, "session expired")
	case status >= 500:
		return nil, apperrors.New(apperrors.ErrNetwork, fmt.Sprintf("%s returned HTTP %d", endpoint, status))
	case status < 200 || status > 299:
		return nil, apperrors.New(apperrors.ErrRemoteRejected, fmt.Sprintf("%s returned HTTP %d", endpoint, status))
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMalformedResponse, fmt.Sprintf("%s returned invalid JSON", endpoint), err)
	}
	if !env.OK() {
		msg := env.Message()
		if msg == "" {
			msg = fmt.Sprintf("status %v", env.Status)
		}
		return nil, apperrors.New(apperrors.ErrMalformedResponse, fmt.Sprintf("%s: %s", endpoint, msg))
	}
	return &env, nil
}

// decodeList requires the payload to be a JSON array and decodes it.
func decodeList[T any](endpoint string, env *Envelope) ([]T, error) {
	payload := bytes.TrimSpace(env.Payload)
	if len(payload) == 0 || payload[0] != '[' {
		return nil, apperrors.New(apperrors.ErrMalformedResponse, fmt.Sprintf("%s payload is not an array", endpoint))
	}
	var out []T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMalformedResponse, fmt.Sprintf("%s payload has unexpected shape", endpoint), err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}
