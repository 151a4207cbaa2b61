// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package remote talks to the remote authority that owns the schedule.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/reelflow/internal/device"
	"github.com/ManuGH/reelflow/internal/log"
	"github.com/ManuGH/reelflow/internal/platform/httpx"
	"github.com/ManuGH/reelflow/internal/resilience"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	pathTasks     = "/api/device/tasks"
	pathRegister  = "/api/device/register"
	pathHeartbeat = "/api/device/heartbeat"
	pathConfig    = "/api/device/config"

	probeTimeout = 5 * time.Second
	maxBodyBytes = 8 << 20
)

const (
	defaultTimeout          = 10 * time.Second
	defaultRateLimit        = 2
	defaultRateLimitBurst   = 4
	defaultBreakerThreshold = 5
	defaultBreakerReset     = 30 * time.Second
	defaultUserAgent        = "reelflow"
)

// Options configures the client.
type Options struct {
	Timeout          time.Duration
	RateLimit        rate.Limit
	RateLimitBurst   int
	BreakerThreshold int
	BreakerReset     time.Duration
	UserAgent        string
	// HTTPClient overrides the traced default client. Tests use it.
	HTTPClient *http.Client
	// Now stamps outgoing device messages.
	Now func() time.Time
}

// Client is safe for concurrent use. The base URL can be swapped while
// requests are running.
type Client struct {
	mu   sync.RWMutex
	base string

	http      *http.Client
	limiter   *rate.Limiter
	breaker   *resilience.CircuitBreaker
	userAgent string
	now       func() time.Time
	logger    zerolog.Logger
}

// New returns a client for baseURL.
func New(baseURL string, opts Options) *Client {
	opts = normalizeOptions(opts)
	hc := opts.HTTPClient
	if hc == nil {
		hc = httpx.NewClient(opts.Timeout, httpx.WithTracing("remote"))
	}
	return &Client{
		base:      trimBase(baseURL),
		http:      hc,
		limiter:   rate.NewLimiter(opts.RateLimit, opts.RateLimitBurst),
		breaker:   resilience.NewCircuitBreaker("remote", opts.BreakerThreshold, opts.BreakerReset),
		userAgent: opts.UserAgent,
		now:       opts.Now,
		logger:    log.WithComponent("remote"),
	}
}

func normalizeOptions(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = defaultBreakerThreshold
	}
	if opts.BreakerReset <= 0 {
		opts.BreakerReset = defaultBreakerReset
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts
}

func trimBase(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// BaseURL returns the current server URL.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base
}

// SetBaseURL points the client at another server. Requests already in flight
// finish against the old one.
func (c *Client) SetBaseURL(raw string) {
	next := trimBase(raw)
	c.mu.Lock()
	old := c.base
	c.base = next
	c.mu.Unlock()
	if old != next {
		c.logger.Info().
			Str(log.FieldEvent, "remote.base_url_changed").
			Str(log.FieldBaseURL, next).
			Msg("remote server changed")
	}
}

// BreakerState exposes the circuit state for readiness reporting.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// FetchSchedule returns the schedule for deviceID. Records that fail
// validation are returned in Rejected; the rest are still usable.
func (c *Client) FetchSchedule(ctx context.Context, deviceID string) (Schedule, error) {
	q := url.Values{}
	q.Set("deviceId", deviceID)

	var body tasksResponse
	if err := c.do(ctx, "tasks", http.MethodGet, pathTasks, q, nil, &body); err != nil {
		return Schedule{}, err
	}
	return decodeSchedule(body.Tasks), nil
}

// Register announces the device once at startup.
func (c *Client) Register(ctx context.Context, deviceID string) (device.AuthStatus, error) {
	return c.deviceCall(ctx, "register", pathRegister, deviceID)
}

// Heartbeat sends a liveness signal.
func (c *Client) Heartbeat(ctx context.Context, deviceID string) (device.AuthStatus, error) {
	return c.deviceCall(ctx, "heartbeat", pathHeartbeat, deviceID)
}

// deviceCall posts a device message. The returned status is empty when the
// response carries none.
func (c *Client) deviceCall(ctx context.Context, op, path, deviceID string) (device.AuthStatus, error) {
	payload := deviceRequest{DeviceID: deviceID, Timestamp: c.now().UnixMilli()}
	var body deviceResponse
	if err := c.do(ctx, op, http.MethodPost, path, nil, payload, &body); err != nil {
		return "", err
	}
	st, _ := device.ParseAuthStatus(body.AuthStatus)
	return st, nil
}

// Probe tests connectivity to the server with a short deadline. It bypasses
// the circuit breaker so readiness reflects the real upstream state.
func (c *Client) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, pathConfig, nil, nil)
	if err != nil {
		return &FetchError{Sentinel: ErrUnavailable, Op: "probe", Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &FetchError{Sentinel: ErrUnavailable, Op: "probe", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return &FetchError{Sentinel: ErrBadStatus, Op: "probe", Status: resp.StatusCode}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, payload any) (*http.Request, error) {
	u, err := url.Parse(c.BaseURL())
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do performs one paced, breaker-guarded request and decodes a JSON reply
// into out.
func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &FetchError{Sentinel: ErrUnavailable, Op: op, Err: err}
	}

	err := c.breaker.ExecuteCounting(func() error {
		return c.roundTrip(ctx, op, method, path, q, payload, out)
	}, notUpstreamFault)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return &FetchError{Sentinel: ErrCircuitOpen, Op: op, Err: err}
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, q url.Values, payload, out any) error {
	req, err := c.newRequest(ctx, method, path, q, payload)
	if err != nil {
		return &FetchError{Sentinel: ErrUnavailable, Op: op, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &FetchError{Sentinel: ErrUnavailable, Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &FetchError{Sentinel: ErrBadStatus, Op: op, Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &FetchError{Sentinel: ErrUnavailable, Op: op, Status: resp.StatusCode, Err: err}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &FetchError{Sentinel: ErrBadResponse, Op: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}

// notUpstreamFault reports errors that say nothing about upstream health:
// caller cancellation, client errors and undecodable bodies.
func notUpstreamFault(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	if errors.Is(fe.Sentinel, ErrBadResponse) {
		return true
	}
	return errors.Is(fe.Sentinel, ErrBadStatus) && fe.Status < http.StatusInternalServerError
}
