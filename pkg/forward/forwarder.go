package forward

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrymomot/fieldsync/pkg/logger"
	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
)

// maxErrorBody caps how much of a failed response is read for the reason.
const maxErrorBody = 64 * 1024

// maxReasonBody is how many bytes of that body end up in last_error.
const maxReasonBody = 200

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithHTTPClient replaces the default pooled client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Forwarder) {
		if c != nil {
			f.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Forwarder) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithClock overrides time.Now for signatures and breakers.
func WithClock(now func() time.Time) Option {
	return func(f *Forwarder) {
		if now != nil {
			f.now = now
		}
	}
}

type endpoint struct {
	url     string
	breaker *CircuitBreaker
}

// Forwarder posts operation payloads to business module endpoints.
type Forwarder struct {
	client    *http.Client
	endpoints map[syncqueue.OperationType]endpoint
	secret    string
	timeout   time.Duration
	userAgent string
	logger    *slog.Logger
	now       func() time.Time
}

// New validates the endpoint map and creates a forwarder. Types that share
// a URL share a circuit breaker.
func New(cfg Config, opts ...Option) (*Forwarder, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	f := &Forwarder{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		endpoints: make(map[syncqueue.OperationType]endpoint, len(cfg.Endpoints)),
		secret:    cfg.SigningSecret,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(logger.Component("forward"))

	breakers := make(map[string]*CircuitBreaker)
	for typ, raw := range cfg.Endpoints {
		if err := validateURL(raw); err != nil {
			return nil, fmt.Errorf("%w %q for %s: %w", ErrInvalidEndpoint, raw, typ, err)
		}
		cb, ok := breakers[raw]
		if !ok {
			cb = NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerSuccesses, cfg.BreakerRecovery)
			cb.now = f.now
			breakers[raw] = cb
		}
		f.endpoints[syncqueue.OperationType(typ)] = endpoint{url: raw, breaker: cb}
	}

	return f, nil
}

// Types returns the operation types that have an endpoint.
func (f *Forwarder) Types() []syncqueue.OperationType {
	types := make([]syncqueue.OperationType, 0, len(f.endpoints))
	for t := range f.endpoints {
		types = append(types, t)
	}
	return types
}

// Handlers returns one queue handler per configured operation type.
func (f *Forwarder) Handlers() map[syncqueue.OperationType]syncqueue.Handler {
	handlers := make(map[syncqueue.OperationType]syncqueue.Handler, len(f.endpoints))
	for t := range f.endpoints {
		handlers[t] = f.Handler(t)
	}
	return handlers
}

// Handler returns the queue handler that forwards operations of type t.
func (f *Forwarder) Handler(t syncqueue.OperationType) syncqueue.Handler {
	return syncqueue.HandlerFunc(func(ctx context.Context, payload []byte) syncqueue.Result {
		return f.Forward(ctx, t, payload)
	})
}

// Breaker returns the circuit breaker guarding the endpoint of t.
func (f *Forwarder) Breaker(t syncqueue.OperationType) (*CircuitBreaker, bool) {
	ep, ok := f.endpoints[t]
	return ep.breaker, ok
}

// Forward makes one delivery attempt of payload to the endpoint of t.
func (f *Forwarder) Forward(ctx context.Context, t syncqueue.OperationType, payload []byte) syncqueue.Result {
	ep, ok := f.endpoints[t]
	if !ok {
		return syncqueue.PermanentFailure(fmt.Sprintf("%s: %s", ErrUnknownType, t))
	}
	if !ep.breaker.Allow() {
		return syncqueue.TransientFailure(ErrCircuitOpen.Error())
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := f.newRequest(ctx, ep.url, payload)
	if err != nil {
		return syncqueue.PermanentFailure(err.Error())
	}

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		ep.breaker.Record(false)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return syncqueue.TransientFailure(syncqueue.ErrHandlerTimeout.Error())
		}
		return syncqueue.TransientFailure(fmt.Sprintf("forward to %s: %v", ep.url, err))
	}
	defer func() { _ = resp.Body.Close() }()

	res := classify(resp)
	ep.breaker.Record(res.Outcome != syncqueue.OutcomeTransient)

	f.logger.DebugContext(ctx, "operation forwarded",
		logger.OperationType(t),
		slog.String("endpoint", ep.url),
		slog.Int("status_code", resp.StatusCode),
		slog.String("outcome", res.Outcome.String()),
		logger.Duration(time.Since(started)))

	return res
}

func (f *Forwarder) newRequest(ctx context.Context, target string, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	if op, ok := syncqueue.OperationFromContext(ctx); ok {
		req.Header.Set("Idempotency-Key", op.ActorID+":"+op.IdempotencyKey)
		req.Header.Set("X-Operation-ID", op.ID.String())
		req.Header.Set("X-Actor-ID", op.ActorID)
		req.Header.Set("X-Operation-Type", string(op.Type))
		req.Header.Set("X-Retry-Count", strconv.Itoa(op.RetryCount))
	}

	if f.secret != "" {
		ts := f.now().Unix()
		sig, err := Sign(f.secret, payload, ts)
		if err != nil {
			return nil, err
		}
		req.Header.Set(HeaderSignature, sig)
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	}
	return req, nil
}

func classify(resp *http.Response) syncqueue.Result {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return syncqueue.Success()
	}

	reason := fmt.Sprintf("endpoint returned status %d", resp.StatusCode)
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if s := strings.TrimSpace(strings.ReplaceAll(string(body), "\n", " ")); s != "" {
		reason += ": " + truncate(strings.ToValidUTF8(s, "\uFFFD"), maxReasonBody)
	}

	if isPermanentStatus(resp.StatusCode) {
		return syncqueue.PermanentFailure(reason)
	}
	return syncqueue.TransientFailure(reason)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// isPermanentStatus reports client errors that a retry will not fix.
// 408, 425 and 429 are about timing, not about the request itself.
func isPermanentStatus(code int) bool {
	if code < 400 || code >= 500 {
		return false
	}
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("only http and https are supported")
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
