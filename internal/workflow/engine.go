package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"fieldlink/internal/config"
	"fieldlink/internal/idempotency"
	"fieldlink/internal/logging"
)

// Delivery policy for externally-delivered actions.
const (
	maxDeliveryAttempts = 3
	baseRetryDelay      = 500 * time.Millisecond
	maxRetryJitter      = 250 * time.Millisecond

	resultCacheTTL        = 10 * time.Minute
	resultCacheMaxEntries = 1000

	maxResponseBody = 1 << 20
)

// HTTPDoer describes the HTTP client used for webhook delivery.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Counters tracks delivery outcomes for the status API.
type Counters struct {
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Replayed  int64 `json:"replayed"`
}

// Engine executes workflow actions: internal actions complete locally,
// external ones are delivered to configured webhooks with retry and
// idempotent replay.
type Engine struct {
	cfg    *config.Config
	client HTTPDoer
	cache  *idempotency.Cache[Result]
	logger *slog.Logger

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration

	completed atomic.Int64
	failed    atomic.Int64
	replayed  atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithHTTPClient overrides the delivery HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(e *Engine) {
		if client != nil {
			e.client = client
		}
	}
}

// WithClock injects a deterministic clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSleep overrides the backoff sleeper, letting tests skip real delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// NewEngine constructs a delivery engine.
func NewEngine(cfg *config.Config, logger *slog.Logger, opts ...Option) *Engine {
	engine := &Engine{
		cfg:    cfg,
		client: &http.Client{},
		cache:  idempotency.New[Result](resultCacheTTL, resultCacheMaxEntries),
		logger: logging.NewComponentLogger(logger, "workflow"),
		now:    time.Now,
		sleep:  sleepWithContext,
		jitter: func() time.Duration { return rand.N(maxRetryJitter) },
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Snapshot returns current delivery counters.
func (e *Engine) Snapshot() Counters {
	return Counters{
		Completed: e.completed.Load(),
		Failed:    e.failed.Load(),
		Replayed:  e.replayed.Load(),
	}
}

// RunAction executes a workflow action and always returns a Result;
// expected failure modes surface as Status "failed" with a descriptive
// message rather than an error. Once invoked it runs to completion —
// success, exhausted retries, or a non-retriable failure.
func (e *Engine) RunAction(ctx context.Context, req Request) Result {
	key := resolveIdempotencyKey(req)

	if cached, ok := e.cache.Get(key); ok && cached.Completed() {
		e.replayed.Add(1)
		e.logger.Debug("replayed cached result",
			logging.String(logging.FieldAction, string(req.Action)),
			logging.String("idempotency_key", key))
		return cached
	}

	if !req.Action.External() {
		result := e.completeLocally(req, fmt.Sprintf("%s recorded for inspection %s", req.Action.Label(), req.InspectionID))
		e.cache.Put(key, result)
		return result
	}

	hook, ok := e.cfg.WebhookFor(string(req.Action))
	if !ok {
		result := Result{Status: StatusFailed, ResultMessage: fmt.Sprintf("no delivery target for action %q", req.Action)}
		e.failed.Add(1)
		return result
	}

	ep, err := resolveEndpoint(hook)
	if err != nil {
		e.failed.Add(1)
		return Result{Status: StatusFailed, ResultMessage: err.Error()}
	}
	if ep == nil {
		// No webhook configured: the system stays usable offline.
		result := e.completeLocally(req, fmt.Sprintf("%s completed locally (no webhook configured)", req.Action.Label()))
		e.cache.Put(key, result)
		return result
	}

	result := e.deliver(ctx, ep, req, key)
	if result.Completed() {
		e.completed.Add(1)
		e.cache.Put(key, result)
	} else {
		// Failed results are not cached so a later request with the same
		// key can retry instead of replaying the failure forever.
		e.failed.Add(1)
	}
	return result
}

func (e *Engine) completeLocally(req Request, message string) Result {
	e.completed.Add(1)
	return Result{
		Status:              StatusCompleted,
		ResultMessage:       message,
		ExternalReferenceID: req.Action.referencePrefix() + uuid.NewString(),
	}
}

func (e *Engine) deliver(ctx context.Context, ep *endpoint, req Request, key string) Result {
	requestID := uuid.NewString()
	payload := buildPayload(ep, req, key, requestID, e.now())
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Status: StatusFailed, ResultMessage: fmt.Sprintf("encode webhook payload: %v", err)}
	}

	var lastErr error
	for attempt := 1; attempt <= maxDeliveryAttempts; attempt++ {
		result, attemptErr := e.attempt(ctx, ep, key, body)
		if attemptErr == nil {
			e.logger.Info("webhook delivered",
				logging.String(logging.FieldAction, string(req.Action)),
				logging.String("provider", ep.provider.String()),
				logging.Int("attempt", attempt),
				logging.String("reference", result.ExternalReferenceID))
			return result
		}
		lastErr = attemptErr

		if !IsRetriable(attemptErr) {
			e.logger.Warn("webhook delivery failed",
				logging.String(logging.FieldAction, string(req.Action)),
				logging.Int("attempt", attempt),
				logging.Error(attemptErr),
				logging.String(logging.FieldErrorHint, "check webhook configuration and target availability"))
			break
		}
		if attempt == maxDeliveryAttempts {
			break
		}

		delay := baseRetryDelay*(1<<(attempt-1)) + e.jitter()
		e.logger.Debug("retrying webhook delivery",
			logging.String(logging.FieldAction, string(req.Action)),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(attemptErr))
		if err := e.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	return Result{Status: StatusFailed, ResultMessage: lastErr.Error()}
}

func (e *Engine) attempt(ctx context.Context, ep *endpoint, key string, body []byte) (Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, ep.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, ep.url.String(), bytes.NewReader(body))
	if err != nil {
		return Result{}, &DeliveryError{Kind: KindConnectionFailed, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", key)
	if ep.authHeader != "" {
		req.Header.Set("Authorization", ep.authHeader)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Result{}, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return Result{}, &DeliveryError{Kind: KindHTTPStatus, StatusCode: resp.StatusCode}
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	var decoded map[string]any
	if len(raw) > 0 {
		// Tolerate non-JSON success bodies; extraction falls back below.
		_ = json.Unmarshal(raw, &decoded)
	}

	reference := extractReference(decoded)
	if reference == "" {
		reference = "delivery_" + uuid.NewString()
	}
	message := extractMessage(decoded)
	if message == "" {
		message = fmt.Sprintf("delivered to %s (%s)", ep.url.Host, ep.provider)
	}

	return Result{
		Status:              StatusCompleted,
		ResultMessage:       message,
		ExternalReferenceID: reference,
	}, nil
}

func resolveIdempotencyKey(req Request) string {
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		return key
	}
	for _, field := range []string{"idempotencyKey", "idempotency_key"} {
		if key := strings.TrimSpace(req.Metadata[field]); key != "" {
			return key
		}
	}
	// No caller key: a fresh key means no dedup across retries.
	return uuid.NewString()
}
