package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 10 * time.Second
)

// ExecutorConfig tunes an Executor. Zero values select the defaults.
type ExecutorConfig struct {
	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client

	// MaxAttempts is the total number of tries for transient failures.
	MaxAttempts int

	// BaseDelay is the first backoff delay; each retry doubles it up to
	// MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Sleep waits between attempts. It must return ctx.Err() if ctx ends
	// first. Tests swap it to record delays.
	Sleep func(ctx context.Context, d time.Duration) error

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Request describes one authenticated call.
type Request struct {
	Method string
	URL    string
	Header http.Header

	// Body is JSON-encoded when non-nil.
	Body any

	// FallbackMode asks for a *FallbackError instead of ErrUnauthorized
	// when the session cannot be restored but a user is cached.
	FallbackMode bool
}

// Executor sends authenticated requests on behalf of a Manager, refreshing
// the token when needed and retrying transient failures with exponential
// backoff.
type Executor struct {
	manager *Manager
	cfg     ExecutorConfig
	log     *slog.Logger
}

func NewExecutor(manager *Manager, cfg ExecutorConfig) *Executor {
	cfg = cfg.withDefaults()
	return &Executor{
		manager: manager,
		cfg:     cfg,
		log:     cfg.Logger.With("component", "authsdk.executor"),
	}
}

// Do sends req and returns the response body of a 2xx reply.
//
// Before each attempt the token is refreshed if it is missing or close to
// expiry. A 401 or 403 triggers one refresh-and-resend per call; network
// errors, 5xx, 408 and 429 are retried up to MaxAttempts in total. Errors
// match the package taxonomy.
func (e *Executor) Do(ctx context.Context, req Request) ([]byte, error) {
	var payload []byte
	if req.Body != nil {
		var err error
		if payload, err = json.Marshal(req.Body); err != nil {
			return nil, fmt.Errorf("authsdk: encode request body: %w", err)
		}
	}

	bo := e.newBackOff()
	call := &call{req: req, payload: payload}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := e.attempt(ctx, call)
		if err == nil {
			return body, nil
		}
		if !retryable(err) || attempt >= e.cfg.MaxAttempts {
			return nil, err
		}

		delay := bo.NextBackOff()
		e.log.Debug("retrying request",
			"method", req.Method,
			"url", req.URL,
			"attempt", attempt,
			"delay", delay,
			"err", err,
		)
		if err := e.cfg.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// Execute is Do followed by JSON decoding into T. An empty body yields the
// zero value.
func Execute[T any](ctx context.Context, e *Executor, req Request) (T, error) {
	var out T
	body, err := e.Do(ctx, req)
	if err != nil {
		return out, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("authsdk: decode response: %w", err)
	}
	return out, nil
}

// call carries per-Do state across attempts.
type call struct {
	req     Request
	payload []byte

	// authRetried is set once the single refresh-and-resend has been used.
	authRetried bool
}

func (e *Executor) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     e.cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         e.cfg.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

func (e *Executor) attempt(ctx context.Context, c *call) ([]byte, error) {
	token, err := e.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := e.send(ctx, c, token)
	if !isAuthStatus(err) {
		return body, err
	}

	if c.authRetried {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	c.authRetried = true

	token, rerr := e.manager.RefreshToken(ctx)
	if rerr != nil {
		return nil, e.authFailure(ctx, c.req, rerr)
	}

	body, err = e.send(ctx, c, token)
	if isAuthStatus(err) {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return body, err
}

// ensureToken returns a token to send, refreshing first when the Manager
// has none or it is close to expiry. A failed proactive refresh is ignored
// while the current token is still unexpired.
func (e *Executor) ensureToken(ctx context.Context) (string, error) {
	token := e.manager.Token()
	if token != "" && !e.manager.NeedsRefresh() {
		return token, nil
	}

	fresh, err := e.manager.RefreshToken(ctx)
	if err == nil {
		return fresh, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if valid, ok := e.manager.validToken(); ok {
		e.log.Debug("proactive refresh failed, using current token", "err", err)
		return valid, nil
	}
	return "", err
}

// authFailure builds the error returned when the refresh after a 401/403
// failed.
func (e *Executor) authFailure(ctx context.Context, req Request, cause error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if req.FallbackMode {
		if user, ok := e.manager.User(); ok {
			e.log.Warn("entering auth fallback mode", "user_id", user.ID, "err", cause)
			return &FallbackError{User: user, Cause: cause}
		}
	}
	return fmt.Errorf("%w: %w", ErrUnauthorized, cause)
}

func (e *Executor) send(ctx context.Context, c *call, token string) ([]byte, error) {
	var body io.Reader
	if c.payload != nil {
		body = bytes.NewReader(c.payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, c.req.Method, c.req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("authsdk: build request: %w", err)
	}
	for k, vs := range c.req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if c.payload != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := e.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseErrorResponse(resp, respBody)
	}
	return respBody, nil
}

func isAuthStatus(err error) bool {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	return reqErr.StatusCode == http.StatusUnauthorized || reqErr.StatusCode == http.StatusForbidden
}

// retryable excludes authentication outcomes, which have their own single
// refresh-and-resend cycle, even when their cause was transient.
func retryable(err error) bool {
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrAuthFallbackMode) {
		return false
	}
	return isTransient(err)
}
