package authsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/authcore/pkg/jwtx"
	"github.com/aussiebroadwan/authcore/pkg/sessionx"
)

const (
	// DefaultRefreshThreshold is how close to expiry a token must be before
	// NeedsRefresh reports true.
	DefaultRefreshThreshold = 60 * time.Minute

	// DefaultMaxRefreshFailures is the number of consecutive rejected
	// refreshes after which the Manager signs the user out.
	DefaultMaxRefreshFailures = 3

	refreshKey = "refresh"
)

// Refresher exchanges a still-recognisable token for a new one.
type Refresher interface {
	RefreshToken(ctx context.Context, token string, userID int64) (string, error)
}

// ManagerConfig tunes a Manager. Zero values select the defaults.
type ManagerConfig struct {
	// RefreshThreshold defaults to DefaultRefreshThreshold.
	RefreshThreshold time.Duration

	// MaxRefreshFailures is the number of consecutive refreshes the server
	// rejects (401 or 403) before the Manager signs out. Transient failures
	// never count. It defaults to DefaultMaxRefreshFailures; a negative value
	// never signs out.
	MaxRefreshFailures int

	// AutoRefreshInterval, when positive, starts a background loop on
	// Initialize that refreshes whenever NeedsRefresh is true.
	AutoRefreshInterval time.Duration

	// Clock defaults to time.Now.
	Clock func() time.Time

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.RefreshThreshold <= 0 {
		c.RefreshThreshold = DefaultRefreshThreshold
	}
	if c.MaxRefreshFailures == 0 {
		c.MaxRefreshFailures = DefaultMaxRefreshFailures
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Phase is where a Manager is in its lifecycle.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseUnauthenticated
	PhaseAuthenticated
	PhaseRefreshing
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseRefreshing:
		return "refreshing"
	default:
		return "uninitialized"
	}
}

// AuthState is a point-in-time copy of a Manager's state.
type AuthState struct {
	User            *jwtx.SessionUser
	Token           string
	IsAuthenticated bool
	IsRefreshing    bool
	LastRefresh     time.Time
	RetryCount      int
}

// Manager owns the client side of a session: the current token and user,
// proactive refresh, and persistence of the token through a Storage. All
// methods are safe for concurrent use; at most one refresh runs at a time.
type Manager struct {
	refresher Refresher
	storage   sessionx.Storage
	cfg       ManagerConfig
	log       *slog.Logger

	flights Group[string]

	mu          sync.RWMutex
	initialized bool
	disposed    bool
	user        *jwtx.SessionUser
	token       string
	expiresAt   time.Time
	refreshing  bool
	lastRefresh time.Time
	retryCount  int
	rejections  int

	stopLoop context.CancelFunc
	loopDone chan struct{}
}

// NewManager returns an uninitialized Manager. A nil storage keeps nothing.
func NewManager(refresher Refresher, storage sessionx.Storage, cfg ManagerConfig) *Manager {
	if storage == nil {
		storage = sessionx.NoopStorage{}
	}
	cfg = cfg.withDefaults()
	return &Manager{
		refresher: refresher,
		storage:   storage,
		cfg:       cfg,
		log:       cfg.Logger.With("component", "authsdk.manager"),
	}
}

// Initialize restores a persisted token. An unexpired token makes the
// Manager authenticated; an expired or unreadable one is removed from
// storage. Only the first call has any effect.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return ErrDisposed
	}
	if m.initialized {
		return nil
	}
	m.initialized = true

	token, err := m.storage.Get(sessionx.TokenKey)
	switch {
	case errors.Is(err, sessionx.ErrNoValue):
	case err != nil:
		m.log.Warn("failed to read stored token", "err", err)
	default:
		m.restoreLocked(token)
	}

	if m.cfg.AutoRefreshInterval > 0 {
		m.startLoopLocked(ctx)
	}
	return nil
}

func (m *Manager) restoreLocked(token string) {
	peek, ok := jwtx.PeekUnverified(token)
	if ok && !peek.Expired(m.cfg.Clock()) {
		user := peek.User
		m.user = &user
		m.token = token
		m.expiresAt = peek.ExpiresAt
		m.log.Debug("restored session", "user_id", user.ID, "expires_at", peek.ExpiresAt)
		return
	}

	m.log.Info("discarding stored token", "decoded", ok)
	if err := m.storage.Remove(sessionx.TokenKey); err != nil {
		m.log.Warn("failed to remove stored token", "err", err)
	}
}

// NeedsRefresh reports whether the current token expires within the
// refresh threshold. It is false when there is no token.
func (m *Manager) NeedsRefresh() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" {
		return false
	}
	return m.expiresAt.Sub(m.cfg.Clock()) < m.cfg.RefreshThreshold
}

// RefreshToken obtains a new token. Concurrent callers share a single
// network call and receive the same token or error. On failure the stale
// token is kept and the error matches ErrRefreshFailed; once the server has
// rejected MaxRefreshFailures consecutive refreshes the Manager signs out
// and the error also matches ErrUnauthorized. Network errors and other
// transient failures keep the session however often they repeat.
func (m *Manager) RefreshToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	disposed := m.disposed
	m.mu.RUnlock()
	if disposed {
		return "", ErrDisposed
	}
	return m.flights.Do(ctx, refreshKey, m.refresh)
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return "", ErrDisposed
	}
	token := m.token
	if token == "" || m.user == nil {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %w: no session", ErrRefreshFailed, ErrUnauthorized)
	}
	userID := m.user.ID
	m.refreshing = true
	m.mu.Unlock()

	fresh, err := m.refresher.RefreshToken(ctx, token, userID)

	var peek jwtx.Unverified
	if err == nil {
		var ok bool
		if peek, ok = jwtx.PeekUnverified(fresh); !ok {
			err = ErrTokenMalformed
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshing = false

	if m.disposed {
		return "", ErrDisposed
	}

	// SetAuth or ClearAuth ran while the request was out; their state wins.
	if m.token != token {
		if m.token == "" {
			return "", fmt.Errorf("%w: %w: signed out during refresh", ErrRefreshFailed, ErrUnauthorized)
		}
		return m.token, nil
	}

	if err != nil {
		m.retryCount++
		if rejected(err) {
			m.rejections++
		}
		m.log.Warn("token refresh failed", "user_id", userID, "attempt", m.retryCount, "rejections", m.rejections, "err", err)

		if m.cfg.MaxRefreshFailures > 0 && m.rejections >= m.cfg.MaxRefreshFailures {
			m.log.Warn("refresh rejected too often, signing out", "user_id", userID, "rejections", m.rejections)
			m.clearLocked()
			return "", fmt.Errorf("%w: %w: %w", ErrRefreshFailed, ErrUnauthorized, err)
		}
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	user := peek.User
	m.user = &user
	m.token = fresh
	m.expiresAt = peek.ExpiresAt
	m.retryCount = 0
	m.rejections = 0
	m.lastRefresh = m.cfg.Clock()

	if err := m.storage.Set(sessionx.TokenKey, fresh); err != nil {
		m.log.Warn("failed to persist refreshed token", "err", err)
	}
	m.log.Debug("token refreshed", "user_id", user.ID, "expires_at", peek.ExpiresAt)
	return fresh, nil
}

// SetAuth installs a session, typically right after login. The token's
// expiry is read from its payload; a token that cannot be decoded is
// refused with ErrTokenMalformed.
func (m *Manager) SetAuth(user jwtx.SessionUser, token string) error {
	peek, ok := jwtx.PeekUnverified(token)
	if !ok {
		return ErrTokenMalformed
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return ErrDisposed
	}

	m.initialized = true
	m.user = &user
	m.token = token
	m.expiresAt = peek.ExpiresAt
	m.retryCount = 0
	m.rejections = 0

	if err := m.storage.Set(sessionx.TokenKey, token); err != nil {
		return fmt.Errorf("authsdk: persist token: %w", err)
	}
	return nil
}

// ClearAuth signs out locally and forgets the persisted token.
func (m *Manager) ClearAuth() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return
	}
	m.initialized = true
	m.clearLocked()
}

func (m *Manager) clearLocked() {
	m.user = nil
	m.token = ""
	m.expiresAt = time.Time{}
	m.retryCount = 0
	m.rejections = 0
	if err := m.storage.Remove(sessionx.TokenKey); err != nil {
		m.log.Warn("failed to remove stored token", "err", err)
	}
}

// rejected reports whether the server refused the token itself, as opposed
// to failing to answer.
func rejected(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

// State returns a copy of the current state.
func (m *Manager) State() AuthState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := AuthState{
		Token:           m.token,
		IsAuthenticated: m.token != "",
		IsRefreshing:    m.refreshing,
		LastRefresh:     m.lastRefresh,
		RetryCount:      m.retryCount,
	}
	if m.user != nil {
		u := *m.user
		s.User = &u
	}
	return s
}

// Phase reports the lifecycle phase.
func (m *Manager) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch {
	case !m.initialized:
		return PhaseUninitialized
	case m.refreshing:
		return PhaseRefreshing
	case m.token != "":
		return PhaseAuthenticated
	default:
		return PhaseUnauthenticated
	}
}

// User returns the signed-in user.
func (m *Manager) User() (jwtx.SessionUser, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return jwtx.SessionUser{}, false
	}
	return *m.user, true
}

// Token returns the current token, which may be close to or past expiry.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// validToken returns the current token if it has not yet expired.
func (m *Manager) validToken() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" || !m.cfg.Clock().Before(m.expiresAt) {
		return "", false
	}
	return m.token, true
}

// Dispose stops background work. Every later call returns ErrDisposed or
// does nothing. The session itself stays persisted.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	stop, done := m.stopLoop, m.loopDone
	m.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
}

func (m *Manager) startLoopLocked(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.stopLoop = cancel
	m.loopDone = make(chan struct{})

	go func() {
		defer close(m.loopDone)

		ticker := time.NewTicker(m.cfg.AutoRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if !m.NeedsRefresh() {
					continue
				}
				if _, err := m.RefreshToken(loopCtx); err != nil && !errors.Is(err, ErrDisposed) {
					m.log.Debug("background refresh failed", "err", err)
				}
			}
		}
	}()
}
