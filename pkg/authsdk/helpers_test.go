package authsdk

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/authcore/pkg/jwtx"
	"github.com/aussiebroadwan/authcore/pkg/sessionx"
	"github.com/aussiebroadwan/authcore/pkg/slogx"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

var testUser = jwtx.SessionUser{ID: 42, Email: "a@b.com", DisplayName: "Ann"}

// testClock is a settable clock shared between a test and background loops.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: baseTime} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// mintToken signs a token for user issued at iat and valid for ttl.
func mintToken(t *testing.T, user jwtx.SessionUser, iat time.Time, ttl time.Duration) string {
	t.Helper()
	codec, err := jwtx.NewCodec([]byte("sdk-test-secret"), jwtx.WithClock(func() time.Time { return iat }), jwtx.WithTTL(ttl))
	require.NoError(t, err)
	tok, err := codec.Create(user)
	require.NoError(t, err)
	return tok
}

// fakeRefresher counts calls and delegates to fn.
type fakeRefresher struct {
	calls atomic.Int32
	fn    func(ctx context.Context, token string, userID int64) (string, error)
}

func (f *fakeRefresher) RefreshToken(ctx context.Context, token string, userID int64) (string, error) {
	f.calls.Add(1)
	return f.fn(ctx, token, userID)
}

func newTestManager(t *testing.T, r Refresher, storage sessionx.Storage, clock *testClock, cfg ManagerConfig) *Manager {
	t.Helper()
	cfg.Clock = clock.Now
	cfg.Logger = slogx.Discard()
	m := NewManager(r, storage, cfg)
	t.Cleanup(m.Dispose)
	return m
}
