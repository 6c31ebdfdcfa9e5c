package authsdk

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/authcore/pkg/sessionx"
	"github.com/stretchr/testify/require"
)

func noRefresh(t *testing.T) *fakeRefresher {
	return &fakeRefresher{fn: func(context.Context, string, int64) (string, error) {
		t.Error("unexpected refresh")
		return "", errors.New("unexpected refresh")
	}}
}

func TestManagerInitialize(t *testing.T) {
	t.Parallel()

	t.Run("restores unexpired token", func(t *testing.T) {
		clock := newTestClock()
		storage := sessionx.NewMemoryStorage()
		tok := mintToken(t, testUser, baseTime.Add(-time.Hour), 7*24*time.Hour)
		require.NoError(t, storage.Set(sessionx.TokenKey, tok))

		m := newTestManager(t, noRefresh(t), storage, clock, ManagerConfig{})
		require.Equal(t, PhaseUninitialized, m.Phase())
		require.NoError(t, m.Initialize(context.Background()))

		require.Equal(t, PhaseAuthenticated, m.Phase())
		u, ok := m.User()
		require.True(t, ok)
		require.Equal(t, testUser, u)
		require.Equal(t, tok, m.Token())
	})

	t.Run("discards expired token", func(t *testing.T) {
		clock := newTestClock()
		storage := sessionx.NewMemoryStorage()
		tok := mintToken(t, testUser, baseTime.Add(-2*time.Hour), time.Hour)
		require.NoError(t, storage.Set(sessionx.TokenKey, tok))

		m := newTestManager(t, noRefresh(t), storage, clock, ManagerConfig{})
		require.NoError(t, m.Initialize(context.Background()))

		require.Equal(t, PhaseUnauthenticated, m.Phase())
		_, err := storage.Get(sessionx.TokenKey)
		require.ErrorIs(t, err, sessionx.ErrNoValue)
	})

	t.Run("discards undecodable token", func(t *testing.T) {
		storage := sessionx.NewMemoryStorage()
		require.NoError(t, storage.Set(sessionx.TokenKey, "garbage"))

		m := newTestManager(t, noRefresh(t), storage, newTestClock(), ManagerConfig{})
		require.NoError(t, m.Initialize(context.Background()))

		require.Equal(t, PhaseUnauthenticated, m.Phase())
		_, err := storage.Get(sessionx.TokenKey)
		require.ErrorIs(t, err, sessionx.ErrNoValue)
	})

	t.Run("nothing stored", func(t *testing.T) {
		m := newTestManager(t, noRefresh(t), sessionx.NewMemoryStorage(), newTestClock(), ManagerConfig{})
		require.NoError(t, m.Initialize(context.Background()))
		require.Equal(t, PhaseUnauthenticated, m.Phase())
		require.False(t, m.State().IsAuthenticated)
	})

	t.Run("only the first call counts", func(t *testing.T) {
		storage := sessionx.NewMemoryStorage()
		m := newTestManager(t, noRefresh(t), storage, newTestClock(), ManagerConfig{})
		require.NoError(t, m.Initialize(context.Background()))

		require.NoError(t, storage.Set(sessionx.TokenKey, mintToken(t, testUser, baseTime, time.Hour)))
		require.NoError(t, m.Initialize(context.Background()))
		require.Equal(t, PhaseUnauthenticated, m.Phase())
	})
}

func TestManagerNeedsRefresh(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		expires time.Duration
		want    bool
	}{
		{"two hours left", 2 * time.Hour, false},
		{"exactly at threshold", time.Hour, false},
		{"thirty minutes left", 30 * time.Minute, true},
		{"already expired", -time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newTestClock()
			m := newTestManager(t, noRefresh(t), nil, clock, ManagerConfig{})

			// iat one day back, exp = now + tt.expires
			iat := baseTime.Add(-24 * time.Hour)
			tok := mintToken(t, testUser, iat, 24*time.Hour+tt.expires)
			require.NoError(t, m.SetAuth(testUser, tok))

			require.Equal(t, tt.want, m.NeedsRefresh())
		})
	}

	t.Run("no token", func(t *testing.T) {
		m := newTestManager(t, noRefresh(t), nil, newTestClock(), ManagerConfig{})
		require.NoError(t, m.Initialize(context.Background()))
		require.False(t, m.NeedsRefresh())
	})
}

func TestManagerRefreshSuccess(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	storage := sessionx.NewMemoryStorage()
	old := mintToken(t, testUser, baseTime.Add(-7*24*time.Hour+30*time.Minute), 7*24*time.Hour)
	renamed := testUser
	renamed.DisplayName = "Ann B"
	fresh := mintToken(t, renamed, baseTime, 7*24*time.Hour)

	var sentToken string
	var sentUserID int64
	r := &fakeRefresher{fn: func(_ context.Context, token string, userID int64) (string, error) {
		sentToken, sentUserID = token, userID
		return fresh, nil
	}}
	m := newTestManager(t, r, storage, clock, ManagerConfig{})
	require.NoError(t, m.SetAuth(testUser, old))
	require.True(t, m.NeedsRefresh())

	got, err := m.RefreshToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, fresh, got)
	require.Equal(t, old, sentToken)
	require.Equal(t, int64(42), sentUserID)

	st := m.State()
	require.Equal(t, fresh, st.Token)
	require.Equal(t, "Ann B", st.User.DisplayName)
	require.Equal(t, 0, st.RetryCount)
	require.True(t, baseTime.Equal(st.LastRefresh))
	require.False(t, st.IsRefreshing)
	require.False(t, m.NeedsRefresh())

	persisted, err := storage.Get(sessionx.TokenKey)
	require.NoError(t, err)
	require.Equal(t, fresh, persisted)
}

func TestManagerRefreshSingleFlight(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	release := make(chan struct{})
	fresh := mintToken(t, testUser, baseTime, 7*24*time.Hour)

	r := &fakeRefresher{fn: func(context.Context, string, int64) (string, error) {
		<-release
		return fresh, nil
	}}
	m := newTestManager(t, r, nil, clock, ManagerConfig{})
	require.NoError(t, m.SetAuth(testUser, mintToken(t, testUser, baseTime.Add(-time.Hour), 90*time.Minute)))

	const n = 25
	tokens := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], errs[i] = m.RefreshToken(context.Background())
		}()
	}

	require.Eventually(t, func() bool { return m.Phase() == PhaseRefreshing }, time.Second, time.Millisecond)
	require.True(t, m.State().IsRefreshing)
	require.True(t, m.State().IsAuthenticated)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), r.calls.Load())
	for i := range n {
		require.NoError(t, errs[i])
		require.Equal(t, fresh, tokens[i])
	}
	require.Equal(t, PhaseAuthenticated, m.Phase())
}

func TestManagerRefreshFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("upstream down")
	rejection := NewRequestError(http.StatusUnauthorized, ErrorCodeInvalidToken, "token is invalid")
	unavailable := NewRequestError(http.StatusServiceUnavailable, ErrorCodeServerError, "try later")

	t.Run("keeps stale token and counts failures", func(t *testing.T) {
		storage := sessionx.NewMemoryStorage()
		r := &fakeRefresher{fn: func(context.Context, string, int64) (string, error) { return "", cause }}
		m := newTestManager(t, r, storage, newTestClock(), ManagerConfig{})
		stale := mintToken(t, testUser, baseTime, time.Hour)
		require.NoError(t, m.SetAuth(testUser, stale))

		for i := 1; i <= DefaultMaxRefreshFailures+1; i++ {
			_, err := m.RefreshToken(context.Background())
			require.ErrorIs(t, err, ErrRefreshFailed)
			require.ErrorIs(t, err, cause)
			require.NotErrorIs(t, err, ErrUnauthorized)

			st := m.State()
			require.Equal(t, i, st.RetryCount)
			require.Equal(t, stale, st.Token)
			require.True(t, st.IsAuthenticated)
		}

		persisted, err := storage.Get(sessionx.TokenKey)
		require.NoError(t, err)
		require.Equal(t, stale, persisted)
	})

	t.Run("signs out after max rejections", func(t *testing.T) {
		storage := sessionx.NewMemoryStorage()
		r := &fakeRefresher{fn: func(context.Context, string, int64) (string, error) { return "", rejection }}
		m := newTestManager(t, r, storage, newTestClock(), ManagerConfig{MaxRefreshFailures: 3})
		require.NoError(t, m.SetAuth(testUser, mintToken(t, testUser, baseTime, time.Hour)))

		var err error
		for range 3 {
			_, err = m.RefreshToken(context.Background())
		}
		require.ErrorIs(t, err, ErrRefreshFailed)
		require.ErrorIs(t, err, ErrUnauthorized)
		require.ErrorIs(t, err, rejection)

		require.Equal(t, PhaseUnauthenticated, m.Phase())
		require.Equal(t, 0, m.State().RetryCount)
		_, err = storage.Get(sessionx.TokenKey)
		require.ErrorIs(t, err, sessionx.ErrNoValue)
	})

	t.Run("transient failures keep the session", func(t *testing.T) {
		storage := sessionx.NewMemoryStorage()
		r := &fakeRefresher{fn: func(context.Context, string, int64) (string, error) { return "", unavailable }}
		m := newTestManager(t, r, storage, newTestClock(), ManagerConfig{})
		stale := mintToken(t, testUser, baseTime, time.Hour)
		require.NoError(t, m.SetAuth(testUser, stale))

		for range 2 * DefaultMaxRefreshFailures {
			_, err := m.RefreshToken(context.Background())
			require.ErrorIs(t, err, ErrRefreshFailed)
			require.NotErrorIs(t, err, ErrUnauthorized)
		}

		require.Equal(t, PhaseAuthenticated, m.Phase())
		require.Equal(t, 2*DefaultMaxRefreshFailures, m.State().RetryCount)
		persisted, err := storage.Get(sessionx.TokenKey)
		require.NoError(t, err)
		require.Equal(t, stale, persisted)
	})

	t.Run("transient failure does not reset the rejection count", func(t *testing.T) {
		calls := 0
		r := &fakeRefresher{fn: func(context.Context, string, int64) (string, error) {
			calls++
			if calls%2 == 0 {
				return "", unavailable
			}
			return "", rejection
		}}
		m := newTestManager(t, r, nil, newTestClock(), ManagerConfig{MaxRefreshFailures: 2})
		require.NoError(t, m.SetAuth(testUser, mintToken(t, testUser, baseTime, time.Hour)))

		for range 2 {
			_, err := m.RefreshToken(context.Background())
			require.NotErrorIs(t, err, ErrUnauthorized)
		}
		_, err := m.RefreshToken(context.Background())
		require.ErrorIs(t, err, ErrUnauthorized)
		require.Equal(t, PhaseUnauthenticated, m.Phase())
	})

	t.Run("negative max never signs out", func(t *testing.T) {
		r := &fakeRefresher{fn: func(context.Context, string, int64) (string, error) { return "", rejection }}
		m := newTestManager(t, r, nil, newTestClock(), ManagerConfig{MaxRefreshFailures: -1})
		require.NoError(t, m.SetAuth(testUser, mintToken(t, testUser, baseTime, time.Hour)))

		for range 10 {
			_, err := m.RefreshToken(context.Background())
			require.ErrorIs(t, err, ErrRefreshFailed)
		}
		require.Equal(t, 10, m.State().RetryCount)
		require.Equal(t, PhaseAuthenticated, m.Phase())
	})

	t.Run("success resets the count", func(t *testing.T) {
		fail := true
		fresh := mintToken(t, testUser, baseTime, 7*24*time.Hour)
		r := &fakeRefresher{fn: func(context.Context, string, int64) (string, error) {
			if fail {
				return "", cause
			}
			return fresh, nil
		}}
		m := newTestManager(t, r, nil, newTestClock(), ManagerConfig{})
		require.NoError(t, m.SetAuth(testUser, mintToken(t, testUser, baseTime, time.Hour)))

		_, err := m.RefreshToken(context.Background())
		require.Error(t, err)
		require.Equal(t, 1, m.State().RetryCount)

		fail = false
		_, err = m.RefreshToken(context.Background())
		require.NoError(t, err)
		require.Equal(t, 0, m.State().RetryCount)
	})

	t.Run("malformed token from server", func(t *testing.T) {
		r := &fakeRefresher{fn: func(context.Context, string, int64) (string, error) { return "not-a-token", nil }}
		m := newTestManager(t, r, nil, newTestClock(), ManagerConfig{})
		stale := mintToken(t, testUser, baseTime, time.Hour)
		require.NoError(t, m.SetAuth(testUser, stale))

		_, err := m.RefreshToken(context.Background())
		require.ErrorIs(t, err, ErrRefreshFailed)
		require.ErrorIs(t, err, ErrTokenMalformed)
		require.Equal(t, stale, m.Token())
	})

	t.Run("no session", func(t *testing.T) {
		m := newTestManager(t, noRefresh(t), nil, newTestClock(), ManagerConfig{})
		_, err := m.RefreshToken(context.Background())
		require.ErrorIs(t, err, ErrUnauthorized)
		require.Equal(t, 0, m.State().RetryCount)
	})
}

func TestManagerClearDuringRefreshWins(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	r := &fakeRefresher{fn: func(context.Context, string, int64) (string, error) {
		<-release
		return mintToken(t, testUser, baseTime, time.Hour), nil
	}}
	m := newTestManager(t, r, nil, newTestClock(), ManagerConfig{})
	require.NoError(t, m.SetAuth(testUser, mintToken(t, testUser, baseTime, time.Hour)))

	done := make(chan error, 1)
	go func() {
		_, err := m.RefreshToken(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return m.Phase() == PhaseRefreshing }, time.Second, time.Millisecond)
	m.ClearAuth()
	close(release)

	require.ErrorIs(t, <-done, ErrUnauthorized)
	require.Equal(t, PhaseUnauthenticated, m.Phase())
	require.Empty(t, m.Token())
}

func TestManagerAbandonedRefreshStillApplies(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	fresh := mintToken(t, testUser, baseTime, 7*24*time.Hour)
	r := &fakeRefresher{fn: func(ctx context.Context, _ string, _ int64) (string, error) {
		<-release
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return fresh, nil
	}}
	m := newTestManager(t, r, nil, newTestClock(), ManagerConfig{})
	require.NoError(t, m.SetAuth(testUser, mintToken(t, testUser, baseTime, time.Hour)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.RefreshToken(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return m.Phase() == PhaseRefreshing }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool { return m.Token() == fresh }, time.Second, time.Millisecond)
}

func TestManagerSetAndClearAuth(t *testing.T) {
	t.Parallel()

	storage := sessionx.NewMemoryStorage()
	m := newTestManager(t, noRefresh(t), storage, newTestClock(), ManagerConfig{})

	require.ErrorIs(t, m.SetAuth(testUser, "junk"), ErrTokenMalformed)
	require.Equal(t, PhaseUninitialized, m.Phase())

	tok := mintToken(t, testUser, baseTime, time.Hour)
	require.NoError(t, m.SetAuth(testUser, tok))
	require.Equal(t, PhaseAuthenticated, m.Phase())

	persisted, err := storage.Get(sessionx.TokenKey)
	require.NoError(t, err)
	require.Equal(t, tok, persisted)

	st := m.State()
	st.User.DisplayName = "mutated"
	u, _ := m.User()
	require.Equal(t, "Ann", u.DisplayName, "State must return a copy")

	m.ClearAuth()
	require.Equal(t, PhaseUnauthenticated, m.Phase())
	_, ok := m.User()
	require.False(t, ok)
	_, err = storage.Get(sessionx.TokenKey)
	require.ErrorIs(t, err, sessionx.ErrNoValue)
}

func TestManagerDispose(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, noRefresh(t), nil, newTestClock(), ManagerConfig{})
	require.NoError(t, m.SetAuth(testUser, mintToken(t, testUser, baseTime, time.Hour)))

	m.Dispose()
	m.Dispose()

	_, err := m.RefreshToken(context.Background())
	require.ErrorIs(t, err, ErrDisposed)
	require.ErrorIs(t, m.Initialize(context.Background()), ErrDisposed)
	require.ErrorIs(t, m.SetAuth(testUser, mintToken(t, testUser, baseTime, time.Hour)), ErrDisposed)
}

func TestManagerAutoRefresh(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	storage := sessionx.NewMemoryStorage()
	require.NoError(t, storage.Set(sessionx.TokenKey, mintToken(t, testUser, baseTime.Add(-time.Hour), 90*time.Minute)))

	fresh := mintToken(t, testUser, baseTime, 7*24*time.Hour)
	r := &fakeRefresher{fn: func(context.Context, string, int64) (string, error) { return fresh, nil }}

	m := newTestManager(t, r, storage, clock, ManagerConfig{AutoRefreshInterval: 5 * time.Millisecond})
	require.NoError(t, m.Initialize(context.Background()))

	require.Eventually(t, func() bool { return m.Token() == fresh }, 2*time.Second, 5*time.Millisecond)

	m.Dispose()
	calls := r.calls.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, calls, r.calls.Load())
	require.Equal(t, int32(1), calls)
}

var _ Refresher = (*SDKClient)(nil)
