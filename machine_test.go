package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	session "github.com/goliatone/go-session"
	"github.com/goliatone/go-session/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func startMachine(t *testing.T, client session.IdentityClient, store session.TokenStore, opts ...session.Option) *session.Machine {
	t.Helper()
	opts = append([]session.Option{session.WithLogger(quietLogger{})}, opts...)
	m, err := session.NewMachine(client, store, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("machine did not stop")
		}
	})
	return m
}

func waitState(t *testing.T, m *session.Machine, state session.State) session.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := m.Wait(ctx, func(s session.Snapshot) bool { return s.State == state })
	require.NoError(t, err, "waiting for %s, machine is in %s", state, snap.State)
	return snap
}

func send(t *testing.T, m *session.Machine, ev session.Event) session.Result {
	t.Helper()
	res, err := m.Send(context.Background(), ev)
	require.NoError(t, err)
	return res
}

func storedTokens(t *testing.T, store session.TokenStore) *session.Tokens {
	t.Helper()
	tokens, err := store.Get(context.Background())
	require.NoError(t, err)
	return tokens
}

func TestNewMachineRequiresDependencies(t *testing.T) {
	_, err := session.NewMachine(nil, tokenstore.NewMemory())
	assert.Error(t, err)

	_, err = session.NewMachine(&MockIdentityClient{}, nil)
	assert.Error(t, err)
}

func TestMachineStartsUnauthenticated(t *testing.T) {
	client := &MockIdentityClient{}
	m := startMachine(t, client, tokenstore.NewMemory())

	snap := waitState(t, m, session.StateUnauthenticated)
	assert.False(t, snap.Authenticated())
	assert.True(t, snap.Settled())
	assert.NotEmpty(t, m.SessionID())
}

func TestMachineRejectsShortPasswordWithoutCallingProvider(t *testing.T) {
	client := &MockIdentityClient{}
	m := startMachine(t, client, tokenstore.NewMemory())
	waitState(t, m, session.StateUnauthenticated)

	res := send(t, m, session.SignInSubmitted{Email: "a@b.com", Password: "short"})
	assert.False(t, res.Accepted)
	assert.Equal(t, session.StateUnauthenticated, res.State)
	assert.True(t, res.Errors.Has(session.FieldPassword))

	snap := m.Snapshot()
	assert.Equal(t, session.StateUnauthenticated, snap.State)
	assert.True(t, snap.Context.ValidationErrors.Has(session.FieldPassword))
	client.AssertNotCalled(t, "SignIn", mock.Anything, mock.Anything, mock.Anything)
}

func TestMachineSignInPersistsTokens(t *testing.T) {
	client := &MockIdentityClient{}
	store := tokenstore.NewMemory()
	tokens := testTokens
	tokens.ExpiresAt = time.Now().Add(time.Hour)
	client.On("SignIn", mock.Anything, "a@b.com", "longenough1").Return(testUser, tokens, nil).Once()

	m := startMachine(t, client, store)
	waitState(t, m, session.StateUnauthenticated)

	res := send(t, m, session.SignInSubmitted{Email: "a@b.com", Password: "longenough1"})
	assert.True(t, res.Accepted)
	assert.Equal(t, session.StateAuthenticating, res.State)

	snap := waitState(t, m, session.StateAuthenticated)
	assert.True(t, snap.Authenticated())
	assert.Equal(t, "user-1", snap.Context.CurrentUser.ID)
	assert.Empty(t, snap.Context.Password)

	require.Eventually(t, func() bool {
		got := storedTokens(t, store)
		return got != nil && got.AccessToken == "access-1"
	}, time.Second, 5*time.Millisecond)
	client.AssertExpectations(t)
}

func TestMachineSignInFillsMissingExpiry(t *testing.T) {
	client := &MockIdentityClient{}
	store := tokenstore.NewMemory()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	client.On("SignIn", mock.Anything, mock.Anything, mock.Anything).
		Return(testUser, session.Tokens{AccessToken: "opaque", RefreshToken: "r"}, nil)

	m := startMachine(t, client, store,
		session.WithClock(func() time.Time { return now }),
		session.WithRefreshInterval(time.Hour),
	)
	waitState(t, m, session.StateUnauthenticated)
	send(t, m, session.SignInSubmitted{Email: "a@b.com", Password: "longenough1"})

	snap := waitState(t, m, session.StateAuthenticated)
	assert.Equal(t, now.Add(session.DefaultTokenTTL), snap.Context.Tokens.ExpiresAt)
}

func TestMachineUnconfirmedSignInThenConfirm(t *testing.T) {
	client := &MockIdentityClient{}
	client.On("SignIn", mock.Anything, "a@b.com", "longenough1").
		Return(session.AuthUser{}, session.Tokens{}, session.NewError(session.KindAccountNotConfirmed, "", nil)).Once()
	client.On("ConfirmSignUp", mock.Anything, "a@b.com", "000000").
		Return(session.ConfirmResult{Confirmed: false}, nil).Once()
	client.On("ConfirmSignUp", mock.Anything, "a@b.com", "123456").
		Return(session.ConfirmResult{Confirmed: true}, nil).Once()
	client.On("SignIn", mock.Anything, "a@b.com", "longenough1").
		Return(testUser, testTokens, nil).Once()

	m := startMachine(t, client, tokenstore.NewMemory(), session.WithRefreshInterval(time.Hour))
	waitState(t, m, session.StateUnauthenticated)

	send(t, m, session.SignInSubmitted{Email: "a@b.com", Password: "longenough1"})
	waitState(t, m, session.StateNeedsConfirmation)

	send(t, m, session.ConfirmationSubmitted{Code: "000000"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := m.Wait(ctx, func(s session.Snapshot) bool {
		return s.State == session.StateNeedsConfirmation && s.Context.ValidationErrors.Has(session.FieldConfirmationCode)
	})
	require.NoError(t, err)
	assert.Equal(t, "invalid confirmation code", snap.Context.ValidationErrors[session.FieldConfirmationCode])

	send(t, m, session.ConfirmationSubmitted{Code: "123456"})
	waitState(t, m, session.StateAuthenticated)
	client.AssertExpectations(t)
}

func TestMachineRestoresStoredSession(t *testing.T) {
	client := &MockIdentityClient{}
	store := tokenstore.NewMemory()
	stored := testTokens
	stored.ExpiresAt = time.Now().Add(time.Hour)
	require.NoError(t, store.Set(context.Background(), stored))
	client.On("GetCurrentUser", mock.Anything, "access-1").Return(testUser, nil).Once()

	m := startMachine(t, client, store)

	snap := waitState(t, m, session.StateAuthenticated)
	assert.Equal(t, "user-1", snap.Context.CurrentUser.ID)
	client.AssertExpectations(t)
}

func TestMachineRestoreRefreshesRejectedAccessToken(t *testing.T) {
	client := &MockIdentityClient{}
	store := tokenstore.NewMemory()
	stored := testTokens
	stored.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.Set(context.Background(), stored))

	fresh := &session.Tokens{AccessToken: "access-2", IDToken: "id-2", ExpiresAt: time.Now().Add(time.Hour)}
	client.On("GetCurrentUser", mock.Anything, "access-1").
		Return(session.AuthUser{}, session.NewError(session.KindSessionInvalid, "Access Token has expired", nil)).Once()
	client.On("RefreshSession", mock.Anything, "refresh-1").Return(fresh, nil).Once()
	client.On("GetCurrentUser", mock.Anything, "access-2").Return(testUser, nil).Once()

	m := startMachine(t, client, store, session.WithRefreshInterval(time.Hour))

	snap := waitState(t, m, session.StateAuthenticated)
	assert.Equal(t, "access-2", snap.Context.Tokens.AccessToken)
	assert.Equal(t, "refresh-1", snap.Context.Tokens.RefreshToken)

	require.Eventually(t, func() bool {
		got := storedTokens(t, store)
		return got != nil && got.AccessToken == "access-2" && got.RefreshToken == "refresh-1"
	}, time.Second, 5*time.Millisecond)
	client.AssertExpectations(t)
}

func TestMachineRestoreFailureClearsStore(t *testing.T) {
	client := &MockIdentityClient{}
	store := tokenstore.NewMemory()
	require.NoError(t, store.Set(context.Background(), testTokens))
	client.On("GetCurrentUser", mock.Anything, "access-1").
		Return(session.AuthUser{}, session.NewError(session.KindSessionInvalid, "", nil)).Once()
	client.On("RefreshSession", mock.Anything, "refresh-1").
		Return(nil, session.NewError(session.KindSessionInvalid, "", nil)).Once()

	m := startMachine(t, client, store)
	waitState(t, m, session.StateUnauthenticated)

	require.Eventually(t, func() bool {
		return storedTokens(t, store) == nil
	}, time.Second, 5*time.Millisecond)
}

// Tokens that expire in four minutes with a five minute buffer are refreshed
// by the scheduler without leaving the authenticated state.
func TestMachineBackgroundRefresh(t *testing.T) {
	client := &MockIdentityClient{}
	store := tokenstore.NewMemory()
	tokens := testTokens
	tokens.ExpiresAt = time.Now().Add(4 * time.Minute)
	fresh := &session.Tokens{AccessToken: "access-2", IDToken: "id-2", ExpiresAt: time.Now().Add(time.Hour)}

	client.On("SignIn", mock.Anything, mock.Anything, mock.Anything).Return(testUser, tokens, nil).Once()
	client.On("RefreshSession", mock.Anything, "refresh-1").Return(fresh, nil)

	m := startMachine(t, client, store,
		session.WithRefreshInterval(10*time.Millisecond),
		session.WithRefreshBuffer(5*time.Minute),
	)
	waitState(t, m, session.StateUnauthenticated)
	send(t, m, session.SignInSubmitted{Email: "a@b.com", Password: "longenough1"})
	waitState(t, m, session.StateAuthenticated)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := m.Wait(ctx, func(s session.Snapshot) bool {
		return s.Context.Tokens != nil && s.Context.Tokens.AccessToken == "access-2" && !s.Context.IsRefreshing
	})
	require.NoError(t, err)
	assert.Equal(t, session.StateAuthenticated, snap.State)
	assert.Equal(t, "refresh-1", snap.Context.Tokens.RefreshToken)

	require.Eventually(t, func() bool {
		got := storedTokens(t, store)
		return got != nil && got.AccessToken == "access-2"
	}, time.Second, 5*time.Millisecond)
}

func TestMachineRefreshSessionInvalidSignsOut(t *testing.T) {
	client := &MockIdentityClient{}
	store := tokenstore.NewMemory()
	tokens := testTokens
	tokens.ExpiresAt = time.Now().Add(time.Minute)

	client.On("SignIn", mock.Anything, mock.Anything, mock.Anything).Return(testUser, tokens, nil).Once()
	client.On("RefreshSession", mock.Anything, "refresh-1").
		Return(nil, session.NewError(session.KindSessionInvalid, "Refresh Token has been revoked", nil)).Once()
	client.On("SignOut", mock.Anything, "access-1").Return(nil).Once()

	var activity []session.ActivityEvent
	var mu sync.Mutex
	sink := session.ActivitySinkFunc(func(_ context.Context, ev session.ActivityEvent) error {
		mu.Lock()
		defer mu.Unlock()
		activity = append(activity, ev)
		return nil
	})

	m := startMachine(t, client, store,
		session.WithRefreshInterval(10*time.Millisecond),
		session.WithActivitySink(sink),
	)
	waitState(t, m, session.StateUnauthenticated)
	send(t, m, session.SignInSubmitted{Email: "a@b.com", Password: "longenough1"})
	waitState(t, m, session.StateAuthenticated)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := m.Wait(ctx, func(s session.Snapshot) bool {
		return s.State == session.StateUnauthenticated
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return storedTokens(t, store) == nil
	}, time.Second, 5*time.Millisecond)
	client.AssertExpectations(t)

	mu.Lock()
	defer mu.Unlock()
	types := map[session.ActivityEventType]int{}
	for _, ev := range activity {
		types[ev.EventType]++
		assert.Equal(t, m.SessionID(), ev.SessionID)
	}
	assert.Equal(t, 1, types[session.ActivityEventSignedIn])
	assert.Equal(t, 1, types[session.ActivityEventRefreshFailed])
	assert.Equal(t, 1, types[session.ActivityEventSignedOut])
}

func TestMachineTransientRefreshFailureKeepsSession(t *testing.T) {
	client := &MockIdentityClient{}
	tokens := testTokens
	tokens.ExpiresAt = time.Now().Add(time.Minute)
	cause := session.NewError(session.KindServiceUnavailable, "", nil)

	client.On("SignIn", mock.Anything, mock.Anything, mock.Anything).Return(testUser, tokens, nil).Once()
	client.On("RefreshSession", mock.Anything, "refresh-1").Return(nil, cause)

	reported := make(chan error, 1)
	m := startMachine(t, client, tokenstore.NewMemory(),
		session.WithRefreshInterval(10*time.Millisecond),
		session.WithRefreshErrorHandler(func(_ context.Context, err error) {
			select {
			case reported <- err:
			default:
			}
		}),
	)
	waitState(t, m, session.StateUnauthenticated)
	send(t, m, session.SignInSubmitted{Email: "a@b.com", Password: "longenough1"})
	waitState(t, m, session.StateAuthenticated)

	select {
	case err := <-reported:
		assert.True(t, session.IsKind(err, session.KindServiceUnavailable))
	case <-time.After(2 * time.Second):
		t.Fatal("refresh error handler not called")
	}

	snap := m.Snapshot()
	assert.Equal(t, session.StateAuthenticated, snap.State)
	assert.Equal(t, "access-1", snap.Context.Tokens.AccessToken)
	client.AssertNotCalled(t, "SignOut", mock.Anything, mock.Anything)
}

func TestMachineRefreshWithoutTokensReportsFailure(t *testing.T) {
	client := &MockIdentityClient{}
	store := tokenstore.NewMemory()
	tokens := testTokens
	tokens.ExpiresAt = time.Now().Add(time.Hour)

	client.On("SignIn", mock.Anything, mock.Anything, mock.Anything).Return(testUser, tokens, nil).Once()
	client.On("RefreshSession", mock.Anything, "refresh-1").Return(nil, nil).Once()

	var activity []session.ActivityEventType
	var mu sync.Mutex
	sink := session.ActivitySinkFunc(func(_ context.Context, ev session.ActivityEvent) error {
		mu.Lock()
		defer mu.Unlock()
		activity = append(activity, ev.EventType)
		return nil
	})

	reported := make(chan error, 1)
	m := startMachine(t, client, store,
		session.WithActivitySink(sink),
		session.WithRefreshErrorHandler(func(_ context.Context, err error) {
			select {
			case reported <- err:
			default:
			}
		}),
	)
	waitState(t, m, session.StateUnauthenticated)
	send(t, m, session.SignInSubmitted{Email: "a@b.com", Password: "longenough1"})
	waitState(t, m, session.StateAuthenticated)

	res := send(t, m, session.RefreshRequested{})
	require.True(t, res.Accepted)

	select {
	case err := <-reported:
		assert.True(t, session.IsKind(err, session.KindUnknown))
		assert.Contains(t, err.Error(), "no new tokens")
	case <-time.After(2 * time.Second):
		t.Fatal("refresh error handler not called")
	}

	snap := m.Snapshot()
	assert.Equal(t, session.StateAuthenticated, snap.State)
	assert.False(t, snap.Context.IsRefreshing)
	assert.Equal(t, "access-1", snap.Context.Tokens.AccessToken)
	assert.Equal(t, session.KindUnknown, snap.Context.LastErrorKind)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, activity, session.ActivityEventRefreshFailed)
	assert.NotContains(t, activity, session.ActivityEventRefreshSucceeded)
	client.AssertExpectations(t)
}

func TestMachineSignOutClearsStoreOnFailure(t *testing.T) {
	client := &MockIdentityClient{}
	store := tokenstore.NewMemory()
	tokens := testTokens
	tokens.ExpiresAt = time.Now().Add(time.Hour)

	client.On("SignIn", mock.Anything, mock.Anything, mock.Anything).Return(testUser, tokens, nil).Once()
	client.On("SignOut", mock.Anything, "access-1").Return(errors.New("offline")).Once()

	m := startMachine(t, client, store)
	waitState(t, m, session.StateUnauthenticated)
	send(t, m, session.SignInSubmitted{Email: "a@b.com", Password: "longenough1"})
	waitState(t, m, session.StateAuthenticated)

	send(t, m, session.SignOutRequested{})
	snap := waitState(t, m, session.StateUnauthenticated)
	assert.Nil(t, snap.Context.CurrentUser)
	assert.Nil(t, snap.Context.Tokens)

	require.Eventually(t, func() bool {
		return storedTokens(t, store) == nil
	}, time.Second, 5*time.Millisecond)
	client.AssertExpectations(t)
}

func TestMachineRunOnceAndStopped(t *testing.T) {
	m, err := session.NewMachine(&MockIdentityClient{}, tokenstore.NewMemory(), session.WithLogger(quietLogger{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()
	waitState(t, m, session.StateUnauthenticated)

	err = m.Run(context.Background())
	assert.ErrorIs(t, err, session.ErrMachineRunning)

	cancel()
	require.NoError(t, <-errCh)

	_, err = m.Send(context.Background(), session.NavigateToSignUp{})
	assert.ErrorIs(t, err, session.ErrMachineStopped)

	_, err = m.Send(context.Background(), nil)
	assert.Error(t, err)
}

func TestMachineRecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	client := &MockIdentityClient{}
	tokens := testTokens
	tokens.ExpiresAt = time.Now().Add(time.Hour)
	client.On("SignIn", mock.Anything, mock.Anything, mock.Anything).Return(testUser, tokens, nil).Once()

	m := startMachine(t, client, tokenstore.NewMemory(), session.WithMeterProvider(mp))
	waitState(t, m, session.StateUnauthenticated)

	send(t, m, session.SignInSubmitted{Email: "a@b.com", Password: "short"})
	send(t, m, session.SignInSubmitted{Email: "a@b.com", Password: "longenough1"})
	waitState(t, m, session.StateAuthenticated)

	require.Eventually(t, func() bool {
		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(context.Background(), &rm))
		return sumOf(rm, session.MetricOperations) == 1
	}, time.Second, 5*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, int64(2), sumOf(rm, session.MetricTransitions))
	assert.Equal(t, int64(1), sumOf(rm, session.MetricRejected))
}

func sumOf(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			if metric.Name != name {
				continue
			}
			if sum, ok := metric.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}
