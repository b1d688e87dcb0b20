package ratelimit

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-collection-sync/internal/apperror"
	"github.com/imrishuroy/go-collection-sync/internal/counter"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, store counter.Store, mode FailureMode, policies ...Policy) *Limiter {
	t.Helper()
	if len(policies) == 0 {
		policies = DefaultPolicies()
	}
	reg, err := NewRegistry(policies...)
	require.NoError(t, err)
	logger := zerolog.New(io.Discard)
	l, err := NewLimiter(reg, store, mode, &logger)
	require.NoError(t, err)
	return l
}

func TestUnitCheckAdmitsQuotaThenDenies(t *testing.T) {
	for _, p := range DefaultPolicies() {
		t.Run(p.Name, func(t *testing.T) {
			clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
			l := newTestLimiter(t, counter.NewMemory(clock.Now), FailClosed)
			info := RequestInfo{
				UserID:         faker.UUIDHyphenated(),
				RemoteAddr:     faker.IPv4(),
				UserAgent:      "test-agent",
				AcceptLanguage: "en",
			}

			for i := int64(1); i <= p.MaxRequests; i++ {
				d, err := l.Check(context.Background(), p.Name, info)
				require.NoError(t, err)
				require.True(t, d.Admit, "request %d should be admitted", i)
				assert.Equal(t, p.MaxRequests-i, d.Remaining)
				clock.Advance(time.Millisecond)
			}

			d, err := l.Check(context.Background(), p.Name, info)
			require.NoError(t, err)
			assert.False(t, d.Admit)
			assert.Zero(t, d.Remaining)
			assert.Equal(t, p.MaxRequests, d.Limit)
			assert.Greater(t, d.Reset, time.Duration(0))
			assert.LessOrEqual(t, d.Reset, p.Window)
		})
	}
}

func TestUnitCheckTTLNotRefreshedWithinWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := counter.NewMemory(clock.Now)
	policy := Policy{Name: "op", MaxRequests: 10, Window: time.Minute, Strategy: BySession}
	l := newTestLimiter(t, store, FailClosed, policy)
	info := RequestInfo{UserID: "u1"}

	var prev time.Duration
	for i := 1; i <= 5; i++ {
		d, err := l.Check(context.Background(), "op", info)
		require.NoError(t, err)
		if i > 1 {
			assert.LessOrEqual(t, d.Reset, prev, "reset grew on request #%d", i)
		}
		prev = d.Reset
		clock.Advance(7 * time.Second)
	}
	assert.Equal(t, 1, store.ExpireCalls["rl:op:u1"])
}

func TestUnitCheckNewWindowAfterExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	policy := Policy{Name: "op", MaxRequests: 1, Window: time.Minute, Strategy: BySession}
	l := newTestLimiter(t, counter.NewMemory(clock.Now), FailClosed, policy)
	info := RequestInfo{UserID: "u1"}

	d, err := l.Check(context.Background(), "op", info)
	require.NoError(t, err)
	require.True(t, d.Admit)

	d, err = l.Check(context.Background(), "op", info)
	require.NoError(t, err)
	require.False(t, d.Admit)

	clock.Advance(time.Minute)

	d, err = l.Check(context.Background(), "op", info)
	require.NoError(t, err)
	assert.True(t, d.Admit)
}

func TestUnitCheckSessionStrategySkipsWithoutSession(t *testing.T) {
	store := counter.NewMemory(nil)
	l := newTestLimiter(t, store, FailClosed)

	for i := 0; i < 100; i++ {
		d, err := l.Check(context.Background(), OpSyncCSV, RequestInfo{RemoteAddr: "10.0.0.1"})
		require.NoError(t, err)
		require.True(t, d.Admit)
		require.True(t, d.Skipped)
	}
	v, err := store.Get(context.Background(), "rl:sync:csv:")
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestUnitCheckFingerprintStrategyLimitsAnonymous(t *testing.T) {
	policy := Policy{Name: "anon", MaxRequests: 2, Window: time.Minute, Strategy: ByFingerprint}
	l := newTestLimiter(t, counter.NewMemory(nil), FailClosed, policy)

	// no signals at all still yields an identity
	for i := 0; i < 2; i++ {
		d, err := l.Check(context.Background(), "anon", RequestInfo{})
		require.NoError(t, err)
		require.True(t, d.Admit)
		require.False(t, d.Skipped)
	}
	d, err := l.Check(context.Background(), "anon", RequestInfo{})
	require.NoError(t, err)
	assert.False(t, d.Admit)

	// a different caller has its own counter
	d, err = l.Check(context.Background(), "anon", RequestInfo{RemoteAddr: "192.0.2.1"})
	require.NoError(t, err)
	assert.True(t, d.Admit)
}

func TestUnitCheckFailureModes(t *testing.T) {
	tests := map[string]struct {
		mode         FailureMode
		wantAdmit    bool
		wantDegraded bool
		wantErr      error
	}{
		"fail open": {
			mode:         FailOpen,
			wantAdmit:    true,
			wantDegraded: true,
		},
		"fail closed": {
			mode:    FailClosed,
			wantErr: apperror.ErrCounterUnavailable,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			store := counter.NewMemory(nil)
			store.Err = errors.New("dial tcp: connection refused")
			l := newTestLimiter(t, store, tt.mode)

			d, err := l.Check(context.Background(), OpSyncOrder, RequestInfo{UserID: "u1"})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.False(t, d.Admit)
				assert.Equal(t, 10*time.Minute, d.Reset)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAdmit, d.Admit)
			assert.Equal(t, tt.wantDegraded, d.Degraded)
		})
	}
}

func TestUnitCheckUnknownOperation(t *testing.T) {
	l := newTestLimiter(t, counter.NewMemory(nil), FailOpen)

	_, err := l.Check(context.Background(), "nope", RequestInfo{UserID: "u"})
	require.ErrorIs(t, err, ErrUnknownPolicy)
}

type noTTLStore struct{ counter.Store }

func (noTTLStore) IncrWithExpire(ctx context.Context, key string, window time.Duration) (counter.Result, error) {
	return counter.Result{Count: 3}, nil
}

func TestUnitCheckResetFallsBackToWindow(t *testing.T) {
	policy := Policy{Name: "op", MaxRequests: 2, Window: 45 * time.Second, Strategy: BySession}
	l := newTestLimiter(t, noTTLStore{}, FailClosed, policy)

	d, err := l.Check(context.Background(), "op", RequestInfo{UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, d.Admit)
	assert.Equal(t, 45*time.Second, d.Reset)
}

func TestUnitNewLimiterRequiresFailureMode(t *testing.T) {
	reg, err := NewRegistry(DefaultPolicies()...)
	require.NoError(t, err)
	logger := zerolog.New(io.Discard)

	_, err = NewLimiter(reg, counter.NewMemory(nil), 0, &logger)
	require.Error(t, err)
}

func TestUnitParseFailureMode(t *testing.T) {
	m, err := ParseFailureMode("open")
	require.NoError(t, err)
	assert.Equal(t, FailOpen, m)

	m, err = ParseFailureMode("closed")
	require.NoError(t, err)
	assert.Equal(t, FailClosed, m)
	assert.Equal(t, "closed", m.String())

	_, err = ParseFailureMode("")
	require.Error(t, err)
}
