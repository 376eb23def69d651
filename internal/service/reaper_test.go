package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokerhaus/portal-api/config"
	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
)

func newTestReaper(t *testing.T, env *testEnv, cfg config.ReaperConfig) *ReaperService {
	t.Helper()
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	reaper, err := NewReaperService(ReaperServiceOptions{
		Sessions: env.sessions,
		Profiles: env.profiles,
		Config:   cfg,
	})
	require.NoError(t, err)
	return reaper
}

func TestNewReaperService_RequiresDependencies(t *testing.T) {
	_, err := NewReaperService(ReaperServiceOptions{})
	assert.Error(t, err)
}

func TestReaperService_Sweep(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.seedUser("u1", "u1@example.com", "pw", quotesBrokerClaims())
	env.seedUser("u2", "u2@example.com", "pw", quotesBrokerClaims())

	expired := env.seedSession(t, "u1", -time.Minute)
	surviving := env.seedSession(t, "u2", domainauth.SessionTTL)
	alsoExpired := env.seedSession(t, "u2", -time.Minute)

	require.NoError(t, env.profiles.UpdateActivity(context.Background(), "u1", true, time.Time{}, time.Time{}, expired))
	require.NoError(t, env.profiles.UpdateActivity(context.Background(), "u2", true, time.Time{}, time.Time{}, surviving))

	reaper := newTestReaper(t, env, config.ReaperConfig{})
	offline, err := reaper.Sweep(context.Background())
	require.NoError(t, err)

	// Only u1 lost its last session and goes offline.
	assert.Equal(t, 1, offline)

	sess, err := env.sessions.Get(context.Background(), expired)
	require.NoError(t, err)
	assert.False(t, sess.IsActive)

	sess, err = env.sessions.Get(context.Background(), alsoExpired)
	require.NoError(t, err)
	assert.False(t, sess.IsActive)

	sess, err = env.sessions.Get(context.Background(), surviving)
	require.NoError(t, err)
	assert.True(t, sess.IsActive)

	u1, err := env.profiles.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, u1.IsOnline)

	u2, err := env.profiles.Get(context.Background(), "u2")
	require.NoError(t, err)
	assert.True(t, u2.IsOnline, "a user with a surviving session stays online")
}

func TestReaperService_Sweep_Idempotent(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.seedUser("u1", "u1@example.com", "pw", quotesBrokerClaims())
	env.seedSession(t, "u1", -time.Minute)

	reaper := newTestReaper(t, env, config.ReaperConfig{})

	offline, err := reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, offline)

	offline, err = reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, offline, "second sweep finds nothing")
}

func TestReaperService_Sweep_SmallBatches(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.seedUser("u1", "u1@example.com", "pw", quotesBrokerClaims())
	for i := 0; i < 5; i++ {
		env.seedSession(t, "u1", -time.Minute)
	}

	reaper := newTestReaper(t, env, config.ReaperConfig{BatchSize: 2, Interval: time.Minute})
	_, err := reaper.Sweep(context.Background())
	require.NoError(t, err)

	for _, sess := range env.sessions.All() {
		assert.False(t, sess.IsActive, "batching must still drain every expired session")
	}
}

func TestReaperService_Run_StopsOnCancel(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	reaper := newTestReaper(t, env, config.ReaperConfig{Interval: 10 * time.Millisecond, BatchSize: 10})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reaper.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "graceful shutdown is not an error")
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}
