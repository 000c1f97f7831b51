package verification

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/rentid/services/logging"
	"github.com/tech-arch1tect/rentid/testutils"
	"go.uber.org/fx"
)

func newTestReserver(t *testing.T) (*RedisReserver, *miniredis.Miniredis) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisReserver(client, "test"), m
}

func TestRedisReserver_Reserve(t *testing.T) {
	reserver, m := newTestReserver(t)
	ctx := context.Background()

	ok, remaining, err := reserver.Reserve(ctx, "tenant@example.com", PurposeEmailVerification, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, remaining)
	assert.True(t, m.Exists("test:cooldown:email_verification:tenant@example.com"))

	m.FastForward(20 * time.Second)

	ok, remaining, err = reserver.Reserve(ctx, "tenant@example.com", PurposeEmailVerification, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, remaining)

	ok, _, err = reserver.Reserve(ctx, "tenant@example.com", PurposePasswordReset, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "purposes use separate keys")

	m.FastForward(41 * time.Second)

	ok, _, err = reserver.Reserve(ctx, "tenant@example.com", PurposeEmailVerification, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisReserver_Release(t *testing.T) {
	reserver, m := newTestReserver(t)
	ctx := context.Background()

	ok, _, err := reserver.Reserve(ctx, "tenant@example.com", PurposeEmailVerification, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, reserver.Release(ctx, "tenant@example.com", PurposeEmailVerification))
	assert.False(t, m.Exists("test:cooldown:email_verification:tenant@example.com"))

	ok, _, err = reserver.Reserve(ctx, "tenant@example.com", PurposeEmailVerification, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisReserver_ZeroWindow(t *testing.T) {
	reserver, m := newTestReserver(t)

	ok, _, err := reserver.Reserve(context.Background(), "tenant@example.com", PurposeEmailVerification, 0)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, m.Keys())
}

func TestRedisReserver_BackendErrors(t *testing.T) {
	var nilReserver *RedisReserver
	_, _, err := nilReserver.Reserve(context.Background(), "a@example.com", PurposeEmailVerification, time.Minute)
	assert.ErrorIs(t, err, ErrReservationBackend)
	assert.ErrorIs(t, nilReserver.Release(context.Background(), "a@example.com", PurposeEmailVerification), ErrReservationBackend)

	reserver, m := newTestReserver(t)
	m.Close()

	_, _, err = reserver.Reserve(context.Background(), "a@example.com", PurposeEmailVerification, time.Minute)
	assert.ErrorIs(t, err, ErrReservationBackend)
}

func TestProvideReserver(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tests := []struct {
		name   string
		store  string
		client *redis.Client
		want   bool
	}{
		{"disabled", "none", client, false},
		{"redis without client", "redis", nil, false},
		{"redis with client", "redis", client, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testutils.GetTestConfig()
			cfg.Verification.ReservationStore = tt.store

			reserver := ProvideReserver(cfg, OptionalRedis{Client: tt.client}, nil)

			if tt.want {
				assert.NotNil(t, reserver)
			} else {
				assert.Nil(t, reserver)
			}
		})
	}
}

func TestModule(t *testing.T) {
	db := testutils.SetupTestDB(t, &Record{})
	cfg := testutils.GetTestConfig()

	var (
		store    *Store
		gate     *CooldownGate
		reserver Reserver
	)
	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg, db),
		fx.Provide(func() *logging.Service { return nil }),
		Module,
		fx.Populate(&store, &gate, &reserver),
	)
	require.NoError(t, app.Err())
	assert.NotNil(t, store)
	assert.Equal(t, time.Minute, gate.Window())
	assert.Nil(t, reserver)
}
