package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrReservationBackend = errors.New("cooldown reservation backend unavailable")

// Reserver claims an issuance slot for (email, purpose) across processes
// before the database transaction runs.
type Reserver interface {
	Reserve(ctx context.Context, email string, purpose Purpose, window time.Duration) (bool, time.Duration, error)
	Release(ctx context.Context, email string, purpose Purpose) error
}

type RedisReserver struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisReserver(client redis.UniversalClient, prefix string) *RedisReserver {
	if prefix == "" {
		prefix = "rentid"
	}
	return &RedisReserver{client: client, prefix: prefix}
}

func (r *RedisReserver) key(email string, purpose Purpose) string {
	return fmt.Sprintf("%s:cooldown:%s:%s", r.prefix, purpose, email)
}

func (r *RedisReserver) Reserve(ctx context.Context, email string, purpose Purpose, window time.Duration) (bool, time.Duration, error) {
	if r == nil || r.client == nil {
		return false, 0, ErrReservationBackend
	}
	if window <= 0 {
		return true, 0, nil
	}

	key := r.key(email, purpose)
	ok, err := r.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), window).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrReservationBackend, err)
	}
	if ok {
		return true, 0, nil
	}

	ttl, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrReservationBackend, err)
	}
	if ttl < 0 {
		// key without expiry or already gone; report the full window
		ttl = window
	}
	return false, ttl, nil
}

func (r *RedisReserver) Release(ctx context.Context, email string, purpose Purpose) error {
	if r == nil || r.client == nil {
		return ErrReservationBackend
	}
	if err := r.client.Del(ctx, r.key(email, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrReservationBackend, err)
	}
	return nil
}
