package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RevokedToken struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	JTI       string    `json:"jti" gorm:"uniqueIndex;size:64;not null"`
	UserID    uint      `json:"user_id" gorm:"index"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index;not null"`
}

func (RevokedToken) TableName() string {
	return "revoked_tokens"
}

// Store keeps revoked token IDs until the token would have expired anyway.
type Store interface {
	Revoke(ctx context.Context, jti string, userID uint, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	CleanupExpired(ctx context.Context) (int64, error)
}

type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *DatabaseStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *DatabaseStore) Revoke(ctx context.Context, jti string, userID uint, expiresAt time.Time) error {
	token := RevokedToken{JTI: jti, UserID: userID, ExpiresAt: expiresAt.UTC(), CreatedAt: s.now()}
	// revoking twice is not an error
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&token).Error
	if err != nil {
		return fmt.Errorf("failed to persist revoked token: %w", err)
	}
	return nil
}

func (s *DatabaseStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&RevokedToken{}).
		Where("jti = ? AND expires_at > ?", jti, s.now()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to query revoked tokens: %w", err)
	}
	return count > 0, nil
}

func (s *DatabaseStore) CleanupExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&RevokedToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cleanup revoked tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// RedisStore relies on key expiry, so CleanupExpired has nothing to do.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rentid"
	}
	return &RedisStore{client: client, prefix: prefix, now: func() time.Time { return time.Now().UTC() }}
}

func (s *RedisStore) key(jti string) string {
	return s.prefix + ":revoked:" + jti
}

func (s *RedisStore) Revoke(ctx context.Context, jti string, userID uint, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.key(jti), userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store revoked token: %w", err)
	}
	return nil
}

func (s *RedisStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := s.client.Get(ctx, s.key(jti)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query revoked token: %w", err)
	}
	return true, nil
}

func (s *RedisStore) CleanupExpired(ctx context.Context) (int64, error) {
	return 0, nil
}
