package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tech-arch1tect/rentid/services/logging"
	"go.uber.org/zap"
)

var ErrStoreNotConfigured = errors.New("revocation store not configured")

type Service struct {
	store  Store
	logger *logging.Service
}

func NewService(store Store, logger *logging.Service) *Service {
	return &Service{store: store, logger: logger}
}

func (s *Service) RevokeToken(ctx context.Context, jti string, userID uint, expiresAt time.Time) error {
	if s.store == nil {
		return ErrStoreNotConfigured
	}

	if err := s.store.Revoke(ctx, jti, userID, expiresAt); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to revoke token", zap.String("jti", jti), zap.Error(err))
		}
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("token revoked",
			zap.String("jti", jti),
			zap.Uint("user_id", userID),
			zap.Time("expires_at", expiresAt))
	}
	return nil
}

func (s *Service) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if s.store == nil {
		return false, ErrStoreNotConfigured
	}

	revoked, err := s.store.IsRevoked(ctx, jti)
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return revoked, nil
}

func (s *Service) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	if s.store == nil {
		return 0, ErrStoreNotConfigured
	}

	removed, err := s.store.CleanupExpired(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to cleanup revoked tokens", zap.Error(err))
		}
		return 0, err
	}

	if s.logger != nil && removed > 0 {
		s.logger.Info("expired revoked tokens removed", zap.Int64("count", removed))
	}
	return removed, nil
}

// RunCleanup removes expired entries every interval until ctx is cancelled.
func (s *Service) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CleanupExpiredTokens(ctx); err != nil && s.logger != nil {
				s.logger.Error("revocation cleanup worker failed", zap.Error(err))
			}
		}
	}
}
