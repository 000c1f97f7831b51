package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Store struct {
	db        *gorm.DB
	generator Generator
	ttl       time.Duration
	attempts  int
	now       func() time.Time
	logger    *logging.Service
}

func NewStore(cfg *config.Config, db *gorm.DB, generator Generator, logger *logging.Service) *Store {
	ttl := cfg.Verification.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	attempts := cfg.Verification.IssueAttempts
	if attempts < 1 {
		attempts = 3
	}
	return &Store{
		db:        db,
		generator: generator,
		ttl:       ttl,
		attempts:  attempts,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) SetGenerator(generator Generator) {
	s.generator = generator
}

func (s *Store) Now() time.Time {
	return s.now()
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

// WithTx returns a copy of the store bound to tx. The copy shares the clock
// and generator of its parent.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	clone := *s
	clone.db = tx
	return &clone
}

func (s *Store) Issue(ctx context.Context, email string, purpose Purpose, ttl time.Duration) (*Record, error) {
	if !purpose.Valid() {
		return nil, ErrUnknownPurpose
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	db := s.db.WithContext(ctx)
	for attempt := 1; attempt <= s.attempts; attempt++ {
		code, token, err := s.generator.Generate(purpose)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("verification code generation failed", zap.Error(err), zap.String("purpose", string(purpose)))
			}
			if errors.Is(err, ErrGeneration) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
		}

		var taken int64
		if err := db.Model(&Record{}).Where("token = ?", token).Count(&taken).Error; err != nil {
			return nil, fmt.Errorf("failed to check token uniqueness: %w", err)
		}
		if taken > 0 {
			if s.logger != nil {
				s.logger.Warn("verification token collision, regenerating", zap.Int("attempt", attempt))
			}
			continue
		}

		now := s.now()
		record := &Record{
			Email:     email,
			Purpose:   purpose,
			Code:      code,
			Token:     token,
			Used:      false,
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := db.Create(record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// the insert may have aborted the surrounding transaction, so no retry here
				return nil, fmt.Errorf("%w: token collision on insert", ErrGeneration)
			}
			if s.logger != nil {
				s.logger.Error("failed to persist verification record", zap.Error(err), logging.Email(email))
			}
			return nil, fmt.Errorf("failed to persist verification record: %w", err)
		}

		if s.logger != nil {
			s.logger.Debug("verification record issued",
				zap.Uint("record_id", record.ID),
				zap.String("purpose", string(purpose)),
				zap.Time("expires_at", record.ExpiresAt))
		}
		return record, nil
	}

	if s.logger != nil {
		s.logger.Error("verification token collisions exhausted attempts", zap.Int("attempts", s.attempts))
	}
	return nil, fmt.Errorf("%w: token collisions exhausted %d attempts", ErrGeneration, s.attempts)
}

func (s *Store) FindByID(ctx context.Context, id uint) (*Record, error) {
	var record Record
	if err := s.db.WithContext(ctx).First(&record, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &record, nil
}

// FindByToken matches token and purpose only; used and expiry are left to the caller.
func (s *Store) FindByToken(ctx context.Context, token string, purpose Purpose) (*Record, error) {
	if token == "" {
		return nil, ErrRecordNotFound
	}
	var record Record
	err := s.db.WithContext(ctx).
		Where("token = ? AND purpose = ?", token, purpose).
		First(&record).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &record, nil
}

// FindByCodeAndToken returns the unused record matching code and token. An
// empty email skips the email filter.
func (s *Store) FindByCodeAndToken(ctx context.Context, email, code, token string, purpose Purpose) (*Record, error) {
	if code == "" || token == "" {
		return nil, ErrRecordNotFound
	}
	query := s.db.WithContext(ctx).
		Where("code = ? AND token = ? AND purpose = ? AND used = ?", code, token, purpose, false)
	if email != "" {
		query = query.Where("email = ?", email)
	}

	var record Record
	if err := query.First(&record).Error; err != nil {
		return nil, notFound(err)
	}
	return &record, nil
}

// FindByEmailAndCode returns the most recent unused record for email carrying code.
func (s *Store) FindByEmailAndCode(ctx context.Context, email, code string, purpose Purpose) (*Record, error) {
	if email == "" || code == "" {
		return nil, ErrRecordNotFound
	}
	var record Record
	err := s.db.WithContext(ctx).
		Where("email = ? AND code = ? AND purpose = ? AND used = ?", email, code, purpose, false).
		Order("created_at DESC").Order("id DESC").
		First(&record).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &record, nil
}

// Latest returns the most recently issued record for (email, purpose) whatever its state.
func (s *Store) Latest(ctx context.Context, email string, purpose Purpose) (*Record, error) {
	var record Record
	err := s.db.WithContext(ctx).
		Where("email = ? AND purpose = ?", email, purpose).
		Order("created_at DESC").Order("id DESC").
		First(&record).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &record, nil
}

func (s *Store) LatestIssuedAt(ctx context.Context, email string, purpose Purpose) (time.Time, bool, error) {
	record, err := s.Latest(ctx, email, purpose)
	if errors.Is(err, ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return record.CreatedAt, true, nil
}

// MarkUsed flips used from false to true with a single conditional update.
// It reports false without error when another caller already spent the record.
func (s *Store) MarkUsed(ctx context.Context, record *Record) (bool, error) {
	now := s.now()
	result := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("id = ? AND used = ?", record.ID, false).
		Updates(map[string]any{"used": true, "used_at": now, "updated_at": now})
	if result.Error != nil {
		if s.logger != nil {
			s.logger.Error("failed to mark verification record used", zap.Error(result.Error), zap.Uint("record_id", record.ID))
		}
		return false, fmt.Errorf("failed to mark verification record used: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		if s.logger != nil {
			s.logger.Debug("verification record already used", zap.Uint("record_id", record.ID))
		}
		return false, nil
	}

	record.Used = true
	record.UsedAt = &now
	return true, nil
}

func (s *Store) IsExpired(record *Record) bool {
	return !s.now().Before(record.ExpiresAt)
}

// Consumable applies the full validity predicate: unused, unexpired and of the given purpose.
func (s *Store) Consumable(record *Record, purpose Purpose) bool {
	return record != nil && !record.Used && record.Purpose == purpose && !s.IsExpired(record)
}

func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at < ?", s.now()).Delete(&Record{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cleanup expired verification records: %w", result.Error)
	}

	if s.logger != nil {
		s.logger.Info("expired verification records removed", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func (s *Store) DeleteForEmails(ctx context.Context, emails []string) (int64, error) {
	if len(emails) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Where("email IN ?", emails).Delete(&Record{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete verification records: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return fmt.Errorf("failed to query verification records: %w", err)
}
