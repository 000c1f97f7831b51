package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tech-arch1tect/rentid/metrics"
	"github.com/tech-arch1tect/rentid/services/logging"
	"github.com/tech-arch1tect/rentid/services/revocation"
	"github.com/tech-arch1tect/rentid/services/users"
	"github.com/tech-arch1tect/rentid/services/verification"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	TaskCleanup = "cleanup"
	TaskPurge   = "purge_pending"
)

type CleanupReport struct {
	VerificationRecords int64 `json:"verification_records"`
	RevokedTokens       int64 `json:"revoked_tokens"`
}

type PurgeReport struct {
	Users               int64     `json:"users"`
	VerificationRecords int64     `json:"verification_records"`
	CreatedBefore       time.Time `json:"created_before"`
}

type Service struct {
	db         *gorm.DB
	users      *users.Repository
	records    *verification.Store
	revocation *revocation.Service
	metrics    *metrics.Metrics
	logger     *logging.Service
	purgeAfter time.Duration
	now        func() time.Time
}

func NewService(db *gorm.DB, repo *users.Repository, records *verification.Store, purgeAfter time.Duration, logger *logging.Service) *Service {
	if purgeAfter <= 0 {
		purgeAfter = 7 * 24 * time.Hour
	}
	return &Service{
		db:         db,
		users:      repo,
		records:    records,
		logger:     logger,
		purgeAfter: purgeAfter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetRevocation(svc *revocation.Service) {
	s.revocation = svc
}

func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Cleanup deletes expired verification records and expired token revocations.
func (s *Service) Cleanup(ctx context.Context) (CleanupReport, error) {
	var report CleanupReport

	removed, err := s.records.CleanupExpired(ctx)
	if err != nil {
		return report, err
	}
	report.VerificationRecords = removed

	if s.revocation != nil {
		revoked, err := s.revocation.CleanupExpiredTokens(ctx)
		if err != nil && !errors.Is(err, revocation.ErrStoreNotConfigured) {
			return report, err
		}
		report.RevokedTokens = revoked
	}
	s.metrics.RecordRemoved(TaskCleanup, report.VerificationRecords+report.RevokedTokens)

	if s.logger != nil {
		s.logger.Info("maintenance cleanup finished",
			zap.Int64("verification_records", report.VerificationRecords),
			zap.Int64("revoked_tokens", report.RevokedTokens))
	}
	return report, nil
}

// PurgePending removes identities that never verified within the purge
// window, together with their verification history.
func (s *Service) PurgePending(ctx context.Context) (PurgeReport, error) {
	report := PurgeReport{CreatedBefore: s.now().Add(-s.purgeAfter)}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		purged, emails, err := s.users.WithTx(tx).PurgePending(ctx, report.CreatedBefore)
		if err != nil {
			return err
		}
		records, err := s.records.WithTx(tx).DeleteForEmails(ctx, emails)
		if err != nil {
			return err
		}
		report.Users = purged
		report.VerificationRecords = records
		return nil
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Error("pending user purge failed", zap.Error(err))
		}
		return PurgeReport{}, fmt.Errorf("failed to purge pending users: %w", err)
	}

	s.metrics.RecordRemoved(TaskPurge, report.Users)
	if s.logger != nil {
		s.logger.Info("pending user purge finished",
			zap.Int64("users", report.Users),
			zap.Int64("verification_records", report.VerificationRecords),
			zap.Time("created_before", report.CreatedBefore))
	}
	return report, nil
}

// Run executes task every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, task string, interval time.Duration) {
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
			if err := s.RunTask(ctx, task); err != nil && s.logger != nil {
				s.logger.Error("maintenance task failed", zap.String("task", task), zap.Error(err))
			}
		}
	}
}

func (s *Service) RunTask(ctx context.Context, task string) error {
	var err error
	switch task {
	case TaskCleanup:
		_, err = s.Cleanup(ctx)
	case TaskPurge:
		_, err = s.PurgePending(ctx)
	default:
		err = fmt.Errorf("unknown maintenance task: %s", task)
	}
	return err
}
