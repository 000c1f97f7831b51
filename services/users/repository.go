package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tech-arch1tect/rentid/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrDuplicate    = errors.New("user already exists")
)

type Repository struct {
	db     *gorm.DB
	logger *logging.Service
}

func NewRepository(db *gorm.DB, logger *logging.Service) *Repository {
	return &Repository{db: db, logger: logger}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx, logger: r.logger}
}

func (r *Repository) Create(ctx context.Context, user *User) error {
	user.Email = NormalizeEmail(user.Email)
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		if r.logger != nil {
			r.logger.Error("failed to create user", zap.Error(err), logging.Email(user.Email))
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *Repository) FindByID(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// FindByEmailForUpdate locks the row until the surrounding transaction ends.
// sqlite has no row locks; its single writer gives the same ordering.
func (r *Repository) FindByEmailForUpdate(ctx context.Context, email string) (*User, error) {
	query := r.db.WithContext(ctx)
	if query.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var user User
	if err := query.Where("email = ?", NormalizeEmail(email)).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// Conflicts reports which of the unique fields are already taken, keyed by field name.
func (r *Repository) Conflicts(ctx context.Context, email, phone, documentID string) (map[string]bool, error) {
	checks := []struct {
		field  string
		column string
		value  string
	}{
		{"email", "email", NormalizeEmail(email)},
		{"phone", "phone", phone},
		{"document_id", "document_id", documentID},
	}

	taken := make(map[string]bool)
	for _, check := range checks {
		if check.value == "" {
			continue
		}
		var count int64
		err := r.db.WithContext(ctx).Unscoped().Model(&User{}).
			Where(check.column+" = ?", check.value).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("failed to check %s uniqueness: %w", check.field, err)
		}
		if count > 0 {
			taken[check.field] = true
		}
	}
	return taken, nil
}

func (r *Repository) MarkVerified(ctx context.Context, user *User, at time.Time) error {
	updates := map[string]any{
		"verification_status": VerificationVerified,
		"status":              StatusActive,
		"email_verified_at":   at,
	}
	if err := r.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to mark user verified: %w", err)
	}
	user.VerificationStatus = VerificationVerified
	user.Status = StatusActive
	user.EmailVerifiedAt = &at
	return nil
}

func (r *Repository) UpdatePassword(ctx context.Context, user *User, hash string) error {
	if err := r.db.WithContext(ctx).Model(user).Update("password", hash).Error; err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	user.Password = hash
	return nil
}

// PurgePending hard-deletes identities still pending verification that were
// created before the cutoff and returns the emails it removed.
func (r *Repository) PurgePending(ctx context.Context, before time.Time) (int64, []string, error) {
	db := r.db.WithContext(ctx)

	var emails []string
	err := db.Unscoped().Model(&User{}).
		Where("verification_status = ? AND created_at < ?", VerificationPending, before).
		Pluck("email", &emails).Error
	if err != nil {
		return 0, nil, fmt.Errorf("failed to list pending users: %w", err)
	}
	if len(emails) == 0 {
		return 0, nil, nil
	}

	result := db.Unscoped().
		Where("verification_status = ? AND email IN ?", VerificationPending, emails).
		Delete(&User{})
	if result.Error != nil {
		return 0, nil, fmt.Errorf("failed to purge pending users: %w", result.Error)
	}

	if r.logger != nil {
		r.logger.Info("pending users purged", zap.Int64("count", result.RowsAffected), zap.Time("created_before", before))
	}
	return result.RowsAffected, emails, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	return fmt.Errorf("failed to query users: %w", err)
}
