package verification

import (
	"time"
)

type Purpose string

const (
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

func (p Purpose) Valid() bool {
	return p == PurposeEmailVerification || p == PurposePasswordReset
}

func ParsePurpose(s string) (Purpose, error) {
	p := Purpose(s)
	if !p.Valid() {
		return "", ErrUnknownPurpose
	}
	return p, nil
}

// Record is one issued code/token pair. Records are never reused: a resend
// issues a new row and older rows stay until CleanupExpired removes them.
type Record struct {
	ID        uint       `json:"id" gorm:"primarykey"`
	Email     string     `json:"email" gorm:"size:255;not null;index:idx_verification_subject,priority:1"`
	Purpose   Purpose    `json:"purpose" gorm:"size:32;not null;index:idx_verification_subject,priority:2"`
	Code      string     `json:"-" gorm:"size:16;not null"`
	Token     string     `json:"-" gorm:"size:128;not null;uniqueIndex"`
	Used      bool       `json:"used" gorm:"not null;default:false"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null;index"`
	CreatedAt time.Time  `json:"created_at" gorm:"not null;index:idx_verification_subject,priority:3"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Record) TableName() string {
	return "verification_records"
}

// Lifetime is the validity window the record was issued with.
func (r *Record) Lifetime() time.Duration {
	return r.ExpiresAt.Sub(r.CreatedAt)
}

// ExpiresIn reports the time left before expiry, never negative.
func (r *Record) ExpiresIn(now time.Time) time.Duration {
	if d := r.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
