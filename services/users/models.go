package users

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
)

type User struct {
	gorm.Model
	Name               string             `json:"name" gorm:"size:100;not null"`
	Email              string             `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Phone              string             `json:"phone" gorm:"size:20;uniqueIndex;not null"`
	DocumentID         string             `json:"document_id" gorm:"size:50;uniqueIndex;not null"`
	Address            string             `json:"address" gorm:"size:255"`
	Password           string             `json:"-" gorm:"not null"`
	Role               Role               `json:"role" gorm:"size:20;default:user;not null"`
	Status             Status             `json:"status" gorm:"size:20;default:inactive;not null"`
	VerificationStatus VerificationStatus `json:"verification_status" gorm:"size:20;default:pending;index;not null"`
	EmailVerifiedAt    *time.Time         `json:"email_verified_at,omitempty"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsVerified() bool {
	return u.VerificationStatus == VerificationVerified
}

func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Profile is the public projection returned by the HTTP layer.
type Profile struct {
	ID                 uint               `json:"id"`
	Name               string             `json:"name"`
	Email              string             `json:"email"`
	Phone              string             `json:"phone,omitempty"`
	Status             Status             `json:"status"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	Role               Role               `json:"role"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:                 u.ID,
		Name:               u.Name,
		Email:              u.Email,
		Phone:              u.Phone,
		Status:             u.Status,
		VerificationStatus: u.VerificationStatus,
		Role:               u.Role,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
