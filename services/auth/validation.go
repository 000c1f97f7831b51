package auth

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tech-arch1tect/rentid/services/users"
)

var phonePattern = regexp.MustCompile(`^[0-9]{10,20}$`)

const (
	maxEmailLength    = 255
	defaultCodeLength = 6
)

func validateEmail(v *ValidationError, field, email string) {
	switch {
	case email == "":
		v.Add(field, "email is required")
	case len(email) > maxEmailLength:
		v.Add(field, "email must not exceed 255 characters")
	case !isEmail(email):
		v.Add(field, "email must be a valid email address")
	}
}

// isEmail accepts a bare address only; display names and angle brackets are rejected.
func isEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && addr.Name == ""
}

func validateLength(v *ValidationError, field, value string, minLen, maxLen int) {
	n := utf8.RuneCountInString(value)
	switch {
	case n == 0:
		v.Add(field, field+" is required")
	case n < minLen:
		v.Add(field, field+" is too short")
	case n > maxLen:
		v.Add(field, field+" is too long")
	}
}

func validateCode(v *ValidationError, code string, length int) {
	if len(code) != length || strings.Trim(code, "0123456789") != "" {
		v.Add("code", fmt.Sprintf("code must be %d digits", length))
	}
}

func (in *RegisterInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = users.NormalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.DocumentID = strings.TrimSpace(in.DocumentID)
	in.Address = strings.TrimSpace(in.Address)
}

func (in *RegisterInput) validate() *ValidationError {
	v := newValidationError()
	validateLength(v, "name", in.Name, 2, 100)
	validateEmail(v, "email", in.Email)
	if !phonePattern.MatchString(in.Phone) {
		v.Add("phone", "phone must contain 10 to 20 digits")
	}
	validateLength(v, "address", in.Address, 5, 255)
	validateLength(v, "document_id", in.DocumentID, 1, 50)
	if in.Password == "" {
		v.Add("password", "password is required")
	} else if in.PasswordConfirmation != "" && in.Password != in.PasswordConfirmation {
		v.Add("password_confirmation", "password confirmation does not match")
	}
	return v
}

func (in *ResetPasswordInput) validate(codeLength int) *ValidationError {
	v := newValidationError()
	validateEmail(v, "email", in.Email)
	switch {
	case in.Code != "" && in.Token != "":
		v.Add("code", "provide either a code or a token, not both")
	case in.Code == "" && in.Token == "":
		v.Add("code", "a code or a token is required")
	case in.Code != "":
		validateCode(v, in.Code, codeLength)
	}
	if in.Password == "" {
		v.Add("password", "password is required")
	} else if in.Password != in.PasswordConfirmation {
		v.Add("password_confirmation", "password confirmation does not match")
	}
	return v
}

func (in *ChangePasswordInput) validate() *ValidationError {
	v := newValidationError()
	if in.CurrentPassword == "" {
		v.Add("current_password", "current password is required")
	}
	if in.NewPassword == "" {
		v.Add("new_password", "new password is required")
	} else if in.NewPassword != in.NewPasswordConfirmation {
		v.Add("new_password_confirmation", "password confirmation does not match")
	}
	return v
}
