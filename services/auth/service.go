package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tech-arch1tect/rentid/metrics"
	"github.com/tech-arch1tect/rentid/services/jwt"
	"github.com/tech-arch1tect/rentid/services/logging"
	"github.com/tech-arch1tect/rentid/services/mailqueue"
	"github.com/tech-arch1tect/rentid/services/password"
	"github.com/tech-arch1tect/rentid/services/users"
	"github.com/tech-arch1tect/rentid/services/verification"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Mailer interface {
	SendConfirmation(ctx context.Context, user *users.User, record *verification.Record) error
	SendResend(ctx context.Context, user *users.User, record *verification.Record) error
	SendPasswordReset(ctx context.Context, user *users.User, record *verification.Record) error
	SendPasswordChangedNotice(ctx context.Context, user *users.User) error
}

type SessionIssuer interface {
	Issue(userID uint, role string, remember bool) (*jwt.SessionToken, error)
	Validate(ctx context.Context, token string) (*jwt.Claims, error)
	Invalidate(ctx context.Context, token string) error
	Refresh(ctx context.Context, token, role string) (*jwt.SessionToken, error)
}

type Dependencies struct {
	DB        *gorm.DB
	Users     *users.Repository
	Records   *verification.Store
	Gate      *verification.CooldownGate
	Passwords *password.Service
	Mailer    Mailer
	Sessions  SessionIssuer

	// CodeLength is the number of digits the generator issues; 6 when unset.
	CodeLength int
}

type Service struct {
	db        *gorm.DB
	users     *users.Repository
	records   *verification.Store
	gate      *verification.CooldownGate
	passwords *password.Service
	mailer    Mailer
	sessions  SessionIssuer
	codeLen   int
	queue     mailqueue.Queue
	reserver  verification.Reserver
	metrics   *metrics.Metrics
	logger    *logging.Service
}

func NewService(deps Dependencies, logger *logging.Service) *Service {
	codeLen := deps.CodeLength
	if codeLen <= 0 {
		codeLen = defaultCodeLength
	}
	return &Service{
		codeLen:   codeLen,
		db:        deps.DB,
		users:     deps.Users,
		records:   deps.Records,
		gate:      deps.Gate,
		passwords: deps.Passwords,
		mailer:    deps.Mailer,
		sessions:  deps.Sessions,
		logger:    logger,
	}
}

// SetQueue moves post-commit mail onto queue. Registration mail stays synchronous.
func (s *Service) SetQueue(queue mailqueue.Queue) {
	s.queue = queue
}

func (s *Service) SetReserver(reserver verification.Reserver) {
	s.reserver = reserver
}

func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

type RegisterInput struct {
	Name                 string
	Email                string
	Phone                string
	Address              string
	DocumentID           string
	Password             string
	PasswordConfirmation string
}

type RegisterResult struct {
	User   *users.User
	Record *verification.Record
}

type IssueResult struct {
	Record    *verification.Record
	ExpiresIn time.Duration
}

type VerifyResult struct {
	User    *users.User
	Session *jwt.SessionToken
}

type LoginInput struct {
	Email    string
	Password string
	Remember bool
}

type LoginResult struct {
	User    *users.User
	Session *jwt.SessionToken
}

type ResetPasswordInput struct {
	Email                string
	Code                 string
	Token                string
	Password             string
	PasswordConfirmation string
}

type ChangePasswordInput struct {
	CurrentPassword         string
	NewPassword             string
	NewPasswordConfirmation string
}

var duplicateMessages = map[string]string{
	"email":       "this email is already registered",
	"phone":       "this phone number is already registered",
	"document_id": "this document is already registered",
}

// Register creates a pending identity and sends its confirmation code. The
// identity and the code only persist when the message was handed to the mail
// transport.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	in.normalize()
	v := in.validate()

	taken, err := s.users.Conflicts(ctx, in.Email, in.Phone, in.DocumentID)
	if err != nil {
		return nil, s.internal("failed to check registration conflicts", err)
	}
	for field := range taken {
		v.Add(field, duplicateMessages[field])
	}
	if in.Password != "" {
		if err := s.policyCheck(v, "password", in.Password); err != nil {
			return nil, err
		}
	}
	if v.HasErrors() {
		return nil, v
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, s.internal("failed to hash password", err)
	}

	user := &users.User{
		Name:               in.Name,
		Email:              in.Email,
		Phone:              in.Phone,
		DocumentID:         in.DocumentID,
		Address:            in.Address,
		Password:           hash,
		Role:               users.RoleUser,
		Status:             users.StatusInactive,
		VerificationStatus: users.VerificationPending,
	}

	var record *verification.Record
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).Create(ctx, user); err != nil {
			if errors.Is(err, users.ErrDuplicate) {
				return err
			}
			return s.internal("failed to create user", err)
		}

		issued, err := s.records.WithTx(tx).Issue(ctx, user.Email, verification.PurposeEmailVerification, 0)
		if err != nil {
			return s.issueFailure(err)
		}

		if err := s.sendInline(ctx, mailqueue.KindConfirmation, user, issued); err != nil {
			if s.logger != nil {
				s.logger.Error("confirmation email failed, rolling back registration", zap.Error(err), logging.Email(user.Email))
			}
			return fmt.Errorf("%w: %v", ErrMailDispatch, err)
		}
		record = issued
		return nil
	})
	if errors.Is(err, users.ErrDuplicate) {
		return nil, s.duplicateRegistration(ctx, in)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.RecordIssued(string(verification.PurposeEmailVerification))
	if s.logger != nil {
		s.logger.Info("user registered", zap.Uint("user_id", user.ID), logging.Email(user.Email))
	}
	return &RegisterResult{User: user, Record: record}, nil
}

// duplicateRegistration names the fields a concurrent registration took
// between the conflict check and the insert.
func (s *Service) duplicateRegistration(ctx context.Context, in RegisterInput) error {
	taken, err := s.users.Conflicts(ctx, in.Email, in.Phone, in.DocumentID)
	if err != nil {
		return s.internal("failed to check registration conflicts", err)
	}
	v := newValidationError()
	for field := range taken {
		v.Add(field, duplicateMessages[field])
	}
	if !v.HasErrors() {
		v.Add("email", duplicateMessages["email"])
	}
	return v
}

// Resend issues a fresh code for purpose once the cooldown window has passed.
func (s *Service) Resend(ctx context.Context, email string, purpose verification.Purpose) (*IssueResult, error) {
	email = users.NormalizeEmail(email)
	v := newValidationError()
	validateEmail(v, "email", email)
	if !purpose.Valid() {
		v.Add("purpose", "purpose must be email_verification or password_reset")
	}
	if v.HasErrors() {
		return nil, v
	}

	kind := mailqueue.KindResend
	if purpose == verification.PurposePasswordReset {
		kind = mailqueue.KindPasswordReset
	}

	_, record, err := s.issueCode(ctx, email, purpose, kind)
	if err != nil {
		return nil, err
	}
	return &IssueResult{Record: record, ExpiresIn: record.Lifetime()}, nil
}

// issueCode runs the cooldown check and the issue under the identity row lock.
func (s *Service) issueCode(ctx context.Context, email string, purpose verification.Purpose, kind mailqueue.Kind) (*users.User, *verification.Record, error) {
	var (
		user     *users.User
		record   *verification.Record
		reserved bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := s.users.WithTx(tx).FindByEmailForUpdate(ctx, email)
		if errors.Is(err, users.ErrUserNotFound) {
			return ErrIdentityNotFound
		}
		if err != nil {
			return s.internal("failed to load user", err)
		}
		if purpose == verification.PurposeEmailVerification && u.IsVerified() {
			return ErrAlreadyVerified
		}

		if s.reserver != nil {
			ok, remaining, err := s.reserver.Reserve(ctx, u.Email, purpose, s.gate.Window())
			switch {
			case err != nil:
				if s.logger != nil {
					s.logger.Warn("cooldown reservation unavailable, relying on database gate", zap.Error(err))
				}
			case !ok:
				return &RateLimitedError{Remaining: ceilSeconds(remaining)}
			default:
				reserved = true
			}
		}

		decision, err := s.gate.WithTx(tx).Check(ctx, u.Email, purpose)
		if err != nil {
			return s.internal("failed to evaluate cooldown", err)
		}
		if !decision.CanResend {
			return &RateLimitedError{Remaining: decision.Remaining}
		}

		issued, err := s.records.WithTx(tx).Issue(ctx, u.Email, purpose, 0)
		if err != nil {
			return s.issueFailure(err)
		}

		if s.queue == nil {
			if err := s.sendInline(ctx, kind, u, issued); err != nil {
				if s.logger != nil {
					s.logger.Error("verification email failed", zap.Error(err), zap.String("purpose", string(purpose)), logging.Email(u.Email))
				}
				return fmt.Errorf("%w: %v", ErrMailDispatch, err)
			}
		}

		user, record = u, issued
		return nil
	})
	if err != nil {
		if reserved {
			if releaseErr := s.reserver.Release(ctx, email, purpose); releaseErr != nil && s.logger != nil {
				s.logger.Warn("failed to release cooldown reservation", zap.Error(releaseErr))
			}
		}
		var limited *RateLimitedError
		if errors.As(err, &limited) {
			s.metrics.RecordRateLimited(string(purpose))
			if s.logger != nil {
				s.logger.Info("code request rate limited",
					zap.String("purpose", string(purpose)),
					zap.Int("retry_after", limited.Remaining),
					logging.Email(email))
			}
		}
		return nil, nil, err
	}

	s.metrics.RecordIssued(string(purpose))
	if s.queue != nil {
		s.enqueue(ctx, kind, user, record)
	}
	return user, record, nil
}

// VerifyEmail spends the confirmation code and activates its identity. The
// session token is issued after commit; failing to issue it does not undo
// the verification.
func (s *Service) VerifyEmail(ctx context.Context, code, token string) (*VerifyResult, error) {
	v := newValidationError()
	validateCode(v, code, s.codeLen)
	if token == "" {
		v.Add("token", "token is required")
	}
	if v.HasErrors() {
		return nil, v
	}

	record, err := s.records.FindByCodeAndToken(ctx, "", code, token, verification.PurposeEmailVerification)
	if errors.Is(err, verification.ErrRecordNotFound) {
		return nil, ErrInvalidOrExpired
	}
	if err != nil {
		return nil, s.internal("failed to look up verification code", err)
	}
	if s.records.IsExpired(record) {
		return nil, ErrInvalidOrExpired
	}

	var user *users.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.records.WithTx(tx).MarkUsed(ctx, record)
		if err != nil {
			return s.internal("failed to consume verification code", err)
		}
		if !won {
			return ErrInvalidOrExpired
		}

		u, err := s.users.WithTx(tx).FindByEmailForUpdate(ctx, record.Email)
		if errors.Is(err, users.ErrUserNotFound) {
			return ErrIdentityNotFound
		}
		if err != nil {
			return s.internal("failed to load user", err)
		}
		if err := s.users.WithTx(tx).MarkVerified(ctx, u, s.records.Now()); err != nil {
			return s.internal("failed to mark user verified", err)
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordConsumed(string(verification.PurposeEmailVerification))
	if s.logger != nil {
		s.logger.Info("email verified", zap.Uint("user_id", user.ID))
	}

	session, err := s.sessions.Issue(user.ID, string(user.Role), false)
	if err != nil && s.logger != nil {
		s.logger.Error("failed to issue session after verification", zap.Error(err), zap.Uint("user_id", user.ID))
	}
	return &VerifyResult{User: user, Session: session}, nil
}

// CheckToken reports whether token still names a consumable confirmation
// record. It never consumes.
func (s *Service) CheckToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		v := newValidationError()
		v.Add("token", "token is required")
		return false, v
	}

	record, err := s.records.FindByToken(ctx, token, verification.PurposeEmailVerification)
	if errors.Is(err, verification.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, s.internal("failed to look up verification token", err)
	}
	return s.records.Consumable(record, verification.PurposeEmailVerification), nil
}

// ForgotPassword answers every well-formed address the same way. Whether a
// code was issued is only visible in the logs.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = users.NormalizeEmail(email)
	v := newValidationError()
	validateEmail(v, "email", email)
	if v.HasErrors() {
		return v
	}

	_, _, err := s.issueCode(ctx, email, verification.PurposePasswordReset, mailqueue.KindPasswordReset)
	var limited *RateLimitedError
	switch {
	case err == nil:
		if s.logger != nil {
			s.logger.Info("password reset code issued", logging.Email(email))
		}
	case errors.Is(err, ErrIdentityNotFound):
		if s.logger != nil {
			s.logger.Info("password reset requested for unknown email", logging.Email(email))
		}
	case errors.As(err, &limited):
	default:
		if s.logger != nil {
			s.logger.Error("password reset request failed", zap.Error(err), logging.Email(email))
		}
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	in.Email = users.NormalizeEmail(in.Email)
	v := in.validate(s.codeLen)
	if in.Password != "" {
		if err := s.policyCheck(v, "password", in.Password); err != nil {
			return err
		}
	}
	if v.HasErrors() {
		return v
	}

	user, err := s.users.FindByEmail(ctx, in.Email)
	if errors.Is(err, users.ErrUserNotFound) {
		return ErrInvalidOrExpired
	}
	if err != nil {
		return s.internal("failed to load user", err)
	}

	record, err := s.resolveResetRecord(ctx, user.Email, in.Code, in.Token)
	if err != nil {
		return err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return s.internal("failed to hash password", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.records.WithTx(tx).MarkUsed(ctx, record)
		if err != nil {
			return s.internal("failed to consume reset code", err)
		}
		if !won {
			return ErrInvalidOrExpired
		}
		if err := s.users.WithTx(tx).UpdatePassword(ctx, user, hash); err != nil {
			return s.internal("failed to update password", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.RecordConsumed(string(verification.PurposePasswordReset))
	if s.logger != nil {
		s.logger.Info("password reset completed", zap.Uint("user_id", user.ID))
	}
	s.notify(ctx, mailqueue.KindPasswordChanged, user, nil)
	return nil
}

func (s *Service) resolveResetRecord(ctx context.Context, email, code, token string) (*verification.Record, error) {
	var (
		record *verification.Record
		err    error
	)
	if code != "" {
		record, err = s.records.FindByEmailAndCode(ctx, email, code, verification.PurposePasswordReset)
	} else {
		record, err = s.records.FindByToken(ctx, token, verification.PurposePasswordReset)
	}
	if errors.Is(err, verification.ErrRecordNotFound) {
		return nil, ErrInvalidOrExpired
	}
	if err != nil {
		return nil, s.internal("failed to look up reset code", err)
	}
	if record.Email != email || !s.records.Consumable(record, verification.PurposePasswordReset) {
		return nil, ErrInvalidOrExpired
	}
	return record, nil
}

func (s *Service) ChangePassword(ctx context.Context, userID uint, in ChangePasswordInput) error {
	if v := in.validate(); v.HasErrors() {
		return v
	}

	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, users.ErrUserNotFound) {
		return ErrIdentityNotFound
	}
	if err != nil {
		return s.internal("failed to load user", err)
	}

	if err := s.passwords.Verify(user.Password, in.CurrentPassword); err != nil {
		return ErrInvalidCredentials
	}
	if err := s.passwords.Verify(user.Password, in.NewPassword); err == nil {
		return ErrNoChange
	}

	v := newValidationError()
	if err := s.policyCheck(v, "new_password", in.NewPassword); err != nil {
		return err
	}
	if v.HasErrors() {
		return v
	}

	hash, err := s.passwords.Hash(in.NewPassword)
	if err != nil {
		return s.internal("failed to hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, user, hash); err != nil {
		return s.internal("failed to update password", err)
	}

	if s.logger != nil {
		s.logger.Info("password changed", zap.Uint("user_id", user.ID))
	}
	s.notify(ctx, mailqueue.KindPasswordChanged, user, nil)
	return nil
}

func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := users.NormalizeEmail(in.Email)
	v := newValidationError()
	validateEmail(v, "email", email)
	if in.Password == "" {
		v.Add("password", "password is required")
	}
	if v.HasErrors() {
		return nil, v
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, users.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, s.internal("failed to load user", err)
	}
	if err := s.passwords.Verify(user.Password, in.Password); err != nil {
		if s.logger != nil {
			s.logger.Info("login failed: password mismatch", zap.Uint("user_id", user.ID))
		}
		return nil, ErrInvalidCredentials
	}
	if !user.IsVerified() {
		return nil, ErrEmailNotVerified
	}
	if !user.IsActive() {
		return nil, ErrAccountInactive
	}

	session, err := s.sessions.Issue(user.ID, string(user.Role), in.Remember)
	if err != nil {
		return nil, s.internal("failed to issue session token", err)
	}

	if s.logger != nil {
		s.logger.Info("user logged in", zap.Uint("user_id", user.ID), zap.Bool("remember", in.Remember))
	}
	return &LoginResult{User: user, Session: session}, nil
}

func (s *Service) Me(ctx context.Context, userID uint) (*users.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, users.ErrUserNotFound) {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, s.internal("failed to load user", err)
	}
	return user, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Invalidate(ctx, token); err != nil {
		if isTokenError(err) {
			return ErrInvalidCredentials
		}
		return s.internal("failed to invalidate session token", err)
	}
	return nil
}

func (s *Service) Refresh(ctx context.Context, token string) (*jwt.SessionToken, error) {
	claims, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if errors.Is(err, users.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, s.internal("failed to load user", err)
	}
	if !user.IsActive() {
		return nil, ErrAccountInactive
	}

	// role comes from the database so a demotion takes effect on the next refresh
	session, err := s.sessions.Refresh(ctx, token, string(user.Role))
	if err != nil {
		if isTokenError(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, s.internal("failed to refresh session token", err)
	}
	return session, nil
}

func (s *Service) sendInline(ctx context.Context, kind mailqueue.Kind, user *users.User, record *verification.Record) error {
	var err error
	switch kind {
	case mailqueue.KindConfirmation:
		err = s.mailer.SendConfirmation(ctx, user, record)
	case mailqueue.KindResend:
		err = s.mailer.SendResend(ctx, user, record)
	case mailqueue.KindPasswordReset:
		err = s.mailer.SendPasswordReset(ctx, user, record)
	case mailqueue.KindPasswordChanged:
		err = s.mailer.SendPasswordChangedNotice(ctx, user)
	default:
		err = mailqueue.ErrUnknownKind
	}
	s.metrics.RecordMail(string(kind), err)
	return err
}

// enqueue hands a committed message to the queue. A full or closed queue
// falls back to a direct send.
func (s *Service) enqueue(ctx context.Context, kind mailqueue.Kind, user *users.User, record *verification.Record) {
	var recordID uint
	if record != nil {
		recordID = record.ID
	}
	err := s.queue.Enqueue(ctx, mailqueue.NewJob(kind, user.ID, recordID))
	if err == nil {
		return
	}

	if s.logger != nil {
		s.logger.Warn("mail enqueue failed, sending inline", zap.Error(err), zap.String("kind", string(kind)))
	}
	if err := s.sendInline(ctx, kind, user, record); err != nil && s.logger != nil {
		s.logger.Error("inline mail fallback failed", zap.Error(err), zap.String("kind", string(kind)), zap.Uint("user_id", user.ID))
	}
}

// notify delivers best-effort messages whose failure must not fail the flow.
func (s *Service) notify(ctx context.Context, kind mailqueue.Kind, user *users.User, record *verification.Record) {
	if s.queue != nil {
		s.enqueue(ctx, kind, user, record)
		return
	}
	if err := s.sendInline(ctx, kind, user, record); err != nil && s.logger != nil {
		s.logger.Warn("notification email failed", zap.Error(err), zap.String("kind", string(kind)), zap.Uint("user_id", user.ID))
	}
}

// policyCheck records a password policy failure on v. Only unexpected errors are returned.
func (s *Service) policyCheck(v *ValidationError, field, candidate string) error {
	err := s.passwords.Validate(candidate)
	if err == nil {
		return nil
	}
	var policy *password.PolicyError
	if errors.As(err, &policy) {
		v.Add(field, policy.Message)
		return nil
	}
	return s.internal("failed to validate password", err)
}

func (s *Service) issueFailure(err error) error {
	if errors.Is(err, verification.ErrGeneration) {
		return err
	}
	return s.internal("failed to issue verification code", err)
}

func (s *Service) internal(msg string, err error) error {
	if s.logger != nil {
		s.logger.Error(msg, zap.Error(err))
	}
	return internalError(err)
}

func isTokenError(err error) bool {
	return errors.Is(err, jwt.ErrInvalidToken) ||
		errors.Is(err, jwt.ErrExpiredToken) ||
		errors.Is(err, jwt.ErrMalformedToken) ||
		errors.Is(err, jwt.ErrInvalidSignature) ||
		errors.Is(err, jwt.ErrTokenRevoked)
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
