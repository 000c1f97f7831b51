package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/rentid/services/jwt"
	"github.com/tech-arch1tect/rentid/services/password"
	"github.com/tech-arch1tect/rentid/services/revocation"
	"github.com/tech-arch1tect/rentid/services/users"
	"github.com/tech-arch1tect/rentid/services/verification"
	"github.com/tech-arch1tect/rentid/testutils"
	"gorm.io/gorm"
)

type fixture struct {
	service   *Service
	db        *gorm.DB
	users     *users.Repository
	store     *verification.Store
	passwords *password.Service
	sessions  *jwt.Service
	mailer    *mockMailer
	clock     *testutils.FakeClock
	phones    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithCodeLength(t, 6)
}

func newFixtureWithCodeLength(t *testing.T, codeLength int) *fixture {
	t.Helper()

	cfg := testutils.GetTestConfig()
	cfg.Verification.CodeLength = codeLength
	db := testutils.SetupTestDB(t, &users.User{}, &verification.Record{}, &revocation.RevokedToken{})
	clock := testutils.NewFakeClock()

	store := verification.NewStore(cfg, db, verification.NewCryptoGenerator(codeLength, 32), nil)
	store.SetClock(clock.Now)

	sessions := jwt.NewService(cfg, nil)
	sessions.SetRevocationService(revocation.NewService(revocation.NewDatabaseStore(db), nil))

	f := &fixture{
		db:        db,
		users:     users.NewRepository(db, nil),
		store:     store,
		passwords: password.NewService(cfg, nil),
		sessions:  sessions,
		mailer:    &mockMailer{},
		clock:     clock,
	}
	f.service = NewService(Dependencies{
		DB:        db,
		Users:     f.users,
		Records:   store,
		Gate:      verification.NewCooldownGate(cfg, store),
		Passwords: f.passwords,
		Mailer:    f.mailer,
		Sessions:  sessions,

		CodeLength: codeLength,
	}, nil)
	return f
}

func (f *fixture) registration(email string) RegisterInput {
	f.phones++
	return RegisterInput{
		Name:       "Ana Torres",
		Email:      email,
		Phone:      fmt.Sprintf("300555%04d", f.phones),
		Address:    "Calle 10 # 20-30",
		DocumentID: fmt.Sprintf("CC-%d", 1000+f.phones),
		Password:   testutils.TestPasswords.Valid,
	}
}

func (f *fixture) createUser(t *testing.T, email string, verified bool) *users.User {
	t.Helper()
	f.phones++
	user := &users.User{
		Name:               "Luis Gómez",
		Email:              email,
		Phone:              fmt.Sprintf("310777%04d", f.phones),
		DocumentID:         fmt.Sprintf("PP-%d", 5000+f.phones),
		Address:            "Carrera 7 # 45-12",
		Password:           f.passwords.MustHash(testutils.TestPasswords.Valid),
		Role:               users.RoleUser,
		Status:             users.StatusInactive,
		VerificationStatus: users.VerificationPending,
	}
	require.NoError(t, f.users.Create(context.Background(), user))
	if verified {
		require.NoError(t, f.users.MarkVerified(context.Background(), user, f.clock.Now()))
	}
	return user
}

func (f *fixture) recordCount(t *testing.T, email string, purpose verification.Purpose) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&verification.Record{}).
		Where("email = ? AND purpose = ?", email, purpose).
		Count(&count).Error)
	return count
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("SendConfirmation", "ana@example.com").Return(nil).Once()

	in := f.registration("  Ana@Example.com ")
	result, err := f.service.Register(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "ana@example.com", result.User.Email)
	assert.Equal(t, users.StatusInactive, result.User.Status)
	assert.Equal(t, users.VerificationPending, result.User.VerificationStatus)
	assert.Equal(t, users.RoleUser, result.User.Role)
	assert.NoError(t, f.passwords.Verify(result.User.Password, in.Password))

	require.NotNil(t, result.Record)
	assert.Equal(t, verification.PurposeEmailVerification, result.Record.Purpose)
	assert.Len(t, result.Record.Code, 6)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), result.Record.ExpiresAt)
	assert.Equal(t, result.Record.Token, f.mailer.last().Token)

	f.mailer.AssertExpectations(t)
}

func TestRegister_ConcurrentDuplicateNamesField(t *testing.T) {
	f := newFixture(t)
	f.mailer.allowAll()
	in := f.registration("racer@x.com")

	// another registration takes the phone right after the conflict check
	var raced bool
	require.NoError(t, f.db.Callback().Query().After("gorm:query").Register("test:take_phone", func(tx *gorm.DB) {
		if raced || !strings.Contains(tx.Statement.SQL.String(), "document_id") {
			return
		}
		raced = true
		rival := &users.User{
			Name:       "Rival Tenant",
			Email:      "rival@x.com",
			Phone:      in.Phone,
			DocumentID: "CC-RIVAL",
			Password:   "hash",
		}
		require.NoError(t, f.db.Session(&gorm.Session{NewDB: true}).Create(rival).Error)
	}))

	_, err := f.service.Register(context.Background(), in)
	require.True(t, raced)
	var invalid *ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, map[string]string{"phone": duplicateMessages["phone"]}, invalid.Fields)
	assert.Zero(t, f.recordCount(t, "racer@x.com", verification.PurposeEmailVerification))
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	f.mailer.allowAll()

	existing := f.registration("taken@example.com")
	_, err := f.service.Register(context.Background(), existing)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*RegisterInput)
		fields []string
	}{
		{"missing name", func(in *RegisterInput) { in.Name = "" }, []string{"name"}},
		{"short name", func(in *RegisterInput) { in.Name = "A" }, []string{"name"}},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }, []string{"email"}},
		{"display name email", func(in *RegisterInput) { in.Email = "Ana <ana@example.com>" }, []string{"email"}},
		{"short phone", func(in *RegisterInput) { in.Phone = "12345" }, []string{"phone"}},
		{"letters in phone", func(in *RegisterInput) { in.Phone = "30012345ab" }, []string{"phone"}},
		{"short address", func(in *RegisterInput) { in.Address = "Cl" }, []string{"address"}},
		{"missing document", func(in *RegisterInput) { in.DocumentID = "" }, []string{"document_id"}},
		{"short password", func(in *RegisterInput) { in.Password = testutils.TestPasswords.TooShort }, []string{"password"}},
		{"confirmation mismatch", func(in *RegisterInput) { in.PasswordConfirmation = "other" }, []string{"password_confirmation"}},
		{"duplicate email", func(in *RegisterInput) { in.Email = "TAKEN@example.com" }, []string{"email"}},
		{"duplicate phone and document", func(in *RegisterInput) {
			in.Phone = existing.Phone
			in.DocumentID = existing.DocumentID
		}, []string{"phone", "document_id"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.registration("fresh@example.com")
			tt.mutate(&in)

			_, err := f.service.Register(context.Background(), in)

			var validation *ValidationError
			require.ErrorAs(t, err, &validation)
			for _, field := range tt.fields {
				assert.Contains(t, validation.Fields, field)
			}
			assert.Len(t, validation.Fields, len(tt.fields))
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&users.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRegister_MailFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("SendConfirmation", "ana@example.com").Return(errors.New("smtp: connection refused")).Once()

	_, err := f.service.Register(context.Background(), f.registration("ana@example.com"))
	assert.ErrorIs(t, err, ErrMailDispatch)

	_, err = f.users.FindByEmail(context.Background(), "ana@example.com")
	assert.ErrorIs(t, err, users.ErrUserNotFound)
	assert.Zero(t, f.recordCount(t, "ana@example.com", verification.PurposeEmailVerification))

	f.mailer.On("SendConfirmation", "ana@example.com").Return(nil).Once()
	_, err = f.service.Register(context.Background(), f.registration("ana@example.com"))
	assert.NoError(t, err, "a rolled back registration leaves the address free")
}

func TestVerifyEmail_ConfiguredCodeLength(t *testing.T) {
	f := newFixtureWithCodeLength(t, 8)
	f.mailer.allowAll()

	_, err := f.service.Register(context.Background(), f.registration("eight@x.com"))
	require.NoError(t, err)
	record := f.mailer.last()
	require.Len(t, record.Code, 8)

	_, err = f.service.VerifyEmail(context.Background(), record.Code[:6], record.Token)
	var invalid *ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "code must be 8 digits", invalid.Fields["code"])

	result, err := f.service.VerifyEmail(context.Background(), record.Code, record.Token)
	require.NoError(t, err)
	assert.True(t, result.User.IsVerified())
}

func TestVerifyEmail_SingleUse(t *testing.T) {
	f := newFixture(t)
	f.mailer.allowAll()

	registered, err := f.service.Register(context.Background(), f.registration("a@x.com"))
	require.NoError(t, err)
	record := f.mailer.last()

	result, err := f.service.VerifyEmail(context.Background(), record.Code, record.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, result.User.ID)
	assert.True(t, result.User.IsVerified())
	assert.True(t, result.User.IsActive())
	require.NotNil(t, result.User.EmailVerifiedAt)
	assert.Equal(t, f.clock.Now(), result.User.EmailVerifiedAt.UTC())
	require.NotNil(t, result.Session)
	assert.Equal(t, jwt.TokenTypeBearer, result.Session.TokenType)

	stored, err := f.users.FindByID(context.Background(), registered.User.ID)
	require.NoError(t, err)
	assert.Equal(t, users.StatusActive, stored.Status)
	assert.Equal(t, users.VerificationVerified, stored.VerificationStatus)

	_, err = f.service.VerifyEmail(context.Background(), record.Code, record.Token)
	assert.ErrorIs(t, err, ErrInvalidOrExpired)
}

func TestVerifyEmail_Expiry(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{"just before expiry", 599 * time.Second, nil},
		{"at expiry", 600 * time.Second, ErrInvalidOrExpired},
		{"after expiry", 601 * time.Second, ErrInvalidOrExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.mailer.allowAll()

			_, err := f.service.Register(context.Background(), f.registration("a@x.com"))
			require.NoError(t, err)
			record := f.mailer.last()

			f.clock.Advance(tt.elapsed)
			_, err = f.service.VerifyEmail(context.Background(), record.Code, record.Token)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)

			stored, err := f.store.FindByToken(context.Background(), record.Token, verification.PurposeEmailVerification)
			require.NoError(t, err)
			assert.False(t, stored.Used, "an expired record is not consumed")
		})
	}
}

func TestVerifyEmail_Rejections(t *testing.T) {
	f := newFixture(t)
	f.mailer.allowAll()

	_, err := f.service.Register(context.Background(), f.registration("a@x.com"))
	require.NoError(t, err)
	record := f.mailer.last()

	t.Run("wrong code", func(t *testing.T) {
		code := "000000"
		if record.Code == code {
			code = "111111"
		}
		_, err := f.service.VerifyEmail(context.Background(), code, record.Token)
		assert.ErrorIs(t, err, ErrInvalidOrExpired)
	})

	t.Run("wrong token", func(t *testing.T) {
		_, err := f.service.VerifyEmail(context.Background(), record.Code, "unknown-token")
		assert.ErrorIs(t, err, ErrInvalidOrExpired)
	})

	t.Run("malformed input", func(t *testing.T) {
		_, err := f.service.VerifyEmail(context.Background(), "12ab", "")
		var validation *ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Contains(t, validation.Fields, "code")
		assert.Contains(t, validation.Fields, "token")
	})

	t.Run("reset code is not a confirmation code", func(t *testing.T) {
		user := f.createUser(t, "reset@x.com", true)
		reset, err := f.store.Issue(context.Background(), user.Email, verification.PurposePasswordReset, 0)
		require.NoError(t, err)

		_, err = f.service.VerifyEmail(context.Background(), reset.Code, reset.Token)
		assert.ErrorIs(t, err, ErrInvalidOrExpired)
	})
}

func TestVerifyEmail_ConcurrentConsumers(t *testing.T) {
	f := newFixture(t)
	f.mailer.allowAll()

	_, err := f.service.Register(context.Background(), f.registration("race@x.com"))
	require.NoError(t, err)
	record := f.mailer.last()

	const consumers = 12
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		rejected  atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.service.VerifyEmail(context.Background(), record.Code, record.Token)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrInvalidOrExpired):
				rejected.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, successes.Load())
	assert.EqualValues(t, consumers-1, rejected.Load())
}

func TestVerifyEmail_SessionFailureKeepsVerification(t *testing.T) {
	f := newFixture(t)
	f.mailer.allowAll()

	sessions := &mockSessions{}
	sessions.On("Issue", mock.Anything, "user", false).Return(nil, errors.New("signing key unavailable"))
	f.service.sessions = sessions

	_, err := f.service.Register(context.Background(), f.registration("a@x.com"))
	require.NoError(t, err)
	record := f.mailer.last()

	result, err := f.service.VerifyEmail(context.Background(), record.Code, record.Token)
	require.NoError(t, err)
	assert.Nil(t, result.Session)
	assert.True(t, result.User.IsVerified())
	sessions.AssertExpectations(t)
}

func TestCheckToken(t *testing.T) {
	f := newFixture(t)
	f.mailer.allowAll()

	_, err := f.service.Register(context.Background(), f.registration("a@x.com"))
	require.NoError(t, err)
	record := f.mailer.last()

	ok, err := f.service.CheckToken(context.Background(), record.Token)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.service.CheckToken(context.Background(), record.Token)
	require.NoError(t, err)
	assert.True(t, ok, "checking never consumes")

	ok, err = f.service.CheckToken(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.service.CheckToken(context.Background(), "")
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)

	f.clock.Advance(11 * time.Minute)
	ok, err = f.service.CheckToken(context.Background(), record.Token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckToken_UsedRecord(t *testing.T) {
	f := newFixture(t)
	f.mailer.allowAll()

	_, err := f.service.Register(context.Background(), f.registration("a@x.com"))
	require.NoError(t, err)
	record := f.mailer.last()

	_, err = f.service.VerifyEmail(context.Background(), record.Code, record.Token)
	require.NoError(t, err)

	ok, err := f.service.CheckToken(context.Background(), record.Token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScenarioA_RegisterVerifyReplay(t *testing.T) {
	f := newFixture(t)
	f.mailer.allowAll()

	_, err := f.service.Register(context.Background(), f.registration("a@x.com"))
	require.NoError(t, err)
	c1 := f.mailer.last()

	result, err := f.service.VerifyEmail(context.Background(), c1.Code, c1.Token)
	require.NoError(t, err)
	assert.Equal(t, users.StatusActive, result.User.Status)
	assert.Equal(t, users.VerificationVerified, result.User.VerificationStatus)

	_, err = f.service.VerifyEmail(context.Background(), c1.Code, c1.Token)
	assert.ErrorIs(t, err, ErrInvalidOrExpired)
}

func TestScenarioC_ExpiredAfterTTL(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "c@x.com", false)

	record, err := f.store.Issue(context.Background(), user.Email, verification.PurposeEmailVerification, 10*time.Minute)
	require.NoError(t, err)

	f.clock.Advance(601 * time.Second)
	_, err = f.service.VerifyEmail(context.Background(), record.Code, record.Token)
	assert.ErrorIs(t, err, ErrInvalidOrExpired)
}
