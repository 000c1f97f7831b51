package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/metrics"
	"github.com/tech-arch1tect/rentid/services/logging"
	"github.com/tech-arch1tect/rentid/services/revocation"
	"github.com/tech-arch1tect/rentid/services/users"
	"github.com/tech-arch1tect/rentid/services/verification"
	"github.com/tech-arch1tect/rentid/testutils"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"gorm.io/gorm"
)

type fixture struct {
	svc     *Service
	db      *gorm.DB
	users   *users.Repository
	records *verification.Store
	tokens  *revocation.DatabaseStore
	clock   *testutils.FakeClock
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutils.SetupTestDB(t, &users.User{}, &verification.Record{}, &revocation.RevokedToken{})
	cfg := testutils.GetTestConfig()
	clock := testutils.NewFakeClock()

	repo := users.NewRepository(db, nil)
	records := verification.NewStore(cfg, db, verification.NewCryptoGenerator(6, 32), nil)
	records.SetClock(clock.Now)
	tokens := revocation.NewDatabaseStore(db)
	tokens.SetClock(clock.Now)

	svc := NewService(db, repo, records, cfg.Verification.PendingPurgeAfter, nil)
	svc.SetRevocation(revocation.NewService(tokens, nil))
	svc.SetClock(clock.Now)

	return &fixture{svc: svc, db: db, users: repo, records: records, tokens: tokens, clock: clock}
}

func (f *fixture) createUser(t *testing.T, email, phone string, verified bool, createdAt time.Time) *users.User {
	t.Helper()
	user := &users.User{
		Name:               "Test Tenant",
		Email:              email,
		Phone:              phone,
		DocumentID:         "DOC-" + phone,
		Address:            "Calle 1 #2-3",
		Password:           "hash",
		Role:               users.RoleUser,
		Status:             users.StatusInactive,
		VerificationStatus: users.VerificationPending,
	}
	if verified {
		user.Status = users.StatusActive
		user.VerificationStatus = users.VerificationVerified
	}
	require.NoError(t, f.users.Create(context.Background(), user))
	require.NoError(t, f.db.Model(&users.User{}).Where("id = ?", user.ID).Update("created_at", createdAt).Error)
	return user
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func TestService_Cleanup(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := metrics.New()
	f.svc.SetMetrics(m)

	_, err := f.records.Issue(ctx, "stale@example.com", verification.PurposeEmailVerification, 0)
	require.NoError(t, err)
	_, err = f.records.Issue(ctx, "reset@example.com", verification.PurposePasswordReset, time.Minute)
	require.NoError(t, err)
	require.NoError(t, f.tokens.Revoke(ctx, "jti-old", 1, f.clock.Now().Add(time.Hour)))

	f.clock.Advance(2 * time.Minute)
	_, err = f.records.Issue(ctx, "live@example.com", verification.PurposeEmailVerification, 0)
	require.NoError(t, err)
	require.NoError(t, f.tokens.Revoke(ctx, "jti-live", 1, f.clock.Now().Add(24*time.Hour)))

	f.clock.Advance(2 * time.Hour)
	report, err := f.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.VerificationRecords)
	assert.Equal(t, int64(1), report.RevokedTokens)
	assert.Zero(t, f.count(t, &verification.Record{}))
	assert.Equal(t, int64(1), f.count(t, &revocation.RevokedToken{}))
	assert.Equal(t, 4.0, removedRows(t, m, TaskCleanup))
}

func removedRows(t *testing.T, m *metrics.Metrics, task string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "rentid_maintenance_rows_removed_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "task" && label.GetValue() == task {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestService_CleanupKeepsUnexpiredRecords(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.records.Issue(ctx, "live@example.com", verification.PurposeEmailVerification, 0)
	require.NoError(t, err)
	f.clock.Advance(9 * time.Minute)

	report, err := f.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.VerificationRecords)
	assert.Equal(t, int64(1), f.count(t, &verification.Record{}))
}

func TestService_CleanupWithoutRevocation(t *testing.T) {
	f := setup(t)
	f.svc.SetRevocation(nil)

	report, err := f.svc.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.RevokedTokens)
}

func TestService_PurgePending(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := f.clock.Now()

	f.createUser(t, "old@example.com", "3000000001", false, now.Add(-8*24*time.Hour))
	f.createUser(t, "verified@example.com", "3000000002", true, now.Add(-30*24*time.Hour))
	f.createUser(t, "fresh@example.com", "3000000003", false, now.Add(-6*24*time.Hour))

	for _, email := range []string{"old@example.com", "fresh@example.com"} {
		_, err := f.records.Issue(ctx, email, verification.PurposeEmailVerification, 0)
		require.NoError(t, err)
	}

	report, err := f.svc.PurgePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Users)
	assert.Equal(t, int64(1), report.VerificationRecords)
	assert.True(t, report.CreatedBefore.Equal(now.Add(-7*24*time.Hour)))

	_, err = f.users.FindByEmail(ctx, "old@example.com")
	assert.ErrorIs(t, err, users.ErrUserNotFound)
	_, err = f.users.FindByEmail(ctx, "verified@example.com")
	assert.NoError(t, err)
	_, err = f.users.FindByEmail(ctx, "fresh@example.com")
	assert.NoError(t, err)

	_, err = f.records.Latest(ctx, "fresh@example.com", verification.PurposeEmailVerification)
	assert.NoError(t, err)
	_, err = f.records.Latest(ctx, "old@example.com", verification.PurposeEmailVerification)
	assert.ErrorIs(t, err, verification.ErrRecordNotFound)

	report, err = f.svc.PurgePending(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Users)
}

func TestService_PurgePendingFreesIdentityForRegistration(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.createUser(t, "again@example.com", "3000000009", false, f.clock.Now().Add(-10*24*time.Hour))
	_, err := f.svc.PurgePending(ctx)
	require.NoError(t, err)

	conflicts, err := f.users.Conflicts(ctx, "again@example.com", "3000000009", "DOC-3000000009")
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestService_RunTask(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	assert.NoError(t, f.svc.RunTask(ctx, TaskCleanup))
	assert.NoError(t, f.svc.RunTask(ctx, TaskPurge))
	assert.EqualError(t, f.svc.RunTask(ctx, "vacuum"), "unknown maintenance task: vacuum")
}

func TestService_RunStopsOnCancel(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.svc.Run(ctx, TaskCleanup, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("maintenance worker did not stop")
	}
}

func TestStartWorkers(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		f := setup(t)
		cfg := testutils.GetTestConfig()
		cfg.Maintenance = config.MaintenanceConfig{
			Enabled:         enabled,
			CleanupInterval: time.Hour,
			PurgeInterval:   time.Hour,
		}

		app := fxtest.New(t,
			fx.Supply(cfg, f.svc),
			fx.Provide(func() *logging.Service { return nil }),
			fx.Invoke(StartWorkers),
		)
		app.RequireStart()
		app.RequireStop()
	}
}
