package auth

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/tech-arch1tect/rentid/services/jwt"
	"github.com/tech-arch1tect/rentid/services/mailqueue"
	"github.com/tech-arch1tect/rentid/services/users"
	"github.com/tech-arch1tect/rentid/services/verification"
)

type mockMailer struct {
	mock.Mock
	mu   sync.Mutex
	sent []*verification.Record
}

func (m *mockMailer) capture(record *verification.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *record
	m.sent = append(m.sent, &copied)
}

func (m *mockMailer) last() *verification.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockMailer) SendConfirmation(ctx context.Context, user *users.User, record *verification.Record) error {
	m.capture(record)
	return m.Called(user.Email).Error(0)
}

func (m *mockMailer) SendResend(ctx context.Context, user *users.User, record *verification.Record) error {
	m.capture(record)
	return m.Called(user.Email).Error(0)
}

func (m *mockMailer) SendPasswordReset(ctx context.Context, user *users.User, record *verification.Record) error {
	m.capture(record)
	return m.Called(user.Email).Error(0)
}

func (m *mockMailer) SendPasswordChangedNotice(ctx context.Context, user *users.User) error {
	return m.Called(user.Email).Error(0)
}

// allowAll accepts every message without asserting on it.
func (m *mockMailer) allowAll() {
	for _, method := range []string{"SendConfirmation", "SendResend", "SendPasswordReset", "SendPasswordChangedNotice"} {
		m.On(method, mock.Anything).Return(nil).Maybe()
	}
}

type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) Issue(userID uint, role string, remember bool) (*jwt.SessionToken, error) {
	args := m.Called(userID, role, remember)
	token, _ := args.Get(0).(*jwt.SessionToken)
	return token, args.Error(1)
}

func (m *mockSessions) Validate(ctx context.Context, token string) (*jwt.Claims, error) {
	args := m.Called(token)
	claims, _ := args.Get(0).(*jwt.Claims)
	return claims, args.Error(1)
}

func (m *mockSessions) Invalidate(ctx context.Context, token string) error {
	return m.Called(token).Error(0)
}

func (m *mockSessions) Refresh(ctx context.Context, token, role string) (*jwt.SessionToken, error) {
	args := m.Called(token, role)
	session, _ := args.Get(0).(*jwt.SessionToken)
	return session, args.Error(1)
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []mailqueue.Job
	err  error
}

func (q *recordingQueue) Enqueue(ctx context.Context, job mailqueue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) enqueued() []mailqueue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]mailqueue.Job(nil), q.jobs...)
}
