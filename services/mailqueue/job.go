package mailqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tech-arch1tect/rentid/metrics"
	"github.com/tech-arch1tect/rentid/services/logging"
	"github.com/tech-arch1tect/rentid/services/users"
	"github.com/tech-arch1tect/rentid/services/verification"
	"go.uber.org/zap"
)

var (
	ErrQueueFull   = errors.New("mail queue is full")
	ErrQueueClosed = errors.New("mail queue is closed")
	ErrUnknownKind = errors.New("unknown mail job kind")
)

type Kind string

const (
	KindConfirmation    Kind = "confirmation"
	KindResend          Kind = "resend"
	KindPasswordReset   Kind = "password_reset"
	KindPasswordChanged Kind = "password_changed"
)

// Job names rows by ID only. The worker reloads them, so a message never
// carries a code or token.
type Job struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	UserID   uint   `json:"user_id"`
	RecordID uint   `json:"record_id,omitempty"`
}

func NewJob(kind Kind, userID, recordID uint) Job {
	return Job{ID: uuid.NewString(), Kind: kind, UserID: userID, RecordID: recordID}
}

func (k Kind) needsRecord() bool {
	return k != KindPasswordChanged
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

type Handler func(ctx context.Context, job Job) error

type Mailer interface {
	SendConfirmation(ctx context.Context, user *users.User, record *verification.Record) error
	SendResend(ctx context.Context, user *users.User, record *verification.Record) error
	SendPasswordReset(ctx context.Context, user *users.User, record *verification.Record) error
	SendPasswordChangedNotice(ctx context.Context, user *users.User) error
}

// Dispatcher reloads the rows a job points at and hands them to the mailer.
type Dispatcher struct {
	users   *users.Repository
	records *verification.Store
	mailer  Mailer
	logger  *logging.Service
	metrics *metrics.Metrics
}

func NewDispatcher(repo *users.Repository, records *verification.Store, mailer Mailer, logger *logging.Service, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{users: repo, records: records, mailer: mailer, logger: logger, metrics: m}
}

// Handle returns nil for jobs that can never succeed so they are not retried.
func (d *Dispatcher) Handle(ctx context.Context, job Job) error {
	user, err := d.users.FindByID(ctx, job.UserID)
	if errors.Is(err, users.ErrUserNotFound) {
		d.drop(job, "user no longer exists")
		return nil
	}
	if err != nil {
		return err
	}

	var record *verification.Record
	if job.Kind.needsRecord() {
		record, err = d.records.FindByID(ctx, job.RecordID)
		if errors.Is(err, verification.ErrRecordNotFound) {
			d.drop(job, "verification record no longer exists")
			return nil
		}
		if err != nil {
			return err
		}
		if !d.records.Consumable(record, record.Purpose) {
			d.drop(job, "verification record already used or expired")
			return nil
		}
	}

	switch job.Kind {
	case KindConfirmation:
		err = d.mailer.SendConfirmation(ctx, user, record)
	case KindResend:
		err = d.mailer.SendResend(ctx, user, record)
	case KindPasswordReset:
		err = d.mailer.SendPasswordReset(ctx, user, record)
	case KindPasswordChanged:
		err = d.mailer.SendPasswordChangedNotice(ctx, user)
	default:
		d.drop(job, ErrUnknownKind.Error())
		return nil
	}
	d.metrics.RecordMail(string(job.Kind), err)
	if err != nil {
		return fmt.Errorf("mail job %s failed: %w", job.ID, err)
	}
	return nil
}

func (d *Dispatcher) drop(job Job, reason string) {
	if d.logger != nil {
		d.logger.Warn("dropping mail job",
			zap.String("job_id", job.ID),
			zap.String("kind", string(job.Kind)),
			zap.Uint("user_id", job.UserID),
			zap.Uint("record_id", job.RecordID),
			zap.String("reason", reason))
	}
}
