package mailqueue

import (
	"context"
	"sync"
	"time"

	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/metrics"
	"github.com/tech-arch1tect/rentid/services/logging"
	"go.uber.org/zap"
)

type RetryPolicy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	Backoff        time.Duration
}

func PolicyFromConfig(cfg config.MailQueueConfig) RetryPolicy {
	policy := RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		AttemptTimeout: cfg.AttemptTimeout,
		Backoff:        cfg.Backoff,
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 3
	}
	if policy.AttemptTimeout <= 0 {
		policy.AttemptTimeout = 60 * time.Second
	}
	return policy
}

// MemoryQueue runs jobs on in-process workers. Jobs still buffered at Stop
// are drained before the workers exit.
type MemoryQueue struct {
	jobs    chan Job
	handler Handler
	policy  RetryPolicy
	workers int
	logger  *logging.Service
	metrics *metrics.Metrics

	mu      sync.RWMutex
	closed  bool
	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
}

func NewMemoryQueue(cfg config.MailQueueConfig, handler Handler, logger *logging.Service, m *metrics.Metrics) *MemoryQueue {
	size := cfg.BufferSize
	if size < 1 {
		size = 256
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &MemoryQueue{
		jobs:    make(chan Job, size),
		handler: handler,
		policy:  PolicyFromConfig(cfg),
		workers: workers,
		logger:  logger,
		metrics: m,
		stop:    make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		q.metrics.SetQueueDepth(len(q.jobs))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	if q.logger != nil {
		q.logger.Info("mail queue workers started", zap.Int("workers", q.workers))
	}
}

func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	close(q.stop)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) work() {
	defer q.wg.Done()
	for job := range q.jobs {
		q.metrics.SetQueueDepth(len(q.jobs))
		Run(context.Background(), q.handler, job, q.policy, q.stop, q.logger)
	}
}

// Run tries job up to policy.MaxAttempts times, each under its own timeout.
// A closed stop channel cancels only the wait between attempts.
func Run(ctx context.Context, handler Handler, job Job, policy RetryPolicy, stop <-chan struct{}, logger *logging.Service) error {
	var err error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, policy.AttemptTimeout)
		err = handler(attemptCtx, job)
		cancel()
		if err == nil {
			return nil
		}

		if logger != nil {
			logger.Warn("mail job attempt failed",
				zap.String("job_id", job.ID),
				zap.String("kind", string(job.Kind)),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", policy.MaxAttempts),
				zap.Error(err))
		}
		if attempt == policy.MaxAttempts {
			break
		}

		if policy.Backoff > 0 {
			timer := time.NewTimer(policy.Backoff * time.Duration(attempt))
			select {
			case <-timer.C:
			case <-stop:
				timer.Stop()
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}

	if logger != nil {
		logger.Error("mail job abandoned",
			zap.String("job_id", job.ID),
			zap.String("kind", string(job.Kind)),
			zap.Uint("user_id", job.UserID),
			zap.Error(err))
	}
	return err
}
