package mailqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/services/logging"
	"go.uber.org/zap"
)

// NATSQueue publishes jobs to a JetStream subject and consumes them through a
// durable consumer. Redelivery is left to JetStream, bounded by MaxDeliver.
type NATSQueue struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	cfg     config.NATSConfig
	policy  RetryPolicy
	handler Handler
	logger  *logging.Service

	mu  sync.Mutex
	sub *nats.Subscription
}

func NewNATSQueue(natsCfg config.NATSConfig, queueCfg config.MailQueueConfig, handler Handler, logger *logging.Service, opts ...nats.Option) (*NATSQueue, error) {
	nc, err := nats.Connect(natsCfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open jetstream context: %w", err)
	}

	q := &NATSQueue{
		conn:    nc,
		js:      js,
		cfg:     natsCfg,
		policy:  PolicyFromConfig(queueCfg),
		handler: handler,
		logger:  logger,
	}
	if err := q.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return q, nil
}

func (q *NATSQueue) ensureStream() error {
	_, err := q.js.StreamInfo(q.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", q.cfg.Stream, err)
	}

	_, err = q.js.AddStream(&nats.StreamConfig{
		Name:      q.cfg.Stream,
		Subjects:  []string{q.cfg.Subject},
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", q.cfg.Stream, err)
	}
	if q.logger != nil {
		q.logger.Info("created mail stream", zap.String("stream", q.cfg.Stream), zap.String("subject", q.cfg.Subject))
	}
	return nil
}

func (q *NATSQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if _, err := q.js.Publish(q.cfg.Subject, data, nats.Context(ctx), nats.MsgId(job.ID)); err != nil {
		return fmt.Errorf("failed to publish mail job: %w", err)
	}
	return nil
}

func (q *NATSQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sub != nil {
		return nil
	}

	sub, err := q.js.Subscribe(q.cfg.Subject, q.onMessage,
		nats.Durable(q.cfg.Durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(q.policy.AttemptTimeout),
		nats.MaxDeliver(q.policy.MaxAttempts),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", q.cfg.Subject, err)
	}
	q.sub = sub

	if q.logger != nil {
		q.logger.Info("mail queue consumer started", zap.String("subject", q.cfg.Subject), zap.String("durable", q.cfg.Durable))
	}
	return nil
}

func (q *NATSQueue) onMessage(msg *nats.Msg) {
	attempt := 1
	if meta, err := msg.Metadata(); err == nil {
		attempt = int(meta.NumDelivered)
	}

	if err := q.process(msg.Data, attempt); err != nil {
		if q.policy.Backoff > 0 {
			_ = msg.NakWithDelay(q.policy.Backoff)
		} else {
			_ = msg.Nak()
		}
		return
	}
	_ = msg.Ack()
}

// process returns an error only when the message should be redelivered.
func (q *NATSQueue) process(data []byte, attempt int) error {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		if q.logger != nil {
			q.logger.Error("discarding undecodable mail job", zap.Error(err))
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.policy.AttemptTimeout)
	defer cancel()

	err := q.handler(ctx, job)
	if err == nil {
		return nil
	}

	if attempt >= q.policy.MaxAttempts {
		if q.logger != nil {
			q.logger.Error("mail job abandoned",
				zap.String("job_id", job.ID),
				zap.String("kind", string(job.Kind)),
				zap.Int("attempts", attempt),
				zap.Error(err))
		}
		return nil
	}

	if q.logger != nil {
		q.logger.Warn("mail job attempt failed",
			zap.String("job_id", job.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return err
}

func (q *NATSQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	sub := q.sub
	q.sub = nil
	q.mu.Unlock()

	if sub != nil {
		_ = sub.Drain()
	}
	if err := q.conn.Drain(); err != nil {
		q.conn.Close()
	}
	return nil
}
