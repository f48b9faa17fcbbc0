package mailer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/immersup/immersup-api/pkg/config"
)

// Queue delivers messages asynchronously so that callers never block on
// the outbound mail path. Sends are best-effort with bounded retries.
type Queue struct {
	sender Sender

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	messages chan queuedMessage
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
}

type queuedMessage struct {
	msg     Message
	attempt int
}

// NewQueue builds a delivery queue over the given sender.
func NewQueue(sender Sender, cfg config.MailConfig, logger *zap.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 32
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Queue{
		sender:     sender,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
		messages:   make(chan queuedMessage, cfg.QueueSize),
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Sugar().Infow("mail queue started", "workers", q.workers)
}

// Stop cancels workers and waits for them to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Sugar().Infow("mail queue stopped")
}

// Enqueue pushes a message for asynchronous delivery. It never blocks a
// committed domain transaction: when the queue is saturated the message
// is dropped and logged.
func (q *Queue) Enqueue(msg Message) error {
	q.mu.Lock()
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("mail queue not started")
	}

	select {
	case q.messages <- queuedMessage{msg: msg}:
		return nil
	default:
		q.logger.Sugar().Errorw("mail queue saturated, message dropped", "subject", msg.Subject)
		return fmt.Errorf("mail queue saturated")
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case qm := <-q.messages:
			if err := q.sender.Send(q.ctx, qm.msg); err != nil {
				q.handleFailure(qm, err)
			}
		}
	}
}

func (q *Queue) handleFailure(qm queuedMessage, err error) {
	qm.attempt++
	if qm.attempt > q.maxRetries {
		q.logger.Sugar().Errorw("mail delivery abandoned", "subject", qm.msg.Subject, "error", err)
		return
	}
	q.logger.Sugar().Warnw("mail delivery failed, retrying",
		"subject", qm.msg.Subject, "attempt", qm.attempt, "error", err)

	go func(m queuedMessage) {
		timer := time.NewTimer(q.retryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
		case <-timer.C:
			select {
			case q.messages <- m:
			default:
				q.logger.Sugar().Errorw("mail queue saturated on retry", "subject", m.msg.Subject)
			}
		}
	}(qm)
}
