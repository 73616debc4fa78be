package services

import (
	"context"
	"sync"
	"time"

	"auction-core/internal/clock"
	"auction-core/internal/domain"
	"auction-core/pkg/logger"

	"github.com/google/uuid"
)

type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	Timeout     time.Duration
	Backoff     time.Duration
}

// NotificationDispatcher is the domain.Notifier used by the services. Notify
// only enqueues; a worker pool delivers each notification to every sink with
// bounded retries. Delivery is best effort: a full queue drops the message.
type NotificationDispatcher struct {
	sinks []domain.NotificationSink
	cfg   DispatcherConfig
	clock clock.Clock
	log   logger.Logger

	queue  chan domain.Notification
	mu     sync.RWMutex
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNotificationDispatcher(cfg DispatcherConfig, clk clock.Clock, log logger.Logger, sinks ...domain.NotificationSink) *NotificationDispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &NotificationDispatcher{
		sinks: sinks,
		cfg:   cfg,
		clock: clk,
		log:   log,
		queue: make(chan domain.Notification, cfg.QueueSize),
	}
}

func (d *NotificationDispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)

	d.log.Info("Starting notification dispatcher", "workers", d.cfg.Workers, "sinks", len(d.sinks))
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

func (d *NotificationDispatcher) Notify(ctx context.Context, userID, subject, body string) {
	if userID == "" {
		return
	}

	n := domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Subject:   subject,
		Body:      body,
		CreatedAt: d.clock.Now(),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warn("Dropping notification after shutdown", "user_id", userID, "subject", subject)
		return
	}

	select {
	case d.queue <- n:
	default:
		d.log.Warn("Notification queue full, dropping", "user_id", userID, "subject", subject)
	}
}

// Stop stops accepting notifications and waits for queued ones to drain.
func (d *NotificationDispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	if d.cancel != nil {
		d.cancel()
	}
	d.log.Info("Notification dispatcher stopped")
}

func (d *NotificationDispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for n := range d.queue {
		for _, sink := range d.sinks {
			d.deliver(ctx, sink, n)
		}
	}
}

func (d *NotificationDispatcher) deliver(ctx context.Context, sink domain.NotificationSink, n domain.Notification) {
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		err := sink.Deliver(attemptCtx, n)
		cancel()
		if err == nil {
			return
		}

		d.log.Warn("Notification delivery failed", "notification_id", n.ID, "user_id", n.UserID,
			"attempt", attempt, "error", err)
		if attempt == d.cfg.MaxAttempts {
			break
		}

		select {
		case <-time.After(time.Duration(attempt) * d.cfg.Backoff):
		case <-ctx.Done():
			return
		}
	}
	d.log.Error("Giving up on notification", "notification_id", n.ID, "user_id", n.UserID)
}

// LogSink records notifications in the service log.
type LogSink struct {
	log logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Deliver(ctx context.Context, n domain.Notification) error {
	s.log.Info("Notification", "notification_id", n.ID, "user_id", n.UserID, "subject", n.Subject, "body", n.Body)
	return nil
}
