// Package notifications delivers owner notifications produced by billing
// reconciliation. The webhook path only enqueues in memory; a small worker
// pool publishes to SQS, where the notify worker picks messages up for email.
package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"billingsync/internal/types"
)

const (
	defaultQueueSize   = 256
	defaultWorkers     = 2
	defaultSendTimeout = 5 * time.Second
)

// Publisher hands a notification to the downstream transport.
type Publisher interface {
	Publish(ctx context.Context, n types.Notification) error
}

// DispatcherConfig sizes the in-memory queue and worker pool.
type DispatcherConfig struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

type job struct {
	note      types.Notification
	requestID string
}

// Dispatcher is a bounded, fire-and-forget Notifier. Notify never blocks and
// never returns an error; when the queue is full the notification is dropped
// and logged.
type Dispatcher struct {
	publisher Publisher
	queue     chan job
	workers   int
	timeout   time.Duration
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(publisher Publisher, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	return &Dispatcher{
		publisher: publisher,
		queue:     make(chan job, cfg.QueueSize),
		workers:   cfg.Workers,
		timeout:   cfg.SendTimeout,
		logger:    logger,
	}
}

// Notify enqueues n for asynchronous delivery.
func (d *Dispatcher) Notify(ctx context.Context, n types.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.WarnContext(ctx, "notification dropped: dispatcher closed",
			"kind", string(n.Kind),
			"account_id", n.AccountID,
			"event_id", n.EventID,
		)
		return
	}

	select {
	case d.queue <- job{note: n, requestID: types.GetRequestID(ctx)}:
	default:
		d.logger.ErrorContext(ctx, "notification dropped: queue full",
			"kind", string(n.Kind),
			"account_id", n.AccountID,
			"event_id", n.EventID,
			"queue_size", cap(d.queue),
		)
	}
}

// Run starts the worker pool and blocks until Close has been called and the
// queue is drained, or until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			d.work(gctx)
			return nil
		})
	}
	return g.Wait()
}

// Close stops accepting notifications. Queued items are still delivered by
// running workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-d.queue:
			if !ok {
				return
			}
			d.send(j)
		}
	}
}

func (d *Dispatcher) send(j job) {
	ctx := types.WithRequestID(context.Background(), j.requestID)
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.publisher.Publish(ctx, j.note); err != nil {
		d.logger.ErrorContext(ctx, "failed to deliver billing notification",
			"error", err.Error(),
			"kind", string(j.note.Kind),
			"account_id", j.note.AccountID,
			"event_id", j.note.EventID,
		)
	}
}
