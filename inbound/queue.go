package inbound

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-fanout/core"
)

const LoggerName = "fanout.queue"

type QueueStats struct {
	Enqueued   int64
	Processed  int64
	Overflowed int64
	Dropped    int64
	InFlight   int64
}

// Queue hands notifications to a processor without blocking the producer.
// A fixed worker pool drains a bounded buffer; when the buffer is full the
// notification runs on its own goroutine instead of waiting. No ordering is
// kept between notifications.
type Queue struct {
	processor core.NotificationProcessor
	workers   int
	buffer    int
	logger    core.Logger
	observer  core.Observer

	items     chan core.Notification
	startOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	runCtx    context.Context
	cancel    context.CancelFunc

	enqueued   atomic.Int64
	processed  atomic.Int64
	overflowed atomic.Int64
	dropped    atomic.Int64
	inFlight   atomic.Int64
}

type QueueOption func(*Queue)

func WithWorkers(workers int) QueueOption {
	return func(q *Queue) {
		q.workers = workers
	}
}

func WithBuffer(buffer int) QueueOption {
	return func(q *Queue) {
		q.buffer = buffer
	}
}

func WithLogger(logger core.Logger) QueueOption {
	return func(q *Queue) {
		q.logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) QueueOption {
	return func(q *Queue) {
		q.observer.Metrics = recorder
	}
}

func NewQueue(processor core.NotificationProcessor, opts ...QueueOption) (*Queue, error) {
	if processor == nil {
		return nil, inboundBadInput("inbound: queue processor is required", nil)
	}
	q := &Queue{
		processor: processor,
		workers:   core.DefaultQueueWorkers,
		buffer:    core.DefaultQueueBuffer,
		observer:  core.NewObserver("fanout.queue", nil, nil),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(q)
	}
	if q.workers < 1 {
		return nil, inboundBadInput(
			fmt.Sprintf("inbound: queue workers must be positive, got %d", q.workers),
			map[string]any{"workers": q.workers},
		)
	}
	if q.buffer < 0 {
		return nil, inboundBadInput(
			fmt.Sprintf("inbound: queue buffer must not be negative, got %d", q.buffer),
			map[string]any{"buffer": q.buffer},
		)
	}
	q.logger = glog.Ensure(q.logger)
	q.observer.Logger = q.logger
	q.items = make(chan core.Notification, q.buffer)
	return q, nil
}

// NewQueueFromService sizes the queue from the service configuration.
func NewQueueFromService(svc *core.Service, processor core.NotificationProcessor) (*Queue, error) {
	if svc == nil {
		return nil, inboundBadInput("inbound: service is required", nil)
	}
	cfg := svc.Config().Queue
	return NewQueue(processor,
		WithWorkers(cfg.Workers),
		WithBuffer(cfg.Buffer),
		WithLogger(svc.Logger(LoggerName)),
		WithMetricsRecorder(svc.Dependencies().MetricsRecorder),
	)
}

// Start launches the worker pool. Processing runs under a context derived
// from ctx without its cancellation; Close ends it. Calling Start more than
// once is a no-op.
func (q *Queue) Start(ctx context.Context) error {
	if q == nil {
		return inboundInternal("inbound: queue is nil", nil)
	}
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return inboundError("inbound: queue is closed", goerrors.CategoryOperation, http.StatusConflict, core.FanoutErrorInternal, nil)
	}
	q.startOnce.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		q.runCtx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
		for range q.workers {
			q.wg.Add(1)
			go q.work()
		}
		q.logger.Info("notification queue started", "workers", q.workers, "buffer", q.buffer)
	})
	return nil
}

// Enqueue schedules n for processing and returns immediately. The queue is
// started on first use.
func (q *Queue) Enqueue(n core.Notification) {
	if q == nil {
		return
	}
	if err := q.Start(context.Background()); err != nil {
		q.drop(n, "queue closed")
		return
	}
	n = core.NormalizeNotification(n)

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.drop(n, "queue closed")
		return
	}
	q.enqueued.Add(1)
	select {
	case q.items <- n:
	default:
		q.overflowed.Add(1)
		q.observer.Count(q.runCtx, "overflow", 1, nil)
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.run(n)
		}()
	}
}

// Close stops accepting notifications and waits for queued and in-flight
// work. When ctx ends first, processing is cancelled and ctx's error is
// returned.
func (q *Queue) Close(ctx context.Context) error {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.items)
	q.mu.Unlock()

	// Drain the buffer even when Start was never called.
	q.startOnce.Do(func() {
		q.runCtx, q.cancel = context.WithCancel(context.Background())
		q.wg.Add(1)
		go q.work()
	})

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-done:
		q.cancel()
		q.logger.Info("notification queue closed", "processed", q.processed.Load())
		return nil
	case <-ctx.Done():
		q.cancel()
		q.logger.Warn("notification queue close interrupted", "in_flight", q.inFlight.Load())
		return inboundWrapError(
			ctx.Err(),
			goerrors.CategoryOperation,
			"inbound: queue close interrupted",
			http.StatusServiceUnavailable,
			core.FanoutErrorInternal,
			map[string]any{"in_flight": q.inFlight.Load()},
		)
	}
}

func (q *Queue) Stats() QueueStats {
	if q == nil {
		return QueueStats{}
	}
	return QueueStats{
		Enqueued:   q.enqueued.Load(),
		Processed:  q.processed.Load(),
		Overflowed: q.overflowed.Load(),
		Dropped:    q.dropped.Load(),
		InFlight:   q.inFlight.Load(),
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for n := range q.items {
		q.run(n)
	}
}

func (q *Queue) run(n core.Notification) {
	q.inFlight.Add(1)
	defer func() {
		q.inFlight.Add(-1)
		q.processed.Add(1)
		if recovered := recover(); recovered != nil {
			q.observer.Error(q.runCtx, "notification processor panic", map[string]any{
				"panic": fmt.Sprint(recovered),
				"index": n.Index,
			})
		}
	}()
	q.processor.Process(q.runCtx, n)
}

func (q *Queue) drop(n core.Notification, reason string) {
	q.dropped.Add(1)
	fields := core.NotificationFields(n)
	fields["reason"] = reason
	q.observer.Warn(context.Background(), "notification dropped", fields)
}

var _ core.NotificationEnqueuer = (*Queue)(nil)
