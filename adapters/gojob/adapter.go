package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alecthomas/types/optional"
	"github.com/goliatone/go-fanout/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	JobIDNotificationDispatch = "fanout.notification.dispatch"

	paramIndex           = "index"
	paramResourceType    = "resource_type"
	paramResourceAddress = "resource_address"
	paramAction          = "action"
	paramSubjects        = "subjects"
)

// RetryPolicy bounds nack retries so poison messages do not loop forever.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt clamps the delay and turns a retry into a terminal
// disposition once attempt reaches MaxAttempts: dead-letter when
// DeadLetterOnMax is set, failed otherwise. An empty disposition is a retry.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.Disposition == "" {
		out.Disposition = queue.NackDispositionRetry
	}
	if out.Disposition == queue.NackDispositionRetry && p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Disposition = queue.NackDispositionFailed
		if p.DeadLetterOnMax {
			out.Disposition = queue.NackDispositionDeadLetter
		}
	}
	if out.Disposition != queue.NackDispositionRetry {
		out.Delay = 0
	}
	return out
}

// ToExecutionMessage carries a notification as go-job parameters. Action and
// subjects are omitted when absent.
func ToExecutionMessage(n core.Notification, idempotencyKey string) *job.ExecutionMessage {
	n = core.NormalizeNotification(n)
	params := map[string]any{
		paramIndex:           n.Index,
		paramResourceType:    n.ResourceType,
		paramResourceAddress: n.ResourceAddress,
	}
	if action, ok := n.Action.Get(); ok {
		params[paramAction] = action
		if n.HasSubjects() {
			params[paramSubjects] = append([]string(nil), n.Subjects...)
		}
	}
	return &job.ExecutionMessage{
		JobID:          JobIDNotificationDispatch,
		ScriptPath:     JobIDNotificationDispatch,
		Parameters:     params,
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
	}
}

// FromExecutionMessage rebuilds a notification. Subjects may arrive as
// []string or, after a JSON round trip, as []any.
func FromExecutionMessage(msg *job.ExecutionMessage) (core.Notification, error) {
	if msg == nil {
		return core.Notification{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDNotificationDispatch {
		return core.Notification{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	params := msg.Parameters
	n := core.Notification{
		Index:           stringParam(params, paramIndex),
		ResourceType:    stringParam(params, paramResourceType),
		ResourceAddress: stringParam(params, paramResourceAddress),
		Action:          optional.None[string](),
	}
	if action := stringParam(params, paramAction); action != "" {
		n.Action = optional.Some(action)
	}
	switch typed := params[paramSubjects].(type) {
	case nil:
	case []string:
		n.Subjects = append([]string(nil), typed...)
	case []any:
		for _, item := range typed {
			value, ok := item.(string)
			if !ok {
				return core.Notification{}, fmt.Errorf("gojob: subject must be a string, got %T", item)
			}
			n.Subjects = append(n.Subjects, value)
		}
	default:
		return core.Notification{}, fmt.Errorf("gojob: subjects must be a list, got %T", typed)
	}
	n = core.NormalizeNotification(n)
	if err := n.ValidateForMatch(); err != nil {
		return core.Notification{}, err
	}
	return n, nil
}

func stringParam(params map[string]any, key string) string {
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}

// Publisher sends notifications to a durable go-job queue instead of the
// in-process queue.
type Publisher struct {
	enqueuer queue.Enqueuer
}

func NewPublisher(enqueuer queue.Enqueuer) *Publisher {
	return &Publisher{enqueuer: enqueuer}
}

func (p *Publisher) Publish(ctx context.Context, n core.Notification, idempotencyKey string) error {
	if p == nil || p.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	n = core.NormalizeNotification(n)
	if err := n.ValidateForMatch(); err != nil {
		return err
	}
	_, err := p.enqueuer.Enqueue(ctx, ToExecutionMessage(n, idempotencyKey))
	return err
}

// Consumer drains go-job deliveries into a NotificationEnqueuer. A delivery
// is acked once handed off; undecodable messages are dead-lettered.
type Consumer struct {
	dequeuer queue.Dequeuer
	target   core.NotificationEnqueuer
	policy   RetryPolicy
	logger   core.Logger
	backoff  time.Duration
}

type ConsumerOption func(*Consumer)

func WithRetryPolicy(policy RetryPolicy) ConsumerOption {
	return func(c *Consumer) {
		c.policy = policy
	}
}

func WithConsumerLogger(logger core.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// WithDequeueBackoff sets the pause after a failed dequeue.
func WithDequeueBackoff(backoff time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.backoff = backoff
	}
}

func NewConsumer(dequeuer queue.Dequeuer, target core.NotificationEnqueuer, opts ...ConsumerOption) (*Consumer, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if target == nil {
		return nil, fmt.Errorf("gojob: notification enqueuer is required")
	}
	c := &Consumer{
		dequeuer: dequeuer,
		target:   target,
		backoff:  time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = glog.Ensure(c.logger)
	return c, nil
}

// Run dequeues until ctx ends.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("gojob: consumer is nil")
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		delivery, err := c.dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Warn("notification dequeue failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}
		if err := c.Handle(ctx, delivery, 0); err != nil {
			c.logger.Error("notification delivery handling failed", "error", err)
		}
	}
}

// Handle decodes one delivery and hands it to the target queue.
func (c *Consumer) Handle(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if c == nil || delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	n, err := FromExecutionMessage(delivery.Message())
	if err != nil {
		c.logger.Warn("dead-lettering undecodable notification", "error", err)
		return delivery.Nack(ctx, c.policy.NormalizeAttempt(queue.NackOptions{
			Disposition: queue.NackDispositionDeadLetter,
			Reason:      err.Error(),
		}, attempt))
	}
	c.target.Enqueue(n)
	return delivery.Ack(ctx)
}

// MetricsHook records go-job worker lifecycle events as fan-out counters.
type MetricsHook struct {
	metrics core.MetricsRecorder
}

func NewMetricsHook(metrics core.MetricsRecorder) *MetricsHook {
	return &MetricsHook{metrics: metrics}
}

func (h *MetricsHook) OnStart(ctx context.Context, event worker.Event) {
	h.record(ctx, "start", event)
}

func (h *MetricsHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.record(ctx, "success", event)
}

func (h *MetricsHook) OnFailure(ctx context.Context, event worker.Event) {
	h.record(ctx, "failure", event)
}

func (h *MetricsHook) OnRetry(ctx context.Context, event worker.Event) {
	h.record(ctx, "retry", event)
}

func (h *MetricsHook) record(ctx context.Context, phase string, event worker.Event) {
	if h == nil || h.metrics == nil {
		return
	}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	tags := map[string]string{"phase": phase}
	if message != nil {
		tags["job_id"] = strings.TrimSpace(message.JobID)
	}
	if event.Err != nil {
		tags["error"] = "true"
	}
	h.metrics.IncCounter(ctx, "fanout.job."+phase, 1, tags)
	if event.Duration > 0 {
		h.metrics.ObserveHistogram(ctx, "fanout.job.duration_ms", float64(event.Duration.Milliseconds()), tags)
	}
}

var _ worker.Hook = (*MetricsHook)(nil)
