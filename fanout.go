package fanout

import (
	"context"
	"fmt"

	"github.com/goliatone/go-fanout/core"
	"github.com/goliatone/go-fanout/inbound"
	"github.com/goliatone/go-fanout/transport"
	"github.com/goliatone/go-fanout/webhooks"
)

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type SubscriptionStore = core.SubscriptionStore
type Transport = core.Transport

type Subscription = core.Subscription
type CreateSubscriptionInput = core.CreateSubscriptionInput
type Notification = core.Notification
type MatchCursor = core.MatchCursor
type MatchPage = core.MatchPage

type DispatchReport = webhooks.DispatchReport

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithSubscriptionStore = core.WithSubscriptionStore
	WithTransport         = core.WithTransport
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

// Runtime is a service with its dispatcher and ingress queue wired together.
// Notifications enqueued on it are matched and delivered in the background.
type Runtime struct {
	*core.Service

	dispatcher *webhooks.Dispatcher
	queue      *inbound.Queue
}

// New builds a Runtime. Webhooks go out over HTTP unless WithTransport
// supplies another transport.
func New(cfg Config, opts ...Option) (*Runtime, error) {
	all := make([]Option, 0, len(opts)+1)
	all = append(all, core.WithTransport(transport.NewRESTAdapter(nil)))
	all = append(all, opts...)

	svc, err := core.NewService(cfg, all...)
	if err != nil {
		return nil, err
	}
	dispatcher, err := webhooks.NewDispatcherFromService(svc)
	if err != nil {
		return nil, err
	}
	queue, err := inbound.NewQueueFromService(svc, dispatcher)
	if err != nil {
		return nil, err
	}
	return &Runtime{Service: svc, dispatcher: dispatcher, queue: queue}, nil
}

func (r *Runtime) Dispatcher() *webhooks.Dispatcher {
	if r == nil {
		return nil
	}
	return r.dispatcher
}

func (r *Runtime) Queue() *inbound.Queue {
	if r == nil {
		return nil
	}
	return r.queue
}

// Start launches the queue workers ahead of the first Enqueue.
func (r *Runtime) Start(ctx context.Context) error {
	if r == nil || r.queue == nil {
		return fmt.Errorf("fanout: runtime is not initialized")
	}
	return r.queue.Start(ctx)
}

// Enqueue hands n to the ingress queue and returns immediately.
func (r *Runtime) Enqueue(n Notification) {
	if r == nil || r.queue == nil {
		return
	}
	r.queue.Enqueue(n)
}

// Dispatch processes n synchronously and reports every delivery outcome.
func (r *Runtime) Dispatch(ctx context.Context, n Notification) DispatchReport {
	if r == nil || r.dispatcher == nil {
		return DispatchReport{Err: fmt.Errorf("fanout: runtime is not initialized")}
	}
	return r.dispatcher.ProcessWithReport(ctx, n)
}

// Close stops accepting notifications and waits for queued work until ctx
// ends.
func (r *Runtime) Close(ctx context.Context) error {
	if r == nil || r.queue == nil {
		return nil
	}
	return r.queue.Close(ctx)
}
