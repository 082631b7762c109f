package gocommand

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	fanoutcommand "github.com/goliatone/go-fanout/command"
	"github.com/goliatone/go-fanout/core"
	fanoutquery "github.com/goliatone/go-fanout/query"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

var errNoRegistry = errors.New("gocommand: registry is not configured")

// RegistryAdapter registers fan-out handlers with a go-command registry and
// subscribes them on the global dispatcher.
type RegistryAdapter struct {
	registry *command.Registry
}

// NewRegistryAdapter wraps registry, creating one when nil.
func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) ready() error {
	if a == nil || a.registry == nil {
		return errNoRegistry
	}
	return nil
}

// AddResolver installs a registry hook under key. Hooks run on Initialize.
func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors registered handlers into a go-job command
// registry so they can also run as queued jobs.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	return a.ready() == nil && a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.Initialize()
}

// bind subscribes handler first so a failed registration can release it.
func (a *RegistryAdapter) bind(handler any, subscribe func() commanddispatcher.Subscription) (commanddispatcher.Subscription, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, fmt.Errorf("gocommand: handler is required")
	}
	sub := subscribe()
	if err := a.registry.RegisterCommand(handler); err != nil {
		if sub != nil {
			sub.Unsubscribe()
		}
		return nil, err
	}
	return sub, nil
}

// RegisterAndSubscribe registers cmd and subscribes it on the dispatcher.
func RegisterAndSubscribe[T any](a *RegistryAdapter, cmd command.Commander[T], opts ...runner.Option) (commanddispatcher.Subscription, error) {
	if cmd == nil {
		return a.bind(nil, nil)
	}
	return a.bind(cmd, func() commanddispatcher.Subscription {
		return commanddispatcher.SubscribeCommand(cmd, opts...)
	})
}

// RegisterAndSubscribeQuery is RegisterAndSubscribe for queries.
func RegisterAndSubscribeQuery[T, R any](a *RegistryAdapter, qry command.Querier[T, R], opts ...runner.Option) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return a.bind(nil, nil)
	}
	return a.bind(qry, func() commanddispatcher.Subscription {
		return commanddispatcher.SubscribeQuery(qry, opts...)
	})
}

// Handlers names the collaborators behind the fan-out commands and queries.
// Nil collaborators skip their handlers.
type Handlers struct {
	Subscriptions interface {
		fanoutcommand.SubscriptionMutator
		fanoutquery.SubscriptionReader
	}
	Resolver   core.MatchResolver
	Queue      core.NotificationEnqueuer
	Dispatcher fanoutcommand.NotificationDispatcher
}

// Bindings keeps the dispatcher subscriptions created by RegisterFanout.
type Bindings struct {
	subscriptions []commanddispatcher.Subscription
}

func (b *Bindings) Len() int {
	if b == nil {
		return 0
	}
	return len(b.subscriptions)
}

func (b *Bindings) Unsubscribe() {
	if b == nil {
		return
	}
	for _, sub := range b.subscriptions {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
	b.subscriptions = nil
}

func (b *Bindings) add(sub commanddispatcher.Subscription, err error) error {
	if err != nil {
		return err
	}
	b.subscriptions = append(b.subscriptions, sub)
	return nil
}

// RegisterFanout registers and subscribes every fan-out handler h can back.
// On failure the subscriptions made so far are released.
func RegisterFanout(a *RegistryAdapter, h Handlers, opts ...runner.Option) (*Bindings, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	var steps []func(*Bindings) error
	if s := h.Subscriptions; s != nil {
		steps = append(steps,
			func(b *Bindings) error {
				return b.add(RegisterAndSubscribe(a, command.Commander[fanoutcommand.CreateSubscriptionMessage](fanoutcommand.NewCreateSubscriptionCommand(s)), opts...))
			},
			func(b *Bindings) error {
				return b.add(RegisterAndSubscribe(a, command.Commander[fanoutcommand.DeactivateSubscriptionMessage](fanoutcommand.NewDeactivateSubscriptionCommand(s)), opts...))
			},
			func(b *Bindings) error {
				return b.add(RegisterAndSubscribeQuery(a, command.Querier[fanoutquery.GetSubscriptionMessage, core.Subscription](fanoutquery.NewGetSubscriptionQuery(s)), opts...))
			},
		)
	}
	if h.Resolver != nil {
		steps = append(steps, func(b *Bindings) error {
			return b.add(RegisterAndSubscribeQuery(a, command.Querier[fanoutquery.ResolveMatchesMessage, core.MatchPage](fanoutquery.NewResolveMatchesQuery(h.Resolver)), opts...))
		})
	}
	if h.Queue != nil {
		steps = append(steps, func(b *Bindings) error {
			return b.add(RegisterAndSubscribe(a, command.Commander[fanoutcommand.EnqueueNotificationMessage](fanoutcommand.NewEnqueueNotificationCommand(h.Queue)), opts...))
		})
	}
	if h.Dispatcher != nil {
		steps = append(steps, func(b *Bindings) error {
			return b.add(RegisterAndSubscribe(a, command.Commander[fanoutcommand.DispatchNotificationMessage](fanoutcommand.NewDispatchNotificationCommand(h.Dispatcher)), opts...))
		})
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("gocommand: no fan-out handlers configured")
	}
	bindings := &Bindings{}
	for _, step := range steps {
		if err := step(bindings); err != nil {
			bindings.Unsubscribe()
			return nil, err
		}
	}
	return bindings, nil
}
