package fanout

import (
	"fmt"

	fanoutcommand "github.com/goliatone/go-fanout/command"
	"github.com/goliatone/go-fanout/core"
	fanoutquery "github.com/goliatone/go-fanout/query"
)

type CommandQueryService interface {
	fanoutcommand.SubscriptionMutator
	fanoutquery.SubscriptionReader
	core.MatchResolver
}

type Commands struct {
	CreateSubscription     *fanoutcommand.CreateSubscriptionCommand
	DeactivateSubscription *fanoutcommand.DeactivateSubscriptionCommand
	EnqueueNotification    *fanoutcommand.EnqueueNotificationCommand
	DispatchNotification   *fanoutcommand.DispatchNotificationCommand
}

type Queries struct {
	GetSubscription *fanoutquery.GetSubscriptionQuery
	ResolveMatches  *fanoutquery.ResolveMatchesQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	queue      core.NotificationEnqueuer
	dispatcher fanoutcommand.NotificationDispatcher
}

func WithQueue(queue core.NotificationEnqueuer) FacadeOption {
	return func(options *facadeOptions) {
		options.queue = queue
	}
}

func WithDispatcher(dispatcher fanoutcommand.NotificationDispatcher) FacadeOption {
	return func(options *facadeOptions) {
		options.dispatcher = dispatcher
	}
}

// NewFacade wires the command and query handlers around service. A Runtime
// supplies its own queue and dispatcher unless overridden.
func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("fanout: command/query service is required")
	}
	cfg := facadeOptions{}
	if runtime, ok := service.(*Runtime); ok && runtime != nil {
		if runtime.queue != nil {
			cfg.queue = runtime.queue
		}
		if runtime.dispatcher != nil {
			cfg.dispatcher = runtime.dispatcher
		}
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		CreateSubscription:     fanoutcommand.NewCreateSubscriptionCommand(service),
		DeactivateSubscription: fanoutcommand.NewDeactivateSubscriptionCommand(service),
		EnqueueNotification:    fanoutcommand.NewEnqueueNotificationCommand(cfg.queue),
		DispatchNotification:   fanoutcommand.NewDispatchNotificationCommand(cfg.dispatcher),
	}
	facade.queries = Queries{
		GetSubscription: fanoutquery.NewGetSubscriptionQuery(service),
		ResolveMatches:  fanoutquery.NewResolveMatchesQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
