package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-fanout/core"
	"github.com/goliatone/go-fanout/webhooks"
)

type SubscriptionMutator interface {
	CreateSubscription(ctx context.Context, in core.CreateSubscriptionInput) (core.Subscription, error)
	DeactivateSubscription(ctx context.Context, id string) (bool, error)
}

type NotificationDispatcher interface {
	ProcessWithReport(ctx context.Context, n core.Notification) webhooks.DispatchReport
}

type CreateSubscriptionCommand struct {
	service SubscriptionMutator
}

func NewCreateSubscriptionCommand(service SubscriptionMutator) *CreateSubscriptionCommand {
	return &CreateSubscriptionCommand{service: service}
}

func (c *CreateSubscriptionCommand) Execute(ctx context.Context, msg CreateSubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	out, err := c.service.CreateSubscription(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeactivateSubscriptionCommand struct {
	service SubscriptionMutator
}

func NewDeactivateSubscriptionCommand(service SubscriptionMutator) *DeactivateSubscriptionCommand {
	return &DeactivateSubscriptionCommand{service: service}
}

// Execute stores whether the subscription changed state. Deactivating an
// inactive or unknown subscription is not an error.
func (c *DeactivateSubscriptionCommand) Execute(ctx context.Context, msg DeactivateSubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	changed, err := c.service.DeactivateSubscription(ctx, msg.SubscriptionID)
	if err != nil {
		return err
	}
	storeResult(ctx, changed)
	return nil
}

type EnqueueNotificationCommand struct {
	queue core.NotificationEnqueuer
}

func NewEnqueueNotificationCommand(queue core.NotificationEnqueuer) *EnqueueNotificationCommand {
	return &EnqueueNotificationCommand{queue: queue}
}

func (c *EnqueueNotificationCommand) Execute(_ context.Context, msg EnqueueNotificationMessage) error {
	if c == nil || c.queue == nil {
		return commandDependencyError("command: notification queue is required")
	}
	c.queue.Enqueue(msg.Notification)
	return nil
}

type DispatchNotificationCommand struct {
	dispatcher NotificationDispatcher
}

func NewDispatchNotificationCommand(dispatcher NotificationDispatcher) *DispatchNotificationCommand {
	return &DispatchNotificationCommand{dispatcher: dispatcher}
}

func (c *DispatchNotificationCommand) Execute(ctx context.Context, msg DispatchNotificationMessage) error {
	if c == nil || c.dispatcher == nil {
		return commandDependencyError("command: notification dispatcher is required")
	}
	report := c.dispatcher.ProcessWithReport(ctx, msg.Notification)
	storeResult(ctx, report)
	return report.Err
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
