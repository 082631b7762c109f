package command

import (
	"strings"

	"github.com/goliatone/go-fanout/core"
)

const (
	TypeCreateSubscription     = "fanout.command.subscription.create"
	TypeDeactivateSubscription = "fanout.command.subscription.deactivate"
	TypeEnqueueNotification    = "fanout.command.notification.enqueue"
	TypeDispatchNotification   = "fanout.command.notification.dispatch"
)

type CreateSubscriptionMessage struct {
	Input core.CreateSubscriptionInput
}

func (CreateSubscriptionMessage) Type() string { return TypeCreateSubscription }

func (m CreateSubscriptionMessage) Validate() error {
	in := m.Input.Normalize()
	switch {
	case in.Index == "":
		return commandValidationError("index", "index is required")
	case in.ResourceType == "":
		return commandValidationError("resource_type", "resource type is required")
	case in.URL == "":
		return commandValidationError("url", "url is required")
	}
	return nil
}

type DeactivateSubscriptionMessage struct {
	SubscriptionID string
}

func (DeactivateSubscriptionMessage) Type() string { return TypeDeactivateSubscription }

func (m DeactivateSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.SubscriptionID) == "" {
		return commandValidationError("subscription_id", "subscription id is required")
	}
	return nil
}

type EnqueueNotificationMessage struct {
	Notification core.Notification
}

func (EnqueueNotificationMessage) Type() string { return TypeEnqueueNotification }

func (m EnqueueNotificationMessage) Validate() error {
	return validateNotification(m.Notification)
}

// DispatchNotificationMessage runs a notification synchronously and stores
// the delivery report as the command result.
type DispatchNotificationMessage struct {
	Notification core.Notification
}

func (DispatchNotificationMessage) Type() string { return TypeDispatchNotification }

func (m DispatchNotificationMessage) Validate() error {
	return validateNotification(m.Notification)
}

func validateNotification(n core.Notification) error {
	return commandWrapValidation(
		core.NormalizeNotification(n).ValidateForMatch(),
		"command: invalid notification",
	)
}
