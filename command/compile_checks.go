package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[CreateSubscriptionMessage]     = (*CreateSubscriptionCommand)(nil)
	_ gocmd.Commander[DeactivateSubscriptionMessage] = (*DeactivateSubscriptionCommand)(nil)
	_ gocmd.Commander[EnqueueNotificationMessage]    = (*EnqueueNotificationCommand)(nil)
	_ gocmd.Commander[DispatchNotificationMessage]   = (*DispatchNotificationCommand)(nil)
)
