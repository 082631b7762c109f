package query

import (
	"strings"

	"github.com/goliatone/go-fanout/core"
)

const (
	TypeGetSubscription = "fanout.query.subscription.get"
	TypeResolveMatches  = "fanout.query.matches.resolve"
)

type GetSubscriptionMessage struct {
	SubscriptionID string
}

func (GetSubscriptionMessage) Type() string { return TypeGetSubscription }

func (m GetSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.SubscriptionID) == "" {
		return queryValidationError("subscription_id", "subscription id is required")
	}
	return nil
}

// ResolveMatchesMessage asks for one page of interested URLs. A zero Limit
// resolves every match in one page.
type ResolveMatchesMessage struct {
	Notification core.Notification
	Limit        int
	Cursor       *core.MatchCursor
}

func (ResolveMatchesMessage) Type() string { return TypeResolveMatches }

func (m ResolveMatchesMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Cursor != nil && strings.TrimSpace(m.Cursor.URL) == "" {
		return queryValidationError("cursor", "cursor url is required")
	}
	return nil
}
