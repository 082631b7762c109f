package query

import (
	"context"

	"github.com/goliatone/go-fanout/core"
)

type SubscriptionReader interface {
	GetSubscription(ctx context.Context, id string) (core.Subscription, error)
}

type GetSubscriptionQuery struct {
	reader SubscriptionReader
}

func NewGetSubscriptionQuery(reader SubscriptionReader) *GetSubscriptionQuery {
	return &GetSubscriptionQuery{reader: reader}
}

func (q *GetSubscriptionQuery) Query(ctx context.Context, msg GetSubscriptionMessage) (core.Subscription, error) {
	if q == nil || q.reader == nil {
		return core.Subscription{}, queryDependencyError("query: subscription reader is required")
	}
	return q.reader.GetSubscription(ctx, msg.SubscriptionID)
}

type ResolveMatchesQuery struct {
	resolver core.MatchResolver
}

func NewResolveMatchesQuery(resolver core.MatchResolver) *ResolveMatchesQuery {
	return &ResolveMatchesQuery{resolver: resolver}
}

func (q *ResolveMatchesQuery) Query(ctx context.Context, msg ResolveMatchesMessage) (core.MatchPage, error) {
	if q == nil || q.resolver == nil {
		return core.MatchPage{}, queryDependencyError("query: match resolver is required")
	}
	return q.resolver.Resolve(ctx, msg.Notification, msg.Limit, msg.Cursor)
}
