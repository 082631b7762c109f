package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

// SubscriptionStore persists subscriptions and answers the matching query.
// MatchQuery returns rows ordered by (url, id) ascending starting at From
// (inclusive) and at most Limit rows when Limit is positive.
type SubscriptionStore interface {
	Create(ctx context.Context, in CreateSubscriptionInput) (Subscription, error)
	Get(ctx context.Context, id string) (Subscription, error)
	Deactivate(ctx context.Context, id string) (bool, error)
	MatchQuery(ctx context.Context, query MatchQuery) ([]MatchRow, error)
}

type MatchQuerier interface {
	MatchQuery(ctx context.Context, query MatchQuery) ([]MatchRow, error)
}

type SubscriptionReader interface {
	Get(ctx context.Context, id string) (Subscription, error)
}

type SubscriptionDeactivator interface {
	Deactivate(ctx context.Context, id string) (bool, error)
}

type MatchResolver interface {
	Resolve(ctx context.Context, n Notification, limit int, cursor *MatchCursor) (MatchPage, error)
}

// NotificationProcessor consumes one notification end to end.
type NotificationProcessor interface {
	Process(ctx context.Context, n Notification)
}

type NotificationEnqueuer interface {
	Enqueue(n Notification)
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	DurationMS int64
}

type Transport interface {
	Post(ctx context.Context, url string, body []byte) (TransportResponse, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type StoreProvider interface {
	SubscriptionStore() SubscriptionStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// CacheConfigurer is implemented by repository factories that size their
// read cache from Config.Cache. NewService calls it before BuildStores.
type CacheConfigurer interface {
	UseCacheConfig(cfg CacheConfig) error
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
