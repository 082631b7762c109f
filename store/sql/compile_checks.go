package sqlstore

import "github.com/goliatone/go-fanout/core"

var (
	_ core.SubscriptionStore      = (*SubscriptionStore)(nil)
	_ core.SubscriptionStore      = (*CachedSubscriptionStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
	_ core.CacheConfigurer        = (*RepositoryFactory)(nil)
)
