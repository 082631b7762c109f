package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-fanout/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const subscriptionCacheKeyPrefix = "go-fanout::subscription::v1"

// CachedSubscriptionStore serves Get through a read-through cache and evicts
// the entry on Deactivate. MatchQuery is never cached.
type CachedSubscriptionStore struct {
	base  core.SubscriptionStore
	cache repositorycache.CacheService
}

func NewCachedSubscriptionStore(
	base core.SubscriptionStore,
	cacheService repositorycache.CacheService,
) (*CachedSubscriptionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base subscription store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: subscription cache service is required")
	}
	return &CachedSubscriptionStore{base: base, cache: cacheService}, nil
}

// SubscriptionCacheKey returns go-fanout::subscription::v1::<id> with the id
// URL-path escaped.
func SubscriptionCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sqlstore: subscription id is required")
	}
	return strings.Join([]string{subscriptionCacheKeyPrefix, url.PathEscape(id)}, "::"), nil
}

func (s *CachedSubscriptionStore) Create(ctx context.Context, in core.CreateSubscriptionInput) (core.Subscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	return s.base.Create(ctx, in)
}

func (s *CachedSubscriptionStore) Get(ctx context.Context, id string) (core.Subscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	cacheKey, err := SubscriptionCacheKey(id)
	if err != nil {
		return core.Subscription{}, core.NotFoundError(id)
	}
	sub, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Subscription, error) {
		return s.base.Get(ctx, strings.TrimSpace(id))
	})
	if err != nil {
		return core.Subscription{}, err
	}
	sub.Subjects = append([]string(nil), sub.Subjects...)
	if len(sub.Subjects) == 0 {
		sub.Subjects = nil
	}
	return sub, nil
}

func (s *CachedSubscriptionStore) Deactivate(ctx context.Context, id string) (bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return false, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	changed, err := s.base.Deactivate(ctx, id)
	if err != nil {
		return false, err
	}
	cacheKey, keyErr := SubscriptionCacheKey(id)
	if keyErr != nil {
		return changed, nil
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return changed, err
	}
	return changed, nil
}

func (s *CachedSubscriptionStore) MatchQuery(ctx context.Context, query core.MatchQuery) ([]core.MatchRow, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	return s.base.MatchQuery(ctx, query)
}
