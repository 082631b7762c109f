package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-fanout/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db       *bun.DB
	cache    repositorycache.CacheService
	cacheOff bool

	subscriptionStore *SubscriptionStore
	cachedStore       *CachedSubscriptionStore
}

type FactoryOption func(*RepositoryFactory)

// WithCacheService puts subscription reads behind cacheService.
func WithCacheService(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

// WithoutCache keeps subscription reads uncached whatever cache.ttl_seconds
// says.
func WithoutCache() FactoryOption {
	return func(f *RepositoryFactory) {
		f.cacheOff = true
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.subscriptionStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

// UseCacheConfig builds a go-repository-cache service with cfg's TTL unless
// one was supplied, caching was turned off, the TTL is zero or the stores
// are already built.
func (f *RepositoryFactory) UseCacheConfig(cfg core.CacheConfig) error {
	if f == nil || f.cache != nil || f.cacheOff || f.subscriptionStore != nil || cfg.TTLSeconds <= 0 {
		return nil
	}
	cacheCfg := repositorycache.DefaultConfig()
	cacheCfg.TTL = cfg.TTL()
	service, err := repositorycache.NewCacheService(cacheCfg)
	if err != nil {
		return fmt.Errorf("sqlstore: new cache service: %w", err)
	}
	f.cache = service
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

// SubscriptionStore returns the cached store when a cache service was
// configured and the plain SQL store otherwise.
func (f *RepositoryFactory) SubscriptionStore() core.SubscriptionStore {
	if f == nil {
		return nil
	}
	if f.cachedStore != nil {
		return f.cachedStore
	}
	if f.subscriptionStore == nil {
		return nil
	}
	return f.subscriptionStore
}

func (f *RepositoryFactory) initStores() error {
	subscriptionStore, err := NewSubscriptionStore(f.db)
	if err != nil {
		return err
	}
	f.subscriptionStore = subscriptionStore
	if f.cache != nil && !f.cacheOff {
		cached, err := NewCachedSubscriptionStore(subscriptionStore, f.cache)
		if err != nil {
			return err
		}
		f.cachedStore = cached
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
