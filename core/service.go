package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	persistenceClient any
	subscriptionStore SubscriptionStore
	transport         Transport
	matcher           *Matcher
	observer          Observer
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorMapper       ErrorMapper
	PersistenceClient any
	SubscriptionStore SubscriptionStore
	Transport         Transport
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve(defaultServiceName, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(defaultServiceName); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.subscriptionStore == nil && builder.repositoryFactory != nil {
		if configurer, ok := builder.repositoryFactory.(CacheConfigurer); ok {
			if err := configurer.UseCacheConfig(finalConfig.Cache); err != nil {
				return nil, mapBuildError(builder.errorMapper, err)
			}
		}
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			stores, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if stores != nil {
				builder.subscriptionStore = stores.SubscriptionStore()
			}
		} else if stores, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.subscriptionStore = stores.SubscriptionStore()
		}
	}
	if builder.subscriptionStore == nil {
		builder.subscriptionStore = NewMemorySubscriptionStore()
		logger.Warn("no subscription store configured, using in-memory store")
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		subscriptionStore: builder.subscriptionStore,
		transport:         builder.transport,
		matcher:           NewMatcher(builder.subscriptionStore, logger),
		observer:          NewObserver(defaultServiceName, logger, builder.metricsRecorder),
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		SubscriptionStore: s.subscriptionStore,
		Transport:         s.transport,
	}
}

// Logger returns the named logger from the configured provider, falling
// back to the service logger.
func (s *Service) Logger(name string) Logger {
	if s == nil {
		return glog.Nop()
	}
	name = strings.TrimSpace(name)
	if s.loggerProvider != nil && name != "" {
		if named := s.loggerProvider.GetLogger(name); named != nil {
			return named
		}
	}
	return glog.Ensure(s.logger)
}

func (s *Service) Matcher() *Matcher {
	if s == nil {
		return nil
	}
	return s.matcher
}

func (s *Service) CreateSubscription(ctx context.Context, in CreateSubscriptionInput) (sub Subscription, err error) {
	if err := s.requireStore(); err != nil {
		return Subscription{}, err
	}
	startedAt := time.Now().UTC()
	in = in.Normalize()
	fields := map[string]any{
		"index":         in.Index,
		"resource_type": in.ResourceType,
		"url":           in.URL,
	}
	defer func() {
		if err == nil {
			fields["subscription_id"] = sub.ID
		}
		s.observer.Observe(ctx, startedAt, "create_subscription", err, fields)
	}()
	if err := in.Validate(); err != nil {
		return Subscription{}, err
	}
	return s.subscriptionStore.Create(ctx, in)
}

func (s *Service) GetSubscription(ctx context.Context, id string) (Subscription, error) {
	if err := s.requireStore(); err != nil {
		return Subscription{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Subscription{}, badInputError("core: subscription id is required", map[string]any{"field": "id"})
	}
	return s.subscriptionStore.Get(ctx, id)
}

// DeactivateSubscription marks the subscription inactive. It reports false
// when the subscription is unknown or already inactive.
func (s *Service) DeactivateSubscription(ctx context.Context, id string) (changed bool, err error) {
	if err := s.requireStore(); err != nil {
		return false, err
	}
	startedAt := time.Now().UTC()
	id = strings.TrimSpace(id)
	fields := map[string]any{"subscription_id": id}
	defer func() {
		fields["changed"] = changed
		s.observer.Observe(ctx, startedAt, "deactivate_subscription", err, fields)
	}()
	if id == "" {
		return false, badInputError("core: subscription id is required", map[string]any{"field": "id"})
	}
	return s.subscriptionStore.Deactivate(ctx, id)
}

func (s *Service) Resolve(ctx context.Context, n Notification, limit int, cursor *MatchCursor) (MatchPage, error) {
	if s == nil || s.matcher == nil {
		return MatchPage{}, fmt.Errorf("core: service matcher is not configured")
	}
	return s.matcher.Resolve(ctx, n, limit, cursor)
}

func (s *Service) requireStore() error {
	if s == nil || s.subscriptionStore == nil {
		return fmt.Errorf("core: subscription store is not configured")
	}
	return nil
}
