package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	MaxDispatchConcurrency     = 16
	DefaultDispatchPageSize    = 500
	DefaultQueueWorkers        = 4
	DefaultQueueBuffer         = 1024
	DefaultCacheTTLSeconds     = 30
	defaultServiceName         = "fanout"
	defaultDispatchConcurrency = MaxDispatchConcurrency
)

type DispatchConfig struct {
	Concurrency int `koanf:"concurrency" mapstructure:"concurrency"`
	// PageSize is the match page size used while collecting URLs. Zero
	// resolves every match in one query.
	PageSize      int `koanf:"page_size" mapstructure:"page_size"`
	SendTimeoutMS int `koanf:"send_timeout_ms" mapstructure:"send_timeout_ms"`
}

func (c DispatchConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutMS) * time.Millisecond
}

type QueueConfig struct {
	Workers int `koanf:"workers" mapstructure:"workers"`
	Buffer  int `koanf:"buffer" mapstructure:"buffer"`
}

type CacheConfig struct {
	TTLSeconds int `koanf:"ttl_seconds" mapstructure:"ttl_seconds"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Dispatch    DispatchConfig `koanf:"dispatch" mapstructure:"dispatch"`
	Queue       QueueConfig    `koanf:"queue" mapstructure:"queue"`
	Cache       CacheConfig    `koanf:"cache" mapstructure:"cache"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: defaultServiceName,
		Dispatch: DispatchConfig{
			Concurrency: defaultDispatchConcurrency,
			PageSize:    DefaultDispatchPageSize,
		},
		Queue: QueueConfig{
			Workers: DefaultQueueWorkers,
			Buffer:  DefaultQueueBuffer,
		},
		Cache: CacheConfig{
			TTLSeconds: DefaultCacheTTLSeconds,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Dispatch.Concurrency < 1 || c.Dispatch.Concurrency > MaxDispatchConcurrency {
		return fmt.Errorf("core: dispatch.concurrency must be between 1 and %d", MaxDispatchConcurrency)
	}
	if c.Dispatch.PageSize < 0 {
		return fmt.Errorf("core: dispatch.page_size must not be negative")
	}
	if c.Dispatch.SendTimeoutMS < 0 {
		return fmt.Errorf("core: dispatch.send_timeout_ms must not be negative")
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("core: queue.workers must be positive")
	}
	if c.Queue.Buffer < 0 {
		return fmt.Errorf("core: queue.buffer must not be negative")
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("core: cache.ttl_seconds must not be negative")
	}
	return nil
}
