package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	fanout "github.com/goliatone/go-fanout"
	"github.com/goliatone/go-fanout/core"
	fanoutmigrations "github.com/goliatone/go-fanout/migrations"
	sqlstore "github.com/goliatone/go-fanout/store/sql"
)

const dbPingTimeout = 5 * time.Second

// dbConfig satisfies the go-persistence-bun client configuration.
type dbConfig struct {
	driver string
	dsn    string
	debug  bool
}

func (c dbConfig) GetDebug() bool { return c.debug }
func (c dbConfig) GetDriver() string { return c.driver }
func (c dbConfig) GetServer() string { return c.dsn }
func (c dbConfig) GetPingTimeout() time.Duration { return dbPingTimeout }
func (c dbConfig) GetOtelIdentifier() string { return "go-fanout" }

type appContext struct {
	ctx      context.Context
	cli      *CLI
	provider core.LoggerProvider
	logger   core.Logger

	client  *persistence.Client
	dialect string
	runtime *fanout.Runtime
	facade  *fanout.Facade
}

// openClient connects to the configured database and registers the
// migrations for its dialect. Migrations are not applied.
func (a *appContext) openClient() (*persistence.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	dialectName, err := fanoutmigrations.DialectForDriver(a.cli.Driver)
	if err != nil {
		return nil, err
	}
	driver := "sqlite3"
	var dialect schema.Dialect = sqlitedialect.New()
	if dialectName == fanoutmigrations.DialectPostgres {
		driver = "postgres"
		dialect = pgdialect.New()
	}

	sqlDB, err := sql.Open(driver, a.cli.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if dialectName == fanoutmigrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(dbConfig{driver: driver, dsn: a.cli.DSN, debug: a.cli.Debug}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("new persistence client: %w", err)
	}

	registration, err := fanoutmigrations.Register(a.ctx,
		fanoutmigrations.ForDialect(dialectName, func(fsys fs.FS) {
			client.RegisterSQLMigrations(fsys)
		}),
		fanoutmigrations.WithValidationTargets(dialectName),
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("register migrations: %w", err)
	}
	a.logger.Debug("migrations registered", "dialect", dialectName, "sources", len(registration.Filesystems))

	a.client = client
	a.dialect = dialectName
	return client, nil
}

// open builds the runtime over the SQL store, fronted by a read cache when
// --cache-ttl is positive.
func (a *appContext) open() (*fanout.Facade, error) {
	if a.facade != nil {
		return a.facade, nil
	}
	client, err := a.openClient()
	if err != nil {
		return nil, err
	}

	cfg := fanout.DefaultConfig()
	cfg.Dispatch.Concurrency = a.cli.Concurrency
	cfg.Dispatch.PageSize = a.cli.PageSize
	cfg.Cache.TTLSeconds = a.cli.CacheTTL

	// The factory builds the read cache from cfg.Cache. A zero TTL in the
	// runtime layer reads as unset, so turning the cache off is explicit.
	var factoryOpts []sqlstore.FactoryOption
	if cfg.Cache.TTLSeconds <= 0 {
		factoryOpts = append(factoryOpts, sqlstore.WithoutCache())
	}

	runtime, err := fanout.New(cfg,
		fanout.WithLoggerProvider(a.provider),
		fanout.WithPersistenceClient(client),
		fanout.WithRepositoryFactory(sqlstore.NewRepositoryFactory(factoryOpts...)),
	)
	if err != nil {
		return nil, err
	}
	facade, err := fanout.NewFacade(runtime)
	if err != nil {
		return nil, err
	}
	a.runtime = runtime
	a.facade = facade
	return facade, nil
}

func (a *appContext) Close() {
	if a.runtime != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := a.runtime.Close(ctx); err != nil {
			a.logger.Warn("runtime close failed", "error", err)
		}
		cancel()
	}
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			a.logger.Warn("database close failed", "error", err)
		}
	}
}
