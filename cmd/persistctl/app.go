package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/nats-io/nats.go"

	"github.com/jacentio/persist/config"
	"github.com/jacentio/persist/engine"
	"github.com/jacentio/persist/model"
	"github.com/jacentio/persist/notify"
	"github.com/jacentio/persist/store"
	"github.com/jacentio/persist/store/cached"
	"github.com/jacentio/persist/store/dynamo"
	"github.com/jacentio/persist/store/memstore"
	"github.com/jacentio/persist/store/sqlstore"
)

// app is the state shared by all commands once the configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  store.EntityStore

	sql    *sqlstore.Store
	dynamo *dynamo.Store

	hooks   []engine.Hook[*Record]
	closers []func() error
}

// open connects the configured backend, cache and notifier.
func open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	schemas := cfg.Schemas()

	switch cfg.Store.Backend {
	case config.BackendMemory:
		mem := memstore.New(memstore.Config{Logger: logger})
		mem.Register(schemas...)
		a.store = mem
	case config.BackendSQLite, config.BackendPostgres:
		dialect, err := sqlstore.ParseDialect(cfg.Store.Backend)
		if err != nil {
			return nil, err
		}
		s, err := sqlstore.Open(ctx, sqlstore.Config{
			Dialect:     dialect,
			DSN:         cfg.Store.DSN,
			TablePrefix: cfg.Store.TablePrefix,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		if err := s.Register(ctx, schemas...); err != nil {
			_ = a.close()
			return nil, err
		}
		a.sql, a.store = s, s
	case config.BackendDynamo:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		s := dynamo.New(dynamodb.NewFromConfig(awsCfg), dynamo.Config{
			TablePrefix: cfg.Store.TablePrefix,
			NumShards:   cfg.Store.NumShards,
			Logger:      logger,
		})
		if err := s.Register(schemas...); err != nil {
			return nil, err
		}
		a.dynamo, a.store = s, s
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Store.Backend)
	}

	cacheCfg := cached.Config{Tombstone: cfg.Cache.Tombstone, Logger: logger}
	switch cfg.Cache.Kind {
	case config.CacheLRU:
		a.store = cached.New(a.store, cached.NewLRU(cfg.Cache.Size, cfg.Cache.TTL), cacheCfg)
	case config.CacheRedis:
		a.store = cached.New(a.store, cached.DialRedis(cfg.Cache.RedisAddr, cfg.Cache.TTL), cacheCfg)
	}

	if cfg.Notify.NatsURL != "" {
		nc, err := nats.Connect(cfg.Notify.NatsURL, nats.Name("persistctl"))
		if err != nil {
			_ = a.close()
			return nil, fmt.Errorf("connect NATS: %w", err)
		}
		a.closers = append(a.closers, nc.Drain)
		a.hooks = append(a.hooks, notify.NewPublisher[*Record](nc, notify.Config{Subject: cfg.Notify.Subject, Logger: logger}))
	}
	return a, nil
}

func (a *app) close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func (a *app) definition(entityType string) (engine.Definition[*Record], error) {
	schema, err := a.cfg.Schema(entityType)
	if err != nil {
		return engine.Definition[*Record]{}, err
	}
	return engine.Definition[*Record]{
		Schema:    schema,
		Transform: newRecordTransform(schema),
		Hooks:     a.hooks,
	}, nil
}

func (a *app) engineConfig() engine.Config {
	return engine.Config{Logger: a.logger}
}

func (a *app) crud(entityType string) (*engine.CRUD[*Record], error) {
	def, err := a.definition(entityType)
	if err != nil {
		return nil, err
	}
	return engine.New(a.store, def, a.engineConfig()), nil
}

func (a *app) finder(entityType string) (*engine.Finder[*Record], error) {
	def, err := a.definition(entityType)
	if err != nil {
		return nil, err
	}
	return engine.NewFinder(a.store, def, a.engineConfig()), nil
}

func (a *app) versions(entityType string) (*engine.Versions[*Record], error) {
	crud, err := a.crud(entityType)
	if err != nil {
		return nil, err
	}
	finder, err := a.finder(entityType)
	if err != nil {
		return nil, err
	}
	return engine.NewVersions(crud, finder)
}

func (a *app) dependents(entityType string) (*engine.Dependents[*Record], error) {
	crud, err := a.crud(entityType)
	if err != nil {
		return nil, err
	}
	if crud.Schema().ParentType == "" {
		return nil, fmt.Errorf("%s is not a dependent entity type", entityType)
	}
	finder, err := a.finder(entityType)
	if err != nil {
		return nil, err
	}
	return engine.NewDependents(crud, finder), nil
}

// splitKey parses "oid" or "oid@version".
func splitKey(arg string) model.VersionedOID {
	oid, version, _ := strings.Cut(arg, "@")
	return model.VersionedOID{OID: model.OID(oid), Version: model.VersionOID(version)}
}
