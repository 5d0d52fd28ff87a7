package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/fieldsync/internal/audit"
	"github.com/angelmondragon/fieldsync/internal/orders"
	"github.com/angelmondragon/fieldsync/internal/remote"
	"github.com/angelmondragon/fieldsync/internal/store"
	"github.com/angelmondragon/fieldsync/internal/store/kvstore"
	"github.com/angelmondragon/fieldsync/internal/store/sqlstore"
	"github.com/angelmondragon/fieldsync/internal/syncer"
	"github.com/angelmondragon/fieldsync/internal/transmission"
	"github.com/angelmondragon/fieldsync/pkg/config"
	"github.com/angelmondragon/fieldsync/pkg/db"
	"github.com/angelmondragon/fieldsync/pkg/logger"
	"github.com/angelmondragon/fieldsync/pkg/metrics"
	pkgredis "github.com/angelmondragon/fieldsync/pkg/redis"
)

// app is everything a command needs, built once per invocation.
type app struct {
	cfg      *config.Config
	logg     *logger.Logger
	store    store.LocalStore
	remote   remote.Service
	health   remote.Connectivity
	registry *prometheus.Registry

	syncer   *syncer.Service
	transmit *transmission.Service
	orders   orders.Service

	closers []func(context.Context) error
}

// deps are the externally owned pieces of an app. Tests supply them directly.
type deps struct {
	store  store.LocalStore
	remote remote.Service
	health remote.Connectivity
	lock   syncer.Lock
	audit  audit.Sink
}

// appFactory builds the app for a command. Replaced in tests.
type appFactory func(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*app, error)

// newApp opens the configured store engine and remote client.
func newApp(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*app, error) {
	var (
		d       deps
		closers []func(context.Context) error
		sinks   = audit.MultiSink{audit.NewLogSink(logg)}
		redisCl *pkgredis.Client
	)

	if cfg.Redis.Enabled() {
		client, err := pkgredis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap redis: %w", err)
		}
		redisCl = client
		closers = append(closers, func(context.Context) error { return client.Close() })
	}

	if cfg.Store.IsSQL() {
		dbClient, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("bootstrap database: %w", err), runClosers(ctx, closers))
		}
		d.store = sqlstore.New(dbClient, logg)
		sinks = append(sinks, audit.NewStoreSink(dbClient, logg))
	} else {
		if redisCl == nil {
			return nil, fmt.Errorf("%s=%s needs %s", config.EnvStoreDriver, config.StoreDriverRedis, config.EnvRedisURL)
		}
		d.store = kvstore.New(redisCl, logg)
	}
	// The store owns the db handle and must close before redis.
	closers = append([]func(context.Context) error{func(context.Context) error { return d.store.Close() }}, closers...)

	if cfg.Sync.DistributedLk && redisCl != nil {
		lock, err := syncer.NewRedisLock(redisCl, cfg.Sync.LockTTL)
		if err != nil {
			return nil, multierr.Append(err, runClosers(ctx, closers))
		}
		d.lock = lock
	}

	client, err := remote.NewHTTPClient(cfg.Remote.BaseURL,
		remote.WithTimeout(cfg.Remote.RequestTimeout),
		remote.WithLogger(logg),
	)
	if err != nil {
		return nil, multierr.Append(err, runClosers(ctx, closers))
	}
	d.remote = client
	d.health = remote.NewHealthCheck(cfg.Remote.BaseURL, cfg.Remote.HealthTimeout, nil)

	async := audit.NewAsyncSink(sinks, cfg.Transmission.AuditBuffer, logg)
	d.audit = async
	// Drain audit events before the store goes away.
	closers = append([]func(context.Context) error{async.Close}, closers...)

	a, err := assemble(cfg, logg, d)
	if err != nil {
		return nil, multierr.Append(err, runClosers(ctx, closers))
	}
	a.closers = closers
	return a, nil
}

// assemble wires services on top of deps.
func assemble(cfg *config.Config, logg *logger.Logger, d deps) (*app, error) {
	reg := prometheus.NewRegistry()

	syncSvc, err := syncer.NewService(syncer.ServiceParams{
		Store:        d.store,
		Remote:       d.remote,
		Lock:         d.lock,
		Metrics:      metrics.NewSyncMetrics(reg),
		Logger:       logg,
		FetchTimeout: cfg.Sync.FetchTimeout,
	})
	if err != nil {
		return nil, err
	}

	transmitSvc, err := transmission.NewService(transmission.ServiceParams{
		Store:        d.store,
		Remote:       d.remote,
		Audit:        d.audit,
		Metrics:      metrics.NewTransmitMetrics(reg),
		Logger:       logg,
		BatchTimeout: cfg.Transmission.BatchTimeout,
	})
	if err != nil {
		return nil, err
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Store:  d.store,
		Audit:  d.audit,
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logg:     logg,
		store:    d.store,
		remote:   d.remote,
		health:   d.health,
		registry: reg,
		syncer:   syncSvc,
		transmit: transmitSvc,
		orders:   orderSvc,
	}, nil
}

// Close releases resources in registration order.
func (a *app) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	return runClosers(ctx, a.closers)
}

func runClosers(ctx context.Context, closers []func(context.Context) error) error {
	var err error
	for _, c := range closers {
		err = multierr.Append(err, c(ctx))
	}
	return err
}
