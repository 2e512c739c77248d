package commands

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/wp-orm/wpmeta/internal/cli/config"
	"github.com/wp-orm/wpmeta/internal/logging"
	"github.com/wp-orm/wpmeta/internal/orm/meta"
	"github.com/wp-orm/wpmeta/internal/store/instrument"
	"github.com/wp-orm/wpmeta/internal/store/rediscache"
	"github.com/wp-orm/wpmeta/internal/store/sqlstore"
)

// app is the set of dependencies a command runs against
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *sql.DB
	dialect  sqlstore.Dialect
	store    meta.Store
	rows     *sqlstore.Rows
	metrics  *instrument.Metrics
	registry *prometheus.Registry

	closers []func() error
}

// open loads the configuration and connects the stores. The meta store
// chain is SQL, then the Redis cache when configured, then metrics.
func (o *rootOptions) open(ctx context.Context) (*app, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) connect(ctx context.Context) error {
	db, dialect, err := sqlstore.Open(ctx, a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		return err
	}
	a.db, a.dialect = db, dialect
	a.closers = append(a.closers, db.Close)

	metaStore, err := sqlstore.NewMetaStore(db, dialect, a.cfg.Database.TablePrefix)
	if err != nil {
		return err
	}
	a.rows, err = sqlstore.NewRows(db, dialect, a.cfg.Database.TablePrefix)
	if err != nil {
		return err
	}

	var store meta.Store = metaStore
	if addr := a.cfg.Cache.RedisAddr; addr != "" {
		client, err := rediscache.Dial(ctx, addr)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)
		store = rediscache.New(store, client, rediscache.Config{
			Prefix: a.cfg.Cache.Prefix,
			TTL:    a.cfg.Cache.TTL,
		}, a.logger)
		a.logger.Debug("redis cache enabled", zap.String("addr", addr))
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = instrument.NewMetrics(a.registry)
	a.store = instrument.Wrap(store, a.metrics)

	a.logger.Debug("stores connected",
		zap.String("driver", a.cfg.Database.Driver),
		zap.String("table_prefix", a.cfg.Database.TablePrefix),
	)
	return nil
}

// Close releases connections in reverse order of opening
func (a *app) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close: %w", err)
		}
	}
	a.closers = nil
	a.logger.Sync()
	return firstErr
}
