package cli

import (
	"context"
	"fmt"

	"github.com/warp/stock-engine/config"
	"github.com/warp/stock-engine/inventory"
	"github.com/warp/stock-engine/inventory/store"
	"github.com/warp/stock-engine/lock/distlock"
	"github.com/warp/stock-engine/store/postgres"
	"github.com/warp/stock-engine/store/sqlite"
)

// openStore opens the configured store and runs its migrations. The
// returned func releases it.
func (o *RootOptions) openStore(ctx context.Context) (inventory.TxStore, func(), error) {
	cfg := o.Config
	log := o.Log.WithField("driver", cfg.DBDriver)

	switch cfg.DBDriver {
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("path", cfg.DBPath).Info("store opened")
		return s, func() { s.Close() }, nil

	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		s := postgres.New(pool)
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Info("store opened")
		return s, s.Close, nil

	case config.DriverMemory:
		log.Warn("in-memory store: data is lost on exit")
		return store.NewTxMemory(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown driver %q", cfg.DBDriver)
}

// newLocker returns a Redis locker when REDIS_ADDR is set, else nil, which
// makes the services fall back to an in-process KeyMutex.
func (o *RootOptions) newLocker(ctx context.Context) (inventory.Locker, func(), error) {
	if o.Config.RedisAddr == "" {
		return nil, func() {}, nil
	}
	locker, rdb, err := distlock.Dial(ctx, o.Config.RedisAddr, distlock.Options{TTL: o.Config.LockTTL}, o.Log)
	if err != nil {
		return nil, nil, err
	}
	o.Log.WithField("redis", o.Config.RedisAddr).Info("distributed balance locks enabled")
	return locker, func() { rdb.Close() }, nil
}
