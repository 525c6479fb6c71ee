package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shop/internal/domain/auth"
	"github.com/xenking/shop/internal/domain/item"
	"github.com/xenking/shop/internal/domain/member"
	"github.com/xenking/shop/internal/domain/order"
	"github.com/xenking/shop/internal/storage/memory"
	"github.com/xenking/shop/internal/storage/postgres"
	"github.com/xenking/shop/pkg/health"
)

// store is implemented by both storage backends.
type store interface {
	order.Transactor
	item.Transactor
	Members() member.Repository
	Items() item.Repository
	Orders() order.Repository
	APIKeys() auth.Repository
}

var (
	_ store = (*postgres.Store)(nil)
	_ store = (*memory.Store)(nil)
)

// openStore connects the configured backend and registers its readiness
// check. The returned func releases it.
func openStore(ctx context.Context, cfg *Config, h *health.Health) (store, func(), error) {
	switch cfg.Storage {
	case StorageMemory:
		zctx.From(ctx).Warn("Using in-memory storage, data is lost on restart")
		return memory.New(), func() {}, nil
	case StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "run migrations")
		}
		h.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
		return postgres.NewStore(pool), pool.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown storage %q", cfg.Storage)
	}
}

// bootstrapKeys registers the configured keys with every scope, so a fresh
// deployment can be administered before any key is seeded.
func bootstrapKeys(ctx context.Context, keys auth.Repository, cfg AuthConfig) error {
	if !cfg.Enabled {
		return nil
	}
	pepper := []byte(cfg.APIKeyPepper)
	for i, key := range cfg.BootstrapKeys {
		hash := auth.Hash(pepper, key)
		info := auth.APIKeyInfo{
			ID:      "bootstrap-" + hash[:12],
			KeyHash: hash,
			Name:    "bootstrap",
			Scopes:  auth.AllScopes,
		}
		if err := keys.Upsert(ctx, info); err != nil {
			return errors.Wrapf(err, "register bootstrap key %d", i)
		}
	}
	if n := len(cfg.BootstrapKeys); n > 0 {
		zctx.From(ctx).Info("Registered bootstrap API keys", zap.Int("count", n))
	}
	return nil
}
