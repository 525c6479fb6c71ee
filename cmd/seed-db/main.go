package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/shop/internal/domain/auth"
	"github.com/xenking/shop/internal/domain/item"
	"github.com/xenking/shop/internal/storage/postgres"
)

const defaultKeyID = "default"

func main() {
	var (
		databaseURL  string
		itemsFile    string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&itemsFile, "items-file", "db/seed/items.json", "path to items JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_AUTH_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if apiKey == "" {
		apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_AUTH_API_KEY_PEPPER")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		if apiKey == "" {
			return errors.New("API key is required: set --api-key or SHOP_SEED_API_KEY")
		}
		if err := run(ctx, lg, databaseURL, itemsFile, apiKey, apiKeyPepper); err != nil {
			return errors.Wrap(err, "seed")
		}
		lg.Info("Seed completed")
		return nil
	})
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, itemsFile, apiKey, pepper string) error {
	lg.Info("Connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := postgres.NewStore(pool)

	if err := seedItems(ctx, lg, store.Items(), itemsFile); err != nil {
		return errors.Wrap(err, "seed items")
	}
	if err := seedAPIKey(ctx, lg, store.APIKeys(), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

// seedItems creates every catalog entry of the file that is not stored yet.
// Existing items keep their current stock.
func seedItems(ctx context.Context, lg *zap.Logger, items item.Repository, path string) error {
	lg.Info("Reading items file", zap.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read items file")
	}
	seeds, err := parseItems(data)
	if err != nil {
		return errors.Wrap(err, "parse items file")
	}

	now := time.Now().UTC()
	var created int
	for _, s := range seeds {
		_, err := items.GetByID(ctx, s.ID)
		switch {
		case err == nil:
			lg.Debug("Item exists, skipping", zap.String("id", s.ID))
			continue
		case !errors.Is(err, item.ErrNotFound):
			return errors.Wrapf(err, "get item %s", s.ID)
		}

		if err := items.Create(ctx, item.Restore(s.ID, s.Name, s.Price, s.Stock, now)); err != nil {
			return errors.Wrapf(err, "create item %s", s.ID)
		}
		created++
		lg.Info("Created item",
			zap.String("id", s.ID),
			zap.String("name", s.Name),
			zap.Int("stock", s.Stock),
		)
	}

	lg.Info("Items seeded", zap.Int("total", len(seeds)), zap.Int("created", created))
	return nil
}

func seedAPIKey(ctx context.Context, lg *zap.Logger, keys auth.Repository, apiKey, pepper string) error {
	if err := keys.Upsert(ctx, auth.APIKeyInfo{
		ID:      defaultKeyID,
		KeyHash: auth.Hash([]byte(pepper), apiKey),
		Name:    "Default key",
		Scopes:  auth.AllScopes,
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	lg.Info("Upserted API key",
		zap.String("id", defaultKeyID),
		zap.Strings("scopes", auth.AllScopes),
	)
	return nil
}
