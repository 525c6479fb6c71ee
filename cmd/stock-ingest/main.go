package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/shop/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		dryRun      bool
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing gzip restock files")
	flag.StringVar(&pattern, "pattern", "restock*.gz", "glob selecting restock files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "aggregate and report without touching stock")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		files, err := filepath.Glob(filepath.Join(dataDir, pattern))
		if err != nil {
			return errors.Wrap(err, "match restock files")
		}
		if len(files) == 0 {
			return errors.Errorf("no files match %s in %s", pattern, dataDir)
		}

		lg.Info("Connecting to database")
		pool, err := postgres.NewPool(ctx, databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()

		store := postgres.NewStore(pool)
		ing := &Ingester{
			Items:  store.Items(),
			Tx:     store,
			Logger: lg,
			DryRun: dryRun,
		}
		res, err := ing.Run(ctx, files)
		if err != nil {
			return errors.Wrap(err, "stock ingest")
		}

		lg.Info("Stock ingest completed",
			zap.Int("files", len(files)),
			zap.Int("items", res.Restocked),
			zap.Int64("units", res.Units),
			zap.Int64("unknown_lines", res.Unknown),
			zap.Int64("malformed_lines", res.Malformed),
		)
		return nil
	})
}
