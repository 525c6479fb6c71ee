package main

import (
	"bufio"
	"context"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/shop/internal/domain/item"
)

const (
	bloomFPR      = 0.001
	progressEvery = 1_000_000
)

// Ingester applies restock files to the catalog. Each line of a file is
// "item_id,quantity"; blank lines and lines starting with '#' are ignored.
type Ingester struct {
	Items  item.Repository
	Tx     item.Transactor
	Logger *zap.Logger
	// DryRun stops after aggregation.
	DryRun bool
}

// Result summarizes one ingest run.
type Result struct {
	// Restocked is the number of distinct items whose stock grew.
	Restocked int
	Units     int64
	// Unknown counts lines naming items missing from the catalog.
	Unknown   int64
	Malformed int64
}

// fileTotals holds the per-item quantities found in a single file.
type fileTotals struct {
	quantities map[string]int64
	unknown    int64
	malformed  int64
}

// Run scans files concurrently and adds the summed quantities to stock in a
// single transaction. Nothing is written when any file fails.
func (g *Ingester) Run(ctx context.Context, files []string) (Result, error) {
	lg := g.logger()

	catalog, err := g.Items.List(ctx)
	if err != nil {
		return Result{}, errors.Wrap(err, "list items")
	}
	known := bloom.NewWithEstimates(uint(max(len(catalog), 1)), bloomFPR)
	for _, it := range catalog {
		known.AddString(it.ID)
	}
	lg.Info("Catalog loaded", zap.Int("items", len(catalog)))

	totals, err := scanFiles(ctx, lg, files, known)
	if err != nil {
		return Result{}, err
	}

	res := Result{}
	merged := make(map[string]int64)
	for _, t := range totals {
		res.Unknown += t.unknown
		res.Malformed += t.malformed
		for id, q := range t.quantities {
			merged[id] += q
		}
	}
	if len(merged) == 0 || g.DryRun {
		for _, q := range merged {
			res.Units += q
		}
		res.Restocked = len(merged)
		return res, nil
	}

	applied, err := g.apply(ctx, merged)
	if err != nil {
		return Result{}, err
	}
	res.Restocked = len(applied)
	for _, q := range applied {
		res.Units += q
	}
	// Bloom false positives surface here as ids the transaction did not find.
	for id, q := range merged {
		if _, ok := applied[id]; !ok {
			lg.Warn("Skipping unknown item", zap.String("item_id", id), zap.Int64("quantity", q))
			res.Unknown++
		}
	}
	return res, nil
}

func (g *Ingester) apply(ctx context.Context, totals map[string]int64) (map[string]int64, error) {
	ids := make([]string, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	applied := make(map[string]int64, len(ids))
	err := g.Tx.InItemsTx(ctx, func(ctx context.Context, items item.Repository) error {
		clear(applied)
		locked, err := items.LockByIDs(ctx, ids)
		if err != nil {
			return errors.Wrap(err, "lock items")
		}
		for _, it := range locked {
			q := totals[it.ID]
			if q > item.MaxStock {
				return errors.Wrapf(item.ErrStockLimit, "item %s: restock of %d", it.ID, q)
			}
			if err := it.AddStock(int(q)); err != nil {
				return errors.Wrapf(err, "restock item %s", it.ID)
			}
			applied[it.ID] = q
		}
		return items.SaveStock(ctx, locked...)
	})
	if err != nil {
		return nil, errors.Wrap(err, "apply restock")
	}
	return applied, nil
}

func (g *Ingester) logger() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

func scanFiles(ctx context.Context, lg *zap.Logger, files []string, known *bloom.BloomFilter) ([]fileTotals, error) {
	totals := make([]fileTotals, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			t, err := scanFile(ctx, lg, path, known)
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			totals[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return totals, nil
}

func scanFile(ctx context.Context, lg *zap.Logger, path string, known *bloom.BloomFilter) (fileTotals, error) {
	t := fileTotals{quantities: make(map[string]int64)}
	var lines uint64

	err := streamGzFile(ctx, path, func(line string) {
		lines++
		if lines%progressEvery == 0 {
			lg.Info("Scan progress", zap.String("file", path), zap.Uint64("lines", lines))
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			return
		}
		id, q, ok := parseLine(line)
		if !ok {
			t.malformed++
			return
		}
		if !known.TestString(id) {
			t.unknown++
			return
		}
		t.quantities[id] += q
	})
	if err != nil {
		return fileTotals{}, err
	}

	lg.Info("Scanned file",
		zap.String("file", path),
		zap.Uint64("lines", lines),
		zap.Int("items", len(t.quantities)),
		zap.Int64("unknown", t.unknown),
		zap.Int64("malformed", t.malformed),
	)
	return t, nil
}

// parseLine splits "item_id,quantity". The quantity must be positive.
func parseLine(line string) (string, int64, bool) {
	id, qty, ok := strings.Cut(line, ",")
	if !ok {
		return "", 0, false
	}
	id = strings.TrimSpace(id)
	q, err := strconv.ParseInt(strings.TrimSpace(qty), 10, 32)
	if id == "" || err != nil || q <= 0 {
		return "", 0, false
	}
	return id, q, true
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
