package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop/internal/domain/item"
)

const (
	insertItemSQL = `INSERT INTO items (id, name, price, stock, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	selectItemSQL = `SELECT id, name, price, stock, created_at FROM items`

	getItemByIDSQL   = selectItemSQL + ` WHERE id = $1`
	getItemsByIDsSQL = selectItemSQL + ` WHERE id = ANY($1) ORDER BY id`
	listItemsSQL     = selectItemSQL + ` ORDER BY id`

	// Rows are locked in id order so that concurrent transactions touching
	// overlapping item sets cannot deadlock.
	lockItemsSQL = selectItemSQL + ` WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	updateItemStockSQL = `UPDATE items SET stock = $2 WHERE id = $1`
)

var _ item.Repository = (*ItemRepository)(nil)

// ItemRepository implements item.Repository backed by PostgreSQL.
type ItemRepository struct {
	q querier
}

func (r *ItemRepository) Create(ctx context.Context, it *item.Item) error {
	_, err := r.q.Exec(ctx, insertItemSQL, it.ID, it.Name, it.Price, it.Stock(), it.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating item %q: %w", it.ID, err)
	}
	return nil
}

// GetByID returns a single item by its identifier.
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*item.Item, error) {
	rows, err := r.q.Query(ctx, getItemByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting item %q: %w", id, err)
	}
	it, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, item.ErrNotFound
		}
		return nil, fmt.Errorf("getting item %q: %w", id, err)
	}
	return it, nil
}

// GetByIDs returns items matching any of the given IDs.
func (r *ItemRepository) GetByIDs(ctx context.Context, ids []string) ([]item.Item, error) {
	rows, err := r.q.Query(ctx, getItemsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting items by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanItemValue)
}

// List returns the catalog ordered by ID.
func (r *ItemRepository) List(ctx context.Context) ([]item.Item, error) {
	rows, err := r.q.Query(ctx, listItemsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return pgx.CollectRows(rows, scanItemValue)
}

// LockByIDs selects the items FOR UPDATE. It only holds the locks when the
// repository runs inside a transaction.
func (r *ItemRepository) LockByIDs(ctx context.Context, ids []string) ([]*item.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	rows, err := r.q.Query(ctx, lockItemsSQL, sorted)
	if err != nil {
		return nil, fmt.Errorf("locking items: %w", err)
	}
	return pgx.CollectRows(rows, scanItem)
}

// SaveStock writes the stock of every item in one batch.
func (r *ItemRepository) SaveStock(ctx context.Context, items ...*item.Item) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(updateItemStockSQL, it.ID, it.Stock())
	}
	br := r.q.SendBatch(ctx, batch)
	for _, it := range items {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return fmt.Errorf("saving stock of item %q: %w", it.ID, err)
		}
		if tag.RowsAffected() == 0 {
			_ = br.Close()
			return fmt.Errorf("saving stock of item %q: %w", it.ID, item.ErrNotFound)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("saving stock: %w", err)
	}
	return nil
}

func scanItem(row pgx.CollectableRow) (*item.Item, error) {
	var (
		id, name  string
		price     decimal.Decimal
		stock     int
		createdAt time.Time
	)
	if err := row.Scan(&id, &name, &price, &stock, &createdAt); err != nil {
		return nil, err
	}
	return item.Restore(id, name, price, stock, createdAt), nil
}

func scanItemValue(row pgx.CollectableRow) (item.Item, error) {
	it, err := scanItem(row)
	if err != nil {
		return item.Item{}, err
	}
	return *it, nil
}
