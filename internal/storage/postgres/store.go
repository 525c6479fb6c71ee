// Package postgres implements the domain repositories on PostgreSQL with
// hand-written SQL over pgx.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shop/internal/domain/auth"
	"github.com/xenking/shop/internal/domain/item"
	"github.com/xenking/shop/internal/domain/member"
	"github.com/xenking/shop/internal/domain/order"
)

var (
	_ order.Transactor = (*Store)(nil)
	_ item.Transactor  = (*Store)(nil)
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every
// repository runs unchanged inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store groups the repositories over one pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store that uses the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Members returns the member repository.
func (s *Store) Members() member.Repository { return &MemberRepository{q: s.pool} }

// Items returns the item repository.
func (s *Store) Items() item.Repository { return &ItemRepository{q: s.pool} }

// Orders returns the order repository.
func (s *Store) Orders() order.Repository { return &OrderRepository{q: s.pool} }

// APIKeys returns the API key repository.
func (s *Store) APIKeys() auth.Repository { return &APIKeyRepository{q: s.pool} }

// WithinTx implements order.Transactor. The transaction is committed when fn
// returns nil and rolled back otherwise.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, txRepos{q: tx})
	})
}

// InItemsTx implements item.Transactor.
func (s *Store) InItemsTx(ctx context.Context, fn func(ctx context.Context, items item.Repository) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &ItemRepository{q: tx})
	})
}

type txRepos struct {
	q pgx.Tx
}

func (t txRepos) Members() member.Repository { return &MemberRepository{q: t.q} }
func (t txRepos) Items() item.Repository     { return &ItemRepository{q: t.q} }
func (t txRepos) Orders() order.Repository   { return &OrderRepository{q: t.q} }
