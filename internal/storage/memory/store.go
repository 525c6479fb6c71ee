// Package memory provides an in-process transactional store implementing the
// domain repositories. It backs local runs without a database and the
// service-level tests.
//
// Every operation, including a whole transaction, runs under a single store
// mutex. Transactions work on a shallow copy of the state maps and swap it in
// on commit; stored entities are never mutated in place, so discarding the
// copy rolls back every change.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/xenking/shop/internal/domain/auth"
	"github.com/xenking/shop/internal/domain/item"
	"github.com/xenking/shop/internal/domain/member"
	"github.com/xenking/shop/internal/domain/order"
)

var (
	_ order.Transactor = (*Store)(nil)
	_ item.Transactor  = (*Store)(nil)
)

type state struct {
	members map[string]member.Member
	items   map[string]item.Item
	orders  map[string]*order.Order
	apiKeys map[string]auth.APIKeyInfo
}

func newState() *state {
	return &state{
		members: make(map[string]member.Member),
		items:   make(map[string]item.Item),
		orders:  make(map[string]*order.Order),
		apiKeys: make(map[string]auth.APIKeyInfo),
	}
}

func (s *state) clone() *state {
	return &state{
		members: maps.Clone(s.members),
		items:   maps.Clone(s.items),
		orders:  maps.Clone(s.orders),
		apiKeys: maps.Clone(s.apiKeys),
	}
}

// viewFunc grants exclusive access to a state for the duration of fn.
type viewFunc func(fn func(st *state) error) error

// Store is the in-memory store.
type Store struct {
	mu sync.Mutex
	st *state
}

// New returns an empty Store.
func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) view(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// Members returns the member repository over committed state.
func (s *Store) Members() member.Repository { return memberRepo{view: s.view} }

// Items returns the item repository over committed state.
func (s *Store) Items() item.Repository { return itemRepo{view: s.view} }

// Orders returns the order repository over committed state.
func (s *Store) Orders() order.Repository { return orderRepo{view: s.view} }

// APIKeys returns the API key repository.
func (s *Store) APIKeys() auth.Repository { return apiKeyRepo{view: s.view} }

// WithinTx implements order.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	staged := s.st.clone()
	if err := fn(ctx, txView{st: staged}); err != nil {
		return err
	}
	s.st = staged
	return nil
}

// InItemsTx implements item.Transactor.
func (s *Store) InItemsTx(ctx context.Context, fn func(ctx context.Context, items item.Repository) error) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx order.Tx) error {
		return fn(ctx, tx.Items())
	})
}

// txView binds repositories to a staged state. The store mutex is already
// held by WithinTx.
type txView struct {
	st *state
}

func (t txView) view(fn func(st *state) error) error { return fn(t.st) }

func (t txView) Members() member.Repository { return memberRepo{view: t.view} }
func (t txView) Items() item.Repository     { return itemRepo{view: t.view} }
func (t txView) Orders() order.Repository   { return orderRepo{view: t.view} }
