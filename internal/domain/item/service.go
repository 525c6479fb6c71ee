package item

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service manages the item catalog and manual restocking.
type Service struct {
	items Repository
	tx    Transactor
}

// NewService creates an item Service.
func NewService(items Repository, tx Transactor) *Service {
	return &Service{items: items, tx: tx}
}

// Create validates and stores a new item.
func (s *Service) Create(ctx context.Context, name string, price decimal.Decimal, stock int) (*Item, error) {
	it, err := New(name, price, stock)
	if err != nil {
		return nil, err
	}
	if err := s.items.Create(ctx, it); err != nil {
		return nil, errors.Wrap(err, "create item")
	}
	zctx.From(ctx).Info("Item created",
		zap.String("item_id", it.ID),
		zap.String("name", it.Name),
		zap.Int("stock", it.Stock()),
	)
	return it, nil
}

// Get returns the item with the given identity or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Item, error) {
	return s.items.GetByID(ctx, id)
}

// List returns the whole catalog.
func (s *Service) List(ctx context.Context) ([]Item, error) {
	return s.items.List(ctx)
}

// Restock adds quantity units to the item's stock in one transaction and
// returns the updated item.
func (s *Service) Restock(ctx context.Context, id string, quantity int) (*Item, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	var updated *Item
	err := s.tx.InItemsTx(ctx, func(ctx context.Context, items Repository) error {
		locked, err := items.LockByIDs(ctx, []string{id})
		if err != nil {
			return errors.Wrap(err, "lock item")
		}
		if len(locked) == 0 {
			return fmt.Errorf("item %s: %w", id, ErrNotFound)
		}
		it := locked[0]
		if err := it.AddStock(quantity); err != nil {
			return err
		}
		if err := items.SaveStock(ctx, it); err != nil {
			return errors.Wrap(err, "save stock")
		}
		updated = it
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Item restocked",
		zap.String("item_id", id),
		zap.Int("added", quantity),
		zap.Int("stock", updated.Stock()),
	)
	return updated, nil
}
