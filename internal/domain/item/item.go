package item

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested item does not exist.
	ErrNotFound = errors.New("item not found")
	// ErrInsufficientStock matches every *InsufficientStockError.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidQuantity is returned for non-positive stock adjustments.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	// ErrInvalidItem is returned when item attributes fail validation.
	ErrInvalidItem = errors.New("invalid item")
	// ErrStockLimit matches every *StockLimitError.
	ErrStockLimit = errors.New("stock limit exceeded")
)

// MaxStock is the largest quantity an item can hold. It matches the INTEGER
// stock column.
const MaxStock = 1<<31 - 1

// MaxPrice bounds prices from above, exclusive. Prices carry at most two
// decimal places, matching the NUMERIC(12,2) price column.
var MaxPrice = decimal.New(1, 10)

// StockLimitError indicates that a stock increment would exceed MaxStock.
type StockLimitError struct {
	ItemID    string
	Requested int
	Available int
}

func (e *StockLimitError) Error() string {
	return fmt.Sprintf("stock limit exceeded for item %s: adding %d to %d exceeds %d",
		e.ItemID, e.Requested, e.Available, MaxStock)
}

// Is reports whether target is ErrStockLimit.
func (e *StockLimitError) Is(target error) bool {
	return target == ErrStockLimit
}

// InsufficientStockError indicates that a stock decrement would drive the
// item's quantity below zero.
type InsufficientStockError struct {
	ItemID    string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: requested %d, available %d",
		e.ItemID, e.Requested, e.Available)
}

// Is reports whether target is ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Item is a sellable catalog entry together with its stock ledger.
type Item struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	CreatedAt time.Time

	stock int
}

// New validates the attributes and returns an item with a fresh identity.
func New(name string, price decimal.Decimal, stock int) (*Item, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return nil, errors.Wrap(ErrInvalidItem, "name required")
	case price.IsNegative():
		return nil, errors.Wrap(ErrInvalidItem, "price must not be negative")
	case price.GreaterThanOrEqual(MaxPrice):
		return nil, errors.Wrapf(ErrInvalidItem, "price must be less than %s", MaxPrice)
	case !price.Equal(price.Round(2)):
		return nil, errors.Wrap(ErrInvalidItem, "price must have at most 2 decimal places")
	case stock < 0:
		return nil, errors.Wrap(ErrInvalidItem, "stock must not be negative")
	case stock > MaxStock:
		return nil, errors.Wrapf(ErrInvalidItem, "stock must not exceed %d", MaxStock)
	}
	return &Item{
		ID:        uuid.New().String(),
		Name:      name,
		Price:     price,
		CreatedAt: time.Now().UTC(),
		stock:     stock,
	}, nil
}

// Restore rebuilds an item loaded from storage.
func Restore(id, name string, price decimal.Decimal, stock int, createdAt time.Time) *Item {
	return &Item{
		ID:        id,
		Name:      name,
		Price:     price,
		CreatedAt: createdAt,
		stock:     stock,
	}
}

// Stock returns the available quantity.
func (i *Item) Stock() int {
	return i.stock
}

// RemoveStock decrements the available quantity. The ledger is left
// untouched when quantity exceeds the current stock.
func (i *Item) RemoveStock(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > i.stock {
		return &InsufficientStockError{
			ItemID:    i.ID,
			Requested: quantity,
			Available: i.stock,
		}
	}
	i.stock -= quantity
	return nil
}

// AddStock increments the available quantity. The ledger is left untouched
// when the result would exceed MaxStock.
func (i *Item) AddStock(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > MaxStock-i.stock {
		return &StockLimitError{
			ItemID:    i.ID,
			Requested: quantity,
			Available: i.stock,
		}
	}
	i.stock += quantity
	return nil
}

// Repository defines persistence operations for items.
type Repository interface {
	Create(ctx context.Context, it *Item) error
	GetByID(ctx context.Context, id string) (*Item, error)
	GetByIDs(ctx context.Context, ids []string) ([]Item, error)
	List(ctx context.Context) ([]Item, error)
	// LockByIDs loads the given items and holds them exclusively until the
	// surrounding transaction ends. Unknown ids are omitted from the result.
	LockByIDs(ctx context.Context, ids []string) ([]*Item, error)
	// SaveStock persists the stock quantity of each item.
	SaveStock(ctx context.Context, items ...*Item) error
}

// Transactor runs fn inside one transaction whose Repository observes and
// locks a consistent view of the items.
type Transactor interface {
	InItemsTx(ctx context.Context, fn func(ctx context.Context, items Repository) error) error
}
