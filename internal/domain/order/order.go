package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop/internal/domain/item"
	"github.com/xenking/shop/internal/domain/member"
)

// Status is the lifecycle state of an order.
type Status string

const (
	// StatusPlaced is the initial and only non-terminal state.
	StatusPlaced Status = "PLACED"
	// StatusCancelled is terminal.
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus validates a wire representation of Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPlaced, StatusCancelled:
		return st, nil
	default:
		return "", errors.Errorf("unknown order status %q", s)
	}
}

// Sentinel errors for order lifecycle rules.
var (
	ErrNotFound                  = errors.New("order not found")
	ErrEmptyItems                = errors.New("items required")
	ErrAlreadyDelivered          = errors.New("order already delivered, cancellation is not possible")
	ErrAlreadyCancelled          = errors.New("order already cancelled")
	ErrInvalidDeliveryTransition = errors.New("invalid delivery status transition")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ItemID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for item %s", e.ItemID)
}

// Order is the aggregate root owning a delivery and its line entries.
type Order struct {
	ID        string
	MemberID  string
	Delivery  *Delivery
	Items     []*OrderItem
	OrderDate time.Time

	status Status
}

// NewOrder creates a PLACED order for the member with the given delivery and
// lines. Lines must come from NewOrderItem so that stock is already debited.
func NewOrder(memberID string, delivery *Delivery, lines ...*OrderItem) *Order {
	o := &Order{
		ID:        uuid.New().String(),
		MemberID:  memberID,
		Delivery:  delivery,
		Items:     make([]*OrderItem, 0, len(lines)),
		OrderDate: time.Now().UTC(),
		status:    StatusPlaced,
	}
	for _, line := range lines {
		o.addOrderItem(line)
	}
	return o
}

// RestoreOrder rebuilds an order loaded from storage.
func RestoreOrder(id, memberID string, status Status, orderDate time.Time, delivery *Delivery, lines []*OrderItem) *Order {
	return &Order{
		ID:        id,
		MemberID:  memberID,
		Delivery:  delivery,
		Items:     lines,
		OrderDate: orderDate,
		status:    status,
	}
}

func (o *Order) addOrderItem(line *OrderItem) {
	line.OrderID = o.ID
	o.Items = append(o.Items, line)
}

// Status returns the lifecycle state.
func (o *Order) Status() Status {
	return o.status
}

// ItemIDs returns the distinct item ids referenced by the order's lines.
func (o *Order) ItemIDs() []string {
	seen := make(map[string]struct{}, len(o.Items))
	ids := make([]string, 0, len(o.Items))
	for _, line := range o.Items {
		if _, ok := seen[line.ItemID]; ok {
			continue
		}
		seen[line.ItemID] = struct{}{}
		ids = append(ids, line.ItemID)
	}
	return ids
}

// Cancel moves the order to CANCELLED and credits every line's quantity back
// to its item. items must hold every item referenced by the order. Nothing is
// changed when a precondition fails.
func (o *Order) Cancel(items map[string]*item.Item) error {
	if o.Delivery != nil && o.Delivery.Status == DeliveryCompleted {
		return ErrAlreadyDelivered
	}
	if o.status == StatusCancelled {
		return ErrAlreadyCancelled
	}
	for _, line := range o.Items {
		if _, ok := items[line.ItemID]; !ok {
			return fmt.Errorf("item %s: %w", line.ItemID, item.ErrNotFound)
		}
	}

	o.status = StatusCancelled
	for _, line := range o.Items {
		if err := line.Cancel(items[line.ItemID]); err != nil {
			return errors.Wrapf(err, "cancel line %s", line.ID)
		}
	}
	return nil
}

// AdvanceDelivery moves the delivery forward to status.
func (o *Order) AdvanceDelivery(status DeliveryStatus) error {
	if o.status == StatusCancelled {
		return ErrAlreadyCancelled
	}
	if o.Delivery == nil {
		return errors.Wrap(ErrInvalidDeliveryTransition, "order has no delivery")
	}
	return o.Delivery.advance(status)
}

// TotalPrice is the sum of every line's total. An order without lines costs
// zero.
func (o *Order) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Items {
		total = total.Add(line.TotalPrice())
	}
	return total
}

// OrderItem is one item/price/quantity entry of an order.
type OrderItem struct {
	ID         string
	OrderID    string
	ItemID     string
	OrderPrice decimal.Decimal
	Count      int

	cancelled bool
}

// NewOrderItem captures the unit price and quantity for it and debits the
// item's stock. No line is returned when the stock cannot cover count.
func NewOrderItem(it *item.Item, orderPrice decimal.Decimal, count int) (*OrderItem, error) {
	if count <= 0 {
		return nil, &InvalidQuantityError{ItemID: it.ID}
	}
	if err := it.RemoveStock(count); err != nil {
		return nil, err
	}
	return &OrderItem{
		ID:         uuid.New().String(),
		ItemID:     it.ID,
		OrderPrice: orderPrice,
		Count:      count,
	}, nil
}

// RestoreOrderItem rebuilds a line loaded from storage.
func RestoreOrderItem(id, orderID, itemID string, orderPrice decimal.Decimal, count int, cancelled bool) *OrderItem {
	return &OrderItem{
		ID:         id,
		OrderID:    orderID,
		ItemID:     itemID,
		OrderPrice: orderPrice,
		Count:      count,
		cancelled:  cancelled,
	}
}

// Cancelled reports whether the line already returned its stock.
func (l *OrderItem) Cancelled() bool {
	return l.cancelled
}

// Cancel credits the line's quantity back to it. Repeated calls are no-ops.
func (l *OrderItem) Cancel(it *item.Item) error {
	if l.cancelled {
		return nil
	}
	if it.ID != l.ItemID {
		return errors.Errorf("line %s references item %s, got %s", l.ID, l.ItemID, it.ID)
	}
	if err := it.AddStock(l.Count); err != nil {
		return err
	}
	l.cancelled = true
	return nil
}

// TotalPrice is OrderPrice × Count.
func (l *OrderItem) TotalPrice() decimal.Decimal {
	return l.OrderPrice.Mul(decimal.NewFromInt(int64(l.Count)))
}

// Filter narrows Search results. Zero values mean no constraint.
type Filter struct {
	MemberID string
	Status   Status
	Limit    int
}

// Repository defines persistence operations for orders. Create and Update
// write the delivery and lines together with the order.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Update(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// LockByID loads the order and holds it exclusively until the
	// surrounding transaction ends.
	LockByID(ctx context.Context, id string) (*Order, error)
	ListByMember(ctx context.Context, memberID string) ([]*Order, error)
	Search(ctx context.Context, f Filter) ([]*Order, error)
}

// Tx exposes the repositories taking part in one unit of work.
type Tx interface {
	Members() member.Repository
	Items() item.Repository
	Orders() Repository
}

// Transactor runs fn in a single transaction. Every change made through tx
// is committed when fn returns nil and discarded otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
