package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop/internal/domain/member"
	"github.com/xenking/shop/internal/domain/order"
)

const dialectPostgres = "postgres"

const (
	insertOrderSQL = `INSERT INTO orders (id, member_id, status, order_date)
		VALUES ($1, $2, $3, $4)`

	insertDeliverySQL = `INSERT INTO deliveries (id, order_id, city, street, zipcode, status)
		VALUES ($1, $2, $3, $4, $5, $6)`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, item_id, position, order_price, count, cancelled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	updateOrderStatusSQL    = `UPDATE orders SET status = $2 WHERE id = $1`
	updateDeliveryStatusSQL = `UPDATE deliveries SET status = $2 WHERE order_id = $1`
	updateOrderItemSQL      = `UPDATE order_items SET cancelled = $2 WHERE id = $1`

	selectOrderSQL = `SELECT o.id, o.member_id, o.status, o.order_date,
		d.id, d.city, d.street, d.zipcode, d.status
		FROM orders o LEFT JOIN deliveries d ON d.order_id = o.id`

	getOrderByIDSQL  = selectOrderSQL + ` WHERE o.id = $1`
	lockOrderByIDSQL = selectOrderSQL + ` WHERE o.id = $1 FOR UPDATE OF o`

	linesByOrderIDsSQL = `SELECT id, order_id, item_id, order_price, count, cancelled
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`
)

var orderColumns = []any{
	"o.id", "o.member_id", "o.status", "o.order_date",
	"d.id", "d.city", "d.street", "d.zipcode", "d.status",
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. An order
// spans the orders, deliveries and order_items tables; callers needing
// atomic writes use it through Store.WithinTx.
type OrderRepository struct {
	q querier
}

// Create persists a new order together with its delivery and lines.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	batch := &pgx.Batch{}
	batch.Queue(insertOrderSQL, o.ID, o.MemberID, string(o.Status()), o.OrderDate)
	if d := o.Delivery; d != nil {
		batch.Queue(insertDeliverySQL,
			d.ID, o.ID, d.Address.City, d.Address.Street, d.Address.Zipcode, string(d.Status),
		)
	}
	for i, line := range o.Items {
		batch.Queue(insertOrderItemSQL,
			line.ID, o.ID, line.ItemID, i, line.OrderPrice, line.Count, line.Cancelled(),
		)
	}
	if err := r.q.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Update writes the mutable state: order status, delivery status and line
// cancellation flags.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := r.q.Exec(ctx, updateOrderStatusSQL, o.ID, string(o.Status()))
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}

	batch := &pgx.Batch{}
	if o.Delivery != nil {
		batch.Queue(updateDeliveryStatusSQL, o.ID, string(o.Delivery.Status))
	}
	for _, line := range o.Items {
		batch.Queue(updateOrderItemSQL, line.ID, line.Cancelled())
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := r.q.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns the order with its delivery and lines.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// LockByID is GetByID holding a row lock on the order until the transaction
// ends.
func (r *OrderRepository) LockByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, lockOrderByIDSQL, id)
}

// ListByMember returns the member's orders, newest first.
func (r *OrderRepository) ListByMember(ctx context.Context, memberID string) ([]*order.Order, error) {
	return r.Search(ctx, order.Filter{MemberID: memberID})
}

// Search returns orders matching f, newest first.
func (r *OrderRepository) Search(ctx context.Context, f order.Filter) ([]*order.Order, error) {
	query, args, err := buildSearchQuery(f)
	if err != nil {
		return nil, errors.Wrap(err, "build search query")
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrderHead)
	if err != nil {
		return nil, fmt.Errorf("searching orders: %w", err)
	}
	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}

	result := make([]*order.Order, len(orders))
	for i, h := range orders {
		result[i] = h.build()
	}
	return result, nil
}

func buildSearchQuery(f order.Filter) (string, []any, error) {
	ds := goqu.Dialect(dialectPostgres).
		From(goqu.T("orders").As("o")).
		LeftJoin(goqu.T("deliveries").As("d"), goqu.On(goqu.I("d.order_id").Eq(goqu.I("o.id")))).
		Select(orderColumns...).
		Order(goqu.I("o.order_date").Desc(), goqu.I("o.id").Asc()).
		Prepared(true)

	if f.MemberID != "" {
		ds = ds.Where(goqu.I("o.member_id").Eq(f.MemberID))
	}
	if f.Status != "" {
		ds = ds.Where(goqu.I("o.status").Eq(string(f.Status)))
	}
	if f.Limit > 0 {
		ds = ds.Limit(uint(f.Limit))
	}
	return ds.ToSQL()
}

func (r *OrderRepository) getOne(ctx context.Context, query, id string) (*order.Order, error) {
	rows, err := r.q.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	h, err := pgx.CollectExactlyOneRow(rows, scanOrderHead)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	if err := r.attachLines(ctx, []*orderHead{h}); err != nil {
		return nil, err
	}
	return h.build(), nil
}

// attachLines loads the lines of every order in one query.
func (r *OrderRepository) attachLines(ctx context.Context, heads []*orderHead) error {
	if len(heads) == 0 {
		return nil
	}
	byID := make(map[string]*orderHead, len(heads))
	ids := make([]string, len(heads))
	for i, h := range heads {
		byID[h.id] = h
		ids[i] = h.id
	}

	rows, err := r.q.Query(ctx, linesByOrderIDsSQL, ids)
	if err != nil {
		return fmt.Errorf("loading order lines: %w", err)
	}
	lines, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return fmt.Errorf("loading order lines: %w", err)
	}
	for _, line := range lines {
		if h, ok := byID[line.OrderID]; ok {
			h.lines = append(h.lines, line)
		}
	}
	return nil
}

// orderHead is an orders row joined with its delivery, before lines are
// attached.
type orderHead struct {
	id        string
	memberID  string
	status    string
	orderDate time.Time
	delivery  *order.Delivery
	lines     []*order.OrderItem
}

func (h *orderHead) build() *order.Order {
	lines := h.lines
	if lines == nil {
		lines = []*order.OrderItem{}
	}
	return order.RestoreOrder(h.id, h.memberID, order.Status(h.status), h.orderDate, h.delivery, lines)
}

func scanOrderHead(row pgx.CollectableRow) (*orderHead, error) {
	var (
		h                                      orderHead
		deliveryID, city, street, zip, dstatus *string
	)
	err := row.Scan(
		&h.id, &h.memberID, &h.status, &h.orderDate,
		&deliveryID, &city, &street, &zip, &dstatus,
	)
	if err != nil {
		return nil, err
	}
	if deliveryID != nil {
		h.delivery = &order.Delivery{
			ID:      *deliveryID,
			Address: member.NewAddress(deref(city), deref(street), deref(zip)),
			Status:  order.DeliveryStatus(deref(dstatus)),
		}
	}
	return &h, nil
}

func scanOrderItem(row pgx.CollectableRow) (*order.OrderItem, error) {
	var (
		id, orderID, itemID string
		price               decimal.Decimal
		count               int
		cancelled           bool
	)
	if err := row.Scan(&id, &orderID, &itemID, &price, &count, &cancelled); err != nil {
		return nil, err
	}
	return order.RestoreOrderItem(id, orderID, itemID, price, count, cancelled), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
