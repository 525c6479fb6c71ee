package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/shop/internal/domain/item"
	"github.com/xenking/shop/internal/domain/member"
)

const instrumentationName = "github.com/xenking/shop/internal/domain/order"

// LineRequest asks for count units of one item.
type LineRequest struct {
	ItemID string
	Count  int
}

// PlaceRequest holds the input for placing an order.
type PlaceRequest struct {
	MemberID string
	Lines    []LineRequest
	// Address overrides the member's home address for the delivery.
	Address *member.Address
}

// Service encapsulates order placement, cancellation and delivery tracking.
type Service struct {
	tx        Transactor
	orders    Repository
	publisher Publisher
	now       func() time.Time

	tracer    trace.Tracer
	placed    metric.Int64Counter
	cancelled metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock that stamps order dates and event times.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates an order Service. orders serves reads outside of
// transactions; tx serves every mutation.
func NewService(
	tx Transactor,
	orders Repository,
	publisher Publisher,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	opts ...Option,
) (*Service, error) {
	meter := mp.Meter(instrumentationName)
	placed, err := meter.Int64Counter("shop.orders.placed",
		metric.WithDescription("Number of orders placed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create placed counter")
	}
	cancelled, err := meter.Int64Counter("shop.orders.cancelled",
		metric.WithDescription("Number of orders cancelled"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cancelled counter")
	}
	if publisher == nil {
		publisher = NopPublisher{}
	}
	s := &Service{
		tx:        tx,
		orders:    orders,
		publisher: publisher,
		now:       time.Now,
		tracer:    tp.Tracer(instrumentationName),
		placed:    placed,
		cancelled: cancelled,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Place validates the request and, in one transaction, debits stock for
// every line and stores the order. Any failure leaves all stock untouched.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Place",
		trace.WithAttributes(attribute.String("member.id", req.MemberID)),
	)
	defer func() { endSpan(span, rerr) }()

	if len(req.Lines) == 0 {
		return nil, ErrEmptyItems
	}
	ids := make([]string, 0, len(req.Lines))
	seen := make(map[string]struct{}, len(req.Lines))
	for _, l := range req.Lines {
		if l.Count <= 0 {
			return nil, &InvalidQuantityError{ItemID: l.ItemID}
		}
		if _, ok := seen[l.ItemID]; !ok {
			seen[l.ItemID] = struct{}{}
			ids = append(ids, l.ItemID)
		}
	}

	var placed *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		m, err := tx.Members().FindByID(ctx, req.MemberID)
		if err != nil {
			return err
		}

		locked, err := tx.Items().LockByIDs(ctx, ids)
		if err != nil {
			return errors.Wrap(err, "lock items")
		}
		byID := indexItems(locked)

		lines := make([]*OrderItem, 0, len(req.Lines))
		for _, l := range req.Lines {
			it, ok := byID[l.ItemID]
			if !ok {
				return fmt.Errorf("item %s: %w", l.ItemID, item.ErrNotFound)
			}
			line, err := NewOrderItem(it, it.Price, l.Count)
			if err != nil {
				return err
			}
			lines = append(lines, line)
		}

		addr := m.Address
		if req.Address != nil {
			addr = *req.Address
		}
		o := NewOrder(m.ID, NewDelivery(addr), lines...)
		o.OrderDate = s.now().UTC()

		if err := tx.Orders().Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if err := tx.Items().SaveStock(ctx, locked...); err != nil {
			return errors.Wrap(err, "save stock")
		}
		placed = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.placed.Add(ctx, 1)
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", placed.ID),
		zap.String("member_id", placed.MemberID),
		zap.Int("lines", len(placed.Items)),
		zap.Stringer("total", placed.TotalPrice()),
	)
	s.publish(ctx, EventPlaced, placed, placed.OrderDate)
	return placed, nil
}

// Cancel cancels the order and returns every line's stock in one
// transaction.
func (s *Service) Cancel(ctx context.Context, orderID string) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Cancel",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer func() { endSpan(span, rerr) }()

	var cancelled *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		locked, err := tx.Items().LockByIDs(ctx, o.ItemIDs())
		if err != nil {
			return errors.Wrap(err, "lock items")
		}
		if err := o.Cancel(indexItems(locked)); err != nil {
			return err
		}
		if err := tx.Orders().Update(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		if err := tx.Items().SaveStock(ctx, locked...); err != nil {
			return errors.Wrap(err, "save stock")
		}
		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cancelled.Add(ctx, 1)
	zctx.From(ctx).Info("Order cancelled", zap.String("order_id", cancelled.ID))
	s.publish(ctx, EventCancelled, cancelled, s.now().UTC())
	return cancelled, nil
}

// UpdateDeliveryStatus moves the order's delivery forward.
func (s *Service) UpdateDeliveryStatus(ctx context.Context, orderID string, status DeliveryStatus) (*Order, error) {
	var updated *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := o.AdvanceDelivery(status); err != nil {
			return err
		}
		if err := tx.Orders().Update(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Delivery status updated",
		zap.String("order_id", orderID),
		zap.String("status", string(status)),
	)
	return updated, nil
}

// Get returns the order with the given identity or ErrNotFound.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// ListByMember returns the member's orders, newest first.
func (s *Service) ListByMember(ctx context.Context, memberID string) ([]*Order, error) {
	return s.orders.ListByMember(ctx, memberID)
}

// Search returns orders matching f, newest first.
func (s *Service) Search(ctx context.Context, f Filter) ([]*Order, error) {
	return s.orders.Search(ctx, f)
}

// publish reports the committed change. The change already happened, so a
// delivery failure is only logged.
func (s *Service) publish(ctx context.Context, typ EventType, o *Order, at time.Time) {
	err := s.publisher.Publish(ctx, Event{
		Type:       typ,
		OrderID:    o.ID,
		MemberID:   o.MemberID,
		TotalPrice: o.TotalPrice(),
		OccurredAt: at,
	})
	if err != nil {
		zctx.From(ctx).Warn("Publish order event failed",
			zap.String("type", string(typ)),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}

func indexItems(items []*item.Item) map[string]*item.Item {
	m := make(map[string]*item.Item, len(items))
	for _, it := range items {
		m[it.ID] = it
	}
	return m
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
