package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventType names an order lifecycle notification.
type EventType string

const (
	EventPlaced    EventType = "order.placed"
	EventCancelled EventType = "order.cancelled"
)

// Event is published after an order change has been committed.
type Event struct {
	Type       EventType
	OrderID    string
	MemberID   string
	TotalPrice decimal.Decimal
	OccurredAt time.Time
}

// Publisher delivers order events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }
