// Package events publishes order lifecycle notifications to Kafka.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop/internal/domain/order"
)

// DefaultTopic receives order events when no topic is configured.
const DefaultTopic = "shop.orders"

const headerEventType = "event-type"

// messageWriter is the subset of *kafka.Writer used by Publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ order.Publisher = (*Publisher)(nil)

// Publisher writes order events keyed by order id, so every event of one
// order lands on the same partition.
type Publisher struct {
	w messageWriter
}

// NewPublisher returns a Publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

// Publish implements order.Publisher.
func (p *Publisher) Publish(ctx context.Context, e order.Event) error {
	msg := kafka.Message{
		Key:   []byte(e.OrderID),
		Value: EncodeEvent(e),
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(e.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write %s event", e.Type)
	}
	return nil
}

// Close flushes pending messages and releases the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}

// EncodeEvent renders the event payload.
func EncodeEvent(ev order.Event) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(string(ev.Type)) })
		e.Field("orderId", func(e *jx.Encoder) { e.Str(ev.OrderID) })
		e.Field("memberId", func(e *jx.Encoder) { e.Str(ev.MemberID) })
		e.Field("totalPrice", func(e *jx.Encoder) { e.Num(jx.Num(ev.TotalPrice.StringFixed(2))) })
		e.Field("occurredAt", func(e *jx.Encoder) { e.Str(ev.OccurredAt.UTC().Format(time.RFC3339Nano)) })
	})
	return append([]byte(nil), e.Bytes()...)
}

// DecodeEvent parses a payload produced by EncodeEvent.
func DecodeEvent(data []byte) (order.Event, error) {
	var ev order.Event
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "type":
			s, err := d.Str()
			ev.Type = order.EventType(s)
			return err
		case "orderId":
			s, err := d.Str()
			ev.OrderID = s
			return err
		case "memberId":
			s, err := d.Str()
			ev.MemberID = s
			return err
		case "totalPrice":
			n, err := d.Num()
			if err != nil {
				return err
			}
			ev.TotalPrice, err = decimal.NewFromString(n.String())
			return err
		case "occurredAt":
			s, err := d.Str()
			if err != nil {
				return err
			}
			ev.OccurredAt, err = time.Parse(time.RFC3339Nano, s)
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return order.Event{}, errors.Wrap(err, "decode order event")
	}
	return ev, nil
}
