package order

import (
	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/shop/internal/domain/member"
)

// DeliveryStatus is the shipment state of an order's delivery.
type DeliveryStatus string

const (
	DeliveryPreparing DeliveryStatus = "PREPARING"
	DeliveryShipped   DeliveryStatus = "SHIPPED"
	DeliveryCompleted DeliveryStatus = "COMPLETED"
)

var deliveryRank = map[DeliveryStatus]int{
	DeliveryPreparing: 0,
	DeliveryShipped:   1,
	DeliveryCompleted: 2,
}

// ParseDeliveryStatus validates a wire representation of DeliveryStatus.
func ParseDeliveryStatus(s string) (DeliveryStatus, error) {
	st := DeliveryStatus(s)
	if _, ok := deliveryRank[st]; !ok {
		return "", errors.Errorf("unknown delivery status %q", s)
	}
	return st, nil
}

// Delivery is the shipment record owned by an order.
type Delivery struct {
	ID      string
	Address member.Address
	Status  DeliveryStatus
}

// NewDelivery returns a PREPARING delivery to addr.
func NewDelivery(addr member.Address) *Delivery {
	return &Delivery{
		ID:      uuid.New().String(),
		Address: addr,
		Status:  DeliveryPreparing,
	}
}

// advance moves the delivery strictly forward.
func (d *Delivery) advance(to DeliveryStatus) error {
	next, ok := deliveryRank[to]
	if !ok || next <= deliveryRank[d.Status] {
		return errors.Wrapf(ErrInvalidDeliveryTransition, "%s -> %s", d.Status, to)
	}
	d.Status = to
	return nil
}
