package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/xenking/shop/internal/domain/order"
)

var _ order.Repository = orderRepo{}

type orderRepo struct {
	view viewFunc
}

func (r orderRepo) Create(_ context.Context, o *order.Order) error {
	return r.view(func(st *state) error {
		if _, ok := st.orders[o.ID]; ok {
			return fmt.Errorf("order %s already exists", o.ID)
		}
		if _, ok := st.members[o.MemberID]; !ok {
			return fmt.Errorf("order %s references unknown member %s", o.ID, o.MemberID)
		}
		st.orders[o.ID] = cloneOrder(o)
		return nil
	})
}

func (r orderRepo) Update(_ context.Context, o *order.Order) error {
	return r.view(func(st *state) error {
		if _, ok := st.orders[o.ID]; !ok {
			return order.ErrNotFound
		}
		st.orders[o.ID] = cloneOrder(o)
		return nil
	})
}

func (r orderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	var found *order.Order
	err := r.view(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return order.ErrNotFound
		}
		found = cloneOrder(o)
		return nil
	})
	return found, err
}

func (r orderRepo) LockByID(ctx context.Context, id string) (*order.Order, error) {
	return r.GetByID(ctx, id)
}

func (r orderRepo) ListByMember(ctx context.Context, memberID string) ([]*order.Order, error) {
	return r.Search(ctx, order.Filter{MemberID: memberID})
}

func (r orderRepo) Search(_ context.Context, f order.Filter) ([]*order.Order, error) {
	var found []*order.Order
	err := r.view(func(st *state) error {
		for _, o := range st.orders {
			if f.MemberID != "" && o.MemberID != f.MemberID {
				continue
			}
			if f.Status != "" && o.Status() != f.Status {
				continue
			}
			found = append(found, cloneOrder(o))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(found, func(a, b *order.Order) int {
		if c := b.OrderDate.Compare(a.OrderDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if f.Limit > 0 && len(found) > f.Limit {
		found = found[:f.Limit]
	}
	return found, nil
}

// cloneOrder deep-copies o so stored state never aliases caller state.
func cloneOrder(o *order.Order) *order.Order {
	var delivery *order.Delivery
	if o.Delivery != nil {
		d := *o.Delivery
		delivery = &d
	}
	lines := make([]*order.OrderItem, len(o.Items))
	for i, l := range o.Items {
		line := *l
		lines[i] = &line
	}
	return order.RestoreOrder(o.ID, o.MemberID, o.Status(), o.OrderDate, delivery, lines)
}
