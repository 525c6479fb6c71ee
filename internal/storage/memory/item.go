package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/xenking/shop/internal/domain/item"
)

var _ item.Repository = itemRepo{}

type itemRepo struct {
	view viewFunc
}

func (r itemRepo) Create(_ context.Context, it *item.Item) error {
	return r.view(func(st *state) error {
		if _, ok := st.items[it.ID]; ok {
			return fmt.Errorf("item %s already exists", it.ID)
		}
		st.items[it.ID] = *it
		return nil
	})
}

func (r itemRepo) GetByID(_ context.Context, id string) (*item.Item, error) {
	var found item.Item
	err := r.view(func(st *state) error {
		it, ok := st.items[id]
		if !ok {
			return item.ErrNotFound
		}
		found = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

func (r itemRepo) GetByIDs(_ context.Context, ids []string) ([]item.Item, error) {
	var found []item.Item
	err := r.view(func(st *state) error {
		for _, id := range ids {
			if it, ok := st.items[id]; ok {
				found = append(found, it)
			}
		}
		return nil
	})
	return found, err
}

func (r itemRepo) List(_ context.Context) ([]item.Item, error) {
	var all []item.Item
	err := r.view(func(st *state) error {
		all = make([]item.Item, 0, len(st.items))
		for _, it := range st.items {
			all = append(all, it)
		}
		return nil
	})
	slices.SortFunc(all, func(a, b item.Item) int { return cmp.Compare(a.ID, b.ID) })
	return all, err
}

// LockByIDs returns detached copies; the store mutex already serializes
// transactions.
func (r itemRepo) LockByIDs(_ context.Context, ids []string) ([]*item.Item, error) {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var locked []*item.Item
	err := r.view(func(st *state) error {
		for _, id := range ids {
			if it, ok := st.items[id]; ok {
				locked = append(locked, &it)
			}
		}
		return nil
	})
	return locked, err
}

func (r itemRepo) SaveStock(_ context.Context, items ...*item.Item) error {
	return r.view(func(st *state) error {
		for _, it := range items {
			stored, ok := st.items[it.ID]
			if !ok {
				return fmt.Errorf("item %s: %w", it.ID, item.ErrNotFound)
			}
			st.items[it.ID] = *item.Restore(stored.ID, stored.Name, stored.Price, it.Stock(), stored.CreatedAt)
		}
		return nil
	})
}
