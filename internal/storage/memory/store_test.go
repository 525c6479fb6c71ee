package memory

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shop/internal/domain/auth"
	"github.com/xenking/shop/internal/domain/item"
	"github.com/xenking/shop/internal/domain/member"
	"github.com/xenking/shop/internal/domain/order"
)

func seed(t *testing.T, s *Store) (*member.Member, *item.Item) {
	t.Helper()
	ctx := context.Background()
	m, err := member.New("kim", member.NewAddress("Seoul", "Gangga-ro", "123"))
	require.NoError(t, err)
	require.NoError(t, s.Members().Create(ctx, m))

	it, err := item.New("Book", decimal.NewFromInt(10000), 10)
	require.NoError(t, err)
	require.NoError(t, s.Items().Create(ctx, it))
	return m, it
}

func TestStore_WithinTxCommit(t *testing.T) {
	ctx := context.Background()
	s := New()
	m, it := seed(t, s)

	var placed *order.Order
	err := s.WithinTx(ctx, func(ctx context.Context, tx order.Tx) error {
		locked, err := tx.Items().LockByIDs(ctx, []string{it.ID})
		require.NoError(t, err)
		line, err := order.NewOrderItem(locked[0], locked[0].Price, 3)
		require.NoError(t, err)
		placed = order.NewOrder(m.ID, order.NewDelivery(m.Address), line)
		if err := tx.Orders().Create(ctx, placed); err != nil {
			return err
		}
		return tx.Items().SaveStock(ctx, locked...)
	})
	require.NoError(t, err)

	got, err := s.Items().GetByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Stock())

	o, err := s.Orders().GetByID(ctx, placed.ID)
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 3, o.Items[0].Count)
}

func TestStore_WithinTxRollback(t *testing.T) {
	ctx := context.Background()
	s := New()
	m, it := seed(t, s)
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx order.Tx) error {
		locked, err := tx.Items().LockByIDs(ctx, []string{it.ID})
		require.NoError(t, err)
		require.NoError(t, locked[0].RemoveStock(10))
		require.NoError(t, tx.Items().SaveStock(ctx, locked...))
		require.NoError(t, tx.Members().Rename(ctx, m.ID, "lee"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Items().GetByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock())

	mem, err := s.Members().FindByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "kim", mem.Name)
}

func TestStore_WithinTxCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := New().WithinTx(ctx, func(context.Context, order.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestStore_InItemsTx(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, it := seed(t, s)

	err := s.InItemsTx(ctx, func(ctx context.Context, items item.Repository) error {
		locked, err := items.LockByIDs(ctx, []string{it.ID, it.ID, "missing"})
		if err != nil {
			return err
		}
		require.Len(t, locked, 1)
		require.NoError(t, locked[0].AddStock(5))
		return items.SaveStock(ctx, locked...)
	})
	require.NoError(t, err)

	got, err := s.Items().GetByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, got.Stock())
}

func TestMemberRepo(t *testing.T) {
	ctx := context.Background()
	s := New()
	m, _ := seed(t, s)

	dup, err := member.New("kim", member.Address{})
	require.NoError(t, err)
	require.ErrorIs(t, s.Members().Create(ctx, dup), member.ErrDuplicateMember)

	lee, err := member.New("lee", member.Address{})
	require.NoError(t, err)
	require.NoError(t, s.Members().Create(ctx, lee))

	require.ErrorIs(t, s.Members().Rename(ctx, lee.ID, "kim"), member.ErrDuplicateMember)
	require.ErrorIs(t, s.Members().Rename(ctx, "missing", "choi"), member.ErrNotFound)
	require.NoError(t, s.Members().Rename(ctx, m.ID, "kim"))

	found, err := s.Members().FindByName(ctx, "lee")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, lee.ID, found[0].ID)

	all, err := s.Members().FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestOrderRepo(t *testing.T) {
	ctx := context.Background()
	s := New()
	m, it := seed(t, s)

	line, err := order.NewOrderItem(it, it.Price, 1)
	require.NoError(t, err)
	o := order.NewOrder(m.ID, order.NewDelivery(m.Address), line)
	require.NoError(t, s.Orders().Create(ctx, o))
	require.Error(t, s.Orders().Create(ctx, o), "duplicate id")

	orphan := order.NewOrder("nobody", order.NewDelivery(member.Address{}))
	require.Error(t, s.Orders().Create(ctx, orphan))

	// Mutating the caller's copy must not leak into storage.
	o.Delivery.Status = order.DeliveryCompleted
	o.Items[0].Count = 99
	stored, err := s.Orders().GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.DeliveryPreparing, stored.Delivery.Status)
	assert.Equal(t, 1, stored.Items[0].Count)

	require.NoError(t, stored.AdvanceDelivery(order.DeliveryShipped))
	require.NoError(t, s.Orders().Update(ctx, stored))
	again, err := s.Orders().GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.DeliveryShipped, again.Delivery.Status)

	require.ErrorIs(t, s.Orders().Update(ctx, orphan), order.ErrNotFound)
	_, err = s.Orders().GetByID(ctx, "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepo_Search(t *testing.T) {
	ctx := context.Background()
	s := New()
	m, it := seed(t, s)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := range 3 {
		line, err := order.NewOrderItem(it, it.Price, 1)
		require.NoError(t, err)
		status := order.StatusPlaced
		if i == 1 {
			status = order.StatusCancelled
		}
		o := order.RestoreOrder(
			"order-"+string(rune('a'+i)), m.ID, status,
			base.Add(time.Duration(i)*time.Hour),
			order.NewDelivery(m.Address), []*order.OrderItem{line},
		)
		require.NoError(t, s.Orders().Create(ctx, o))
		ids = append(ids, o.ID)
	}

	tests := []struct {
		name   string
		filter order.Filter
		want   []string
	}{
		{name: "all newest first", filter: order.Filter{}, want: []string{ids[2], ids[1], ids[0]}},
		{name: "by status", filter: order.Filter{Status: order.StatusPlaced}, want: []string{ids[2], ids[0]}},
		{name: "by member", filter: order.Filter{MemberID: m.ID, Limit: 2}, want: []string{ids[2], ids[1]}},
		{name: "unknown member", filter: order.Filter{MemberID: "nobody"}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := s.Orders().Search(ctx, tt.filter)
			require.NoError(t, err)
			var got []string
			for _, o := range found {
				got = append(got, o.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAPIKeyRepo(t *testing.T) {
	ctx := context.Background()
	keys := New().APIKeys()

	_, err := keys.FindByHash(ctx, "nope")
	require.ErrorIs(t, err, auth.ErrNotFound)

	require.NoError(t, keys.Upsert(ctx, auth.APIKeyInfo{ID: "k1", KeyHash: "h1", Scopes: []string{auth.ScopeOrders}}))
	info, err := keys.FindByHash(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, info.HasScope(auth.ScopeOrders))
	assert.False(t, info.HasScope(auth.ScopeItems))

	// Rotating the key replaces the old hash.
	require.NoError(t, keys.Upsert(ctx, auth.APIKeyInfo{ID: "k1", KeyHash: "h2", Scopes: auth.AllScopes}))
	_, err = keys.FindByHash(ctx, "h1")
	require.ErrorIs(t, err, auth.ErrNotFound)
	info, err = keys.FindByHash(ctx, "h2")
	require.NoError(t, err)
	assert.True(t, info.HasScope(auth.ScopeItems))
}
