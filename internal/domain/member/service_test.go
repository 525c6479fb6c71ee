package member

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockRepo struct {
	mu      sync.Mutex
	byID    map[string]Member
	findErr error
	// skipFind hides stored members from FindByName so that only the
	// atomic check in Create can catch a duplicate.
	skipFind bool
}

func newMockRepo() *mockRepo {
	return &mockRepo{byID: make(map[string]Member)}
}

func (m *mockRepo) taken(name, selfID string) bool {
	for _, existing := range m.byID {
		if existing.Name == name && existing.ID != selfID {
			return true
		}
	}
	return false
}

func (m *mockRepo) Create(_ context.Context, mem *Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.taken(mem.Name, "") {
		return &DuplicateMemberError{Name: mem.Name}
	}
	m.byID[mem.ID] = *mem
	return nil
}

func (m *mockRepo) Rename(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if m.taken(name, id) {
		return &DuplicateMemberError{Name: name}
	}
	mem.Name = name
	m.byID[id] = mem
	return nil
}

func (m *mockRepo) FindByID(_ context.Context, id string) (*Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &mem, nil
}

func (m *mockRepo) FindByName(_ context.Context, name string) ([]Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.skipFind {
		return nil, nil
	}
	var found []Member
	for _, mem := range m.byID {
		if mem.Name == name {
			found = append(found, mem)
		}
	}
	return found, nil
}

func (m *mockRepo) FindAll(_ context.Context) ([]Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]Member, 0, len(m.byID))
	for _, mem := range m.byID {
		all = append(all, mem)
	}
	return all, nil
}

var seoul = NewAddress(" Seoul ", "Gangga-ro", "123-123")

// --- Tests ---

func TestService_Register(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepo()
	svc := NewService(repo)

	id, err := svc.Register(ctx, "  kim  ", seoul)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	m, err := svc.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "kim", m.Name)
	assert.Equal(t, "Seoul", m.Address.City)
	assert.False(t, m.CreatedAt.IsZero())
}

func TestService_RegisterErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, repo *mockRepo, svc *Service)
		input   string
		wantErr error
	}{
		{
			name:    "blank name",
			input:   "   ",
			wantErr: ErrEmptyName,
		},
		{
			name: "duplicate name",
			setup: func(t *testing.T, _ *mockRepo, svc *Service) {
				_, err := svc.Register(context.Background(), "kim", seoul)
				require.NoError(t, err)
			},
			input:   "kim",
			wantErr: ErrDuplicateMember,
		},
		{
			name: "duplicate caught by repository",
			setup: func(t *testing.T, repo *mockRepo, svc *Service) {
				_, err := svc.Register(context.Background(), "kim", seoul)
				require.NoError(t, err)
				repo.skipFind = true
			},
			input:   "kim",
			wantErr: ErrDuplicateMember,
		},
		{
			name: "lookup failure",
			setup: func(_ *testing.T, repo *mockRepo, _ *Service) {
				repo.findErr = errors.New("connection reset")
			},
			input: "kim",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			svc := NewService(repo)
			if tt.setup != nil {
				tt.setup(t, repo, svc)
			}
			before := len(repo.byID)

			id, err := svc.Register(context.Background(), tt.input, seoul)
			require.Error(t, err)
			assert.Empty(t, id)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
			assert.Len(t, repo.byID, before)
		})
	}
}

func TestService_RegisterDuplicateError(t *testing.T) {
	svc := NewService(newMockRepo())
	_, err := svc.Register(context.Background(), "kim", seoul)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "kim", seoul)
	var target *DuplicateMemberError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "kim", target.Name)
}

func TestService_RegisterConcurrent(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	const workers = 20
	var (
		wg         sync.WaitGroup
		registered atomic.Int32
		duplicates atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Register(context.Background(), "kim", seoul)
			switch {
			case err == nil:
				registered.Add(1)
			case errors.Is(err, ErrDuplicateMember):
				duplicates.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, registered.Load())
	assert.EqualValues(t, workers-1, duplicates.Load())
	assert.Len(t, repo.byID, 1)
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMockRepo())

	kim, err := svc.Register(ctx, "kim", seoul)
	require.NoError(t, err)
	_, err = svc.Register(ctx, "lee", seoul)
	require.NoError(t, err)

	m, err := svc.Update(ctx, kim, " park ")
	require.NoError(t, err)
	assert.Equal(t, "park", m.Name)

	m, err = svc.Update(ctx, kim, "park")
	require.NoError(t, err, "renaming to the current name is a no-op")
	assert.Equal(t, "park", m.Name)

	_, err = svc.Update(ctx, kim, "lee")
	require.ErrorIs(t, err, ErrDuplicateMember)

	_, err = svc.Update(ctx, kim, "")
	require.ErrorIs(t, err, ErrEmptyName)

	_, err = svc.Update(ctx, "missing", "choi")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_Find(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMockRepo())

	_, err := svc.Register(ctx, "kim", seoul)
	require.NoError(t, err)
	_, err = svc.Register(ctx, "lee", seoul)
	require.NoError(t, err)

	all, err := svc.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := svc.FindByName(ctx, "lee")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "lee", found[0].Name)

	padded, err := svc.FindByName(ctx, "  lee ")
	require.NoError(t, err)
	require.Len(t, padded, 1)
	assert.Equal(t, found[0].ID, padded[0].ID)

	none, err := svc.FindByName(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)

	blank, err := svc.FindByName(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, blank)

	_, err = svc.FindByID(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
