package member

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Service implements member registration and lookup.
type Service struct {
	members Repository
}

// NewService creates a member Service backed by the given Repository.
func NewService(members Repository) *Service {
	return &Service{members: members}
}

// Register adds a new member and returns its identity. Registration fails
// with *DuplicateMemberError when the name is already taken.
func (s *Service) Register(ctx context.Context, name string, addr Address) (string, error) {
	m, err := New(name, addr)
	if err != nil {
		return "", err
	}
	if err := s.validateUnique(ctx, m.Name, ""); err != nil {
		return "", err
	}
	// The repository re-checks uniqueness atomically, so a concurrent
	// registration that slipped past validateUnique still fails here.
	if err := s.members.Create(ctx, m); err != nil {
		return "", errors.Wrap(err, "create member")
	}

	zctx.From(ctx).Info("Member registered",
		zap.String("member_id", m.ID),
		zap.String("name", m.Name),
	)
	return m.ID, nil
}

// Update renames the member identified by id and returns the stored result.
func (s *Service) Update(ctx context.Context, id, name string) (*Member, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	current, err := s.members.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Name == name {
		return current, nil
	}
	if err := s.validateUnique(ctx, name, id); err != nil {
		return nil, err
	}
	if err := s.members.Rename(ctx, id, name); err != nil {
		return nil, errors.Wrap(err, "rename member")
	}
	return s.members.FindByID(ctx, id)
}

// FindByID returns the member with the given identity or ErrNotFound.
func (s *Service) FindByID(ctx context.Context, id string) (*Member, error) {
	return s.members.FindByID(ctx, id)
}

// FindByName returns the members registered under name. The name is
// normalized the way Register stores it. An unknown or blank name yields an
// empty slice.
func (s *Service) FindByName(ctx context.Context, name string) ([]Member, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return []Member{}, nil
	}
	return s.members.FindByName(ctx, name)
}

// FindAll returns every registered member.
func (s *Service) FindAll(ctx context.Context) ([]Member, error) {
	return s.members.FindAll(ctx)
}

func (s *Service) validateUnique(ctx context.Context, name, selfID string) error {
	found, err := s.members.FindByName(ctx, name)
	if err != nil {
		return errors.Wrap(err, "find member by name")
	}
	for _, m := range found {
		if m.ID != selfID {
			return &DuplicateMemberError{Name: name}
		}
	}
	return nil
}
