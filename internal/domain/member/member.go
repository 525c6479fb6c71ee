package member

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a requested member does not exist.
	ErrNotFound = errors.New("member not found")
	// ErrDuplicateMember matches every *DuplicateMemberError.
	ErrDuplicateMember = errors.New("member already exists")
	// ErrEmptyName is returned when a member name is blank.
	ErrEmptyName = errors.New("member name required")
)

// DuplicateMemberError indicates that the directory already holds a member
// with the same name.
type DuplicateMemberError struct {
	Name string
}

func (e *DuplicateMemberError) Error() string {
	return fmt.Sprintf("member %q already exists", e.Name)
}

// Is reports whether target is ErrDuplicateMember.
func (e *DuplicateMemberError) Is(target error) bool {
	return target == ErrDuplicateMember
}

// Address is an immutable postal address value.
type Address struct {
	City    string
	Street  string
	Zipcode string
}

// NewAddress returns an Address with surrounding whitespace removed.
func NewAddress(city, street, zipcode string) Address {
	return Address{
		City:    strings.TrimSpace(city),
		Street:  strings.TrimSpace(street),
		Zipcode: strings.TrimSpace(zipcode),
	}
}

// Member is a registered customer.
type Member struct {
	ID        string
	Name      string
	Address   Address
	CreatedAt time.Time
}

// New validates the name and returns a member with a fresh identity.
func New(name string, addr Address) (*Member, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	return &Member{
		ID:        uuid.New().String(),
		Name:      name,
		Address:   addr,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// NormalizeName trims the name and rejects blank values.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	return name, nil
}

// Repository defines persistence operations for the member directory.
//
// Create and Rename must detect a name conflict atomically and report it as
// *DuplicateMemberError.
type Repository interface {
	Create(ctx context.Context, m *Member) error
	Rename(ctx context.Context, id, name string) error
	FindByID(ctx context.Context, id string) (*Member, error)
	FindByName(ctx context.Context, name string) ([]Member, error)
	FindAll(ctx context.Context) ([]Member, error)
}
