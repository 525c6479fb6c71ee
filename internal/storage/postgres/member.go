package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xenking/shop/internal/domain/member"
)

const uniqueViolation = "23505"

const (
	insertMemberSQL = `INSERT INTO members (id, name, city, street, zipcode, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	renameMemberSQL = `UPDATE members SET name = $2 WHERE id = $1`

	selectMemberSQL = `SELECT id, name, city, street, zipcode, created_at FROM members`

	getMemberByIDSQL    = selectMemberSQL + ` WHERE id = $1`
	findMemberByNameSQL = selectMemberSQL + ` WHERE name = $1 ORDER BY created_at, id`
	listMembersSQL      = selectMemberSQL + ` ORDER BY created_at, id`
)

var _ member.Repository = (*MemberRepository)(nil)

// MemberRepository implements member.Repository backed by PostgreSQL. Name
// uniqueness is enforced by the members_name_key index.
type MemberRepository struct {
	q querier
}

// Create inserts m and reports a name conflict as *member.DuplicateMemberError.
func (r *MemberRepository) Create(ctx context.Context, m *member.Member) error {
	_, err := r.q.Exec(ctx, insertMemberSQL,
		m.ID, m.Name, m.Address.City, m.Address.Street, m.Address.Zipcode, m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &member.DuplicateMemberError{Name: m.Name}
		}
		return fmt.Errorf("creating member %q: %w", m.ID, err)
	}
	return nil
}

// Rename changes the member's name.
func (r *MemberRepository) Rename(ctx context.Context, id, name string) error {
	tag, err := r.q.Exec(ctx, renameMemberSQL, id, name)
	if err != nil {
		if isUniqueViolation(err) {
			return &member.DuplicateMemberError{Name: name}
		}
		return fmt.Errorf("renaming member %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return member.ErrNotFound
	}
	return nil
}

// FindByID returns the member or member.ErrNotFound.
func (r *MemberRepository) FindByID(ctx context.Context, id string) (*member.Member, error) {
	rows, err := r.q.Query(ctx, getMemberByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting member %q: %w", id, err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, scanMember)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, member.ErrNotFound
		}
		return nil, fmt.Errorf("getting member %q: %w", id, err)
	}
	return &m, nil
}

// FindByName returns members named exactly name.
func (r *MemberRepository) FindByName(ctx context.Context, name string) ([]member.Member, error) {
	rows, err := r.q.Query(ctx, findMemberByNameSQL, name)
	if err != nil {
		return nil, fmt.Errorf("finding members by name: %w", err)
	}
	return pgx.CollectRows(rows, scanMember)
}

// FindAll returns every member in registration order.
func (r *MemberRepository) FindAll(ctx context.Context) ([]member.Member, error) {
	rows, err := r.q.Query(ctx, listMembersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	return pgx.CollectRows(rows, scanMember)
}

func scanMember(row pgx.CollectableRow) (member.Member, error) {
	var m member.Member
	err := row.Scan(&m.ID, &m.Name, &m.Address.City, &m.Address.Street, &m.Address.Zipcode, &m.CreatedAt)
	return m, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
