package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/xenking/shop/internal/domain/member"
)

var _ member.Repository = memberRepo{}

type memberRepo struct {
	view viewFunc
}

func (r memberRepo) Create(_ context.Context, m *member.Member) error {
	return r.view(func(st *state) error {
		if nameTaken(st, m.Name, "") {
			return &member.DuplicateMemberError{Name: m.Name}
		}
		st.members[m.ID] = *m
		return nil
	})
}

func (r memberRepo) Rename(_ context.Context, id, name string) error {
	return r.view(func(st *state) error {
		m, ok := st.members[id]
		if !ok {
			return member.ErrNotFound
		}
		if nameTaken(st, name, id) {
			return &member.DuplicateMemberError{Name: name}
		}
		m.Name = name
		st.members[id] = m
		return nil
	})
}

func (r memberRepo) FindByID(_ context.Context, id string) (*member.Member, error) {
	var found member.Member
	err := r.view(func(st *state) error {
		m, ok := st.members[id]
		if !ok {
			return member.ErrNotFound
		}
		found = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

func (r memberRepo) FindByName(_ context.Context, name string) ([]member.Member, error) {
	var found []member.Member
	err := r.view(func(st *state) error {
		for _, m := range st.members {
			if m.Name == name {
				found = append(found, m)
			}
		}
		return nil
	})
	sortMembers(found)
	return found, err
}

func (r memberRepo) FindAll(_ context.Context) ([]member.Member, error) {
	var all []member.Member
	err := r.view(func(st *state) error {
		all = make([]member.Member, 0, len(st.members))
		for _, m := range st.members {
			all = append(all, m)
		}
		return nil
	})
	sortMembers(all)
	return all, err
}

func nameTaken(st *state, name, exceptID string) bool {
	for id, m := range st.members {
		if m.Name == name && id != exceptID {
			return true
		}
	}
	return false
}

func sortMembers(ms []member.Member) {
	slices.SortFunc(ms, func(a, b member.Member) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
