package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/shop/internal/domain/member"
)

func (h *Handler) registerMember(w http.ResponseWriter, r *http.Request) {
	var (
		name string
		addr member.Address
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			name, err = d.Str()
		case "address":
			addr, err = decodeAddress(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	id, err := h.members.Register(r.Context(), name, addr)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(id) })
		})
	})
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	var (
		members []member.Member
		err     error
	)
	if name := r.URL.Query().Get("name"); name != "" {
		members, err = h.members.FindByName(r.Context(), name)
	} else {
		members, err = h.members.FindAll(r.Context())
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("count", func(e *jx.Encoder) { e.Int(len(members)) })
			e.Field("data", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range members {
						encodeMember(e, &members[i])
					}
				})
			})
		})
	})
}

func (h *Handler) getMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.members.FindByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeMember(e, m) })
}

func (h *Handler) updateMember(w http.ResponseWriter, r *http.Request) {
	var name string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "name" {
			return d.Skip()
		}
		var err error
		name, err = d.Str()
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	m, err := h.members.Update(r.Context(), r.PathValue("id"), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(m.ID) })
			e.Field("name", func(e *jx.Encoder) { e.Str(m.Name) })
		})
	})
}

func (h *Handler) listMemberOrders(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.members.FindByID(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	orders, err := h.orders.ListByMember(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}
