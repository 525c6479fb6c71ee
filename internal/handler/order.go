package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/shop/internal/domain/member"
	"github.com/xenking/shop/internal/domain/order"
)

// placeOrder accepts {memberId, items:[{itemId, count}], address?}.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req order.PlaceRequest
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "memberId":
			req.MemberID, err = d.Str()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				line, err := decodeLine(d)
				req.Lines = append(req.Lines, line)
				return err
			})
		case "address":
			var addr member.Address
			addr, err = decodeAddress(d)
			req.Address = &addr
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if req.MemberID == "" {
		h.fail(w, r, unprocessable(errors.New("memberId required")))
		return
	}

	o, err := h.orders.Place(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func decodeLine(d *jx.Decoder) (order.LineRequest, error) {
	var line order.LineRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "itemId":
			line.ItemID, err = d.Str()
		case "count":
			line.Count, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return line, err
}

func (h *Handler) searchOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := order.Filter{MemberID: q.Get("memberId")}
	if s := q.Get("status"); s != "" {
		status, err := order.ParseStatus(s)
		if err != nil {
			h.fail(w, r, unprocessable(err))
			return
		}
		f.Status = status
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			h.fail(w, r, badRequest(errors.Errorf("invalid limit %q", s)))
			return
		}
		f.Limit = limit
	}

	orders, err := h.orders.Search(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) updateDelivery(w http.ResponseWriter, r *http.Request) {
	var raw string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		raw, err = d.Str()
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status, err := order.ParseDeliveryStatus(raw)
	if err != nil {
		h.fail(w, r, unprocessable(err))
		return
	}

	o, err := h.orders.UpdateDeliveryStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}
