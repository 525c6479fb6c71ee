package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var (
		name     string
		price    decimal.Decimal
		stock    int
		hasPrice bool
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			name, err = d.Str()
		case "price":
			price, err = decodeDecimal(d)
			hasPrice = true
		case "stockQuantity":
			stock, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !hasPrice {
		h.fail(w, r, unprocessable(errors.New("price required")))
		return
	}

	it, err := h.items.Create(r.Context(), name, price, stock)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeItem(e, it) })
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.items.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range items {
				encodeItem(e, &items[i])
			}
		})
	})
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.items.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeItem(e, it) })
}

func (h *Handler) restockItem(w http.ResponseWriter, r *http.Request) {
	var quantity int
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		var err error
		quantity, err = d.Int()
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	it, err := h.items.Restock(r.Context(), r.PathValue("id"), quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeItem(e, it) })
}
