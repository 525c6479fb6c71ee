package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop/internal/domain/item"
	"github.com/xenking/shop/internal/domain/member"
	"github.com/xenking/shop/internal/domain/order"
)

// decodeBody parses the JSON object in the request body, calling fn for each
// field. A malformed body yields a 400 requestError.
func decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	d := jx.Decode(body, 1024)
	if err := d.Obj(fn); err != nil {
		return badRequest(errors.Wrap(err, "decode body"))
	}
	return nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	} else {
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	}
	return decimal.NewFromString(raw)
}

func decodeAddress(d *jx.Decoder) (member.Address, error) {
	var city, street, zipcode string
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "city":
			city, err = d.Str()
		case "street":
			street, err = d.Str()
		case "zipcode":
			zipcode, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return member.NewAddress(city, street, zipcode), err
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func encodePrice(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func encodeAddress(e *jx.Encoder, a member.Address) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
		e.Field("street", func(e *jx.Encoder) { e.Str(a.Street) })
		e.Field("zipcode", func(e *jx.Encoder) { e.Str(a.Zipcode) })
	})
}

func encodeMember(e *jx.Encoder, m *member.Member) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(m.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(m.Name) })
		e.Field("address", func(e *jx.Encoder) { encodeAddress(e, m.Address) })
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, m.CreatedAt) })
	})
}

func encodeItem(e *jx.Encoder, it *item.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(it.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
		e.Field("price", func(e *jx.Encoder) { encodePrice(e, it.Price) })
		e.Field("stockQuantity", func(e *jx.Encoder) { e.Int(it.Stock()) })
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, it.CreatedAt) })
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("memberId", func(e *jx.Encoder) { e.Str(o.MemberID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status())) })
		e.Field("orderDate", func(e *jx.Encoder) { encodeTime(e, o.OrderDate) })
		e.Field("totalPrice", func(e *jx.Encoder) { encodePrice(e, o.TotalPrice()) })
		if d := o.Delivery; d != nil {
			e.Field("delivery", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("id", func(e *jx.Encoder) { e.Str(d.ID) })
					e.Field("status", func(e *jx.Encoder) { e.Str(string(d.Status)) })
					e.Field("address", func(e *jx.Encoder) { encodeAddress(e, d.Address) })
				})
			})
		}
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, line := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Str(line.ID) })
						e.Field("itemId", func(e *jx.Encoder) { e.Str(line.ItemID) })
						e.Field("orderPrice", func(e *jx.Encoder) { encodePrice(e, line.OrderPrice) })
						e.Field("count", func(e *jx.Encoder) { e.Int(line.Count) })
						e.Field("totalPrice", func(e *jx.Encoder) { encodePrice(e, line.TotalPrice()) })
						e.Field("cancelled", func(e *jx.Encoder) { e.Bool(line.Cancelled()) })
					})
				}
			})
		})
	})
}

func encodeOrders(e *jx.Encoder, orders []*order.Order) {
	e.Arr(func(e *jx.Encoder) {
		for _, o := range orders {
			encodeOrder(e, o)
		}
	})
}
