package main

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// itemSeed is one entry of the items seed file.
type itemSeed struct {
	ID    string
	Name  string
	Price decimal.Decimal
	Stock int
}

// parseItems decodes a JSON array of {"id","name","price","stock"} objects.
// Prices may be given as strings or numbers.
func parseItems(data []byte) ([]itemSeed, error) {
	var seeds []itemSeed
	d := jx.DecodeBytes(data)
	err := d.Arr(func(d *jx.Decoder) error {
		var s itemSeed
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				s.ID, err = d.Str()
			case "name":
				s.Name, err = d.Str()
			case "price":
				s.Price, err = decodePrice(d)
			case "stock":
				s.Stock, err = d.Int()
			default:
				err = d.Skip()
			}
			return errors.Wrap(err, key)
		}); err != nil {
			return err
		}

		switch {
		case strings.TrimSpace(s.ID) == "":
			return errors.Errorf("item %d: id required", len(seeds))
		case s.Stock < 0:
			return errors.Errorf("item %s: negative stock", s.ID)
		case s.Price.IsNegative():
			return errors.Errorf("item %s: negative price", s.ID)
		}
		seeds = append(seeds, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return seeds, nil
}

func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	}
}
