// Package cart holds the cart value types shared by the discount engine and
// the HTTP layer. A cart is a plain ordered list of line items; it carries no
// behaviour beyond subtotal calculation.
package cart

import (
	"encoding/json"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ProductID is a normalized product identifier. Clients send product ids as
// JSON strings or numbers interchangeably; both decode to the same string
// form so that identity comparisons are always string-to-string.
type ProductID string

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (id *ProductID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		return errors.New("product id is required")
	}
	if s[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return errors.Wrap(err, "decode product id")
		}
		*id = ProductID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.Wrap(err, "decode product id")
	}
	*id = ProductID(n.String())
	return nil
}

// Item is a single cart line. Duplicate product ids are allowed; lines
// accumulate independently and are never merged.
type Item struct {
	ProductID ProductID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Subtotal returns price * quantity for this line.
func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is an ordered sequence of line items.
type Cart struct {
	Items []Item `json:"items"`
}

// Total returns the sum of line subtotals. An empty cart or one whose items
// all have zero quantity totals to zero.
func Total(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Subtotal())
	}
	return sum
}
