package coupon

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-service/internal/domain/cart"
)

var hundred = decimal.NewFromInt(100)

// Evaluation is the outcome of running a single coupon strategy against a
// cart. When Applicable is false, Discount is zero and Reason explains why.
type Evaluation struct {
	Applicable bool
	Discount   decimal.Decimal
	Reason     string

	// ApplicableItems lists the matched lines for product-wise coupons with
	// their individual discounts. When the aggregate Discount was capped by
	// MaxDiscount these per-item amounts still reflect pre-cap values; the
	// distributor applies them verbatim.
	ApplicableItems []ItemDiscount

	// ApplicableTimes and FreeItems describe a bxgy evaluation: how many
	// times the buy/get ratio applied, and which cart lines gain free units.
	ApplicableTimes int
	FreeItems       []FreeItem
}

// ItemDiscount is a product-wise per-line discount.
type ItemDiscount struct {
	ProductID cart.ProductID
	Quantity  int
	Discount  decimal.Decimal
}

// FreeItem records free units granted to an existing cart line by a bxgy
// coupon.
type FreeItem struct {
	ProductID    cart.ProductID
	FreeQuantity int
	UnitPrice    decimal.Decimal
	Discount     decimal.Decimal
}

// PricedItem is a cart line with its share of the applied discount. For bxgy
// coupons Quantity includes the injected free units.
type PricedItem struct {
	ProductID     cart.ProductID
	Quantity      int
	Price         decimal.Decimal
	TotalDiscount decimal.Decimal
}

// AppliedCoupon identifies the coupon that produced an updated cart.
type AppliedCoupon struct {
	ID   string
	Code string
	Type Type
}

// UpdatedCart is the final priced cart returned by Apply.
// FinalPrice = max(0, OriginalTotal - TotalDiscount), rounded to 2 decimals.
type UpdatedCart struct {
	Items         []PricedItem
	OriginalTotal decimal.Decimal
	TotalDiscount decimal.Decimal
	FinalPrice    decimal.Decimal
	Coupon        AppliedCoupon
}

// Evaluate dispatches to the evaluator matching the coupon's type. It returns
// ErrUnknownType for a type tag outside the supported strategies; all other
// outcomes, including malformed detail blobs, are reported through the
// returned Evaluation.
func Evaluate(c *Coupon, items []cart.Item) (Evaluation, error) {
	switch c.Type {
	case TypeCartWise:
		return EvaluateCartWise(c, items), nil
	case TypeProductWise:
		return EvaluateProductWise(c, items), nil
	case TypeBxGy:
		return EvaluateBxGy(c, items), nil
	default:
		return Evaluation{}, ErrUnknownType
	}
}

// EvaluateCartWise computes a percentage-of-total discount once the cart
// total reaches the configured threshold. The percentage application is
// rounded to 2 decimals before the optional cap is applied.
func EvaluateCartWise(c *Coupon, items []cart.Item) Evaluation {
	var det CartWiseDetails
	if err := decodeDetails(c.Details, &det); err != nil {
		return notApplicable(err.Error())
	}

	total := cart.Total(items)
	if total.LessThan(det.Threshold) {
		return notApplicable(fmt.Sprintf("cart total %s below threshold %s", total, det.Threshold))
	}

	raw := total.Mul(det.Discount).Div(hundred).Round(2)

	return Evaluation{
		Applicable: true,
		Discount:   capAt(raw, c.MaxDiscount),
		Reason:     fmt.Sprintf("cart total %s meets threshold %s", total, det.Threshold),
	}
}

// EvaluateProductWise computes a percentage discount over every cart line
// matching the target product. Each line's discount is rounded to 2 decimals
// before summing; the cap applies to the aggregate only, never to the
// per-line breakdown.
func EvaluateProductWise(c *Coupon, items []cart.Item) Evaluation {
	var det ProductWiseDetails
	if err := decodeDetails(c.Details, &det); err != nil {
		return notApplicable(err.Error())
	}

	sum := decimal.Zero
	var matched []ItemDiscount
	for _, item := range items {
		if item.ProductID != det.ProductID {
			continue
		}
		d := item.Subtotal().Mul(det.Discount).Div(hundred).Round(2)
		sum = sum.Add(d)
		matched = append(matched, ItemDiscount{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Discount:  d,
		})
	}

	if len(matched) == 0 {
		return notApplicable(fmt.Sprintf("product %s not in cart", det.ProductID))
	}

	return Evaluation{
		Applicable:      true,
		Discount:        capAt(sum, c.MaxDiscount),
		ApplicableItems: matched,
	}
}

// EvaluateBxGy computes a buy-X-get-Y discount. The qualifying batch count is
// the minimum of floor(available/required) over the buy set, bounded by the
// repetition limit. Free units are only granted for get-products already
// present in the cart; the cart is the only price source, so a product the
// customer never added cannot be given away.
func EvaluateBxGy(c *Coupon, items []cart.Item) Evaluation {
	var det BxGyDetails
	if err := decodeDetails(c.Details, &det); err != nil {
		return notApplicable(err.Error())
	}

	if len(det.BuyProducts) == 0 || len(det.GetProducts) == 0 {
		return notApplicable("invalid bxgy configuration")
	}

	batches := -1
	for _, buy := range det.BuyProducts {
		available := 0
		if item, ok := findItem(items, buy.ProductID); ok {
			available = item.Quantity
		}
		required := buy.Quantity
		if required <= 0 {
			required = 1
		}
		b := available / required
		if batches < 0 || b < batches {
			batches = b
		}
	}

	limit := det.RepetitionLimit
	if limit <= 0 {
		limit = 1
	}
	times := min(batches, limit)

	if times <= 0 {
		return notApplicable("cart does not have enough items from buy set")
	}

	total := decimal.Zero
	var free []FreeItem
	for _, get := range det.GetProducts {
		item, ok := findItem(items, get.ProductID)
		if !ok {
			continue
		}
		perBatch := get.Quantity
		if perBatch <= 0 {
			perBatch = 1
		}
		qty := perBatch * times
		d := item.Price.Mul(decimal.NewFromInt(int64(qty)))
		total = total.Add(d)
		free = append(free, FreeItem{
			ProductID:    get.ProductID,
			FreeQuantity: qty,
			UnitPrice:    item.Price,
			Discount:     d.Round(2),
		})
	}

	return Evaluation{
		Applicable:      true,
		Discount:        capAt(total, c.MaxDiscount).Round(2),
		ApplicableTimes: times,
		FreeItems:       free,
	}
}

// Distribute spreads an evaluation's aggregate discount back onto individual
// cart lines, producing the per-item view of the priced cart.
//
// Product-wise amounts and bxgy free units are applied verbatim from the
// evaluation's breakdown. Cart-wise discounts are allocated proportionally to
// each line's share of the subtotal, each allocation rounded to 2 decimals
// independently; the allocations may differ from the aggregate by a rounding
// residue, which is left uncorrected.
func Distribute(items []cart.Item, ev Evaluation, t Type) []PricedItem {
	priced := make([]PricedItem, len(items))
	for i, item := range items {
		priced[i] = PricedItem{
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			Price:         item.Price,
			TotalDiscount: decimal.Zero,
		}
	}

	switch t {
	case TypeProductWise:
		for _, a := range ev.ApplicableItems {
			if i := indexOf(priced, a.ProductID); i >= 0 {
				priced[i].TotalDiscount = a.Discount
			}
		}

	case TypeBxGy:
		for _, f := range ev.FreeItems {
			if i := indexOf(priced, f.ProductID); i >= 0 {
				priced[i].Quantity += f.FreeQuantity
				priced[i].TotalDiscount = f.Discount
			}
		}

	case TypeCartWise:
		subtotal := cart.Total(items)
		if subtotal.IsZero() {
			subtotal = decimal.NewFromInt(1)
		}
		for i := range priced {
			share := items[i].Subtotal().Div(subtotal)
			priced[i].TotalDiscount = share.Mul(ev.Discount).Round(2)
		}
	}

	return priced
}

// Apply evaluates the coupon against the cart items and, when applicable,
// composes the final priced cart. Business-rule rejections come back as
// *NotApplicableError; an unsupported type tag as ErrUnknownType. Apply does
// no persistence and no eligibility checking beyond applicability; expiry,
// active state, usage limits and cart minimums are the caller's concern.
func Apply(c *Coupon, items []cart.Item) (*UpdatedCart, error) {
	ev, err := Evaluate(c, items)
	if err != nil {
		return nil, err
	}
	if !ev.Applicable {
		reason := ev.Reason
		if reason == "" {
			reason = "coupon not applicable"
		}
		return nil, &NotApplicableError{Reason: reason}
	}

	total := cart.Total(items)
	final := total.Sub(ev.Discount)
	if final.IsNegative() {
		final = decimal.Zero
	}

	return &UpdatedCart{
		Items:         Distribute(items, ev, c.Type),
		OriginalTotal: total,
		TotalDiscount: ev.Discount.Round(2),
		FinalPrice:    final.Round(2),
		Coupon: AppliedCoupon{
			ID:   c.ID,
			Code: c.Code,
			Type: c.Type,
		},
	}, nil
}

// decodeDetails unmarshals the strategy parameter blob. A malformed blob is a
// configuration fault; evaluators surface it as a not-applicable result so
// the engine never panics or propagates a raw decode error.
func decodeDetails(raw []byte, v any) error {
	if len(raw) == 0 {
		return &NotApplicableError{Reason: "missing coupon details"}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &NotApplicableError{Reason: "invalid coupon details: " + err.Error()}
	}
	return nil
}

// capAt bounds d by max when a positive cap is configured.
func capAt(d, max decimal.Decimal) decimal.Decimal {
	if max.IsPositive() && d.GreaterThan(max) {
		return max
	}
	return d
}

// findItem returns the first cart line matching id.
func findItem(items []cart.Item, id cart.ProductID) (cart.Item, bool) {
	for _, item := range items {
		if item.ProductID == id {
			return item, true
		}
	}
	return cart.Item{}, false
}

func indexOf(items []PricedItem, id cart.ProductID) int {
	for i, item := range items {
		if item.ProductID == id {
			return i
		}
	}
	return -1
}

func notApplicable(reason string) Evaluation {
	return Evaluation{Discount: decimal.Zero, Reason: reason}
}
