package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-service/internal/domain/cart"
	"github.com/xenking/coupon-service/internal/domain/coupon"
)

const maxBodySize = 1 << 20

type createCouponRequest struct {
	Code         string          `json:"code" validate:"required,alphanum,min=3,max=50"`
	Type         string          `json:"type" validate:"required,oneof=cart-wise product-wise bxgy"`
	Details      json.RawMessage `json:"details" validate:"required"`
	ExpiryDate   *time.Time      `json:"expiry_date"`
	UsageLimit   int             `json:"usage_limit" validate:"gte=0"`
	PerUserLimit int             `json:"per_user_limit" validate:"gte=0"`
	MinCartValue decimal.Decimal `json:"min_cart_value"`
	MaxDiscount  decimal.Decimal `json:"max_discount"`
	Description  string          `json:"description" validate:"max=500"`
}

type updateCouponRequest struct {
	Code         *string          `json:"code" validate:"omitempty,alphanum,min=3,max=50"`
	Details      json.RawMessage  `json:"details"`
	IsActive     *bool            `json:"is_active"`
	ExpiryDate   *time.Time       `json:"expiry_date"`
	UsageLimit   *int             `json:"usage_limit" validate:"omitempty,gte=0"`
	MinCartValue *decimal.Decimal `json:"min_cart_value"`
	MaxDiscount  *decimal.Decimal `json:"max_discount"`
	Description  *string          `json:"description" validate:"omitempty,max=500"`
}

type cartItemRequest struct {
	ProductID cart.ProductID  `json:"product_id"`
	Quantity  int             `json:"quantity" validate:"required,gt=0"`
	Price     decimal.Decimal `json:"price"`
}

type cartPayload struct {
	Items []cartItemRequest `json:"items" validate:"required,min=1,dive"`
}

type cartRequest struct {
	Cart cartPayload `json:"cart" validate:"required"`
}

type applyCouponRequest struct {
	Cart    cartPayload `json:"cart" validate:"required"`
	UserID  string      `json:"user_id" validate:"max=128"`
	OrderID string      `json:"order_id" validate:"max=128"`
}

// decodeBody parses and size-limits the JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodySize)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid request body: unexpected trailing data")
	}
	return nil
}

// validationMessage flattens validator errors to a single readable line.
func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, len(verrs))
	for i, fe := range verrs {
		parts[i] = fmt.Sprintf("field %q failed on %q", fe.Field(), fe.Tag())
	}
	return strings.Join(parts, "; ")
}

// validateDetails checks the strategy parameter blob against the rules of the
// given coupon type before it is stored.
func (h *Handler) validateDetails(t coupon.Type, raw json.RawMessage) error {
	switch t {
	case coupon.TypeCartWise:
		var det coupon.CartWiseDetails
		if err := json.Unmarshal(raw, &det); err != nil {
			return fmt.Errorf("invalid details: %w", err)
		}
		if !det.Threshold.IsPositive() {
			return fmt.Errorf("details.threshold must be positive")
		}
		return validatePercentage(det.Discount)

	case coupon.TypeProductWise:
		var det coupon.ProductWiseDetails
		if err := json.Unmarshal(raw, &det); err != nil {
			return fmt.Errorf("invalid details: %w", err)
		}
		if det.ProductID == "" {
			return fmt.Errorf("details.product_id is required")
		}
		return validatePercentage(det.Discount)

	case coupon.TypeBxGy:
		var det coupon.BxGyDetails
		if err := json.Unmarshal(raw, &det); err != nil {
			return fmt.Errorf("invalid details: %w", err)
		}
		if len(det.BuyProducts) == 0 {
			return fmt.Errorf("details.buy_products must not be empty")
		}
		if len(det.GetProducts) == 0 {
			return fmt.Errorf("details.get_products must not be empty")
		}
		for _, set := range [][]coupon.BxGyProduct{det.BuyProducts, det.GetProducts} {
			for _, p := range set {
				if p.ProductID == "" {
					return fmt.Errorf("details product entries require product_id")
				}
				if p.Quantity <= 0 {
					return fmt.Errorf("details product quantities must be positive")
				}
			}
		}
		if det.RepetitionLimit < 1 {
			return fmt.Errorf("details.repetition_limit must be at least 1")
		}
		return nil

	default:
		return fmt.Errorf("unknown coupon type %q", t)
	}
}

func validatePercentage(d decimal.Decimal) error {
	if !d.IsPositive() || d.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("details.discount must be between 0 and 100")
	}
	return nil
}

// toCartItems converts request items after manual checks on the fields the
// struct validator cannot express for decimal types.
func toCartItems(p cartPayload) ([]cart.Item, error) {
	items := make([]cart.Item, len(p.Items))
	for i, item := range p.Items {
		if item.ProductID == "" {
			return nil, fmt.Errorf("cart item %d: product_id is required", i)
		}
		if !item.Price.IsPositive() {
			return nil, fmt.Errorf("cart item %d: price must be positive", i)
		}
		items[i] = cart.Item{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
	}
	return items, nil
}
