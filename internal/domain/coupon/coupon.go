// Package coupon implements the discount engine and the coupon service built
// around it. The engine (discount.go) is pure: it evaluates a coupon against
// a list of cart items and distributes the resulting discount back onto the
// items. The service (service.go) layers eligibility checks, persistence and
// usage accounting on top.
package coupon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-service/internal/domain/cart"
)

// Type enumerates the supported coupon discount strategies.
type Type string

const (
	// TypeCartWise applies a percentage discount to the whole cart once its
	// total reaches a threshold.
	TypeCartWise Type = "cart-wise"
	// TypeProductWise applies a percentage discount to the quantities of a
	// single target product.
	TypeProductWise Type = "product-wise"
	// TypeBxGy gives free units of a "get" product set when the cart holds
	// qualifying quantities of a "buy" product set.
	TypeBxGy Type = "bxgy"
)

// Valid reports whether t is one of the supported strategies.
func (t Type) Valid() bool {
	switch t {
	case TypeCartWise, TypeProductWise, TypeBxGy:
		return true
	}
	return false
}

// Sentinel errors for coupon lookup and eligibility.
var (
	ErrNotFound          = errors.New("coupon not found")
	ErrCodeExists        = errors.New("coupon code already exists")
	ErrInactive          = errors.New("coupon is not active")
	ErrExpired           = errors.New("coupon has expired")
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	ErrUnknownType       = errors.New("unknown coupon type")
)

// NotApplicableError indicates the coupon's conditions are not met by the
// cart. It is a business-rule rejection, not a fault.
type NotApplicableError struct {
	Reason string
}

func (e *NotApplicableError) Error() string {
	return e.Reason
}

// MinCartValueError indicates the cart total is below the coupon's minimum.
type MinCartValueError struct {
	Min decimal.Decimal
}

func (e *MinCartValueError) Error() string {
	return fmt.Sprintf("cart total must be at least %s", e.Min)
}

// Coupon is a stored coupon definition. Details carries the strategy-specific
// parameter blob; its shape depends on Type and is decoded by the matching
// evaluator.
type Coupon struct {
	ID           string
	Code         string
	Type         Type
	Details      json.RawMessage
	IsActive     bool
	ExpiryDate   *time.Time
	UsageLimit   int // 0 = unlimited
	UsageCount   int
	PerUserLimit int // stored for reporting, not enforced
	MinCartValue decimal.Decimal
	MaxDiscount  decimal.Decimal // 0 = uncapped
	Description  string
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CartWiseDetails parameterizes a cart-wide percentage discount.
type CartWiseDetails struct {
	Threshold decimal.Decimal `json:"threshold"`
	Discount  decimal.Decimal `json:"discount"`
}

// ProductWiseDetails parameterizes a single-product percentage discount.
type ProductWiseDetails struct {
	ProductID cart.ProductID  `json:"product_id"`
	Discount  decimal.Decimal `json:"discount"`
}

// BxGyProduct pairs a product with a per-batch quantity, used for both the
// buy side (required quantity) and the get side (free quantity).
type BxGyProduct struct {
	ProductID cart.ProductID `json:"product_id"`
	Quantity  int            `json:"quantity"`
}

// BxGyDetails parameterizes a buy-X-get-Y free-item discount.
type BxGyDetails struct {
	BuyProducts     []BxGyProduct `json:"buy_products"`
	GetProducts     []BxGyProduct `json:"get_products"`
	RepetitionLimit int           `json:"repetition_limit"`
}

// Repository defines persistence operations for coupon definitions.
// Implementations map storage-level "no rows" conditions to ErrNotFound and
// unique-code violations to ErrCodeExists.
type Repository interface {
	Create(ctx context.Context, c *Coupon) error
	List(ctx context.Context, includeInactive bool) ([]Coupon, error)
	GetByID(ctx context.Context, id string) (*Coupon, error)
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id string) error
	ListCodes(ctx context.Context) ([]string, error)
	// IncrementUsage bumps the usage counter, guarded by the usage limit so
	// that at most one increment succeeds per remaining use even under
	// concurrent applications. Returns ErrUsageLimitReached when the guard
	// rejects the increment.
	IncrementUsage(ctx context.Context, id string) error
}

// Usage is a single redemption record.
type Usage struct {
	ID              string
	CouponID        string
	UserID          string
	OrderID         string
	CartTotal       decimal.Decimal
	DiscountApplied decimal.Decimal
	CreatedAt       time.Time
}

// UsageStats aggregates redemption history for one coupon.
type UsageStats struct {
	TotalUsages        int
	TotalDiscountGiven decimal.Decimal
	AverageDiscount    decimal.Decimal
}

// UsageRepository defines persistence operations for redemption records.
type UsageRepository interface {
	Record(ctx context.Context, u *Usage) error
	StatsByCoupon(ctx context.Context, couponID string) (*UsageStats, error)
}
