package coupon

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/coupon-service/internal/domain/cart"
)

const (
	// codeFilterCapacity sizes the negative-lookup filter for the expected
	// coupon catalogue; false positives only cost one extra database read.
	codeFilterCapacity = 1_000_000
	codeFilterFPR      = 0.001

	// evalConcurrency bounds the number of coupons evaluated in parallel
	// when listing applicable coupons for a cart.
	evalConcurrency = 8
)

// CreateParams holds the input for registering a new coupon.
type CreateParams struct {
	Code         string
	Type         Type
	Details      []byte
	ExpiryDate   *time.Time
	UsageLimit   int
	PerUserLimit int
	MinCartValue decimal.Decimal
	MaxDiscount  decimal.Decimal
	Description  string
	CreatedBy    string
}

// UpdateParams holds the mutable fields of a coupon. Nil pointers leave the
// corresponding field unchanged.
type UpdateParams struct {
	Code         *string
	Details      []byte
	IsActive     *bool
	ExpiryDate   *time.Time
	UsageLimit   *int
	MinCartValue *decimal.Decimal
	MaxDiscount  *decimal.Decimal
	Description  *string
}

// ApplicableCoupon pairs a coupon with the discount it would produce for a
// given cart.
type ApplicableCoupon struct {
	Coupon   *Coupon
	Discount Evaluation
}

// ApplyParams holds the input for redeeming a coupon against a cart.
type ApplyParams struct {
	CouponID string
	Items    []cart.Item
	UserID   string
	OrderID  string
}

// Service implements the coupon use cases on top of the engine: catalogue
// management, applicability queries and redemption with usage accounting.
type Service struct {
	coupons Repository
	usages  UsageRepository
	now     func() time.Time

	mu    sync.RWMutex
	codes *bloom.BloomFilter
}

// NewService creates a Service backed by the given repositories.
func NewService(coupons Repository, usages UsageRepository) *Service {
	return &Service{
		coupons: coupons,
		usages:  usages,
		now:     time.Now,
		codes:   bloom.NewWithEstimates(codeFilterCapacity, codeFilterFPR),
	}
}

// WarmCodeFilter loads all known coupon codes into the negative-lookup
// filter. Call it once at startup; lookups before warming simply skip the
// fast path.
func (s *Service) WarmCodeFilter(ctx context.Context) error {
	codes, err := s.coupons.ListCodes(ctx)
	if err != nil {
		return errors.Wrap(err, "list codes")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, code := range codes {
		s.codes.AddString(code)
	}
	return nil
}

// Create registers a new coupon. Codes are stored uppercase so lookups are
// case-insensitive.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Coupon, error) {
	if !p.Type.Valid() {
		return nil, ErrUnknownType
	}

	c := &Coupon{
		ID:           uuid.New().String(),
		Code:         strings.ToUpper(p.Code),
		Type:         p.Type,
		Details:      p.Details,
		IsActive:     true,
		ExpiryDate:   p.ExpiryDate,
		UsageLimit:   p.UsageLimit,
		PerUserLimit: p.PerUserLimit,
		MinCartValue: p.MinCartValue,
		MaxDiscount:  p.MaxDiscount,
		Description:  p.Description,
		CreatedBy:    p.CreatedBy,
	}

	if err := s.coupons.Create(ctx, c); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.codes.AddString(c.Code)
	s.mu.Unlock()

	return c, nil
}

// List returns coupons, optionally including deactivated ones.
func (s *Service) List(ctx context.Context, includeInactive bool) ([]Coupon, error) {
	return s.coupons.List(ctx, includeInactive)
}

// GetByID returns the coupon with the given ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Coupon, error) {
	return s.coupons.GetByID(ctx, id)
}

// GetByCode returns the coupon with the given code. A warmed filter rejects
// most unknown codes without touching the database.
func (s *Service) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	code = strings.ToUpper(code)

	s.mu.RLock()
	warmed := s.codes.ApproximatedSize() > 0
	known := s.codes.TestString(code)
	s.mu.RUnlock()

	if warmed && !known {
		return nil, ErrNotFound
	}
	return s.coupons.GetByCode(ctx, code)
}

// Update applies the non-nil fields of p to the stored coupon.
func (s *Service) Update(ctx context.Context, id string, p UpdateParams) (*Coupon, error) {
	c, err := s.coupons.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Code != nil {
		c.Code = strings.ToUpper(*p.Code)
	}
	if p.Details != nil {
		c.Details = p.Details
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}
	if p.ExpiryDate != nil {
		c.ExpiryDate = p.ExpiryDate
	}
	if p.UsageLimit != nil {
		c.UsageLimit = *p.UsageLimit
	}
	if p.MinCartValue != nil {
		c.MinCartValue = *p.MinCartValue
	}
	if p.MaxDiscount != nil {
		c.MaxDiscount = *p.MaxDiscount
	}
	if p.Description != nil {
		c.Description = *p.Description
	}

	if err := s.coupons.Update(ctx, c); err != nil {
		return nil, err
	}

	if p.Code != nil {
		s.mu.Lock()
		s.codes.AddString(c.Code)
		s.mu.Unlock()
	}
	return c, nil
}

// Delete removes the coupon with the given ID. The code filter keeps the
// deleted code; the subsequent database miss resolves it.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.coupons.Delete(ctx, id)
}

// Applicable evaluates every eligible active coupon against the cart and
// returns those that would yield a positive discount, in catalogue order.
// Coupons failing eligibility or applicability are skipped, not reported.
func (s *Service) Applicable(ctx context.Context, items []cart.Item) ([]ApplicableCoupon, error) {
	coupons, err := s.coupons.List(ctx, false)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}

	results := make([]*ApplicableCoupon, len(coupons))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(evalConcurrency)
	for i := range coupons {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			c := &coupons[i]
			if err := s.checkEligibility(c, items); err != nil {
				return nil
			}

			ev, err := Evaluate(c, items)
			if err != nil || !ev.Applicable || !ev.Discount.IsPositive() {
				return nil
			}

			results[i] = &ApplicableCoupon{Coupon: c, Discount: ev}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	applicable := make([]ApplicableCoupon, 0, len(coupons))
	for _, r := range results {
		if r != nil {
			applicable = append(applicable, *r)
		}
	}
	return applicable, nil
}

// Apply redeems the coupon against the cart. Eligibility is checked before
// the engine runs, and the usage counter is incremented atomically so a
// limited coupon cannot be redeemed past its limit under concurrency. The
// redemption is recorded for stats; a failed record does not undo the
// redemption.
func (s *Service) Apply(ctx context.Context, p ApplyParams) (*UpdatedCart, error) {
	c, err := s.coupons.GetByID(ctx, p.CouponID)
	if err != nil {
		return nil, err
	}

	if err := s.checkEligibility(c, p.Items); err != nil {
		return nil, err
	}

	updated, err := Apply(c, p.Items)
	if err != nil {
		return nil, err
	}

	if err := s.coupons.IncrementUsage(ctx, c.ID); err != nil {
		return nil, err
	}

	usage := &Usage{
		ID:              uuid.New().String(),
		CouponID:        c.ID,
		UserID:          p.UserID,
		OrderID:         p.OrderID,
		CartTotal:       updated.OriginalTotal,
		DiscountApplied: updated.TotalDiscount,
	}
	if err := s.usages.Record(ctx, usage); err != nil {
		return nil, errors.Wrap(err, "record usage")
	}

	return updated, nil
}

// Stats returns aggregated redemption history for a coupon.
func (s *Service) Stats(ctx context.Context, couponID string) (*UsageStats, error) {
	if _, err := s.coupons.GetByID(ctx, couponID); err != nil {
		return nil, err
	}
	return s.usages.StatsByCoupon(ctx, couponID)
}

// checkEligibility enforces coupon state rules that are independent of the
// discount strategy: active flag, expiry, usage limit and cart minimum.
func (s *Service) checkEligibility(c *Coupon, items []cart.Item) error {
	if !c.IsActive {
		return ErrInactive
	}
	if c.ExpiryDate != nil && c.ExpiryDate.Before(s.now()) {
		return ErrExpired
	}
	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return ErrUsageLimitReached
	}
	if c.MinCartValue.IsPositive() && cart.Total(items).LessThan(c.MinCartValue) {
		return &MinCartValueError{Min: c.MinCartValue}
	}
	return nil
}
