package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-service/internal/domain/coupon"
)

const (
	insertUsageSQL = `INSERT INTO coupon_usages
		(id, coupon_id, user_id, order_id, cart_total, discount_applied)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	statsByCouponSQL = `SELECT
		COUNT(*),
		COALESCE(SUM(discount_applied), 0),
		COALESCE(AVG(discount_applied), 0)
		FROM coupon_usages WHERE coupon_id = $1`
)

var _ coupon.UsageRepository = (*UsageRepository)(nil)

// UsageRepository implements coupon.UsageRepository backed by PostgreSQL.
type UsageRepository struct {
	pool *pgxpool.Pool
}

// NewUsageRepository returns a UsageRepository that uses the given pool.
func NewUsageRepository(pool *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{pool: pool}
}

// Record persists a single redemption.
func (r *UsageRepository) Record(ctx context.Context, u *coupon.Usage) error {
	err := r.pool.QueryRow(ctx, insertUsageSQL,
		u.ID, u.CouponID, u.UserID, u.OrderID, u.CartTotal, u.DiscountApplied,
	).Scan(&u.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "record usage for coupon %s", u.CouponID)
	}
	return nil
}

// StatsByCoupon aggregates redemption history for one coupon. A coupon with
// no redemptions yields zero stats, not an error.
func (r *UsageRepository) StatsByCoupon(ctx context.Context, couponID string) (*coupon.UsageStats, error) {
	var (
		total   int
		sum     decimal.Decimal
		average decimal.Decimal
	)
	err := r.pool.QueryRow(ctx, statsByCouponSQL, couponID).Scan(&total, &sum, &average)
	if err != nil {
		return nil, errors.Wrapf(err, "aggregate usage for coupon %s", couponID)
	}

	return &coupon.UsageStats{
		TotalUsages:        total,
		TotalDiscountGiven: sum,
		AverageDiscount:    average.Round(2),
	}, nil
}
