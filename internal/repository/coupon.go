package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coupon-service/internal/domain/coupon"
)

const (
	couponColumns = `id, code, type, details, is_active, expiry_date,
		usage_limit, usage_count, per_user_limit, min_cart_value, max_discount,
		description, created_by, created_at, updated_at`

	insertCouponSQL = `INSERT INTO coupons
		(id, code, type, details, is_active, expiry_date,
		 usage_limit, per_user_limit, min_cart_value, max_discount,
		 description, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`

	listCouponsSQL = `SELECT ` + couponColumns + `
		FROM coupons
		WHERE $1 OR (is_active AND (expiry_date IS NULL OR expiry_date > NOW()))
		ORDER BY created_at, id`

	getCouponByIDSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE id = $1`

	getCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE UPPER(code) = UPPER($1)`

	updateCouponSQL = `UPDATE coupons SET
		code = $2, details = $3, is_active = $4, expiry_date = $5,
		usage_limit = $6, min_cart_value = $7, max_discount = $8,
		description = $9, updated_at = NOW()
		WHERE id = $1`

	deleteCouponSQL = `DELETE FROM coupons WHERE id = $1`

	listCouponCodesSQL = `SELECT code FROM coupons`

	// The limit guard runs inside the UPDATE so concurrent applications
	// cannot push usage_count past usage_limit.
	incrementUsageSQL = `UPDATE coupons
		SET usage_count = usage_count + 1, updated_at = NOW()
		WHERE id = $1 AND (usage_limit = 0 OR usage_count < usage_limit)`
)

const uniqueViolationCode = "23505"

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// Create persists a new coupon and fills in its database-assigned timestamps.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	err := r.pool.QueryRow(ctx, insertCouponSQL,
		c.ID, c.Code, string(c.Type), []byte(c.Details), c.IsActive, c.ExpiryDate,
		c.UsageLimit, c.PerUserLimit, c.MinCartValue, c.MaxDiscount,
		c.Description, c.CreatedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return coupon.ErrCodeExists
		}
		return errors.Wrapf(err, "create coupon %s", c.Code)
	}
	return nil
}

// List returns coupons in creation order, optionally including inactive ones.
func (r *CouponRepository) List(ctx context.Context, includeInactive bool) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL, includeInactive)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}

	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

// GetByID looks up a coupon by its ID. Returns coupon.ErrNotFound when no
// such coupon exists.
func (r *CouponRepository) GetByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %s", id)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find coupon %s", id)
	}
	return &c, nil
}

// GetByCode looks up a coupon by its code (case-insensitive). Returns
// coupon.ErrNotFound when no such coupon exists.
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon by code %s", code)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find coupon by code %s", code)
	}
	return &c, nil
}

// Update overwrites the mutable columns of a stored coupon.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.pool.Exec(ctx, updateCouponSQL,
		c.ID, c.Code, []byte(c.Details), c.IsActive, c.ExpiryDate,
		c.UsageLimit, c.MinCartValue, c.MaxDiscount, c.Description,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return coupon.ErrCodeExists
		}
		return errors.Wrapf(err, "update coupon %s", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon. Returns coupon.ErrNotFound when no row matched.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete coupon %s", id)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// ListCodes returns every stored coupon code.
func (r *CouponRepository) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listCouponCodesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list coupon codes")
	}

	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "list coupon codes")
	}
	return codes, nil
}

// IncrementUsage bumps the usage counter with the limit guard applied in the
// same statement. A zero-row result means either the coupon is gone or its
// limit is exhausted; the follow-up read distinguishes the two.
func (r *CouponRepository) IncrementUsage(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, incrementUsageSQL, id)
	if err != nil {
		return errors.Wrapf(err, "increment usage for coupon %s", id)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return coupon.ErrUsageLimitReached
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c       coupon.Coupon
		ctype   string
		details []byte
	)
	err := row.Scan(
		&c.ID, &c.Code, &ctype, &details, &c.IsActive, &c.ExpiryDate,
		&c.UsageLimit, &c.UsageCount, &c.PerUserLimit, &c.MinCartValue, &c.MaxDiscount,
		&c.Description, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	c.Type = coupon.Type(ctype)
	c.Details = details
	return c, err
}
