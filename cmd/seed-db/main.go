// Command seed-db loads a starter coupon catalogue into the database. By
// default it seeds the embedded catalogue; pass -coupons-file to use another.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-service/db"
	"github.com/xenking/coupon-service/internal/domain/coupon"
	"github.com/xenking/coupon-service/internal/repository"
)

type couponJSON struct {
	Code         string          `json:"code"`
	Type         string          `json:"type"`
	Details      json.RawMessage `json:"details"`
	ExpiryDate   *time.Time      `json:"expiry_date"`
	UsageLimit   int             `json:"usage_limit"`
	PerUserLimit int             `json:"per_user_limit"`
	MinCartValue decimal.Decimal `json:"min_cart_value"`
	MaxDiscount  decimal.Decimal `json:"max_discount"`
	Description  string          `json:"description"`
}

func main() {
	var (
		databaseURL string
		couponsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&couponsFile, "coupons-file", "", "path to coupons JSON file (default: embedded catalogue)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, couponsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, couponsFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	data := db.SeedCoupons
	if couponsFile != "" {
		data, err = os.ReadFile(couponsFile)
		if err != nil {
			return errors.Wrap(err, "read coupons file")
		}
	}

	var coupons []couponJSON
	if err := json.Unmarshal(data, &coupons); err != nil {
		return errors.Wrap(err, "parse coupons")
	}

	repo := repository.NewCouponRepository(pool)

	seeded := 0
	for _, cj := range coupons {
		t := coupon.Type(cj.Type)
		if !t.Valid() {
			return errors.Errorf("coupon %q has unknown type %q", cj.Code, cj.Type)
		}

		c := &coupon.Coupon{
			ID:           uuid.New().String(),
			Code:         strings.ToUpper(cj.Code),
			Type:         t,
			Details:      cj.Details,
			IsActive:     true,
			ExpiryDate:   cj.ExpiryDate,
			UsageLimit:   cj.UsageLimit,
			PerUserLimit: cj.PerUserLimit,
			MinCartValue: cj.MinCartValue,
			MaxDiscount:  cj.MaxDiscount,
			Description:  cj.Description,
			CreatedBy:    "seed",
		}
		if err := repo.Create(ctx, c); err != nil {
			if errors.Is(err, coupon.ErrCodeExists) {
				slog.Info("coupon already exists, skipping", slog.String("code", c.Code))
				continue
			}
			return errors.Wrapf(err, "seed coupon %q", c.Code)
		}
		seeded++
	}

	slog.Info("coupons seeded", slog.Int("count", seeded), slog.Int("total", len(coupons)))
	return nil
}
