package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/coupon-service/internal/domain/coupon"
)

// envelope is the common response shape for every endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type couponResponse struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	Type         string          `json:"type"`
	Details      json.RawMessage `json:"details"`
	IsActive     bool            `json:"is_active"`
	ExpiryDate   *time.Time      `json:"expiry_date,omitempty"`
	UsageLimit   int             `json:"usage_limit"`
	UsageCount   int             `json:"usage_count"`
	PerUserLimit int             `json:"per_user_limit"`
	MinCartValue float64         `json:"min_cart_value"`
	MaxDiscount  float64         `json:"max_discount"`
	Description  string          `json:"description,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type applicableCouponResponse struct {
	CouponID string  `json:"coupon_id"`
	Code     string  `json:"code"`
	Type     string  `json:"type"`
	Discount float64 `json:"discount"`
}

type pricedItemResponse struct {
	ProductID     string  `json:"product_id"`
	Quantity      int     `json:"quantity"`
	Price         float64 `json:"price"`
	TotalDiscount float64 `json:"total_discount"`
}

type updatedCartResponse struct {
	Items         []pricedItemResponse `json:"items"`
	TotalPrice    float64              `json:"total_price"`
	TotalDiscount float64              `json:"total_discount"`
	FinalPrice    float64              `json:"final_price"`
	Coupon        appliedCouponInfo    `json:"coupon"`
}

type appliedCouponInfo struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Type string `json:"type"`
}

type statsResponse struct {
	TotalUsages        int     `json:"total_usages"`
	TotalDiscountGiven float64 `json:"total_discount_given"`
	AverageDiscount    float64 `json:"average_discount"`
}

func toCouponResponse(c *coupon.Coupon) couponResponse {
	return couponResponse{
		ID:           c.ID,
		Code:         c.Code,
		Type:         string(c.Type),
		Details:      c.Details,
		IsActive:     c.IsActive,
		ExpiryDate:   c.ExpiryDate,
		UsageLimit:   c.UsageLimit,
		UsageCount:   c.UsageCount,
		PerUserLimit: c.PerUserLimit,
		MinCartValue: c.MinCartValue.InexactFloat64(),
		MaxDiscount:  c.MaxDiscount.InexactFloat64(),
		Description:  c.Description,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func toUpdatedCartResponse(u *coupon.UpdatedCart) updatedCartResponse {
	items := make([]pricedItemResponse, len(u.Items))
	for i, item := range u.Items {
		items[i] = pricedItemResponse{
			ProductID:     string(item.ProductID),
			Quantity:      item.Quantity,
			Price:         item.Price.InexactFloat64(),
			TotalDiscount: item.TotalDiscount.InexactFloat64(),
		}
	}
	return updatedCartResponse{
		Items:         items,
		TotalPrice:    u.OriginalTotal.InexactFloat64(),
		TotalDiscount: u.TotalDiscount.InexactFloat64(),
		FinalPrice:    u.FinalPrice.InexactFloat64(),
		Coupon: appliedCouponInfo{
			ID:   u.Coupon.ID,
			Code: u.Coupon.Code,
			Type: string(u.Coupon.Type),
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, resp envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeList(w http.ResponseWriter, data any, count int) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Count: &count})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

// writeServiceError maps domain errors onto HTTP statuses. Anything
// unrecognized is a 500 with a generic message so internals stay private.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		notApplicable *coupon.NotApplicableError
		minCart       *coupon.MinCartValueError
	)
	switch {
	case errors.Is(err, coupon.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, coupon.ErrCodeExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, coupon.ErrInactive),
		errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrUsageLimitReached),
		errors.Is(err, coupon.ErrUnknownType),
		errors.As(err, &notApplicable),
		errors.As(err, &minCart):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
