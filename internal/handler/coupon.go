package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coupon-service/internal/domain/coupon"
)

// CreateCoupon handles POST /coupons.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if err := h.validateDetails(coupon.Type(req.Type), req.Details); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.service.Create(r.Context(), coupon.CreateParams{
		Code:         req.Code,
		Type:         coupon.Type(req.Type),
		Details:      req.Details,
		ExpiryDate:   req.ExpiryDate,
		UsageLimit:   req.UsageLimit,
		PerUserLimit: req.PerUserLimit,
		MinCartValue: req.MinCartValue,
		MaxDiscount:  req.MaxDiscount,
		Description:  req.Description,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	zctx.From(r.Context()).Info("coupon created",
		zap.String("coupon_id", c.ID), zap.String("code", c.Code))
	writeData(w, http.StatusCreated, toCouponResponse(c))
}

// ListCoupons handles GET /coupons. Pass ?include_inactive=true for the full
// catalogue.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	coupons, err := h.service.List(r.Context(), includeInactive)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]couponResponse, len(coupons))
	for i := range coupons {
		out[i] = toCouponResponse(&coupons[i])
	}
	writeList(w, out, len(out))
}

// GetCoupon handles GET /coupons/{id}.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, toCouponResponse(c))
}

// GetCouponByCode handles GET /coupons/code/{code}.
func (h *Handler) GetCouponByCode(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, toCouponResponse(c))
}

// UpdateCoupon handles PUT /coupons/{id}. Only the provided fields change.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req updateCouponRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	id := chi.URLParam(r, "id")

	if req.Details != nil {
		c, err := h.service.GetByID(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if err := h.validateDetails(c.Type, req.Details); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	c, err := h.service.Update(r.Context(), id, coupon.UpdateParams{
		Code:         req.Code,
		Details:      req.Details,
		IsActive:     req.IsActive,
		ExpiryDate:   req.ExpiryDate,
		UsageLimit:   req.UsageLimit,
		MinCartValue: req.MinCartValue,
		MaxDiscount:  req.MaxDiscount,
		Description:  req.Description,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, toCouponResponse(c))
}

// DeleteCoupon handles DELETE /coupons/{id}.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	zctx.From(r.Context()).Info("coupon deleted", zap.String("coupon_id", id))
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "coupon deleted"})
}

// GetCouponStats handles GET /coupons/{id}/stats.
func (h *Handler) GetCouponStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, statsResponse{
		TotalUsages:        stats.TotalUsages,
		TotalDiscountGiven: stats.TotalDiscountGiven.InexactFloat64(),
		AverageDiscount:    stats.AverageDiscount.InexactFloat64(),
	})
}

// ApplicableCoupons handles POST /applicable-coupons: evaluate the cart
// against every active coupon and report the ones that would discount it.
func (h *Handler) ApplicableCoupons(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	items, err := toCartItems(req.Cart)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	applicable, err := h.service.Applicable(r.Context(), items)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]applicableCouponResponse, len(applicable))
	for i, a := range applicable {
		out[i] = applicableCouponResponse{
			CouponID: a.Coupon.ID,
			Code:     a.Coupon.Code,
			Type:     string(a.Coupon.Type),
			Discount: a.Discount.Discount.InexactFloat64(),
		}
	}
	writeList(w, out, len(out))
}

// ApplyCoupon handles POST /apply-coupon/{id}: redeem the coupon against the
// cart and return the per-item priced result.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	items, err := toCartItems(req.Cart)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	updated, err := h.service.Apply(r.Context(), coupon.ApplyParams{
		CouponID: id,
		Items:    items,
		UserID:   req.UserID,
		OrderID:  req.OrderID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	zctx.From(r.Context()).Info("coupon applied",
		zap.String("coupon_id", id),
		zap.String("discount", updated.TotalDiscount.String()))
	writeData(w, http.StatusOK, toUpdatedCartResponse(updated))
}
