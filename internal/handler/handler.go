// Package handler exposes the coupon service over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/coupon-service/internal/domain/coupon"
)

// Handler carries the HTTP endpoints for coupon management and application.
type Handler struct {
	service  *coupon.Service
	validate *validator.Validate
}

// NewHandler constructs a Handler around the coupon service.
func NewHandler(service *coupon.Service) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes returns the API router. Mount it under the server's API prefix.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/coupons", func(r chi.Router) {
		r.Post("/", h.CreateCoupon)
		r.Get("/", h.ListCoupons)
		r.Get("/code/{code}", h.GetCouponByCode)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetCoupon)
			r.Put("/", h.UpdateCoupon)
			r.Delete("/", h.DeleteCoupon)
			r.Get("/stats", h.GetCouponStats)
		})
	})

	r.Post("/applicable-coupons", h.ApplicableCoupons)
	r.Post("/apply-coupon/{id}", h.ApplyCoupon)

	return r
}

// NotFound is the router-level fallback for unknown API paths.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "route not found")
}
