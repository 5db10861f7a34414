//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestHealthEndpoints(t *testing.T) {
	for _, path := range []string{"/livez", "/readyz"} {
		resp := doGet(t, path)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d, want 200", path, resp.StatusCode)
		}

		var health healthResponse
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
		resp.Body.Close()

		if health.Status != "ok" {
			t.Fatalf("%s status = %q, checks = %v", path, health.Status, health.Checks)
		}
	}
}

func TestSeededCatalogue(t *testing.T) {
	resp := doGet(t, "/api/coupons")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d, want 200", resp.StatusCode)
	}

	env := decodeEnvelope(t, resp)
	if !env.Success {
		t.Fatalf("list failed: %s", env.Error)
	}
	if env.Count < 5 {
		t.Fatalf("seeded coupons = %d, want at least 5", env.Count)
	}

	resp = doGet(t, "/api/coupons/code/cart10")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get by code status = %d, want 200", resp.StatusCode)
	}
	c := decodeData[couponResponse](t, decodeEnvelope(t, resp))
	if c.Code != "CART10" || c.Type != "cart-wise" {
		t.Fatalf("unexpected coupon: %+v", c)
	}
}

func TestCouponLifecycle(t *testing.T) {
	// Create.
	resp := doPost(t, "/api/coupons", map[string]any{
		"code":    "ITWEEK",
		"type":    "product-wise",
		"details": map[string]any{"product_id": "42", "discount": 25},
	})
	if resp.StatusCode != http.StatusCreated {
		env := decodeEnvelope(t, resp)
		t.Fatalf("create status = %d: %s", resp.StatusCode, env.Error)
	}
	created := decodeData[couponResponse](t, decodeEnvelope(t, resp))
	if created.ID == "" {
		t.Fatal("created coupon has no id")
	}

	// Duplicate code conflicts.
	resp = doPost(t, "/api/coupons", map[string]any{
		"code":    "itweek",
		"type":    "product-wise",
		"details": map[string]any{"product_id": "42", "discount": 25},
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	// Update.
	resp = doRequest(t, http.MethodPut, "/api/coupons/"+created.ID, map[string]any{
		"max_discount": 30,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d, want 200", resp.StatusCode)
	}
	updated := decodeData[couponResponse](t, decodeEnvelope(t, resp))
	if updated.MaxDiscount != 30 {
		t.Fatalf("max_discount = %v, want 30", updated.MaxDiscount)
	}

	// Delete, then confirm gone.
	resp = doRequest(t, http.MethodDelete, "/api/coupons/"+created.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doGet(t, "/api/coupons/"+created.ID)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestApplicableCoupons(t *testing.T) {
	resp := doPost(t, "/api/applicable-coupons", cartBody(
		map[string]any{"product_id": "1", "quantity": 4, "price": 50},
		map[string]any{"product_id": "3", "quantity": 2, "price": 25},
	))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("applicable status = %d, want 200", resp.StatusCode)
	}

	env := decodeEnvelope(t, resp)
	coupons := decodeData[[]applicableCouponResponse](t, env)

	byCode := make(map[string]applicableCouponResponse, len(coupons))
	for _, c := range coupons {
		byCode[c.Code] = c
	}

	// Cart total 250: CART10 gives 10% = 25.
	if c, ok := byCode["CART10"]; !ok || c.Discount != 25 {
		t.Fatalf("CART10 = %+v (present=%v), want discount 25", c, ok)
	}
	// B2G1: 4 of product 1 buys 2 batches, 2 free units of product 3 at 25.
	if c, ok := byCode["B2G1"]; !ok || c.Discount != 50 {
		t.Fatalf("B2G1 = %+v (present=%v), want discount 50", c, ok)
	}
	// Threshold 500 not reached.
	if _, ok := byCode["BIGSPENDER"]; ok {
		t.Fatal("BIGSPENDER should not be applicable to a 250 cart")
	}
}

func TestApplyCouponFlow(t *testing.T) {
	// Look up the seeded cart-wise coupon.
	resp := doGet(t, "/api/coupons/code/CART10")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get by code status = %d, want 200", resp.StatusCode)
	}
	c := decodeData[couponResponse](t, decodeEnvelope(t, resp))

	// Apply it to a qualifying cart.
	resp = doPost(t, "/api/apply-coupon/"+c.ID, map[string]any{
		"cart": map[string]any{
			"items": []map[string]any{
				{"product_id": "1", "quantity": 2, "price": 50},
				{"product_id": "2", "quantity": 1, "price": 60},
			},
		},
		"user_id":  "integration",
		"order_id": "order-1",
	})
	if resp.StatusCode != http.StatusOK {
		env := decodeEnvelope(t, resp)
		t.Fatalf("apply status = %d: %s", resp.StatusCode, env.Error)
	}

	cart := decodeData[updatedCartResponse](t, decodeEnvelope(t, resp))
	if cart.TotalPrice != 160 || cart.TotalDiscount != 16 || cart.FinalPrice != 144 {
		t.Fatalf("cart = %+v, want 160/16/144", cart)
	}

	// Usage shows up in stats.
	resp = doGet(t, "/api/coupons/"+c.ID+"/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", resp.StatusCode)
	}
	stats := decodeData[statsResponse](t, decodeEnvelope(t, resp))
	if stats.TotalUsages < 1 {
		t.Fatalf("stats = %+v, want at least one usage", stats)
	}

	// A cart below the threshold is rejected with a reason.
	resp = doPost(t, "/api/apply-coupon/"+c.ID, cartBody(
		map[string]any{"product_id": "1", "quantity": 1, "price": 10},
	))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("below-threshold status = %d, want 400", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if env.Error == "" {
		t.Fatal("below-threshold rejection has no error message")
	}
}

func TestUnknownRouteAndRateLimitHeaders(t *testing.T) {
	resp := doGet(t, "/api/nope")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown route status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doGet(t, "/api/coupons")
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}
	if resp.Header.Get("X-RateLimit-Limit") == "" {
		t.Fatal("missing rate limit headers")
	}
	resp.Body.Close()
}
