package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStripeConfigReturnsPublicKey(t *testing.T) {
	router := NewRouter(WithFunctionRoutes(NewStripeConfigHandlers(" pk_test_123 ", "").Routes))

	for _, path := range []string{"/stripe-config", "/.netlify/functions/stripe-config"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, rr.Code)
		}
		assertCORS(t, rr, "GET, OPTIONS")
		if got := decodeBody(t, rr)["publicKey"]; got != "pk_test_123" {
			t.Fatalf("%s: expected publicKey pk_test_123, got %v", path, got)
		}
	}
}

func TestStripeConfigEmptyKey(t *testing.T) {
	router := NewRouter(WithFunctionRoutes(NewStripeConfigHandlers("", "").Routes))

	req := httptest.NewRequest(http.MethodGet, "/stripe-config", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	key, ok := body["publicKey"]
	if !ok || key != "" {
		t.Fatalf("expected empty publicKey, got %v", body)
	}
}

func TestStripeConfigMethods(t *testing.T) {
	router := NewRouter(WithFunctionRoutes(NewStripeConfigHandlers("pk", "https://patch.example").Routes))

	req := httptest.NewRequest(http.MethodOptions, "/stripe-config", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Body.Len() != 0 {
		t.Fatalf("expected empty 200 preflight, got %d %q", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://patch.example" {
		t.Fatalf("expected configured origin, got %q", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/stripe-config", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rr.Code)
	}
	if got := decodeBody(t, rr)["error"]; got != "Method Not Allowed" {
		t.Fatalf("unexpected error %v", got)
	}
}
