package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"licensedesk.app/server/internal/testutil"
	"licensedesk.app/server/license"
	"licensedesk.app/server/storage"
)

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(storage.NewMemoryStorage())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("Expected status healthy, got %s", resp.Status)
	}
	if resp.Version != "test" {
		t.Errorf("Expected version test, got %s", resp.Version)
	}
}

func TestRequestCounter(t *testing.T) {
	server := newTestServer(storage.NewMemoryStorage())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		server.Router.ServeHTTP(httptest.NewRecorder(), req)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.RequestsServed < 4 {
		t.Errorf("Expected at least 4 requests counted, got %d", resp.RequestsServed)
	}
}

func TestValidateIsRateLimited(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.RateLimitMax = 2
	cfg.RateLimitWindow = time.Minute

	store := storage.NewMemoryStorage()
	server := NewHTTPServer(cfg, license.NewEngine(store), "test")

	var lastCode int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/licenses/validate",
			testutil.MarshalBody(t, ValidateRequest{Email: "a@b.c", CredentialSecret: "x"}))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		server.Router.ServeHTTP(w, req)
		lastCode = w.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Errorf("Expected status %d on third request, got %d", http.StatusTooManyRequests, lastCode)
	}
}

func TestOtherEndpointsNotRateLimited(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.RateLimitMax = 1

	store := storage.NewMemoryStorage()
	server := NewHTTPServer(cfg, license.NewEngine(store), "test")

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/licenses", nil)
		w := httptest.NewRecorder()
		server.Router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status %d on request %d, got %d", http.StatusOK, i, w.Code)
		}
	}
}

func TestStripeWebhookDisabledWithoutConfig(t *testing.T) {
	server := newTestServer(storage.NewMemoryStorage())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", nil)
	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d when Stripe is not configured, got %d", http.StatusNotFound, w.Code)
	}
}
