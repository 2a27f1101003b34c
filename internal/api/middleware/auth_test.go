package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"hookrelay/internal/platform/auth"
	"hookrelay/internal/platform/config"
	"hookrelay/internal/platform/metrics"
)

func TestAuthMiddleware(t *testing.T) {
	tokenSvc := auth.NewTokenService(config.JWTConfig{Secret: "test-secret", AccessTokenTTL: time.Hour})
	middleware := NewAuthMiddleware(tokenSvc)

	handler := middleware.Handle(func(w http.ResponseWriter, r *http.Request) {
		if Owner(r) != "u1" {
			t.Errorf("Expected owner u1, got %q", Owner(r))
		}
		w.WriteHeader(http.StatusOK)
	})

	t.Run("Valid Token", func(t *testing.T) {
		token, _ := tokenSvc.GenerateAccessToken("u1")
		req, _ := http.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
		}
	})

	for name, header := range map[string]string{
		"Missing Header": "",
		"Wrong Scheme":   "Basic abc",
		"Invalid Token":  "Bearer not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestOwner_NoClaims(t *testing.T) {
	req, _ := http.NewRequest("GET", "/", nil)
	if Owner(req) != "" {
		t.Error("Expected empty owner without claims")
	}
}

func TestInstrument(t *testing.T) {
	handler := Instrument("/things/:id")(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/things/:id", "418"))

	rr := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/things/42", nil)
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Errorf("Expected status to pass through, got %d", rr.Code)
	}
	after := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/things/:id", "418"))
	if after != before+1 {
		t.Errorf("Expected request counter to increase by 1, got %v -> %v", before, after)
	}
}
