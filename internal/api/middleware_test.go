package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/stock-watchlist/internal/wsgateway"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		origin   string
		expected string
	}{
		{"default origin", "", "*"},
		{"configured origin", "https://watch.example.com", "https://watch.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := CORSMiddleware(tt.origin)(okHandler())

			req := httptest.NewRequest("GET", "/test", nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.expected {
				t.Errorf("Expected origin %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCORSMiddleware_OPTIONS(t *testing.T) {
	called := false
	handler := CORSMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest("OPTIONS", "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d for OPTIONS, got %d", http.StatusOK, w.Code)
	}
	if called {
		t.Error("Expected preflight to stop before the handler")
	}
}

func TestLoggingMiddleware(t *testing.T) {
	router := mux.NewRouter()
	router.Use(mux.MiddlewareFunc(LoggingMiddleware()))
	router.HandleFunc("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		if got := routeTemplate(r); got != "/items/{id}" {
			t.Errorf("Expected route template /items/{id}, got %s", got)
		}
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest("GET", "/items/42", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Errorf("Expected status %d, got %d", http.StatusTeapot, w.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
	}{
		{"string panic", "test panic"},
		{"error panic", errors.New("boom")},
		{"int panic", 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic(tt.value)
			}))

			req := httptest.NewRequest("GET", "/test", nil)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusInternalServerError {
				t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
			}
		})
	}
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func TestAuthMiddleware(t *testing.T) {
	auth := wsgateway.NewAuthManager("secret")
	valid := signToken(t, "secret", jwt.MapClaims{
		"user_id": "alice",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	forged := signToken(t, "other", jwt.MapClaims{"user_id": "mallory"})

	tests := []struct {
		name          string
		header        string
		expected      int
		expectedOwner string
	}{
		{"valid bearer", "Bearer " + valid, http.StatusOK, "alice"},
		{"missing token", "", http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + forged, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var owner string
			handler := AuthMiddleware(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				owner = ownerFrom(r)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest("GET", "/api/v1/monitors", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, w.Code)
			}
			if owner != tt.expectedOwner {
				t.Errorf("Expected owner %q, got %q", tt.expectedOwner, owner)
			}
		})
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	var owner string
	handler := AuthMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner = ownerFrom(r)
	}))

	req := httptest.NewRequest("GET", "/api/v1/monitors", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if owner != wsgateway.DefaultOwner {
		t.Errorf("Expected owner %q, got %q", wsgateway.DefaultOwner, owner)
	}
}

func TestNewRouter(t *testing.T) {
	handler, store, checker := newTestHandler(t)
	seedMonitor(t, store, wsgateway.DefaultOwner, "sz159509")
	market := NewMarketHandler(stubCalendar{open: true}, stubSource{}, nil, nil, nil)

	router := NewRouter(RouterConfig{Monitors: handler, Market: market})

	tests := []struct {
		method   string
		path     string
		expected int
	}{
		{"GET", "/health", http.StatusOK},
		{"GET", "/ready", http.StatusOK},
		{"GET", "/live", http.StatusOK},
		{"GET", "/metrics", http.StatusOK},
		{"GET", "/api/v1/monitors", http.StatusOK},
		{"GET", "/api/v1/monitors/export", http.StatusOK},
		{"POST", "/api/v1/monitors/check", http.StatusAccepted},
		{"GET", "/api/v1/monitors/missing", http.StatusNotFound},
		{"GET", "/api/v1/market/status", http.StatusOK},
		{"OPTIONS", "/api/v1/monitors", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, w.Code)
			}
		})
	}

	if checker.calls != 1 {
		t.Errorf("Expected check to reach the poller once, got %d", checker.calls)
	}
}

func TestRespondWithError(t *testing.T) {
	w := httptest.NewRecorder()
	respondWithError(w, http.StatusBadRequest, "bad input")

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to unmarshal body: %v", err)
	}
	if body["error"] != "bad input" {
		t.Errorf("Expected error message, got %v", body["error"])
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Expected JSON content type")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimitMiddleware(2)(okHandler())

	send := func(owner string) int {
		req := asOwner(httptest.NewRequest("GET", "/test", nil), owner)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("alice"); code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, code)
	}
	if code := send("alice"); code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, code)
	}
	if code := send("alice"); code != http.StatusTooManyRequests {
		t.Errorf("Expected status %d, got %d", http.StatusTooManyRequests, code)
	}

	// Limits are kept per owner
	if code := send("bob"); code != http.StatusOK {
		t.Errorf("Expected status %d for another owner, got %d", http.StatusOK, code)
	}
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	handler := RateLimitMiddleware(0)(okHandler())

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
		}
	}
}
