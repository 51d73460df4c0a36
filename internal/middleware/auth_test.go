package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	guarded := TokenMiddleware("s3cret")(ok)

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"no token", "/api/session", "", http.StatusUnauthorized},
		{"bearer", "/api/session", "Bearer s3cret", http.StatusOK},
		{"wrong bearer", "/api/session", "Bearer nope", http.StatusUnauthorized},
		{"query", "/api/view?token=s3cret", "", http.StatusOK},
		{"wrong query", "/api/view?token=s3", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			guarded.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestTokenMiddleware_Disabled(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	TokenMiddleware("")(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("Empty token should not guard anything")
	}
}
