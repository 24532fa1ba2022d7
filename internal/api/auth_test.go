package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AaronLay10/animgraph/internal/config"
)

func testAuth() *Auth {
	return NewAuth(config.APIConfig{
		AdminUser:    "admin",
		AdminPass:    "secret",
		OperatorUser: "operator",
		OperatorPass: "opsecret",
	})
}

func okHandler(called *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}
}

func TestAuthDisabledWithoutCredentials(t *testing.T) {
	a := NewAuth(config.APIConfig{})
	if a.Enabled() {
		t.Error("auth should be disabled without credentials")
	}

	called := false
	handler := a.RequireAdmin(okHandler(&called))
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest("GET", "/test", nil))

	if !called {
		t.Error("handler should be called when auth is disabled")
	}
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestAuthRequiresCredentials(t *testing.T) {
	a := testAuth()
	if !a.Enabled() {
		t.Fatal("auth should be enabled")
	}

	called := false
	handler := a.RequireAnyRole(okHandler(&called))
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest("GET", "/test", nil))

	if called {
		t.Error("handler should not be called without credentials")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header")
	}
}

func TestAuthRoles(t *testing.T) {
	a := testAuth()

	tests := []struct {
		name      string
		user      string
		pass      string
		adminOnly bool
		want      int
	}{
		{"admin on any", "admin", "secret", false, http.StatusOK},
		{"operator on any", "operator", "opsecret", false, http.StatusOK},
		{"admin on admin", "admin", "secret", true, http.StatusOK},
		{"operator on admin", "operator", "opsecret", true, http.StatusForbidden},
		{"wrong password", "admin", "nope", false, http.StatusUnauthorized},
		{"unknown user", "mallory", "secret", false, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := a.RequireAnyRole(okHandler(&called))
			if tt.adminOnly {
				handler = a.RequireAdmin(okHandler(&called))
			}
			req := httptest.NewRequest("POST", "/test", nil)
			req.SetBasicAuth(tt.user, tt.pass)
			w := httptest.NewRecorder()
			handler(w, req)

			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, w.Code)
			}
			if called != (tt.want == http.StatusOK) {
				t.Errorf("expected called=%v, got %v", tt.want == http.StatusOK, called)
			}
		})
	}
}

func TestAuthWithOnlyAdminConfigured(t *testing.T) {
	a := NewAuth(config.APIConfig{AdminUser: "admin", AdminPass: "secret"})

	called := false
	handler := a.RequireAnyRole(okHandler(&called))
	req := httptest.NewRequest("GET", "/test", nil)
	req.SetBasicAuth("", "")
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected empty operator credentials to be rejected, got %d", w.Code)
	}
}

func TestSecureCompare(t *testing.T) {
	if !secureCompare("abc", "abc") {
		t.Error("expected equal strings to match")
	}
	if secureCompare("abc", "abd") || secureCompare("abc", "ab") {
		t.Error("expected different strings not to match")
	}
}
