package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIdentityFrom(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Authenticated", "true")
	r.Header.Set("X-Username", "jdoe")
	r.Header.Set("X-Roles", "admin, operator")

	id := identityFrom(r)
	if !id.Authenticated {
		t.Error("authenticated header not honored")
	}
	if id.Username != "jdoe" {
		t.Errorf("username = %q", id.Username)
	}
	if len(id.Roles) != 2 || id.Roles[0] != "admin" || id.Roles[1] != "operator" {
		t.Errorf("roles = %v", id.Roles)
	}
}

func TestIdentityFrom_Defaults(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	id := identityFrom(r)
	if id.Authenticated || id.Username != "" || len(id.Roles) != 0 {
		t.Errorf("identity from bare request = %+v", id)
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := securityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options header")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options header")
	}
}

func TestIPLimiter(t *testing.T) {
	l := newIPLimiter(2)

	if !l.allow("10.0.0.1") || !l.allow("10.0.0.1") {
		t.Fatal("burst requests should be allowed")
	}
	if l.allow("10.0.0.1") {
		t.Error("request over the burst should be rejected")
	}
	if !l.allow("10.0.0.2") {
		t.Error("limits must be tracked per IP")
	}
}
