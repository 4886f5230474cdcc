package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPolicy_RequiredRole(t *testing.T) {
	policy := NewDefaultPolicy([]string{"/healthz"}, []string{"/static/"})
	cases := []struct {
		method string
		path   string
		role   Role
		ok     bool
	}{
		{http.MethodPost, "/api/v1/users/7/notification-flags", RoleAdmin, true},
		{http.MethodPut, "/api/v1/users/7/company-code", RoleAdmin, true},
		{http.MethodPost, "/api/v1/inverters/sync", RoleOperator, true},
		{http.MethodPost, "/api/v1/logout", RoleViewer, true},
		{http.MethodGet, "/api/v1/views", RoleViewer, true},
		{http.MethodPost, "/api/v1/views/users/refresh", RoleViewer, true},
		{http.MethodDelete, "/api/v1/views/users", RoleViewer, true},
		{http.MethodGet, "/api/v1/exports/faults.pdf", RoleViewer, true},
		{http.MethodGet, "/api/v1/plants/statistics/day", RoleViewer, true},
		{http.MethodPatch, "/api/v1/anything", RoleOperator, true},
		{http.MethodGet, "/favicon.ico", "", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		role, ok := policy.RequiredRole(req)
		if role != tc.role || ok != tc.ok {
			t.Errorf("%s %s: got (%q, %v), want (%q, %v)", tc.method, tc.path, role, ok, tc.role, tc.ok)
		}
	}
}

func TestPolicy_IsExempt(t *testing.T) {
	policy := NewDefaultPolicy([]string{"/healthz"}, []string{"/static/"})
	if !policy.IsExempt(httptest.NewRequest(http.MethodGet, "/healthz", nil)) {
		t.Fatal("expected /healthz exempt")
	}
	if !policy.IsExempt(httptest.NewRequest(http.MethodGet, "/static/app.js", nil)) {
		t.Fatal("expected prefix exempt")
	}
	if policy.IsExempt(httptest.NewRequest(http.MethodGet, "/api/v1/views", nil)) {
		t.Fatal("views must not be exempt")
	}
}
