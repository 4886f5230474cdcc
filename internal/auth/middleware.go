package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Middleware validates JWTs, resolves the session and enforces RBAC.
type Middleware struct {
	Secret   []byte
	Policy   Policy
	Sessions *SessionStore
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy, sessions *SessionStore) *Middleware {
	return &Middleware{Secret: secret, Policy: policy, Sessions: sessions}
}

// Wrap applies auth and RBAC to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		required, ok := m.Policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := ParseJWT(extractBearer(r), m.Secret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if m.Sessions == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		session, ok := m.Sessions.Get(claims.SessionID)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !RoleAtLeast(session.Role, required) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

// writeError answers with the API's JSON error body.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
