package api

import (
	"net/http"
	"slices"
)

// Roles asserted by the upstream gateway in X-User-Role
const (
	RoleAdmin   = "ADMIN"
	RoleAnalyst = "ANALYST"
	RoleViewer  = "VIEWER"
)

// requireRoles rejects requests without X-User-ID, and with no roles given
// admits any authenticated caller
func requireRoles(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-User-ID") == "" {
			writeError(w, http.StatusUnauthorized, "authentication required", nil)
			return
		}
		if len(roles) > 0 && !slices.Contains(roles, r.Header.Get("X-User-Role")) {
			writeError(w, http.StatusForbidden, "insufficient role", nil)
			return
		}
		next(w, r)
	}
}
