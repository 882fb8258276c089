package rbac

import (
	"net/http"
)

var defaultChecker = NewChecker(nil)

// Require rejects the request with 403 unless the role already attached to
// the context holds the permission. Routes carry exactly one permission;
// broader grants come from wildcards in the role policy.
func Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if role == "" || !defaultChecker.Has(role, perm) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
