package rbac

import (
	"net/http"
	"strings"

	"github.com/psantana5/smartworking/pkg/auth"
	"github.com/psantana5/smartworking/pkg/models"
)

// Verifier resolves a bearer token to its claims
type Verifier interface {
	Authenticate(token string) (*auth.Claims, error)
}

// Authenticate requires a valid bearer token and puts the caller in context
func Authenticate(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				deny(w, http.StatusUnauthorized, `{"error":"unauthorized","message":"Authentication required"}`)
				return
			}

			claims, err := v.Authenticate(strings.TrimSpace(token))
			if err != nil || claims.Subject == "" || !claims.Role.IsValid() {
				deny(w, http.StatusUnauthorized, `{"error":"unauthorized","message":"Invalid or expired token"}`)
				return
			}

			ctx := WithUser(r.Context(), claims.Subject, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole middleware that checks for a specific role
func RequireRole(role models.Role) func(http.Handler) http.Handler {
	return RequireAnyRole(role)
}

// RequireAnyRole middleware that checks for any of the given roles
func RequireAnyRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userRole := GetUserRole(r.Context())
			for _, role := range roles {
				if userRole == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			deny(w, http.StatusForbidden, `{"error":"forbidden","message":"Insufficient role"}`)
		})
	}
}

// ManagerOnly middleware that allows only managers
func ManagerOnly(next http.Handler) http.Handler {
	return RequireRole(models.RoleManager)(next)
}

// EmployeeOnly middleware that allows only employees
func EmployeeOnly(next http.Handler) http.Handler {
	return RequireRole(models.RoleEmployee)(next)
}

func deny(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body + "\n"))
}
