package authz

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sucursal-ops/sucursal-ops/internal/shared"
)

// PrincipalLoader resolves the employee behind a session into a Principal.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, employeeID int64) (Principal, error)
}

// Middleware wires authorization helpers for HTTP handlers.
type Middleware struct {
	Loader PrincipalLoader
	Logger *slog.Logger
}

// RequireAuthenticated resolves the session employee into a principal
// and rejects anonymous requests.
func (m Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.Employee() == 0 {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		principal, err := m.Loader.LoadPrincipal(r.Context(), sess.Employee())
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("load principal", slog.Any("error", err))
			}
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequireSupervisor rejects principals below supervisor level.
func (m Middleware) RequireSupervisor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok || !IsSupervisor(principal) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
