package authz

import "context"

// Principal describes the authenticated actor as resolved from the
// source store's employee record. Role attributes come in three loosely
// maintained columns; the policy matches across all of them.
type Principal struct {
	EmployeeID  int64
	BranchID    int64
	DisplayName string
	Rol         string
	Nivel       string
	Puesto      string
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal, ok=false when anonymous.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
