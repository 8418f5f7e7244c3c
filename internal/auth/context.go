package auth

import "context"

type claimsContextKey struct{}

// WithClaims returns a context carrying the verified claims of the caller.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the caller's claims, or nil for unauthenticated
// requests.
func ClaimsFromContext(ctx context.Context) *Claims {
	if ctx == nil {
		return nil
	}
	claims, _ := ctx.Value(claimsContextKey{}).(*Claims)
	return claims
}
