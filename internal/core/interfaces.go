// Package core holds the request-scoped types shared across the proxy
// pipeline: the HTTPRequest wrapper pipeline.go forwards and the
// authenticated Principal transform.go reads off the request context.
package core

import "context"

// Principal is the already-authenticated caller identity the gateway
// receives from an upstream authentication step. The gateway never
// verifies credentials itself; it only forwards these claims.
type Principal struct {
	UserID   string
	TenantID string
	Email    string
	Roles    []string
}

// principalKey is the context key under which a Principal, if any, is
// stored by the collaborator that authenticated the request.
type principalKey struct{}

// WithPrincipal attaches an authenticated principal to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal attached to ctx, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
