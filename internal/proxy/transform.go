package proxy

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ingressgw/internal/core"
)

const correlationHeader = "X-Correlation-Id"

// annotateSpan attaches correlation_id, user_id, and tenant_id to the
// active span, when available. A nil/no-op span (no tracer configured) is
// a safe target for SetAttributes.
func annotateSpan(span trace.Span, correlationID string, principal *core.Principal) {
	attrs := []attribute.KeyValue{attribute.String("correlation_id", correlationID)}
	if principal != nil {
		if principal.UserID != "" {
			attrs = append(attrs, attribute.String("user_id", principal.UserID))
		}
		if principal.TenantID != "" {
			attrs = append(attrs, attribute.String("tenant_id", principal.TenantID))
		}
	}
	span.SetAttributes(attrs...)
}

// identityClaims is the subset of an authenticated principal's claims the
// gateway forwards upstream, represented with jwt.MapClaims the way an
// already-verified token's claims would be represented — the gateway
// performs no verification of its own, it only forwards what it was
// handed.
type identityClaims jwt.MapClaims

func claimsFromPrincipal(p *core.Principal) identityClaims {
	c := identityClaims{}
	if p.UserID != "" {
		c["sub"] = p.UserID
	}
	if p.TenantID != "" {
		c["tenant_id"] = p.TenantID
	}
	if p.Email != "" {
		c["email"] = p.Email
	}
	if len(p.Roles) > 0 {
		c["roles"] = p.Roles
	}
	return c
}

// applyIdentityHeaders overwrites (never appends) the upstream identity
// headers from an authenticated principal's claims. Absent claims yield
// absent headers rather than empty ones.
func applyIdentityHeaders(headers map[string][]string, p *core.Principal) {
	if p == nil {
		return
	}
	claims := claimsFromPrincipal(p)

	if userID, ok := claims["sub"].(string); ok && userID != "" {
		setHeader(headers, "X-User-Id", userID)
	}
	if tenantID, ok := claims["tenant_id"].(string); ok && tenantID != "" {
		setHeader(headers, "X-Tenant-Id", tenantID)
	}
	if email, ok := claims["email"].(string); ok && email != "" {
		setHeader(headers, "X-User-Email", email)
	}
	if roles, ok := claims["roles"].([]string); ok && len(roles) > 0 {
		setHeader(headers, "X-User-Roles", strings.Join(roles, ","))
	}
}

func setHeader(headers map[string][]string, key, value string) {
	headers[key] = []string{value}
}
