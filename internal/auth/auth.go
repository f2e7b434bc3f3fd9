// Package auth authenticates API keys and gates operations by scope. Every
// principal is derived solely from the presented key; tenant is never read
// from a client-supplied header on a write path.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/google/uuid"
)

// Scope names, granted per API key, checked per operation.
const (
	ScopeContentRead    = "content:read"
	ScopeContentWrite   = "content:write"
	ScopeWebhooksManage = "webhooks:manage"
	ScopeKeysManage     = "keys:manage"
	ScopeAuditRead      = "audit:read"
	ScopePaymentsRead   = "payments:read"
	ScopeOffersPurchase = "offers:purchase"
	// ScopeAdmin grants every operation; used for the tenant's first key.
	ScopeAdmin = "*"
)

// Principal is the caller identity derived from a validated API key: the
// tenant it is scoped to, the set of scopes it was granted, and the actor id
// recorded on audit entries and policy decisions.
type Principal struct {
	ActorID   uuid.UUID
	TenantID  uuid.UUID
	KeyPrefix string
	Scopes    []string
}

// HasScope reports whether p is permitted to perform an operation requiring
// scope. ScopeAdmin on the principal satisfies any requirement.
func (p *Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == ScopeAdmin || s == scope {
			return true
		}
	}
	return false
}

type ctxKey string

const principalKey ctxKey = "auth_principal"

// NewContext attaches p to ctx.
func NewContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext extracts the principal attached by NewContext, or nil if the
// request has not passed authentication.
func FromContext(ctx context.Context) *Principal {
	v, _ := ctx.Value(principalKey).(*Principal)
	return v
}

// HashAPIKey returns the SHA-256 hex digest of a raw API key. Only the hash
// is ever persisted; the raw value is shown once, at creation or rotation.
func HashAPIKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// ConstantTimeEqual compares two hex-encoded hashes without leaking timing
// information, for comparing a hash outside of a database lookup.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
