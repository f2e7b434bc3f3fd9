// Package apikey implements the /auth/keys surface: creating, listing,
// rotating, and revoking tenant API keys.
package apikey

import (
	"time"

	"github.com/google/uuid"
)

// Key is an API key row as stored in public.api_keys. The raw secret is
// never persisted, only its SHA-256 hash.
type Key struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Name       string
	KeyPrefix  string
	KeyHash    string
	Scopes     []string
	CreatedBy  uuid.UUID
	ExpiresAt  *time.Time
	RevokedAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// Valid reports whether the key may still be used to authenticate, per
// spec.md §3: "valid iff not revoked and not expired."
func (k *Key) Valid(now time.Time) bool {
	if k.RevokedAt != nil {
		return false
	}
	if k.ExpiresAt != nil && !now.Before(*k.ExpiresAt) {
		return false
	}
	return true
}

// Response is the JSON shape returned for a key, listing its prefix only —
// the raw secret is never echoed back after creation/rotation.
type Response struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"key_prefix"`
	Scopes     []string   `json:"scopes"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (k *Key) ToResponse() Response {
	return Response{
		ID:         k.ID,
		Name:       k.Name,
		KeyPrefix:  k.KeyPrefix,
		Scopes:     ensureSlice(k.Scopes),
		ExpiresAt:  k.ExpiresAt,
		RevokedAt:  k.RevokedAt,
		LastUsedAt: k.LastUsedAt,
		CreatedAt:  k.CreatedAt,
	}
}

// CreateResponse includes the raw key, shown exactly once.
type CreateResponse struct {
	Response
	RawKey string `json:"raw_key"`
}

// CreateRequest is the JSON body for POST /auth/keys.
type CreateRequest struct {
	Name      string     `json:"name" validate:"required"`
	Scopes    []string   `json:"scopes" validate:"required,min=1"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func ensureSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
