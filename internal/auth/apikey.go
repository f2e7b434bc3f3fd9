package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/db"
)

// Authenticator validates a raw API key against public.api_keys.
type Authenticator struct {
	DB db.DBTX
}

// apiKeyRow is the subset of public.api_keys needed to authenticate and
// derive a Principal.
type apiKeyRow struct {
	id        uuid.UUID
	tenantID  uuid.UUID
	keyPrefix string
	scopes    []string
	revokedAt *time.Time
	expiresAt *time.Time
}

// Authenticate hashes rawKey, looks it up, and validates that the key is
// neither revoked nor expired. On success it schedules an asynchronous
// last-used timestamp update and returns the derived Principal.
func (a *Authenticator) Authenticate(ctx context.Context, rawKey string) (*Principal, error) {
	if rawKey == "" {
		return nil, fmt.Errorf("empty API key")
	}

	hash := HashAPIKey(rawKey)

	row := a.DB.QueryRow(ctx, `
		SELECT id, tenant_id, key_prefix, scopes, revoked_at, expires_at
		FROM api_keys
		WHERE key_hash = $1
	`, hash)

	var k apiKeyRow
	if err := row.Scan(&k.id, &k.tenantID, &k.keyPrefix, &k.scopes, &k.revokedAt, &k.expiresAt); err != nil {
		if db.IsNoRows(err) {
			return nil, fmt.Errorf("%w: unrecognized API key", errInvalidKey)
		}
		return nil, fmt.Errorf("looking up API key: %w", err)
	}

	if k.revokedAt != nil {
		return nil, fmt.Errorf("%w: API key revoked at %s", errInvalidKey, k.revokedAt)
	}
	if k.expiresAt != nil && k.expiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("%w: API key expired at %s", errInvalidKey, k.expiresAt)
	}

	go a.touchLastUsed(k.id)

	return &Principal{
		ActorID:   k.id,
		TenantID:  k.tenantID,
		KeyPrefix: k.keyPrefix,
		Scopes:    k.scopes,
	}, nil
}

// touchLastUsed updates last_used_at without blocking the calling request,
// using a detached context since the request's may already be canceled.
func (a *Authenticator) touchLastUsed(keyID uuid.UUID) {
	_, _ = a.DB.Exec(context.Background(), `
		UPDATE api_keys SET last_used_at = now() WHERE id = $1
	`, keyID)
}

// errInvalidKey is the sentinel wrapped into every revoked/expired/unknown
// key failure so callers can distinguish it from a dependency failure.
var errInvalidKey = errors.New("invalid API key")

// IsInvalidKey reports whether err (or a wrapped cause) is errInvalidKey.
func IsInvalidKey(err error) bool {
	return errors.Is(err, errInvalidKey)
}
