package apikey

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/db"
)

const keyColumns = `id, tenant_id, name, key_hash, key_prefix, scopes, created_by, expires_at, revoked_at, last_used_at, created_at`

// Store provides database operations for API keys.
type Store struct {
	db db.DBTX
}

// NewStore creates an API key Store backed by the given connection.
func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

// CreateParams holds parameters for inserting a new key.
type CreateParams struct {
	TenantID  uuid.UUID
	Name      string
	KeyHash   string
	KeyPrefix string
	Scopes    []string
	CreatedBy uuid.UUID
	ExpiresAt *time.Time
}

func scanKey(row interface {
	Scan(dest ...any) error
}) (Key, error) {
	var k Key
	err := row.Scan(
		&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
		&k.CreatedBy, &k.ExpiresAt, &k.RevokedAt, &k.LastUsedAt, &k.CreatedAt,
	)
	return k, err
}

// List returns every key for a tenant, newest first.
func (s *Store) List(ctx context.Context, tenantID uuid.UUID) ([]Key, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE tenant_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api key rows: %w", err)
	}
	return keys, nil
}

// Get returns a single key by ID, scoped to the tenant.
func (s *Store) Get(ctx context.Context, tenantID, id uuid.UUID) (Key, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE tenant_id = $1 AND id = $2`
	return scanKey(s.db.QueryRow(ctx, query, tenantID, id))
}

// Create inserts a new key row.
func (s *Store) Create(ctx context.Context, p CreateParams) (Key, error) {
	query := `INSERT INTO api_keys (tenant_id, name, key_hash, key_prefix, scopes, created_by, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING ` + keyColumns

	row := s.db.QueryRow(ctx, query,
		p.TenantID, p.Name, p.KeyHash, p.KeyPrefix, p.Scopes, p.CreatedBy, p.ExpiresAt,
	)
	return scanKey(row)
}

// Rotate replaces a key's hash and prefix in place, preserving its id,
// name, and scopes, per spec.md's "raw secret returned once at creation or
// rotation."
func (s *Store) Rotate(ctx context.Context, tenantID, id uuid.UUID, keyHash, keyPrefix string) (Key, error) {
	query := `UPDATE api_keys SET key_hash = $1, key_prefix = $2, last_used_at = NULL
	WHERE tenant_id = $3 AND id = $4 AND revoked_at IS NULL
	RETURNING ` + keyColumns

	row := s.db.QueryRow(ctx, query, keyHash, keyPrefix, tenantID, id)
	return scanKey(row)
}

// Revoke transitions an unrevoked key to revoked. An already revoked key
// matches no row, so the scan returns pgx.ErrNoRows.
func (s *Store) Revoke(ctx context.Context, tenantID, id uuid.UUID) (Key, error) {
	query := `UPDATE api_keys SET revoked_at = now()
	WHERE tenant_id = $1 AND id = $2 AND revoked_at IS NULL
	RETURNING ` + keyColumns

	row := s.db.QueryRow(ctx, query, tenantID, id)
	return scanKey(row)
}
