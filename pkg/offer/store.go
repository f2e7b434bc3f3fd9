package offer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/db"
)

// ErrNotFound is returned by Delete and mapped by the handler to a 404.
var ErrNotFound = errors.New("offer not found")

const columns = `id, tenant_id, content_type_id, name, price_sats, policy_id,
	default_remaining_reads, default_ttl_seconds, active, created_at, updated_at`

// Store provides database operations for offers.
type Store struct {
	db db.DBTX
}

func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

func scanOffer(row interface{ Scan(dest ...any) error }) (Offer, error) {
	var o Offer
	var ttlSeconds *int64
	err := row.Scan(&o.ID, &o.TenantID, &o.ContentTypeID, &o.Name, &o.PriceSats, &o.PolicyID,
		&o.DefaultRemainingReads, &ttlSeconds, &o.Active, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Offer{}, err
	}
	o.DefaultTTL = durationFromSeconds(ttlSeconds)
	return o, nil
}

func (s *Store) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]Offer, error) {
	query := `SELECT ` + columns + ` FROM offers WHERE tenant_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := s.db.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing offers: %w", err)
	}
	defer rows.Close()

	var items []Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning offer row: %w", err)
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

func (s *Store) Get(ctx context.Context, tenantID, id uuid.UUID) (Offer, error) {
	query := `SELECT ` + columns + ` FROM offers WHERE tenant_id = $1 AND id = $2`
	return scanOffer(s.db.QueryRow(ctx, query, tenantID, id))
}

type CreateParams struct {
	TenantID              uuid.UUID
	ContentTypeID         uuid.UUID
	Name                  string
	PriceSats             int64
	PolicyID              uuid.UUID
	DefaultRemainingReads *int32
	DefaultTTL            *time.Duration
}

func (s *Store) Create(ctx context.Context, p CreateParams) (Offer, error) {
	var ttlSeconds *int64
	if p.DefaultTTL != nil {
		seconds := int64(p.DefaultTTL.Seconds())
		ttlSeconds = &seconds
	}
	query := `INSERT INTO offers
		(tenant_id, content_type_id, name, price_sats, policy_id, default_remaining_reads, default_ttl_seconds, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true)
		RETURNING ` + columns
	row := s.db.QueryRow(ctx, query, p.TenantID, p.ContentTypeID, p.Name, p.PriceSats, p.PolicyID,
		p.DefaultRemainingReads, ttlSeconds)
	return scanOffer(row)
}

type UpdateParams struct {
	Name                  string
	PriceSats             int64
	PolicyID              uuid.UUID
	DefaultRemainingReads *int32
	DefaultTTL            *time.Duration
	Active                bool
}

func (s *Store) Update(ctx context.Context, tenantID, id uuid.UUID, p UpdateParams) (Offer, error) {
	var ttlSeconds *int64
	if p.DefaultTTL != nil {
		seconds := int64(p.DefaultTTL.Seconds())
		ttlSeconds = &seconds
	}
	query := `UPDATE offers SET
		name = $1, price_sats = $2, policy_id = $3, default_remaining_reads = $4,
		default_ttl_seconds = $5, active = $6, updated_at = now()
		WHERE tenant_id = $7 AND id = $8
		RETURNING ` + columns
	row := s.db.QueryRow(ctx, query, p.Name, p.PriceSats, p.PolicyID, p.DefaultRemainingReads,
		ttlSeconds, p.Active, tenantID, id)
	return scanOffer(row)
}

func (s *Store) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM offers WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("deleting offer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
