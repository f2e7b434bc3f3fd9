package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/db"
)

const columns = `id, tenant_id, offer_id, content_type_id, policy_id, policy_version, agent_profile_id, payment_hash,
	status, remaining_reads, expires_at, activated_at, terminated_at, delegated_from, created_at, updated_at`

// Store provides database operations for entitlements.
type Store struct {
	db db.DBTX
}

func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

func scanEntitlement(row interface{ Scan(dest ...any) error }) (Entitlement, error) {
	var e Entitlement
	err := row.Scan(&e.ID, &e.TenantID, &e.OfferID, &e.ContentTypeID, &e.PolicyID, &e.PolicyVersion, &e.AgentProfileID,
		&e.PaymentHash, &e.Status, &e.RemainingReads, &e.ExpiresAt, &e.ActivatedAt, &e.TerminatedAt,
		&e.DelegatedFrom, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (s *Store) Create(ctx context.Context, p CreateParams) (Entitlement, error) {
	query := `INSERT INTO entitlements
		(tenant_id, offer_id, content_type_id, policy_id, policy_version, agent_profile_id, payment_hash,
		 status, remaining_reads, expires_at, delegated_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '` + StatusPendingPayment + `', $8, $9, $10)
		RETURNING ` + columns
	row := s.db.QueryRow(ctx, query, p.TenantID, p.OfferID, p.ContentTypeID, p.PolicyID, p.PolicyVersion,
		p.AgentProfileID, p.PaymentHash, p.RemainingReads, p.ExpiresAt, p.DelegatedFrom)
	return scanEntitlement(row)
}

func (s *Store) Get(ctx context.Context, tenantID, id uuid.UUID) (Entitlement, error) {
	query := `SELECT ` + columns + ` FROM entitlements WHERE tenant_id = $1 AND id = $2`
	return scanEntitlement(s.db.QueryRow(ctx, query, tenantID, id))
}

func (s *Store) GetByPaymentHash(ctx context.Context, paymentHash string) (Entitlement, error) {
	query := `SELECT ` + columns + ` FROM entitlements WHERE payment_hash = $1`
	return scanEntitlement(s.db.QueryRow(ctx, query, paymentHash))
}

func (s *Store) GetForUpdate(ctx context.Context, tenantID, id uuid.UUID) (Entitlement, error) {
	query := `SELECT ` + columns + ` FROM entitlements WHERE tenant_id = $1 AND id = $2 FOR UPDATE`
	return scanEntitlement(s.db.QueryRow(ctx, query, tenantID, id))
}

func (s *Store) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]Entitlement, error) {
	query := `SELECT ` + columns + ` FROM entitlements WHERE tenant_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := s.db.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing entitlements: %w", err)
	}
	defer rows.Close()

	var items []Entitlement
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entitlement row: %w", err)
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// Activate transitions pending_payment to active, idempotent across the
// three observation paths (retry, webhook, reconciliation) that may race
// to be first.
func (s *Store) Activate(ctx context.Context, paymentHash string) (Entitlement, error) {
	query := `UPDATE entitlements SET status = '` + StatusActive + `', activated_at = now(), updated_at = now()
		WHERE payment_hash = $1 AND status = '` + StatusPendingPayment + `'
		RETURNING ` + columns
	row := s.db.QueryRow(ctx, query, paymentHash)
	e, err := scanEntitlement(row)
	if db.IsNoRows(err) {
		return s.GetByPaymentHash(ctx, paymentHash)
	}
	return e, err
}

// ConsumeOne performs the decrement-and-check as a single conditional
// update, so parallel reads against the same entitlement cannot overshoot
// the quota. Unlimited entitlements (remaining_reads IS NULL) are
// unaffected by the decrement but still require status = active.
func (s *Store) ConsumeOne(ctx context.Context, tenantID, id uuid.UUID) (Entitlement, error) {
	query := `UPDATE entitlements SET
		remaining_reads = CASE WHEN remaining_reads IS NULL THEN NULL ELSE remaining_reads - 1 END,
		status = CASE
			WHEN remaining_reads IS NOT NULL AND remaining_reads - 1 <= 0 THEN '` + StatusExhausted + `'
			ELSE status
		END,
		terminated_at = CASE
			WHEN remaining_reads IS NOT NULL AND remaining_reads - 1 <= 0 THEN now()
			ELSE terminated_at
		END,
		updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND status = '` + StatusActive + `'
			AND (remaining_reads IS NULL OR remaining_reads > 0)
		RETURNING ` + columns
	row := s.db.QueryRow(ctx, query, tenantID, id)
	return scanEntitlement(row)
}

func (s *Store) Expire(ctx context.Context, id uuid.UUID) (Entitlement, error) {
	query := `UPDATE entitlements SET status = '` + StatusExpired + `', terminated_at = now(), updated_at = now()
		WHERE id = $1 AND status = '` + StatusActive + `'
		RETURNING ` + columns
	row := s.db.QueryRow(ctx, query, id)
	e, err := scanEntitlement(row)
	if db.IsNoRows(err) {
		query := `SELECT ` + columns + ` FROM entitlements WHERE id = $1`
		return scanEntitlement(s.db.QueryRow(ctx, query, id))
	}
	return e, err
}

// Revoke transitions any non-terminal entitlement to revoked.
func (s *Store) Revoke(ctx context.Context, tenantID, id uuid.UUID) (Entitlement, error) {
	query := `UPDATE entitlements SET status = '` + StatusRevoked + `', terminated_at = now(), updated_at = now()
		WHERE tenant_id = $1 AND id = $2
			AND status NOT IN ('` + StatusExhausted + `', '` + StatusExpired + `', '` + StatusRevoked + `')
		RETURNING ` + columns
	row := s.db.QueryRow(ctx, query, tenantID, id)
	return scanEntitlement(row)
}

// ListExpirable returns active entitlements past their expiry, for the
// expiry sweep.
func (s *Store) ListExpirable(ctx context.Context, asOf time.Time) ([]Entitlement, error) {
	query := `SELECT ` + columns + ` FROM entitlements
		WHERE status = '` + StatusActive + `' AND expires_at IS NOT NULL AND expires_at < $1`
	rows, err := s.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("listing expirable entitlements: %w", err)
	}
	defer rows.Close()

	var items []Entitlement
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entitlement row: %w", err)
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
