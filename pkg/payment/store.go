package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/db"
)

const paymentColumns = `id, tenant_id, payment_hash, provider, provider_invoice_id, payment_request,
	amount_sats, status, expires_at, settled_at, failure_reason, last_event_id,
	resource_path, actor_id, details, created_at, updated_at`

// Store provides database operations for payments.
type Store struct {
	db db.DBTX
}

func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

func scanPayment(row interface{ Scan(dest ...any) error }) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.TenantID, &p.PaymentHash, &p.Provider, &p.ProviderInvoiceID, &p.PaymentRequest,
		&p.AmountSats, &p.Status, &p.ExpiresAt, &p.SettledAt, &p.FailureReason, &p.LastEventID,
		&p.ResourcePath, &p.ActorID, &p.Details, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

type CreateParams struct {
	TenantID          uuid.UUID
	PaymentHash       string
	Provider          string
	ProviderInvoiceID string
	PaymentRequest    string
	AmountSats        int64
	ExpiresAt         time.Time
	ResourcePath      string
	ActorID           uuid.UUID
	Details           []byte
}

func (s *Store) Create(ctx context.Context, p CreateParams) (Payment, error) {
	query := `INSERT INTO payments
		(tenant_id, payment_hash, provider, provider_invoice_id, payment_request, amount_sats,
		 status, expires_at, resource_path, actor_id, details)
		VALUES ($1, $2, $3, $4, $5, $6, '` + StatusPending + `', $7, $8, $9, $10)
		RETURNING ` + paymentColumns
	row := s.db.QueryRow(ctx, query, p.TenantID, p.PaymentHash, p.Provider, p.ProviderInvoiceID,
		p.PaymentRequest, p.AmountSats, p.ExpiresAt, p.ResourcePath, p.ActorID, p.Details)
	return scanPayment(row)
}

func (s *Store) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE tenant_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := s.db.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning payment row: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *Store) Get(ctx context.Context, tenantID, id uuid.UUID) (Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE tenant_id = $1 AND id = $2`
	return scanPayment(s.db.QueryRow(ctx, query, tenantID, id))
}

func (s *Store) GetByHash(ctx context.Context, paymentHash string) (Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_hash = $1`
	return scanPayment(s.db.QueryRow(ctx, query, paymentHash))
}

// GetByHashForUpdate locks the row for the duration of the caller's
// transaction, serializing concurrent transition attempts (retry,
// webhook, reconciliation) on the same payment.
func (s *Store) GetByHashForUpdate(ctx context.Context, paymentHash string) (Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_hash = $1 FOR UPDATE`
	return scanPayment(s.db.QueryRow(ctx, query, paymentHash))
}

// TransitionToPaid moves a payment from pending to paid, recording
// settledAt and the triggering event id. No-op (returns the unchanged row)
// if the payment has already left pending, so replay from any of the three
// observation paths (retry, webhook, reconciliation) is idempotent.
func (s *Store) TransitionToPaid(ctx context.Context, paymentID uuid.UUID, eventID string) (Payment, error) {
	query := `UPDATE payments SET status = '` + StatusPaid + `', settled_at = now(), last_event_id = $1, updated_at = now()
		WHERE id = $2 AND status = '` + StatusPending + `'
		RETURNING ` + paymentColumns
	row := s.db.QueryRow(ctx, query, eventID, paymentID)
	p, err := scanPayment(row)
	if db.IsNoRows(err) {
		return s.GetByID(ctx, paymentID)
	}
	return p, err
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(s.db.QueryRow(ctx, query, id))
}

func (s *Store) TransitionToExpired(ctx context.Context, paymentID uuid.UUID) (Payment, error) {
	query := `UPDATE payments SET status = '` + StatusExpired + `', updated_at = now()
		WHERE id = $1 AND status = '` + StatusPending + `'
		RETURNING ` + paymentColumns
	row := s.db.QueryRow(ctx, query, paymentID)
	p, err := scanPayment(row)
	if db.IsNoRows(err) {
		return s.GetByID(ctx, paymentID)
	}
	return p, err
}

func (s *Store) TransitionToFailed(ctx context.Context, paymentID uuid.UUID, reason string) (Payment, error) {
	query := `UPDATE payments SET status = '` + StatusFailed + `', failure_reason = $1, updated_at = now()
		WHERE id = $2 AND status = '` + StatusPending + `'
		RETURNING ` + paymentColumns
	row := s.db.QueryRow(ctx, query, reason, paymentID)
	p, err := scanPayment(row)
	if db.IsNoRows(err) {
		return s.GetByID(ctx, paymentID)
	}
	return p, err
}

// MarkConsumed transitions a payment from paid to consumed on the first
// fulfilling read of its linked entitlement.
func (s *Store) MarkConsumed(ctx context.Context, paymentID uuid.UUID) (Payment, error) {
	query := `UPDATE payments SET status = '` + StatusConsumed + `', updated_at = now()
		WHERE id = $1 AND status = '` + StatusPaid + `'
		RETURNING ` + paymentColumns
	row := s.db.QueryRow(ctx, query, paymentID)
	p, err := scanPayment(row)
	if db.IsNoRows(err) {
		return s.GetByID(ctx, paymentID)
	}
	return p, err
}

// ListStalePending returns pending payments older than olderThan, for the
// reconciliation sweep.
func (s *Store) ListStalePending(ctx context.Context, olderThan time.Time) ([]Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE status = '` + StatusPending + `' AND created_at < $1
		ORDER BY created_at ASC`
	rows, err := s.db.Query(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("listing stale pending payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning payment row: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// CountPendingOlderThan backs the pending_over_15m_count gauge.
func (s *Store) CountPendingOlderThan(ctx context.Context, olderThan time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM payments WHERE status = '`+StatusPending+`' AND created_at < $1`, olderThan).Scan(&count)
	return count, err
}
