package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/db"
)

// ErrNotFound is returned by Delete when no matching webhook exists for
// the tenant.
var ErrNotFound = errors.New("webhook not found")

const subscriptionColumns = `id, tenant_id, url, secret, event_types, active, created_at, updated_at`

// Store provides database operations for webhook subscriptions and their
// delivery attempt log.
type Store struct {
	db db.DBTX
}

func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

func scanSubscription(row interface{ Scan(dest ...any) error }) (Subscription, error) {
	var s Subscription
	err := row.Scan(&s.ID, &s.TenantID, &s.URL, &s.Secret, &s.EventTypes, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (s *Store) List(ctx context.Context, tenantID uuid.UUID) ([]Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhooks WHERE tenant_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	defer rows.Close()

	var items []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning webhook row: %w", err)
		}
		items = append(items, sub)
	}
	return items, rows.Err()
}

// ListActiveForTenantMatching returns every active subscription for
// tenantID, for the dispatcher. It does not filter by event type; the
// dispatcher checks each subscription with Subscription.Matches.
func (s *Store) ListActiveForTenantMatching(ctx context.Context, tenantID uuid.UUID) ([]Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhooks WHERE tenant_id = $1 AND active = true`
	rows, err := s.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing active webhooks: %w", err)
	}
	defer rows.Close()

	var items []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning webhook row: %w", err)
		}
		items = append(items, sub)
	}
	return items, rows.Err()
}

func (s *Store) Get(ctx context.Context, tenantID, id uuid.UUID) (Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhooks WHERE tenant_id = $1 AND id = $2`
	return scanSubscription(s.db.QueryRow(ctx, query, tenantID, id))
}

// GetByID loads a subscription without tenant scoping, for the delivery
// worker, which operates across tenants.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhooks WHERE id = $1`
	return scanSubscription(s.db.QueryRow(ctx, query, id))
}

func (s *Store) Create(ctx context.Context, tenantID uuid.UUID, url, secret string, eventTypes []string) (Subscription, error) {
	query := `INSERT INTO webhooks (tenant_id, url, secret, event_types, active)
		VALUES ($1, $2, $3, $4, true) RETURNING ` + subscriptionColumns
	return scanSubscription(s.db.QueryRow(ctx, query, tenantID, url, secret, eventTypes))
}

func (s *Store) Update(ctx context.Context, tenantID, id uuid.UUID, url *string, eventTypes []string, active *bool) (Subscription, error) {
	query := `UPDATE webhooks SET
		url = COALESCE($3, url),
		event_types = COALESCE($4, event_types),
		active = COALESCE($5, active),
		updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		RETURNING ` + subscriptionColumns
	return scanSubscription(s.db.QueryRow(ctx, query, tenantID, id, url, eventTypes, active))
}

func (s *Store) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM webhooks WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("deleting webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- deliveries ---

const deliveryColumns = `id, subscription_id, tenant_id, event_type, payload, status, attempts,
	last_error, delivered_at, next_attempt_at, created_at, updated_at`

func scanDelivery(row interface{ Scan(dest ...any) error }) (Delivery, error) {
	var d Delivery
	err := row.Scan(&d.ID, &d.SubscriptionID, &d.TenantID, &d.EventType, &d.Payload, &d.Status,
		&d.Attempts, &d.LastError, &d.DeliveredAt, &d.NextAttemptAt, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (s *Store) EnqueueDelivery(ctx context.Context, subscriptionID, tenantID uuid.UUID, eventType string, payload []byte) (Delivery, error) {
	query := `INSERT INTO webhook_deliveries
		(subscription_id, tenant_id, event_type, payload, status, attempts, next_attempt_at)
		VALUES ($1, $2, $3, $4, '` + DeliveryPending + `', 0, now())
		RETURNING ` + deliveryColumns
	return scanDelivery(s.db.QueryRow(ctx, query, subscriptionID, tenantID, eventType, payload))
}

func (s *Store) ListDue(ctx context.Context, asOf time.Time, limit int) ([]Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries
		WHERE status = '` + DeliveryPending + `' AND next_attempt_at <= $1
		ORDER BY next_attempt_at LIMIT $2`
	rows, err := s.db.Query(ctx, query, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("listing due deliveries: %w", err)
	}
	defer rows.Close()

	var items []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery row: %w", err)
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (s *Store) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE webhook_deliveries SET status = '`+DeliveryDelivered+`',
		delivered_at = now(), updated_at = now() WHERE id = $1`, id)
	return err
}

func (s *Store) MarkRetry(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, lastError string) error {
	_, err := s.db.Exec(ctx, `UPDATE webhook_deliveries SET attempts = attempts + 1,
		next_attempt_at = $2, last_error = $3, updated_at = now() WHERE id = $1`,
		id, nextAttemptAt, lastError)
	return err
}

func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	_, err := s.db.Exec(ctx, `UPDATE webhook_deliveries SET status = '`+DeliveryFailed+`',
		attempts = attempts + 1, last_error = $2, updated_at = now() WHERE id = $1`, id, lastError)
	return err
}
