package revenue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/db"
)

// Store provides database operations for split policies, revenue events,
// allocations, payout batches, and payout transfers.
type Store struct {
	db db.DBTX
}

func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

// --- split policies ---

func (s *Store) GetPolicy(ctx context.Context, id uuid.UUID) (SplitPolicy, error) {
	query := `SELECT id, tenant_id, version, splits, residual_agent_profile_id, created_at
		FROM revenue_split_policies WHERE id = $1`
	var p SplitPolicy
	var raw []byte
	err := s.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.TenantID, &p.Version, &raw, &p.ResidualAgentProfileID, &p.CreatedAt)
	if err != nil {
		return SplitPolicy{}, err
	}
	if err := json.Unmarshal(raw, &p.Splits); err != nil {
		return SplitPolicy{}, fmt.Errorf("decoding split policy entries: %w", err)
	}
	return p, nil
}

// GetLatestPolicy returns tenantID's highest-versioned split policy, used
// to pin a split for payments that have no offer of their own (a direct
// purchase of a priced content type) to allocate against.
func (s *Store) GetLatestPolicy(ctx context.Context, tenantID uuid.UUID) (SplitPolicy, error) {
	query := `SELECT id, tenant_id, version, splits, residual_agent_profile_id, created_at
		FROM revenue_split_policies WHERE tenant_id = $1 ORDER BY version DESC LIMIT 1`
	var p SplitPolicy
	var raw []byte
	err := s.db.QueryRow(ctx, query, tenantID).Scan(&p.ID, &p.TenantID, &p.Version, &raw, &p.ResidualAgentProfileID, &p.CreatedAt)
	if err != nil {
		return SplitPolicy{}, err
	}
	if err := json.Unmarshal(raw, &p.Splits); err != nil {
		return SplitPolicy{}, fmt.Errorf("decoding split policy entries: %w", err)
	}
	return p, nil
}

func (s *Store) CreatePolicy(ctx context.Context, tenantID uuid.UUID, splits []SplitEntry, residual string) (SplitPolicy, error) {
	raw, err := json.Marshal(splits)
	if err != nil {
		return SplitPolicy{}, fmt.Errorf("encoding split policy entries: %w", err)
	}
	query := `INSERT INTO revenue_split_policies (tenant_id, version, splits, residual_agent_profile_id)
		VALUES ($1, COALESCE((SELECT MAX(version) + 1 FROM revenue_split_policies WHERE tenant_id = $1), 1), $2, $3)
		RETURNING id, tenant_id, version, splits, residual_agent_profile_id, created_at`
	var p SplitPolicy
	var rawOut []byte
	rerr := s.db.QueryRow(ctx, query, tenantID, raw, residual).
		Scan(&p.ID, &p.TenantID, &p.Version, &rawOut, &p.ResidualAgentProfileID, &p.CreatedAt)
	if rerr != nil {
		return SplitPolicy{}, rerr
	}
	if err := json.Unmarshal(rawOut, &p.Splits); err != nil {
		return SplitPolicy{}, fmt.Errorf("decoding split policy entries: %w", err)
	}
	return p, nil
}

// --- revenue events / allocations ---

func scanAllocation(row interface{ Scan(dest ...any) error }) (Allocation, error) {
	var a Allocation
	err := row.Scan(&a.ID, &a.RevenueEventID, &a.TenantID, &a.AgentProfileID, &a.Bps,
		&a.AmountSats, &a.Status, &a.ClearedAt, &a.CreatedAt)
	return a, err
}

// CreateEventWithAllocations writes one revenue event and its allocations in
// a single call; the caller is expected to wrap this in a transaction
// alongside the payment transition that triggered it.
func (s *Store) CreateEventWithAllocations(ctx context.Context, tenantID, paymentID, policyID uuid.UUID, grossSats int64, amounts map[string]int64, splits []SplitEntry) (RevenueEvent, []Allocation, error) {
	var event RevenueEvent
	err := s.db.QueryRow(ctx, `INSERT INTO revenue_events (tenant_id, payment_id, policy_id, gross_sats)
		VALUES ($1, $2, $3, $4)
		RETURNING id, tenant_id, payment_id, policy_id, gross_sats, created_at`,
		tenantID, paymentID, policyID, grossSats,
	).Scan(&event.ID, &event.TenantID, &event.PaymentID, &event.PolicyID, &event.GrossSats, &event.CreatedAt)
	if err != nil {
		return RevenueEvent{}, nil, fmt.Errorf("creating revenue event: %w", err)
	}

	allocations := make([]Allocation, 0, len(splits))
	for _, sp := range splits {
		row := s.db.QueryRow(ctx, `INSERT INTO revenue_allocations
			(revenue_event_id, tenant_id, agent_profile_id, bps, amount_sats, status)
			VALUES ($1, $2, $3, $4, $5, '`+AllocationPending+`')
			RETURNING id, revenue_event_id, tenant_id, agent_profile_id, bps, amount_sats, status, cleared_at, created_at`,
			event.ID, tenantID, sp.AgentProfileID, sp.Bps, amounts[sp.AgentProfileID])
		a, err := scanAllocation(row)
		if err != nil {
			return RevenueEvent{}, nil, fmt.Errorf("creating allocation for %q: %w", sp.AgentProfileID, err)
		}
		allocations = append(allocations, a)
	}

	return event, allocations, nil
}

// ClearAllocationsOlderThan transitions pending allocations whose revenue
// event settled before the settlement window cutoff to cleared.
func (s *Store) ClearAllocationsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `UPDATE revenue_allocations SET status = '`+AllocationCleared+`', cleared_at = now()
		WHERE status = '`+AllocationPending+`'
			AND revenue_event_id IN (SELECT id FROM revenue_events WHERE created_at < $1)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clearing allocations: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// AgentBalance is the per-tenant, per-agent cleared-minus-paid-or-in-flight
// balance the payout worker batches into transfers.
type AgentBalance struct {
	TenantID       uuid.UUID
	AgentProfileID string
	BalanceSats    int64
}

// ListPayableBalances computes cleared − already_paid_or_in_flight per
// tenant and agent, returning only balances at or above minimumSats.
func (s *Store) ListPayableBalances(ctx context.Context, minimumSats int64) ([]AgentBalance, error) {
	query := `SELECT tenant_id, agent_profile_id, payable FROM (
		SELECT tenant_id, agent_profile_id, SUM(amount_sats) - COALESCE((
			SELECT SUM(t.amount_sats) FROM payout_transfers t
			WHERE t.tenant_id = revenue_allocations.tenant_id
				AND t.agent_profile_id = revenue_allocations.agent_profile_id
				AND t.status IN ('` + TransferPending + `', '` + TransferCompleted + `')
		), 0) AS payable
		FROM revenue_allocations
		WHERE status = '` + AllocationCleared + `'
		GROUP BY tenant_id, agent_profile_id
	) balances WHERE payable >= $1`
	rows, err := s.db.Query(ctx, query, minimumSats)
	if err != nil {
		return nil, fmt.Errorf("listing payable balances: %w", err)
	}
	defer rows.Close()

	var balances []AgentBalance
	for rows.Next() {
		var b AgentBalance
		if err := rows.Scan(&b.TenantID, &b.AgentProfileID, &b.BalanceSats); err != nil {
			return nil, fmt.Errorf("scanning agent balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// --- payout batches / transfers ---

func (s *Store) CreateBatch(ctx context.Context, tenantID uuid.UUID) (PayoutBatch, error) {
	var b PayoutBatch
	err := s.db.QueryRow(ctx, `INSERT INTO payout_batches (tenant_id, status)
		VALUES ($1, '`+BatchPending+`') RETURNING id, tenant_id, status, created_at`,
		tenantID,
	).Scan(&b.ID, &b.TenantID, &b.Status, &b.CreatedAt)
	return b, err
}

func scanTransfer(row interface{ Scan(dest ...any) error }) (PayoutTransfer, error) {
	var t PayoutTransfer
	err := row.Scan(&t.ID, &t.BatchID, &t.TenantID, &t.AgentProfileID, &t.AmountSats,
		&t.Status, &t.Attempts, &t.FailureReason, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *Store) CreateTransfer(ctx context.Context, batchID, tenantID uuid.UUID, agentProfileID string, amountSats int64) (PayoutTransfer, error) {
	query := `INSERT INTO payout_transfers (batch_id, tenant_id, agent_profile_id, amount_sats, status, attempts)
		VALUES ($1, $2, $3, $4, '` + TransferPending + `', 0)
		RETURNING id, batch_id, tenant_id, agent_profile_id, amount_sats, status, attempts, failure_reason, completed_at, created_at, updated_at`
	row := s.db.QueryRow(ctx, query, batchID, tenantID, agentProfileID, amountSats)
	return scanTransfer(row)
}

func (s *Store) ListPendingTransfers(ctx context.Context) ([]PayoutTransfer, error) {
	query := `SELECT id, batch_id, tenant_id, agent_profile_id, amount_sats, status, attempts,
		failure_reason, completed_at, created_at, updated_at
		FROM payout_transfers WHERE status = '` + TransferPending + `' ORDER BY created_at`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing pending transfers: %w", err)
	}
	defer rows.Close()

	var items []PayoutTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning payout transfer: %w", err)
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (s *Store) MarkTransferCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE payout_transfers SET status = '`+TransferCompleted+`', completed_at = now(), updated_at = now() WHERE id = $1`, id)
	return err
}

func (s *Store) MarkTransferFailed(ctx context.Context, id uuid.UUID, permanent bool, reason string) error {
	status := TransferFailedTransient
	if permanent {
		status = TransferFailedPermanent
	}
	_, err := s.db.Exec(ctx, `UPDATE payout_transfers SET status = $2, attempts = attempts + 1,
		failure_reason = $3, updated_at = now() WHERE id = $1`, id, status, reason)
	return err
}

// RefreshBatchStatus aggregates a batch's transfer statuses into the
// batch's own status: completed if all transfers completed, failed if all
// terminally failed, pending while any transfer is still pending, partial
// otherwise.
func (s *Store) RefreshBatchStatus(ctx context.Context, batchID uuid.UUID) error {
	query := `UPDATE payout_batches SET status = CASE
		WHEN NOT EXISTS (SELECT 1 FROM payout_transfers WHERE batch_id = $1 AND status NOT IN ('` + TransferCompleted + `'))
			THEN '` + BatchCompleted + `'
		WHEN NOT EXISTS (SELECT 1 FROM payout_transfers WHERE batch_id = $1 AND status NOT IN ('` + TransferFailedPermanent + `'))
			THEN '` + BatchFailed + `'
		WHEN EXISTS (SELECT 1 FROM payout_transfers WHERE batch_id = $1 AND status = '` + TransferPending + `')
			THEN '` + BatchPending + `'
		ELSE '` + BatchPartial + `'
		END
		WHERE id = $1`
	_, err := s.db.Exec(ctx, query, batchID)
	return err
}
