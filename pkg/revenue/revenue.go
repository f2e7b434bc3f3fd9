// Package revenue implements the allocation and payout ledger described in
// spec.md §4.5: on a payment's pending → paid transition, the gross amount
// is split among parties by a pinned basis-point policy, allocations clear
// after a settlement window, and a payout worker batches cleared balances
// into per-agent transfers.
package revenue

import (
	"time"

	"github.com/google/uuid"
)

// Allocation status values.
const (
	AllocationPending  = "pending"
	AllocationCleared  = "cleared"
	AllocationReversed = "reversed"
)

// Transfer status values.
const (
	TransferPending         = "pending"
	TransferCompleted       = "completed"
	TransferFailedTransient = "failed_transient"
	TransferFailedPermanent = "failed_permanent"
)

// Batch status values, aggregated from the transfers it contains.
const (
	BatchPending   = "pending"
	BatchPartial   = "partial"
	BatchCompleted = "completed"
	BatchFailed    = "failed"
)

const totalBps = 10000

// SplitEntry is one party's basis-point share of a split policy.
type SplitEntry struct {
	AgentProfileID string `json:"agent_profile_id"`
	Bps            int32  `json:"bps"`
}

// SplitPolicy is a pinned, versioned allocation policy referenced by an
// entitlement's policyId/policyVersion. Splits must sum to 10000 basis
// points; ResidualAgentProfileID absorbs the rounding remainder.
type SplitPolicy struct {
	ID                    uuid.UUID
	TenantID              uuid.UUID
	Version               int32
	Splits                []SplitEntry
	ResidualAgentProfileID string
	CreatedAt             time.Time
}

// RevenueEvent is one settled payment with a gross amount to allocate.
type RevenueEvent struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	PaymentID uuid.UUID
	PolicyID  uuid.UUID
	GrossSats int64
	CreatedAt time.Time
}

// Allocation is one party's share of a RevenueEvent.
type Allocation struct {
	ID             uuid.UUID
	RevenueEventID uuid.UUID
	TenantID       uuid.UUID
	AgentProfileID string
	Bps            int32
	AmountSats     int64
	Status         string
	ClearedAt      *time.Time
	CreatedAt      time.Time
}

// PayoutBatch groups transfers scheduled together for a tenant in one
// payout cycle; its status aggregates its transfers' statuses.
type PayoutBatch struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Status    string
	CreatedAt time.Time
}

// PayoutTransfer is a single agent's payout within a batch.
type PayoutTransfer struct {
	ID             uuid.UUID
	BatchID        uuid.UUID
	TenantID       uuid.UUID
	AgentProfileID string
	AmountSats     int64
	Status         string
	Attempts       int32
	FailureReason  *string
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AllocationResponse is the JSON shape for a single allocation.
type AllocationResponse struct {
	ID             uuid.UUID  `json:"id"`
	AgentProfileID string     `json:"agent_profile_id"`
	Bps            int32      `json:"bps"`
	AmountSats     int64      `json:"amount_sats"`
	Status         string     `json:"status"`
	ClearedAt      *time.Time `json:"cleared_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (a *Allocation) ToResponse() AllocationResponse {
	return AllocationResponse{
		ID:             a.ID,
		AgentProfileID: a.AgentProfileID,
		Bps:            a.Bps,
		AmountSats:     a.AmountSats,
		Status:         a.Status,
		ClearedAt:      a.ClearedAt,
		CreatedAt:      a.CreatedAt,
	}
}

// TransferResponse is the JSON shape for a single payout transfer.
type TransferResponse struct {
	ID             uuid.UUID  `json:"id"`
	BatchID        uuid.UUID  `json:"batch_id"`
	AgentProfileID string     `json:"agent_profile_id"`
	AmountSats     int64      `json:"amount_sats"`
	Status         string     `json:"status"`
	Attempts       int32      `json:"attempts"`
	FailureReason  *string    `json:"failure_reason,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (t *PayoutTransfer) ToResponse() TransferResponse {
	return TransferResponse{
		ID:             t.ID,
		BatchID:        t.BatchID,
		AgentProfileID: t.AgentProfileID,
		AmountSats:     t.AmountSats,
		Status:         t.Status,
		Attempts:       t.Attempts,
		FailureReason:  t.FailureReason,
		CompletedAt:    t.CompletedAt,
		CreatedAt:      t.CreatedAt,
	}
}
