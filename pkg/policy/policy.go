// Package policy implements the immutable authorization decision log, kept
// separately from the mutation audit trail in internal/audit, which records
// only accepted writes. auth.RequireScope records every scope check here;
// the other gate families below have constants, but no call site records
// decisions for them.
package policy

import (
	"time"

	"github.com/google/uuid"
)

// Decision outcomes.
const (
	Allow = "allow"
	Deny  = "deny"
)

// Decision families, identifying which gate produced the verdict.
const (
	GateScope       = "scope"
	GateTenant      = "tenant_isolation"
	GatePayment     = "payment"
	GateRateLimit   = "rate_limit"
	GateEntitlement = "entitlement"
)

// Record is one immutable authorization decision.
type Record struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	ActorID   uuid.UUID
	RequestID string
	Gate      string
	Outcome   string
	Reason    string
	Method    string
	Path      string
	CreatedAt time.Time
}

// Response is the JSON shape for a single decision record.
type Response struct {
	ID        uuid.UUID `json:"id"`
	Gate      string    `json:"gate"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	RequestID string    `json:"request_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Record) ToResponse() Response {
	return Response{
		ID:        r.ID,
		Gate:      r.Gate,
		Outcome:   r.Outcome,
		Reason:    r.Reason,
		Method:    r.Method,
		Path:      r.Path,
		RequestID: r.RequestID,
		CreatedAt: r.CreatedAt,
	}
}
