// Package entitlement implements the durable, revocable, quota-bounded
// access grant ledger described in spec.md §4.4: entitlements outlive the
// HTTP transaction that created them and are consumed by each read that
// names them, whether the priced resource is a purchased offer or a content
// item whose type carries a direct base price. A read that names no
// entitlement consumes none.
package entitlement

import (
	"time"

	"github.com/google/uuid"
)

// Status values an entitlement row may hold.
const (
	StatusPendingPayment = "pending_payment"
	StatusActive         = "active"
	StatusExhausted      = "exhausted"
	StatusExpired        = "expired"
	StatusRevoked        = "revoked"
)

// terminal reports whether status has no further legal transition.
func terminal(status string) bool {
	return status == StatusExhausted || status == StatusExpired || status == StatusRevoked
}

// Entitlement is a row from the entitlements table. Exactly one of OfferID
// and ContentTypeID is set, naming the priced resource this grant covers.
type Entitlement struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	OfferID        *uuid.UUID
	ContentTypeID  *uuid.UUID
	PolicyID       uuid.UUID
	PolicyVersion  int32
	AgentProfileID string
	PaymentHash    string
	Status         string
	RemainingReads *int32 // nil means unlimited
	ExpiresAt      *time.Time
	ActivatedAt    *time.Time
	TerminatedAt   *time.Time
	DelegatedFrom  *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Response is the JSON shape for a single entitlement.
type Response struct {
	ID             uuid.UUID  `json:"id"`
	OfferID        *uuid.UUID `json:"offer_id,omitempty"`
	ContentTypeID  *uuid.UUID `json:"content_type_id,omitempty"`
	PolicyID       uuid.UUID  `json:"policy_id"`
	PolicyVersion  int32      `json:"policy_version"`
	AgentProfileID string     `json:"agent_profile_id"`
	PaymentHash    string     `json:"payment_hash"`
	Status         string     `json:"status"`
	RemainingReads *int32     `json:"remaining_reads,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	ActivatedAt    *time.Time `json:"activated_at,omitempty"`
	TerminatedAt   *time.Time `json:"terminated_at,omitempty"`
	DelegatedFrom  *uuid.UUID `json:"delegated_from,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (e *Entitlement) ToResponse() Response {
	return Response{
		ID:             e.ID,
		OfferID:        e.OfferID,
		ContentTypeID:  e.ContentTypeID,
		PolicyID:       e.PolicyID,
		PolicyVersion:  e.PolicyVersion,
		AgentProfileID: e.AgentProfileID,
		PaymentHash:    e.PaymentHash,
		Status:         e.Status,
		RemainingReads: e.RemainingReads,
		ExpiresAt:      e.ExpiresAt,
		ActivatedAt:    e.ActivatedAt,
		TerminatedAt:   e.TerminatedAt,
		DelegatedFrom:  e.DelegatedFrom,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

// CreateParams describes a new entitlement written at challenge time, in
// pending_payment, with the buyer's policy pinned. Exactly one of OfferID
// and ContentTypeID must be set.
type CreateParams struct {
	TenantID       uuid.UUID
	OfferID        *uuid.UUID
	ContentTypeID  *uuid.UUID
	PolicyID       uuid.UUID
	PolicyVersion  int32
	AgentProfileID string
	PaymentHash    string
	RemainingReads *int32
	ExpiresAt      *time.Time
	DelegatedFrom  *uuid.UUID
}

// DelegateRequest is the JSON body for delegating a child entitlement,
// capped by the parent's remaining quota and expiry.
type DelegateRequest struct {
	AgentProfileID string `json:"agent_profile_id" validate:"required"`
	RemainingReads *int32 `json:"remaining_reads,omitempty"`
}
