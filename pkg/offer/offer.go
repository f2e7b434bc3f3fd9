// Package offer implements the purchasable price point spec.md's data model
// implies but never names outright: entitlement.offerId and policyId both
// reference a row here. An offer pins a content type to a price, a revenue
// split policy, and the default quota/expiry terms of the entitlement a
// successful purchase creates.
package offer

import (
	"time"

	"github.com/google/uuid"
)

// Offer is a row from the offers table.
type Offer struct {
	ID                    uuid.UUID
	TenantID              uuid.UUID
	ContentTypeID         uuid.UUID
	Name                  string
	PriceSats             int64
	PolicyID              uuid.UUID
	DefaultRemainingReads *int32
	DefaultTTL            *time.Duration
	Active                bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Response is the JSON shape for a single offer.
type Response struct {
	ID                    uuid.UUID `json:"id"`
	ContentTypeID         uuid.UUID `json:"content_type_id"`
	Name                  string    `json:"name"`
	PriceSats             int64     `json:"price_sats"`
	PolicyID              uuid.UUID `json:"policy_id"`
	DefaultRemainingReads *int32    `json:"default_remaining_reads,omitempty"`
	DefaultTTLSeconds     *int64    `json:"default_ttl_seconds,omitempty"`
	Active                bool      `json:"active"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func (o *Offer) ToResponse() Response {
	resp := Response{
		ID:                    o.ID,
		ContentTypeID:         o.ContentTypeID,
		Name:                  o.Name,
		PriceSats:             o.PriceSats,
		PolicyID:              o.PolicyID,
		DefaultRemainingReads: o.DefaultRemainingReads,
		Active:                o.Active,
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.UpdatedAt,
	}
	if o.DefaultTTL != nil {
		seconds := int64(o.DefaultTTL.Seconds())
		resp.DefaultTTLSeconds = &seconds
	}
	return resp
}

// CreateRequest is the JSON body for creating an offer.
type CreateRequest struct {
	ContentTypeID         uuid.UUID `json:"content_type_id" validate:"required"`
	Name                  string    `json:"name" validate:"required"`
	PriceSats             int64     `json:"price_sats" validate:"required,gt=0"`
	PolicyID              uuid.UUID `json:"policy_id" validate:"required"`
	DefaultRemainingReads *int32    `json:"default_remaining_reads,omitempty"`
	DefaultTTLSeconds     *int64    `json:"default_ttl_seconds,omitempty"`
}

// UpdateRequest is the JSON body for updating an offer. All fields optional;
// at least one must be set.
type UpdateRequest struct {
	Name                  *string    `json:"name,omitempty"`
	PriceSats             *int64     `json:"price_sats,omitempty"`
	PolicyID              *uuid.UUID `json:"policy_id,omitempty"`
	DefaultRemainingReads *int32     `json:"default_remaining_reads,omitempty"`
	DefaultTTLSeconds     *int64     `json:"default_ttl_seconds,omitempty"`
	Active                *bool      `json:"active,omitempty"`
}

// PurchaseRequest is the JSON body presented to /offers/:id/purchase.
type PurchaseRequest struct {
	AgentProfileID string `json:"agent_profile_id" validate:"required"`
}

// PurchaseConfirmRequest carries a preimage. The /offers/:id/purchase/confirm
// handler decodes no request body: it reads the whole token:preimage
// credential from the Authorization header.
type PurchaseConfirmRequest struct {
	Preimage string `json:"preimage" validate:"required"`
}

func durationFromSeconds(seconds *int64) *time.Duration {
	if seconds == nil {
		return nil
	}
	d := time.Duration(*seconds) * time.Second
	return &d
}
