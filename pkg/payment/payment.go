// Package payment implements the L402 payment-gated access state machine:
// challenge issuance, credential verification, webhook settlement, and the
// pending/paid/consumed/expired/failed lifecycle spec.md §4.3 describes.
package payment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status values a payment row may hold. Transitions are restricted to the
// diagram in spec.md §4.3: pending -> paid -> consumed, pending -> expired,
// pending -> failed. No other edge is legal.
const (
	StatusPending  = "pending"
	StatusPaid     = "paid"
	StatusConsumed = "consumed"
	StatusExpired  = "expired"
	StatusFailed   = "failed"
)

// validTransitions enumerates the legal edges of the state diagram.
var validTransitions = map[string]map[string]bool{
	StatusPending: {StatusPaid: true, StatusExpired: true, StatusFailed: true},
	StatusPaid:    {StatusConsumed: true},
}

// CanTransition reports whether moving from 'from' to 'to' is a legal edge.
func CanTransition(from, to string) bool {
	return validTransitions[from][to]
}

// Payment is a row from the payments table.
type Payment struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	PaymentHash       string
	Provider          string
	ProviderInvoiceID string
	PaymentRequest    string
	AmountSats        int64
	Status            string
	ExpiresAt         time.Time
	SettledAt         *time.Time
	FailureReason     *string
	LastEventID       *string
	ResourcePath      string
	ActorID           uuid.UUID
	Details           json.RawMessage
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Response is the JSON shape for a single payment.
type Response struct {
	ID             uuid.UUID       `json:"id"`
	PaymentHash    string          `json:"payment_hash"`
	Provider       string          `json:"provider"`
	PaymentRequest string          `json:"payment_request,omitempty"`
	AmountSats     int64           `json:"amount_sats"`
	Status         string          `json:"status"`
	ExpiresAt      time.Time       `json:"expires_at"`
	SettledAt      *time.Time      `json:"settled_at,omitempty"`
	FailureReason  *string         `json:"failure_reason,omitempty"`
	ResourcePath   string          `json:"resource_path"`
	Details        json.RawMessage `json:"details,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (p *Payment) ToResponse() Response {
	return Response{
		ID:             p.ID,
		PaymentHash:    p.PaymentHash,
		Provider:       p.Provider,
		PaymentRequest: p.PaymentRequest,
		AmountSats:     p.AmountSats,
		Status:         p.Status,
		ExpiresAt:      p.ExpiresAt,
		SettledAt:      p.SettledAt,
		FailureReason:  p.FailureReason,
		ResourcePath:   p.ResourcePath,
		Details:        p.Details,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

// Challenge is returned to a caller hitting a priced resource without a
// valid credential: a 402 response advertises it via WWW-Authenticate and
// echoes it in the error envelope's meta.
type Challenge struct {
	Token          string    `json:"token"`
	PaymentHash    string    `json:"payment_hash"`
	PaymentRequest string    `json:"payment_request"`
	AmountSats     int64     `json:"amount_sats"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// WebhookEvent is the body a provider posts to /payments/webhooks/:provider.
type WebhookEvent struct {
	EventID     string `json:"event_id"`
	PaymentHash string `json:"payment_hash"`
	Status      string `json:"status"`
	Preimage    string `json:"preimage,omitempty"`
}
