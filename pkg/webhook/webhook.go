// Package webhook implements /webhooks CRUD and the signed delivery worker
// described in spec.md §4.7: subscriptions match events by a pattern like
// "content_item.create", deliveries carry a detached HMAC-SHA256 signature,
// and failed attempts retry with exponential backoff and jitter up to a
// configurable ceiling.
package webhook

import (
	"time"

	"github.com/google/uuid"
)

// Delivery status values.
const (
	DeliveryPending   = "pending"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// Subscription is a tenant's registered webhook endpoint.
type Subscription struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	URL        string
	Secret     string
	EventTypes []string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Matches reports whether eventType matches any of s's subscribed patterns.
func (s *Subscription) Matches(eventType string) bool {
	for _, p := range s.EventTypes {
		if p == "*" || p == eventType {
			return true
		}
	}
	return false
}

// Response is the JSON shape for a subscription; the secret is never
// echoed back after creation.
type Response struct {
	ID         uuid.UUID `json:"id"`
	URL        string    `json:"url"`
	EventTypes []string  `json:"event_types"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (s *Subscription) ToResponse() Response {
	return Response{
		ID:         s.ID,
		URL:        s.URL,
		EventTypes: s.EventTypes,
		Active:     s.Active,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

// CreateResponse includes the raw secret, shown exactly once.
type CreateResponse struct {
	Response
	Secret string `json:"secret"`
}

// CreateRequest is the JSON body for POST /webhooks.
type CreateRequest struct {
	URL        string   `json:"url" validate:"required,url"`
	EventTypes []string `json:"event_types" validate:"required,min=1"`
}

// UpdateRequest is the JSON body for PUT /webhooks/:id.
type UpdateRequest struct {
	URL        *string  `json:"url,omitempty" validate:"omitempty,url"`
	EventTypes []string `json:"event_types,omitempty"`
	Active     *bool    `json:"active,omitempty"`
}

// Delivery is one attempt log row for a subscription/event pair.
type Delivery struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID
	TenantID       uuid.UUID
	EventType      string
	Payload        []byte
	Status         string
	Attempts       int32
	LastError      *string
	DeliveredAt    *time.Time
	NextAttemptAt  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
