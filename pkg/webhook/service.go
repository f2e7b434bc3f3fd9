package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/db"
	"github.com/wisbric/contentkeep/internal/eventbus"
)

// Service implements webhook subscription CRUD and event-matched delivery
// enqueueing. Subscribe to the event bus with Dispatch to fan matching
// events out as pending deliveries.
type Service struct {
	store  *Store
	logger *slog.Logger
}

func NewService(conn db.DBTX, logger *slog.Logger) *Service {
	return &Service{store: NewStore(conn), logger: logger}
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]Response, error) {
	subs, err := s.store.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	items := make([]Response, 0, len(subs))
	for i := range subs {
		items = append(items, subs[i].ToResponse())
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (Response, error) {
	sub, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return Response{}, fmt.Errorf("getting webhook: %w", err)
	}
	return sub.ToResponse(), nil
}

func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, req CreateRequest) (CreateResponse, error) {
	secret := generateSecret()
	sub, err := s.store.Create(ctx, tenantID, req.URL, secret, req.EventTypes)
	if err != nil {
		return CreateResponse{}, fmt.Errorf("creating webhook: %w", err)
	}
	return CreateResponse{Response: sub.ToResponse(), Secret: secret}, nil
}

func (s *Service) Update(ctx context.Context, tenantID, id uuid.UUID, req UpdateRequest) (Response, error) {
	sub, err := s.store.Update(ctx, tenantID, id, req.URL, req.EventTypes, req.Active)
	if err != nil {
		return Response{}, fmt.Errorf("updating webhook: %w", err)
	}
	return sub.ToResponse(), nil
}

func (s *Service) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.store.Delete(ctx, tenantID, id); err != nil {
		return fmt.Errorf("deleting webhook: %w", err)
	}
	return nil
}

// Dispatch subscribes to bus and, for every published event, enqueues a
// pending delivery for each active, matching subscription of the event's
// tenant. Run as a goroutine; it returns when ctx is cancelled.
func (s *Service) Dispatch(ctx context.Context, bus *eventbus.Bus) {
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			s.fanOut(ctx, e)
		}
	}
}

func (s *Service) fanOut(ctx context.Context, e eventbus.Event) {
	subs, err := s.store.ListActiveForTenantMatching(ctx, e.TenantID)
	if err != nil {
		s.logger.Error("listing webhook subscriptions for dispatch", "error", err, "tenant", e.TenantID)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"type":       e.Type,
		"tenant_id":  e.TenantID,
		"entity_id":  e.EntityID,
		"detail":     e.Detail,
		"created_at": e.CreatedAt,
	})
	if err != nil {
		s.logger.Error("marshaling webhook payload", "error", err)
		return
	}

	for _, sub := range subs {
		if !sub.Matches(e.Type) {
			continue
		}
		if _, err := s.store.EnqueueDelivery(ctx, sub.ID, e.TenantID, e.Type, payload); err != nil {
			s.logger.Error("enqueueing webhook delivery", "error", err, "subscription", sub.ID)
		}
	}
}

// Sign computes the detached HMAC-SHA256 signature of body using secret,
// transported in the X-Webhook-Signature header on delivery.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func generateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return "whsec_" + hex.EncodeToString(b)
}
