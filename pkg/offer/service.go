package offer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/db"
	"github.com/wisbric/contentkeep/internal/eventbus"
	"github.com/wisbric/contentkeep/pkg/entitlement"
	"github.com/wisbric/contentkeep/pkg/payment"
	"github.com/wisbric/contentkeep/pkg/revenue"
)

// Service implements offer CRUD plus the two-step L402 purchase flow:
// Purchase issues a challenge and a pending_payment entitlement, Confirm
// presents the credential and relies on payment.Service's OnSettled hook
// (wired by NewService) to activate the entitlement and allocate revenue in
// the same transaction that observes the payment as paid.
type Service struct {
	conn        db.DBTX
	store       *Store
	entitlement *entitlement.Service
	revenue     *revenue.Service
	payment     *payment.Service
	logger      *slog.Logger
	bus         *eventbus.Bus
}

// NewService wires payment.Service's settlement hook to this offer's
// entitlement activation and revenue split, so a payment observed paid via
// synchronous verify, webhook, or reconciliation always triggers both side
// effects exactly once, inside the transition's own transaction.
func NewService(conn db.DBTX, paymentSvc *payment.Service, logger *slog.Logger, bus *eventbus.Bus) *Service {
	s := &Service{
		conn:        conn,
		store:       NewStore(conn),
		entitlement: entitlement.NewService(conn, logger),
		revenue:     revenue.NewService(conn, logger),
		payment:     paymentSvc,
		logger:      logger,
		bus:         bus,
	}
	paymentSvc.SetOnSettled(s.onPaymentSettled)
	return s
}

// publish fans a domain event out to the bus, a no-op when no bus was
// wired. Callers only invoke this once the mutation it describes has
// already committed.
func (s *Service) publish(ctx context.Context, eventType string, tenantID, entityID uuid.UUID, detail map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, eventbus.Event{
		Type:      eventType,
		TenantID:  tenantID,
		EntityID:  entityID.String(),
		Detail:    detail,
		CreatedAt: time.Now(),
	})
}

// onPaymentSettled is payment.OnSettled: it runs inside the transaction that
// just flipped p to paid. applyProviderStatusTx only calls this hook when
// the payment's own pending->paid edge is taken for the first time, so
// activation and allocation below happen exactly once per payment
// regardless of which of the three observation paths got there first. An
// offer purchased outside this flow (no matching entitlement) is a no-op:
// nothing to activate.
func (s *Service) onPaymentSettled(ctx context.Context, tx db.DBTX, p payment.Payment) error {
	txEntitlement := entitlement.NewService(tx, s.logger)
	txRevenue := revenue.NewService(tx, s.logger)

	activated, err := txEntitlement.Activate(ctx, p.PaymentHash)
	if err != nil {
		if db.IsNoRows(err) {
			return nil
		}
		return fmt.Errorf("activating entitlement for settled payment: %w", err)
	}

	if _, _, err := txRevenue.AllocateForPayment(ctx, p.TenantID, p.ID, activated.PolicyID, p.AmountSats); err != nil {
		return fmt.Errorf("allocating revenue for settled payment: %w", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]Response, error) {
	rows, err := s.store.List(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing offers: %w", err)
	}
	items := make([]Response, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].ToResponse())
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (Response, error) {
	o, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return Response{}, fmt.Errorf("getting offer: %w", err)
	}
	return o.ToResponse(), nil
}

func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, req CreateRequest) (Response, error) {
	o, err := s.store.Create(ctx, CreateParams{
		TenantID:              tenantID,
		ContentTypeID:         req.ContentTypeID,
		Name:                  req.Name,
		PriceSats:             req.PriceSats,
		PolicyID:              req.PolicyID,
		DefaultRemainingReads: req.DefaultRemainingReads,
		DefaultTTL:            durationFromSeconds(req.DefaultTTLSeconds),
	})
	if err != nil {
		return Response{}, fmt.Errorf("creating offer: %w", err)
	}
	s.publish(ctx, "offer.create", tenantID, o.ID, map[string]any{"price_sats": o.PriceSats})
	return o.ToResponse(), nil
}

func (s *Service) Update(ctx context.Context, tenantID, id uuid.UUID, req UpdateRequest) (Response, error) {
	existing, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return Response{}, fmt.Errorf("loading offer: %w", err)
	}

	params := UpdateParams{
		Name:                  existing.Name,
		PriceSats:             existing.PriceSats,
		PolicyID:              existing.PolicyID,
		DefaultRemainingReads: existing.DefaultRemainingReads,
		DefaultTTL:            existing.DefaultTTL,
		Active:                existing.Active,
	}
	if req.Name != nil {
		params.Name = *req.Name
	}
	if req.PriceSats != nil {
		params.PriceSats = *req.PriceSats
	}
	if req.PolicyID != nil {
		params.PolicyID = *req.PolicyID
	}
	if req.DefaultRemainingReads != nil {
		params.DefaultRemainingReads = req.DefaultRemainingReads
	}
	if req.DefaultTTLSeconds != nil {
		params.DefaultTTL = durationFromSeconds(req.DefaultTTLSeconds)
	}
	if req.Active != nil {
		params.Active = *req.Active
	}

	o, err := s.store.Update(ctx, tenantID, id, params)
	if err != nil {
		return Response{}, fmt.Errorf("updating offer: %w", err)
	}
	s.publish(ctx, "offer.update", tenantID, o.ID, map[string]any{"active": o.Active})
	return o.ToResponse(), nil
}

func (s *Service) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.store.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.publish(ctx, "offer.delete", tenantID, id, nil)
	return nil
}

// PurchaseResponse is returned by Purchase: the L402 challenge the caller
// must pay and present back to Confirm.
type PurchaseResponse struct {
	payment.Challenge
	OfferID       uuid.UUID `json:"offer_id"`
	EntitlementID uuid.UUID `json:"entitlement_id"`
}

// Purchase issues a payment challenge for offer id and writes a
// pending_payment entitlement pinned to the offer's current policy version,
// so a later policy edit cannot retroactively change an outstanding
// purchase's terms.
func (s *Service) Purchase(ctx context.Context, tenantID, actorID, id uuid.UUID, req PurchaseRequest) (PurchaseResponse, error) {
	o, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return PurchaseResponse{}, fmt.Errorf("loading offer: %w", err)
	}
	if !o.Active {
		return PurchaseResponse{}, fmt.Errorf("offer is not active")
	}

	policy, err := revenue.NewStore(s.conn).GetPolicy(ctx, o.PolicyID)
	if err != nil {
		return PurchaseResponse{}, fmt.Errorf("loading split policy: %w", err)
	}

	confirmPath := fmt.Sprintf("/offers/%s/purchase/confirm", o.ID)
	challenge, err := s.payment.Challenge(ctx, tenantID, actorID, "POST", confirmPath, o.PriceSats)
	if err != nil {
		return PurchaseResponse{}, fmt.Errorf("issuing payment challenge: %w", err)
	}

	var expiresAt *time.Time
	if o.DefaultTTL != nil {
		t := time.Now().Add(*o.DefaultTTL)
		expiresAt = &t
	}

	ent, err := s.entitlement.Create(ctx, entitlement.CreateParams{
		TenantID:       tenantID,
		OfferID:        &o.ID,
		PolicyID:       policy.ID,
		PolicyVersion:  policy.Version,
		AgentProfileID: req.AgentProfileID,
		PaymentHash:    challenge.PaymentHash,
		RemainingReads: o.DefaultRemainingReads,
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		return PurchaseResponse{}, fmt.Errorf("creating pending entitlement: %w", err)
	}
	s.publish(ctx, "offer.purchase", tenantID, o.ID, map[string]any{
		"entitlement_id": ent.ID,
		"payment_hash":   challenge.PaymentHash,
	})

	return PurchaseResponse{
		Challenge:     challenge,
		OfferID:       o.ID,
		EntitlementID: ent.ID,
	}, nil
}

// Confirm presents a "token:preimage" credential against offer id's
// purchase/confirm path. On success, the returned entitlement has already
// been activated and its revenue allocated by the OnSettled hook, which ran
// inside the transaction that first observed the payment paid: Verify's
// own, or an earlier webhook or reconciliation pass.
func (s *Service) Confirm(ctx context.Context, tenantID, id uuid.UUID, credential string) (entitlement.Response, error) {
	confirmPath := fmt.Sprintf("/offers/%s/purchase/confirm", id)
	p, err := s.payment.Verify(ctx, tenantID, "POST", confirmPath, credential)
	if err != nil {
		return entitlement.Response{}, err
	}

	resp, err := s.entitlementByPaymentHash(ctx, tenantID, p.PaymentHash)
	if err != nil {
		return entitlement.Response{}, fmt.Errorf("loading confirmed entitlement: %w", err)
	}
	// payment.Verify only returns once its own transaction has committed, so
	// by this point entitlement activation and revenue allocation (run via
	// onPaymentSettled in whichever transaction first observed the payment
	// paid) are already durable.
	s.publish(ctx, "entitlement.activate", tenantID, resp.ID, map[string]any{
		"offer_id": id,
	})
	return resp, nil
}

func (s *Service) entitlementByPaymentHash(ctx context.Context, tenantID uuid.UUID, paymentHash string) (entitlement.Response, error) {
	e, err := entitlement.NewStore(s.conn).GetByPaymentHash(ctx, paymentHash)
	if err != nil {
		return entitlement.Response{}, err
	}
	if e.TenantID != tenantID {
		return entitlement.Response{}, fmt.Errorf("entitlement belongs to a different tenant")
	}
	return e.ToResponse(), nil
}
