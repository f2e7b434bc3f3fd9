package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/db"
	"github.com/wisbric/contentkeep/internal/telemetry"
)

// ErrExhausted is returned by Consume when the entitlement's quota is
// already spent or it is otherwise not in a consumable state.
var ErrExhausted = errors.New("entitlement exhausted or not active")

// ErrDelegateExceedsParent is returned when a delegation requests a quota
// or expiry beyond what the parent entitlement has remaining.
var ErrDelegateExceedsParent = errors.New("delegated entitlement cannot exceed parent's remaining quota or expiry")

// Service implements the entitlement lifecycle: creation at challenge
// time, activation on first observed payment, consumption, expiry, revoke,
// and delegation.
type Service struct {
	conn   db.DBTX
	store  *Store
	logger *slog.Logger
}

func NewService(conn db.DBTX, logger *slog.Logger) *Service {
	return &Service{conn: conn, store: NewStore(conn), logger: logger}
}

// Create writes a pending_payment entitlement at challenge time, pinning
// the policy id/version so a later policy edit cannot retroactively change
// the terms of an outstanding purchase.
func (s *Service) Create(ctx context.Context, p CreateParams) (Response, error) {
	e, err := s.store.Create(ctx, p)
	if err != nil {
		return Response{}, fmt.Errorf("creating entitlement: %w", err)
	}
	return e.ToResponse(), nil
}

// Activate transitions the entitlement for paymentHash from pending_payment
// to active. Safe to call repeatedly: a payment observed paid via retry,
// webhook, and reconciliation all call this; only the first call transitions
// the row, and later calls return it as it stands.
func (s *Service) Activate(ctx context.Context, paymentHash string) (Response, error) {
	e, err := s.store.Activate(ctx, paymentHash)
	if err != nil {
		return Response{}, fmt.Errorf("activating entitlement: %w", err)
	}
	return e.ToResponse(), nil
}

// Consume decrements remaining_reads for a read against id, transitioning
// to exhausted when the quota reaches zero. Unlimited entitlements
// (remaining_reads == nil) never exhaust.
func (s *Service) Consume(ctx context.Context, tenantID, id uuid.UUID) (Response, error) {
	e, err := s.store.ConsumeOne(ctx, tenantID, id)
	if err != nil {
		if db.IsNoRows(err) {
			return Response{}, ErrExhausted
		}
		return Response{}, fmt.Errorf("consuming entitlement: %w", err)
	}
	telemetry.EntitlementConsumedTotal.Inc()
	return e.ToResponse(), nil
}

// ExpireSweep transitions every active entitlement past its expiry to
// expired, returning the count of entitlements transitioned.
func (s *Service) ExpireSweep(ctx context.Context, asOf time.Time) (int, error) {
	expirable, err := s.store.ListExpirable(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("listing expirable entitlements: %w", err)
	}

	count := 0
	for _, e := range expirable {
		if _, err := s.store.Expire(ctx, e.ID); err != nil {
			s.logger.Error("expiring entitlement", "error", err, "id", e.ID)
			continue
		}
		count++
	}
	return count, nil
}

func (s *Service) Revoke(ctx context.Context, tenantID, id uuid.UUID) (Response, error) {
	e, err := s.store.Revoke(ctx, tenantID, id)
	if err != nil {
		return Response{}, fmt.Errorf("revoking entitlement: %w", err)
	}
	return e.ToResponse(), nil
}

func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (Response, error) {
	e, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return Response{}, fmt.Errorf("getting entitlement: %w", err)
	}
	return e.ToResponse(), nil
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]Response, error) {
	rows, err := s.store.List(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing entitlements: %w", err)
	}
	items := make([]Response, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].ToResponse())
	}
	return items, nil
}

// Delegate creates a child entitlement referencing a parent, capped by the
// parent's remaining quota and expiry per spec.md §4.4.
func (s *Service) Delegate(ctx context.Context, tenantID, parentID uuid.UUID, req DelegateRequest) (Response, error) {
	var result Entitlement
	err := db.WithTx(ctx, s.conn, func(tx db.DBTX) error {
		txStore := NewStore(tx)

		parent, err := txStore.GetForUpdate(ctx, tenantID, parentID)
		if err != nil {
			return fmt.Errorf("loading parent entitlement: %w", err)
		}
		if parent.Status != StatusActive {
			return ErrDelegateExceedsParent
		}

		remaining := req.RemainingReads
		if parent.RemainingReads != nil {
			if remaining == nil || *remaining > *parent.RemainingReads {
				remaining = parent.RemainingReads
			}
		}

		child, err := txStore.Create(ctx, CreateParams{
			TenantID:       tenantID,
			OfferID:        parent.OfferID,
			ContentTypeID:  parent.ContentTypeID,
			PolicyID:       parent.PolicyID,
			PolicyVersion:  parent.PolicyVersion,
			AgentProfileID: req.AgentProfileID,
			PaymentHash:    parent.PaymentHash + ":" + uuid.New().String(),
			RemainingReads: remaining,
			ExpiresAt:      parent.ExpiresAt,
			DelegatedFrom:  &parent.ID,
		})
		if err != nil {
			return fmt.Errorf("creating delegated entitlement: %w", err)
		}

		// Delegated entitlements are immediately usable; their parent is
		// already active and paid for.
		active, err := txStore.Activate(ctx, child.PaymentHash)
		if err != nil {
			return fmt.Errorf("activating delegated entitlement: %w", err)
		}

		result = active
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return result.ToResponse(), nil
}
