package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/db"
)

// ErrStillPending is returned by Verify when the provider has not yet
// observed settlement.
var ErrStillPending = errors.New("payment still pending")

// ErrCaveatMismatch is returned when a token's bound method/path/tenant
// does not match the request it is presented against.
var ErrCaveatMismatch = errors.New("token caveats do not match this request")

// OnSettled is invoked from inside the same transaction that first
// transitions a payment to paid, for every one of the three observation
// paths (synchronous verify, webhook, reconciliation). It lets callers
// above this package (entitlement activation, revenue allocation) share
// the payment's atomicity without payment importing them. A returned error
// rolls back the payment transition along with whatever the hook did.
type OnSettled func(ctx context.Context, tx db.DBTX, p Payment) error

// Service implements the payment state machine: challenge issuance,
// synchronous verification, and webhook/reconciliation settlement, all
// funneled through the same transition entry point so replay is always
// idempotent regardless of which of the three paths observes it first.
type Service struct {
	conn      db.DBTX
	store     *Store
	provider  Provider
	signer    *TokenSigner
	tokenTTL  time.Duration
	logger    *slog.Logger
	onSettled OnSettled
}

func NewService(conn db.DBTX, provider Provider, signer *TokenSigner, tokenTTL time.Duration, logger *slog.Logger) *Service {
	return &Service{
		conn:     conn,
		store:    NewStore(conn),
		provider: provider,
		signer:   signer,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// SetOnSettled registers the hook run when a payment is newly observed
// paid. Must be called before the service handles any request; not safe
// to change concurrently with in-flight transitions.
func (s *Service) SetOnSettled(hook OnSettled) {
	s.onSettled = hook
}

// Challenge creates a pending invoice via the configured provider, signs a
// capability token binding (paymentHash, method, path, tenant, amount,
// expiry), and persists the pending payment row.
func (s *Service) Challenge(ctx context.Context, tenantID, actorID uuid.UUID, method, path string, amountSats int64) (Challenge, error) {
	inv, err := s.provider.CreateInvoice(ctx, amountSats, path)
	if err != nil {
		return Challenge{}, fmt.Errorf("creating invoice: %w", err)
	}

	claims := Claims{
		PaymentHash: inv.PaymentHash,
		Method:      method,
		Path:        path,
		TenantID:    tenantID,
		AmountSats:  amountSats,
		Expiry:      inv.ExpiresAt,
	}
	if s.tokenTTL > 0 {
		tokenExpiry := time.Now().Add(s.tokenTTL)
		if tokenExpiry.Before(claims.Expiry) {
			claims.Expiry = tokenExpiry
		}
	}

	token, err := s.signer.Sign(claims)
	if err != nil {
		return Challenge{}, fmt.Errorf("signing token: %w", err)
	}

	_, err = s.store.Create(ctx, CreateParams{
		TenantID:          tenantID,
		PaymentHash:       inv.PaymentHash,
		Provider:          s.provider.Name(),
		ProviderInvoiceID: inv.ProviderInvoiceID,
		PaymentRequest:    inv.PaymentRequest,
		AmountSats:        amountSats,
		ExpiresAt:         inv.ExpiresAt,
		ResourcePath:      path,
		ActorID:           actorID,
	})
	if err != nil {
		return Challenge{}, fmt.Errorf("persisting pending payment: %w", err)
	}

	return Challenge{
		Token:          token,
		PaymentHash:    inv.PaymentHash,
		PaymentRequest: inv.PaymentRequest,
		AmountSats:     amountSats,
		ExpiresAt:      inv.ExpiresAt,
	}, nil
}

// Verify checks a presented "token:preimage" credential against the
// request it is bound to, consulting the provider if the payment has not
// yet been observed paid. A nil error means the payment is paid (or already
// consumed) and the request may proceed. ErrStillPending means the provider
// has not yet observed settlement; ErrInvalidToken, ErrTokenExpired and
// ErrCaveatMismatch mean the credential does not authorize this request;
// any other error comes from the store, the provider, or a payment that has
// expired or failed.
func (s *Service) Verify(ctx context.Context, tenantID uuid.UUID, method, path, credential string) (Payment, error) {
	token, preimage, err := SplitCredential(credential)
	if err != nil {
		return Payment{}, err
	}

	claims, err := s.signer.Verify(token)
	if err != nil {
		return Payment{}, err
	}
	if claims.TenantID != tenantID || claims.Method != method || claims.Path != path {
		return Payment{}, ErrCaveatMismatch
	}

	p, err := s.store.GetByHash(ctx, claims.PaymentHash)
	if err != nil {
		return Payment{}, fmt.Errorf("loading payment: %w", err)
	}

	switch p.Status {
	case StatusPaid, StatusConsumed:
		return p, nil
	case StatusExpired, StatusFailed:
		return p, fmt.Errorf("payment is %s", p.Status)
	}

	status, err := s.provider.VerifyPayment(ctx, claims.PaymentHash, preimage)
	if err != nil {
		return Payment{}, fmt.Errorf("verifying payment with provider: %w", err)
	}

	updated, err := s.applyProviderStatus(ctx, p, status, "sync-verify:"+claims.PaymentHash)
	if err != nil {
		return Payment{}, err
	}

	if updated.Status != StatusPaid && updated.Status != StatusConsumed {
		return updated, ErrStillPending
	}
	return updated, nil
}

// ApplyWebhookEvent applies a provider's settlement callback. Deduplicated
// by eventId per payment so retried webhook deliveries are no-ops.
func (s *Service) ApplyWebhookEvent(ctx context.Context, providerName string, event WebhookEvent) (Payment, error) {
	var result Payment
	err := db.WithTx(ctx, s.conn, func(tx db.DBTX) error {
		txStore := NewStore(tx)

		p, err := txStore.GetByHashForUpdate(ctx, event.PaymentHash)
		if err != nil {
			return fmt.Errorf("loading payment: %w", err)
		}

		if p.LastEventID != nil && *p.LastEventID == event.EventID {
			result = p
			return nil
		}

		status := ProviderStatus{Status: event.Status}
		updated, err := s.applyProviderStatusTx(ctx, txStore, p, status, event.EventID)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	return result, err
}

// applyProviderStatus re-reads the payment within a transaction before
// applying the transition, so a concurrent writer (another verify attempt,
// the reconciliation sweep) cannot race this one.
func (s *Service) applyProviderStatus(ctx context.Context, p Payment, status ProviderStatus, eventID string) (Payment, error) {
	var result Payment
	err := db.WithTx(ctx, s.conn, func(tx db.DBTX) error {
		txStore := NewStore(tx)
		current, err := txStore.GetByHashForUpdate(ctx, p.PaymentHash)
		if err != nil {
			return err
		}
		updated, err := s.applyProviderStatusTx(ctx, txStore, current, status, eventID)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	return result, err
}

func (s *Service) applyProviderStatusTx(ctx context.Context, txStore *Store, p Payment, status ProviderStatus, eventID string) (Payment, error) {
	switch status.Status {
	case StatusPaid:
		if !CanTransition(p.Status, StatusPaid) {
			return p, nil
		}
		updated, err := txStore.TransitionToPaid(ctx, p.ID, eventID)
		if err != nil {
			return Payment{}, err
		}
		if s.onSettled != nil {
			if err := s.onSettled(ctx, txStore.db, updated); err != nil {
				return Payment{}, fmt.Errorf("on-settled hook: %w", err)
			}
		}
		return updated, nil
	case StatusExpired:
		if !CanTransition(p.Status, StatusExpired) {
			return p, nil
		}
		return txStore.TransitionToExpired(ctx, p.ID)
	case StatusFailed:
		if !CanTransition(p.Status, StatusFailed) {
			return p, nil
		}
		reason := "payment failed"
		if status.FailureReason != nil {
			reason = *status.FailureReason
		}
		return txStore.TransitionToFailed(ctx, p.ID, reason)
	default:
		return p, nil
	}
}

// ReconcileOne re-queries the provider for a single stale pending payment
// and applies the resulting transition through the same entry point
// webhooks and synchronous verification use.
func (s *Service) ReconcileOne(ctx context.Context, p Payment) (Payment, bool, error) {
	status, err := s.provider.GetInvoiceStatus(ctx, p.PaymentHash)
	if err != nil {
		return p, false, fmt.Errorf("querying provider status: %w", err)
	}
	if status.Status == StatusPending {
		return p, false, nil
	}

	updated, err := s.applyProviderStatus(ctx, p, status, "reconcile:"+p.PaymentHash)
	if err != nil {
		return p, false, err
	}
	return updated, updated.Status != p.Status, nil
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]Response, error) {
	rows, err := s.store.List(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	items := make([]Response, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].ToResponse())
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (Response, error) {
	p, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return Response{}, fmt.Errorf("getting payment: %w", err)
	}
	return p.ToResponse(), nil
}

// ListStalePending is exposed for the reconciliation worker. Only payments
// created through the configured provider are returned.
func (s *Service) ListStalePending(ctx context.Context, olderThan time.Time) ([]Payment, error) {
	stale, err := s.store.ListStalePending(ctx, olderThan)
	if err != nil {
		return nil, err
	}
	name := s.provider.Name()
	own := stale[:0]
	for _, p := range stale {
		if p.Provider == name {
			own = append(own, p)
		}
	}
	return own, nil
}

// CountPendingOlderThan backs the pending_over_15m_count gauge.
func (s *Service) CountPendingOlderThan(ctx context.Context, olderThan time.Time) (int, error) {
	return s.store.CountPendingOlderThan(ctx, olderThan)
}

// MarkConsumed transitions a payment to consumed on the first fulfilling
// entitlement read.
func (s *Service) MarkConsumed(ctx context.Context, paymentID uuid.UUID) error {
	_, err := s.store.MarkConsumed(ctx, paymentID)
	return err
}

// MarkConsumedByHash is MarkConsumed for callers that only hold the
// payment's hash, such as an entitlement consumed by reference.
func (s *Service) MarkConsumedByHash(ctx context.Context, paymentHash string) error {
	p, err := s.store.GetByHash(ctx, paymentHash)
	if err != nil {
		return fmt.Errorf("loading payment by hash: %w", err)
	}
	return s.MarkConsumed(ctx, p.ID)
}

// VerifyWebhookSignature checks the HMAC-SHA256 signature a provider
// attaches to its webhook body, using the provider-specific shared secret
// configured out of band.
func VerifyWebhookSignature(secret, body, signatureHeader string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

// DecodeWebhookEvent parses a provider webhook body.
func DecodeWebhookEvent(body []byte) (WebhookEvent, error) {
	var e WebhookEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return WebhookEvent{}, fmt.Errorf("decoding webhook body: %w", err)
	}
	return e, nil
}
