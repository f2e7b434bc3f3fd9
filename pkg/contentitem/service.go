package contentitem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/db"
	"github.com/wisbric/contentkeep/internal/eventbus"
	"github.com/wisbric/contentkeep/pkg/contenttype"
	"github.com/wisbric/contentkeep/pkg/entitlement"
	"github.com/wisbric/contentkeep/pkg/payment"
	"github.com/wisbric/contentkeep/pkg/revenue"
)

// ErrVersionConflict is returned when a concurrent writer changed an item's
// version between read and write.
var ErrVersionConflict = errors.New("content item version conflict")

// ErrTargetVersionNotFound is returned when a rollback names a version that
// has no snapshot.
var ErrTargetVersionNotFound = errors.New("target version not found")

// ErrEmptyUpdateBody is returned when an update request carries no fields.
var ErrEmptyUpdateBody = errors.New("update body is empty")

// ErrPaymentRequired is returned when a write against a content type with a
// positive base price carries no credential that verifies against it. It
// carries the challenge the caller must pay and retry with.
type ErrPaymentRequired struct {
	payment.Challenge
}

func (e *ErrPaymentRequired) Error() string { return "payment required for this content type" }

// Service encapsulates content item business logic: schema validation,
// versioning, rollback, payment gating, and batching.
type Service struct {
	conn        db.DBTX
	store       *Store
	types       *contenttype.Store
	schemas     *contenttype.SchemaCache
	payment     *payment.Service
	entitlement *entitlement.Service
	revenue     *revenue.Service
	logger      *slog.Logger
	bus         *eventbus.Bus
}

func NewService(conn db.DBTX, schemas *contenttype.SchemaCache, paymentSvc *payment.Service, logger *slog.Logger, bus *eventbus.Bus) *Service {
	return &Service{
		conn:        conn,
		store:       NewStore(conn),
		types:       contenttype.NewStore(conn),
		schemas:     schemas,
		payment:     paymentSvc,
		entitlement: entitlement.NewService(conn, logger),
		revenue:     revenue.NewService(conn, logger),
		logger:      logger,
		bus:         bus,
	}
}

// publish fans a domain event out to the bus, a no-op when no bus was
// wired (e.g. in batch transaction-scoped sub-services, which publish
// through the parent instead).
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

// validate loads the content type for contentTypeID and checks data against
// its current schema, returning the type so callers can read its base
// price for the payment gate.
func (s *Service) validate(ctx context.Context, tenantID, contentTypeID uuid.UUID, data json.RawMessage) (contenttype.ContentType, error) {
	ct, err := s.types.Get(ctx, tenantID, contentTypeID)
	if err != nil {
		return ct, fmt.Errorf("loading content type: %w", err)
	}

	schema, err := s.schemas.Get(ct.ID, ct.Schema)
	if err != nil {
		return ct, err
	}

	failures, err := contenttype.ValidateData(schema, string(data))
	if err != nil {
		return ct, err
	}
	if len(failures) > 0 {
		return ct, &SchemaValidationError{Failures: failures}
	}

	return ct, nil
}

// SchemaValidationError carries the JSON-pointer failures of a rejected
// write.
type SchemaValidationError struct {
	Failures []contenttype.ValidationFailure
}

func (e *SchemaValidationError) Error() string {
	if len(e.Failures) == 0 {
		return "content does not satisfy its type's schema"
	}
	return fmt.Sprintf("content does not satisfy its type's schema: %s (%s)", e.Failures[0].Pointer, e.Failures[0].Message)
}

// paymentGate enforces ct's base price against a write at method/path. A
// missing credential, or one that fails to verify, issues a fresh challenge
// and pending entitlement pinned to ct; a credential that verifies lets the
// write through (the entitlement is activated by payment.Service's
// OnSettled hook, inside the transaction that first observes the payment
// paid).
func (s *Service) paymentGate(ctx context.Context, tenantID, actorID uuid.UUID, ct contenttype.ContentType, method, path, credential string) error {
	if credential == "" {
		return s.issueChallenge(ctx, tenantID, actorID, ct, method, path)
	}

	_, err := s.payment.Verify(ctx, tenantID, method, path, credential)
	if err == nil {
		return nil
	}
	if errors.Is(err, payment.ErrStillPending) {
		return err
	}
	if errors.Is(err, payment.ErrCaveatMismatch) || errors.Is(err, payment.ErrInvalidToken) || errors.Is(err, payment.ErrTokenExpired) {
		return s.issueChallenge(ctx, tenantID, actorID, ct, method, path)
	}
	return err
}

// issueChallenge asks the payment provider for an invoice and writes the
// pending_payment entitlement the write will activate once paid. Content
// types carry no split policy or quota of their own, so the entitlement is
// pinned to the tenant's latest split policy and left unlimited.
func (s *Service) issueChallenge(ctx context.Context, tenantID, actorID uuid.UUID, ct contenttype.ContentType, method, path string) error {
	challenge, err := s.payment.Challenge(ctx, tenantID, actorID, method, path, ct.BasePrice)
	if err != nil {
		return fmt.Errorf("issuing payment challenge: %w", err)
	}

	policy, err := s.revenue.LatestPolicy(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("loading split policy for priced content type: %w", err)
	}

	if _, err := s.entitlement.Create(ctx, entitlement.CreateParams{
		TenantID:       tenantID,
		ContentTypeID:  &ct.ID,
		PolicyID:       policy.ID,
		PolicyVersion:  policy.Version,
		AgentProfileID: actorID.String(),
		PaymentHash:    challenge.PaymentHash,
	}); err != nil {
		return fmt.Errorf("creating pending entitlement: %w", err)
	}

	return &ErrPaymentRequired{Challenge: challenge}
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID, f ListFilters, limit, offset int) ([]Response, int, error) {
	rows, err := s.store.List(ctx, tenantID, f, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing content items: %w", err)
	}
	count, err := s.store.Count(ctx, tenantID, f)
	if err != nil {
		return nil, 0, fmt.Errorf("counting content items: %w", err)
	}

	items := make([]Response, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].ToResponse())
	}
	return items, count, nil
}

// Get fetches a content item. When entitlementID is non-nil, the read is
// treated as authorized by that entitlement: its remaining-reads quota is
// decremented (ErrExhausted denies the read once it hits zero), and the
// payment that funded the entitlement is marked consumed the first time a
// read against it succeeds.
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID, entitlementID *uuid.UUID) (Response, error) {
	row, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return Response{}, fmt.Errorf("getting content item: %w", err)
	}

	if entitlementID != nil {
		ent, err := s.entitlement.Consume(ctx, tenantID, *entitlementID)
		if err != nil {
			return Response{}, err
		}
		if err := s.payment.MarkConsumedByHash(ctx, ent.PaymentHash); err != nil {
			return Response{}, fmt.Errorf("marking payment consumed: %w", err)
		}
	}

	return row.ToResponse(), nil
}

func (s *Service) ListVersions(ctx context.Context, itemID uuid.UUID) ([]VersionResponse, error) {
	versions, err := s.store.ListVersions(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("listing content item versions: %w", err)
	}
	out := make([]VersionResponse, 0, len(versions))
	for i := range versions {
		out = append(out, versions[i].ToResponse())
	}
	return out, nil
}

// Create validates data against the content type's schema and persists a
// new item at version 1. A dry run performs validation only and never
// triggers the payment gate, since it commits nothing for a challenge to
// protect. A live write against a content type with a positive base price
// requires credential to carry a verifying "token:preimage" pair, or the
// call returns ErrPaymentRequired with a fresh challenge.
func (s *Service) Create(ctx context.Context, tenantID, actorID uuid.UUID, credential string, req CreateRequest) (Response, error) {
	status := req.Status
	if status == "" {
		status = StatusDraft
	}

	ct, err := s.validate(ctx, tenantID, req.ContentTypeID, req.Data)
	if err != nil {
		return Response{}, err
	}

	if req.DryRun {
		return Response{
			ID:            uuid.Nil,
			ContentTypeID: req.ContentTypeID,
			Data:          req.Data,
			Status:        status,
			Version:       1,
		}, nil
	}

	if ct.BasePrice > 0 {
		if err := s.paymentGate(ctx, tenantID, actorID, ct, "POST", "/content-items", credential); err != nil {
			return Response{}, err
		}
	}

	row, err := s.store.Create(ctx, tenantID, req.ContentTypeID, req.Data, status)
	if err != nil {
		return Response{}, fmt.Errorf("creating content item: %w", err)
	}
	s.publish(ctx, "content_item.create", tenantID, row.ID, map[string]any{
		"content_type_id": row.ContentTypeID,
		"status":          row.Status,
		"version":         row.Version,
	})
	return row.ToResponse(), nil
}

// Update snapshots the current row, applies the patch, and increments the
// version within a single transaction. Concurrent updates to the same item
// serialize through a row lock (FOR UPDATE): the second writer waits for
// the first to commit rather than racing on the version check. The payment
// gate, when the item's content type carries a positive base price, is
// checked against a non-locking read before the transaction opens: it may
// call out to the payment provider, and that I/O must not happen while
// holding the row's FOR UPDATE lock.
func (s *Service) Update(ctx context.Context, tenantID, actorID, id uuid.UUID, credential string, req UpdateRequest) (Response, error) {
	if req.IsEmpty() {
		return Response{}, ErrEmptyUpdateBody
	}

	if !req.DryRun {
		current, err := s.store.Get(ctx, tenantID, id)
		if err != nil {
			return Response{}, fmt.Errorf("loading content item: %w", err)
		}
		ct, err := s.types.Get(ctx, tenantID, current.ContentTypeID)
		if err != nil {
			return Response{}, fmt.Errorf("loading content type: %w", err)
		}
		if ct.BasePrice > 0 {
			path := fmt.Sprintf("/content-items/%s", id)
			if err := s.paymentGate(ctx, tenantID, actorID, ct, "PUT", path, credential); err != nil {
				return Response{}, err
			}
		}
	}

	var result Item
	err := db.WithTx(ctx, s.conn, func(tx db.DBTX) error {
		txStore := NewStore(tx)

		current, err := txStore.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return fmt.Errorf("locking content item: %w", err)
		}

		data := current.Data
		if len(req.Data) > 0 {
			data = req.Data
		}
		status := current.Status
		if req.Status != nil {
			status = *req.Status
		}

		txTypes := contenttype.NewStore(tx)
		ct, err := txTypes.Get(ctx, tenantID, current.ContentTypeID)
		if err != nil {
			return fmt.Errorf("loading content type: %w", err)
		}
		schema, err := s.schemas.Get(ct.ID, ct.Schema)
		if err != nil {
			return err
		}
		failures, err := contenttype.ValidateData(schema, string(data))
		if err != nil {
			return err
		}
		if len(failures) > 0 {
			return &SchemaValidationError{Failures: failures}
		}

		if req.DryRun {
			result = Item{
				ID:            current.ID,
				ContentTypeID: current.ContentTypeID,
				Data:          data,
				Status:        status,
				Version:       current.Version + 1,
			}
			return errDryRunRollback
		}

		if err := txStore.SnapshotVersion(ctx, current); err != nil {
			return fmt.Errorf("snapshotting content item version: %w", err)
		}

		updated, err := txStore.ApplyUpdate(ctx, tenantID, id, current.Version, data, status)
		if err != nil {
			if db.IsNoRows(err) {
				return ErrVersionConflict
			}
			return fmt.Errorf("applying content item update: %w", err)
		}

		result = updated
		return nil
	})
	if err != nil && !errors.Is(err, errDryRunRollback) {
		return Response{}, err
	}
	if !req.DryRun {
		s.publish(ctx, "content_item.update", tenantID, result.ID, map[string]any{
			"status":  result.Status,
			"version": result.Version,
		})
	}

	return result.ToResponse(), nil
}

// Rollback snapshots the current head, then overwrites it with the target
// version's payload, producing a new head version. History is never
// deleted — the rolled-back-from state remains as its own snapshot.
func (s *Service) Rollback(ctx context.Context, tenantID, id uuid.UUID, req RollbackRequest) (Response, error) {
	var result Item
	err := db.WithTx(ctx, s.conn, func(tx db.DBTX) error {
		txStore := NewStore(tx)

		current, err := txStore.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return fmt.Errorf("locking content item: %w", err)
		}

		target, err := txStore.GetVersion(ctx, id, req.Version)
		if err != nil {
			if db.IsNoRows(err) {
				return ErrTargetVersionNotFound
			}
			return fmt.Errorf("loading target version: %w", err)
		}

		if req.DryRun {
			result = Item{
				ID:            current.ID,
				ContentTypeID: current.ContentTypeID,
				Data:          target.Data,
				Status:        target.Status,
				Version:       current.Version + 1,
			}
			return errDryRunRollback
		}

		if err := txStore.SnapshotVersion(ctx, current); err != nil {
			return fmt.Errorf("snapshotting content item version: %w", err)
		}

		updated, err := txStore.ApplyUpdate(ctx, tenantID, id, current.Version, target.Data, target.Status)
		if err != nil {
			if db.IsNoRows(err) {
				return ErrVersionConflict
			}
			return fmt.Errorf("applying rollback: %w", err)
		}

		result = updated
		return nil
	})
	if err != nil && !errors.Is(err, errDryRunRollback) {
		return Response{}, err
	}
	if !req.DryRun {
		s.publish(ctx, "content_item.rollback", tenantID, result.ID, map[string]any{
			"status":         result.Status,
			"version":        result.Version,
			"rolled_back_to": req.Version,
		})
	}

	return result.ToResponse(), nil
}

func (s *Service) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.store.Delete(ctx, tenantID, id); err != nil {
		return fmt.Errorf("deleting content item: %w", err)
	}
	s.publish(ctx, "content_item.delete", tenantID, id, nil)
	return nil
}

// errDryRunRollback is a sentinel used to unwind db.WithTx without
// committing while still reporting success to the caller.
var errDryRunRollback = errors.New("dry run, no changes committed")

// Batch applies a sequence of create/update/delete operations. When atomic,
// every operation commits together or none do; otherwise each operation
// succeeds or fails independently and the response reports per-item outcomes.
// A single credential, if present, is checked against every priced op in the
// batch; a batch mixing several distinct priced writes needs a credential
// per write, so gate failures on any op surface as that op's own error.
func (s *Service) Batch(ctx context.Context, tenantID, actorID uuid.UUID, credential string, req BatchRequest) (BatchResponse, error) {
	if req.Atomic {
		return s.batchAtomic(ctx, tenantID, actorID, credential, req)
	}
	return s.batchIndependent(ctx, tenantID, actorID, credential, req), nil
}

func (s *Service) batchAtomic(ctx context.Context, tenantID, actorID uuid.UUID, credential string, req BatchRequest) (BatchResponse, error) {
	results := make([]BatchResult, len(req.Ops))

	// txSvc carries no bus: publishing from inside applyOp would fire events
	// for ops that the outer transaction later rolls back. Events are
	// published below, once, only after the transaction actually commits.
	err := db.WithTx(ctx, s.conn, func(tx db.DBTX) error {
		txSvc := &Service{
			conn:        tx,
			store:       NewStore(tx),
			types:       contenttype.NewStore(tx),
			schemas:     s.schemas,
			payment:     s.payment,
			entitlement: entitlement.NewService(tx, s.logger),
			revenue:     revenue.NewService(tx, s.logger),
			logger:      s.logger,
		}
		for i, op := range req.Ops {
			resp, err := txSvc.applyOp(ctx, tenantID, actorID, credential, op, req.DryRun)
			if err != nil {
				return fmt.Errorf("batch op %d (%s): %w", i, op.Op, err)
			}
			results[i] = BatchResult{Index: i, OK: true, Item: &resp}
		}
		if req.DryRun {
			return errDryRunRollback
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRunRollback) {
		return BatchResponse{Atomic: true, Results: nil}, err
	}
	if err == nil {
		for i, op := range req.Ops {
			if results[i].Item == nil {
				continue
			}
			s.publish(ctx, "content_item."+op.Op, tenantID, results[i].Item.ID, map[string]any{
				"batch": true,
			})
		}
	}

	return BatchResponse{Atomic: true, Results: results}, nil
}

func (s *Service) batchIndependent(ctx context.Context, tenantID, actorID uuid.UUID, credential string, req BatchRequest) BatchResponse {
	results := make([]BatchResult, len(req.Ops))
	for i, op := range req.Ops {
		resp, err := s.applyOp(ctx, tenantID, actorID, credential, op, req.DryRun)
		if err != nil {
			results[i] = BatchResult{Index: i, OK: false, Error: err.Error()}
			continue
		}
		results[i] = BatchResult{Index: i, OK: true, Item: &resp}
	}
	return BatchResponse{Atomic: false, Results: results}
}

func (s *Service) applyOp(ctx context.Context, tenantID, actorID uuid.UUID, credential string, op BatchOp, dryRun bool) (Response, error) {
	switch op.Op {
	case "create":
		if op.ContentTypeID == nil {
			return Response{}, fmt.Errorf("content_type_id required for create")
		}
		status := StatusDraft
		if op.Status != nil {
			status = *op.Status
		}
		return s.Create(ctx, tenantID, actorID, credential, CreateRequest{ContentTypeID: *op.ContentTypeID, Data: op.Data, Status: status, DryRun: dryRun})
	case "update":
		if op.ID == nil {
			return Response{}, fmt.Errorf("id required for update")
		}
		return s.Update(ctx, tenantID, actorID, *op.ID, credential, UpdateRequest{Data: op.Data, Status: op.Status, DryRun: dryRun})
	case "delete":
		if op.ID == nil {
			return Response{}, fmt.Errorf("id required for delete")
		}
		if dryRun {
			return Response{ID: *op.ID}, nil
		}
		if err := s.Delete(ctx, tenantID, *op.ID); err != nil {
			return Response{}, err
		}
		return Response{ID: *op.ID}, nil
	default:
		return Response{}, fmt.Errorf("unknown batch op %q", op.Op)
	}
}
