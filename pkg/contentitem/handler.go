package contentitem

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/apierr"
	"github.com/wisbric/contentkeep/internal/audit"
	"github.com/wisbric/contentkeep/internal/auth"
	"github.com/wisbric/contentkeep/internal/db"
	"github.com/wisbric/contentkeep/internal/eventbus"
	"github.com/wisbric/contentkeep/internal/httpserver"
	"github.com/wisbric/contentkeep/internal/tenant"
	"github.com/wisbric/contentkeep/pkg/contenttype"
	"github.com/wisbric/contentkeep/pkg/entitlement"
	"github.com/wisbric/contentkeep/pkg/payment"
)

// Handler provides HTTP handlers for /content-items.
type Handler struct {
	logger  *slog.Logger
	audit   *audit.Writer
	service *Service
}

func NewHandler(conn db.DBTX, schemas *contenttype.SchemaCache, paymentSvc *payment.Service, logger *slog.Logger, audit *audit.Writer, bus *eventbus.Bus) *Handler {
	return &Handler{
		logger:  logger,
		audit:   audit,
		service: NewService(conn, schemas, paymentSvc, logger, bus),
	}
}

// credentialFromHeader extracts the "token:preimage" pair from an
// "Authorization: L402 token:preimage" header, presented by a caller
// retrying a write a prior call gated with a 402 challenge.
func credentialFromHeader(r *http.Request) string {
	v := r.Header.Get("Authorization")
	const prefix = "L402 "
	if !strings.HasPrefix(v, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(v, prefix))
}

// Routes returns a chi.Router with every /content-items route mounted. The
// payment gate for priced content types runs inside the service layer,
// keyed on each content type's base price, not as blanket middleware here.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(auth.RequireScope(auth.ScopeContentRead)).Get("/", h.handleList)
	r.With(auth.RequireScope(auth.ScopeContentWrite)).Post("/", h.handleCreate)
	r.With(auth.RequireScope(auth.ScopeContentWrite)).Post("/batch", h.handleBatch)

	r.Route("/{id}", func(r chi.Router) {
		r.With(auth.RequireScope(auth.ScopeContentRead)).Get("/", h.handleGet)
		r.With(auth.RequireScope(auth.ScopeContentWrite)).Put("/", h.handleUpdate)
		r.With(auth.RequireScope(auth.ScopeContentWrite)).Delete("/", h.handleDelete)
		r.With(auth.RequireScope(auth.ScopeContentRead)).Get("/versions", h.handleListVersions)
		r.With(auth.RequireScope(auth.ScopeContentWrite)).Post("/rollback", h.handleRollback)
	})

	return r
}

func reqID(r *http.Request) string { return r.Header.Get("X-Request-ID") }

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, logContext string, id uuid.UUID) {
	var schemaErr *SchemaValidationError
	var paymentErr *ErrPaymentRequired
	switch {
	case errors.As(err, &paymentErr):
		w.Header().Set("WWW-Authenticate",
			`L402 token="`+paymentErr.Token+`", invoice="`+paymentErr.PaymentRequest+`"`)
		apierr.RespondError(w, reqID(r), apierr.New(apierr.PaymentRequired, "pay the advertised invoice to write this content type").
			WithMeta(map[string]any{
				"payment_hash":    paymentErr.PaymentHash,
				"payment_request": paymentErr.PaymentRequest,
				"amount_sats":     paymentErr.AmountSats,
				"expires_at":      paymentErr.ExpiresAt,
			}))
	case errors.Is(err, payment.ErrStillPending):
		apierr.RespondError(w, reqID(r), apierr.New(apierr.PaymentRequired, "payment not yet settled"))
	case errors.Is(err, payment.ErrCaveatMismatch), errors.Is(err, payment.ErrInvalidToken):
		apierr.RespondError(w, reqID(r), apierr.New(apierr.PaymentInvalidToken, err.Error()))
	case errors.Is(err, payment.ErrTokenExpired):
		apierr.RespondError(w, reqID(r), apierr.New(apierr.PaymentExpired, err.Error()))
	case errors.Is(err, entitlement.ErrExhausted):
		apierr.RespondError(w, reqID(r), apierr.New(apierr.PaymentRequired, err.Error()))
	case errors.As(err, &schemaErr):
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ContentSchemaValidation, schemaErr.Error()))
	case errors.Is(err, ErrEmptyUpdateBody):
		apierr.RespondError(w, reqID(r), apierr.New(apierr.EmptyUpdateBody, err.Error()))
	case errors.Is(err, ErrVersionConflict):
		apierr.RespondError(w, reqID(r), apierr.New(apierr.VersionConflict, err.Error()))
	case errors.Is(err, ErrTargetVersionNotFound):
		apierr.RespondError(w, reqID(r), apierr.New(apierr.TargetVersionNotFound, err.Error()))
	case db.IsNoRows(err):
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ContentItemNotFound, "content item not found"))
	default:
		h.logger.Error(logContext, "error", err, "id", id)
		apierr.RespondError(w, reqID(r), apierr.New(apierr.Internal, "failed to process content item"))
	}
}

func parseListFilters(r *http.Request) (ListFilters, error) {
	var f ListFilters
	q := r.URL.Query()

	if v := q.Get("content_type_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, errors.New("invalid content_type_id")
		}
		f.ContentTypeID = &id
	}
	if v := q.Get("status"); v != "" {
		f.Status = v
	}
	if v := q.Get("created_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("invalid created_after")
		}
		f.CreatedAfter = &t
	}
	if v := q.Get("created_before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("invalid created_before")
		}
		f.CreatedBefore = &t
	}

	return f, nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	t := tenant.FromContext(r.Context())

	f, err := parseListFilters(r)
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, err.Error()))
		return
	}

	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	items, count, err := h.service.List(r.Context(), t.ID, f, limit, offset)
	if err != nil {
		h.logger.Error("listing content items", "error", err)
		apierr.RespondError(w, reqID(r), apierr.New(apierr.Internal, "failed to list content items"))
		return
	}

	apierr.Respond(w, http.StatusOK, map[string]any{"items": items, "total": count}, nil)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, "invalid content item id"))
		return
	}
	t := tenant.FromContext(r.Context())

	var entitlementID *uuid.UUID
	if v := r.URL.Query().Get("entitlement_id"); v != "" {
		eid, err := uuid.Parse(v)
		if err != nil {
			apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, "invalid entitlement_id"))
			return
		}
		entitlementID = &eid
	}

	resp, err := h.service.Get(r.Context(), t.ID, id, entitlementID)
	if err != nil {
		h.respondServiceError(w, r, err, "getting content item", id)
		return
	}

	apierr.Respond(w, http.StatusOK, resp, nil)
}

func (h *Handler) handleListVersions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, "invalid content item id"))
		return
	}

	versions, err := h.service.ListVersions(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err, "listing content item versions", id)
		return
	}

	apierr.Respond(w, http.StatusOK, map[string]any{"items": versions, "count": len(versions)}, nil)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	t := tenant.FromContext(r.Context())
	actor := auth.FromContext(r.Context())

	resp, err := h.service.Create(r.Context(), t.ID, actor.ActorID, credentialFromHeader(r), req)
	if err != nil {
		h.respondServiceError(w, r, err, "creating content item", uuid.Nil)
		return
	}

	if !req.DryRun && h.audit != nil {
		detail, _ := json.Marshal(map[string]any{"content_type_id": resp.ContentTypeID, "status": resp.Status})
		h.audit.LogFromRequest(r, audit.ActionCreate, "content_item", resp.ID.String(), detail)
	}

	apierr.Respond(w, http.StatusCreated, resp, nil)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, "invalid content item id"))
		return
	}

	var req UpdateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	t := tenant.FromContext(r.Context())
	actor := auth.FromContext(r.Context())

	resp, err := h.service.Update(r.Context(), t.ID, actor.ActorID, id, credentialFromHeader(r), req)
	if err != nil {
		h.respondServiceError(w, r, err, "updating content item", id)
		return
	}

	if !req.DryRun && h.audit != nil {
		detail, _ := json.Marshal(map[string]any{"version": resp.Version, "status": resp.Status})
		h.audit.LogFromRequest(r, audit.ActionUpdate, "content_item", resp.ID.String(), detail)
	}

	apierr.Respond(w, http.StatusOK, resp, nil)
}

func (h *Handler) handleRollback(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, "invalid content item id"))
		return
	}

	var req RollbackRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	t := tenant.FromContext(r.Context())

	resp, err := h.service.Rollback(r.Context(), t.ID, id, req)
	if err != nil {
		h.respondServiceError(w, r, err, "rolling back content item", id)
		return
	}

	if !req.DryRun && h.audit != nil {
		detail, _ := json.Marshal(map[string]any{"rolled_back_to": req.Version, "new_version": resp.Version})
		h.audit.LogFromRequest(r, audit.ActionRollback, "content_item", resp.ID.String(), detail)
	}

	apierr.Respond(w, http.StatusOK, resp, nil)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, "invalid content item id"))
		return
	}
	t := tenant.FromContext(r.Context())

	if err := h.service.Delete(r.Context(), t.ID, id); err != nil {
		h.respondServiceError(w, r, err, "deleting content item", id)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, audit.ActionDelete, "content_item", id.String(), nil)
	}

	apierr.Respond(w, http.StatusNoContent, nil, nil)
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	t := tenant.FromContext(r.Context())
	actor := auth.FromContext(r.Context())

	resp, err := h.service.Batch(r.Context(), t.ID, actor.ActorID, credentialFromHeader(r), req)
	if err != nil {
		h.respondServiceError(w, r, err, "running content item batch", uuid.Nil)
		return
	}

	if !req.DryRun && h.audit != nil {
		detail, _ := json.Marshal(map[string]any{"atomic": resp.Atomic, "count": len(resp.Results)})
		h.audit.LogFromRequest(r, audit.ActionCreate, "content_item_batch", uuid.New().String(), detail)
	}

	apierr.Respond(w, http.StatusOK, resp, nil)
}
