package offer

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/apierr"
	"github.com/wisbric/contentkeep/internal/audit"
	"github.com/wisbric/contentkeep/internal/auth"
	"github.com/wisbric/contentkeep/internal/db"
	"github.com/wisbric/contentkeep/internal/httpserver"
	"github.com/wisbric/contentkeep/internal/tenant"
	"github.com/wisbric/contentkeep/pkg/payment"
)

// Handler provides HTTP handlers for /offers, including the two-step L402
// purchase flow.
type Handler struct {
	logger  *slog.Logger
	audit   *audit.Writer
	service *Service
}

func NewHandler(service *Service, logger *slog.Logger, audit *audit.Writer) *Handler {
	return &Handler{logger: logger, audit: audit, service: service}
}

// Routes returns a chi.Router with every /offers route mounted. Purchase
// and its confirm step sit behind offers:purchase rather than
// content:write: an agent buying access needs neither content authoring
// scope nor offer-management scope.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(auth.RequireScope(auth.ScopeContentRead)).Get("/", h.handleList)
	r.With(auth.RequireScope(auth.ScopeContentWrite)).Post("/", h.handleCreate)

	r.Route("/{id}", func(r chi.Router) {
		r.With(auth.RequireScope(auth.ScopeContentRead)).Get("/", h.handleGet)
		r.With(auth.RequireScope(auth.ScopeContentWrite)).Put("/", h.handleUpdate)
		r.With(auth.RequireScope(auth.ScopeContentWrite)).Delete("/", h.handleDelete)
		r.With(auth.RequireScope(auth.ScopeOffersPurchase)).Post("/purchase", h.handlePurchase)
		r.With(auth.RequireScope(auth.ScopeOffersPurchase)).Post("/purchase/confirm", h.handlePurchaseConfirm)
	})

	return r
}

func reqID(r *http.Request) string { return r.Header.Get("X-Request-ID") }

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, logContext string, id uuid.UUID) {
	switch {
	case errors.Is(err, ErrNotFound), db.IsNoRows(err):
		apierr.RespondError(w, reqID(r), apierr.New(apierr.OfferNotFound, "offer not found"))
	default:
		h.logger.Error(logContext, "error", err, "id", id)
		apierr.RespondError(w, reqID(r), apierr.New(apierr.Internal, "failed to process offer"))
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	t := tenant.FromContext(r.Context())

	limit, offset := 50, 0
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

	items, err := h.service.List(r.Context(), t.ID, limit, offset)
	if err != nil {
		h.logger.Error("listing offers", "error", err)
		apierr.RespondError(w, reqID(r), apierr.New(apierr.Internal, "failed to list offers"))
		return
	}

	apierr.Respond(w, http.StatusOK, map[string]any{"items": items, "count": len(items)}, nil)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, "invalid offer id"))
		return
	}
	t := tenant.FromContext(r.Context())

	resp, err := h.service.Get(r.Context(), t.ID, id)
	if err != nil {
		h.respondServiceError(w, r, err, "getting offer", id)
		return
	}

	apierr.Respond(w, http.StatusOK, resp, nil)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	t := tenant.FromContext(r.Context())

	resp, err := h.service.Create(r.Context(), t.ID, req)
	if err != nil {
		h.respondServiceError(w, r, err, "creating offer", uuid.Nil)
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]any{"price_sats": resp.PriceSats, "policy_id": resp.PolicyID})
		h.audit.LogFromRequest(r, audit.ActionCreate, "offer", resp.ID.String(), detail)
	}

	apierr.Respond(w, http.StatusCreated, resp, nil)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, "invalid offer id"))
		return
	}

	var req UpdateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.Name == nil && req.PriceSats == nil && req.PolicyID == nil &&
		req.DefaultRemainingReads == nil && req.DefaultTTLSeconds == nil && req.Active == nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.EmptyUpdateBody, "update body is empty"))
		return
	}
	t := tenant.FromContext(r.Context())

	resp, err := h.service.Update(r.Context(), t.ID, id, req)
	if err != nil {
		h.respondServiceError(w, r, err, "updating offer", id)
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]any{"price_sats": resp.PriceSats, "active": resp.Active})
		h.audit.LogFromRequest(r, audit.ActionUpdate, "offer", resp.ID.String(), detail)
	}

	apierr.Respond(w, http.StatusOK, resp, nil)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, "invalid offer id"))
		return
	}
	t := tenant.FromContext(r.Context())

	if err := h.service.Delete(r.Context(), t.ID, id); err != nil {
		h.respondServiceError(w, r, err, "deleting offer", id)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, audit.ActionDelete, "offer", id.String(), nil)
	}

	apierr.Respond(w, http.StatusNoContent, nil, nil)
}

// handlePurchase issues an L402 challenge and a pending_payment entitlement,
// always answering 402 with the challenge in both WWW-Authenticate and the
// error envelope's meta, matching the shape every other priced resource uses.
func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, "invalid offer id"))
		return
	}

	var req PurchaseRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	t := tenant.FromContext(r.Context())
	actor := auth.FromContext(r.Context())

	resp, err := h.service.Purchase(r.Context(), t.ID, actor.ActorID, id, req)
	if err != nil {
		h.respondServiceError(w, r, err, "purchasing offer", id)
		return
	}

	w.Header().Set("WWW-Authenticate",
		`L402 token="`+resp.Token+`", invoice="`+resp.PaymentRequest+`"`)
	apierr.RespondError(w, reqID(r), apierr.New(apierr.PaymentRequired, "pay the advertised invoice to activate this offer").
		WithMeta(map[string]any{
			"offer_id":       resp.OfferID,
			"entitlement_id": resp.EntitlementID,
			"payment_hash":   resp.PaymentHash,
			"payment_request": resp.PaymentRequest,
			"amount_sats":    resp.AmountSats,
			"expires_at":     resp.ExpiresAt,
		}))
}

// handlePurchaseConfirm presents the "L402 token:preimage" credential via
// the Authorization header and returns the now-active entitlement.
func (h *Handler) handlePurchaseConfirm(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, "invalid offer id"))
		return
	}

	credential, ok := credentialFromHeader(r)
	if !ok {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.PaymentInvalidToken, "missing or malformed Authorization: L402 token:preimage header"))
		return
	}
	t := tenant.FromContext(r.Context())

	ent, err := h.service.Confirm(r.Context(), t.ID, id, credential)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrStillPending):
			apierr.RespondError(w, reqID(r), apierr.New(apierr.PaymentRequired, "payment not yet settled"))
		case errors.Is(err, payment.ErrCaveatMismatch), errors.Is(err, payment.ErrInvalidToken):
			apierr.RespondError(w, reqID(r), apierr.New(apierr.PaymentInvalidToken, err.Error()))
		case errors.Is(err, payment.ErrTokenExpired):
			apierr.RespondError(w, reqID(r), apierr.New(apierr.PaymentExpired, err.Error()))
		default:
			h.respondServiceError(w, r, err, "confirming offer purchase", id)
		}
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]any{"offer_id": id, "status": ent.Status})
		h.audit.LogFromRequest(r, audit.ActionCreate, "entitlement", ent.ID.String(), detail)
	}

	apierr.Respond(w, http.StatusOK, ent, nil)
}

// credentialFromHeader extracts the "token:preimage" pair from an
// "Authorization: L402 token:preimage" header.
func credentialFromHeader(r *http.Request) (string, bool) {
	v := r.Header.Get("Authorization")
	const prefix = "L402 "
	if !strings.HasPrefix(v, prefix) {
		return "", false
	}
	credential := strings.TrimSpace(strings.TrimPrefix(v, prefix))
	if credential == "" {
		return "", false
	}
	return credential, true
}
