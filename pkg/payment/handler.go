package payment

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/apierr"
	"github.com/wisbric/contentkeep/internal/auth"
	"github.com/wisbric/contentkeep/internal/tenant"
)

// Handler provides HTTP handlers for /payments and the provider webhook
// callback endpoint.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	webhookSecrets map[string]string
}

func NewHandler(service *Service, webhookSecrets map[string]string, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service, webhookSecrets: webhookSecrets}
}

// Routes returns a chi.Router with /payments mounted. Call
// WebhookRoutes separately, as that endpoint is unauthenticated (provider
// callbacks carry no API key) and must not sit behind the authenticated
// /api/v1 sub-router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(auth.RequireScope(auth.ScopePaymentsRead)).Get("/", h.handleList)
	r.With(auth.RequireScope(auth.ScopePaymentsRead)).Get("/{id}", h.handleGet)
	return r
}

// WebhookRoutes returns a chi.Router for /payments/webhooks/:provider,
// mounted outside authentication.
func (h *Handler) WebhookRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{provider}", h.handleWebhook)
	return r
}

func reqID(r *http.Request) string { return r.Header.Get("X-Request-ID") }

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
		h.logger.Error("listing payments", "error", err)
		apierr.RespondError(w, reqID(r), apierr.New(apierr.Internal, "failed to list payments"))
		return
	}

	apierr.Respond(w, http.StatusOK, map[string]any{"items": items, "count": len(items)}, nil)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, "invalid payment id"))
		return
	}
	t := tenant.FromContext(r.Context())

	resp, err := h.service.Get(r.Context(), t.ID, id)
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.PaymentNotFound, "payment not found"))
		return
	}

	apierr.Respond(w, http.StatusOK, resp, nil)
}

// handleWebhook verifies the provider's HMAC signature, deduplicates by
// eventId, and applies the settlement transition.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	secret, ok := h.webhookSecrets[providerName]
	if !ok || secret == "" {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.Internal, "no webhook secret configured for this provider"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, "failed to read webhook body"))
		return
	}

	signature := r.Header.Get("X-Webhook-Signature")
	if !VerifyWebhookSignature(secret, string(body), signature) {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.AuthInvalidAPIKey, "invalid webhook signature"))
		return
	}

	event, err := DecodeWebhookEvent(body)
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, err.Error()))
		return
	}

	resp, err := h.service.ApplyWebhookEvent(r.Context(), providerName, event)
	if err != nil {
		h.logger.Error("applying payment webhook event", "error", err, "payment_hash", event.PaymentHash)
		apierr.RespondError(w, reqID(r), apierr.New(apierr.Internal, "failed to apply webhook event"))
		return
	}

	apierr.Respond(w, http.StatusOK, resp.ToResponse(), nil)
}
