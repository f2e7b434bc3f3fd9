package webhook

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/apierr"
	"github.com/wisbric/contentkeep/internal/audit"
	"github.com/wisbric/contentkeep/internal/auth"
	"github.com/wisbric/contentkeep/internal/db"
	"github.com/wisbric/contentkeep/internal/httpserver"
	"github.com/wisbric/contentkeep/internal/tenant"
)

// Handler provides HTTP handlers for /webhooks CRUD.
type Handler struct {
	logger  *slog.Logger
	audit   *audit.Writer
	service *Service
}

func NewHandler(conn db.DBTX, logger *slog.Logger, audit *audit.Writer) *Handler {
	return &Handler{logger: logger, audit: audit, service: NewService(conn, logger)}
}

// Routes returns a chi.Router with all webhook routes mounted, each
// requiring auth.ScopeWebhooksManage.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireScope(auth.ScopeWebhooksManage))
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
	})
	return r
}

func reqID(r *http.Request) string { return r.Header.Get("X-Request-ID") }

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error, logContext string, id uuid.UUID) {
	switch {
	case db.IsNoRows(err), errors.Is(err, ErrNotFound):
		apierr.RespondError(w, reqID(r), apierr.New(apierr.WebhookNotFound, "webhook not found"))
	default:
		h.logger.Error(logContext, "error", err, "id", id)
		apierr.RespondError(w, reqID(r), apierr.New(apierr.Internal, "failed to process webhook"))
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	t := tenant.FromContext(r.Context())
	items, err := h.service.List(r.Context(), t.ID)
	if err != nil {
		h.respondError(w, r, err, "listing webhooks", uuid.Nil)
		return
	}
	apierr.Respond(w, http.StatusOK, map[string]any{"webhooks": items, "count": len(items)}, nil)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, "invalid webhook id"))
		return
	}
	t := tenant.FromContext(r.Context())

	resp, err := h.service.Get(r.Context(), t.ID, id)
	if err != nil {
		h.respondError(w, r, err, "getting webhook", id)
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
		h.respondError(w, r, err, "creating webhook", uuid.Nil)
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]any{"url": resp.URL, "event_types": resp.EventTypes})
		h.audit.LogFromRequest(r, audit.ActionCreate, "webhook", resp.ID.String(), detail)
	}

	apierr.Respond(w, http.StatusCreated, resp, nil)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, "invalid webhook id"))
		return
	}
	var req UpdateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	t := tenant.FromContext(r.Context())

	resp, err := h.service.Update(r.Context(), t.ID, id, req)
	if err != nil {
		h.respondError(w, r, err, "updating webhook", id)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, audit.ActionUpdate, "webhook", id.String(), nil)
	}

	apierr.Respond(w, http.StatusOK, resp, nil)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, "invalid webhook id"))
		return
	}
	t := tenant.FromContext(r.Context())

	if err := h.service.Delete(r.Context(), t.ID, id); err != nil {
		h.respondError(w, r, err, "deleting webhook", id)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, audit.ActionDelete, "webhook", id.String(), nil)
	}

	w.WriteHeader(http.StatusNoContent)
}
