package contenttype

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

// Handler provides HTTP handlers for /content-types.
type Handler struct {
	logger  *slog.Logger
	audit   *audit.Writer
	service *Service
}

func NewHandler(conn db.DBTX, cache *SchemaCache, logger *slog.Logger, audit *audit.Writer) *Handler {
	return &Handler{
		logger:  logger,
		audit:   audit,
		service: NewService(conn, cache, logger),
	}
}

// Routes returns a chi.Router with every /content-types route mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(auth.RequireScope(auth.ScopeContentRead)).Get("/", h.handleList)
	r.With(auth.RequireScope(auth.ScopeContentRead)).Get("/{id}", h.handleGet)
	r.With(auth.RequireScope(auth.ScopeContentWrite)).Post("/", h.handleCreate)
	r.With(auth.RequireScope(auth.ScopeContentWrite)).Put("/{id}", h.handleUpdate)
	r.With(auth.RequireScope(auth.ScopeContentWrite)).Delete("/{id}", h.handleDelete)
	return r
}

func reqID(r *http.Request) string { return r.Header.Get("X-Request-ID") }

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	t := tenant.FromContext(r.Context())

	items, err := h.service.List(r.Context(), t.ID)
	if err != nil {
		h.logger.Error("listing content types", "error", err)
		apierr.RespondError(w, reqID(r), apierr.New(apierr.Internal, "failed to list content types"))
		return
	}

	apierr.Respond(w, http.StatusOK, map[string]any{"items": items, "count": len(items)}, nil)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, "invalid content type id"))
		return
	}
	t := tenant.FromContext(r.Context())

	resp, err := h.service.Get(r.Context(), t.ID, id)
	if err != nil {
		if db.IsNoRows(err) {
			apierr.RespondError(w, reqID(r), apierr.New(apierr.ContentTypeNotFound, "content type not found"))
			return
		}
		h.logger.Error("getting content type", "error", err, "id", id)
		apierr.RespondError(w, reqID(r), apierr.New(apierr.Internal, "failed to get content type"))
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
		switch {
		case errors.Is(err, ErrInvalidSchemaJSON):
			apierr.RespondError(w, reqID(r), apierr.New(apierr.InvalidContentSchemaJSON, err.Error()))
		case db.IsUniqueViolation(err, "content_types_tenant_id_slug_key"):
			apierr.RespondError(w, reqID(r), apierr.New(apierr.ContentTypeSlugConflict, "a content type with this slug already exists"))
		default:
			h.logger.Error("creating content type", "error", err)
			apierr.RespondError(w, reqID(r), apierr.New(apierr.Internal, "failed to create content type"))
		}
		return
	}

	if !req.DryRun && h.audit != nil {
		detail, _ := json.Marshal(map[string]string{"name": resp.Name, "slug": resp.Slug})
		h.audit.LogFromRequest(r, audit.ActionCreate, "content_type", resp.ID.String(), detail)
	}

	apierr.Respond(w, http.StatusCreated, resp, nil)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, "invalid content type id"))
		return
	}

	var req UpdateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	t := tenant.FromContext(r.Context())

	resp, err := h.service.Update(r.Context(), t.ID, id, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSchemaJSON):
			apierr.RespondError(w, reqID(r), apierr.New(apierr.InvalidContentSchemaJSON, err.Error()))
		case db.IsNoRows(err):
			apierr.RespondError(w, reqID(r), apierr.New(apierr.ContentTypeNotFound, "content type not found"))
		default:
			h.logger.Error("updating content type", "error", err, "id", id)
			apierr.RespondError(w, reqID(r), apierr.New(apierr.Internal, "failed to update content type"))
		}
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]string{"name": resp.Name})
		h.audit.LogFromRequest(r, audit.ActionUpdate, "content_type", resp.ID.String(), detail)
	}

	apierr.Respond(w, http.StatusOK, resp, nil)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.RespondError(w, reqID(r), apierr.New(apierr.ValidationFailed, "invalid content type id"))
		return
	}
	t := tenant.FromContext(r.Context())

	if err := h.service.Delete(r.Context(), t.ID, id); err != nil {
		if db.IsNoRows(err) {
			apierr.RespondError(w, reqID(r), apierr.New(apierr.ContentTypeNotFound, "content type not found"))
			return
		}
		h.logger.Error("deleting content type", "error", err, "id", id)
		apierr.RespondError(w, reqID(r), apierr.New(apierr.Internal, "failed to delete content type"))
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, audit.ActionDelete, "content_type", id.String(), nil)
	}

	apierr.Respond(w, http.StatusNoContent, nil, nil)
}
