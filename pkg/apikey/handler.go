package apikey

import (
	"encoding/json"
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

// Handler provides HTTP handlers for /auth/keys.
type Handler struct {
	logger  *slog.Logger
	audit   *audit.Writer
	service *Service
}

// NewHandler creates a Handler backed by the given connection.
func NewHandler(conn db.DBTX, logger *slog.Logger, audit *audit.Writer) *Handler {
	return &Handler{
		logger:  logger,
		audit:   audit,
		service: NewService(conn, logger),
	}
}

// Routes returns a chi.Router with all key routes mounted. Every route
// requires auth.ScopeKeysManage.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireScope(auth.ScopeKeysManage))
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Post("/{id}/rotate", h.handleRotate)
	r.Post("/{id}/revoke", h.handleRevoke)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	p := auth.FromContext(r.Context())
	t := tenant.FromContext(r.Context())

	resp, err := h.service.Create(r.Context(), t.ID, p.ActorID, req)
	if err != nil {
		h.logger.Error("creating api key", "error", err)
		apierr.RespondError(w, requestID(r), apierr.New(apierr.Internal, "failed to create API key"))
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]any{"name": resp.Name, "scopes": resp.Scopes})
		h.audit.LogFromRequest(r, audit.ActionCreate, "api_key", resp.ID.String(), detail)
	}

	apierr.Respond(w, http.StatusCreated, resp, nil)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	t := tenant.FromContext(r.Context())

	items, err := h.service.List(r.Context(), t.ID)
	if err != nil {
		h.logger.Error("listing api keys", "error", err)
		apierr.RespondError(w, requestID(r), apierr.New(apierr.Internal, "failed to list API keys"))
		return
	}

	apierr.Respond(w, http.StatusOK, map[string]any{"keys": items, "count": len(items)}, nil)
}

func (h *Handler) handleRotate(w http.ResponseWriter, r *http.Request) {
	keyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.RespondError(w, requestID(r), apierr.New(apierr.ValidationFailed, "invalid key id"))
		return
	}
	t := tenant.FromContext(r.Context())

	resp, err := h.service.Rotate(r.Context(), t.ID, keyID)
	if err != nil {
		if db.IsNoRows(err) {
			apierr.RespondError(w, requestID(r), apierr.New(apierr.APIKeyNotFound, "api key not found or already revoked"))
			return
		}
		h.logger.Error("rotating api key", "error", err, "id", keyID)
		apierr.RespondError(w, requestID(r), apierr.New(apierr.Internal, "failed to rotate API key"))
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, audit.ActionUpdate, "api_key", keyID.String(), []byte(`{"rotated":true}`))
	}

	apierr.Respond(w, http.StatusOK, resp, nil)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	keyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.RespondError(w, requestID(r), apierr.New(apierr.ValidationFailed, "invalid key id"))
		return
	}
	t := tenant.FromContext(r.Context())

	resp, err := h.service.Revoke(r.Context(), t.ID, keyID)
	if err != nil {
		if db.IsNoRows(err) {
			apierr.RespondError(w, requestID(r), apierr.New(apierr.APIKeyNotFound, "api key not found or already revoked"))
			return
		}
		h.logger.Error("revoking api key", "error", err, "id", keyID)
		apierr.RespondError(w, requestID(r), apierr.New(apierr.Internal, "failed to revoke API key"))
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, audit.ActionUpdate, "api_key", keyID.String(), []byte(`{"revoked":true}`))
	}

	apierr.Respond(w, http.StatusOK, resp, nil)
}

func requestID(r *http.Request) string {
	return r.Header.Get("X-Request-ID")
}
