package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/apierr"
	"github.com/wisbric/contentkeep/internal/db"
	"github.com/wisbric/contentkeep/internal/httpserver"
	"github.com/wisbric/contentkeep/internal/tenant"
)

// LogEntry is the wire shape of one returned audit log row.
type LogEntry struct {
	ID         uuid.UUID       `json:"id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	ActorID    uuid.UUID       `json:"actorId"`
	RequestID  string          `json:"requestId"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Handler serves the read-only /audit-logs surface.
type Handler struct {
	db     db.DBTX
	logger *slog.Logger
}

// NewHandler creates an audit log Handler.
func NewHandler(conn db.DBTX, logger *slog.Logger) *Handler {
	return &Handler{db: conn, logger: logger}
}

// Routes returns a chi.Router with audit log routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

// handleList serves a cursor-paginated, newest-first listing of the calling
// tenant's audit log, per spec.md §6.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	requestID := w.Header().Get("X-Request-ID")
	ti := tenant.FromContext(r.Context())

	params, err := httpserver.ParseCursorParams(r)
	if err != nil {
		apierr.RespondError(w, requestID, apierr.New(apierr.ValidationFailed, err.Error()))
		return
	}

	rows, err := h.listPage(r, ti.ID, params)
	if err != nil {
		h.logger.Error("listing audit log", "error", err)
		apierr.RespondError(w, requestID, apierr.New(apierr.DependencyDown, "failed to list audit log"))
		return
	}

	page := httpserver.NewCursorPage(rows, params.Limit, func(e LogEntry) httpserver.Cursor {
		return httpserver.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	apierr.Respond(w, http.StatusOK, page, nil)
}

func (h *Handler) listPage(r *http.Request, tenantID uuid.UUID, params httpserver.CursorParams) ([]LogEntry, error) {
	query := `
		SELECT id, action, entity_type, entity_id, detail, actor_id, request_id, created_at
		FROM audit_log
		WHERE tenant_id = $1`
	args := []any{tenantID}

	if params.After != nil {
		query += ` AND (created_at, id) < ($2, $3)`
		args = append(args, params.After.CreatedAt, params.After.ID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, params.Limit+1)

	rows, err := h.db.Query(r.Context(), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &e.EntityID, &e.Detail, &e.ActorID, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
