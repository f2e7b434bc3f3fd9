package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/auth"
	"github.com/wisbric/contentkeep/internal/db"
	"github.com/wisbric/contentkeep/internal/tenant"
	"github.com/wisbric/contentkeep/pkg/contentitem"
	"github.com/wisbric/contentkeep/pkg/entitlement"
	"github.com/wisbric/contentkeep/pkg/offer"
	"github.com/wisbric/contentkeep/pkg/payment"
)

const maxRequestBody = 1 << 20

// Handler serves a single MCP JSON-RPC 2.0 endpoint, mounted under the same
// authenticated /api/v1 sub-router the REST handlers use, so tenant and
// principal are already on the request context by the time a tool call
// reaches this package.
type Handler struct {
	contentItems *contentitem.Service
	offers       *offer.Service
	entitlements *entitlement.Service
	logger       *slog.Logger
	tools        map[string]toolDefinition
}

func NewHandler(contentItems *contentitem.Service, offers *offer.Service, entitlements *entitlement.Service, logger *slog.Logger) *Handler {
	h := &Handler{contentItems: contentItems, offers: offers, entitlements: entitlements, logger: logger}
	h.tools = h.buildToolRegistry()
	return h
}

func (h *Handler) buildToolRegistry() map[string]toolDefinition {
	defs := []toolDefinition{
		{
			Name:        "content.create",
			Description: "Create a content item against a content type's schema.",
			scope:       auth.ScopeContentWrite,
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"content_type_id", "data"},
				"properties": map[string]any{
					"content_type_id": map[string]any{"type": "string"},
					"data":            map[string]any{"type": "object"},
					"status":          map[string]any{"type": "string"},
					"dry_run":         map[string]any{"type": "boolean"},
					"credential":      map[string]any{"type": "string", "description": "L402 token:preimage, presented after paying a prior challenge"},
				},
			},
		},
		{
			Name:        "content.get",
			Description: "Fetch a content item by id. Pass entitlement_id to authorize the read against a purchased grant and consume its quota.",
			scope:       auth.ScopeContentRead,
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"id"},
				"properties": map[string]any{
					"id":             map[string]any{"type": "string"},
					"entitlement_id": map[string]any{"type": "string"},
				},
			},
		},
		{
			Name:        "content.update",
			Description: "Patch a content item, creating a new version.",
			scope:       auth.ScopeContentWrite,
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"id"},
				"properties": map[string]any{
					"id":         map[string]any{"type": "string"},
					"data":       map[string]any{"type": "object"},
					"status":     map[string]any{"type": "string"},
					"dry_run":    map[string]any{"type": "boolean"},
					"credential": map[string]any{"type": "string", "description": "L402 token:preimage, presented after paying a prior challenge"},
				},
			},
		},
		{
			Name:        "content.rollback",
			Description: "Roll a content item back to a prior version, recorded as a new head version.",
			scope:       auth.ScopeContentWrite,
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"id", "version"},
				"properties": map[string]any{
					"id":      map[string]any{"type": "string"},
					"version": map[string]any{"type": "integer"},
					"dry_run": map[string]any{"type": "boolean"},
				},
			},
		},
		{
			Name:        "offer.purchase",
			Description: "Issue an L402 purchase challenge for an offer. Settlement happens out of band; presenting the resulting credential is not part of this tool.",
			scope:       auth.ScopeOffersPurchase,
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"offer_id", "agent_profile_id"},
				"properties": map[string]any{
					"offer_id":         map[string]any{"type": "string"},
					"agent_profile_id": map[string]any{"type": "string"},
				},
			},
		},
	}

	reg := make(map[string]toolDefinition, len(defs))
	for _, d := range defs {
		reg[d.Name] = d
	}
	return reg
}

// Routes mounts the single MCP endpoint. The authenticated parent router
// already applied request id, logging, metrics, rate limit, idempotency,
// and principal/tenant resolution; this handler adds nothing but JSON-RPC
// framing and dispatch.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleRPC)
	return r
}

func (h *Handler) handleRPC(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		h.write(w, writeError(nil, codeInternalError, "failed to read request body", nil))
		return
	}
	if len(raw) > maxRequestBody {
		h.write(w, writeError(nil, codeInvalidRequest, "request body too large", nil))
		return
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		h.write(w, writeError(nil, codeInvalidRequest, "batch requests are not supported", nil))
		return
	}

	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		h.write(w, writeError(nil, codeParseError, "invalid json body", nil))
		return
	}
	if req.JSONRPC != "2.0" {
		h.write(w, writeError(idOrNil(req.ID), codeInvalidRequest, `jsonrpc must be "2.0"`, nil))
		return
	}

	switch req.Method {
	case "initialize":
		h.write(w, writeResult(idOrNil(req.ID), map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities":    map[string]any{"tools": map[string]any{"listChanged": false}},
			"serverInfo":      map[string]any{"name": "contentkeep", "version": "1.0"},
		}))
	case "tools/list":
		h.write(w, writeResult(idOrNil(req.ID), map[string]any{"tools": h.toolList()}))
	case "tools/call":
		h.handleToolsCall(w, r, req)
	default:
		h.write(w, writeError(idOrNil(req.ID), codeMethodNotFound, "method not found", nil))
	}
}

func (h *Handler) toolList() []toolDefinition {
	out := make([]toolDefinition, 0, len(h.tools))
	for _, d := range h.tools {
		out = append(out, d)
	}
	return out
}

func (h *Handler) handleToolsCall(w http.ResponseWriter, r *http.Request, req request) {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.write(w, writeError(idOrNil(req.ID), codeInvalidParams, "invalid tools/call params", nil))
		return
	}

	def, ok := h.tools[params.Name]
	if !ok {
		h.write(w, writeError(idOrNil(req.ID), codeMethodNotFound, "unknown tool: "+params.Name, nil))
		return
	}

	principal := auth.FromContext(r.Context())
	if principal == nil || !principal.HasScope(def.scope) {
		h.write(w, writeError(idOrNil(req.ID), codeInvalidRequest, "insufficient scope for tool "+params.Name, nil))
		return
	}

	t := tenant.FromContext(r.Context())

	result, rpcErr := h.dispatch(r.Context(), t.ID, principal, params.Name, params.Arguments)
	if rpcErr != nil {
		h.write(w, response{JSONRPC: "2.0", ID: idOrNil(req.ID), Error: rpcErr})
		return
	}

	h.write(w, writeResult(idOrNil(req.ID), map[string]any{
		"content": []map[string]any{{"type": "json", "json": result}},
	}))
}

func (h *Handler) dispatch(ctx context.Context, tenantID uuid.UUID, principal *auth.Principal, name string, args json.RawMessage) (any, *rpcError) {
	switch name {
	case "content.create":
		return h.toolContentCreate(ctx, tenantID, principal.ActorID, args)
	case "content.get":
		return h.toolContentGet(ctx, tenantID, args)
	case "content.update":
		return h.toolContentUpdate(ctx, tenantID, principal.ActorID, args)
	case "content.rollback":
		return h.toolContentRollback(ctx, tenantID, args)
	case "offer.purchase":
		return h.toolOfferPurchase(ctx, tenantID, principal.ActorID, args)
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: "unknown tool: " + name}
	}
}

type contentCreateArgs struct {
	ContentTypeID uuid.UUID       `json:"content_type_id"`
	Data          json.RawMessage `json:"data"`
	Status        string          `json:"status"`
	DryRun        bool            `json:"dry_run"`
	Credential    string          `json:"credential"`
}

// toolContentCreate mirrors content.create's REST counterpart: a priced
// content type with no (or no longer valid) credential returns the L402
// challenge as structured error data rather than a body, since MCP has no
// native 402.
func (h *Handler) toolContentCreate(ctx context.Context, tenantID, actorID uuid.UUID, raw json.RawMessage) (any, *rpcError) {
	var a contentCreateArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, invalidParams(err)
	}
	resp, err := h.contentItems.Create(ctx, tenantID, actorID, a.Credential, contentitem.CreateRequest{
		ContentTypeID: a.ContentTypeID,
		Data:          a.Data,
		Status:        a.Status,
		DryRun:        a.DryRun,
	})
	if err != nil {
		return nil, classifyError(err)
	}
	return resp, nil
}

type contentGetArgs struct {
	ID            uuid.UUID  `json:"id"`
	EntitlementID *uuid.UUID `json:"entitlement_id"`
}

func (h *Handler) toolContentGet(ctx context.Context, tenantID uuid.UUID, raw json.RawMessage) (any, *rpcError) {
	var a contentGetArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, invalidParams(err)
	}
	resp, err := h.contentItems.Get(ctx, tenantID, a.ID, a.EntitlementID)
	if err != nil {
		return nil, classifyError(err)
	}
	return resp, nil
}

type contentUpdateArgs struct {
	ID         uuid.UUID       `json:"id"`
	Data       json.RawMessage `json:"data"`
	Status     *string         `json:"status"`
	DryRun     bool            `json:"dry_run"`
	Credential string          `json:"credential"`
}

func (h *Handler) toolContentUpdate(ctx context.Context, tenantID, actorID uuid.UUID, raw json.RawMessage) (any, *rpcError) {
	var a contentUpdateArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, invalidParams(err)
	}
	resp, err := h.contentItems.Update(ctx, tenantID, actorID, a.ID, a.Credential, contentitem.UpdateRequest{
		Data:   a.Data,
		Status: a.Status,
		DryRun: a.DryRun,
	})
	if err != nil {
		return nil, classifyError(err)
	}
	return resp, nil
}

type contentRollbackArgs struct {
	ID      uuid.UUID `json:"id"`
	Version int32     `json:"version"`
	DryRun  bool      `json:"dry_run"`
}

func (h *Handler) toolContentRollback(ctx context.Context, tenantID uuid.UUID, raw json.RawMessage) (any, *rpcError) {
	var a contentRollbackArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, invalidParams(err)
	}
	resp, err := h.contentItems.Rollback(ctx, tenantID, a.ID, contentitem.RollbackRequest{
		Version: a.Version,
		DryRun:  a.DryRun,
	})
	if err != nil {
		return nil, classifyError(err)
	}
	return resp, nil
}

type offerPurchaseArgs struct {
	OfferID        uuid.UUID `json:"offer_id"`
	AgentProfileID string    `json:"agent_profile_id"`
}

// toolOfferPurchase issues the same L402 challenge the REST purchase
// endpoint does. MCP has no 402 status code to piggyback on, so the
// challenge travels as structured error data instead of a result — a tool
// caller still needs to pay and then confirm over REST (or a future
// offer.purchase.confirm tool); this tool's job ends at challenge issuance.
func (h *Handler) toolOfferPurchase(ctx context.Context, tenantID, actorID uuid.UUID, raw json.RawMessage) (any, *rpcError) {
	var a offerPurchaseArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, invalidParams(err)
	}

	resp, err := h.offers.Purchase(ctx, tenantID, actorID, a.OfferID, offer.PurchaseRequest{AgentProfileID: a.AgentProfileID})
	if err != nil {
		return nil, classifyError(err)
	}

	return nil, &rpcError{
		Code:    codePaymentRequired,
		Message: "pay the advertised invoice to activate this offer",
		Data: map[string]any{
			"offer_id":        resp.OfferID,
			"entitlement_id":  resp.EntitlementID,
			"payment_hash":    resp.PaymentHash,
			"payment_request": resp.PaymentRequest,
			"amount_sats":     resp.AmountSats,
			"expires_at":      resp.ExpiresAt,
		},
	}
}

func invalidParams(err error) *rpcError {
	return &rpcError{Code: codeInvalidParams, Message: "invalid arguments: " + err.Error()}
}

// classifyError maps a service error to a JSON-RPC error without the HTTP
// status vocabulary apierr uses; the message is preserved as-is since MCP
// clients have no use for the REST remediation/status fields. A content-item
// payment gate failure travels the same way offer.purchase's challenge
// does: as structured error data under codePaymentRequired, since MCP has
// no native 402.
func classifyError(err error) *rpcError {
	if err == nil {
		return nil
	}
	var schemaErr *contentitem.SchemaValidationError
	var paymentErr *contentitem.ErrPaymentRequired
	switch {
	case errors.As(err, &paymentErr):
		return &rpcError{
			Code:    codePaymentRequired,
			Message: "pay the advertised invoice to write this content type",
			Data: map[string]any{
				"payment_hash":    paymentErr.PaymentHash,
				"payment_request": paymentErr.PaymentRequest,
				"amount_sats":     paymentErr.AmountSats,
				"expires_at":      paymentErr.ExpiresAt,
			},
		}
	case errors.Is(err, payment.ErrStillPending):
		return &rpcError{Code: codePaymentRequired, Message: "payment not yet settled"}
	case errors.Is(err, payment.ErrCaveatMismatch), errors.Is(err, payment.ErrInvalidToken), errors.Is(err, payment.ErrTokenExpired):
		return &rpcError{Code: codeInvalidRequest, Message: err.Error()}
	case errors.Is(err, entitlement.ErrExhausted):
		return &rpcError{Code: codePaymentRequired, Message: err.Error()}
	case db.IsNoRows(err), errors.Is(err, offer.ErrNotFound):
		return &rpcError{Code: codeInvalidParams, Message: "not found"}
	case errors.Is(err, contentitem.ErrVersionConflict), errors.Is(err, contentitem.ErrTargetVersionNotFound),
		errors.Is(err, contentitem.ErrEmptyUpdateBody):
		return &rpcError{Code: codeInvalidRequest, Message: err.Error()}
	case errors.As(err, &schemaErr):
		return &rpcError{Code: codeInvalidParams, Message: err.Error()}
	default:
		return &rpcError{Code: codeInternalError, Message: "an internal error occurred"}
	}
}

func (h *Handler) write(w http.ResponseWriter, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("encoding mcp response", "error", err)
	}
}

func idOrNil(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
