// Package apierr implements the uniform error envelope used by every
// protocol facade: REST handlers, the MCP facade, and webhook responders all
// translate internal errors through this package rather than writing ad-hoc
// JSON.
package apierr

import (
	"encoding/json"
	"net/http"
)

// Code is a machine-readable error code from the taxonomy below.
type Code string

const (
	// Validation family.
	EmptyUpdateBody           Code = "EMPTY_UPDATE_BODY"
	InvalidContentSchemaJSON  Code = "INVALID_CONTENT_SCHEMA_JSON"
	ContentSchemaValidation   Code = "CONTENT_SCHEMA_VALIDATION_FAILED"
	InvalidCreatedAfter       Code = "INVALID_CREATED_AFTER"
	ValidationFailed          Code = "VALIDATION_FAILED"

	// Reference family.
	ContentTypeNotFound  Code = "CONTENT_TYPE_NOT_FOUND"
	ContentItemNotFound  Code = "CONTENT_ITEM_NOT_FOUND"
	WorkflowNotFound     Code = "WORKFLOW_NOT_FOUND"
	TargetVersionNotFound Code = "TARGET_VERSION_NOT_FOUND"
	WebhookNotFound      Code = "WEBHOOK_NOT_FOUND"
	OfferNotFound        Code = "OFFER_NOT_FOUND"
	PaymentNotFound      Code = "PAYMENT_NOT_FOUND"
	APIKeyNotFound       Code = "API_KEY_NOT_FOUND"

	// Conflict family.
	ContentTypeSlugConflict Code = "CONTENT_TYPE_SLUG_CONFLICT"
	VersionConflict         Code = "VERSION_CONFLICT"
	WebhookReplay           Code = "WEBHOOK_REPLAY"

	// Authorization family.
	AuthMissingAPIKey     Code = "AUTH_MISSING_API_KEY"
	AuthInvalidAPIKey     Code = "AUTH_INVALID_API_KEY"
	AuthInsufficientScope Code = "AUTH_INSUFFICIENT_SCOPE"
	CrossTenantForbidden  Code = "CROSS_TENANT_FORBIDDEN"

	// Payment family.
	PaymentRequired    Code = "PAYMENT_REQUIRED"
	PaymentInvalidToken Code = "PAYMENT_INVALID_TOKEN"
	PaymentExpired     Code = "PAYMENT_EXPIRED"
	PaymentFailed      Code = "PAYMENT_FAILED"

	// Rate family.
	RateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"

	// Internal/dependency family.
	Internal           Code = "INTERNAL_ERROR"
	DependencyDown     Code = "DEPENDENCY_DOWN"
)

// statusForCode maps each machine code to its HTTP status. Codes absent from
// this table fall back to 500.
var statusForCode = map[Code]int{
	EmptyUpdateBody:          http.StatusBadRequest,
	InvalidContentSchemaJSON: http.StatusBadRequest,
	ContentSchemaValidation:  http.StatusUnprocessableEntity,
	InvalidCreatedAfter:      http.StatusBadRequest,
	ValidationFailed:         http.StatusBadRequest,

	ContentTypeNotFound:   http.StatusNotFound,
	ContentItemNotFound:   http.StatusNotFound,
	WorkflowNotFound:      http.StatusNotFound,
	TargetVersionNotFound: http.StatusNotFound,
	WebhookNotFound:       http.StatusNotFound,
	OfferNotFound:         http.StatusNotFound,
	PaymentNotFound:       http.StatusNotFound,
	APIKeyNotFound:        http.StatusNotFound,

	ContentTypeSlugConflict: http.StatusConflict,
	VersionConflict:         http.StatusConflict,
	WebhookReplay:           http.StatusOK, // replay is a no-op, not an error

	AuthMissingAPIKey:     http.StatusUnauthorized,
	AuthInvalidAPIKey:     http.StatusUnauthorized,
	AuthInsufficientScope: http.StatusForbidden,
	CrossTenantForbidden:  http.StatusNotFound, // existence MUST NOT leak

	PaymentRequired:     http.StatusPaymentRequired,
	PaymentInvalidToken: http.StatusPaymentRequired,
	PaymentExpired:      http.StatusPaymentRequired,
	PaymentFailed:       http.StatusPaymentRequired,

	RateLimitExceeded: http.StatusTooManyRequests,

	Internal:       http.StatusInternalServerError,
	DependencyDown: http.StatusServiceUnavailable,
}

// remediationForCode gives every code a default, overridable client hint.
var remediationForCode = map[Code]string{
	EmptyUpdateBody:          "include at least one field to update",
	InvalidContentSchemaJSON: "schema must be valid JSON Schema text",
	ContentSchemaValidation:  "data does not satisfy the content type's schema",
	InvalidCreatedAfter:      "createdAfter must be an RFC3339 timestamp",
	ContentTypeSlugConflict:  "choose a different slug for this tenant",
	VersionConflict:          "reload the item and retry the update",
	AuthMissingAPIKey:        "present a valid API key via X-API-Key or Authorization: Bearer",
	AuthInvalidAPIKey:        "the presented API key is revoked, expired, or unrecognized",
	AuthInsufficientScope:    "the API key lacks a scope required for this operation",
	CrossTenantForbidden:     "the requested resource does not exist",
	PaymentRequired:          "pay the advertised invoice and retry with the L402 credential",
	PaymentInvalidToken:      "request a fresh challenge; the presented token did not verify",
	PaymentExpired:           "the payment challenge expired; request a new one",
	PaymentFailed:            "the payment could not be settled; request a new challenge",
	RateLimitExceeded:        "retry after the window indicated by Retry-After",
}

// Error is the typed error every layer of the service returns once it knows
// enough to classify a failure. Stores and services construct these at the
// point of failure; handlers translate them into the wire envelope.
type Error struct {
	Code        Code
	Message     string
	Remediation string
	Status      int
	Meta        map[string]any
	cause       error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error for code with message, filling in the status and
// remediation defaults for that code.
func New(code Code, message string) *Error {
	return &Error{
		Code:        code,
		Message:     message,
		Remediation: remediationForCode[code],
		Status:      statusFor(code),
	}
}

// Wrap attaches code/message to an underlying cause, preserving it for
// errors.Is/As while presenting the classified error to callers.
func Wrap(code Code, message string, cause error) *Error {
	e := New(code, message)
	e.cause = cause
	return e
}

// WithMeta returns a copy of e whose Meta is replaced by meta, used for the payment
// challenge's payment_hash/payment_request/amount_sats/expires_at fields.
func (e *Error) WithMeta(meta map[string]any) *Error {
	cp := *e
	cp.Meta = meta
	return &cp
}

func statusFor(code Code) int {
	if s, ok := statusForCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Envelope is the wire shape of every error response.
type Envelope struct {
	Error       string         `json:"error"`
	Code        Code           `json:"code"`
	Remediation string         `json:"remediation"`
	Context     EnvelopeCtx    `json:"context"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// EnvelopeCtx carries the correlation id threaded through the pipeline.
type EnvelopeCtx struct {
	RequestID string `json:"requestId"`
}

// Respond writes a success envelope: {data, meta}.
func Respond(w http.ResponseWriter, status int, data any, meta map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": data,
		"meta": meta,
	})
}

// RespondError writes err as the uniform error envelope, falling back to a
// generic internal error if err is not an *Error.
func RespondError(w http.ResponseWriter, requestID string, err error) {
	apiErr, ok := err.(*Error)
	if !ok {
		apiErr = New(Internal, "an internal error occurred")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(Envelope{
		Error:       apiErr.Message,
		Code:        apiErr.Code,
		Remediation: apiErr.Remediation,
		Context:     EnvelopeCtx{RequestID: requestID},
		Meta:        apiErr.Meta,
	})
}
