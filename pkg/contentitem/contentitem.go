// Package contentitem implements the content lifecycle engine: schema
// validated items with immutable append-only versioning, rollback, and
// batch operations.
package contentitem

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status values a content item may hold.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Item is a row from the content_items table.
type Item struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	ContentTypeID uuid.UUID
	Data          json.RawMessage
	Status        string
	Version       int32
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Version is an immutable snapshot from the content_item_versions table.
type Version struct {
	ID            uuid.UUID
	ContentItemID uuid.UUID
	Data          json.RawMessage
	Status        string
	Version       int32
	CreatedAt     time.Time
}

// Response is the JSON shape for a single item.
type Response struct {
	ID            uuid.UUID       `json:"id"`
	ContentTypeID uuid.UUID       `json:"content_type_id"`
	Data          json.RawMessage `json:"data"`
	Status        string          `json:"status"`
	Version       int32           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (i *Item) ToResponse() Response {
	return Response{
		ID:            i.ID,
		ContentTypeID: i.ContentTypeID,
		Data:          i.Data,
		Status:        i.Status,
		Version:       i.Version,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}
}

// VersionResponse is the JSON shape for a single historical snapshot.
type VersionResponse struct {
	Version   int32           `json:"version"`
	Data      json.RawMessage `json:"data"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

func (v *Version) ToResponse() VersionResponse {
	return VersionResponse{Version: v.Version, Data: v.Data, Status: v.Status, CreatedAt: v.CreatedAt}
}

// CreateRequest is the JSON body for POST /content-items.
type CreateRequest struct {
	ContentTypeID uuid.UUID       `json:"content_type_id" validate:"required"`
	Data          json.RawMessage `json:"data" validate:"required"`
	Status        string          `json:"status" validate:"omitempty,oneof=draft published archived"`
	DryRun        bool            `json:"dry_run,omitempty"`
}

// UpdateRequest is the JSON body for PUT /content-items/:id. An entirely
// empty body is rejected with EMPTY_UPDATE_BODY per spec.md §4.2.
type UpdateRequest struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Status *string         `json:"status,omitempty" validate:"omitempty,oneof=draft published archived"`
	DryRun bool            `json:"dry_run,omitempty"`
}

// IsEmpty reports whether the request carries no fields to apply.
func (r *UpdateRequest) IsEmpty() bool {
	return len(r.Data) == 0 && r.Status == nil
}

// RollbackRequest is the JSON body for POST /content-items/:id/rollback.
type RollbackRequest struct {
	Version int32 `json:"version" validate:"required,min=1"`
	DryRun  bool  `json:"dry_run,omitempty"`
}

// ListFilters holds the optional filter parameters for listing items.
type ListFilters struct {
	ContentTypeID *uuid.UUID
	Status        string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// BatchOp is one operation within a batch request.
type BatchOp struct {
	Op            string          `json:"op" validate:"required,oneof=create update delete"`
	ID            *uuid.UUID      `json:"id,omitempty"`
	ContentTypeID *uuid.UUID      `json:"content_type_id,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Status        *string         `json:"status,omitempty"`
}

// BatchRequest is the JSON body for POST /content-items/batch.
type BatchRequest struct {
	Atomic bool      `json:"atomic,omitempty"`
	Ops    []BatchOp `json:"ops" validate:"required,min=1,dive"`
	DryRun bool      `json:"dry_run,omitempty"`
}

// BatchResult reports the outcome of one batch operation.
type BatchResult struct {
	Index int       `json:"index"`
	OK    bool      `json:"ok"`
	Item  *Response `json:"item,omitempty"`
	Error string    `json:"error,omitempty"`
}

// BatchResponse is the JSON response for a batch request.
type BatchResponse struct {
	Atomic  bool          `json:"atomic"`
	Results []BatchResult `json:"results"`
}
