// Package contenttype implements the schema-bearing content type: the
// named, versionable JSON Schema that every content item is validated
// against.
package contenttype

import (
	"time"

	"github.com/google/uuid"
)

// ContentType is a row from the content_types table.
type ContentType struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	Slug      string
	Schema    string
	BasePrice int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Response is the JSON shape returned for a content type.
type Response struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Schema    string    `json:"schema"`
	BasePrice int64     `json:"base_price"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *ContentType) ToResponse() Response {
	return Response{
		ID:        c.ID,
		Name:      c.Name,
		Slug:      c.Slug,
		Schema:    c.Schema,
		BasePrice: c.BasePrice,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// CreateRequest is the JSON body for POST /content-types.
type CreateRequest struct {
	Name      string `json:"name" validate:"required"`
	Slug      string `json:"slug"`
	Schema    string `json:"schema" validate:"required"`
	BasePrice *int64 `json:"base_price,omitempty"`
	DryRun    bool   `json:"dry_run,omitempty"`
}

// UpdateRequest is the JSON body for PUT /content-types/:id. Every field is
// optional; an absent field leaves the stored value unchanged.
type UpdateRequest struct {
	Name      *string `json:"name,omitempty"`
	Schema    *string `json:"schema,omitempty"`
	BasePrice *int64  `json:"base_price,omitempty"`
}

// Slugify derives a URL-safe slug from a display name when the caller does
// not supply one explicitly.
func Slugify(name string) string {
	out := make([]rune, 0, len(name))
	lastDash := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
			lastDash = false
		case r >= 'A' && r <= 'Z':
			out = append(out, r-'A'+'a')
			lastDash = false
		default:
			if !lastDash && len(out) > 0 {
				out = append(out, '-')
				lastDash = true
			}
		}
	}
	for len(out) > 0 && out[len(out)-1] == '-' {
		out = out[:len(out)-1]
	}
	return string(out)
}
