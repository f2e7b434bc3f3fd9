package contenttype

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/db"
)

// Service encapsulates content type business logic.
type Service struct {
	store  *Store
	cache  *SchemaCache
	logger *slog.Logger
}

func NewService(conn db.DBTX, cache *SchemaCache, logger *slog.Logger) *Service {
	return &Service{store: NewStore(conn), cache: cache, logger: logger}
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]Response, error) {
	rows, err := s.store.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing content types: %w", err)
	}
	items := make([]Response, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].ToResponse())
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (Response, error) {
	row, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return Response{}, fmt.Errorf("getting content type: %w", err)
	}
	return row.ToResponse(), nil
}

// Create parses and compiles the schema, then persists the type. A dry run
// validates the schema but performs no write and returns a zero-value id.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, req CreateRequest) (Response, error) {
	if _, err := CompileSchema(req.Schema); err != nil {
		return Response{}, err
	}

	slug := req.Slug
	if slug == "" {
		slug = Slugify(req.Name)
	}

	basePrice := int64(0)
	if req.BasePrice != nil {
		basePrice = *req.BasePrice
	}

	if req.DryRun {
		return Response{
			ID:        uuid.Nil,
			Name:      req.Name,
			Slug:      slug,
			Schema:    req.Schema,
			BasePrice: basePrice,
		}, nil
	}

	row, err := s.store.Create(ctx, CreateParams{
		TenantID:  tenantID,
		Name:      req.Name,
		Slug:      slug,
		Schema:    req.Schema,
		BasePrice: basePrice,
	})
	if err != nil {
		return Response{}, fmt.Errorf("creating content type: %w", err)
	}
	return row.ToResponse(), nil
}

// Update applies a partial patch. Existing content items are re-validated
// lazily against the new schema on their next write, not eagerly, per
// spec.md §4.2.
func (s *Service) Update(ctx context.Context, tenantID, id uuid.UUID, req UpdateRequest) (Response, error) {
	current, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return Response{}, fmt.Errorf("getting content type for update: %w", err)
	}

	name := current.Name
	if req.Name != nil {
		name = *req.Name
	}
	schemaText := current.Schema
	if req.Schema != nil {
		schemaText = *req.Schema
	}
	basePrice := current.BasePrice
	if req.BasePrice != nil {
		basePrice = *req.BasePrice
	}

	if req.Schema != nil {
		if _, err := CompileSchema(schemaText); err != nil {
			return Response{}, err
		}
	}

	updated, err := s.store.Update(ctx, tenantID, id, UpdateParams{
		Name:      name,
		Schema:    schemaText,
		BasePrice: basePrice,
	})
	if err != nil {
		return Response{}, fmt.Errorf("updating content type: %w", err)
	}

	if req.Schema != nil {
		s.cache.Invalidate(id)
	}

	return updated.ToResponse(), nil
}

func (s *Service) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.store.Delete(ctx, tenantID, id); err != nil {
		return fmt.Errorf("deleting content type: %w", err)
	}
	s.cache.Invalidate(id)
	return nil
}
