package apikey

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/auth"
	"github.com/wisbric/contentkeep/internal/db"
)

// Service encapsulates API key business logic.
type Service struct {
	store  *Store
	logger *slog.Logger
}

// NewService creates an API key Service backed by the given connection.
func NewService(conn db.DBTX, logger *slog.Logger) *Service {
	return &Service{
		store:  NewStore(conn),
		logger: logger,
	}
}

// List returns all API keys for the given tenant.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]Response, error) {
	keys, err := s.store.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}

	items := make([]Response, 0, len(keys))
	for i := range keys {
		items = append(items, keys[i].ToResponse())
	}
	return items, nil
}

// Create generates a new key, stores its hash, and returns the raw value once.
func (s *Service) Create(ctx context.Context, tenantID, createdBy uuid.UUID, req CreateRequest) (CreateResponse, error) {
	raw, hash, prefix := generateKey()

	key, err := s.store.Create(ctx, CreateParams{
		TenantID:  tenantID,
		Name:      req.Name,
		KeyHash:   hash,
		KeyPrefix: prefix,
		Scopes:    req.Scopes,
		CreatedBy: createdBy,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		return CreateResponse{}, fmt.Errorf("creating api key: %w", err)
	}

	return CreateResponse{Response: key.ToResponse(), RawKey: raw}, nil
}

// Rotate issues a new secret for an existing key, invalidating the old one.
func (s *Service) Rotate(ctx context.Context, tenantID, id uuid.UUID) (CreateResponse, error) {
	raw, hash, prefix := generateKey()

	key, err := s.store.Rotate(ctx, tenantID, id, hash, prefix)
	if err != nil {
		return CreateResponse{}, fmt.Errorf("rotating api key: %w", err)
	}

	return CreateResponse{Response: key.ToResponse(), RawKey: raw}, nil
}

// Revoke marks a key permanently unusable.
func (s *Service) Revoke(ctx context.Context, tenantID, id uuid.UUID) (Response, error) {
	key, err := s.store.Revoke(ctx, tenantID, id)
	if err != nil {
		return Response{}, fmt.Errorf("revoking api key: %w", err)
	}
	return key.ToResponse(), nil
}

// generateKey creates a random secret with prefix "ck_", its SHA-256 hash,
// and a short prefix shown in list responses.
func generateKey() (raw, hash, prefix string) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	raw = fmt.Sprintf("ck_%x", b)
	hash = auth.HashAPIKey(raw)
	prefix = raw[:10]
	return
}
