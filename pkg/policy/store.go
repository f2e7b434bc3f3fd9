package policy

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/db"
)

// Store provides read access to the immutable decision log. There is
// deliberately no update or delete: decisions, once recorded, are never
// mutated.
type Store struct {
	db db.DBTX
}

func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

// ListForTenant returns the most recent decisions for tenantID, newest
// first, cursor-paginated by id like internal/audit's equivalent listing.
func (s *Store) ListForTenant(ctx context.Context, tenantID uuid.UUID, before *uuid.UUID, limit int) ([]Record, error) {
	query := `SELECT id, tenant_id, actor_id, request_id, gate, outcome, reason, method, path, created_at
		FROM policy_decisions
		WHERE tenant_id = $1 AND ($2::uuid IS NULL OR (created_at, id) <
			(SELECT created_at, id FROM policy_decisions WHERE id = $2))
		ORDER BY created_at DESC, id DESC LIMIT $3`
	rows, err := s.db.Query(ctx, query, tenantID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("listing policy decisions: %w", err)
	}
	defer rows.Close()

	var items []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.TenantID, &r.ActorID, &r.RequestID, &r.Gate, &r.Outcome, &r.Reason, &r.Method, &r.Path, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning policy decision row: %w", err)
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
