package contenttype

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/contentkeep/internal/db"
)

const columns = `id, tenant_id, name, slug, schema, base_price, created_at, updated_at`

// Store provides database operations for content types.
type Store struct {
	db db.DBTX
}

func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

type CreateParams struct {
	TenantID  uuid.UUID
	Name      string
	Slug      string
	Schema    string
	BasePrice int64
}

type UpdateParams struct {
	Name      string
	Schema    string
	BasePrice int64
}

func scanRow(row interface{ Scan(dest ...any) error }) (ContentType, error) {
	var c ContentType
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Slug, &c.Schema, &c.BasePrice, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) List(ctx context.Context, tenantID uuid.UUID) ([]ContentType, error) {
	query := `SELECT ` + columns + ` FROM content_types WHERE tenant_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing content types: %w", err)
	}
	defer rows.Close()

	var items []ContentType
	for rows.Next() {
		c, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning content type row: %w", err)
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (s *Store) Get(ctx context.Context, tenantID, id uuid.UUID) (ContentType, error) {
	query := `SELECT ` + columns + ` FROM content_types WHERE tenant_id = $1 AND id = $2`
	return scanRow(s.db.QueryRow(ctx, query, tenantID, id))
}

func (s *Store) Create(ctx context.Context, p CreateParams) (ContentType, error) {
	query := `INSERT INTO content_types (tenant_id, name, slug, schema, base_price)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING ` + columns
	row := s.db.QueryRow(ctx, query, p.TenantID, p.Name, p.Slug, p.Schema, p.BasePrice)
	return scanRow(row)
}

func (s *Store) Update(ctx context.Context, tenantID, id uuid.UUID, p UpdateParams) (ContentType, error) {
	query := `UPDATE content_types SET name = $1, schema = $2, base_price = $3, updated_at = now()
	WHERE tenant_id = $4 AND id = $5
	RETURNING ` + columns
	row := s.db.QueryRow(ctx, query, p.Name, p.Schema, p.BasePrice, tenantID, id)
	return scanRow(row)
}

func (s *Store) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM content_types WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("deleting content type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errNotFound
	}
	return nil
}

var errNotFound = fmt.Errorf("content type not found: %w", pgx.ErrNoRows)
