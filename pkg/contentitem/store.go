package contentitem

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/contentkeep/internal/db"
)

const itemColumns = `id, tenant_id, content_type_id, data, status, version, created_at, updated_at`

// Store provides database operations for content items and their version
// history.
type Store struct {
	db db.DBTX
}

func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

func scanItem(row interface{ Scan(dest ...any) error }) (Item, error) {
	var i Item
	err := row.Scan(&i.ID, &i.TenantID, &i.ContentTypeID, &i.Data, &i.Status, &i.Version, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

func (s *Store) List(ctx context.Context, tenantID uuid.UUID, f ListFilters, limit, offset int) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM content_items WHERE tenant_id = $1`
	args := []any{tenantID}

	if f.ContentTypeID != nil {
		args = append(args, *f.ContentTypeID)
		query += fmt.Sprintf(" AND content_type_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.CreatedAfter != nil {
		args = append(args, *f.CreatedAfter)
		query += fmt.Sprintf(" AND created_at > $%d", len(args))
	}
	if f.CreatedBefore != nil {
		args = append(args, *f.CreatedBefore)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing content items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning content item row: %w", err)
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (s *Store) Count(ctx context.Context, tenantID uuid.UUID, f ListFilters) (int, error) {
	query := `SELECT count(*) FROM content_items WHERE tenant_id = $1`
	args := []any{tenantID}

	if f.ContentTypeID != nil {
		args = append(args, *f.ContentTypeID)
		query += fmt.Sprintf(" AND content_type_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.CreatedAfter != nil {
		args = append(args, *f.CreatedAfter)
		query += fmt.Sprintf(" AND created_at > $%d", len(args))
	}
	if f.CreatedBefore != nil {
		args = append(args, *f.CreatedBefore)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	var count int
	err := s.db.QueryRow(ctx, query, args...).Scan(&count)
	return count, err
}

func (s *Store) Get(ctx context.Context, tenantID, id uuid.UUID) (Item, error) {
	query := `SELECT ` + itemColumns + ` FROM content_items WHERE tenant_id = $1 AND id = $2`
	return scanItem(s.db.QueryRow(ctx, query, tenantID, id))
}

// GetForUpdate locks the row for the duration of the caller's transaction,
// serializing concurrent writers so version increments never collide.
func (s *Store) GetForUpdate(ctx context.Context, tenantID, id uuid.UUID) (Item, error) {
	query := `SELECT ` + itemColumns + ` FROM content_items WHERE tenant_id = $1 AND id = $2 FOR UPDATE`
	return scanItem(s.db.QueryRow(ctx, query, tenantID, id))
}

func (s *Store) Create(ctx context.Context, tenantID, contentTypeID uuid.UUID, data []byte, status string) (Item, error) {
	query := `INSERT INTO content_items (tenant_id, content_type_id, data, status, version)
	VALUES ($1, $2, $3, $4, 1)
	RETURNING ` + itemColumns
	row := s.db.QueryRow(ctx, query, tenantID, contentTypeID, data, status)
	return scanItem(row)
}

// SnapshotVersion inserts an immutable copy of item's current state into the
// version history, called before every update or rollback.
func (s *Store) SnapshotVersion(ctx context.Context, item Item) error {
	query := `INSERT INTO content_item_versions (id, content_item_id, data, status, version, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.Exec(ctx, query, uuid.New(), item.ID, item.Data, item.Status, item.Version, time.Now())
	return err
}

// ApplyUpdate writes a new head row with version = current + 1, failing with
// db.IsNoRows-detectable zero rows if the expected current version no
// longer matches (a concurrent writer raced ahead).
func (s *Store) ApplyUpdate(ctx context.Context, tenantID, id uuid.UUID, expectedVersion int32, data []byte, status string) (Item, error) {
	query := `UPDATE content_items SET data = $1, status = $2, version = version + 1, updated_at = now()
	WHERE tenant_id = $3 AND id = $4 AND version = $5
	RETURNING ` + itemColumns
	row := s.db.QueryRow(ctx, query, data, status, tenantID, id, expectedVersion)
	return scanItem(row)
}

func (s *Store) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM content_items WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("deleting content item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errNotFound
	}
	return nil
}

// GetVersion loads a single historical snapshot by version number.
func (s *Store) GetVersion(ctx context.Context, itemID uuid.UUID, version int32) (Version, error) {
	query := `SELECT id, content_item_id, data, status, version, created_at
	FROM content_item_versions WHERE content_item_id = $1 AND version = $2`
	var v Version
	err := s.db.QueryRow(ctx, query, itemID, version).Scan(&v.ID, &v.ContentItemID, &v.Data, &v.Status, &v.Version, &v.CreatedAt)
	return v, err
}

func (s *Store) ListVersions(ctx context.Context, itemID uuid.UUID) ([]Version, error) {
	query := `SELECT id, content_item_id, data, status, version, created_at
	FROM content_item_versions WHERE content_item_id = $1 ORDER BY version DESC`
	rows, err := s.db.Query(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("listing content item versions: %w", err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.ContentItemID, &v.Data, &v.Status, &v.Version, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning content item version row: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

var errNotFound = fmt.Errorf("content item not found: %w", pgx.ErrNoRows)
