package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/google/uuid"
)

const fileColumns = `id, name, size, hash, owner_id, parent_folder_id, version, is_folder, created_at, modified_at`

// PostgresRepository implements the file catalog over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(s rowScanner) (*models.File, error) {
	var (
		f      models.File
		hash   sql.NullString
		parent sql.NullString
	)
	if err := s.Scan(&f.ID, &f.Name, &f.Size, &hash, &f.OwnerID, &parent, &f.Version, &f.IsFolder, &f.CreatedAt, &f.ModifiedAt); err != nil {
		return nil, err
	}
	f.Hash = hash.String
	if parent.Valid {
		f.ParentFolderID = &parent.String
	}
	return &f, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullParent(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return nullString(*p)
}

// InsertOrGetByHash relies on the partial unique index over hash, so two
// concurrent uploads of the same content cannot both create a row. When the
// insert is skipped the existing row is looked up in the same DBTX.
func (r *PostgresRepository) InsertOrGetByHash(ctx context.Context, file *models.File) (string, bool, error) {
	query := `
		INSERT INTO files (id, name, size, hash, owner_id, parent_folder_id, version, is_folder)
		VALUES ($1, $2, $3, $4, $5, $6, 1, FALSE)
		ON CONFLICT (hash) WHERE hash IS NOT NULL DO NOTHING
		RETURNING id
	`
	var id string
	err := r.db.QueryRowContext(ctx, query,
		file.ID, file.Name, file.Size, file.Hash, file.OwnerID, nullParent(file.ParentFolderID)).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("db error: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, `SELECT id FROM files WHERE hash = $1`, file.Hash).Scan(&id); err != nil {
		return "", false, fmt.Errorf("failed to select file by hash: %w", err)
	}
	return id, false, nil
}

// Insert stores a file row as is. Used for folders, which have no hash.
func (r *PostgresRepository) Insert(ctx context.Context, file *models.File) error {
	query := `
		INSERT INTO files (id, name, size, hash, owner_id, parent_folder_id, version, is_folder)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, modified_at
	`
	err := r.db.QueryRowContext(ctx, query,
		file.ID, file.Name, file.Size, nullString(file.Hash), file.OwnerID, nullParent(file.ParentFolderID),
		file.Version, file.IsFolder).Scan(&file.CreatedAt, &file.ModifiedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns common.ErrFileNotFound when no row matches.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrFileNotFound
	}
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`

	f, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return f, nil
}

// ListByParent returns the owner's files directly under parentID (nil for
// the root), folders first, then by name.
func (r *PostgresRepository) ListByParent(ctx context.Context, ownerID string, parentID *string) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files
		WHERE owner_id = $1 AND parent_folder_id IS NOT DISTINCT FROM $2::uuid
		ORDER BY is_folder DESC, name`

	rows, err := r.db.QueryContext(ctx, query, ownerID, nullParent(parentID))
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// AdvanceVersion moves the file from prev to next and records the new size.
// It returns common.ErrVersionConflict when the file is no longer at prev.
func (r *PostgresRepository) AdvanceVersion(ctx context.Context, id string, prev, next, size int64) error {
	query := `
		UPDATE files SET version = $3, size = $4, modified_at = now()
		WHERE id = $1 AND version = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, prev, next, size)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrVersionConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// Delete removes the file row; versions, shares and the session snapshot
// cascade. Chunk rows are removed separately.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrFileNotFound
	}
	return nil
}
