// Package versions persists FileVersion records. Rows are never updated;
// they disappear only with their file.
package versions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

const versionColumns = `file_id, version, upload_id, chunk_count, size, author_id, comment, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert returns common.ErrVersionConflict if (file_id, version) is taken.
func (r *PostgresRepository) Insert(ctx context.Context, v *models.FileVersion) error {
	query := `
		INSERT INTO file_versions (file_id, version, upload_id, chunk_count, size, author_id, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		v.FileID, v.Version, v.UploadID, v.ChunkCount, v.Size, v.AuthorID, v.Comment).Scan(&v.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrVersionConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Get returns common.ErrNotFound for an unknown (fileID, version).
func (r *PostgresRepository) Get(ctx context.Context, fileID string, version int64) (*models.FileVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM file_versions WHERE file_id = $1 AND version = $2`

	var v models.FileVersion
	err := r.db.QueryRowContext(ctx, query, fileID, version).
		Scan(&v.FileID, &v.Version, &v.UploadID, &v.ChunkCount, &v.Size, &v.AuthorID, &v.Comment, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select version: %w", err)
	}
	return &v, nil
}

func (r *PostgresRepository) ListByFile(ctx context.Context, fileID string) ([]*models.FileVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM file_versions WHERE file_id = $1 ORDER BY version`

	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to select versions: %w", err)
	}
	defer rows.Close()

	var result []*models.FileVersion
	for rows.Next() {
		var v models.FileVersion
		if err := rows.Scan(&v.FileID, &v.Version, &v.UploadID, &v.ChunkCount, &v.Size, &v.AuthorID, &v.Comment, &v.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
