// Package chunks stores chunk records: which blob holds each encrypted frame
// of an upload and where that frame sits in the plaintext.
package chunks

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

const chunkColumns = `id, file_id, upload_id, chunk_index, storage_key, size, version, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, c *models.FileChunk) error {
	query := `
		INSERT INTO file_chunks (id, file_id, upload_id, chunk_index, storage_key, size, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		c.ID, c.FileID, c.UploadID, c.ChunkIndex, c.StorageKey, c.Size, c.Version).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByUpload(ctx context.Context, uploadID string) ([]*models.FileChunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM file_chunks WHERE upload_id = $1 ORDER BY chunk_index`
	return r.list(ctx, query, uploadID)
}

func (r *PostgresRepository) ListByFile(ctx context.Context, fileID string) ([]*models.FileChunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM file_chunks WHERE file_id = $1 ORDER BY version, chunk_index`
	return r.list(ctx, query, fileID)
}

func (r *PostgresRepository) ListOrphans(ctx context.Context, olderThan time.Time, limit int) ([]*models.FileChunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM file_chunks c
		WHERE c.created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM file_versions v WHERE v.upload_id = c.upload_id)
		ORDER BY c.created_at, c.chunk_index
		LIMIT $2`
	return r.list(ctx, query, olderThan, limit)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.FileChunk, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select chunks: %w", err)
	}
	defer rows.Close()

	var result []*models.FileChunk
	for rows.Next() {
		var c models.FileChunk
		if err := rows.Scan(&c.ID, &c.FileID, &c.UploadID, &c.ChunkIndex, &c.StorageKey, &c.Size, &c.Version, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) DeleteByUpload(ctx context.Context, uploadID string) (int64, error) {
	return r.delete(ctx, `DELETE FROM file_chunks WHERE upload_id = $1`, uploadID)
}

func (r *PostgresRepository) DeleteByFile(ctx context.Context, fileID string) (int64, error) {
	return r.delete(ctx, `DELETE FROM file_chunks WHERE file_id = $1`, fileID)
}

func (r *PostgresRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.delete(ctx, `DELETE FROM file_chunks WHERE id = $1`, id)
	return err
}

func (r *PostgresRepository) delete(ctx context.Context, query string, arg string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if res, err = r.db.ExecContext(ctx, query, arg); err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
