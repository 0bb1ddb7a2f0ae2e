// Package sessions persists snapshots of live collaboration sessions.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Load returns common.ErrNotFound when the file was never flushed.
func (r *PostgresRepository) Load(ctx context.Context, fileID string) (*models.SessionSnapshot, error) {
	query := `SELECT file_id, content, version, updated_at FROM collaboration_sessions WHERE file_id = $1`

	var s models.SessionSnapshot
	if err := r.db.QueryRowContext(ctx, query, fileID).Scan(&s.FileID, &s.Content, &s.Version, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select session: %w", err)
	}
	return &s, nil
}

// Save upserts the snapshot. An older version never overwrites a newer one,
// so out-of-order asynchronous flushes are harmless. Saving for a file that no
// longer exists yields common.ErrFileNotFound.
func (r *PostgresRepository) Save(ctx context.Context, s *models.SessionSnapshot) error {
	query := `
		INSERT INTO collaboration_sessions (file_id, content, version, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (file_id) DO UPDATE SET
			content = EXCLUDED.content,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE collaboration_sessions.version <= EXCLUDED.version
	`
	if _, err := r.db.ExecContext(ctx, query, s.FileID, s.Content, s.Version); err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return common.ErrFileNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
