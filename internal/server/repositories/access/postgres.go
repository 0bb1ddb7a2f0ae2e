// Package access implements the permission check consumed by downloads and
// collaboration joins. Shares and links are managed elsewhere; this package
// only reads them.
package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/google/uuid"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// HasAccess is true for the owner, for users the file is shared with, and
// for anyone while the file has an active, unexpired share link.
func (r *PostgresRepository) HasAccess(ctx context.Context, fileID, userID string) (bool, error) {
	if _, err := uuid.Parse(fileID); err != nil {
		return false, common.ErrFileNotFound
	}
	query := `
		SELECT f.owner_id = $2
			OR EXISTS (SELECT 1 FROM file_shares s WHERE s.file_id = f.id AND s.user_id = $2)
			OR EXISTS (SELECT 1 FROM share_links l WHERE l.file_id = f.id AND l.active
				AND (l.expires_at IS NULL OR l.expires_at > now()))
		FROM files f
		WHERE f.id = $1
	`
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, fileID, userID).Scan(&ok); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, common.ErrFileNotFound
		}
		return false, fmt.Errorf("failed to check access: %w", err)
	}
	return ok, nil
}
