package files

import (
	"context"

	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

// Repository is the file catalog.
type Repository interface {
	// InsertOrGetByHash inserts a regular file at version 1 unless a file with
	// the same hash exists. It returns the id of the stored file and whether
	// this call created it.
	InsertOrGetByHash(ctx context.Context, file *models.File) (string, bool, error)
	Insert(ctx context.Context, file *models.File) error
	GetByID(ctx context.Context, id string) (*models.File, error)
	ListByParent(ctx context.Context, ownerID string, parentID *string) ([]*models.File, error)
	AdvanceVersion(ctx context.Context, id string, prev, next, size int64) error
	Delete(ctx context.Context, id string) error
}
