package chunks

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

// Repository persists chunk records. Ordering by chunk index is part of the
// contract of every List method.
type Repository interface {
	Insert(ctx context.Context, chunk *models.FileChunk) error
	ListByUpload(ctx context.Context, uploadID string) ([]*models.FileChunk, error)
	ListByFile(ctx context.Context, fileID string) ([]*models.FileChunk, error)
	DeleteByUpload(ctx context.Context, uploadID string) (int64, error)
	DeleteByFile(ctx context.Context, fileID string) (int64, error)
	// ListOrphans returns up to limit chunks created before olderThan whose
	// upload is not referenced by any file version.
	ListOrphans(ctx context.Context, olderThan time.Time, limit int) ([]*models.FileChunk, error)
	DeleteByID(ctx context.Context, id string) error
}
