package versions

import (
	"context"

	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

// Repository stores immutable file versions.
type Repository interface {
	Insert(ctx context.Context, v *models.FileVersion) error
	Get(ctx context.Context, fileID string, version int64) (*models.FileVersion, error)
	ListByFile(ctx context.Context, fileID string) ([]*models.FileVersion, error)
}
