package sessions

import (
	"context"

	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

// Repository mirrors collaboration sessions to durable storage.
type Repository interface {
	Load(ctx context.Context, fileID string) (*models.SessionSnapshot, error)
	Save(ctx context.Context, s *models.SessionSnapshot) error
}
