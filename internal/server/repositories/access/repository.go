package access

import "context"

// Checker answers whether a user may read a file. It returns
// common.ErrFileNotFound for unknown files.
type Checker interface {
	HasAccess(ctx context.Context, fileID, userID string) (bool, error)
}
