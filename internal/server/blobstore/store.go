// Package blobstore keeps encrypted chunk payloads. Keys are opaque to the
// store; callers use ChunkKey to build them.
package blobstore

import (
	"context"
	"fmt"
)

// Store is a flat key/value store for chunk ciphertext.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get returns common.ErrNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes keys; missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// ChunkKey is the storage key of a chunk: chunks/<fileId>/<chunkId>.
func ChunkKey(fileID, chunkID string) string {
	return fmt.Sprintf("chunks/%s/%s", fileID, chunkID)
}
