package models

import "time"

// FileChunk is one encrypted frame of a file's content. The ciphertext is
// kept in the blob store under StorageKey.
type FileChunk struct {
	ID     string
	FileID string
	// UploadID groups the chunks written by one upload or createVersion call.
	UploadID   string
	ChunkIndex int
	StorageKey string
	// Size is the plaintext length of the frame.
	Size int64
	// Version is the file version the chunk was written for.
	Version   int64
	CreatedAt time.Time
}
