package models

import "time"

// FileVersion is an immutable snapshot of a file's content. Its chunk list
// is the set of chunks sharing UploadID, ordered by ChunkIndex.
type FileVersion struct {
	FileID     string    `json:"fileId"`
	Version    int64     `json:"version"`
	UploadID   string    `json:"-"`
	ChunkCount int       `json:"chunkCount"`
	Size       int64     `json:"size"`
	AuthorID   string    `json:"authorId"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
