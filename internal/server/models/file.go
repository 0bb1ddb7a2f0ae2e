// Package models defines server-side data models persisted in the database.
package models

import "time"

// File is a catalog record. Regular files point at their chunk set through
// the current FileVersion; folders carry no content.
type File struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Size is the plaintext size of the current version.
	Size int64 `json:"size"`
	// Hash is the hex SHA-256 of the first version's plaintext. It is the
	// deduplication key and is empty for folders.
	Hash    string `json:"hash,omitempty"`
	OwnerID string `json:"ownerId"`
	// ParentFolderID is nil for files at the owner's root.
	ParentFolderID *string `json:"parentFolderId,omitempty"`
	// Version is the current version number, starting at 1.
	Version  int64 `json:"version"`
	IsFolder bool  `json:"isFolder"`

	Shares       []FileShare `json:"shares,omitempty"`
	ShareLinkIDs []string    `json:"shareLinkIds,omitempty"`

	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// FileShare grants UserID access to a file with the given permission.
type FileShare struct {
	UserID     string `json:"userId"`
	Permission string `json:"permission"`
}
