package models

import "time"

// SessionSnapshot is the durable mirror of a collaboration session.
type SessionSnapshot struct {
	FileID    string
	Content   string
	Version   int64
	UpdatedAt time.Time
}
