// Package common defines shared constants and sentinel errors used across
// the storage and collaboration layers of GophDrive. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Storage engine errors.
	ErrFileNotFound    = errors.New("file not found")
	ErrAccessDenied    = errors.New("access denied")
	ErrChunkIntegrity  = errors.New("chunk integrity failure")
	ErrNotAFile        = errors.New("not a regular file")
	ErrVersionConflict = errors.New("version conflict")
	ErrVersionNotFound = errors.New("version not found")
	ErrInvalidArgument = errors.New("invalid argument")

	// Collaboration engine errors.
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidOperation = errors.New("invalid operation")

	// Auth errors (invalid or malformed token).
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
