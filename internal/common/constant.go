// Package common contains shared constants and sentinel errors used across
// GophDrive components.
package common

// AuthorizationHeaderName carries the bearer token on HTTP and websocket
// upgrade requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the token inside the Authorization header.
const BearerPrefix = "Bearer "

// TokenQueryParam is the websocket fallback for clients that cannot set headers.
const TokenQueryParam = "token"

// DefaultChunkSize is the frame size used to split uploaded content (1 MiB).
const DefaultChunkSize = 1024 * 1024

// DefaultFlushThreshold is the number of buffered collaboration operations
// that triggers a durable snapshot.
const DefaultFlushThreshold = 50
