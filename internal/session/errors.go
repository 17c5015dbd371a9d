package session

import "errors"

// Sentinel errors, part of the Store's public API; check with errors.Is().
var (
	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")
)
