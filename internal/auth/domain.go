// Package auth authenticates dashboard API callers by bearer API key.
package auth

import "errors"

// ErrInvalidCredentials is returned when no configured key matches.
var ErrInvalidCredentials = errors.New("auth: invalid api key")

// Principal identifies an authenticated API key.
type Principal struct {
	KeyID string
}
