// Package common defines shared constants and sentinel errors used across
// the server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrVersionConflict is returned by a conditional store write when the
	// presented version token no longer matches the stored object.
	ErrVersionConflict = errors.New("version conflict")

	// ErrorSchema reports a sidecar document that is present but malformed.
	ErrorSchema = errors.New("schema error")

	// Service-level errors.
	ErrorInternal             = errors.New("internal error")
	ErrorUnauthorized         = errors.New("unauthorized")
	ErrorForbidden            = errors.New("forbidden")
	ErrorValidation           = errors.New("validation error")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrTimeout                = errors.New("timeout")

	// ErrStoreUnavailable wraps transport and backend failures of the
	// object store or the ownership database.
	ErrStoreUnavailable = errors.New("store unavailable")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
