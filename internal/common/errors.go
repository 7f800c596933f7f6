// Package common defines shared constants and sentinel errors used across
// client and server layers of MyWarranties. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// ErrNotFound is a local or remote lookup miss. Callers treat it as absence.
	ErrNotFound = errors.New("not found")

	// ErrTransient marks network or remote unavailability. Retried with backoff.
	ErrTransient = errors.New("remote temporarily unavailable")

	// ErrRejected is a permanent remote refusal (permission, validation).
	ErrRejected = errors.New("rejected by remote")

	// ErrConflict signals divergent concurrent edits of the same record.
	ErrConflict = errors.New("conflicting concurrent edit")

	// ErrInvalidRecord is returned when a record violates its invariants.
	ErrInvalidRecord = errors.New("invalid warranty record")

	// ErrForbidden is returned when an owner touches another owner's data.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidToken is returned for malformed or expired access tokens.
	ErrInvalidToken = errors.New("invalid token")
)
