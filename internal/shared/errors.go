package shared

import "errors"

// Sentinels shared across the session and auth plumbing. Domain packages
// declare their own.
var (
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates a failed login or hidden account.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing indicates a mutation without a CSRF token.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch indicates a token from another session.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
