package auth

import "errors"

// Failure taxonomy returned to callers. All of these are expected branches
// of normal operation; only storage failures propagate as unexpected errors.
var (
	// ErrInvalidFormat: malformed contact value or verification code.
	ErrInvalidFormat = errors.New("invalid format")
	// ErrDuplicateField: registering an identifier that already exists.
	ErrDuplicateField = errors.New("identifier already exists")
	// ErrAccountNotFound: login requested for an unknown identifier.
	ErrAccountNotFound = errors.New("account not found")
	// ErrCodeNotFound: no outstanding record carries the submitted code.
	// Also the answer for an already-consumed code.
	ErrCodeNotFound = errors.New("code not found")
	// ErrCodeExpired: the matched record's TTL has passed.
	ErrCodeExpired = errors.New("code expired")
	// ErrAuthenticationFailed: bad username/password pair.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrMissingField: a required field is absent or below its length floor.
	ErrMissingField = errors.New("missing required field")
)
