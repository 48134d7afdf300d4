package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidToken indicates a missing or unverifiable service token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrForbidden indicates a denied permission check.
	ErrForbidden = errors.New("forbidden")
)
