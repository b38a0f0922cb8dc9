// ABOUTME: Authentication and authorization error taxonomy
// ABOUTME: Maps each failure class to its HTTP status for request handlers

package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// Authorization Gate errors
var (
	// ErrMissingCredential means no token or identity was supplied.
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidCredential means the token is malformed, forged, expired, or
	// names an unknown user.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrInsufficientRole means the identity lacks the required privilege.
	ErrInsufficientRole = errors.New("insufficient role")

	// ErrUserNotFound means the credential names a user that does not exist.
	ErrUserNotFound = fmt.Errorf("%w: user not found", ErrInvalidCredential)

	// ErrRootMismatch means the user is not authorized for this server's domain root.
	ErrRootMismatch = errors.New("root mismatch")
)

// StatusCode returns the HTTP status for an authentication error, or 0 if
// err is not one.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrMissingCredential), errors.Is(err, ErrInvalidCredential):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInsufficientRole), errors.Is(err, ErrRootMismatch):
		return http.StatusForbidden
	default:
		return 0
	}
}
