// Package errors defines the sentinel errors shared by the storage and
// issuance layers. Lookups that simply find nothing return (nil, nil)
// rather than an error; only precondition violations, uniqueness
// conflicts and backend failures surface here.
package errors

import "errors"

var (
	// ErrTokenReferenceRequired is returned when a token lookup is
	// attempted with neither an access token nor a refresh token.
	ErrTokenReferenceRequired = errors.New("exactly one of access_token or refresh_token must be supplied")

	// ErrUsernameTaken is returned by SaveUser on a duplicate username.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrGrantNotFound is returned by the issuance layer when an
	// authorization code does not match a live grant. A replayed code
	// surfaces this error, not ErrGrantExpired.
	ErrGrantNotFound = errors.New("authorization grant not found")

	// ErrGrantExpired is returned when a grant is found but its expiry
	// has passed.
	ErrGrantExpired = errors.New("authorization grant expired")

	// ErrTokenNotFound is returned by token validation when no token row
	// matches.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExpired is returned when a token row matches but is past
	// its expiry.
	ErrTokenExpired = errors.New("token expired")
)
