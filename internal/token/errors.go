package token

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthorizationRequired indicates no usable token exists and the user
	// must complete the authorization flow
	ErrAuthorizationRequired = errors.New("authorization required")

	// ErrCodeMissing indicates the callback arrived without an authorization code
	ErrCodeMissing = errors.New("authorization code missing")

	// ErrVerifierMissing indicates no pending code verifier exists for the
	// session, e.g. a replayed or stale callback
	ErrVerifierMissing = errors.New("code verifier missing")

	// ErrRefreshTokenMissing indicates the stored record has no refresh token
	ErrRefreshTokenMissing = errors.New("refresh token missing")

	// ErrRefreshFailed indicates the token endpoint rejected the refresh grant
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrMalformedResponse indicates the token endpoint returned an
	// unparseable or invalid payload
	ErrMalformedResponse = errors.New("malformed token response")
)

// ExchangeError carries the token endpoint's non-200 response for a code
// exchange or refresh. Detail is the server's error_description when
// parseable, the raw body otherwise.
type ExchangeError struct {
	Status int
	Detail string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed with status %d: %s", e.Status, e.Detail)
}
