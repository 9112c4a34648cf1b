package token

import (
	"errors"
	"fmt"
	"time"
)

// Record is the persisted credential for one user. ExpiresAt is always
// derived as issuance time plus the server-reported lifetime; it is never
// trusted beyond the lifecycle manager's refresh buffer.
type Record struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Response is the token endpoint's success payload for both the
// authorization_code and refresh_token grants.
type Response struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// ErrorResponse is the token endpoint's error payload.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Validate checks the invariants of a token response before it is trusted.
func (r *Response) Validate() error {
	if r.AccessToken == "" {
		return errors.New("access_token is empty")
	}
	if r.ExpiresIn <= 0 {
		return fmt.Errorf("expires_in must be positive, got: %d", r.ExpiresIn)
	}
	// Token type is optional in OAuth 2.0, but if present, should be "Bearer"
	if r.TokenType != "" && r.TokenType != "Bearer" {
		return fmt.Errorf("unexpected token_type: %s (expected Bearer)", r.TokenType)
	}
	return nil
}

// Record converts a token response into a stored Record, computing ExpiresAt
// from the reported lifetime. When the response omits a refresh token the
// previous one is preserved.
func (r *Response) Record(prevRefreshToken string, now time.Time) *Record {
	refresh := r.RefreshToken
	if refresh == "" {
		refresh = prevRefreshToken
	}
	return &Record{
		AccessToken:  r.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(time.Duration(r.ExpiresIn) * time.Second),
	}
}
