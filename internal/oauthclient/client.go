// Package oauthclient talks to the remote authorization server: it builds
// the PKCE authorization URL and performs the authorization_code and
// refresh_token grants against the token endpoint.
package oauthclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/go-askgate/askgate/internal/token"
)

// HTTPDoer executes HTTP requests. *retry.Client from appleboy/go-httpretry
// satisfies it.
type HTTPDoer interface {
	DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config carries the values registered with the authorization server.
type Config struct {
	AuthURL     string // authorization endpoint, browser-navigated
	TokenURL    string // token endpoint, JSON POST
	ClientID    string
	RedirectURI string // must exactly match the registered callback
	Scope       string
}

// Client is the authorization server client.
type Client struct {
	oauth *oauth2.Config
	http  HTTPDoer
}

// New creates a Client. The HTTPDoer's transport owns all timeouts.
func New(cfg Config, doer HTTPDoer) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURI,
			Scopes:      []string{cfg.Scope},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		http: doer,
	}
}

// AuthCodeURL composes the authorization request URL for the given PKCE
// challenge: client_id, redirect_uri, response_type=code, scope,
// code_challenge, code_challenge_method=S256. No network call is made.
func (c *Client) AuthCodeURL(challenge string) string {
	return c.oauth.AuthCodeURL("",
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// exchangeRequest is the token endpoint's JSON request body for both grants.
type exchangeRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	Code         string `json:"code,omitempty"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Exchange performs the authorization_code grant, binding the code to its
// verifier. The redirect_uri sent must exactly match the registered value.
func (c *Client) Exchange(ctx context.Context, code, verifier string) (*token.Response, error) {
	return c.post(ctx, &exchangeRequest{
		GrantType:    "authorization_code",
		ClientID:     c.oauth.ClientID,
		RedirectURI:  c.oauth.RedirectURL,
		Code:         code,
		CodeVerifier: verifier,
	})
}

// Refresh performs the refresh_token grant.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*token.Response, error) {
	return c.post(ctx, &exchangeRequest{
		GrantType:    "refresh_token",
		ClientID:     c.oauth.ClientID,
		RefreshToken: refreshToken,
	})
}

func (c *Client) post(ctx context.Context, body *exchangeRequest) (*token.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.oauth.Endpoint.TokenURL,
		bytes.NewReader(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, exchangeError(resp.StatusCode, raw)
	}

	var tokenResp token.Response
	if err := json.Unmarshal(raw, &tokenResp); err != nil {
		return nil, fmt.Errorf("%w: %v", token.ErrMalformedResponse, err)
	}
	if err := tokenResp.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", token.ErrMalformedResponse, err)
	}
	return &tokenResp, nil
}

// exchangeError surfaces the server's error_description when parseable,
// the raw body otherwise.
func exchangeError(status int, raw []byte) error {
	detail := string(raw)
	var errResp token.ErrorResponse
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error != "" {
		detail = errResp.Error
		if errResp.ErrorDescription != "" {
			detail = fmt.Sprintf("%s: %s", errResp.Error, errResp.ErrorDescription)
		}
	}
	return &token.ExchangeError{Status: status, Detail: detail}
}
