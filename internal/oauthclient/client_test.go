package oauthclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-askgate/askgate/internal/token"
)

// plainDoer adapts *http.Client to HTTPDoer for tests.
type plainDoer struct{ c *http.Client }

func (d *plainDoer) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	return d.c.Do(req.WithContext(ctx))
}

func newTestClient(tokenURL string) *Client {
	return New(Config{
		AuthURL:     "https://auth.example.com/auth",
		TokenURL:    tokenURL,
		ClientID:    "client-123",
		RedirectURI: "https://gateway.example.com/oauth/callback",
		Scope:       "analytics.ask",
	}, &plainDoer{c: http.DefaultClient})
}

func TestAuthCodeURL(t *testing.T) {
	c := newTestClient("https://auth.example.com/token")

	raw := c.AuthCodeURL("challenge-xyz")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "auth.example.com", u.Host)
	assert.Equal(t, "/auth", u.Path)

	q := u.Query()
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "https://gateway.example.com/oauth/callback", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "analytics.ask", q.Get("scope"))
	assert.Equal(t, "challenge-xyz", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
}

func TestExchange_Success(t *testing.T) {
	var gotBody exchangeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok1","refresh_token":"ref1","expires_in":3600}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	resp, err := c.Exchange(context.Background(), "abc123", "v1")
	require.NoError(t, err)

	assert.Equal(t, "tok1", resp.AccessToken)
	assert.Equal(t, "ref1", resp.RefreshToken)
	assert.Equal(t, 3600, resp.ExpiresIn)

	assert.Equal(t, "authorization_code", gotBody.GrantType)
	assert.Equal(t, "client-123", gotBody.ClientID)
	assert.Equal(t, "https://gateway.example.com/oauth/callback", gotBody.RedirectURI)
	assert.Equal(t, "abc123", gotBody.Code)
	assert.Equal(t, "v1", gotBody.CodeVerifier)
	assert.Empty(t, gotBody.RefreshToken)
}

func TestExchange_ServerError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
	}{
		{
			name:       "structured error with description",
			status:     http.StatusBadRequest,
			body:       `{"error":"invalid_grant","error_description":"code expired"}`,
			wantDetail: "invalid_grant: code expired",
		},
		{
			name:       "structured error without description",
			status:     http.StatusBadRequest,
			body:       `{"error":"invalid_request"}`,
			wantDetail: "invalid_request",
		},
		{
			name:       "unparseable body surfaces raw",
			status:     http.StatusBadGateway,
			body:       "upstream exploded",
			wantDetail: "upstream exploded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestClient(srv.URL)
			_, err := c.Exchange(context.Background(), "abc123", "v1")
			require.Error(t, err)

			var exchErr *token.ExchangeError
			require.ErrorAs(t, err, &exchErr)
			assert.Equal(t, tt.status, exchErr.Status)
			assert.Equal(t, tt.wantDetail, exchErr.Detail)
		})
	}
}

func TestExchange_MalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: "not json at all"},
		{name: "missing access token", body: `{"expires_in":3600}`},
		{name: "non-positive lifetime", body: `{"access_token":"tok1","expires_in":0}`},
		{name: "unexpected token type", body: `{"access_token":"tok1","expires_in":60,"token_type":"MAC"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestClient(srv.URL)
			_, err := c.Exchange(context.Background(), "abc123", "v1")
			assert.ErrorIs(t, err, token.ErrMalformedResponse)
		})
	}
}

func TestRefresh_Body(t *testing.T) {
	var gotBody exchangeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"access_token":"tok2","expires_in":3600}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	resp, err := c.Refresh(context.Background(), "ref1")
	require.NoError(t, err)

	assert.Equal(t, "tok2", resp.AccessToken)
	assert.Empty(t, resp.RefreshToken, "server omitted a new refresh token")

	assert.Equal(t, "refresh_token", gotBody.GrantType)
	assert.Equal(t, "ref1", gotBody.RefreshToken)
	assert.Empty(t, gotBody.Code, "refresh grant must not carry a code")
	assert.Empty(t, gotBody.RedirectURI)
}

func TestExchange_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := newTestClient(srv.URL)
	_, err := c.Exchange(context.Background(), "abc123", "v1")
	require.Error(t, err)

	var exchErr *token.ExchangeError
	assert.False(t, errors.As(err, &exchErr), "transport failures are not exchange errors")
}
