// Package askapi calls the bearer-token-protected question API on behalf of
// an authenticated user.
package askapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-askgate/askgate/internal/metrics"
	"github.com/go-askgate/askgate/internal/token"
)

// ErrMalformedResponse indicates the question API returned an unparseable
// success payload.
var ErrMalformedResponse = errors.New("malformed question api response")

// Row is one result row: a flat key-value mapping. Rows are returned to the
// caller unmodified; response shaping belongs to the UI.
type Row map[string]any

// APIError carries a non-401 upstream failure. Detail is the server's
// `detail` field when parseable, the raw body otherwise.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("question api returned status %d: %s", e.Status, e.Detail)
}

// TokenProvider supplies usable access tokens and invalidates rejected ones.
// *services.TokenService satisfies it.
type TokenProvider interface {
	UsableToken(ctx context.Context, key string) (string, error)
	Invalidate(ctx context.Context, key string) error
}

// HTTPDoer executes HTTP requests. *retry.Client from appleboy/go-httpretry
// satisfies it.
type HTTPDoer interface {
	DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client is the question API client.
type Client struct {
	askURL string
	http   HTTPDoer
	tokens TokenProvider
	logger *slog.Logger
}

// New creates a Client for the /ask endpoint at askURL.
func New(askURL string, doer HTTPDoer, tokens TokenProvider, logger *slog.Logger) *Client {
	return &Client{
		askURL: askURL,
		http:   doer,
		tokens: tokens,
		logger: logger,
	}
}

type askRequest struct {
	Question string `json:"question"`
}

type askError struct {
	Detail string `json:"detail"`
}

// Ask submits a natural-language question for the given user and returns the
// result rows.
//
// When no usable token exists the call is not attempted and
// token.ErrAuthorizationRequired is returned. When the resource server
// answers 401 despite the token passing the local expiry check, the stored
// record is deleted and token.ErrAuthorizationRequired is returned as well.
// Any other non-200 becomes an *APIError without touching token state.
func (c *Client) Ask(ctx context.Context, key, question string) ([]Row, error) {
	accessToken, err := c.tokens.UsableToken(ctx, key)
	if err != nil {
		metrics.AskRequests.WithLabelValues("unauthorized").Inc()
		return nil, err
	}

	payload, err := json.Marshal(&askRequest{Question: question})
	if err != nil {
		return nil, fmt.Errorf("failed to encode question: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.askURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create question request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		metrics.AskRequests.WithLabelValues("transport_error").Inc()
		return nil, fmt.Errorf("question request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read question response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// The resource server overrules the local expiry check.
		metrics.AskRequests.WithLabelValues("rejected").Inc()
		c.logger.Warn("access token rejected by question api", "user", key)
		if err := c.tokens.Invalidate(ctx, key); err != nil {
			return nil, fmt.Errorf("failed to invalidate rejected token: %w", err)
		}
		return nil, token.ErrAuthorizationRequired

	case resp.StatusCode != http.StatusOK:
		metrics.AskRequests.WithLabelValues("upstream_error").Inc()
		return nil, apiError(resp.StatusCode, raw)
	}

	var rows []Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		metrics.AskRequests.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	metrics.AskRequests.WithLabelValues("ok").Inc()
	return rows, nil
}

func apiError(status int, raw []byte) error {
	detail := string(raw)
	var parsed askError
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Detail != "" {
		detail = parsed.Detail
	}
	return &APIError{Status: status, Detail: detail}
}
