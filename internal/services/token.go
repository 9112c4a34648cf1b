// Package services contains the token lifecycle and authorization flow
// services sitting between the HTTP handlers and the store.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-askgate/askgate/internal/metrics"
	"github.com/go-askgate/askgate/internal/store"
	"github.com/go-askgate/askgate/internal/token"
)

// RefreshBuffer is the safety margin before the reported expiry during which
// a token is treated as already expired. A token inside the buffer is never
// sent to the remote service, so it cannot be rejected mid-flight.
const RefreshBuffer = 5 * time.Minute

// AuthorizationServer is the slice of the authorization server client the
// services need. *oauthclient.Client satisfies it.
type AuthorizationServer interface {
	AuthCodeURL(challenge string) string
	Exchange(ctx context.Context, code, verifier string) (*token.Response, error)
	Refresh(ctx context.Context, refreshToken string) (*token.Response, error)
}

// TokenService decides whether the stored token for a user is usable,
// refreshes it when it is not, and exposes UsableToken as the single entry
// point for callers. No caller reads token records directly.
type TokenService struct {
	store  store.Store
	server AuthorizationServer
	logger *slog.Logger

	now func() time.Time
}

// NewTokenService creates a TokenService.
func NewTokenService(s store.Store, server AuthorizationServer, logger *slog.Logger) *TokenService {
	return &TokenService{
		store:  s,
		server: server,
		logger: logger,
		now:    time.Now,
	}
}

// Valid reports whether rec can be sent to the remote service: it must be
// non-nil, carry an access token and an expiry, and expire strictly more
// than RefreshBuffer from now.
func (s *TokenService) Valid(rec *token.Record) bool {
	if rec == nil || rec.AccessToken == "" || rec.ExpiresAt.IsZero() {
		return false
	}
	return rec.ExpiresAt.After(s.now().Add(RefreshBuffer))
}

// Refresh performs the refresh_token grant for key and returns the updated
// record. When the stored record has no refresh token it fails without
// touching the store. When the token endpoint rejects the grant or the
// request fails in transit, the stored record is deleted entirely: a stale,
// unrefreshable token must never linger and be retried against the
// protected API.
func (s *TokenService) Refresh(ctx context.Context, key string) (*token.Record, error) {
	rec, err := s.store.Token(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, token.ErrRefreshTokenMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token record: %w", err)
	}
	if rec.RefreshToken == "" {
		return nil, token.ErrRefreshTokenMissing
	}

	resp, err := s.server.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(metrics.OutcomeFailure).Inc()
		s.logger.Warn("token refresh failed, deleting record",
			"user", key, "error", err)

		if delErr := s.store.DeleteToken(ctx, key); delErr != nil {
			return nil, fmt.Errorf("failed to delete unrefreshable token: %w", delErr)
		}
		return nil, fmt.Errorf("%w: %v", token.ErrRefreshFailed, err)
	}

	updated := resp.Record(rec.RefreshToken, s.now())
	if err := s.store.SaveToken(ctx, key, updated); err != nil {
		return nil, fmt.Errorf("failed to save refreshed token: %w", err)
	}

	metrics.TokenRefreshes.WithLabelValues(metrics.OutcomeSuccess).Inc()
	s.logger.Info("token refreshed", "user", key, "expires_at", updated.ExpiresAt)
	return updated, nil
}

// UsableToken returns an access token for key, refreshing first when the
// stored one is expired or inside the refresh buffer. It returns
// token.ErrAuthorizationRequired when no token can be produced, in which
// case the caller must send the user through the authorization flow.
func (s *TokenService) UsableToken(ctx context.Context, key string) (string, error) {
	rec, err := s.store.Token(ctx, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("failed to load token record: %w", err)
	}

	if s.Valid(rec) {
		return rec.AccessToken, nil
	}

	refreshed, err := s.Refresh(ctx, key)
	if err != nil {
		return "", token.ErrAuthorizationRequired
	}
	return refreshed.AccessToken, nil
}

// Invalidate deletes the stored record for key. Used when the resource
// server rejects a token that passed the local expiry check.
func (s *TokenService) Invalidate(ctx context.Context, key string) error {
	s.logger.Info("invalidating token", "user", key)
	return s.store.DeleteToken(ctx, key)
}
