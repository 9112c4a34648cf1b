package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-askgate/askgate/internal/metrics"
	"github.com/go-askgate/askgate/internal/pkce"
	"github.com/go-askgate/askgate/internal/store"
	"github.com/go-askgate/askgate/internal/token"
)

// AuthService drives the authorization code flow: Begin produces the consent
// URL, Complete exchanges the callback code for tokens.
type AuthService struct {
	store  store.Store
	server AuthorizationServer
	logger *slog.Logger

	now func() time.Time
}

// NewAuthService creates an AuthService.
func NewAuthService(s store.Store, server AuthorizationServer, logger *slog.Logger) *AuthService {
	return &AuthService{
		store:  s,
		server: server,
		logger: logger,
		now:    time.Now,
	}
}

// Begin generates a fresh PKCE verifier, stores it as the pending verifier
// for key, and returns the authorization URL for the user to open. Any prior
// pending verifier is overwritten, so only the most recently initiated flow
// can complete. No network call is made.
func (s *AuthService) Begin(ctx context.Context, key string) (string, error) {
	verifier, err := pkce.GenerateVerifier()
	if err != nil {
		return "", fmt.Errorf("failed to generate verifier: %w", err)
	}

	if err := s.store.SaveVerifier(ctx, key, verifier); err != nil {
		return "", fmt.Errorf("failed to save verifier: %w", err)
	}

	metrics.AuthFlowsStarted.Inc()
	s.logger.Info("authorization flow started", "user", key)
	return s.server.AuthCodeURL(pkce.Challenge(verifier)), nil
}

// Complete handles the authorization server's redirect: it consumes the
// pending verifier, exchanges the code, and stores the resulting record.
//
// The verifier is deleted as soon as it is read, regardless of how the
// exchange goes. A failed exchange therefore forces the user to restart the
// flow from the beginning rather than retry a possibly intercepted code.
func (s *AuthService) Complete(ctx context.Context, key, code string) error {
	if code == "" {
		metrics.AuthFlowsCompleted.WithLabelValues(metrics.OutcomeFailure).Inc()
		return token.ErrCodeMissing
	}

	verifier, err := s.store.Verifier(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		metrics.AuthFlowsCompleted.WithLabelValues(metrics.OutcomeFailure).Inc()
		return token.ErrVerifierMissing
	}
	if err != nil {
		return fmt.Errorf("failed to load verifier: %w", err)
	}

	// Single use: gone before the exchange is attempted.
	if err := s.store.DeleteVerifier(ctx, key); err != nil {
		return fmt.Errorf("failed to delete verifier: %w", err)
	}

	resp, err := s.server.Exchange(ctx, code, verifier)
	if err != nil {
		metrics.AuthFlowsCompleted.WithLabelValues(metrics.OutcomeFailure).Inc()
		s.logger.Warn("code exchange failed", "user", key, "error", err)
		return err
	}

	rec := resp.Record("", s.now())
	if err := s.store.SaveToken(ctx, key, rec); err != nil {
		return fmt.Errorf("failed to save token record: %w", err)
	}

	metrics.AuthFlowsCompleted.WithLabelValues(metrics.OutcomeSuccess).Inc()
	s.logger.Info("authorization flow completed", "user", key, "expires_at", rec.ExpiresAt)
	return nil
}

// Reset deletes the token record and any pending verifier for key. This is
// the user-initiated "sign out and start over" operation.
func (s *AuthService) Reset(ctx context.Context, key string) error {
	if err := s.store.DeleteToken(ctx, key); err != nil {
		return fmt.Errorf("failed to delete token record: %w", err)
	}
	if err := s.store.DeleteVerifier(ctx, key); err != nil {
		return fmt.Errorf("failed to delete verifier: %w", err)
	}
	s.logger.Info("authorization state reset", "user", key)
	return nil
}
