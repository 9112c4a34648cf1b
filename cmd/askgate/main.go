package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/appleboy/graceful"

	"github.com/go-askgate/askgate/internal/askapi"
	"github.com/go-askgate/askgate/internal/config"
	"github.com/go-askgate/askgate/internal/handlers"
	"github.com/go-askgate/askgate/internal/middleware"
	"github.com/go-askgate/askgate/internal/oauthclient"
	"github.com/go-askgate/askgate/internal/router"
	"github.com/go-askgate/askgate/internal/services"
	"github.com/go-askgate/askgate/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("askgate exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	s, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("failed to close token store", "error", err)
		}
	}()

	retryClient, err := retry.NewBackgroundClient(
		retry.WithHTTPClient(&http.Client{
			Timeout: cfg.HTTPTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create retry client: %w", err)
	}

	oauthClient := oauthclient.New(oauthclient.Config{
		AuthURL:     cfg.AuthURL,
		TokenURL:    cfg.TokenURL,
		ClientID:    cfg.ClientID,
		RedirectURI: cfg.RedirectURI,
		Scope:       cfg.Scope,
	}, retryClient)

	tokenService := services.NewTokenService(s, oauthClient, logger)
	authService := services.NewAuthService(s, oauthClient, logger)
	askClient := askapi.New(cfg.AskAPIURL, retryClient, tokenService, logger)

	rateLimit, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		StoreType:         cfg.RateLimitStore,
		RedisAddr:         cfg.RedisAddr,
		RedisPassword:     cfg.RedisPassword,
		RedisDB:           cfg.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("failed to create rate limiter: %w", err)
	}

	r := router.New(router.Deps{
		Config:    cfg,
		Auth:      handlers.NewAuthHandler(authService, logger),
		Ask:       handlers.NewAskHandler(askClient, authService, logger),
		RateLimit: rateLimit,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	m := graceful.NewManager()
	m.AddRunningJob(func(ctx context.Context) error {
		logger.Info("askgate listening",
			"addr", cfg.ServerAddr,
			"base_url", cfg.BaseURL,
			"store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	m.AddShutdownJob(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})

	<-m.Done()
	return nil
}

func newStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		return store.NewMemoryStore(), nil
	case config.StoreBackendSQLite:
		return store.NewSQLiteStore(cfg.DatabasePath)
	case config.StoreBackendPostgres:
		return store.NewPostgresStore(cfg.PostgresDSN)
	case config.StoreBackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return store.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.StoreBackend)
	}
}
