package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/go-askgate/askgate/internal/token"
)

// tokenRow is the gorm model backing token records.
type tokenRow struct {
	UserKey      string `gorm:"primaryKey;size:128"`
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

func (tokenRow) TableName() string { return "tokens" }

// verifierRow is the gorm model backing pending PKCE verifiers.
type verifierRow struct {
	UserKey   string `gorm:"primaryKey;size:128"`
	Verifier  string
	UpdatedAt time.Time
}

func (verifierRow) TableName() string { return "verifiers" }

// GormStore is a Store backed by a SQL database through gorm. It is the
// durable backend for single-node deployments (sqlite) and shared ones
// (postgres).
type GormStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) a sqlite-backed store at path.
func NewSQLiteStore(path string) (*GormStore, error) {
	return newGormStore(sqlite.Open(path))
}

// NewPostgresStore opens a postgres-backed store with the given DSN.
func NewPostgresStore(dsn string) (*GormStore, error) {
	return newGormStore(postgres.Open(dsn))
}

func newGormStore(dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&tokenRow{}, &verifierRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Token(ctx context.Context, key string) (*token.Record, error) {
	var row tokenRow
	err := s.db.WithContext(ctx).First(&row, "user_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	return &token.Record{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		ExpiresAt:    row.ExpiresAt,
	}, nil
}

func (s *GormStore) SaveToken(ctx context.Context, key string, rec *token.Record) error {
	row := tokenRow{
		UserKey:      key,
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		ExpiresAt:    rec.ExpiresAt,
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (s *GormStore) DeleteToken(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&tokenRow{}, "user_key = ?", key).Error; err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (s *GormStore) Verifier(ctx context.Context, key string) (string, error) {
	var row verifierRow
	err := s.db.WithContext(ctx).First(&row, "user_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load verifier: %w", err)
	}
	return row.Verifier, nil
}

func (s *GormStore) SaveVerifier(ctx context.Context, key, verifier string) error {
	row := verifierRow{UserKey: key, Verifier: verifier}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("failed to save verifier: %w", err)
	}
	return nil
}

func (s *GormStore) DeleteVerifier(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&verifierRow{}, "user_key = ?", key).Error; err != nil {
		return fmt.Errorf("failed to delete verifier: %w", err)
	}
	return nil
}

func (s *GormStore) Reset(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&tokenRow{}).Error; err != nil {
		return fmt.Errorf("failed to reset tokens: %w", err)
	}
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&verifierRow{}).Error; err != nil {
		return fmt.Errorf("failed to reset verifiers: %w", err)
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
