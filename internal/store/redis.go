package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/go-askgate/askgate/internal/token"
)

const (
	tokenKeyPrefix    = "askgate:token:"
	verifierKeyPrefix = "askgate:verifier:"
)

// RedisStore is a Store backed by redis, for deployments where the gateway
// runs more than one replica. No TTLs are set: expiry is tracked inside the
// record and a stale record must remain visible so the lifecycle manager can
// decide to refresh or delete it.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Token(ctx context.Context, key string) (*token.Record, error) {
	data, err := s.client.Get(ctx, tokenKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	var rec token.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode token record: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) SaveToken(ctx context.Context, key string, rec *token.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode token record: %w", err)
	}
	if err := s.client.Set(ctx, tokenKeyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteToken(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, tokenKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (s *RedisStore) Verifier(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, verifierKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load verifier: %w", err)
	}
	return v, nil
}

func (s *RedisStore) SaveVerifier(ctx context.Context, key, verifier string) error {
	if err := s.client.Set(ctx, verifierKeyPrefix+key, verifier, 0).Err(); err != nil {
		return fmt.Errorf("failed to save verifier: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteVerifier(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, verifierKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete verifier: %w", err)
	}
	return nil
}

func (s *RedisStore) Reset(ctx context.Context) error {
	for _, prefix := range []string{tokenKeyPrefix, verifierKeyPrefix} {
		iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("failed to reset store: %w", err)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to scan store keys: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
