// Package store provides the per-user persistence for token records and
// in-flight PKCE verifiers. Records and verifiers live in distinct key
// namespaces; expiry is tracked inside the record, never by the store.
package store

import (
	"context"
	"errors"

	"github.com/go-askgate/askgate/internal/token"
)

// ErrNotFound is returned when no entry exists for the given user key.
var ErrNotFound = errors.New("store: not found")

// Store persists token records and pending verifiers keyed by an opaque
// per-user key. Implementations must isolate users from each other and be
// durable across restarts, with the exception of the memory backend.
type Store interface {
	// Token returns the stored record for key, or ErrNotFound.
	Token(ctx context.Context, key string) (*token.Record, error)
	// SaveToken writes the record for key, replacing any existing one.
	SaveToken(ctx context.Context, key string, rec *token.Record) error
	// DeleteToken removes the record for key. Absent records are not an error.
	DeleteToken(ctx context.Context, key string) error

	// Verifier returns the pending code verifier for key, or ErrNotFound.
	Verifier(ctx context.Context, key string) (string, error)
	// SaveVerifier writes the pending verifier for key, replacing any
	// existing one (last writer wins).
	SaveVerifier(ctx context.Context, key, verifier string) error
	// DeleteVerifier removes the pending verifier for key.
	DeleteVerifier(ctx context.Context, key string) error

	// Reset removes all records and verifiers.
	Reset(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}
