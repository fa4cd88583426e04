package credstore

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("credential store closed")

// Store is a string key/value store with atomic multi-key writes.
type Store interface {
	// Get returns the value stored under key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// SetMany writes every entry in one atomic step.
	SetMany(ctx context.Context, entries map[string]string) error
	// Delete removes the given keys in one atomic step. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// DeleteIf removes keys in one atomic step only while key still holds
	// expected, and reports whether it did.
	DeleteIf(ctx context.Context, key, expected string, keys ...string) (bool, error)
	Close() error
}
