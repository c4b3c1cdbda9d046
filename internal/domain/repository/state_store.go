package repository

import (
	"context"
	"time"
)

// StateStore key/value persistence for session, chat and quota state.
// A zero ttl keeps the entry until it is deleted.
type StateStore interface {
	// Get returns the value and whether the key exists and has not expired
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores the value
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes the key; missing keys are not an error
	Delete(ctx context.Context, key string) error
}
