package port

import (
	"context"
	"time"
)

type IdempotencyStore interface {
	// Get returns the stored record for key; found is false when it does not exist
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// SetNX stores value only if key is unused, returns false if it already exists
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// IdempotencyKey builds the storage key for a client key within scope
	IdempotencyKey(scope, id string) string
}
