// internal/store/store.go
package store

import (
	"context"
	"time"
)

// Store is the ephemeral key-value contract every coordination component is
// built on. Implementations must make each individual operation atomic;
// cross-operation consistency is the caller's problem (see UpdateHash for the
// one optimistic read-modify-write primitive).
//
// A zero or negative ttl means "leave the current expiry alone".
type Store interface {
	// Hashes.
	SetHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	GetHash(ctx context.Context, key string) (map[string]string, bool, error)
	// MergeHash writes the given fields into an existing hash without touching
	// the rest, refreshing the TTL. Returns false if the key does not exist.
	MergeHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) (bool, error)

	// UpdateHash performs an optimistic check-and-write: fn receives the current
	// fields (nil if absent) and returns the replacement fields, or nil to delete
	// the key, or an error to abort with no mutation. If the key changes between
	// read and write the whole operation is retried.
	UpdateHash(ctx context.Context, key string, ttl time.Duration, fn func(cur map[string]string) (map[string]string, error)) error

	// Scalars.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Sets.
	AddToSet(ctx context.Context, key, member string, ttl time.Duration) error
	RemoveFromSet(ctx context.Context, key, member string) error
	SetSize(ctx context.Context, key string) (int, error)
	SetMembers(ctx context.Context, key string) ([]string, error)

	// Sorted collections ordered by ascending numeric score.
	AddSorted(ctx context.Context, key, member string, score float64) error
	// RangeSorted returns all members oldest-first.
	RangeSorted(ctx context.Context, key string) ([]string, error)
	// RemoveSorted removes the exact member if present and reports whether this
	// call consumed it. This is the atomic primitive matchmaking relies on: two
	// concurrent removals of the same member succeed at most once.
	RemoveSorted(ctx context.Context, key, member string) (bool, error)

	// Capped lists, newest-first.
	PushList(ctx context.Context, key, value string, max int, ttl time.Duration) error
	RangeList(ctx context.Context, key string, limit int) ([]string, error)

	// ScanKeys returns all keys with the given prefix. O(n); intended for the
	// presence directory scan at tens-to-hundreds of keys.
	ScanKeys(ctx context.Context, prefix string) ([]string, error)
}

type conflictError struct{}

func (conflictError) Error() string { return "store: update conflict" }

// ErrUpdateConflict is returned by UpdateHash implementations when the
// optimistic write keeps losing against concurrent writers.
var ErrUpdateConflict = conflictError{}
