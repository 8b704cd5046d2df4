// Package provider defines the storage abstraction used by kvproxy.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation). If a store performs internal transforms
// (e.g. expiry framing), they MUST be fully reversed so that the bytes returned by
// Get are identical to the bytes provided to Set.
//
// TTL enforcement belongs to the provider. kvproxy never tracks expiry itself.
package provider

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by providers used after Close.
var ErrClosed = errors.New("provider: closed")

// Provider is a minimal byte store with TTLs and prefix listing.
// Must be safe for concurrent use. Every call is atomic for its key; there is
// no cross-key guarantee.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss or expiry.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL; ttl <= 0 means no expiry.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error)

	// Del removes a key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// List returns the keys starting with prefix in store-defined order.
	// An empty prefix lists every key. Expired keys should be omitted where the
	// store can tell cheaply.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases resources.
	Close(ctx context.Context) error
}
