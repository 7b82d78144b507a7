package cache

import (
	"context"
	"errors"
	"net/http"
)

// ErrCorruptEntry marks stored bytes that cannot be read back as a response.
var ErrCorruptEntry = errors.New("corrupt cache entry")

// ErrMethodNotCacheable is returned when storing a response to a request that cannot be cached.
var ErrMethodNotCacheable = errors.New("request method not cacheable")

// Opener opens the store of a cache partition.
type Opener interface {
	Open(ctx context.Context, partitionKey string) (Store, error)
}

// Store holds HTTP responses keyed by request.
//
// Implementations must be thread-safe!
type Store interface {
	// Match returns the stored response for the request, or nil if there is none.
	// Every call returns a new response with its own body.
	Match(ctx context.Context, req *http.Request) (*http.Response, error)
	// Put stores the response for the request, replacing a previous one.
	Put(ctx context.Context, req *http.Request, res *http.Response) error
	// Delete removes the response Match returns for the request, if any.
	Delete(ctx context.Context, req *http.Request) error
	// Purge removes all responses stored for the request URI, whatever their variant.
	Purge(ctx context.Context, req *http.Request) error
}

// Entry is one stored response variant.
type Entry struct {
	// Full cache key, including the vary part.
	Key   string
	Bytes []byte
}

// Backend is a storage engine for response variants.
// Variants are grouped by key prefix, i.e. all variants of one request URI
// can be listed at once.
// Operating on specific prefixes is very important in order for many partitions
// to be able to be stored in the same backend.
//
// Implementations must be thread-safe!
type Backend interface {
	// Variants returns all entries stored under the given key prefix.
	Variants(ctx context.Context, prefix string) ([]Entry, error)
	// Put stores bytes under the given key, replacing a previous value.
	Put(ctx context.Context, prefix, key string, bytes []byte) error
	// Delete removes the entry with the given key. Deleting a missing entry is not an error.
	Delete(ctx context.Context, prefix, key string) error
	// Close releases the resources of the backend.
	Close() error
}
