package cache

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	cachekey "github.com/always-cache/autocache/pkg/cache-key"
	serializer "github.com/always-cache/autocache/pkg/response-serializer"

	"github.com/rs/zerolog"
)

// ResponseStore is a Store on top of a byte-level Backend.
type ResponseStore struct {
	backend Backend
	keyer   cachekey.CacheKeyer
	log     zerolog.Logger
}

func NewResponseStore(backend Backend, keyer cachekey.CacheKeyer, logger zerolog.Logger) *ResponseStore {
	return &ResponseStore{
		backend: backend,
		keyer:   keyer,
		log:     logger,
	}
}

// Match only finds responses to GET requests.
// If several stored variants match the request, the one with the most vary headers is used.
func (s *ResponseStore) Match(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return nil, nil
	}
	prefix := s.keyer.GetKeyPrefix(req)
	entries, err := s.matchingVariants(ctx, prefix, req)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		res, err := serializer.BytesToResponse(e.Bytes, req)
		if err != nil {
			s.log.Warn().Err(fmt.Errorf("%w: %v", ErrCorruptEntry, err)).Str("key", e.Key).Msg("Deleting unreadable cache entry")
			if err := s.backend.Delete(ctx, prefix, e.Key); err != nil {
				return nil, fmt.Errorf("delete corrupt entry: %w", err)
			}
			continue
		}
		return res, nil
	}
	return nil, nil
}

// Put returns ErrMethodNotCacheable for requests other than GET.
func (s *ResponseStore) Put(ctx context.Context, req *http.Request, res *http.Response) error {
	if req.Method != http.MethodGet {
		return fmt.Errorf("%w: %s", ErrMethodNotCacheable, req.Method)
	}
	prefix := s.keyer.GetKeyPrefix(req)
	key := s.keyer.AddVaryKeys(prefix, req, res.Header)
	bts, err := serializer.ResponseToBytes(res)
	if err != nil {
		return fmt.Errorf("serialize response: %w", err)
	}
	s.log.Trace().Str("key", key).Msg("Writing to cache")
	if err := s.backend.Put(ctx, prefix, key, bts); err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	return nil
}

// Delete removes the variant Match would return for the request.
// Other variants stored for the same URI are kept.
func (s *ResponseStore) Delete(ctx context.Context, req *http.Request) error {
	if req.Method != http.MethodGet {
		return nil
	}
	prefix := s.keyer.GetKeyPrefix(req)
	entries, err := s.matchingVariants(ctx, prefix, req)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	s.log.Trace().Str("key", entries[0].Key).Msg("Deleting from cache")
	if err := s.backend.Delete(ctx, prefix, entries[0].Key); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// Purge removes every variant stored for the request URI, whatever the request headers.
func (s *ResponseStore) Purge(ctx context.Context, req *http.Request) error {
	prefix := s.keyer.GetKeyPrefix(req)
	entries, err := s.backend.Variants(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list variants: %w", err)
	}
	for _, e := range entries {
		s.log.Trace().Str("key", e.Key).Msg("Purging from cache")
		if err := s.backend.Delete(ctx, prefix, e.Key); err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}
	}
	return nil
}

// matchingVariants returns the variants under prefix that the request selects,
// most specific first. Backends list variants in no particular order.
func (s *ResponseStore) matchingVariants(ctx context.Context, prefix string, req *http.Request) ([]Entry, error) {
	entries, err := s.backend.Variants(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	s.log.Trace().Str("key", prefix).Msgf("Found %v cache entries", len(entries))
	matching := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if s.keyer.MatchesVary(e.Key, req) {
			matching = append(matching, e)
		}
	}
	sort.Slice(matching, func(i, j int) bool {
		vi, vj := len(s.keyer.GetVaryHeaders(matching[i].Key)), len(s.keyer.GetVaryHeaders(matching[j].Key))
		if vi != vj {
			return vi > vj
		}
		return matching[i].Key < matching[j].Key
	})
	return matching, nil
}

// BackendOpener opens stores sharing one backend.
// Partitions are kept apart by the key prefix.
type BackendOpener struct {
	Backend Backend
	Logger  zerolog.Logger
}

func (o BackendOpener) Open(ctx context.Context, partitionKey string) (Store, error) {
	if o.Backend == nil {
		return nil, fmt.Errorf("open partition %s: no backend", partitionKey)
	}
	logger := o.Logger.With().Str("partition", partitionKey).Logger()
	return NewResponseStore(o.Backend, cachekey.NewCacheKeyer(partitionKey), logger), nil
}
