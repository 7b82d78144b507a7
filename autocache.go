package autocache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/always-cache/autocache/cache"
	"github.com/always-cache/autocache/pkg/cacheability"
	"github.com/always-cache/autocache/pkg/metrics"
	partitionkey "github.com/always-cache/autocache/pkg/partition-key"
	serializer "github.com/always-cache/autocache/pkg/response-serializer"
	responsetransformer "github.com/always-cache/autocache/pkg/response-transformer"
	tee "github.com/always-cache/autocache/pkg/response-writer-tee"
	"github.com/always-cache/autocache/rfc9211"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Opens the cache store. An in-memory store is used if nil.
	Opener cache.Opener
	// Partition of the cache store to use.
	// The deployment identifier from the environment, or a random one, is used if empty.
	PartitionKey string
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
	// Evaluation of response headers.
	Policy cacheability.Policy
	// Optional rules for adjusting the caching headers of responses before evaluation.
	Rules responsetransformer.Rules
	// Add a Cache-Status header to responses.
	CacheStatus bool
	// Remove stored responses after successful unsafe requests (POST, PUT, DELETE...)
	// to their URI, Location, Content-Location and the URIs listed in Cache-Update.
	Invalidate bool
	// Current time. time.Now is used if nil.
	Clock func() time.Time
	// Called when the cache store fails while handling a request.
	// The default responds with 500 Internal Server Error.
	ErrorHandler func(http.ResponseWriter, *http.Request, error)
}

type Autocache struct {
	store            func() (cache.Store, error)
	log              zerolog.Logger
	policy           cacheability.Policy
	rules            responsetransformer.Rules
	cacheStatus      bool
	invalidateUnsafe bool
	clock            func() time.Time
	errorHandler     func(http.ResponseWriter, *http.Request, error)
	latency          *metrics.LatencyTracker
	// deferred stores and invalidations in progress
	pending sync.WaitGroup
}

// New creates a cache instance.
// The cache store is opened on first use.
func New(config Config) *Autocache {
	logger := log.Logger
	if config.Logger != nil {
		logger = *config.Logger
	}

	a := &Autocache{
		log:              logger,
		policy:           config.Policy,
		rules:            config.Rules,
		cacheStatus:      config.CacheStatus,
		invalidateUnsafe: config.Invalidate,
		clock:            config.Clock,
		errorHandler:     config.ErrorHandler,
		latency:          metrics.NewLatencyTracker(0.01),
	}
	if a.clock == nil {
		a.clock = time.Now
	}
	if a.errorHandler == nil {
		a.errorHandler = internalServerError
	}

	opener := config.Opener
	if opener == nil {
		opener = cache.BackendOpener{Backend: cache.NewMemoryBackend(), Logger: logger}
	}
	// concurrent first requests share the same resolution, including its failure
	a.store = sync.OnceValues(func() (cache.Store, error) {
		partitionKey := config.PartitionKey
		if partitionKey == "" {
			partitionKey = partitionkey.Default()
		}
		var store cache.Store
		err := a.latency.RecordFunc(metrics.OpResolve, func() error {
			var err error
			store, err = opener.Open(context.Background(), partitionKey)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("open cache partition %s: %w", partitionKey, err)
		}
		a.log.Debug().Str("partition", partitionKey).Msg("Opened cache store")
		return store, nil
	})

	return a
}

var defaultCache = sync.OnceValue(func() *Autocache {
	return New(Config{})
})

// WithCache wraps next with the process-wide cache,
// which keeps responses in memory under the partition of this deployment.
func WithCache(next http.Handler) http.Handler {
	return defaultCache().Middleware(next)
}

// Store returns the cache store, opening it on the first call.
func (a *Autocache) Store() (cache.Store, error) {
	return a.store()
}

// Wait blocks until all started deferred stores and invalidations have finished.
func (a *Autocache) Wait() {
	a.pending.Wait()
}

// Stats returns the latency statistics of cache operations.
func (a *Autocache) Stats() []metrics.Stats {
	return a.latency.GetAllStats()
}

// Middleware serves fresh responses from the cache and stores cacheable responses of next.
func (a *Autocache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.serve(w, r, next)
	})
}

func (a *Autocache) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	store, err := a.Store()
	if err != nil {
		a.fail(w, r, "open", err)
		return
	}

	cs := rfc9211.CacheStatus{}
	cs.Forward(rfc9211.FwdReasonUriMiss)

	var res *http.Response
	err = a.latency.RecordFunc(metrics.OpMatch, func() error {
		var err error
		res, err = store.Match(r.Context(), r)
		return err
	})
	if err != nil {
		a.fail(w, r, "match", err)
		return
	}
	if res != nil {
		now := a.clock()
		if isFresh(res.Header, now) {
			a.sendStoredResponse(w, r, res, now)
			return
		}
		res.Body.Close()
		a.log.Trace().Str("url", r.URL.String()).Str("until", res.Header.Get(CacheUntilHeader)).Msg("Deleting expired cache entry")
		err = a.latency.RecordFunc(metrics.OpDelete, func() error {
			return store.Delete(r.Context(), r)
		})
		if err != nil {
			a.fail(w, r, "delete", err)
			return
		}
		cs.Forward(rfc9211.FwdReasonStale)
	}
	a.forward(w, r, next, store, cs)
}

func (a *Autocache) sendStoredResponse(w http.ResponseWriter, r *http.Request, res *http.Response, now time.Time) {
	defer res.Body.Close()
	metrics.Hits.Inc()
	cs := rfc9211.CacheStatus{}
	cs.Hit()
	copyHeader(w.Header(), res.Header)
	if a.cacheStatus {
		cs.TTL(ttlSeconds(res.Header, now))
		w.Header().Add("Cache-Status", cs.String())
	}
	w.WriteHeader(res.StatusCode)
	bytesWritten, err := io.Copy(w, res.Body)
	if err != nil {
		a.log.Error().Err(err).Msg("Could not write response body to client")
	}
	a.logRequest(r, res.StatusCode, cs)
	a.log.Trace().Msgf("Wrote body (%d bytes)", bytesWritten)
}

// forward calls next, streaming its response to the client,
// and stores the response afterwards if it is cacheable.
func (a *Autocache) forward(w http.ResponseWriter, r *http.Request, next http.Handler, store cache.Store, cs rfc9211.CacheStatus) {
	a.log.Trace().Msgf("forwarding %s", r.URL.String())
	metrics.Misses.WithLabelValues(string(cs.FwdReason)).Inc()

	rwtee := tee.NewResponseSaver(w)
	// set cache-status on underlying rw only (i.e. do not save to cache)
	if a.cacheStatus {
		w.Header().Add("Cache-Status", cs.String())
	}
	start := time.Now()
	next.ServeHTTP(rwtee, r)
	a.latency.Record(metrics.OpOrigin, time.Since(start))

	res := serializer.RecordedToResponse(rwtee.StatusCode(), rwtee.RecordedHeader(), rwtee.Body(), r)
	if a.invalidateUnsafe {
		a.invalidate(store, r, res)
	}
	a.rules.Apply(res, a.log)
	decision := a.policy.Decide(res.Header, a.clock())
	a.log.Trace().Str("url", r.URL.String()).Stringer("decision", decision).Msg("Evaluated response")
	if decision.Cache {
		cs.Stored = true
		a.storeLater(store, r, res, decision.Until)
	}
	a.logRequest(r, rwtee.StatusCode(), cs)
}

// storeLater writes the response to the cache in a goroutine.
// The request is not waiting for it and never sees its errors.
func (a *Autocache) storeLater(store cache.Store, r *http.Request, res *http.Response, until time.Time) {
	req := r.Clone(context.WithoutCancel(r.Context()))
	req.Body = http.NoBody
	res.Request = req

	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		defer func() {
			if p := recover(); p != nil {
				metrics.Stores.WithLabelValues(metrics.StoreError).Inc()
				a.log.Error().Interface("panic", p).Str("url", req.URL.String()).Msg("Panic while writing to cache")
			}
		}()

		setCacheUntil(res.Header, until)
		err := a.latency.RecordFunc(metrics.OpPut, func() error {
			return store.Put(req.Context(), req, res)
		})
		switch {
		case errors.Is(err, cache.ErrMethodNotCacheable):
			metrics.Stores.WithLabelValues(metrics.StoreSkipped).Inc()
			a.log.Trace().Err(err).Str("url", req.URL.String()).Msg("Not writing to cache")
		case err != nil:
			metrics.Stores.WithLabelValues(metrics.StoreError).Inc()
			metrics.StoreErrors.WithLabelValues("put").Inc()
			a.log.Error().Err(err).Str("url", req.URL.String()).Msg("Could not write to cache")
		default:
			metrics.Stores.WithLabelValues(metrics.StoreOK).Inc()
			a.log.Trace().Str("url", req.URL.String()).Time("until", until).Msg("Wrote to cache")
		}
	}()
}

func (a *Autocache) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	metrics.StoreErrors.WithLabelValues(operation).Inc()
	a.log.Error().Err(err).Str("url", r.URL.String()).Msgf("Cache %s failed", operation)
	a.errorHandler(w, r, err)
}

func internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (a *Autocache) logRequest(r *http.Request, status int, cs rfc9211.CacheStatus) {
	isHit := 0
	if cs.Status == rfc9211.StatusHit {
		isHit = 1
	}
	a.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("sourceIp", getRequestSourceIp(r)).
		Int("status", status).
		Str("fwd", string(cs.FwdReason)).
		Bool("stored", cs.Stored).
		Int("hit", isHit).
		Msg("Sending response to client")
}

// ttlSeconds returns the remaining lifetime of a stored response in whole seconds.
func ttlSeconds(h http.Header, now time.Time) int {
	ttl := (cacheUntil(h) - float64(now.UnixMilli())) / 1000
	if ttl > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ttl)
}

func getRequestSourceIp(r *http.Request) string {
	// RemoteAddr is in the format:
	// 1.2.3.4:10000 for ipv4
	// [1:2:3]:10000 for ipv6
	ipAndPort := r.RemoteAddr
	portSepIdx := strings.LastIndex(ipAndPort, ":")
	// if not found, return
	if portSepIdx < 0 {
		return ipAndPort
	}
	return ipAndPort[:portSepIdx]
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
