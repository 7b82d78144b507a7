package autocache

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/always-cache/autocache/cache"
	cacheupdate "github.com/always-cache/autocache/pkg/cache-update"
	"github.com/always-cache/autocache/pkg/metrics"
	"github.com/always-cache/autocache/rfc9111"
)

// invalidate removes the stored responses that the unsafe request r may have changed:
// the target URI, same-origin Location and Content-Location,
// and the URIs listed by the origin in Cache-Update.
// Cache-Update entries with a delay are removed in the background.
func (a *Autocache) invalidate(store cache.Store, r *http.Request, res *http.Response) {
	uris := rfc9111.GetInvalidateURIs(r, res)
	if len(uris) == 0 {
		return
	}
	for _, uri := range uris {
		a.invalidateURI(r.Context(), store, r, uri, "target")
	}

	for _, update := range cacheupdate.GetCacheUpdates(r, res.Header) {
		if update.Delay == 0 {
			a.invalidateURI(r.Context(), store, r, update.URI, "cache-update")
			continue
		}
		a.log.Trace().Str("uri", update.URI).Dur("delay", update.Delay).Msg("Scheduling invalidation")
		ctx := context.WithoutCancel(r.Context())
		uri := update.URI
		origin := r.Clone(ctx)
		a.pending.Add(1)
		time.AfterFunc(update.Delay, func() {
			defer a.pending.Done()
			defer func() {
				if p := recover(); p != nil {
					a.log.Error().Interface("panic", p).Str("uri", uri).Msg("Panic while invalidating")
				}
			}()
			a.invalidateURI(ctx, store, origin, uri, "cache-update")
		})
	}
}

// invalidateURI purges every stored GET response for uri.
// uri is a path and query on the origin of r.
func (a *Autocache) invalidateURI(ctx context.Context, store cache.Store, r *http.Request, uri, source string) {
	ref, err := url.Parse(uri)
	if err != nil {
		a.log.Error().Err(err).Str("uri", uri).Msg("Could not parse uri for invalidation")
		return
	}
	req := r.Clone(ctx)
	req.Method = http.MethodGet
	req.URL = r.URL.ResolveReference(ref)
	req.Body = http.NoBody

	a.log.Trace().Str("uri", uri).Str("source", source).Msg("Invalidating stored response")
	err = a.latency.RecordFunc(metrics.OpDelete, func() error {
		return store.Purge(ctx, req)
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("invalidate").Inc()
		a.log.Error().Err(err).Str("uri", uri).Msg("Could not invalidate stored response")
		return
	}
	metrics.Invalidations.WithLabelValues(source).Inc()
}
