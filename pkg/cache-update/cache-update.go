// Package cacheupdate reads the Cache-Update response header,
// with which the origin names resources changed by an unsafe request.
//
//	Cache-Update: /items; delay=5, /items/7
package cacheupdate

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/always-cache/autocache/rfc9111"
)

const HeaderName = "Cache-Update"

// CacheUpdate represents a single `Cache-Update` entry.
type CacheUpdate struct {
	// Resolved request URI (path and query) of the resource.
	URI string
	// Wait this long before invalidating.
	Delay time.Duration
}

// GetCacheUpdates gets the updates specified by the response to an unsafe request.
// The request is used in order to resolve relative paths.
func GetCacheUpdates(req *http.Request, header http.Header) []CacheUpdate {
	if !rfc9111.UnsafeRequest(req) {
		return nil
	}
	var updates []CacheUpdate
	for _, member := range rfc9111.SplitDirectives(header.Values(HeaderName)) {
		params := strings.Split(member, ";")
		ref, err := url.Parse(strings.TrimSpace(params[0]))
		// only paths on the same origin
		if err != nil || ref.Host != "" || ref.Scheme != "" || ref.Path == "" {
			continue
		}
		updates = append(updates, CacheUpdate{
			URI:   req.URL.ResolveReference(ref).RequestURI(),
			Delay: getDelay(params[1:]),
		})
	}
	return updates
}

// getDelay returns the `delay=N` parameter in seconds, or 0.
func getDelay(params []string) time.Duration {
	for _, param := range params {
		name, value, found := strings.Cut(strings.TrimSpace(param), "=")
		if !found || !strings.EqualFold(name, "delay") {
			continue
		}
		if delay, err := strconv.Atoi(value); err == nil && delay > 0 {
			return time.Duration(delay) * time.Second
		}
	}
	return 0
}
