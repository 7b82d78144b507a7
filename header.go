package autocache

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CacheUntilHeader is stored with every cached response.
// Its value is the expiry of the entry in milliseconds since the Unix epoch.
const CacheUntilHeader = "X-Autocache-lib-cache-until"

// setCacheUntil replaces any existing expiry of h with until.
func setCacheUntil(h http.Header, until time.Time) {
	h.Set(CacheUntilHeader, strconv.FormatInt(until.UnixMilli(), 10))
}

// cacheUntil returns the stored expiry of h in milliseconds.
// A missing or empty header is 0 and anything that is not a number is NaN,
// so neither is ever later than the current time.
func cacheUntil(h http.Header) float64 {
	value := strings.TrimSpace(h.Get(CacheUntilHeader))
	if value == "" {
		return 0
	}
	until, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return math.NaN()
	}
	return until
}

// isFresh reports whether the stored response with header h may still be served at now.
func isFresh(h http.Header, now time.Time) bool {
	return cacheUntil(h) > float64(now.UnixMilli())
}
