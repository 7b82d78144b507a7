// Package cacheability decides whether, and until when, a response may be cached
// based on its Cache-Control and Expires headers.
//
// The rules follow common CDN defaults:
//
//   - Cache-Control with "public" and a positive max-age is cached.
//   - Cache-Control without "public" (private, no-store, no-cache...) is not cached.
//   - Without Cache-Control, an Expires header is used as is.
//   - Without either header, the response is not cached.
//
// Status codes never make a response cacheable by default.
package cacheability

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/always-cache/autocache/rfc9111"
)

const (
	directivePublic = "public"
	directiveMaxAge = "max-age"
)

// Decision is the outcome of evaluating response headers.
// The zero value means "do not cache".
type Decision struct {
	// Cache is true if the response may be stored.
	Cache bool
	// Until is the absolute expiry of the stored response.
	Until time.Time
}

// DoNotCache is the decision to not store a response.
var DoNotCache = Decision{}

// CacheUntil returns the decision to store a response until t.
func CacheUntil(t time.Time) Decision {
	return Decision{Cache: true, Until: t}
}

func (d Decision) String() string {
	if !d.Cache {
		return "do-not-cache"
	}
	return "cache-until=" + strconv.FormatInt(d.Until.UnixMilli(), 10)
}

// Policy evaluates response headers.
type Policy struct {
	// MaxAgeUnit is the duration of one max-age unit.
	// Zero means time.Millisecond, i.e. the max-age value is added as is to a millisecond clock.
	// Set it to time.Second for max-age values interpreted as seconds.
	MaxAgeUnit time.Duration
}

// Decide evaluates the headers with the default policy.
func Decide(header http.Header, now time.Time) Decision {
	return Policy{}.Decide(header, now)
}

// Decide evaluates the headers of a response received at now.
// It is pure: the same headers and time always give the same decision.
func (p Policy) Decide(header http.Header, now time.Time) Decision {
	fieldLines := header.Values("Cache-Control")
	if len(fieldLines) == 0 {
		return decideExpires(header)
	}

	directives := rfc9111.SplitDirectives(fieldLines)
	if !directives.Has(directivePublic) {
		// private, no-store, no-cache etc. all end up here, Expires is not considered
		return DoNotCache
	}
	maxAge := 0.0
	if directive, ok := directives.First(directiveMaxAge); ok {
		maxAge = parseNumber(rfc9111.Argument(directive, directiveMaxAge))
	}
	// NaN compares false as well
	if maxAge > 0 {
		return CacheUntil(now.Add(p.lifetime(maxAge)))
	}
	return DoNotCache
}

// decideExpires uses the Expires header when there is no Cache-Control.
// An invalid date results in the zero time, i.e. an entry that is already expired.
func decideExpires(header http.Header) Decision {
	exp, present, _ := rfc9111.GetExpires(header)
	if !present {
		return DoNotCache
	}
	return CacheUntil(exp)
}

func (p Policy) lifetime(maxAge float64) time.Duration {
	unit := p.MaxAgeUnit
	if unit <= 0 {
		unit = time.Millisecond
	}
	lifetime := maxAge * float64(unit)
	if lifetime > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(lifetime)
}

// parseNumber converts a directive argument to a number.
// An empty argument is 0 and anything that is not a number is NaN.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return n
}
