package cacheability

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/always-cache/autocache/rfc9111"
)

var now = time.UnixMilli(1_700_000_000_000)

func header(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Add(kv[i], kv[i+1])
	}
	return h
}

func TestDecide(t *testing.T) {
	future := now.Add(time.Hour).Truncate(time.Second)
	past := now.Add(-time.Hour).Truncate(time.Second)

	tests := []struct {
		name   string
		header http.Header
		want   Decision
	}{
		{"public max-age", header("Cache-Control", "public, max-age=60"), CacheUntil(now.Add(60 * time.Millisecond))},
		{"max-age before public", header("Cache-Control", "max-age=60,public"), CacheUntil(now.Add(60 * time.Millisecond))},
		{"private", header("Cache-Control", "private"), DoNotCache},
		{"no-store", header("Cache-Control", "no-store"), DoNotCache},
		{"no-cache", header("Cache-Control", "no-cache"), DoNotCache},
		{"public max-age zero", header("Cache-Control", "public, max-age=0"), DoNotCache},
		{"public without max-age", header("Cache-Control", "public"), DoNotCache},
		{"max-age without public", header("Cache-Control", "max-age=600"), DoNotCache},
		{"public non-numeric max-age", header("Cache-Control", "public, max-age=soon"), DoNotCache},
		{"public negative max-age", header("Cache-Control", "public, max-age=-5"), DoNotCache},
		{"public bare max-age", header("Cache-Control", "public, max-age"), DoNotCache},
		{"first max-age wins", header("Cache-Control", "public, max-age=5, max-age=500"), CacheUntil(now.Add(5 * time.Millisecond))},
		{"fractional max-age", header("Cache-Control", "public, max-age=1.5"), CacheUntil(now.Add(1500 * time.Microsecond))},
		{"public split over field lines", header("Cache-Control", "public", "Cache-Control", "max-age=10"), CacheUntil(now.Add(10 * time.Millisecond))},
		{"uppercase public", header("Cache-Control", "PUBLIC, max-age=60"), DoNotCache},
		{"private ignores expires", header("Cache-Control", "private", "Expires", rfc9111.ToHttpDate(future)), DoNotCache},
		{"future expires", header("Expires", rfc9111.ToHttpDate(future)), CacheUntil(future)},
		{"past expires", header("Expires", rfc9111.ToHttpDate(past)), CacheUntil(past)},
		{"invalid expires", header("Expires", "0"), CacheUntil(time.Time{})},
		{"no headers", header(), DoNotCache},
		{"unrelated headers", header("Content-Type", "text/plain"), DoNotCache},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.header, now)
			assert.Equal(t, tt.want.Cache, got.Cache)
			assert.True(t, tt.want.Until.Equal(got.Until), "until is %s, want %s", got.Until, tt.want.Until)
		})
	}
}

func TestDecideIsPure(t *testing.T) {
	h := header("Cache-Control", "public, max-age=60", "Expires", "Thu, 01 Dec 1994 16:00:00 GMT")
	before := h.Clone()

	first := Decide(h, now)
	second := Decide(h, now)

	assert.Equal(t, first, second)
	assert.Equal(t, before, h)
}

func TestPolicyMaxAgeUnit(t *testing.T) {
	h := header("Cache-Control", "public, max-age=60")

	got := Policy{MaxAgeUnit: time.Second}.Decide(h, now)

	assert.True(t, got.Cache)
	assert.Equal(t, now.Add(time.Minute), got.Until)
}

func TestPolicyHugeMaxAge(t *testing.T) {
	h := header("Cache-Control", "public, max-age=1e300")

	got := Policy{MaxAgeUnit: time.Second}.Decide(h, now)

	assert.True(t, got.Cache)
	assert.True(t, got.Until.After(now))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "do-not-cache", DoNotCache.String())
	assert.Equal(t, "cache-until=1700000000000", CacheUntil(now).String())
}
