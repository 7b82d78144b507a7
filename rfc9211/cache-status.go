package rfc9211

import (
	"strconv"
	"strings"
)

// §  2.  The Cache-Status HTTP Response Header Field
// §
// §     The Cache-Status HTTP response header field indicates how caches have
// §     handled that response and its corresponding request.
// §
// §     Its value is a List [STRUCTURED-FIELDS]:
// §
// §     Cache-Status   = sf-list
// §
// §     Each member of the List represents a cache that has handled the
// §     request.  The first member represents the cache closest to the origin
// §     server, and the last member represents the cache closest to the user
// §     (possibly including the user agent's cache itself, if it appends a
// §     value).

// CacheName is the identifier used as the list member of this cache.
const CacheName = "Autocache"

type Status string

const (
	StatusHit Status = "hit"
	StatusFwd Status = "fwd"
)

type FwdReason string

// §  2.2.  The fwd Parameter
const (
	// The cache was configured to not handle this request.
	FwdReasonBypass FwdReason = "bypass"
	// The request method's semantics require the request to be forwarded.
	FwdReasonMethod FwdReason = "method"
	// The cache did not contain any responses that matched the request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"
	// The cache contained a response that matched the request URI,
	// but it could not select a response based upon this request's
	// header fields and stored Vary header fields.
	FwdReasonVaryMiss FwdReason = "vary-miss"
	// The cache did not contain any responses that could be used.
	FwdReasonMiss FwdReason = "miss"
	// The cache was able to select a response for the request, but it was stale.
	FwdReasonStale FwdReason = "stale"
)

type CacheStatus struct {
	Status    Status
	FwdReason FwdReason
	// §  2.5.  The stored Parameter
	Stored bool
	// §  2.4.  The ttl Parameter
	// Only sent if HasTTL is set, since zero is a valid value.
	TimeToLive int
	HasTTL     bool
	// §  2.8.  The detail Parameter
	Detail string
}

func (cs *CacheStatus) Hit() {
	cs.Status = StatusHit
	cs.FwdReason = ""
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.Status = StatusFwd
	cs.FwdReason = reason
}

func (cs *CacheStatus) TTL(seconds int) {
	cs.TimeToLive = seconds
	cs.HasTTL = true
}

func (cs CacheStatus) String() string {
	var b strings.Builder
	b.WriteString(CacheName)
	switch {
	case cs.Status == StatusHit:
		b.WriteString("; hit")
	case cs.Status == StatusFwd && cs.FwdReason != "":
		b.WriteString("; fwd=" + string(cs.FwdReason))
	}
	if cs.HasTTL {
		b.WriteString("; ttl=" + strconv.Itoa(cs.TimeToLive))
	}
	if cs.Stored {
		b.WriteString("; stored")
	}
	if cs.Detail != "" {
		b.WriteString("; detail=" + strconv.Quote(cs.Detail))
	}
	return b.String()
}
