package cachekey

import (
	"net/http"
	"net/textproto"
	"sort"
	"strings"
)

const (
	partitionSeparator = ":"
	methodSeparator    = ":"
	varySeparator      = "\t"
	varyLineSeparator  = "\n"
	varyValueSeparator = ": "
)

type CacheKeyer struct {
	// Cache key prefix for this partition.
	// Keys of different partitions never collide.
	PartitionPrefix string
}

func NewCacheKeyer(partitionKey string) CacheKeyer {
	return CacheKeyer{
		PartitionPrefix: partitionKey + partitionSeparator,
	}
}

// GetKeyPrefix returns the cache key for a request without the vary headers (i.e. a key prefix).
// The returned key is suitable for finding all stored response variants for a particular request.
// The request is identified by its method and full URL, origin included.
// If the request has a `Cache-Key` header, that value is included in the key prefix.
func (c CacheKeyer) GetKeyPrefix(r *http.Request) string {
	key := c.PartitionPrefix + r.Method + methodSeparator + requestOrigin(r) + r.URL.RequestURI() + varySeparator
	if ck := r.Header.Get("Cache-Key"); ck != "" {
		key += ck
	}
	return key
}

// requestOrigin returns the scheme and host of the request URL.
// Server requests only carry the path, so the host comes from the Host header
// and the scheme from the connection.
func requestOrigin(r *http.Request) string {
	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	host := r.URL.Host
	if host == "" {
		host = r.Host
	}
	return strings.ToLower(scheme) + "://" + strings.ToLower(host)
}

// AddVaryKeys returns the full cache key (including vary headers) based on a previously generated
// cache key prefix and the request and response header involved.
// Every header named in the response Vary header is recorded, absent ones with an empty value,
// so that a later request only matches if it carries the same values.
func (c CacheKeyer) AddVaryKeys(prefix string, req *http.Request, resHeader http.Header) string {
	key := prefix
	for _, name := range varyNames(resHeader) {
		key = key + varyLineSeparator + strings.ToLower(name) + varyValueSeparator + strings.Join(req.Header.Values(name), ",")
	}
	return key
}

// GetVaryHeaders creates a http.Header instance containing all the vary keys included in a key.
func (c CacheKeyer) GetVaryHeaders(key string) http.Header {
	header := make(http.Header)
	lines := strings.Split(key, varyLineSeparator)
	for i := 1; i < len(lines); i++ {
		name, value, _ := strings.Cut(lines[i], varyValueSeparator)
		header.Add(name, value)
	}
	return header
}

// MatchesVary reports whether the request carries the same values for the vary headers
// recorded in the key.
func (c CacheKeyer) MatchesVary(key string, req *http.Request) bool {
	for name, values := range c.GetVaryHeaders(key) {
		if name == "*" {
			return false
		}
		if strings.Join(req.Header.Values(name), ",") != values[0] {
			return false
		}
	}
	return true
}

// varyNames returns the header names listed in Vary, canonicalized, deduplicated and sorted
// so the same response always produces the same key.
func varyNames(header http.Header) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, line := range header.Values("Vary") {
		for _, name := range strings.Split(line, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if name != "*" {
				name = textproto.CanonicalMIMEHeaderKey(name)
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
