package rfc9111

import (
	"net/http"
	"net/url"
)

// §  4.4.  Invalidating Stored Responses
// §
// §     Because unsafe request methods (Section 9.2.1 of [HTTP]) such as PUT,
// §     POST, or DELETE have the potential for changing state on the origin
// §     server, intervening caches are required to invalidate stored
// §     responses to keep their contents up to date.

// UnsafeRequest reports whether the method of req is not known to be safe.
func UnsafeRequest(req *http.Request) bool {
	switch req.Method {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}

// §     A cache MUST invalidate the target URI (Section 7.1 of [HTTP]) when
// §     it receives a non-error status code in response to an unsafe request
// §     method (including methods whose safety is unknown).
// §
// §     A cache MAY invalidate other URIs when it receives a non-error status
// §     code in response to an unsafe request method (including methods whose
// §     safety is unknown).  In particular, the URI(s) in the Location and
// §     Content-Location response header fields (if present) are candidates
// §     for invalidation; other URIs might be discovered through mechanisms
// §     not specified in this document.  However, a cache MUST NOT trigger an
// §     invalidation under these conditions if the origin (Section 4.3.1 of
// §     [HTTP]) of the URI to be invalidated differs from that of the target
// §     URI (Section 7.1 of [HTTP]).  This helps prevent denial-of-service
// §     attacks.

// GetInvalidateURIs returns the request URIs (path and query) to invalidate
// after res was received for req.
// It returns nil for safe requests and error responses.
func GetInvalidateURIs(req *http.Request, res *http.Response) []string {
	if !UnsafeRequest(req) || !nonErrorStatus(res.StatusCode) {
		return nil
	}
	uris := []string{req.URL.RequestURI()}
	for _, field := range []string{"Location", "Content-Location"} {
		value := res.Header.Get(field)
		if value == "" {
			continue
		}
		candidate, err := req.URL.Parse(value)
		if err != nil || !sameOrigin(req, candidate) {
			continue
		}
		uri := candidate.RequestURI()
		if !contains(uris, uri) {
			uris = append(uris, uri)
		}
	}
	return uris
}

// §     A "non-error response" is one with a 2xx (Successful) or 3xx
// §     (Redirection) status code.

func nonErrorStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 400
}

// sameOrigin compares u to the target URI of req.
// Server-side requests usually carry no scheme or host in their URL,
// in which case the Host header is the origin.
func sameOrigin(req *http.Request, u *url.URL) bool {
	if u.Host == "" {
		return true
	}
	host := req.URL.Host
	if host == "" {
		host = req.Host
	}
	if u.Host != host {
		return false
	}
	return req.URL.Scheme == "" || u.Scheme == req.URL.Scheme
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
