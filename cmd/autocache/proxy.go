package main

import (
	"crypto/tls"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// newReverseProxy returns a proxy to the origin.
// If hostHeader is set, it is used as the Host header and TLS server name.
func newReverseProxy(origin *url.URL, hostHeader string) *httputil.ReverseProxy {
	transport := http.DefaultTransport
	if hostHeader != "" {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				ServerName: hostHeader,
			},
		}
	} else {
		hostHeader = origin.Host
	}
	return &httputil.ReverseProxy{
		Director:  createDirector(origin.Scheme, origin.Host, hostHeader),
		Transport: transport,
	}
}

func createDirector(scheme, host, hostHeader string) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = scheme
		req.URL.Host = host
		if hostHeader != "" {
			req.Host = hostHeader
		}
	}
}
