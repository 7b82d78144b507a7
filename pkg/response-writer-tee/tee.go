package tee

import (
	"bytes"
	"net/http"
)

// ResponseSaver is a wrapper around http.ResponseWriter that saves the response to a buffer.
// Everything is also written (tee'd) to the underlying http.ResponseWriter as it happens.
type ResponseSaver struct {
	rw           http.ResponseWriter
	b            *bytes.Buffer
	header       http.Header
	status       int
	wroteHeaders bool
	// header as it was when the status was sent
	sentHeader http.Header
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) Header() http.Header {
	return t.header
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) WriteHeader(statusCode int) {
	// informational responses are passed through but not recorded
	if statusCode >= 100 && statusCode < 200 && statusCode != http.StatusSwitchingProtocols {
		copyHeader(t.rw.Header(), t.header)
		t.rw.WriteHeader(statusCode)
		return
	}
	if t.wroteHeaders {
		return
	}
	// remember that we wrote the headers
	t.wroteHeaders = true
	// set the status code so we can return it later
	t.status = statusCode
	// later changes to the header map are not sent, so they are not recorded either
	t.sentHeader = t.header.Clone()
	copyHeader(t.rw.Header(), t.header)
	t.rw.WriteHeader(statusCode)
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) Write(b []byte) (int, error) {
	// write headers if not already written
	if !t.wroteHeaders {
		t.WriteHeader(http.StatusOK)
	}
	n, err := t.rw.Write(b)
	// save what the client got
	t.b.Write(b[:n])
	return n, err
}

// Flush implements http.Flusher if the underlying writer does.
func (t *ResponseSaver) Flush() {
	if !t.wroteHeaders {
		t.WriteHeader(http.StatusOK)
	}
	if f, ok := t.rw.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying writer for http.ResponseController.
func (t *ResponseSaver) Unwrap() http.ResponseWriter {
	return t.rw
}

// Body returns the recorded response body.
func (t *ResponseSaver) Body() []byte {
	return t.b.Bytes()
}

// StatusCode returns the status code of the response.
// If nothing was written, it is 200, as it would be for the client.
func (t *ResponseSaver) StatusCode() int {
	if !t.wroteHeaders {
		return http.StatusOK
	}
	return t.status
}

// RecordedHeader returns the header as it was sent to the client.
func (t *ResponseSaver) RecordedHeader() http.Header {
	if !t.wroteHeaders {
		return t.header.Clone()
	}
	return t.sentHeader
}

// NewResponseSaver returns a new ResponseSaver writing to w.
// Headers already set on w are kept and recorded as part of the response.
func NewResponseSaver(w http.ResponseWriter) *ResponseSaver {
	return &ResponseSaver{
		rw:     w,
		b:      &bytes.Buffer{},
		header: w.Header().Clone(),
	}
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		dst[k] = append([]string(nil), vv...)
	}
}
