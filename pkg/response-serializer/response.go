package serializer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// ResponseToBytes converts a response to a byte slice.
// It returns the HTTP/1.1 representation of the response.
// The response body is read and set back, so the response can still be used afterwards.
func ResponseToBytes(res *http.Response) ([]byte, error) {
	var body []byte
	if res.Body != nil {
		var err error
		body, err = io.ReadAll(res.Body)
		res.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
	}
	// set response body back
	res.Body = io.NopCloser(bytes.NewReader(body))

	// write a copy so that the framing headers of the original are left alone
	out := *res
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.ContentLength = int64(len(body))
	out.TransferEncoding = nil
	out.Header = res.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	out.Header.Del("Transfer-Encoding")
	out.Header.Set("Content-Length", strconv.Itoa(len(body)))
	if out.ProtoMajor == 0 {
		out.ProtoMajor, out.ProtoMinor = 1, 1
	}

	buf := &bytes.Buffer{}
	if err := out.Write(buf); err != nil {
		return nil, fmt.Errorf("write response: %w", err)
	}
	return buf.Bytes(), nil
}

// BytesToResponse converts a byte slice to a http.Response.
// The body is fully buffered, so it can be read after the bytes are gone.
func BytesToResponse(b []byte, req *http.Request) (*http.Response, error) {
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), req)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	res.Body = io.NopCloser(bytes.NewReader(body))
	return res, nil
}

// RecordedToResponse creates a response out of a recorded status, header and body.
// The header is copied.
func RecordedToResponse(status int, header http.Header, body []byte, req *http.Request) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
