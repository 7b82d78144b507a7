package serializer

import (
	"bufio"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestResponseToBytesBodyIntact(t *testing.T) {
	response := "HTTP/1.1 200 OK\r\nServer: Test\r\nContent-Length: 16\r\n\r\nThis is the body"

	res, err := http.ReadResponse(bufio.NewReader(strings.NewReader(response)), nil)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}

	_, err = ResponseToBytes(res)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	if string(body) != "This is the body" {
		t.Fatalf("Body: %s", body)
	}
}

func TestRoundTrip(t *testing.T) {
	header := http.Header{}
	header.Add("Content-Type", "text/test")
	header.Add("Set-Cookie", "a=1")
	header.Add("Set-Cookie", "b=2")
	res := RecordedToResponse(http.StatusCreated, header, []byte("Hello world"), nil)

	bts, err := ResponseToBytes(res)
	if err != nil {
		t.Fatalf("Error creating bytes: %+v", err)
	}
	res2, err := BytesToResponse(bts, nil)
	if err != nil {
		t.Fatalf("Error creating response: %+v", err)
	}

	if res2.StatusCode != http.StatusCreated {
		t.Fatalf("Status is %d", res2.StatusCode)
	}
	if ct := res2.Header.Get("Content-Type"); ct != "text/test" {
		t.Fatalf("Content-Type is %s", ct)
	}
	if cookies := res2.Header.Values("Set-Cookie"); len(cookies) != 2 {
		t.Fatalf("Set-Cookie is %v", cookies)
	}
	body, _ := io.ReadAll(res2.Body)
	if string(body) != "Hello world" {
		t.Fatalf("Body: %s", body)
	}
}

func TestChunkedResponseIsStoredWithLength(t *testing.T) {
	header := http.Header{"Transfer-Encoding": {"chunked"}}
	res := RecordedToResponse(http.StatusOK, header, []byte("chunks"), nil)

	bts, err := ResponseToBytes(res)
	if err != nil {
		t.Fatalf("Error creating bytes: %+v", err)
	}
	if strings.Contains(string(bts), "chunked") {
		t.Fatalf("Bytes still chunked: %q", bts)
	}
	res2, err := BytesToResponse(bts, nil)
	if err != nil {
		t.Fatalf("Error creating response: %+v", err)
	}
	if res2.ContentLength != 6 {
		t.Fatalf("Content length is %d", res2.ContentLength)
	}
}

func TestRecordedResponseCopiesHeader(t *testing.T) {
	header := http.Header{"X-Test": {"1"}}
	res := RecordedToResponse(http.StatusOK, header, nil, nil)
	res.Header.Set("X-Test", "2")
	if header.Get("X-Test") != "1" {
		t.Fatal("Recorded header was modified")
	}
}

func TestBytesToResponseError(t *testing.T) {
	if _, err := BytesToResponse([]byte("garbage"), nil); err == nil {
		t.Fatal("Expected error for garbage bytes")
	}
}
