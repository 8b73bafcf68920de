package httpmsg

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRequestRoundTrip covers invariant 1: a request written with
// WriteRequest and read back with ReadRequest reproduces the same
// method, target, headers (in order), and body.
func TestRequestRoundTrip(t *testing.T) {
	req := &Request{
		Method:  "POST",
		Target:  "/widgets",
		Version: httpVersion,
		Body:    []byte("Hello world!"),
	}
	req.Headers.Add("Host", "example.com")
	req.Headers.Add("Content-Length", "12")
	req.Headers.Add("X-Custom", "value")

	var buf bytes.Buffer
	if err := WriteRequest(&buf, req); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}

	got, err := ReadRequest(&buf)
	require.NoError(t, err)

	require.Equal(t, req.Method, got.Method)
	require.Equal(t, req.Target, got.Target)
	require.Equal(t, req.Version, got.Version)
	require.True(t, bytes.Equal(got.Body, req.Body))
	require.Equal(t, []Field(req.Headers), []Field(got.Headers))
}

// TestResponseRoundTrip mirrors TestRequestRoundTrip for responses.
func TestResponseRoundTrip(t *testing.T) {
	resp := &Response{
		StatusCode: 200,
		Reason:     "OK",
		Version:    httpVersion,
		Body:       []byte("body bytes"),
	}
	resp.Headers.Add("Content-Length", "10")
	resp.Headers.Add("Content-Type", "text/plain")

	var buf bytes.Buffer
	if err := WriteResponse(&buf, resp); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}

	got, err := ReadResponse(&buf, "GET")
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if got.StatusCode != resp.StatusCode || got.Reason != resp.Reason {
		t.Fatalf("status line mismatch: got %+v", got)
	}
	if !bytes.Equal(got.Body, resp.Body) {
		t.Fatalf("body mismatch: got %q, want %q", got.Body, resp.Body)
	}
}

// TestHeadersExtend covers invariant 2: extending an absent header
// just adds it, extending a present one appends ", value".
func TestHeadersExtend(t *testing.T) {
	var h Headers
	h.Extend("X-Forwarded-For", "10.0.0.1")
	if got := h.GetDefault("X-Forwarded-For"); got != "10.0.0.1" {
		t.Fatalf("got %q, want %q", got, "10.0.0.1")
	}

	h.Extend("X-Forwarded-For", "10.0.0.2")
	if got := h.GetDefault("X-Forwarded-For"); got != "10.0.0.1, 10.0.0.2" {
		t.Fatalf("got %q, want %q", got, "10.0.0.1, 10.0.0.2")
	}
}

// TestHeadersCaseInsensitiveLookup exercises Get/Set folding names
// case-insensitively, per RFC 7230.
func TestHeadersCaseInsensitiveLookup(t *testing.T) {
	var h Headers
	h.Add("Content-Type", "text/plain")
	if _, ok := h.Get("content-type"); !ok {
		t.Fatal("expected case-insensitive match")
	}
	h.Set("CONTENT-TYPE", "application/json")
	if h.Len() != 1 {
		t.Fatalf("Set should replace the existing field, got %d headers", h.Len())
	}
}

// TestReadRequestBodyTooLarge covers invariant 3: a declared
// Content-Length over MaxBodySize is rejected without reading the
// body.
func TestReadRequestBodyTooLarge(t *testing.T) {
	raw := strings.Builder{}
	raw.WriteString("POST /big HTTP/1.1\r\n")
	raw.WriteString("Content-Length: 20000000\r\n\r\n")

	_, err := ReadRequest(strings.NewReader(raw.String()))
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

// TestReadRequestMalformedOnConflictingFraming resolves the open
// question: Content-Length plus chunked Transfer-Encoding together is
// malformed.
func TestReadRequestMalformedOnConflictingFraming(t *testing.T) {
	raw := "POST /x HTTP/1.1\r\nContent-Length: 4\r\nTransfer-Encoding: chunked\r\n\r\nabcd"
	_, err := ReadRequest(strings.NewReader(raw))
	if !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
}

// TestReadRequestHeaderBufferOverflow resolves the other open
// question: if the header block never completes within MaxHeaderSize
// bytes, the message is malformed rather than left pending forever.
func TestReadRequestHeaderBufferOverflow(t *testing.T) {
	huge := "GET / HTTP/1.1\r\n" + strings.Repeat("X-Pad: a\r\n", MaxHeaderSize)
	_, err := ReadRequest(strings.NewReader(huge))
	if !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
}

// TestReadRequestCleanClose distinguishes a clean hang-up between
// requests (BytesRead == 0) from a mid-message drop.
func TestReadRequestCleanClose(t *testing.T) {
	_, err := ReadRequest(strings.NewReader(""))
	var incomplete *IncompleteMessageError
	if !errors.As(err, &incomplete) || incomplete.BytesRead != 0 {
		t.Fatalf("expected IncompleteMessageError{BytesRead: 0}, got %v", err)
	}
}

func TestFormatRequestLine(t *testing.T) {
	req := &Request{Method: "GET", Target: "/x", Version: httpVersion}
	if got, want := FormatRequestLine(req), "GET /x HTTP/1.1"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNewPlainTextError(t *testing.T) {
	resp := NewPlainTextError(429, "Too Many Requests")
	if resp.StatusCode != 429 {
		t.Fatalf("got status %d, want 429", resp.StatusCode)
	}
	if ct := resp.Headers.GetDefault("Content-Type"); ct != "text/plain" {
		t.Fatalf("got Content-Type %q, want text/plain", ct)
	}
	if !strings.Contains(string(resp.Body), "429") {
		t.Fatalf("expected body to mention the status code, got %q", resp.Body)
	}
}
