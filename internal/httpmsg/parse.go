package httpmsg

import (
	"bytes"
	"strconv"
	"strings"
)

// parseStatus is the outcome of attempting to parse a prefix of the
// accumulated read buffer as a start line plus headers.
type parseStatus int

const (
	statusPartial parseStatus = iota
	statusComplete
	statusMalformed
)

// parsedHead is the start line plus headers recovered from the
// beginning of a message, before any body bytes are considered.
type parsedHead struct {
	// requestLine fields
	method string
	target string
	// statusLine fields
	statusCode int
	reason     string

	version string
	headers Headers

	// headerLen is the number of bytes the start line and headers
	// occupied, i.e. the offset of the first body byte.
	headerLen int
}

// splitHeaderBlock finds the blank-line terminator of the header
// block. It returns the index just past the terminating CRLFCRLF, or
// -1 if the terminator hasn't arrived yet.
func splitHeaderBlock(buf []byte) int {
	idx := bytes.Index(buf, []byte("\r\n\r\n"))
	if idx == -1 {
		return -1
	}
	return idx + 4
}

// parseHeaderLines parses the header field lines between the start
// line and the blank-line terminator. Folded (obsolete) header
// continuation lines are not supported, matching a strict HTTP/1.1
// parser.
func parseHeaderLines(lines [][]byte) (Headers, bool) {
	var headers Headers
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return nil, false
		}
		name := string(bytes.TrimSpace(line[:colon]))
		if name == "" || strings.ContainsAny(name, " \t") {
			return nil, false
		}
		value := string(bytes.TrimSpace(line[colon+1:]))
		headers.Add(name, value)
		if len(headers) > MaxHeaderCount {
			return nil, false
		}
	}
	return headers, true
}

// hasConflictingBodyFraming rejects a message that advertises both
// Content-Length and a chunked Transfer-Encoding, per the spec's
// design note resolving that open question as MalformedMessage.
func hasConflictingBodyFraming(h Headers) bool {
	_, hasCL := h.Get("Content-Length")
	te, hasTE := h.Get("Transfer-Encoding")
	return hasCL && hasTE && strings.Contains(strings.ToLower(te), "chunked")
}

// contentLength extracts and validates the Content-Length header. It
// returns (value, true, nil) if present and valid, (0, false, nil) if
// absent, or an error if present but not a non-negative decimal
// integer.
func contentLength(h Headers) (int, bool, error) {
	v, ok := h.Get("Content-Length")
	if !ok {
		return 0, false, nil
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false, ErrInvalidContentLength
	}
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0, false, ErrInvalidContentLength
		}
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false, ErrInvalidContentLength
	}
	return n, true, nil
}

func splitLines(block []byte) [][]byte {
	return bytes.Split(block, []byte("\r\n"))
}
