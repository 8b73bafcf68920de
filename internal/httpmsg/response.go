package httpmsg

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Response is an HTTP/1.1 response read from or destined for a raw
// byte stream.
type Response struct {
	StatusCode int
	Reason     string
	Version    string
	Headers    Headers
	Body       []byte
}

// FormatStatusLine renders the status line exactly as it appears on
// the wire (without the trailing CRLF).
func FormatStatusLine(r *Response) string {
	return fmt.Sprintf("%s %d %s", httpVersion, r.StatusCode, r.Reason)
}

func parseResponseHead(buf []byte) (*parsedHead, parseStatus) {
	end := splitHeaderBlock(buf)
	if end == -1 {
		return nil, statusPartial
	}
	block := buf[:end]
	lines := splitLines(block)

	statusLine := lines[0]
	parts := strings.SplitN(string(statusLine), " ", 3)
	if len(parts) < 2 {
		return nil, statusMalformed
	}
	version := parts[0]
	if version != "HTTP/1.1" && version != "HTTP/1.0" {
		return nil, statusMalformed
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 599 {
		return nil, statusMalformed
	}
	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}

	headerLines := lines[1 : len(lines)-2]
	headers, ok := parseHeaderLines(headerLines)
	if !ok {
		return nil, statusMalformed
	}
	if hasConflictingBodyFraming(headers) {
		return nil, statusMalformed
	}

	return &parsedHead{
		statusCode: code,
		reason:     reason,
		version:    httpVersion,
		headers:    headers,
		headerLen:  end,
	}, statusComplete
}

// bodylessStatus reports whether a response with this status code
// never carries a body, independent of the originating request
// method.
func bodylessStatus(code int) bool {
	return code < 200 || code == http.StatusNoContent || code == http.StatusNotModified
}

// ReadResponse reads one HTTP/1.1 response from stream. requestMethod
// is the method of the request this is a response to, since HEAD
// responses never carry a body regardless of status or headers.
func ReadResponse(stream io.Reader, requestMethod string) (*Response, error) {
	buf := make([]byte, MaxHeaderSize)
	bytesRead := 0

	var head *parsedHead
	for {
		n, err := stream.Read(buf[bytesRead:])
		if n == 0 {
			if err != nil && err != io.EOF {
				return nil, &ConnectionError{Cause: err}
			}
			return nil, &IncompleteMessageError{BytesRead: bytesRead}
		}
		bytesRead += n

		h, status := parseResponseHead(buf[:bytesRead])
		switch status {
		case statusComplete:
			head = h
		case statusMalformed:
			return nil, ErrMalformedMessage
		case statusPartial:
			if bytesRead >= MaxHeaderSize {
				return nil, ErrMalformedMessage
			}
			continue
		}
		break
	}

	resp := &Response{
		StatusCode: head.statusCode,
		Reason:     head.reason,
		Version:    head.version,
		Headers:    head.headers,
	}

	leftover := append([]byte(nil), buf[head.headerLen:bytesRead]...)

	if strings.EqualFold(requestMethod, http.MethodHead) || bodylessStatus(resp.StatusCode) {
		resp.Body = nil
		return resp, nil
	}

	contentLen, has, err := contentLength(resp.Headers)
	if err != nil {
		return nil, err
	}

	body := leftover
	if has {
		if len(body) > contentLen {
			return nil, ErrContentLengthMismatch
		}
		for len(body) < contentLen {
			chunk := make([]byte, min(512, contentLen-len(body)))
			n, err := stream.Read(chunk)
			if n == 0 {
				if err != nil && err != io.EOF {
					return nil, &ConnectionError{Cause: err}
				}
				return nil, ErrContentLengthMismatch
			}
			if len(body)+n > contentLen {
				return nil, ErrContentLengthMismatch
			}
			body = append(body, chunk[:n]...)
		}
		resp.Body = body
		return resp, nil
	}

	// No Content-Length: read until the peer closes the connection,
	// bounded by MaxBodySize.
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("%w: already read %s, limit is %s",
			ErrResponseBodyTooLarge, humanize.Bytes(uint64(len(body))), humanize.Bytes(MaxBodySize))
	}
	chunk := make([]byte, 512)
	for {
		n, err := stream.Read(chunk)
		if n > 0 {
			if len(body)+n > MaxBodySize {
				return nil, ErrResponseBodyTooLarge
			}
			body = append(body, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	resp.Body = body
	return resp, nil
}

// WriteResponse serializes resp and writes it to stream.
func WriteResponse(stream io.Writer, resp *Response) error {
	w := bufio.NewWriter(stream)
	if _, err := w.WriteString(FormatStatusLine(resp)); err != nil {
		return &ConnectionError{Cause: err}
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return &ConnectionError{Cause: err}
	}
	for _, f := range resp.Headers {
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", f.Name, f.Value); err != nil {
			return &ConnectionError{Cause: err}
		}
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return &ConnectionError{Cause: err}
	}
	if len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil {
			return &ConnectionError{Cause: err}
		}
	}
	if err := w.Flush(); err != nil {
		return &ConnectionError{Cause: err}
	}
	return nil
}

// NewPlainTextError builds a response shaped like the spec's 429/502
// errors: a plaintext body "HTTP <code> <reason>", Content-Type
// text/plain, and Content-Length set. Mirrors the Rust starter code's
// make_http_error helper so both error paths share one code path.
func NewPlainTextError(code int, reason string) *Response {
	body := []byte(fmt.Sprintf("HTTP %d %s", code, reason))
	var headers Headers
	headers.Add("Content-Type", "text/plain")
	headers.Add("Content-Length", strconv.Itoa(len(body)))
	return &Response{
		StatusCode: code,
		Reason:     reason,
		Version:    httpVersion,
		Headers:    headers,
		Body:       body,
	}
}
