package httpmsg

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

// Request is an HTTP/1.1 request read from or destined for a raw byte
// stream. Headers preserve wire order; Body is fully buffered.
type Request struct {
	Method  string
	Target  string
	Version string
	Headers Headers
	Body    []byte
}

// FormatRequestLine renders the request line exactly as it appears on
// the wire (without the trailing CRLF).
func FormatRequestLine(r *Request) string {
	return fmt.Sprintf("%s %s %s", r.Method, r.Target, httpVersion)
}

func parseRequestHead(buf []byte) (*parsedHead, parseStatus) {
	end := splitHeaderBlock(buf)
	if end == -1 {
		return nil, statusPartial
	}
	block := buf[:end]
	lines := splitLines(block)
	if len(lines) < 1 {
		return nil, statusMalformed
	}
	requestLine := lines[0]
	parts := strings.SplitN(string(requestLine), " ", 3)
	if len(parts) != 3 {
		return nil, statusMalformed
	}
	method, target, version := parts[0], parts[1], parts[2]
	if method == "" || target == "" {
		return nil, statusMalformed
	}
	if version != "HTTP/1.1" && version != "HTTP/1.0" {
		return nil, statusMalformed
	}

	headerLines := lines[1 : len(lines)-2] // drop request line and the two trailing empty strings from "\r\n\r\n"
	headers, ok := parseHeaderLines(headerLines)
	if !ok {
		return nil, statusMalformed
	}
	if hasConflictingBodyFraming(headers) {
		return nil, statusMalformed
	}

	return &parsedHead{
		method:    method,
		target:    target,
		version:   httpVersion,
		headers:   headers,
		headerLen: end,
	}, statusComplete
}

// ReadRequest reads one HTTP/1.1 request from stream: the request
// line and headers (looping over partial reads, bounded by
// MaxHeaderSize), followed by the body if Content-Length says there
// is one.
func ReadRequest(stream io.Reader) (*Request, error) {
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

		h, status := parseRequestHead(buf[:bytesRead])
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

	req := &Request{
		Method:  head.method,
		Target:  head.target,
		Version: head.version,
		Headers: head.headers,
	}

	leftover := append([]byte(nil), buf[head.headerLen:bytesRead]...)

	contentLen, has, err := contentLength(req.Headers)
	if err != nil {
		return nil, err
	}
	if !has {
		req.Body = leftover
		return req, nil
	}
	if contentLen > MaxBodySize {
		return nil, fmt.Errorf("%w: content-length %s exceeds the %s limit",
			ErrBodyTooLarge, humanize.Bytes(uint64(contentLen)), humanize.Bytes(MaxBodySize))
	}

	body := leftover
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
	req.Body = body
	return req, nil
}

// WriteRequest serializes req and writes it to stream.
func WriteRequest(stream io.Writer, req *Request) error {
	w := bufio.NewWriter(stream)
	if _, err := w.WriteString(FormatRequestLine(req)); err != nil {
		return &ConnectionError{Cause: err}
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return &ConnectionError{Cause: err}
	}
	for _, f := range req.Headers {
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", f.Name, f.Value); err != nil {
			return &ConnectionError{Cause: err}
		}
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return &ConnectionError{Cause: err}
	}
	if len(req.Body) > 0 {
		if _, err := w.Write(req.Body); err != nil {
			return &ConnectionError{Cause: err}
		}
	}
	if err := w.Flush(); err != nil {
		return &ConnectionError{Cause: err}
	}
	return nil
}

