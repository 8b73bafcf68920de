// Package proxytest provides in-process fixtures for exercising a
// full balancebeam proxy against fake upstreams over real TCP
// sockets, without shelling out to a built binary.
//
// Grounded on the Rust starter code's tests/common package
// (original_source/proj-2/balancebeam/tests/common/{echo_server,error_server,balancebeam}.rs):
// an EchoServer that reflects the request back as the response body
// and counts requests received, an ErrorServer that always answers
// 500, and a harness that starts a balancebeam instance pointed at
// a set of upstreams. Here everything runs as goroutines within the
// test process rather than as a spawned child process, since the
// library is already in-process Go and a subprocess harness would
// only add process-management code the tests don't need.
package proxytest

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/balancebeam/balancebeam/internal/healthcheck"
	"github.com/balancebeam/balancebeam/internal/httpmsg"
	"github.com/balancebeam/balancebeam/internal/proxy"
	"github.com/balancebeam/balancebeam/internal/ratelimit"
	"github.com/balancebeam/balancebeam/internal/upstream"
)

// EchoUpstream reflects every request back as the response body,
// formatted as "<method> <target> <version>\n<headers>\n\n<body>",
// the same shape the Rust EchoServer produces.
type EchoUpstream struct {
	Addr string

	requestsReceived atomic.Int64

	ln net.Listener
}

// NewEchoUpstream starts an echo upstream on an OS-assigned port.
func NewEchoUpstream(t *testing.T) *EchoUpstream {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("proxytest: listening for echo upstream: %v", err)
	}
	e := &EchoUpstream{Addr: ln.Addr().String(), ln: ln}
	go e.serve()
	t.Cleanup(func() { _ = e.ln.Close() })
	return e
}

// RequestsReceived reports how many requests this upstream has
// served so far.
func (e *EchoUpstream) RequestsReceived() int64 { return e.requestsReceived.Load() }

// Close stops accepting new connections, simulating the upstream
// going away out from under the proxy.
func (e *EchoUpstream) Close() error { return e.ln.Close() }

func (e *EchoUpstream) serve() {
	for {
		conn, err := e.ln.Accept()
		if err != nil {
			return
		}
		go e.handle(conn)
	}
}

func (e *EchoUpstream) handle(conn net.Conn) {
	defer conn.Close()
	for {
		req, err := httpmsg.ReadRequest(conn)
		if err != nil {
			return
		}
		e.requestsReceived.Add(1)

		body := fmt.Sprintf("%s %s %s\n", req.Method, req.Target, req.Version)
		for _, f := range req.Headers {
			body += fmt.Sprintf("%s: %s\n", f.Name, f.Value)
		}
		body += "\n"
		body += string(req.Body)

		resp := &httpmsg.Response{
			StatusCode: 200,
			Reason:     "OK",
			Version:    "HTTP/1.1",
		}
		resp.Headers.Add("Content-Type", "text/plain")
		resp.Headers.Add("Content-Length", fmt.Sprintf("%d", len(body)))
		resp.Body = []byte(body)

		if err := httpmsg.WriteResponse(conn, resp); err != nil {
			return
		}
	}
}

// ErrorUpstream answers every request with a 500, and counts the
// proxied requests it receives (those carrying X-Forwarded-For), so
// active health-check probes sent straight to it are not counted.
type ErrorUpstream struct {
	Addr string

	requestsReceived atomic.Int64

	ln net.Listener
}

// NewErrorUpstream starts an error upstream on an OS-assigned port.
func NewErrorUpstream(t *testing.T) *ErrorUpstream {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("proxytest: listening for error upstream: %v", err)
	}
	e := &ErrorUpstream{Addr: ln.Addr().String(), ln: ln}
	go e.serve()
	t.Cleanup(func() { _ = e.ln.Close() })
	return e
}

// RequestsReceived reports how many proxied requests this upstream
// has served so far; health-check probes are not included.
func (e *ErrorUpstream) RequestsReceived() int64 { return e.requestsReceived.Load() }

func (e *ErrorUpstream) serve() {
	for {
		conn, err := e.ln.Accept()
		if err != nil {
			return
		}
		go e.handle(conn)
	}
}

func (e *ErrorUpstream) handle(conn net.Conn) {
	defer conn.Close()
	for {
		req, err := httpmsg.ReadRequest(conn)
		if err != nil {
			return
		}
		if _, proxied := req.Headers.Get("X-Forwarded-For"); proxied {
			e.requestsReceived.Add(1)
		}
		resp := httpmsg.NewPlainTextError(500, "Internal Server Error")
		if err := httpmsg.WriteResponse(conn, resp); err != nil {
			return
		}
	}
}

// Options configures a Proxy fixture, mirroring BalanceBeam::new's
// parameters in the Rust harness.
type Options struct {
	Upstreams                 []string
	ActiveHealthCheckInterval time.Duration
	ActiveHealthCheckPath     string
	MaxRequestsPerMinute      int64
}

// Proxy is a running balancebeam instance bound to an OS-assigned
// port, torn down automatically at test cleanup.
type Proxy struct {
	Addr string
	Pool *upstream.Pool

	ln net.Listener
}

// NewProxy starts a balancebeam listener per opts. The active
// health-check worker, if enabled, is started as well and stopped at
// cleanup.
func NewProxy(t *testing.T, opts Options) *Proxy {
	t.Helper()

	pool := upstream.NewPool(opts.Upstreams)

	var limiter ratelimit.Allower = ratelimit.NoopLimiter{}
	if opts.MaxRequestsPerMinute > 0 {
		rl := ratelimit.NewLimiter(opts.MaxRequestsPerMinute)
		limiter = rl
	}

	log := zap.NewNop()
	handler := &proxy.Handler{Pool: pool, RateLimiter: limiter, Log: log}
	listener := &proxy.Listener{Handler: handler, Log: log}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("proxytest: listening for proxy: %v", err)
	}

	p := &Proxy{Addr: ln.Addr().String(), Pool: pool, ln: ln}
	go func() { _ = listener.Serve(ln) }()
	t.Cleanup(func() { _ = p.ln.Close() })

	if opts.ActiveHealthCheckInterval > 0 {
		path := opts.ActiveHealthCheckPath
		if path == "" {
			path = "/"
		}
		worker := &healthcheck.Worker{Pool: pool, Interval: opts.ActiveHealthCheckInterval, Path: path, Log: log}
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		go func() { _ = worker.Run(ctx) }()
	}

	return p
}
