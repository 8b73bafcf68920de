// Package healthcheck implements the active health-check loop:
// periodically issuing a GET to every configured upstream and
// updating its liveness in the shared upstream.Pool. A 2xx response
// is alive; everything else, including 5xx, is dead. There is no
// content-string matching or DNS/SRV resolution.
package healthcheck

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/balancebeam/balancebeam/internal/httpmsg"
	"github.com/balancebeam/balancebeam/internal/metrics"
	"github.com/balancebeam/balancebeam/internal/upstream"
)

// Worker runs the active health-check loop for as long as its
// context is live. Rounds never overlap: it probes every upstream
// sequentially before sleeping again.
type Worker struct {
	Pool     *upstream.Pool
	Interval time.Duration
	Path     string
	Log      *zap.Logger
}

// Run blocks until ctx is cancelled. It performs one round
// immediately, then one round per Interval.
func (w *Worker) Run(ctx context.Context) error {
	if w.Path == "" {
		w.Path = "/"
	}
	w.runRound(ctx)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.runRound(ctx)
		}
	}
}

func (w *Worker) runRound(ctx context.Context) {
	for i := 0; i < w.Pool.Len(); i++ {
		host := w.Pool.Host(i)
		if host == nil {
			continue
		}
		if w.probe(ctx, host.Addr) {
			w.Pool.MarkAlive(i)
			metrics.UpstreamLive.WithLabelValues(host.Addr).Set(1)
		} else {
			w.Pool.MarkDead(i)
			metrics.UpstreamLive.WithLabelValues(host.Addr).Set(0)
		}
	}
}

// probe opens a fresh TCP connection to addr, issues a GET for
// w.Path with Host set to addr, and reports whether the response
// status was 2xx. Any I/O failure counts as unhealthy.
func (w *Worker) probe(ctx context.Context, addr string) bool {
	dialer := net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		w.logf(addr, "dial failed: %v", err)
		return false
	}
	defer conn.Close()

	req := &httpmsg.Request{
		Method:  http.MethodGet,
		Target:  w.Path,
		Version: "HTTP/1.1",
	}
	req.Headers.Add("Host", addr)

	if err := httpmsg.WriteRequest(conn, req); err != nil {
		w.logf(addr, "write failed: %v", err)
		return false
	}

	resp, err := httpmsg.ReadResponse(conn, http.MethodGet)
	if err != nil {
		w.logf(addr, "read failed: %v", err)
		return false
	}

	alive := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !alive && w.Log != nil {
		w.Log.Debug("upstream health check returned non-2xx",
			zap.String("upstream", addr), zap.Int("status", resp.StatusCode))
	}
	return alive
}

func (w *Worker) logf(addr, format string, args ...any) {
	if w.Log == nil {
		return
	}
	w.Log.Debug(fmt.Sprintf("upstream health check: %s", fmt.Sprintf(format, args...)),
		zap.String("upstream", addr))
}
