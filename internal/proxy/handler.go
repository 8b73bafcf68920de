// Package proxy implements the per-connection pipeline: frame a
// request, apply the rate limiter, pick a live upstream with passive
// failover, forward, and stream the response back, then loop for the
// next request on the same client connection. Upstream connections
// are single-use; the wire framing is this repo's own hand-rolled
// codec (see internal/httpmsg), not net/http's.
package proxy

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/balancebeam/balancebeam/internal/httpmsg"
	"github.com/balancebeam/balancebeam/internal/metrics"
	"github.com/balancebeam/balancebeam/internal/ratelimit"
	"github.com/balancebeam/balancebeam/internal/upstream"
)

// Handler runs the per-connection state machine for one accepted
// client socket.
type Handler struct {
	Pool        *upstream.Pool
	RateLimiter ratelimit.Allower
	Log         *zap.Logger
	DialTimeout time.Duration
}

// Serve drives conn until the client disconnects or a protocol error
// forces the connection closed. It never returns an error the caller
// needs to act on; all failures are logged and the connection is
// closed.
func (h *Handler) Serve(conn net.Conn) {
	defer conn.Close()

	connID := uuid.NewString()
	clientIP, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		clientIP = conn.RemoteAddr().String()
	}

	log := h.Log.With(zap.String("conn_id", connID), zap.String("client_ip", clientIP))

	for {
		req, err := httpmsg.ReadRequest(conn)
		if err != nil {
			var incomplete *httpmsg.IncompleteMessageError
			if errors.As(err, &incomplete) && incomplete.BytesRead == 0 {
				// Client closed the connection cleanly between requests.
				return
			}
			log.Debug("closing connection after request read error", zap.Error(err))
			return
		}

		metrics.RequestsTotal.WithLabelValues(metrics.SanitizeMethod(req.Method)).Inc()

		if !h.serveOne(conn, req, clientIP, log) {
			return
		}
	}
}

// serveOne handles a single request already read off conn. It
// returns false if the connection must be closed because writing a
// response (relayed, 429 or 502) to the client failed, true if the
// handler should loop and read another request.
func (h *Handler) serveOne(conn net.Conn, req *httpmsg.Request, clientIP string, log *zap.Logger) bool {
	if h.RateLimiter != nil {
		if h.RateLimiter.Allow(clientIP) == ratelimit.TooMany {
			metrics.RateLimitRejections.Inc()
			resp := httpmsg.NewPlainTextError(http.StatusTooManyRequests, "Too Many Requests")
			if err := httpmsg.WriteResponse(conn, resp); err != nil {
				log.Debug("writing 429 response failed", zap.Error(err))
				return false
			}
			return true
		}
	}

	req.Headers.Extend("X-Forwarded-For", clientIP)

	upstreamConn, upstreamAddr, ok := h.connectToLiveUpstream(log)
	if !ok {
		resp := httpmsg.NewPlainTextError(http.StatusBadGateway, "Bad Gateway")
		if err := httpmsg.WriteResponse(conn, resp); err != nil {
			log.Debug("writing 502 response failed", zap.Error(err))
			return false
		}
		return true
	}
	defer upstreamConn.Close()

	if err := httpmsg.WriteRequest(upstreamConn, req); err != nil {
		log.Warn("forwarding request to upstream failed", zap.String("upstream", upstreamAddr), zap.Error(err))
		resp := httpmsg.NewPlainTextError(http.StatusBadGateway, "Bad Gateway")
		if werr := httpmsg.WriteResponse(conn, resp); werr != nil {
			return false
		}
		return true
	}

	resp, err := httpmsg.ReadResponse(upstreamConn, req.Method)
	if err != nil {
		log.Warn("reading response from upstream failed", zap.String("upstream", upstreamAddr), zap.Error(err))
		// No response bytes have reached the client yet: safe to
		// respond 502 instead of closing.
		errResp := httpmsg.NewPlainTextError(http.StatusBadGateway, "Bad Gateway")
		if werr := httpmsg.WriteResponse(conn, errResp); werr != nil {
			return false
		}
		return true
	}

	metrics.UpstreamResponsesTotal.WithLabelValues(metrics.SanitizeCode(resp.StatusCode)).Inc()

	if err := httpmsg.WriteResponse(conn, resp); err != nil {
		// Bytes may already be partially committed to the client;
		// the only safe move is to close the connection.
		log.Debug("writing response to client failed", zap.Error(err))
		return false
	}
	return true
}

// connectToLiveUpstream implements passive failover: it asks the
// pool for a live upstream, tries to dial it, and on dial failure
// marks it dead and retries, until either a connection succeeds or
// the pool is exhausted.
func (h *Handler) connectToLiveUpstream(log *zap.Logger) (net.Conn, string, bool) {
	dialTimeout := h.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	for {
		idx, ok := h.Pool.PickLive()
		if !ok {
			return nil, "", false
		}
		host := h.Pool.Host(idx)
		conn, err := net.DialTimeout("tcp", host.Addr, dialTimeout)
		if err != nil {
			log.Warn("passive failover: marking upstream dead after connect failure",
				zap.String("upstream", host.Addr), zap.Error(err))
			h.Pool.MarkDead(idx)
			metrics.UpstreamLive.WithLabelValues(host.Addr).Set(0)
			continue
		}
		return conn, host.Addr, true
	}
}
