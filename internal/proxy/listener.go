package proxy

import (
	"net"

	"go.uber.org/zap"
)

// Listener runs the accept loop: for every accepted socket it spawns
// an independent goroutine running Handler.Serve, matching
// spec.md 4.F ("spawn an independent handler task").
type Listener struct {
	Handler *Handler
	Log     *zap.Logger
}

// Serve accepts connections on ln until it's closed (e.g. because the
// parent context was cancelled and closed ln), logging and continuing
// past transient accept errors.
func (l *Listener) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Temporary() { //nolint:staticcheck // Temporary is still meaningful for listener accept loops
				l.Log.Warn("transient accept error", zap.Error(err))
				continue
			}
			return err
		}
		go l.Handler.Serve(conn)
	}
}
