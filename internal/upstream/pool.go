// Package upstream tracks upstream liveness and implements the
// proxy's random-with-retry selection policy: each host carries a
// single boolean liveness flag, with no connection accounting or
// path-prefix routing.
package upstream

import (
	"math/rand"
	"sync/atomic"
)

// Host is one configured upstream: its dial address and a liveness
// flag mutated by both the active health-check worker and the
// connection handler's passive failover.
type Host struct {
	Addr string

	// alive is true when the upstream is eligible for selection, false
	// otherwise. All configured upstreams start alive.
	alive atomic.Bool
}

func newHost(addr string) *Host {
	h := &Host{Addr: addr}
	h.alive.Store(true)
	return h
}

// Alive reports this host's current liveness.
func (h *Host) Alive() bool { return h.alive.Load() }

// Pool is the shared, concurrency-safe registry of upstream liveness.
// Every method is safe to call from any goroutine; there is no
// separate external lock because each Host guards its own flag with
// an atomic.
type Pool struct {
	hosts []*Host
}

// NewPool builds a Pool over addrs, all initially alive.
func NewPool(addrs []string) *Pool {
	hosts := make([]*Host, len(addrs))
	for i, a := range addrs {
		hosts[i] = newHost(a)
	}
	return &Pool{hosts: hosts}
}

// Len returns the number of configured upstreams.
func (p *Pool) Len() int { return len(p.hosts) }

// Host returns the upstream at index i, or nil if out of range. It is
// exposed so the health-check worker can address hosts by the index
// it is iterating.
func (p *Pool) Host(i int) *Host {
	if i < 0 || i >= len(p.hosts) {
		return nil
	}
	return p.hosts[i]
}

// MarkDead marks the upstream at index i as unavailable for
// selection.
func (p *Pool) MarkDead(i int) {
	if h := p.Host(i); h != nil {
		h.alive.Store(false)
	}
}

// MarkAlive marks the upstream at index i as available for selection.
func (p *Pool) MarkAlive(i int) {
	if h := p.Host(i); h != nil {
		h.alive.Store(true)
	}
}

// PickLive chooses a live upstream uniformly at random. It picks a
// candidate index and, if dead, retries with a different index drawn
// from those not yet tried in this call, until it finds a live host
// or has exhausted all N. It returns (index, true) on success, or
// (0, false) if every upstream is dead.
func (p *Pool) PickLive() (int, bool) {
	n := len(p.hosts)
	if n == 0 {
		return 0, false
	}

	tried := make([]bool, n)
	remaining := n
	for remaining > 0 {
		// Choose uniformly among indices not yet tried.
		skip := rand.Intn(remaining)
		idx := -1
		for i := 0; i < n; i++ {
			if tried[i] {
				continue
			}
			if skip == 0 {
				idx = i
				break
			}
			skip--
		}
		tried[idx] = true
		remaining--

		if p.hosts[idx].Alive() {
			return idx, true
		}
	}
	return 0, false
}
