package main

import (
	"fmt"
	"sync"

	"pyproxy/client"
)

// sessionPool hands out long-lived *client.Session handles for reuse across
// atom submissions, rather than dialing a fresh connection per atom. Unlike
// a plain connection pool, a returned session can be carrying stale output:
// a prior atom may have left buffered stdout/stderr frames in its output
// channel that TakeOutput never drained (e.g. the caller only read the
// settled result and moved on). Put drains those before the session goes
// back on the idle list, so the next borrower's first TakeOutput call sees
// only its own atom's output.
type sessionPool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	idle     []*client.Session
	inFlight int
	max      int
	factory  func() (*client.Session, error)
}

// newSessionPool creates a session pool bounded at max concurrently open
// sessions. Sessions are dialed lazily on first demand.
func newSessionPool(max int, factory func() (*client.Session, error)) *sessionPool {
	p := &sessionPool{max: max, factory: factory}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Get returns an idle session if one is available, dials a fresh one if the
// pool has room, or blocks until a borrower calls Put.
func (p *sessionPool) Get() (*client.Session, error) {
	p.mu.Lock()
	for {
		if n := len(p.idle); n > 0 {
			s := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()
			return s, nil
		}
		if p.inFlight < p.max {
			p.inFlight++
			p.mu.Unlock()
			s, err := p.factory()
			if err != nil {
				p.mu.Lock()
				p.inFlight--
				p.mu.Unlock()
				return nil, fmt.Errorf("atomctl: dial session: %w", err)
			}
			return s, nil
		}
		p.cond.Wait()
	}
}

// Put returns a session to the pool. A session that hit an error mid-use
// (healthy=false) is closed and discarded instead of recycled, freeing its
// slot for a fresh dial.
func (p *sessionPool) Put(s *client.Session, healthy bool) {
	if !healthy {
		s.Close()
		p.mu.Lock()
		p.inFlight--
		p.cond.Signal()
		p.mu.Unlock()
		return
	}

	// Drain output frames left over from whatever atom this session last
	// ran, so the next borrower starts from a clean output channel.
	for {
		if _, ok := s.TakeOutput(); !ok {
			break
		}
	}

	p.mu.Lock()
	p.idle = append(p.idle, s)
	p.cond.Signal()
	p.mu.Unlock()
}

// Close shuts down every idle session. Sessions currently checked out are
// left to their borrowers; callers should Put before Close returns for a
// clean shutdown.
func (p *sessionPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.idle {
		s.Close()
	}
	p.idle = nil
}
