package client

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// sessionDialer establishes a new session for a pool key.
type sessionDialer interface {
	dialSession(ctx context.Context, key Key) (*Session, error)
}

// connPool caches at most one session per key. Concurrent requests for the
// same cold key share one dial; the dial is owned by the pool, not by any
// particular waiter, so a waiter giving up does not abort it.
type connPool struct {
	dialer         sessionDialer
	connectTimeout time.Duration // bound on one whole dial, or 0 for none

	mu      sync.Mutex
	closed  bool
	conns   map[Key]*Session
	dialing map[Key]*dialCall // currently in-flight dials

	lg *zap.Logger
}

func newConnPool(dialer sessionDialer, connectTimeout time.Duration, lg *zap.Logger) *connPool {
	return &connPool{
		dialer:         dialer,
		connectTimeout: connectTimeout,
		conns:          make(map[Key]*Session),
		dialing:        make(map[Key]*dialCall),
		lg:             lg,
	}
}

// getSession returns a reserved session for key, dialing one if necessary.
// ctx only bounds the wait; an in-flight dial keeps running after the caller
// gives up and its session lands in the pool for the next request.
func (p *connPool) getSession(ctx context.Context, key Key) (*Session, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrShutdown
		}
		if s, ok := p.conns[key]; ok {
			if s.reserveIfFresh() {
				p.mu.Unlock()
				return s, nil
			}
			// evict the dead entry and dial anew
			delete(p.conns, key)
		}
		call := p.getStartDialLocked(key)
		p.mu.Unlock()

		select {
		case <-call.done:
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "wait for dial to %s", key)
		}
		s, err := call.res, call.err
		if err != nil {
			return nil, err
		}
		if s.reserveIfFresh() {
			return s, nil
		}
	}
}

// tryPool returns a reserved session for key only if one is already pooled.
// It never dials.
func (p *connPool) tryPool(key Key) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, false
	}
	if s, ok := p.conns[key]; ok && s.reserveIfFresh() {
		return s, true
	}
	return nil, false
}

func (p *connPool) getStartDialLocked(key Key) *dialCall {
	if call, ok := p.dialing[key]; ok {
		// A dial is already in-flight. Don't start another.
		return call
	}
	call := &dialCall{p: p, key: key, done: make(chan struct{})}
	p.dialing[key] = call
	go call.dial()
	return call
}

// dialCall is an in-flight dial to a key.
type dialCall struct {
	_   incomparable
	p   *connPool
	key Key

	done chan struct{} // closed when done
	res  *Session      // valid after done is closed
	err  error         // valid after done is closed

	finished bool // guards against finishing twice on a panicking dialer
}

// dial runs in its own goroutine. The dial is detached from any waiter's
// context and bounded by the pool's connect timeout alone.
func (c *dialCall) dial() {
	defer func() {
		if r := recover(); r != nil {
			c.p.lg.Error("dial panicked", zap.String("key", c.key.String()), zap.Any("panic", r))
			c.finish(nil, errors.WithMessagef(ErrDialAborted, "dial %s: panic: %v", c.key, r))
		}
	}()

	ctx := context.Background()
	if c.p.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.p.connectTimeout)
		defer cancel()
	}

	s, err := c.p.dialer.dialSession(ctx, c.key)
	c.finish(s, err)
}

// finish publishes the dial result, inserts the session into the pool and
// wakes every waiter. Insertion never replaces: if another session landed
// for the same key first, the pooled one wins and ours is discarded.
func (c *dialCall) finish(s *Session, err error) {
	var discard *Session

	c.p.mu.Lock()
	if c.finished {
		c.p.mu.Unlock()
		return
	}
	c.finished = true
	delete(c.p.dialing, c.key)

	switch {
	case err != nil:
		c.err = err
	case c.p.closed:
		discard = s
		c.err = ErrShutdown
	default:
		if pooled, ok := c.p.conns[c.key]; ok {
			c.p.lg.Debug("discarding duplicate session", zap.String("key", c.key.String()))
			discard = s
			c.res = pooled
		} else {
			c.p.conns[c.key] = s
			c.res = s
		}
	}
	c.p.mu.Unlock()

	if discard != nil {
		_ = discard.Close()
	}
	close(c.done)
}

// closeIdleConnections closes every session with no outstanding reservations
// and evicts dead entries. Sessions are closed outside the pool lock.
func (p *connPool) closeIdleConnections() {
	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.conns))
	for _, s := range p.conns {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	for _, s := range sessions {
		s.closeIfIdle()
	}

	p.mu.Lock()
	for key, s := range p.conns {
		if s.isClosed() {
			delete(p.conns, key)
		}
	}
	p.mu.Unlock()
}

// closeAllConnections shuts the pool down. Active sessions are given until
// ctx expires to drain, then closed forcibly. New dials finishing after this
// point fail with ErrShutdown.
func (p *connPool) closeAllConnections(ctx context.Context) {
	p.mu.Lock()
	p.closed = true
	sessions := make([]*Session, 0, len(p.conns))
	for _, s := range p.conns {
		sessions = append(sessions, s)
	}
	p.conns = make(map[Key]*Session)
	p.mu.Unlock()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for len(sessions) > 0 {
		remaining := sessions[:0]
		for _, s := range sessions {
			if !s.closeIfIdle() && !s.isClosed() {
				remaining = append(remaining, s)
			}
		}
		sessions = remaining
		if len(sessions) == 0 {
			break
		}

		select {
		case <-ctx.Done():
			p.lg.Warn("forcibly closing active sessions", zap.Int("count", len(sessions)))
			for _, s := range sessions {
				_ = s.Close()
			}
			return
		case <-ticker.C:
		}
	}
}

// incomparable is a zero-width, non-comparable type. Adding it to a struct
// makes that struct also non-comparable, and generally doesn't add
// any size (as long as it's first).
type incomparable [0]func()
