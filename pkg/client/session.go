package client

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Session is the state of a single pooled connection to a server.
// Handout is reservation-counted: a session may be shared by multiple
// callers at once, and it only counts as idle when every reservation has
// been released.
type Session struct {
	rwc net.Conn
	key Key

	idleTimeout time.Duration // or 0 for never
	idleTimer   *time.Timer

	mu       sync.Mutex // guards following
	closed   bool
	active   int // outstanding reservations
	lastIdle time.Time

	lg *zap.Logger
}

// Conn returns the underlying network connection.
func (s *Session) Conn() net.Conn {
	return s.rwc
}

// Key returns the pool key the session was dialed for.
func (s *Session) Key() Key {
	return s.key
}

func (s *Session) RemoteAddr() net.Addr {
	return s.rwc.RemoteAddr()
}

// reserveIfFresh takes a reservation on the session. It reports false if the
// session has been closed or has already sat idle past the idle timeout, in
// which case the caller must dial a new one.
func (s *Session) reserveIfFresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.active == 0 {
		// The idle deadline may have passed before the timer goroutine got
		// to run. Such a session is as good as closed.
		if s.idleTimeout > 0 && time.Since(s.lastIdle) >= s.idleTimeout {
			return false
		}
		if s.idleTimer != nil {
			s.idleTimer.Stop()
		}
	}
	s.active++
	return true
}

// Release returns a reservation taken by reserveIfFresh. Once the last
// reservation is released the idle countdown starts.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.active == 0 {
		return
	}
	s.active--
	if s.active == 0 {
		s.lastIdle = time.Now()
		if s.idleTimer != nil {
			s.idleTimer.Reset(s.idleTimeout)
		}
	}
}

// onIdleTimeout is called from a time.AfterFunc goroutine. It will
// only be called when we're idle, but because we're coming from a new
// goroutine, there could be a new reservation coming in at the same time,
// so this simply calls the synchronized closeIfIdle to shut down this
// session. The timer could just call closeIfIdle, but this is more clear.
func (s *Session) onIdleTimeout() {
	s.closeIfIdle()
}

// closeIfIdle closes the session if it has no outstanding reservations.
// It reports whether the session was closed by this call.
func (s *Session) closeIfIdle() bool {
	s.mu.Lock()
	if s.closed || s.active > 0 {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.mu.Unlock()

	s.lg.Debug("closing idle session")
	_ = s.rwc.Close()
	return true
}

// Close closes the session regardless of outstanding reservations.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.mu.Unlock()

	s.lg.Debug("closing session")
	return s.rwc.Close()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
