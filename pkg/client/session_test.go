package client

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSession(tb testing.TB, idleTimeout time.Duration) *Session {
	local, remote := net.Pipe()
	tb.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	s := &Session{rwc: local, key: testKey(), lastIdle: time.Now(), lg: zap.NewNop()}
	if idleTimeout > 0 {
		s.idleTimeout = idleTimeout
		s.idleTimer = time.AfterFunc(idleTimeout, s.onIdleTimeout)
	}
	return s
}

func TestSession_IdleEviction(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	s := newTestSession(t, 20*time.Millisecond)

	re.Eventually(s.isClosed, time.Second, 5*time.Millisecond,
		"an unreserved session must close itself after the idle timeout")
}

func TestSession_ReservationBlocksEviction(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	s := newTestSession(t, 20*time.Millisecond)
	re.True(s.reserveIfFresh())

	time.Sleep(60 * time.Millisecond)
	re.False(s.isClosed(), "a reserved session must not be evicted")

	s.Release()
	re.Eventually(s.isClosed, time.Second, 5*time.Millisecond,
		"the idle countdown must restart on the last release")
}

func TestSession_SharedReservations(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	s := newTestSession(t, 20*time.Millisecond)
	re.True(s.reserveIfFresh())
	re.True(s.reserveIfFresh())

	s.Release()
	time.Sleep(60 * time.Millisecond)
	re.False(s.isClosed(), "one outstanding reservation must keep the session alive")

	s.Release()
	re.Eventually(s.isClosed, time.Second, 5*time.Millisecond)
}

func TestSession_StaleReservationRefused(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	s := newTestSession(t, time.Minute)
	s.mu.Lock()
	s.lastIdle = time.Now().Add(-30 * time.Second)
	s.mu.Unlock()
	re.True(s.reserveIfFresh(), "a session within the idle timeout is fresh")
	s.Release()

	// model the window between the idle deadline and the timer goroutine
	// getting to run: the deadline has passed but the session is not closed yet
	s.mu.Lock()
	s.lastIdle = time.Now().Add(-time.Minute)
	s.mu.Unlock()
	re.False(s.isClosed())
	re.False(s.reserveIfFresh(), "a session idle past the timeout must not be handed out")
}

func TestSession_ReserveAfterClose(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	s := newTestSession(t, 0)
	re.NoError(s.Close())
	re.False(s.reserveIfFresh(), "a closed session must not hand out reservations")
	re.NoError(s.Close(), "closing twice is a no-op")
}

func TestSession_CloseIfIdle(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	s := newTestSession(t, 0)
	re.True(s.reserveIfFresh())
	re.False(s.closeIfIdle(), "a reserved session is not idle")

	s.Release()
	re.True(s.closeIfIdle())
	re.False(s.closeIfIdle(), "already closed")
}
