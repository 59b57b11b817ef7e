package client

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gofetch/fetch/pkg/config"
	"github.com/gofetch/fetch/pkg/dns"
)

func newTestClient(tb testing.TB, cfg *config.Client, resolver dns.Resolver) *FetchClient {
	re := require.New(tb)

	if cfg == nil {
		cfg = &config.Client{
			IdleConnTimeout: time.Minute,
			ConnectTimeout:  2 * time.Second,
			DialTimeout:     2 * time.Second,
		}
	}
	c, err := NewClient(cfg, resolver, zap.NewNop())
	re.NoError(err)
	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		c.Shutdown(ctx)
	})
	return c
}

func TestClient_GetSession(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	live := startListener(t)
	resolver := dns.NewOverrideResolver(&fakeResolver{}, map[string][]netip.AddrPort{
		"svc.test": {live},
	})
	c := newTestClient(t, nil, resolver)

	s1, err := c.GetSession(context.Background(), "http://svc.test")
	re.NoError(err)
	re.Equal(live.String(), s1.RemoteAddr().String())

	// paths and queries do not split the pool
	s2, err := c.GetSession(context.Background(), "http://svc.test/some/path?q=1")
	re.NoError(err)
	re.Same(s1, s2)

	s1.Release()
	s2.Release()

	c.CloseIdleConnections()
	_, ok := c.TryGetSession("http://svc.test")
	re.False(ok)
}

func TestClient_IdleEviction(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	live := startListener(t)
	resolver := dns.NewOverrideResolver(&fakeResolver{}, map[string][]netip.AddrPort{
		"svc.test": {live},
	})
	cfg := &config.Client{
		IdleConnTimeout: 20 * time.Millisecond,
		ConnectTimeout:  2 * time.Second,
		DialTimeout:     2 * time.Second,
	}
	c := newTestClient(t, cfg, resolver)

	s, err := c.GetSession(context.Background(), "http://svc.test")
	re.NoError(err)
	s.Release()

	re.Eventually(s.isClosed, time.Second, 5*time.Millisecond,
		"an idle session must be evicted after the timeout")
	_, ok := c.TryGetSession("http://svc.test")
	re.False(ok)
}

func TestClient_Shutdown(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	live := startListener(t)
	resolver := dns.NewOverrideResolver(&fakeResolver{}, map[string][]netip.AddrPort{
		"svc.test": {live},
	})
	c := newTestClient(t, nil, resolver)

	s, err := c.GetSession(context.Background(), "http://svc.test")
	re.NoError(err)
	s.Release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Shutdown(ctx)
	re.True(s.isClosed())

	_, err = c.GetSession(context.Background(), "http://svc.test")
	re.ErrorIs(err, ErrShutdown)
}

func TestClient_BadTargets(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	c := newTestClient(t, nil, &fakeResolver{})

	_, err := c.GetSession(context.Background(), "http://")
	re.ErrorIs(err, dns.ErrMissingHost)

	_, ok := c.TryGetSession("http://")
	re.False(ok)
}

func TestKeyFromURL(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   Key
	}{
		{
			name:   "scheme and host",
			target: "http://example.com/path",
			want:   Key{Scheme: "http", Authority: "example.com"},
		},
		{
			name:   "explicit port kept",
			target: "https://example.com:8443",
			want:   Key{Scheme: "https", Authority: "example.com:8443"},
		},
		{
			name:   "lower-cased",
			target: "HTTPS://Example.COM",
			want:   Key{Scheme: "https", Authority: "example.com"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			re := require.New(t)

			key, err := KeyFromURL(mustParseURL(t, tt.target))
			re.NoError(err)
			re.Equal(tt.want, key)
			re.Equal(tt.want.Scheme+"://"+tt.want.Authority, key.String())
		})
	}
}

func TestNewClientID(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	id1 := newClientID()
	id2 := newClientID()
	re.NotEqual(id1, id2)
	re.Contains(id1, "fetch|")
}
