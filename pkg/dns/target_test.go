package dns

import (
	"context"
	"net/netip"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTargetResolver_PortReconciliation(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		resolved []string
		want     []string
	}{
		{
			name:     "https default port",
			target:   "https://example.com",
			resolved: []string{"203.0.113.1:0", "203.0.113.2:0"},
			want:     []string{"203.0.113.1:443", "203.0.113.2:443"},
		},
		{
			name:     "explicit port overrides resolved ports",
			target:   "https://example.com:8443",
			resolved: []string{"203.0.113.1:9000", "203.0.113.2:0"},
			want:     []string{"203.0.113.1:8443", "203.0.113.2:8443"},
		},
		{
			name:     "resolved port kept without explicit port",
			target:   "http://example.com",
			resolved: []string{"203.0.113.1:9000", "203.0.113.2:0"},
			want:     []string{"203.0.113.1:9000", "203.0.113.2:80"},
		},
		{
			name:     "wss default port",
			target:   "wss://example.com",
			resolved: []string{"203.0.113.1:0"},
			want:     []string{"203.0.113.1:443"},
		},
		{
			name:     "socks5 default port",
			target:   "socks5://example.com",
			resolved: []string{"203.0.113.1:0"},
			want:     []string{"203.0.113.1:1080"},
		},
		{
			name:     "unknown scheme falls back to 80",
			target:   "foo://example.com",
			resolved: []string{"203.0.113.1:0"},
			want:     []string{"203.0.113.1:80"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			re := require.New(t)

			resolved := make([]netip.AddrPort, 0, len(tt.resolved))
			for _, s := range tt.resolved {
				resolved = append(resolved, mustAddrPort(t, s))
			}
			resolver := NewTargetResolver(&staticResolver{addrs: resolved})

			u, err := url.Parse(tt.target)
			re.NoError(err)
			addrs, err := resolver.ResolveTarget(context.Background(), u)
			re.NoError(err)

			got := make([]string, 0, len(tt.want))
			for {
				addr, ok := addrs.Next()
				if !ok {
					break
				}
				got = append(got, addr.String())
			}
			re.Equal(tt.want, got)
		})
	}
}

func TestTargetResolver_IPLiteral(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	inner := &staticResolver{}
	resolver := NewTargetResolver(inner)

	u, err := url.Parse("https://192.0.2.7")
	re.NoError(err)
	addrs, err := resolver.ResolveTarget(context.Background(), u)
	re.NoError(err)

	addr, ok := addrs.Next()
	re.True(ok)
	re.Equal("192.0.2.7:443", addr.String())
	_, ok = addrs.Next()
	re.False(ok)
	re.Zero(inner.callCount(), "IP literals must not reach the resolver")
}

func TestTargetResolver_IPv6Literal(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	resolver := NewTargetResolver(&staticResolver{})

	u, err := url.Parse("http://[2001:db8::1]:8080")
	re.NoError(err)
	addrs, err := resolver.ResolveTarget(context.Background(), u)
	re.NoError(err)

	addr, ok := addrs.Next()
	re.True(ok)
	re.Equal("[2001:db8::1]:8080", addr.String())
}

func TestTargetResolver_Errors(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		wantErr error
		errMsg  string
	}{
		{
			name:    "missing host",
			target:  "https:///path",
			wantErr: ErrMissingHost,
		},
		{
			name:    "invalid name",
			target:  "https://exa!mple.com",
			wantErr: ErrInvalidName,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			re := require.New(t)

			resolver := NewTargetResolver(&staticResolver{})
			u, err := url.Parse(tt.target)
			re.NoError(err)

			_, err = resolver.ResolveTarget(context.Background(), u)
			re.ErrorIs(err, tt.wantErr)
		})
	}
}

func TestTargetResolver_ResolutionError(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	resolver := NewTargetResolver(&staticResolver{err: context.DeadlineExceeded})

	u, err := url.Parse("https://example.com")
	re.NoError(err)
	_, err = resolver.ResolveTarget(context.Background(), u)
	re.ErrorIs(err, context.DeadlineExceeded)
	re.ErrorContains(err, "resolve example.com")
}
