package client

import (
	"context"
	"crypto/tls"
	"net"
	"net/netip"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gofetch/fetch/pkg/dns"
)

// Connector establishes connections to URI targets. It resolves the target
// into candidate addresses and dials them in resolver order, falling back to
// the next one on failure. Only the last failure is retained.
type Connector struct {
	resolver    *dns.TargetResolver
	dialer      net.Dialer
	dialTimeout time.Duration // bound on one candidate address, or 0 for none
	tlsConfig   *tls.Config

	lg *zap.Logger
}

// NewConnector creates a Connector. localAddr, if valid, is the local address
// connections are bound to. tlsConfig applies to TLS schemes and may be nil
// for defaults.
func NewConnector(resolver *dns.TargetResolver, localAddr netip.Addr, dialTimeout time.Duration, tlsConfig *tls.Config, lg *zap.Logger) *Connector {
	c := &Connector{
		resolver:    resolver,
		dialTimeout: dialTimeout,
		tlsConfig:   tlsConfig,
		lg:          lg,
	}
	if localAddr.IsValid() {
		c.dialer.LocalAddr = &net.TCPAddr{IP: localAddr.AsSlice()}
	}
	return c
}

// Connect resolves u and dials the resulting addresses in order, returning
// the first connection established.
func (c *Connector) Connect(ctx context.Context, u *url.URL) (net.Conn, error) {
	logger := c.lg.With(zap.String("target", u.String()))

	addrs, err := c.resolver.ResolveTarget(ctx, u)
	if err != nil {
		return nil, errors.WithMessagef(err, "resolve target %q", u)
	}

	var lastAddr netip.AddrPort
	var lastErr error
	attempts := 0
	for {
		addr, ok := addrs.Next()
		if !ok {
			break
		}
		attempts++

		conn, err := c.dialAddr(ctx, u, addr)
		if err != nil {
			logger.Debug("dial failed, falling back to next address",
				zap.String("address", addr.String()), zap.Error(err))
			lastAddr, lastErr = addr, err
			continue
		}
		logger.Debug("connection established", zap.String("address", addr.String()))
		return conn, nil
	}

	if attempts == 0 {
		return nil, errors.WithMessagef(ErrNoAddresses, "target %q", u)
	}
	return nil, &ExhaustedError{Addr: lastAddr, Err: lastErr}
}

func (c *Connector) dialAddr(ctx context.Context, u *url.URL, addr netip.AddrPort) (net.Conn, error) {
	if c.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.dialTimeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}

	if !tlsScheme(u.Scheme) {
		return conn, nil
	}

	cfg := c.tlsConfig.Clone()
	if cfg == nil {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = u.Hostname()
	}
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "TLS handshake with %s", addr)
	}
	return tlsConn, nil
}

func tlsScheme(scheme string) bool {
	switch scheme {
	case "https", "wss":
		return true
	default:
		return false
	}
}
