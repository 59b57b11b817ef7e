// Package client maintains pooled connections to URI targets: one session
// per scheme-and-authority key, established by a fallback connector and
// shared across concurrent callers.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gofetch/fetch/pkg/config"
	"github.com/gofetch/fetch/pkg/dns"
)

var (
	clientIDCounter = atomic.Int32{}
)

// A FetchClient internally caches sessions to servers.
// It is safe for concurrent use by multiple goroutines.
type FetchClient struct {
	cfg *config.Client

	id        string
	connector *Connector
	connPool  *connPool

	lg *zap.Logger
}

// NewClient creates a client on top of resolver.
func NewClient(cfg *config.Client, resolver dns.Resolver, lg *zap.Logger) (*FetchClient, error) {
	var localAddr netip.Addr
	if cfg.LocalIP != "" {
		addr, err := netip.ParseAddr(cfg.LocalIP)
		if err != nil {
			return nil, errors.Wrapf(err, "parse local IP `%s`", cfg.LocalIP)
		}
		localAddr = addr
	}

	var tlsConfig *tls.Config
	if cfg.TLSInsecureSkipVerify {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	c := &FetchClient{
		cfg: cfg,
		id:  newClientID(),
		lg:  lg,
	}
	c.connector = NewConnector(dns.NewTargetResolver(resolver), localAddr, cfg.DialTimeout, tlsConfig, lg)
	c.connPool = newConnPool(c, cfg.ConnectTimeout, lg)
	return c, nil
}

// GetSession returns a reserved session for target, dialing one if necessary.
// The caller must Release the session once done with it. ctx bounds the wait
// only; a dial started on the caller's behalf keeps running after ctx is done.
func (c *FetchClient) GetSession(ctx context.Context, target string) (*Session, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, errors.Wrapf(err, "parse target `%s`", target)
	}
	key, err := KeyFromURL(u)
	if err != nil {
		return nil, err
	}

	logger := c.lg.With(zap.String("key", key.String()))
	if logger.Core().Enabled(zap.DebugLevel) {
		logger = logger.With(zap.String("trace-id", uuid.NewString()))
	}

	s, err := c.connPool.getSession(ctx, key)
	if err != nil {
		logger.Error("failed to get session", zap.Error(err))
		return nil, errors.WithMessagef(err, "get session to %s", key)
	}
	logger.Debug("session acquired", zap.String("remote-addr", s.RemoteAddr().String()))
	return s, nil
}

// TryGetSession returns a reserved session for target only if one is already
// pooled. It never dials.
func (c *FetchClient) TryGetSession(target string) (*Session, bool) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, false
	}
	key, err := KeyFromURL(u)
	if err != nil {
		return nil, false
	}
	return c.connPool.tryPool(key)
}

// CloseIdleConnections closes every pooled session that has no outstanding
// reservations.
func (c *FetchClient) CloseIdleConnections() {
	c.connPool.closeIdleConnections()
	c.lg.Info("close idle sessions")
}

// Shutdown closes the pool. Active sessions are given until ctx expires to
// drain, then closed forcibly. The client is unusable afterwards.
func (c *FetchClient) Shutdown(ctx context.Context) {
	c.connPool.closeAllConnections(ctx)
	c.lg.Info("client shut down")
}

// dialSession implements sessionDialer. It runs in the pool's dial goroutine.
func (c *FetchClient) dialSession(ctx context.Context, key Key) (*Session, error) {
	conn, err := c.connector.Connect(ctx, key.URL())
	if err != nil {
		return nil, errors.WithMessagef(err, "connect to %s", key)
	}
	return c.newSession(key, conn), nil
}

func (c *FetchClient) newSession(key Key, conn net.Conn) *Session {
	logger := c.lg.With(zap.String("key", key.String()), zap.String("remote-addr", conn.RemoteAddr().String()))
	s := &Session{
		rwc:      conn,
		key:      key,
		lastIdle: time.Now(),
		lg:       logger,
	}
	if c.cfg.IdleConnTimeout > 0 {
		s.idleTimeout = c.cfg.IdleConnTimeout
		s.idleTimer = time.AfterFunc(c.cfg.IdleConnTimeout, s.onIdleTimeout)
	}
	logger.Info("session created")
	return s
}

// ID returns the unique identity of the client.
func (c *FetchClient) ID() string {
	return c.id
}

func (c *FetchClient) Logger() *zap.Logger {
	return c.lg
}

func newClientID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("fetch|%s|%d|%d|%d", hostname, os.Getpid(), clientIDCounter.Add(1), time.Now().UnixNano())
}
