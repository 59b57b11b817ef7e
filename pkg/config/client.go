package config

import (
	"net/netip"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gofetch/fetch/pkg/util/netutil"
)

// Symbolic LocalIP values, resolved to a concrete address by Adjust.
const (
	LocalIPOutbound    = "outbound"
	LocalIPNonLoopback = "non-loopback"
)

const (
	_defaultClientIdleConnTimeout = 90 * time.Second
	_defaultClientConnectTimeout  = 30 * time.Second
	_defaultClientDialTimeout     = 10 * time.Second
)

// Client is configuration for the connection pool and the connector.
type Client struct {
	// IdleConnTimeout is the maximum amount of time an idle session is kept
	// in the pool before it is closed. Zero disables idle eviction.
	IdleConnTimeout time.Duration

	// ConnectTimeout bounds one whole connect, resolution included.
	ConnectTimeout time.Duration

	// DialTimeout bounds the dial of a single candidate address.
	DialTimeout time.Duration

	// LocalIP, if set, is the local address connections are bound to.
	LocalIP string

	// TLSInsecureSkipVerify disables certificate verification on TLS schemes.
	// For tests only.
	TLSInsecureSkipVerify bool
}

// NewClient creates a default client configuration.
func NewClient() *Client {
	return &Client{}
}

// Adjust resolves symbolic LocalIP values.
func (c *Client) Adjust() error {
	switch c.LocalIP {
	case LocalIPOutbound:
		ip, err := netutil.GetOutboundIP()
		if err != nil {
			return errors.WithMessage(err, "get outbound IP")
		}
		c.LocalIP = ip.String()
	case LocalIPNonLoopback:
		ip, err := netutil.GetNonLoopbackIP()
		if err != nil {
			return errors.WithMessage(err, "get non-loopback IP")
		}
		c.LocalIP = ip.String()
	}
	return nil
}

// Validate checks whether the client configuration is valid.
func (c *Client) Validate() error {
	if c.IdleConnTimeout < 0 {
		return errors.Errorf("negative idle connection timeout %s", c.IdleConnTimeout)
	}
	if c.ConnectTimeout < 0 {
		return errors.Errorf("negative connect timeout %s", c.ConnectTimeout)
	}
	if c.DialTimeout < 0 {
		return errors.Errorf("negative dial timeout %s", c.DialTimeout)
	}
	if c.LocalIP != "" {
		if _, err := netip.ParseAddr(c.LocalIP); err != nil {
			return errors.Wrapf(err, "invalid local IP `%s`", c.LocalIP)
		}
	}
	return nil
}

func clientConfigure(v *viper.Viper, fs *pflag.FlagSet) {
	fs.Duration("client-idle-conn-timeout", _defaultClientIdleConnTimeout, "how long an idle session is kept in the pool, 0 to keep forever")
	fs.Duration("client-connect-timeout", _defaultClientConnectTimeout, "timeout for a whole connect, resolution included")
	fs.Duration("client-dial-timeout", _defaultClientDialTimeout, "timeout for dialing a single candidate address")
	fs.String("client-local-ip", "", "local IP address to bind outgoing connections to, or 'outbound'/'non-loopback' to pick one automatically (default let the OS pick)")
	fs.Bool("client-tls-insecure-skip-verify", false, "skip TLS certificate verification, for tests only")
	_ = v.BindPFlag("client.idleConnTimeout", fs.Lookup("client-idle-conn-timeout"))
	_ = v.BindPFlag("client.connectTimeout", fs.Lookup("client-connect-timeout"))
	_ = v.BindPFlag("client.dialTimeout", fs.Lookup("client-dial-timeout"))
	_ = v.BindPFlag("client.localIP", fs.Lookup("client-local-ip"))
	_ = v.BindPFlag("client.tlsInsecureSkipVerify", fs.Lookup("client-tls-insecure-skip-verify"))
}
