package dns

import (
	"context"
	"net"
	"net/netip"
	"time"

	miekgdns "github.com/miekg/dns"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	_resolvConfPath      = "/etc/resolv.conf"
	_defaultQueryTimeout = 5 * time.Second
)

// Used when the system resolver configuration cannot be read.
var _fallbackServers = []string{"8.8.8.8:53", "1.1.1.1:53"}

// DNSResolver resolves names by querying DNS servers directly.
// Both A and AAAA records are requested, so callers can fall back
// across address families.
type DNSResolver struct {
	client  *miekgdns.Client
	servers []string

	lg *zap.Logger
}

// NewDNSResolver creates a DNSResolver. When servers is empty, the system
// resolver configuration is used, falling back to well-known public servers
// if it cannot be read.
func NewDNSResolver(servers []string, timeout time.Duration, lg *zap.Logger) *DNSResolver {
	if timeout <= 0 {
		timeout = _defaultQueryTimeout
	}
	if len(servers) == 0 {
		servers = systemServers(lg)
	}
	return &DNSResolver{
		client:  &miekgdns.Client{Timeout: timeout},
		servers: servers,
		lg:      lg,
	}
}

func systemServers(lg *zap.Logger) []string {
	conf, err := miekgdns.ClientConfigFromFile(_resolvConfPath)
	if err != nil || len(conf.Servers) == 0 {
		lg.Debug("failed to load system DNS configuration, using fallback servers", zap.Error(err))
		return _fallbackServers
	}

	servers := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		servers = append(servers, net.JoinHostPort(s, conf.Port))
	}
	return servers
}

func (r *DNSResolver) Resolve(ctx context.Context, name Name) ([]netip.AddrPort, error) {
	var addrs []netip.AddrPort
	var lastErr error
	for _, qtype := range []uint16{miekgdns.TypeA, miekgdns.TypeAAAA} {
		results, err := r.query(ctx, name, qtype)
		if err != nil {
			lastErr = err
			continue
		}
		addrs = append(addrs, results...)
	}

	if len(addrs) == 0 && lastErr != nil {
		return nil, errors.WithMessagef(lastErr, "resolve %s", name)
	}
	return addrs, nil
}

// query asks each configured server in turn and returns the answer of the
// first one that responds successfully.
func (r *DNSResolver) query(ctx context.Context, name Name, qtype uint16) ([]netip.AddrPort, error) {
	msg := new(miekgdns.Msg)
	msg.SetQuestion(miekgdns.Fqdn(name.String()), qtype)

	var lastErr error
	for _, server := range r.servers {
		in, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = errors.WithMessagef(err, "exchange with %s", server)
			continue
		}
		if in.Rcode != miekgdns.RcodeSuccess {
			lastErr = errors.Errorf("server %s answered %s", server, miekgdns.RcodeToString[in.Rcode])
			continue
		}

		var addrs []netip.AddrPort
		for _, rr := range in.Answer {
			switch record := rr.(type) {
			case *miekgdns.A:
				if addr, ok := netip.AddrFromSlice(record.A.To4()); ok {
					addrs = append(addrs, netip.AddrPortFrom(addr, 0))
				}
			case *miekgdns.AAAA:
				if addr, ok := netip.AddrFromSlice(record.AAAA); ok {
					addrs = append(addrs, netip.AddrPortFrom(addr, 0))
				}
			}
		}
		return addrs, nil
	}
	return nil, lastErr
}
