package dns

import (
	"context"
	"net/netip"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

// ErrMissingHost indicates a target URI without a host component.
var ErrMissingHost = errors.New("destination has no host")

// Addrs is an ordered sequence of resolved socket addresses for one target.
// Port reconciliation is applied lazily as the sequence is consumed: an
// explicit target port overrides every address, otherwise only addresses
// with the unset-port sentinel (0) receive the scheme default. Addrs is not
// safe for concurrent use; each resolution produces a fresh sequence.
type Addrs struct {
	addrs    []netip.AddrPort
	i        int
	port     uint16
	explicit bool
}

// Next returns the next reconciled address, and false once exhausted.
func (a *Addrs) Next() (netip.AddrPort, bool) {
	if a == nil || a.i >= len(a.addrs) {
		return netip.AddrPort{}, false
	}
	addr := a.addrs[a.i]
	a.i++
	if a.explicit || addr.Port() == 0 {
		addr = netip.AddrPortFrom(addr.Addr(), a.port)
	}
	return addr, true
}

// TargetResolver turns URI-like targets into dialable address sequences.
type TargetResolver struct {
	resolver Resolver
}

// NewTargetResolver creates a TargetResolver on top of resolver.
func NewTargetResolver(resolver Resolver) *TargetResolver {
	return &TargetResolver{resolver: resolver}
}

// ResolveTarget resolves the host of u into an address sequence.
// IP-literal hosts skip name resolution entirely.
func (r *TargetResolver) ResolveTarget(ctx context.Context, u *url.URL) (*Addrs, error) {
	host := u.Hostname()
	if host == "" {
		return nil, errors.WithMessagef(ErrMissingHost, "target %q", u)
	}

	port := defaultPort(u.Scheme)
	explicit := u.Port() != ""
	if explicit {
		p, err := strconv.ParseUint(u.Port(), 10, 16)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid port in target %q", u)
		}
		port = uint16(p)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		literal := []netip.AddrPort{netip.AddrPortFrom(addr.Unmap(), 0)}
		return &Addrs{addrs: literal, port: port, explicit: explicit}, nil
	}

	name, err := NewName(host)
	if err != nil {
		return nil, err
	}
	addrs, err := r.resolver.Resolve(ctx, name)
	if err != nil {
		return nil, errors.WithMessagef(err, "resolve %s", name)
	}

	return &Addrs{addrs: addrs, port: port, explicit: explicit}, nil
}

func defaultPort(scheme string) uint16 {
	switch scheme {
	case "https", "wss":
		return 443
	case "socks4", "socks4a", "socks5", "socks5h":
		return 1080
	default:
		// matches the plaintext HTTP convention, also used for unknown schemes
		return 80
	}
}
