// Package dns provides the name-resolution layer of the client:
// a pluggable Resolver capability, decorators for static overrides and
// caching, and target resolution with port reconciliation.
package dns

import (
	"context"
	"net"
	"net/netip"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidName indicates a syntactically invalid host name.
var ErrInvalidName = errors.New("invalid host name")

// Name is a validated host name pending resolution.
type Name struct {
	host string
}

// NewName validates host and wraps it into a Name.
func NewName(host string) (Name, error) {
	if !validHost(host) {
		return Name{}, errors.WithMessagef(ErrInvalidName, "%q", host)
	}
	return Name{host: host}, nil
}

func (n Name) String() string {
	return n.host
}

func validHost(host string) bool {
	if host == "" || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			switch {
			case c >= 'a' && c <= 'z':
			case c >= 'A' && c <= 'Z':
			case c >= '0' && c <= '9':
			case c == '-' || c == '_':
			default:
				return false
			}
		}
	}
	return true
}

// Resolver resolves a host name into socket addresses.
// Implementations must be safe for use by multiple goroutines.
//
// A returned address with port 0 means the resolver knows no port for it;
// the port is reconciled against the target later, see TargetResolver.
// An empty result with a nil error means "no addresses"; it is the
// connector's job to surface that as a failure.
type Resolver interface {
	Resolve(ctx context.Context, name Name) ([]netip.AddrPort, error)
}

// GoResolver resolves names with the platform lookup facilities via net.Resolver.
type GoResolver struct {
	resolver *net.Resolver
}

// NewGoResolver creates a GoResolver backed by the default system resolver.
func NewGoResolver() *GoResolver {
	return &GoResolver{resolver: net.DefaultResolver}
}

func (r *GoResolver) Resolve(ctx context.Context, name Name) ([]netip.AddrPort, error) {
	ips, err := r.resolver.LookupIPAddr(ctx, name.String())
	if err != nil {
		return nil, errors.WithMessagef(err, "look up %s", name)
	}

	addrs := make([]netip.AddrPort, 0, len(ips))
	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip.IP)
		if !ok {
			continue
		}
		addrs = append(addrs, netip.AddrPortFrom(addr.Unmap(), 0))
	}
	return addrs, nil
}
