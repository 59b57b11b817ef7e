package config

import (
	"net/netip"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gofetch/fetch/pkg/util/typeutil"
)

// Supported resolver kinds.
const (
	ResolverGo   = "go"   // platform lookup facilities
	ResolverDNS  = "dns"  // direct DNS queries
	ResolverEtcd = "etcd" // endpoint registry in etcd
)

const (
	_defaultResolverKind     = ResolverGo
	_defaultResolverTimeout  = 5 * time.Second
	_defaultResolverCacheTTL = 5 * time.Minute
)

// Resolver is configuration for the name-resolution stack.
type Resolver struct {
	// Kind selects the base resolver, one of "go", "dns" or "etcd".
	Kind string

	// Servers are "ip:port" DNS servers for the "dns" kind.
	// Empty means use the system resolver configuration.
	Servers []string

	// Timeout bounds a single lookup.
	Timeout time.Duration

	// CacheTTL is how long successful lookups are memoized. Zero disables caching.
	CacheTTL time.Duration

	// OverridesFile is a TOML file pinning hosts to fixed addresses.
	OverridesFile string

	// EtcdEndpoints and EtcdPrefix locate the registry for the "etcd" kind.
	EtcdEndpoints []string
	EtcdPrefix    string

	overrides map[string][]netip.AddrPort
}

// NewResolver creates a default resolver configuration.
func NewResolver() *Resolver {
	return &Resolver{}
}

type overridesFile struct {
	CacheTTL typeutil.Duration `toml:"cache-ttl"`
	Override []struct {
		Host  string   `toml:"host"`
		Addrs []string `toml:"addrs"`
	} `toml:"override"`
}

// Adjust loads the overrides file, if any. A "cache-ttl" set in the file
// takes precedence over the configured CacheTTL.
func (r *Resolver) Adjust() error {
	if r.OverridesFile == "" {
		return nil
	}

	var file overridesFile
	if _, err := toml.DecodeFile(r.OverridesFile, &file); err != nil {
		return errors.Wrapf(err, "decode overrides file `%s`", r.OverridesFile)
	}
	if file.CacheTTL.Duration > 0 {
		r.CacheTTL = file.CacheTTL.Duration
	}

	overrides := make(map[string][]netip.AddrPort, len(file.Override))
	for _, o := range file.Override {
		addrs := make([]netip.AddrPort, 0, len(o.Addrs))
		for _, s := range o.Addrs {
			addr, err := netip.ParseAddrPort(s)
			if err != nil {
				return errors.Wrapf(err, "parse override address `%s` for host %s", s, o.Host)
			}
			addrs = append(addrs, addr)
		}
		overrides[o.Host] = addrs
	}
	r.overrides = overrides

	return nil
}

// Overrides returns the host pins loaded from the overrides file.
// It can be used after calling Adjust.
func (r *Resolver) Overrides() map[string][]netip.AddrPort {
	return r.overrides
}

// Validate checks whether the resolver configuration is valid.
func (r *Resolver) Validate() error {
	switch r.Kind {
	case ResolverGo, ResolverDNS, ResolverEtcd:
	default:
		return errors.Errorf("unknown resolver kind `%s`", r.Kind)
	}
	if r.Kind == ResolverEtcd && len(r.EtcdEndpoints) == 0 {
		return errors.New("etcd resolver requires at least one endpoint")
	}
	if r.Timeout < 0 {
		return errors.Errorf("negative resolver timeout %s", r.Timeout)
	}
	if r.CacheTTL < 0 {
		return errors.Errorf("negative resolver cache TTL %s", r.CacheTTL)
	}
	return nil
}

func resolverConfigure(v *viper.Viper, fs *pflag.FlagSet) {
	fs.String("resolver-kind", _defaultResolverKind, "name resolver to use. One of: go|dns|etcd")
	fs.StringSlice("resolver-servers", []string{}, "DNS servers for the dns resolver, e.g. 10.0.0.53:53 (default use the system configuration)")
	fs.Duration("resolver-timeout", _defaultResolverTimeout, "timeout for a single lookup")
	fs.Duration("resolver-cache-ttl", _defaultResolverCacheTTL, "how long successful lookups are cached, 0 to disable caching")
	fs.String("resolver-overrides-file", "", "TOML file pinning hosts to fixed addresses")
	fs.StringSlice("resolver-etcd-endpoints", []string{}, "etcd endpoints for the etcd resolver")
	fs.String("resolver-etcd-prefix", "", "key prefix of the endpoint registry in etcd")
	_ = v.BindPFlag("resolver.kind", fs.Lookup("resolver-kind"))
	_ = v.BindPFlag("resolver.servers", fs.Lookup("resolver-servers"))
	_ = v.BindPFlag("resolver.timeout", fs.Lookup("resolver-timeout"))
	_ = v.BindPFlag("resolver.cacheTTL", fs.Lookup("resolver-cache-ttl"))
	_ = v.BindPFlag("resolver.overridesFile", fs.Lookup("resolver-overrides-file"))
	_ = v.BindPFlag("resolver.etcdEndpoints", fs.Lookup("resolver-etcd-endpoints"))
	_ = v.BindPFlag("resolver.etcdPrefix", fs.Lookup("resolver-etcd-prefix"))
}
