package dns

import (
	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gofetch/fetch/pkg/config"
	"github.com/gofetch/fetch/pkg/util/logutil"
)

// NewFromConfig builds the resolver stack described by cfg: a base resolver
// by kind, a caching layer if a TTL is set, and the override layer outermost
// so pinned hosts bypass both the cache and the network.
//
// The returned close function releases resources owned by the stack and must
// be called once the resolver is no longer needed.
func NewFromConfig(cfg *config.Resolver, lg *zap.Logger) (Resolver, func(), error) {
	closeFn := func() {}

	var base Resolver
	switch cfg.Kind {
	case config.ResolverGo, "":
		base = NewGoResolver()
	case config.ResolverDNS:
		base = NewDNSResolver(cfg.Servers, cfg.Timeout, lg)
	case config.ResolverEtcd:
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.EtcdEndpoints,
			DialTimeout: cfg.Timeout,
			Logger:      logutil.IncreaseLevel(lg, zapcore.WarnLevel),
		})
		if err != nil {
			return nil, nil, errors.WithMessage(err, "create etcd client")
		}
		base = NewEtcdResolver(client, cfg.EtcdPrefix, cfg.Timeout, lg)
		closeFn = func() { _ = client.Close() }
	default:
		return nil, nil, errors.Errorf("unknown resolver kind `%s`", cfg.Kind)
	}

	resolver := base
	if cfg.CacheTTL > 0 {
		resolver = NewCachingResolver(resolver, cfg.CacheTTL, lg)
	}
	if overrides := cfg.Overrides(); len(overrides) > 0 {
		resolver = NewOverrideResolver(resolver, overrides)
	}
	return resolver, closeFn, nil
}
