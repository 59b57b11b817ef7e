package dns

import (
	"context"
	"net/netip"
	"time"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const (
	_defaultEtcdPrefix  = "/fetch/endpoints"
	_defaultEtcdTimeout = 5 * time.Second
)

// EtcdResolver resolves names from an endpoint registry kept in etcd.
// Endpoints for host h live under <prefix>/<h>/, one key per endpoint,
// each value an "ip:port" literal. A host with no registered endpoints
// resolves to an empty set, which the connector reports as a failure.
type EtcdResolver struct {
	client  *clientv3.Client
	prefix  string
	timeout time.Duration

	lg *zap.Logger
}

// NewEtcdResolver creates an EtcdResolver on an existing client.
// The caller keeps ownership of the client and is responsible for closing it.
func NewEtcdResolver(client *clientv3.Client, prefix string, timeout time.Duration, lg *zap.Logger) *EtcdResolver {
	if prefix == "" {
		prefix = _defaultEtcdPrefix
	}
	if timeout <= 0 {
		timeout = _defaultEtcdTimeout
	}
	return &EtcdResolver{
		client:  client,
		prefix:  prefix,
		timeout: timeout,
		lg:      lg,
	}
}

func (r *EtcdResolver) Resolve(ctx context.Context, name Name) ([]netip.AddrPort, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	keyPrefix := r.prefix + "/" + name.String() + "/"
	resp, err := r.client.Get(ctx, keyPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, errors.WithMessagef(err, "get endpoints under %s", keyPrefix)
	}

	addrs := make([]netip.AddrPort, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		addr, err := netip.ParseAddrPort(string(kv.Value))
		if err != nil {
			r.lg.Warn("invalid endpoint in registry, skipping", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}
