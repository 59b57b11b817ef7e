package dns

import (
	"context"
	"net/netip"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CachingResolver memoizes successful lookups of the wrapped resolver for a
// fixed TTL. Concurrent lookups for the same cold name share one inner
// resolution. Failures are not cached.
type CachingResolver struct {
	inner Resolver
	ttl   time.Duration

	group singleflight.Group
	cache cmap.ConcurrentMap[string, cacheEntry]

	lg *zap.Logger
}

type cacheEntry struct {
	addrs     []netip.AddrPort
	expiresAt time.Time
}

// NewCachingResolver creates a CachingResolver with the given TTL.
func NewCachingResolver(inner Resolver, ttl time.Duration, lg *zap.Logger) *CachingResolver {
	return &CachingResolver{
		inner: inner,
		ttl:   ttl,
		cache: cmap.New[cacheEntry](),
		lg:    lg,
	}
}

func (r *CachingResolver) Resolve(ctx context.Context, name Name) ([]netip.AddrPort, error) {
	host := name.String()
	if entry, ok := r.cache.Get(host); ok {
		if time.Now().Before(entry.expiresAt) {
			return append([]netip.AddrPort(nil), entry.addrs...), nil
		}
		r.lg.Debug("cached addresses expired", zap.String("host", host))
	}

	// The shared lookup is detached from any caller's context, so a caller
	// giving up early does not fail the other sharers of the flight. ctx only
	// bounds the wait; the wrapped resolver carries its own timeout.
	ch := r.group.DoChan(host, func() (interface{}, error) {
		// Re-check: another flight may have refreshed the entry already.
		if entry, ok := r.cache.Get(host); ok && time.Now().Before(entry.expiresAt) {
			return entry.addrs, nil
		}

		addrs, err := r.inner.Resolve(context.Background(), name)
		if err != nil {
			return nil, err
		}
		r.cache.Set(host, cacheEntry{addrs: addrs, expiresAt: time.Now().Add(r.ttl)})
		return addrs, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		addrs := res.Val.([]netip.AddrPort)
		return append([]netip.AddrPort(nil), addrs...), nil
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "wait for resolution of %s", host)
	}
}
