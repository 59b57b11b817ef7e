package dns

import (
	"context"
	"net/netip"
)

// OverrideResolver pins specific host names to fixed addresses and delegates
// everything else to the wrapped resolver. Pinned lookups never touch the
// network and have no failure path. The override map is fixed at construction
// time, so the resolver is safe for concurrent use as long as the inner one is.
type OverrideResolver struct {
	inner     Resolver
	overrides map[string][]netip.AddrPort
}

// NewOverrideResolver creates an OverrideResolver. The overrides map is
// copied; later mutation by the caller has no effect.
func NewOverrideResolver(inner Resolver, overrides map[string][]netip.AddrPort) *OverrideResolver {
	m := make(map[string][]netip.AddrPort, len(overrides))
	for host, addrs := range overrides {
		m[host] = append([]netip.AddrPort(nil), addrs...)
	}
	return &OverrideResolver{inner: inner, overrides: m}
}

func (r *OverrideResolver) Resolve(ctx context.Context, name Name) ([]netip.AddrPort, error) {
	if addrs, ok := r.overrides[name.String()]; ok {
		return append([]netip.AddrPort(nil), addrs...), nil
	}
	return r.inner.Resolve(ctx, name)
}
