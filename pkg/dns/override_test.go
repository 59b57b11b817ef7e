package dns

import (
	"context"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOverrideResolver_Pinned(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	inner := &staticResolver{addrs: []netip.AddrPort{mustAddrPort(t, "203.0.113.1:0")}}
	pinned := []netip.AddrPort{mustAddrPort(t, "10.0.0.1:8443"), mustAddrPort(t, "10.0.0.2:0")}
	resolver := NewOverrideResolver(inner, map[string][]netip.AddrPort{
		"pinned.test": pinned,
	})

	addrs, err := resolver.Resolve(context.Background(), mustName(t, "pinned.test"))
	re.NoError(err)
	re.Equal(pinned, addrs)
	re.Zero(inner.callCount(), "pinned lookup must not reach the inner resolver")
}

func TestOverrideResolver_Delegates(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	want := []netip.AddrPort{mustAddrPort(t, "203.0.113.1:0")}
	inner := &staticResolver{addrs: want}
	resolver := NewOverrideResolver(inner, map[string][]netip.AddrPort{
		"pinned.test": {mustAddrPort(t, "10.0.0.1:0")},
	})

	addrs, err := resolver.Resolve(context.Background(), mustName(t, "other.test"))
	re.NoError(err)
	re.Equal(want, addrs)
	re.Equal(1, inner.callCount())
}

func TestOverrideResolver_CopiesOverrides(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	overrides := map[string][]netip.AddrPort{
		"pinned.test": {mustAddrPort(t, "10.0.0.1:0")},
	}
	resolver := NewOverrideResolver(&staticResolver{}, overrides)

	// mutations after construction must not be observed
	overrides["pinned.test"] = []netip.AddrPort{mustAddrPort(t, "192.0.2.9:0")}
	delete(overrides, "pinned.test")

	addrs, err := resolver.Resolve(context.Background(), mustName(t, "pinned.test"))
	re.NoError(err)
	re.Equal([]netip.AddrPort{mustAddrPort(t, "10.0.0.1:0")}, addrs)
}
