package dns

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCachingResolver_SharesInFlightLookup(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	want := []netip.AddrPort{mustAddrPort(t, "203.0.113.1:0")}
	inner := &staticResolver{addrs: want, delay: 50 * time.Millisecond}
	resolver := NewCachingResolver(inner, time.Minute, zap.NewNop())

	name := mustName(t, gofakeit.DomainName())

	const waiters = 10
	var wg sync.WaitGroup
	results := make([][]netip.AddrPort, waiters)
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = resolver.Resolve(context.Background(), name)
		}()
	}
	wg.Wait()

	for i := 0; i < waiters; i++ {
		re.NoError(errs[i])
		re.Equal(want, results[i])
	}
	re.Equal(1, inner.callCount(), "concurrent lookups must share one inner resolution")
}

func TestCachingResolver_TTL(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	inner := &staticResolver{addrs: []netip.AddrPort{mustAddrPort(t, "203.0.113.1:0")}}
	resolver := NewCachingResolver(inner, 20*time.Millisecond, zap.NewNop())

	_, err := resolver.Resolve(context.Background(), mustName(t, "ttl.test"))
	re.NoError(err)
	_, err = resolver.Resolve(context.Background(), mustName(t, "ttl.test"))
	re.NoError(err)
	re.Equal(1, inner.callCount())

	time.Sleep(50 * time.Millisecond)

	_, err = resolver.Resolve(context.Background(), mustName(t, "ttl.test"))
	re.NoError(err)
	re.Equal(2, inner.callCount(), "expired entry must be refreshed")
}

func TestCachingResolver_WaiterCancellation(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	want := []netip.AddrPort{mustAddrPort(t, "203.0.113.1:0")}
	inner := &staticResolver{addrs: want, delay: 100 * time.Millisecond}
	resolver := NewCachingResolver(inner, time.Minute, zap.NewNop())

	name := mustName(t, "cancel.test")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := resolver.Resolve(ctx, name)
	re.ErrorIs(err, context.DeadlineExceeded)

	// the lookup outlives the canceled waiter and its result serves the next one
	addrs, err := resolver.Resolve(context.Background(), name)
	re.NoError(err)
	re.Equal(want, addrs)
	re.Equal(1, inner.callCount(), "canceled waiter must not abort the lookup")
}

func TestCachingResolver_FailureNotCached(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	inner := &staticResolver{err: errors.New("lookup failed")}
	resolver := NewCachingResolver(inner, time.Minute, zap.NewNop())

	_, err := resolver.Resolve(context.Background(), mustName(t, "flaky.test"))
	re.ErrorContains(err, "lookup failed")

	inner.err = nil
	inner.addrs = []netip.AddrPort{mustAddrPort(t, "203.0.113.1:0")}

	addrs, err := resolver.Resolve(context.Background(), mustName(t, "flaky.test"))
	re.NoError(err)
	re.Equal(inner.addrs, addrs)
	re.Equal(2, inner.callCount())
}
