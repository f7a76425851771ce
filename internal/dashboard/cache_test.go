package dashboard

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marsukat/marsukat-dashboard/internal/aggregate"
	"github.com/marsukat/marsukat-dashboard/internal/upstream"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestCacheKeyCarriesGenerations(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	query := url.Values{"year": {"2024"}}

	key, err := cache.Key(ctx, upstream.ResourceProduction, query)
	require.NoError(t, err)
	assert.Equal(t, "dashboard:records:production:g0.r0:year=2024", key)

	_, err = cache.Bump(ctx)
	require.NoError(t, err)
	ver, err := cache.BumpResource(ctx, upstream.ResourceProduction)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)

	key, err = cache.Key(ctx, upstream.ResourceProduction, query)
	require.NoError(t, err)
	assert.Equal(t, "dashboard:records:production:g1.r1:year=2024", key)

	key, err = cache.Key(ctx, upstream.ResourceRentals, nil)
	require.NoError(t, err)
	assert.Equal(t, "dashboard:records:rentals:g1.r0:", key)
}

func TestCacheConcurrentMissesShareOneLoad(t *testing.T) {
	cache := newTestCache(t)
	release := make(chan struct{})
	var loads atomic.Int32
	load := func(ctx context.Context) ([]aggregate.Record, error) {
		loads.Add(1)
		<-release
		return []aggregate.Record{{ProductType: "Polo", Quantity: aggregate.Num(2)}}, nil
	}

	const callers = 8
	results := make([][]aggregate.Record, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records, err := cache.Records(context.Background(), upstream.ResourceOrderItems, nil, load)
			assert.NoError(t, err)
			results[i] = records
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	results[0][0].ProductType = "changed"
	for i := 1; i < callers; i++ {
		require.Len(t, results[i], 1)
		assert.Equal(t, "Polo", results[i][0].ProductType)
	}
}

func TestNilCacheLoadsDirectly(t *testing.T) {
	var cache *Cache
	records, err := cache.Records(context.Background(), upstream.ResourceRentals, nil, func(ctx context.Context) ([]aggregate.Record, error) {
		return []aggregate.Record{{Status: "Pending"}}, nil
	})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	ver, err := cache.BumpResource(context.Background(), upstream.ResourceRentals)
	require.NoError(t, err)
	assert.Zero(t, ver)
}

func TestInvalidateResourceKeepsOtherResourcesCached(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set(upstream.ResourceProduction, "2024", produced("2024-01-05", "Polo", 10))
	fetcher.set(upstream.ResourceSalesReport, "2024", sale("2024-01-05", "Tailoring", 10))
	svc := newTestService(t, fetcher)
	ctx := context.Background()

	warm := func() {
		_, err := svc.ProductionByMonth(ctx, 2024)
		require.NoError(t, err)
		_, err = svc.SalesByMonthKey(ctx, 2024)
		require.NoError(t, err)
	}
	warm()
	warm()
	assert.Equal(t, 1, fetcher.callCount(upstream.ResourceProduction, "2024"))
	assert.Equal(t, 1, fetcher.callCount(upstream.ResourceSalesReport, "2024"))

	ver, err := svc.InvalidateResource(ctx, upstream.ResourceProduction)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)
	warm()
	assert.Equal(t, 2, fetcher.callCount(upstream.ResourceProduction, "2024"))
	assert.Equal(t, 1, fetcher.callCount(upstream.ResourceSalesReport, "2024"))

	_, err = svc.Invalidate(ctx)
	require.NoError(t, err)
	warm()
	assert.Equal(t, 3, fetcher.callCount(upstream.ResourceProduction, "2024"))
	assert.Equal(t, 2, fetcher.callCount(upstream.ResourceSalesReport, "2024"))
}

func TestInvalidateResourceRejectsUnknownResource(t *testing.T) {
	svc := newTestService(t, newStubFetcher())
	_, err := svc.InvalidateResource(context.Background(), upstream.Resource("payroll"))
	assert.ErrorIs(t, err, ErrInvalidFilter)
}
