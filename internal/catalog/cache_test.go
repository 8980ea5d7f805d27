package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRateCacheServesSnapshotUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryCatalogRepo()
	repo.rates["cement"] = GSTRate{MaterialCategory: "cement", HSNCode: "2523", CGST: 14, SGST: 14}
	cache := NewRateCache(newRedis(t), repo)

	first, err := cache.Table(ctx)
	require.NoError(t, err)
	_, err = cache.Table(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls())

	rate, ok := first.Lookup("Cement ")
	require.True(t, ok)
	assert.Equal(t, 28.0, rate.Combined())

	repo.rates["cement"] = GSTRate{MaterialCategory: "cement", HSNCode: "2523", CGST: 9, SGST: 9}
	require.NoError(t, cache.Invalidate(ctx))

	second, err := cache.Table(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls())
	assert.Greater(t, second.Version, first.Version)
	rate, _ = second.Lookup("cement")
	assert.Equal(t, 18.0, rate.Combined())
}

func TestRateCacheInvalidationReachesOtherProcesses(t *testing.T) {
	ctx := context.Background()
	client := newRedis(t)
	repo := newMemoryCatalogRepo()
	repo.rates["steel"] = GSTRate{MaterialCategory: "steel", HSNCode: "7214", CGST: 9, SGST: 9}

	apiCache := NewRateCache(client, repo)
	workerCache := NewRateCache(client, repo)

	_, err := workerCache.Table(ctx)
	require.NoError(t, err)

	repo.rates["steel"] = GSTRate{MaterialCategory: "steel", HSNCode: "7214", CGST: 14, SGST: 14}
	require.NoError(t, apiCache.Invalidate(ctx))

	table, err := workerCache.Table(ctx)
	require.NoError(t, err)
	rate, ok := table.Lookup("steel")
	require.True(t, ok)
	assert.Equal(t, 28.0, rate.Combined())
}

func TestRateCacheWithoutRedis(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryCatalogRepo()
	cache := NewRateCache(nil, repo)

	_, err := cache.Table(ctx)
	require.NoError(t, err)
	_, err = cache.Table(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls())

	require.NoError(t, cache.Invalidate(ctx))
	_, err = cache.Table(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls())
}

func TestRateCacheLoadError(t *testing.T) {
	repo := newMemoryCatalogRepo()
	repo.listErr = errors.New("db down")
	cache := NewRateCache(nil, repo)

	_, err := cache.Table(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestRateCacheListenDropsStaleSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := newRedis(t)
	repo := newMemoryCatalogRepo()
	listener := NewRateCache(client, repo)
	editor := NewRateCache(client, repo)

	_, err := listener.Table(ctx)
	require.NoError(t, err)
	require.NotNil(t, listener.cached())

	done := make(chan error, 1)
	go func() { done <- listener.Listen(ctx) }()
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, rateBumpChannel).Result()
		return err == nil && n[rateBumpChannel] == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, editor.Invalidate(ctx))
	assert.Eventually(t, func() bool { return listener.cached() == nil }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}
