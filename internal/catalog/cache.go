package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	rateVersionKey  = "catalog:gst_rates:version"
	rateBumpChannel = "catalog.gst_rates.bump"
)

// RateLoader reads the authoritative rate table.
type RateLoader interface {
	ListRates(ctx context.Context) ([]GSTRate, error)
}

// RateCache holds the process-wide rate snapshot. The snapshot is tagged with
// a version kept in Redis so an edit made by any process invalidates every
// process's copy before its next read. Without Redis the version is local.
type RateCache struct {
	client *redis.Client
	loader RateLoader
	group  singleflight.Group

	mu    sync.RWMutex
	table *RateTable
	local atomic.Int64
}

// NewRateCache constructs the cache. client may be nil.
func NewRateCache(client *redis.Client, loader RateLoader) *RateCache {
	return &RateCache{client: client, loader: loader}
}

// Version returns the current table version.
func (c *RateCache) Version(ctx context.Context) (int64, error) {
	if c.client == nil {
		return c.local.Load(), nil
	}
	ver, err := c.client.Get(ctx, rateVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, rateVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, rateVersionKey).Int64()
	}
	return ver, err
}

// Table returns a snapshot no older than the latest invalidation.
func (c *RateCache) Table(ctx context.Context) (*RateTable, error) {
	if c == nil || c.loader == nil {
		return nil, errors.New("catalog: rate cache not configured")
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: rate version: %w", err)
	}
	c.mu.RLock()
	current := c.table
	c.mu.RUnlock()
	if current != nil && current.Version == ver {
		return current, nil
	}

	resultCh := c.group.DoChan(strconv.FormatInt(ver, 10), func() (interface{}, error) {
		rates, err := c.loader.ListRates(ctx)
		if err != nil {
			return nil, err
		}
		table := NewRateTable(ver, rates)
		c.mu.Lock()
		if c.table == nil || c.table.Version <= ver {
			c.table = table
		}
		c.mu.Unlock()
		return table, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return nil, fmt.Errorf("catalog: load rates: %w", res.Err)
		}
		return res.Val.(*RateTable), nil
	}
}

// Invalidate drops the local snapshot and bumps the shared version.
func (c *RateCache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	c.table = nil
	c.mu.Unlock()
	if c.client == nil {
		c.local.Add(1)
		return nil
	}
	ver, err := c.client.Incr(ctx, rateVersionKey).Result()
	if err != nil {
		return fmt.Errorf("catalog: bump rate version: %w", err)
	}
	return c.client.Publish(ctx, rateBumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// Listen drops the local snapshot whenever another process bumps the version.
// It blocks until ctx is cancelled.
func (c *RateCache) Listen(ctx context.Context) error {
	if c == nil || c.client == nil {
		<-ctx.Done()
		return nil
	}
	sub := c.client.Subscribe(ctx, rateBumpChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("catalog: subscribe %s: %w", rateBumpChannel, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ver, err := strconv.ParseInt(msg.Payload, 10, 64)
			if err != nil {
				continue
			}
			c.mu.Lock()
			if c.table != nil && c.table.Version < ver {
				c.table = nil
			}
			c.mu.Unlock()
		}
	}
}

func (c *RateCache) cached() *RateTable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table
}
