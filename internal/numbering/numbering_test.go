package numbering

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSequencer(client *redis.Client) *Sequencer {
	s := New(client)
	s.now = func() time.Time { return time.Date(2026, 10, 19, 23, 0, 0, 0, time.UTC) }
	return s
}

func TestSequencerDailyCounter(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()
	s := fixedSequencer(client)
	ctx := context.Background()

	first, err := s.Next(ctx, PrefixQuotation)
	require.NoError(t, err)
	assert.Equal(t, "QT-20261019-000001", first)

	second, err := s.Next(ctx, PrefixQuotation)
	require.NoError(t, err)
	assert.Equal(t, "QT-20261019-000002", second)

	order, err := s.Next(ctx, PrefixOrder)
	require.NoError(t, err)
	assert.Equal(t, "ORD-20261019-000001", order)

	assert.Greater(t, srv.TTL("numbering:QT:20261019"), time.Duration(0))
}

func TestSequencerUniqueUnderConcurrency(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()
	s := fixedSequencer(client)

	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.Next(context.Background(), PrefixInvoice)
			if err != nil {
				return
			}
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 25)
}

func TestSequencerWithoutRedis(t *testing.T) {
	s := fixedSequencer(nil)
	a, err := s.Next(context.Background(), PrefixOrder)
	require.NoError(t, err)
	b, err := s.Next(context.Background(), PrefixOrder)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^ORD-20261019-[0-9A-F]{10}$`, a)
}
