package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lodge-engine/booking"
)

func newCounters(t *testing.T) (*miniredis.Miniredis, *CounterStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	return mr, NewCounterStore(rdb, "")
}

func TestNextCounter_CreatesThenIncrements(t *testing.T) {
	mr, counters := newCounters(t)
	ctx := context.Background()

	first, err := counters.NextCounter(ctx, "receipt-012025")
	require.NoError(t, err)
	second, err := counters.NextCounter(ctx, "receipt-012025")
	require.NoError(t, err)

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
	assert.Equal(t, "2", mr.HGet("lodge:counter:receipt-012025", "counter"))
	assert.NotEmpty(t, mr.HGet("lodge:counter:receipt-012025", "updated_at"))
}

func TestSetAndGetCounter(t *testing.T) {
	_, counters := newCounters(t)
	ctx := context.Background()

	require.NoError(t, counters.SetCounter(ctx, "reservation-012025", 7))
	n, err := counters.NextCounter(ctx, "reservation-012025")
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	c, err := counters.GetCounter(ctx, "reservation-012025")
	require.NoError(t, err)
	assert.Equal(t, "reservation-012025", c.ID)
	assert.Equal(t, int64(8), c.Counter)
	assert.WithinDuration(t, time.Now(), c.UpdatedAt, time.Minute)

	_, err = counters.GetCounter(ctx, "receipt-022025")
	assert.True(t, booking.IsNotFound(err))
}

func TestCustomPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	counters := NewCounterStore(rdb, "tenant-a")

	_, err := counters.NextCounter(context.Background(), "receipt-012025")

	require.NoError(t, err)
	assert.True(t, mr.Exists("tenant-a:receipt-012025"))
}

func TestServerDown_IsRetryable(t *testing.T) {
	mr, counters := newCounters(t)
	mr.Close()

	_, err := counters.NextCounter(context.Background(), "receipt-012025")

	require.Error(t, err)
	assert.True(t, booking.IsRetryable(err))
	assert.Error(t, counters.Ping(context.Background()))
}

func TestCancelledContext_IsNotWrapped(t *testing.T) {
	_, counters := newCounters(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := counters.NextCounter(ctx, "receipt-012025")

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, booking.IsRetryable(err))
}

func TestNumbererOverRedis(t *testing.T) {
	// GIVEN: Two numberers sharing one Redis, as two server processes would
	_, counters := newCounters(t)
	clock := booking.FixedClock(time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC))
	a := booking.NewNumberer(counters, clock, nil)
	b := booking.NewNumberer(counters, clock, nil)
	ctx := context.Background()

	// WHEN
	first, err := a.Generate(ctx, booking.ReceiptSequence)
	require.NoError(t, err)
	second, err := b.Generate(ctx, booking.ReceiptSequence)
	require.NoError(t, err)

	// THEN: Numbers continue across processes
	assert.Equal(t, "PAY-012025-00001", first)
	assert.Equal(t, "PAY-012025-00002", second)
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()

	client, err := NewClient(context.Background(), Options{Addr: addr})
	require.NoError(t, err)
	client.Close()

	mr.Close()
	_, err = NewClient(context.Background(), Options{Addr: addr})
	assert.Error(t, err)
}
