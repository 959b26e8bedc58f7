/*
Package redis provides a Redis-backed booking.CounterStore.

PURPOSE:
  Lets several lodge-engine processes share receipt and reference numbering
  without sharing a SQLite file. Each counter is a hash:

    {prefix}:{id}  ->  counter, updated_at

  Increment and timestamp are applied by one Lua script, so the hash is never
  observed half-written.

ERRORS:
  Network and server errors are reported as booking.TransientStorageError;
  the Numberer retries those with backoff before falling back.

SEE ALSO:
  - booking/numbering.go: retry and fallback policy
  - store/sqlite: single-node counter implementation
*/
package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/warp/lodge-engine/booking"
)

const DefaultPrefix = "lodge:counter"

var nextScript = goredis.NewScript(`
	local n = redis.call('HINCRBY', KEYS[1], 'counter', 1)
	redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
	return n
`)

// CounterStore implements booking.CounterStore on a Redis client.
type CounterStore struct {
	rdb    goredis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewCounterStore wraps rdb. An empty prefix uses DefaultPrefix.
func NewCounterStore(rdb goredis.UniversalClient, prefix string) *CounterStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &CounterStore{rdb: rdb, prefix: prefix, now: func() time.Time { return time.Now().UTC() }}
}

func (c *CounterStore) key(id string) string {
	return c.prefix + ":" + id
}

// NextCounter creates the counter at 1 or increments it.
func (c *CounterStore) NextCounter(ctx context.Context, id string) (int64, error) {
	n, err := nextScript.Run(ctx, c.rdb, []string{c.key(id)}, c.now().Format(time.RFC3339Nano)).Int64()
	if err != nil {
		return 0, wrapErr("next counter", err)
	}
	return n, nil
}

// GetCounter returns the stored counter document.
func (c *CounterStore) GetCounter(ctx context.Context, id string) (booking.PeriodCounter, error) {
	vals, err := c.rdb.HGetAll(ctx, c.key(id)).Result()
	if err != nil {
		return booking.PeriodCounter{}, wrapErr("get counter", err)
	}
	if len(vals) == 0 {
		return booking.PeriodCounter{}, &booking.NotFoundError{Kind: "counter", ID: id}
	}
	n, err := strconv.ParseInt(vals["counter"], 10, 64)
	if err != nil {
		return booking.PeriodCounter{}, err
	}
	updated, _ := time.Parse(time.RFC3339Nano, vals["updated_at"])
	return booking.PeriodCounter{ID: id, Counter: n, UpdatedAt: updated}, nil
}

// SetCounter seeds or overwrites a counter.
func (c *CounterStore) SetCounter(ctx context.Context, id string, value int64) error {
	err := c.rdb.HSet(ctx, c.key(id), "counter", value, "updated_at", c.now().Format(time.RFC3339Nano)).Err()
	return wrapErr("set counter", err)
}

// Ping verifies the server is reachable.
func (c *CounterStore) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &booking.TransientStorageError{Op: op, Err: err}
}
