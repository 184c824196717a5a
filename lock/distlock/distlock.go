/*
Package distlock implements inventory.Locker on Redis with bsm/redislock.

PURPOSE:
  KeyMutex only serializes goroutines inside one process. When several
  server instances share a PostgreSQL database, a balance row that does
  not exist yet cannot be row-locked, so the first postings for a pair
  need a lock every instance can see. This package provides it.

KEYS:
  One Redis key per balance pair: "<prefix>balance:<resource>:<unit>".
  Keys are obtained in sorted order and released in reverse, so two
  operations with overlapping key sets cannot deadlock.

TTL:
  Every lock expires after TTL even if the holder crashes. TTL must be
  longer than the slowest expected transaction; see LOCK_TTL.

FAILURE:
  A key that stays held past the retry budget yields
  inventory.ErrLockNotObtained (retryable, KindStore). Keys already
  obtained for the same call are released before returning.
*/
package distlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/warp/stock-engine/inventory"
)

// Options configures a Locker.
type Options struct {
	// Prefix namespaces keys, e.g. "stock:". Defaults to "stock:".
	Prefix string
	// TTL is the lock lifetime. Defaults to 10s.
	TTL time.Duration
	// Backoff is the delay between attempts while a key is held elsewhere.
	// Defaults to 50ms.
	Backoff time.Duration
	// Attempts is the maximum number of retries per key. Defaults to 100.
	Attempts int
}

// Locker is a Redis-backed inventory.Locker.
type Locker struct {
	client *redislock.Client
	opts   Options
	log    logrus.FieldLogger
}

var _ inventory.Locker = (*Locker)(nil)

// New wraps an existing go-redis client.
func New(rdb redis.UniversalClient, opts Options, log logrus.FieldLogger) *Locker {
	if opts.Prefix == "" {
		opts.Prefix = "stock:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 50 * time.Millisecond
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 100
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Locker{client: redislock.New(rdb), opts: opts, log: log}
}

// Dial connects to addr, pings it and returns a Locker with the client.
// The caller closes the client on shutdown.
func Dial(ctx context.Context, addr string, opts Options, log logrus.FieldLogger) (*Locker, *redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect redis at %s: %w", addr, err)
	}
	return New(rdb, opts, log), rdb, nil
}

// Key returns the Redis key used for a balance pair.
func (l *Locker) Key(k inventory.BalanceKey) string {
	return fmt.Sprintf("%sbalance:%d:%d", l.opts.Prefix, k.ResourceID, k.UnitID)
}

// Lock obtains every key or none.
func (l *Locker) Lock(ctx context.Context, keys []inventory.BalanceKey) (func(), error) {
	keys = inventory.SortKeys(keys)
	held := make([]*redislock.Lock, 0, len(keys))

	release := func() {
		// Release must run even when ctx is already cancelled.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.log.WithFields(logrus.Fields{
					"key": held[i].Key(),
				}).WithError(err).Warn("failed to release redis lock")
			}
		}
	}

	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.opts.Backoff), l.opts.Attempts),
	}
	for _, k := range keys {
		lock, err := l.client.Obtain(ctx, l.Key(k), l.opts.TTL, opts)
		if errors.Is(err, redislock.ErrNotObtained) {
			release()
			l.log.WithField("key", l.Key(k)).Warn("could not obtain redis lock")
			return nil, fmt.Errorf("%w: %s", inventory.ErrLockNotObtained, k)
		}
		if err != nil {
			release()
			return nil, inventory.WrapStore("obtain redis lock", err)
		}
		held = append(held, lock)
	}

	return release, nil
}
