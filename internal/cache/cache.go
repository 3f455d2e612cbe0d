// Package cache provides a process-wide, TTL-bounded value cache.
//
// Entries are populated lazily by GetOrCompute and invalidated only by
// TTL expiry. Expired entries are never served. Concurrent misses on the
// same key share one compute call.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bobmcallan/b3cast/internal/common"
	"github.com/bobmcallan/b3cast/internal/metrics"
)

// entry is one cached value with its fetch time and lifetime
type entry struct {
	value     any
	fetchedAt time.Time
	ttl       time.Duration
}

func (e entry) fresh(now time.Time) bool {
	return common.IsFresh(e.fetchedAt, now, e.ttl)
}

// DefaultFlightTimeout bounds a shared compute call once it is detached
// from the caller that started it.
const DefaultFlightTimeout = 5 * time.Minute

// Cache stores values keyed by string. Safe for concurrent use.
type Cache struct {
	mu            sync.Mutex
	entries       map[string]entry
	group         singleflight.Group
	clock         Clock
	metrics       *metrics.Metrics
	logger        *common.Logger
	flightTimeout time.Duration
}

// Option configures a Cache
type Option func(*Cache)

// WithClock injects the time source
func WithClock(clock Clock) Option {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithMetrics records hits and misses
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithFlightTimeout bounds shared compute calls
func WithFlightTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.flightTimeout = d
		}
	}
}

// New creates an empty cache
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:       make(map[string]entry),
		clock:         SystemClock(),
		logger:        common.NewSilentLogger(),
		flightTimeout: DefaultFlightTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the cache's current time
func (c *Cache) Now() time.Time {
	return c.clock.Now()
}

// lookup returns the stored value if it is still fresh. Expired entries
// are removed on the way.
func (c *Cache) lookup(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.fresh(c.clock.Now()) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) store(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = entry{value: value, fetchedAt: c.clock.Now(), ttl: ttl}
	c.mu.Unlock()
}

// Set stores value under key for ttl, replacing any previous entry
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.store(key, value, ttl)
}

// Len returns the number of stored entries, fresh or not
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops expired entries and returns how many were removed
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for key, e := range c.entries {
		if !e.fresh(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// GetOrCompute returns the fresh value stored under key, or runs compute,
// stores its result for ttl and returns it. A ttl of zero or less disables
// storing. Errors from compute are returned and not cached.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	return GetOrComputeTTL(ctx, c, key, func(ctx context.Context) (T, time.Duration, error) {
		v, err := compute(ctx)
		return v, ttl, err
	})
}

// GetOrComputeTTL is GetOrCompute where compute chooses the lifetime of
// its own result, e.g. a shorter TTL for a degraded value.
func GetOrComputeTTL[T any](ctx context.Context, c *Cache, key string, compute func(context.Context) (T, time.Duration, error)) (T, error) {
	var zero T
	prefix := keyPrefix(key)

	if v, ok := c.lookup(key); ok {
		if typed, ok := v.(T); ok {
			c.metrics.ObserveCacheLookup(prefix, true)
			return typed, nil
		}
	}
	c.metrics.ObserveCacheLookup(prefix, false)

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	// The shared call runs detached from the caller that started it, so one
	// cancelled caller does not fail the others waiting on the same key.
	ch := c.group.DoChan(key, func() (any, error) {
		// Another caller may have stored the value while this one waited.
		if v, ok := c.lookup(key); ok {
			if _, ok := v.(T); ok {
				return v, nil
			}
		}
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
		defer cancel()
		value, ttl, err := compute(flightCtx)
		if err != nil {
			return nil, err
		}
		c.store(key, value, ttl)
		c.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("Cache entry stored")
		return value, nil
	})

	var v any
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v = res.Val
	}

	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache: key %q holds %T", key, v)
	}
	return typed, nil
}

func keyPrefix(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}
