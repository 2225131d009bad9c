// Package cache is the process-wide store of remote query results.
//
// Entries are addressed by canonical cache keys (see store/query). Reads go through
// Fetch, which serves a fresh entry or runs exactly one shared fetch per key and
// generation. Writes never touch entries directly: a successful mutation calls
// Invalidate, which marks matching entries stale so the next read refetches.
package cache

import (
	"container/list"
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/hrygo/backoffice/internal/observability"
)

// Config holds the cache configuration.
type Config struct {
	DefaultTTL      time.Duration // Max age of a fetched value before it is treated as stale
	CleanupInterval time.Duration // Interval for expired entry cleanup
	MaxItems        int           // LRU capacity
	// OnEviction is called, outside the lock, for entries removed by capacity or expiry.
	OnEviction func(key string, value any)
	// Metrics, when set, receives hit/miss/shared/invalidation counts.
	Metrics *observability.Metrics
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:      5 * time.Minute,
		CleanupInterval: time.Minute,
		MaxItems:        1000,
	}
}

// Fetcher loads the value of one key from the server.
type Fetcher func(ctx context.Context) (any, error)

// Entry is a point-in-time view of a cached key.
type Entry struct {
	Key       string
	Value     any
	HasValue  bool
	Stale     bool
	Fetching  bool
	Err       error // last fetch error, cleared by the next successful fetch
	FetchedAt time.Time
	ExpiresAt time.Time
}

type item struct {
	key        string
	value      any
	hasValue   bool
	stale      bool
	err        error
	generation uint64
	inflight   int
	fetchedAt  time.Time
	expiresAt  time.Time
	element    *list.Element
}

func (it *item) fresh(now time.Time) bool {
	return it.hasValue && !it.stale && now.Before(it.expiresAt)
}

// Stats holds cache counters.
type Stats struct {
	Size          int
	Hits          int64
	Misses        int64
	Shared        int64
	Invalidations int64
}

// Cache is safe for concurrent use. Create one per process (or per test) and inject it.
type Cache struct {
	config Config

	mu    sync.Mutex
	items map[string]*item
	order *list.List // front = most recently used

	group      singleflight.Group
	generation uint64 // last generation handed out, under mu

	subMu       sync.RWMutex
	subscribers map[int]func(key string)
	nextSubID   int

	hits          atomic.Int64
	misses        atomic.Int64
	shared        atomic.Int64
	invalidations atomic.Int64

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a cache and starts its cleanup loop.
func New(config Config) *Cache {
	defaults := DefaultConfig()
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = defaults.DefaultTTL
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if config.MaxItems <= 0 {
		config.MaxItems = defaults.MaxItems
	}

	c := &Cache{
		config:      config,
		items:       make(map[string]*item),
		order:       list.New(),
		subscribers: make(map[int]func(string)),
		stop:        make(chan struct{}),
	}

	c.wg.Add(1)
	go c.cleanupLoop()
	return c
}

// Close stops the cleanup loop. It is safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()
	})
}

// Fetch returns the fresh value of key, or loads it with fetch. Concurrent callers
// for the same key share one in-flight fetch. A caller whose ctx ends stops waiting;
// the shared fetch keeps running for the others.
func (c *Cache) Fetch(ctx context.Context, key string, fetch Fetcher) (any, error) {
	if key == "" {
		return nil, errors.New("cache key is required")
	}

	now := time.Now()
	c.mu.Lock()
	it, ok := c.items[key]
	if ok && it.fresh(now) {
		c.order.MoveToFront(it.element)
		value := it.value
		c.mu.Unlock()
		c.recordHit()
		return value, nil
	}
	var evicted []*item
	if !ok {
		it, evicted = c.insertLocked(key)
	}
	generation := it.generation
	// Pinned until this caller stops waiting, so eviction cannot drop the entry
	// before the fetch has registered.
	it.inflight++
	c.mu.Unlock()
	defer c.release(it)
	c.notifyEvicted(evicted)
	c.recordMiss()

	flightKey := key + "#" + strconv.FormatUint(generation, 10)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		c.begin(it)
		value, err := fetch(context.WithoutCancel(ctx))
		c.complete(it, generation, value, err)
		return value, err
	})

	select {
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "waiting for %s", key)
	case res := <-ch:
		if res.Shared {
			c.recordShared()
		}
		return res.Val, res.Err
	}
}

func (c *Cache) begin(it *item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it.inflight++
}

func (c *Cache) release(it *item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if it.inflight > 0 {
		it.inflight--
	}
}

// complete stores the outcome of a fetch started at generation.
func (c *Cache) complete(it *item, generation uint64, value any, err error) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if it.inflight > 0 {
		it.inflight--
	}
	if c.items[it.key] != it {
		// Removed while in flight, so a later invalidation could not reach it.
		return
	}

	if it.generation != generation {
		// Invalidated while in flight: the result predates the mutation.
		if err == nil && (!it.hasValue || it.stale) {
			it.value = value
			it.hasValue = true
			it.fetchedAt = now
			it.expiresAt = now.Add(c.config.DefaultTTL)
			it.stale = true
		}
		return
	}

	if err != nil {
		it.err = err
		return
	}
	it.value = value
	it.hasValue = true
	it.stale = false
	it.err = nil
	it.fetchedAt = now
	it.expiresAt = now.Add(c.config.DefaultTTL)
}

// insertLocked adds an empty item, evicting least recently used idle items over capacity.
func (c *Cache) insertLocked(key string) (*item, []*item) {
	var evicted []*item
	for e := c.order.Back(); e != nil && len(c.items) >= c.config.MaxItems; {
		prev := e.Prev()
		victim := e.Value.(*item)
		if victim.inflight == 0 {
			c.removeLocked(victim)
			evicted = append(evicted, victim)
		}
		e = prev
	}

	c.generation++
	it := &item{key: key, generation: c.generation}
	it.element = c.order.PushFront(it)
	c.items[key] = it
	return it, evicted
}

func (c *Cache) removeLocked(it *item) {
	c.order.Remove(it.element)
	delete(c.items, it.key)
}

// Peek returns the current state of key without fetching or touching LRU order.
func (c *Cache) Peek(key string) (Entry, bool) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok {
		return Entry{}, false
	}
	return Entry{
		Key:       it.key,
		Value:     it.value,
		HasValue:  it.hasValue,
		Stale:     it.hasValue && !it.fresh(now),
		Fetching:  it.inflight > 0,
		Err:       it.err,
		FetchedAt: it.fetchedAt,
		ExpiresAt: it.expiresAt,
	}, true
}

// Invalidate marks key stale. It reports whether the key was cached.
func (c *Cache) Invalidate(key string) bool {
	return len(c.InvalidateMatching(func(k string) bool { return k == key })) > 0
}

// InvalidateMatching marks every key accepted by match stale and returns those keys
// sorted. In-flight fetches of those keys will not be served as fresh.
func (c *Cache) InvalidateMatching(match func(key string) bool) []string {
	c.mu.Lock()
	var keys []string
	c.generation++
	for key, it := range c.items {
		if !match(key) {
			continue
		}
		it.stale = true
		it.generation = c.generation
		keys = append(keys, key)
	}
	c.mu.Unlock()

	sort.Strings(keys)
	if n := len(keys); n > 0 {
		c.invalidations.Add(int64(n))
		if c.config.Metrics != nil {
			c.config.Metrics.RecordInvalidations(n)
		}
		c.notifySubscribers(keys)
	}
	return keys
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if it, ok := c.items[key]; ok {
		c.removeLocked(it)
	}
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*item)
	c.order.Init()
}

// Size returns the number of entries in the cache.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns all cached keys sorted.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	keys := make([]string, 0, len(c.items))
	for key := range c.items {
		keys = append(keys, key)
	}
	c.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	return Stats{
		Size:          c.Size(),
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Shared:        c.shared.Load(),
		Invalidations: c.invalidations.Load(),
	}
}

// Subscribe registers fn to be called with every invalidated key. The returned
// function removes the subscription.
func (c *Cache) Subscribe(fn func(key string)) (cancel func()) {
	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subscribers, id)
		c.subMu.Unlock()
	}
}

func (c *Cache) notifySubscribers(keys []string) {
	c.subMu.RLock()
	subs := make([]func(string), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.subMu.RUnlock()

	for _, key := range keys {
		for _, fn := range subs {
			fn(key)
		}
	}
}

func (c *Cache) notifyEvicted(evicted []*item) {
	if c.config.OnEviction == nil {
		return
	}
	for _, it := range evicted {
		c.config.OnEviction(it.key, it.value)
	}
}

func (c *Cache) recordHit() {
	c.hits.Add(1)
	if c.config.Metrics != nil {
		c.config.Metrics.RecordCacheHit()
	}
}

func (c *Cache) recordMiss() {
	c.misses.Add(1)
	if c.config.Metrics != nil {
		c.config.Metrics.RecordCacheMiss()
	}
}

func (c *Cache) recordShared() {
	c.shared.Add(1)
	if c.config.Metrics != nil {
		c.config.Metrics.RecordCacheShared()
	}
}

// CleanupExpired removes expired idle entries and returns how many were removed.
func (c *Cache) CleanupExpired() int {
	now := time.Now()
	c.mu.Lock()
	var expired []*item
	for _, it := range c.items {
		if it.inflight == 0 && it.hasValue && !now.Before(it.expiresAt) {
			expired = append(expired, it)
		}
	}
	for _, it := range expired {
		c.removeLocked(it)
	}
	c.mu.Unlock()

	c.notifyEvicted(expired)
	return len(expired)
}

func (c *Cache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.CleanupExpired()
		}
	}
}
