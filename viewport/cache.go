package viewport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tileview/metrics"
)

// State of a tile entry.
type State int

const (
	Pending State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Entry is a snapshot of the cache record for one key.
type Entry struct {
	Key     TileKey
	State   State
	Payload []byte
	Err     error
}

// FetchFunc loads the payload of one tile.
type FetchFunc func(ctx context.Context, key TileKey) ([]byte, error)

type entry struct {
	key  TileKey
	done chan struct{}

	// guarded by Cache.mu until done is closed, immutable afterwards
	state   State
	payload []byte
	err     error
}

func (e *entry) snapshot() Entry {
	return Entry{Key: e.key, State: e.state, Payload: e.payload, Err: e.err}
}

// Cache maps tile keys to entries and keeps at most one fetch in flight per
// key. Entries are never evicted.
type Cache struct {
	mu      sync.Mutex
	entries map[TileKey]*entry
	log     logrus.FieldLogger
}

// NewCache creates an empty cache. A nil logger falls back to the logrus
// standard logger.
func NewCache(l logrus.FieldLogger) *Cache {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &Cache{
		entries: make(map[TileKey]*entry),
		log:     l,
	}
}

// Get returns the current entry for key, if one was ever requested.
func (c *Cache) Get(key TileKey) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.snapshot(), true
}

// Len returns the number of keys ever requested.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Ensure attaches to the entry for key, starting fetch only when the key has
// never been requested or its last attempt failed transiently. Pending and
// Ready entries, and tiles that are permanently missing, never cause a call
// to fetch. Ensure panics with *InvalidCoordinateError for keys outside the
// grid.
func (c *Cache) Ensure(ctx context.Context, key TileKey, fetch FetchFunc) *Future {
	mustValid(key)

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && !(e.state == Failed && IsTransient(e.err)) {
		c.mu.Unlock()
		metrics.CacheHits.Inc()
		return &Future{e: e}
	}
	retry := ok
	e = &entry{key: key, state: Pending, done: make(chan struct{})}
	c.entries[key] = e
	metrics.CacheEntries.Set(float64(len(c.entries)))
	c.mu.Unlock()

	metrics.CacheMisses.Inc()
	if retry {
		c.log.WithFields(keyFields(key)).Debug("retrying failed tile")
	}
	go c.run(ctx, e, fetch)
	return &Future{e: e}
}

func (c *Cache) run(ctx context.Context, e *entry, fetch FetchFunc) {
	start := time.Now()
	payload, err := safeFetch(ctx, e.key, fetch)
	metrics.TileFetchLatency.Observe(time.Since(start).Seconds())

	l := c.log.WithFields(keyFields(e.key))
	c.mu.Lock()
	if err != nil {
		e.state = Failed
		e.err = err
	} else {
		e.state = Ready
		e.payload = payload
	}
	c.mu.Unlock()
	defer close(e.done)

	switch {
	case err == nil:
		metrics.TileFetches.WithLabelValues("ok").Inc()
		l.Debugf("tile ready, %dms, %.2f kb", time.Since(start).Milliseconds(), float32(len(payload))/1024.0)
	case errors.Is(err, ErrNotFound):
		metrics.TileFetches.WithLabelValues("not_found").Inc()
		l.Debugf("tile not found: %s", err)
	default:
		metrics.TileFetches.WithLabelValues("network_error").Inc()
		l.Warnf("tile fetch failed: %s", err)
	}
}

func safeFetch(ctx context.Context, key TileKey, fetch FetchFunc) (payload []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch %s panicked: %v", key, r)
		}
	}()
	return fetch(ctx, key)
}

// Future is a handle on one fetch attempt for a key.
type Future struct {
	e *entry
}

// Key returns the key the future resolves.
func (f *Future) Key() TileKey {
	return f.e.key
}

// Done is closed once the attempt settled as Ready or Failed.
func (f *Future) Done() <-chan struct{} {
	return f.e.done
}

// Wait blocks until the attempt settled or ctx is done.
func (f *Future) Wait(ctx context.Context) (Entry, error) {
	select {
	case <-f.e.done:
		return f.e.snapshot(), nil
	case <-ctx.Done():
		return Entry{Key: f.e.key, State: Pending}, ctx.Err()
	}
}

func keyFields(k TileKey) logrus.Fields {
	return logrus.Fields{"z": k.Zoom, "x": k.X, "y": k.Y}
}
