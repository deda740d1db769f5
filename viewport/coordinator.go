package viewport

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tileview/metrics"
)

// Fetcher is the tile fetch capability. Implementations return ErrNotFound
// for tiles missing server-side and *NetworkError for transient failures.
type Fetcher interface {
	FetchTile(ctx context.Context, z, x, y int) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, z, x, y int) ([]byte, error)

func (f FetcherFunc) FetchTile(ctx context.Context, z, x, y int) ([]byte, error) {
	return f(ctx, z, x, y)
}

// BatchObserver is notified about reconciliation progress.
type BatchObserver interface {
	BatchStarted(zoom, total int)
	TileSettled(e Entry)
	BatchFinished(zoom int)
}

// Coordinator reconciles the tiles required for a zoom level against the
// cache and joins the outstanding fetches into one frame.
type Coordinator struct {
	cache    *Cache
	fetcher  Fetcher
	log      logrus.FieldLogger
	observer BatchObserver

	// fetches outlive the reconciliation that started them
	fetchCtx     context.Context
	workers      chan struct{}
	timeDelay    time.Duration
	fetchTimeout time.Duration

	paceMu    sync.Mutex
	nextStart time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithWorkers bounds the number of fetches in flight.
func WithWorkers(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = make(chan struct{}, n)
		}
	}
}

// WithTimeDelay spaces the start of consecutive fetches.
func WithTimeDelay(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.timeDelay = d }
}

// WithFetchTimeout bounds each fetch.
func WithFetchTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.fetchTimeout = d }
}

// WithObserver registers a progress observer.
func WithObserver(o BatchObserver) CoordinatorOption {
	return func(c *Coordinator) { c.observer = o }
}

// WithFetchContext sets the context fetches run under. Cancelling it aborts
// every fetch still in flight.
func WithFetchContext(ctx context.Context) CoordinatorOption {
	return func(c *Coordinator) { c.fetchCtx = ctx }
}

// WithCoordinatorLogger sets the logger.
func WithCoordinatorLogger(l logrus.FieldLogger) CoordinatorOption {
	return func(c *Coordinator) { c.log = l }
}

// NewCoordinator creates a coordinator over cache. A nil cache gets a fresh
// one.
func NewCoordinator(cache *Cache, f Fetcher, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		cache:    cache,
		fetcher:  f,
		log:      logrus.StandardLogger(),
		fetchCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = NewCache(c.log)
	}
	return c
}

// Cache returns the cache the coordinator reconciles against.
func (c *Coordinator) Cache() *Cache {
	return c.cache
}

// Reconcile ensures every tile of zoom and returns once all of them settled.
// Failed tiles become placeholders and never abort the batch; the only
// error is ctx expiring before the batch settled.
func (c *Coordinator) Reconcile(ctx context.Context, zoom int) (Frame, error) {
	if zoom < 0 || zoom > 30 {
		panic(&InvalidCoordinateError{Key: TileKey{Zoom: zoom}})
	}
	metrics.Reconciliations.Inc()

	if zoom == 0 {
		return c.reconcileSingle(ctx)
	}

	n := GridSize(zoom)
	total := n * n
	l := c.log.WithField("z", zoom)
	l.Debugf("reconciling %d tiles", total)
	if c.observer != nil {
		c.observer.BatchStarted(zoom, total)
		defer c.observer.BatchFinished(zoom)
	}

	futures := make([]*Future, 0, total)
	for key := range AllCoordinates(zoom) {
		futures = append(futures, c.cache.Ensure(c.fetchCtx, key, c.fetch))
	}

	tiles := make([]FrameTile, len(futures))
	failed := 0
	for i, f := range futures {
		e, err := f.Wait(ctx)
		if err != nil {
			return Frame{}, err
		}
		if e.State == Failed {
			failed++
		}
		tiles[i] = frameTile(e)
		if c.observer != nil {
			c.observer.TileSettled(e)
		}
	}
	if failed > 0 {
		l.Warnf("%d of %d tiles failed", failed, total)
	}
	return newFrame(zoom, tiles), nil
}

func (c *Coordinator) reconcileSingle(ctx context.Context) (Frame, error) {
	e, err := c.cache.Ensure(c.fetchCtx, TileKey{}, c.fetch).Wait(ctx)
	if err != nil {
		return Frame{}, err
	}
	if c.observer != nil {
		c.observer.TileSettled(e)
	}
	return newFrame(0, []FrameTile{frameTile(e)}), nil
}

func (c *Coordinator) fetch(ctx context.Context, key TileKey) ([]byte, error) {
	if c.workers != nil {
		select {
		case c.workers <- struct{}{}:
		case <-ctx.Done():
			return nil, &NetworkError{Err: ctx.Err()}
		}
		defer func() { <-c.workers }()
	}
	if err := c.pace(ctx); err != nil {
		return nil, &NetworkError{Err: err}
	}
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}
	return c.fetcher.FetchTile(ctx, key.Zoom, key.X, key.Y)
}

// pace holds back a fetch so consecutive starts are timeDelay apart.
func (c *Coordinator) pace(ctx context.Context) error {
	if c.timeDelay <= 0 {
		return nil
	}
	c.paceMu.Lock()
	now := time.Now()
	start := c.nextStart
	if start.Before(now) {
		start = now
	}
	c.nextStart = start.Add(c.timeDelay)
	c.paceMu.Unlock()

	wait := start.Sub(now)
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
