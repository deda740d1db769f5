package viewport

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"

	"tileview/metrics"
)

// ViewportState is the zoom and pan state owned by a Controller. It is
// replaced as a whole on every transition.
type ViewportState struct {
	Zoom       int
	AnchorX    int
	AnchorY    int
	PanOffsetX float64
	PanOffsetY float64
}

// Sink receives every frame the controller publishes. OnFrame is called
// sequentially and must not call back into the controller.
type Sink interface {
	OnFrame(f Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(f Frame)

func (s SinkFunc) OnFrame(f Frame) { s(f) }

// MultiSink fans a frame out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) OnFrame(f Frame) {
	for _, s := range m {
		s.OnFrame(f)
	}
}

// Controller holds the viewport state, drives reconciliation on zoom
// changes and publishes the resulting frames. Only the frame of the most
// recently started reconciliation is ever published.
type Controller struct {
	coord   *Coordinator
	sink    Sink
	log     logrus.FieldLogger
	ctx     context.Context
	maxZoom int
	session string

	mu      sync.Mutex
	state   ViewportState
	gen     uint64
	last    Frame
	hasLast bool

	// serializes sink calls
	pubMu sync.Mutex
	wg    sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxZoom sets the deepest zoom level.
func WithMaxZoom(z int) Option {
	return func(c *Controller) {
		c.maxZoom = max(0, min(z, 30))
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Controller) { c.log = l }
}

// WithContext bounds the lifetime of reconciliations. Once ctx is done no
// further frames are published.
func WithContext(ctx context.Context) Option {
	return func(c *Controller) { c.ctx = ctx }
}

// WithSessionID sets the id attached to every log entry of the controller.
func WithSessionID(id string) Option {
	return func(c *Controller) { c.session = id }
}

// New creates a controller at zoom 0 and starts the initial reconciliation.
func New(coord *Coordinator, sink Sink, opts ...Option) *Controller {
	c := &Controller{
		coord:   coord,
		sink:    sink,
		log:     logrus.StandardLogger(),
		ctx:     context.Background(),
		maxZoom: DefaultMaxZoom,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sink == nil {
		c.sink = SinkFunc(func(Frame) {})
	}
	if c.session == "" {
		c.session, _ = shortid.Generate()
	}
	c.log = c.log.WithField("session", c.session)

	c.mu.Lock()
	gen := c.advanceLocked()
	c.mu.Unlock()
	c.reconcile(gen, 0)
	return c
}

// ZoomIn moves one level deeper. It reports false and does nothing at the
// maximum zoom.
func (c *Controller) ZoomIn() bool {
	c.mu.Lock()
	s := c.state
	if s.Zoom >= c.maxZoom {
		c.mu.Unlock()
		return false
	}
	s.Zoom++
	s.AnchorX, s.AnchorY = ZoomInAnchor(s.AnchorX, s.AnchorY)
	c.state = s
	gen := c.advanceLocked()
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"gen": gen, "z": s.Zoom}).Infof("zoom in, anchor %d/%d", s.AnchorX, s.AnchorY)
	c.reconcile(gen, s.Zoom)
	return true
}

// ZoomOut moves one level up. It reports false and does nothing at zoom 0.
func (c *Controller) ZoomOut() bool {
	c.mu.Lock()
	s := c.state
	if s.Zoom <= 0 {
		c.mu.Unlock()
		return false
	}
	s.Zoom--
	s.AnchorX, s.AnchorY = ZoomOutAnchor(s.AnchorX, s.AnchorY)
	c.state = s
	gen := c.advanceLocked()
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"gen": gen, "z": s.Zoom}).Infof("zoom out, anchor %d/%d", s.AnchorX, s.AnchorY)
	c.reconcile(gen, s.Zoom)
	return true
}

// Wheel zooms in for deltaY > -1 and out otherwise. Wheel zoom is only
// honored at zoom 0; deeper levels ignore it.
func (c *Controller) Wheel(deltaY float64) bool {
	if c.State().Zoom != 0 {
		c.log.Debug("wheel zoom ignored outside zoom 0")
		return false
	}
	if deltaY > -1 {
		return c.ZoomIn()
	}
	return c.ZoomOut()
}

// Pan translates the view by (dx, dy). It never fetches tiles; when the
// last published frame belongs to the current state it is republished with
// the new offsets.
func (c *Controller) Pan(dx, dy float64) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.mu.Lock()
	s := c.state
	s.PanOffsetX += dx
	s.PanOffsetY += dy
	c.state = s
	republish := c.hasLast && c.last.Generation == c.gen
	var f Frame
	if republish {
		f = c.last
		f.Viewport = s
		c.last = f
	}
	c.mu.Unlock()

	if republish {
		metrics.Frames.WithLabelValues("published").Inc()
		c.sink.OnFrame(f)
	}
}

// State returns the current viewport state.
func (c *Controller) State() ViewportState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Frame returns the last published frame.
func (c *Controller) Frame() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.hasLast
}

// Generation returns the generation of the most recent state change that
// triggered a reconciliation.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// MaxZoom returns the deepest zoom level.
func (c *Controller) MaxZoom() int {
	return c.maxZoom
}

// Wait blocks until every reconciliation started so far has settled and
// been published or discarded. It must not race with new zoom commands.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) advanceLocked() uint64 {
	c.gen++
	return c.gen
}

func (c *Controller) reconcile(gen uint64, zoom int) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		f, err := c.coord.Reconcile(c.ctx, zoom)
		if err != nil {
			c.log.WithFields(logrus.Fields{"gen": gen, "z": zoom}).Warnf("reconcile abandoned: %s", err)
			return
		}
		c.publish(gen, f)
	}()
}

func (c *Controller) publish(gen uint64, f Frame) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	l := c.log.WithFields(logrus.Fields{"gen": gen, "z": f.Zoom, "frame": f.ID})

	c.mu.Lock()
	if gen != c.gen {
		current := c.gen
		c.mu.Unlock()
		metrics.Frames.WithLabelValues("discarded").Inc()
		l.Debugf("discarding stale frame, current gen %d", current)
		return
	}
	f.Generation = gen
	f.Viewport = c.state
	c.last = f
	c.hasLast = true
	c.mu.Unlock()

	metrics.Frames.WithLabelValues("published").Inc()
	l.Infof("publishing frame, %d/%d tiles ready", f.ReadyCount(), len(f.Tiles))
	c.sink.OnFrame(f)
}
