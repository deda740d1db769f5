package viewport

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeFetcher struct {
	calls atomic.Int64

	mu     sync.Mutex
	perKey map[TileKey]int
	fail   map[TileKey]error
	gates  map[int]chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		perKey: make(map[TileKey]int),
		fail:   make(map[TileKey]error),
		gates:  make(map[int]chan struct{}),
	}
}

// hold blocks every fetch of zoom z until the returned func is called.
func (f *fakeFetcher) hold(z int) func() {
	g := make(chan struct{})
	f.mu.Lock()
	f.gates[z] = g
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(g) }) }
}

func (f *fakeFetcher) failWith(k TileKey, err error) {
	f.mu.Lock()
	f.fail[k] = err
	f.mu.Unlock()
}

func (f *fakeFetcher) count(k TileKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perKey[k]
}

func (f *fakeFetcher) FetchTile(ctx context.Context, z, x, y int) ([]byte, error) {
	f.calls.Add(1)
	k := TileKey{Zoom: z, X: x, Y: y}

	f.mu.Lock()
	f.perKey[k]++
	g := f.gates[z]
	err := f.fail[k]
	f.mu.Unlock()

	if g != nil {
		select {
		case <-g:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return []byte(k.String()), nil
}

type recordingSink struct {
	mu     sync.Mutex
	frames []Frame
}

func (s *recordingSink) OnFrame(f Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
}

func (s *recordingSink) all() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

func (s *recordingSink) last(t *testing.T) Frame {
	t.Helper()
	frames := s.all()
	if len(frames) == 0 {
		t.Fatal("no frame published")
	}
	return frames[len(frames)-1]
}

func newTestLogger() (*logrus.Logger, *test.Hook) {
	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return l, hook
}

func fetchKey(f Fetcher) FetchFunc {
	return func(ctx context.Context, k TileKey) ([]byte, error) {
		return f.FetchTile(ctx, k.Zoom, k.X, k.Y)
	}
}
