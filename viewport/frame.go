package viewport

import (
	"github.com/teris-io/shortid"
)

// FrameTile is one cell of a frame. Tiles that are not Ready render as
// placeholders.
type FrameTile struct {
	Key     TileKey
	State   State
	Payload []byte
	Err     error
}

// Placeholder reports whether the cell has no payload to paint.
func (t FrameTile) Placeholder() bool {
	return t.State != Ready
}

// Frame is the settled snapshot of one zoom level handed to render sinks.
// Tiles are ordered row-major. Sinks must treat a frame, including the
// payload slices, as read-only.
type Frame struct {
	ID         string
	Generation uint64
	Zoom       int
	Viewport   ViewportState
	Tiles      []FrameTile
}

func newFrame(zoom int, tiles []FrameTile) Frame {
	id, _ := shortid.Generate()
	return Frame{ID: id, Zoom: zoom, Tiles: tiles}
}

func frameTile(e Entry) FrameTile {
	return FrameTile{Key: e.Key, State: e.State, Payload: e.Payload, Err: e.Err}
}

// GridSize returns the side length of the frame's grid.
func (f Frame) GridSize() int {
	return GridSize(f.Zoom)
}

// At returns the cell at column x, row y.
func (f Frame) At(x, y int) (FrameTile, bool) {
	n := f.GridSize()
	if x < 0 || y < 0 || x >= n || y >= n {
		return FrameTile{}, false
	}
	i := y*n + x
	if i >= len(f.Tiles) {
		return FrameTile{}, false
	}
	return f.Tiles[i], true
}

// ReadyCount returns the number of cells with a payload.
func (f Frame) ReadyCount() int {
	n := 0
	for _, t := range f.Tiles {
		if !t.Placeholder() {
			n++
		}
	}
	return n
}
