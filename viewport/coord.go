package viewport

import (
	"fmt"
	"iter"

	"github.com/paulmach/orb/maptile"
)

// DefaultMaxZoom 默认最大级别
const DefaultMaxZoom = 3

// TileKey identifies one tile of the pyramid.
type TileKey struct {
	Zoom int
	X    int
	Y    int
}

// NewTileKey builds a key from an orb tile.
func NewTileKey(t maptile.Tile) TileKey {
	return TileKey{Zoom: int(t.Z), X: int(t.X), Y: int(t.Y)}
}

// Valid reports whether x and y lie inside the grid of the key's zoom.
func (k TileKey) Valid() bool {
	if k.Zoom < 0 || k.Zoom > 30 {
		return false
	}
	n := GridSize(k.Zoom)
	return k.X >= 0 && k.X < n && k.Y >= 0 && k.Y < n
}

// Validate returns an *InvalidCoordinateError for keys outside the grid.
func (k TileKey) Validate() error {
	if !k.Valid() {
		return &InvalidCoordinateError{Key: k}
	}
	return nil
}

// Tile converts the key to an orb tile. The key must be valid.
func (k TileKey) Tile() maptile.Tile {
	return maptile.New(uint32(k.X), uint32(k.Y), maptile.Zoom(k.Zoom))
}

func (k TileKey) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Zoom, k.X, k.Y)
}

// GridSize returns the number of tiles along one side of the grid at zoom z.
func GridSize(z int) int {
	return 1 << uint(z)
}

// AllCoordinates yields every key of zoom z in row-major order (y, then x).
// The sequence is lazy and may be ranged over any number of times.
func AllCoordinates(z int) iter.Seq[TileKey] {
	return func(yield func(TileKey) bool) {
		n := GridSize(z)
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				if !yield(TileKey{Zoom: z, X: x, Y: y}) {
					return
				}
			}
		}
	}
}

// ZoomInAnchor maps an anchor one level deeper.
func ZoomInAnchor(x, y int) (int, int) {
	return x << 1, y << 1
}

// ZoomOutAnchor maps an anchor one level up. The shift floors for
// negative inputs too.
func ZoomOutAnchor(x, y int) (int, int) {
	return x >> 1, y >> 1
}
