package viewport

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned by a Fetcher when the tile does not exist
// server-side. A tile that failed with it is never refetched.
var ErrNotFound = errors.New("tile not found")

// NetworkError is a transient fetch failure. Status is the HTTP status code,
// or 0 when no response was received.
type NetworkError struct {
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("network error: %v", e.Err)
	}
	if e.Err == nil {
		return fmt.Sprintf("network error: status %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("network error: status %d: %v", e.Status, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// InvalidCoordinateError reports a key outside the grid of its zoom level.
// Requesting such a key is a programming error and panics.
type InvalidCoordinateError struct {
	Key TileKey
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("invalid tile coordinate %d/%d/%d: grid is %dx%d",
		e.Key.Zoom, e.Key.X, e.Key.Y, safeGrid(e.Key.Zoom), safeGrid(e.Key.Zoom))
}

func safeGrid(z int) int {
	if z < 0 || z > 30 {
		return 0
	}
	return GridSize(z)
}

// IsTransient reports whether a failed tile may be fetched again on a later
// request.
func IsTransient(err error) bool {
	// unclassified fetcher errors count as network failures
	return err != nil && !errors.Is(err, ErrNotFound)
}

func mustValid(k TileKey) {
	if err := k.Validate(); err != nil {
		panic(err)
	}
}
