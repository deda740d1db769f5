package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/geojson"

	"tileview/viewport"
)

func TestFrameCollection(t *testing.T) {
	missing := viewport.TileKey{Zoom: 1, X: 0, Y: 1}
	fc := frameCollection(testFrame(1, missing))
	if len(fc.Features) != 4 {
		t.Fatalf("features = %d, want 4", len(fc.Features))
	}
	for _, feat := range fc.Features {
		x := feat.Properties.MustInt("x")
		y := feat.Properties.MustInt("y")
		ready := feat.Properties.MustBool("ready")
		if want := !(x == 0 && y == 1); ready != want {
			t.Errorf("tile %d/%d ready = %v, want %v", x, y, ready, want)
		}
		if feat.Geometry.GeoJSONType() != "Polygon" {
			t.Errorf("geometry = %s", feat.Geometry.GeoJSONType())
		}
	}
}

func TestFrameBoundCoversWorld(t *testing.T) {
	b := frameBound(testFrame(2))
	if b.Min[0] != -180 || b.Max[0] != 180 {
		t.Fatalf("bound = %v, want full longitude range", b)
	}
}

func TestGeoJSONSink(t *testing.T) {
	dir := t.TempDir()
	s, err := NewGeoJSONSink(dir, nullLogger())
	if err != nil {
		t.Fatal(err)
	}
	s.OnFrame(testFrame(1))
	s.OnFrame(testFrame(0))

	data, err := os.ReadFile(filepath.Join(dir, "frame.geojson"))
	if err != nil {
		t.Fatal(err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("features = %d, want the latest frame only", len(fc.Features))
	}
	if z := fc.Features[0].Properties.MustInt("z"); z != 0 {
		t.Fatalf("z = %d", z)
	}
}

func TestSaveToFiles(t *testing.T) {
	dir := t.TempDir()
	tile := Tile{T: viewport.TileKey{Zoom: 3, X: 2, Y: 5}, C: []byte("x")}
	if err := saveToFiles(dir, JPG, tile); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "3", "2", "5.jpg")); err != nil {
		t.Fatal(err)
	}
}
