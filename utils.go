package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"tileview/viewport"
)

func saveToFiles(rootdir, format string, tile Tile) error {
	dir := filepath.Join(rootdir, fmt.Sprintf(`%d`, tile.T.Zoom), fmt.Sprintf(`%d`, tile.T.X))
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}
	fileName := filepath.Join(dir, fmt.Sprintf(`%d.%s`, tile.T.Y, format))
	return os.WriteFile(fileName, tile.C, os.ModePerm)
}

// frameCollection describes every cell of f as a polygon feature in
// lon/lat.
func frameCollection(f viewport.Frame) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, ft := range f.Tiles {
		b := ft.Key.Tile().Bound()
		feat := geojson.NewFeature(b.ToPolygon())
		feat.Properties["z"] = ft.Key.Zoom
		feat.Properties["x"] = ft.Key.X
		feat.Properties["y"] = ft.Key.Y
		feat.Properties["ready"] = !ft.Placeholder()
		fc.Append(feat)
	}
	return fc
}

// frameBound is the lon/lat extent covered by f.
func frameBound(f viewport.Frame) orb.Bound {
	bound := orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{-1, -1}}
	for i, ft := range f.Tiles {
		if i == 0 {
			bound = ft.Key.Tile().Bound()
			continue
		}
		bound = bound.Union(ft.Key.Tile().Bound())
	}
	return bound
}

// GeoJSONSink rewrites frame.geojson in dir for every frame.
type GeoJSONSink struct {
	path string
	log  logrus.FieldLogger
}

func NewGeoJSONSink(dir string, l logrus.FieldLogger) (*GeoJSONSink, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	return &GeoJSONSink{path: filepath.Join(dir, "frame.geojson"), log: l}, nil
}

func (s *GeoJSONSink) OnFrame(f viewport.Frame) {
	data, err := frameCollection(f).MarshalJSON()
	if err != nil {
		s.log.Errorf("marshal frame %s error ~ %s", f.ID, err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, os.ModePerm); err != nil {
		s.log.Errorf("write %s error ~ %s", tmp, err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.log.Errorf("rename %s error ~ %s", tmp, err)
		return
	}
	s.log.Debugf("frame %s footprint %v written to %s", f.ID, frameBound(f), s.path)
}
