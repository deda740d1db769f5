package main

import (
	"tileview/viewport"
)

// TileSize 默认瓦片大小
const TileSize = 256

// Tile 自定义瓦片存储
type Tile struct {
	T viewport.TileKey
	C []byte
}

// Constants representing TileFormat types
const (
	GZIP string = "gzip" // encoding = gzip
	ZLIB        = "zlib" // encoding = deflate
	PNG         = "png"
	JPG         = "jpg"
	PBF         = "pbf"
	WEBP        = "webp"
)

// Output sinks
const (
	OutputFiles   = "files"
	OutputMBTiles = "mbtiles"
	OutputGeoJSON = "geojson"
)

// readyTiles returns the cells of f that carry a payload.
func readyTiles(f viewport.Frame) []Tile {
	tiles := make([]Tile, 0, len(f.Tiles))
	for _, ft := range f.Tiles {
		if ft.Placeholder() {
			continue
		}
		tiles = append(tiles, Tile{T: ft.Key, C: ft.Payload})
	}
	return tiles
}
