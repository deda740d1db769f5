package main

import (
	"testing"

	"tileview/viewport"
)

func TestTMSRow(t *testing.T) {
	cases := []struct {
		k    viewport.TileKey
		want int
	}{
		{viewport.TileKey{}, 0},
		{viewport.TileKey{Zoom: 1, Y: 0}, 1},
		{viewport.TileKey{Zoom: 2, Y: 1}, 2},
		{viewport.TileKey{Zoom: 3, Y: 7}, 0},
	}
	for _, c := range cases {
		if got := tmsRow(c.k); got != c.want {
			t.Errorf("tmsRow(%s) = %d, want %d", c.k, got, c.want)
		}
	}
}

func TestMBTilesStoresReadyTiles(t *testing.T) {
	tm := &TileMap{Name: "osm", Format: PNG, Max: 3}
	s, err := NewMBTiles(t.TempDir(), tm, nullLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	missing := viewport.TileKey{Zoom: 2, X: 1, Y: 2}
	s.OnFrame(testFrame(2, missing))

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tiles`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 15 {
		t.Fatalf("stored %d tiles, want 15", n)
	}

	k := viewport.TileKey{Zoom: 2, X: 3, Y: 0}
	data, ok, err := s.Get(k)
	if err != nil || !ok || string(data) != "2/3/0" {
		t.Fatalf("Get(%s) = %q, %v, %v", k, data, ok, err)
	}
	var col, row int
	if err := s.db.QueryRow(`SELECT tile_column, tile_row FROM tiles WHERE tile_data = ?`, []byte("2/3/0")).Scan(&col, &row); err != nil {
		t.Fatal(err)
	}
	if col != 3 || row != 3 {
		t.Fatalf("stored at column %d row %d, want 3, 3", col, row)
	}

	if _, ok, err := s.Get(missing); ok || err != nil {
		t.Fatalf("placeholder stored: %v, %v", ok, err)
	}
}

func TestMBTilesReplacesTiles(t *testing.T) {
	tm := &TileMap{Name: "osm", Format: PNG, Max: 3}
	s, err := NewMBTiles(t.TempDir(), tm, nullLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	f := testFrame(0)
	s.OnFrame(f)
	f.Tiles[0].Payload = []byte("v2")
	s.OnFrame(f)

	data, ok, err := s.Get(viewport.TileKey{})
	if err != nil || !ok || string(data) != "v2" {
		t.Fatalf("Get = %q, %v, %v", data, ok, err)
	}

	var format string
	if err := s.db.QueryRow(`SELECT value FROM metadata WHERE name = 'format'`).Scan(&format); err != nil {
		t.Fatal(err)
	}
	if format != PNG {
		t.Fatalf("format = %q", format)
	}
}
