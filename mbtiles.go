package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"tileview/viewport"
)

const mbtilesSchema = `
CREATE TABLE IF NOT EXISTS metadata (name TEXT, value TEXT);
CREATE UNIQUE INDEX IF NOT EXISTS name ON metadata (name);
CREATE TABLE IF NOT EXISTS tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB);
CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (zoom_level, tile_column, tile_row);
`

// MBTiles stores the ready tiles of each frame in an MBTiles database.
type MBTiles struct {
	db  *sql.DB
	log logrus.FieldLogger
}

// NewMBTiles opens <dir>/<name>.mbtiles and writes its metadata.
func NewMBTiles(dir string, m *TileMap, l logrus.FieldLogger) (*MBTiles, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, m.Name+".mbtiles")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(mbtilesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create mbtiles schema: %w", err)
	}

	meta := map[string]string{
		"name":    m.Name,
		"format":  m.Format,
		"minzoom": "0",
		"maxzoom": strconv.Itoa(m.Max),
		"type":    "baselayer",
		"version": "1.1",
	}
	for k, v := range meta {
		if _, err := db.Exec(`INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?)`, k, v); err != nil {
			db.Close()
			return nil, fmt.Errorf("write mbtiles metadata %s: %w", k, err)
		}
	}

	l.Infof("mbtiles sink initialized, path: %s", path)
	return &MBTiles{db: db, log: l}, nil
}

// tmsRow flips an XYZ row into the TMS row MBTiles stores.
func tmsRow(k viewport.TileKey) int {
	return viewport.GridSize(k.Zoom) - 1 - k.Y
}

func (s *MBTiles) OnFrame(f viewport.Frame) {
	tiles := readyTiles(f)
	if len(tiles) == 0 {
		return
	}
	if err := s.save(tiles); err != nil {
		s.log.Errorf("save frame %s to mbtiles error ~ %s", f.ID, err)
	}
}

func (s *MBTiles) save(tiles []Tile) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, t := range tiles {
		if _, err := stmt.Exec(t.T.Zoom, t.T.X, tmsRow(t.T), t.C); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert tile %s: %w", t.T, err)
		}
	}
	return tx.Commit()
}

// Get returns the stored payload of k.
func (s *MBTiles) Get(k viewport.TileKey) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?`,
		k.Zoom, k.X, tmsRow(k)).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *MBTiles) Close() {
	if err := s.db.Close(); err != nil {
		s.log.Errorf("close mbtiles error ~ %s", err)
	}
}
