package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/orb/maptile"
	"github.com/sirupsen/logrus"

	"tileview/viewport"
)

// TileMap 瓦片地图类型
type TileMap struct {
	Name   string
	Max    int
	Format string
	URL    string
	Token  string
}

// GetTileURL 获取瓦片URL
func (m *TileMap) GetTileURL(t maptile.Tile) string {
	u := strings.Replace(m.URL, "{x}", strconv.Itoa(int(t.X)), -1)
	u = strings.Replace(u, "{y}", strconv.Itoa(int(t.Y)), -1)
	u = strings.Replace(u, "{z}", strconv.Itoa(int(t.Z)), -1)
	if m.Token == "" {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "token=" + url.QueryEscape(m.Token)
}

// HTTPFetcher fetches tiles of a TileMap over HTTP.
type HTTPFetcher struct {
	Map    *TileMap
	Client *http.Client
	Log    logrus.FieldLogger
}

func NewHTTPFetcher(m *TileMap, l logrus.FieldLogger) *HTTPFetcher {
	return &HTTPFetcher{
		Map:    m,
		Client: &http.Client{},
		Log:    l,
	}
}

var _ viewport.Fetcher = (*HTTPFetcher)(nil)

// FetchTile 瓦片加载器
func (f *HTTPFetcher) FetchTile(ctx context.Context, z, x, y int) ([]byte, error) {
	start := time.Now()
	mt := maptile.New(uint32(x), uint32(y), maptile.Zoom(z))
	u := f.Map.GetTileURL(mt)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", u, err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		f.Log.Debugf("fetch :%s error, details: %s ~", u, err)
		return nil, &viewport.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("tile %d/%d/%d: %w", z, x, y, viewport.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		f.Log.Debugf("fetch %v tile error, status code: %d ~", u, resp.StatusCode)
		return nil, &viewport.NetworkError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &viewport.NetworkError{Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) == 0 {
		//zero byte tiles
		return nil, fmt.Errorf("empty tile %d/%d/%d: %w", z, x, y, viewport.ErrNotFound)
	}

	if f.Map.Format == PBF {
		body, err = gzipBytes(body)
		if err != nil {
			return nil, err
		}
	}

	cost := time.Since(start).Milliseconds()
	f.Log.Debugf("tile(z:%d, x:%d, y:%d), %dms , %.2f kb, %s ...", z, x, y, cost, float32(len(body))/1024.0, u)
	return body, nil
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, fmt.Errorf("gzip tile: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip tile: %w", err)
	}
	return buf.Bytes(), nil
}
