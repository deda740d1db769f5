package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/orb/maptile"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"tileview/viewport"
)

func nullLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return l
}

func TestGetTileURL(t *testing.T) {
	m := &TileMap{URL: "http://tiles.example/{z}/{x}/{y}.png"}
	got := m.GetTileURL(maptile.New(3, 5, 4))
	if got != "http://tiles.example/4/3/5.png" {
		t.Fatalf("url = %q", got)
	}

	m.Token = "a b"
	if got := m.GetTileURL(maptile.New(0, 0, 0)); got != "http://tiles.example/0/0/0.png?token=a+b" {
		t.Fatalf("url with token = %q", got)
	}

	m.URL = "http://tiles.example/t?z={z}&x={x}&y={y}"
	if got := m.GetTileURL(maptile.New(1, 2, 2)); got != "http://tiles.example/t?z=2&x=1&y=2&token=a+b" {
		t.Fatalf("url with query = %q", got)
	}
}

func newTileServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/0/0/0":
			w.Write([]byte("root"))
		case "/1/0/0":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/1/1/0":
			// empty 200
		case "/1/1/1":
			if r.URL.Query().Get("token") != "secret" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Write([]byte("private"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPFetcherStatusMapping(t *testing.T) {
	srv := newTileServer(t)
	f := NewHTTPFetcher(&TileMap{URL: srv.URL + "/{z}/{x}/{y}", Format: PNG}, nullLogger())
	ctx := context.Background()

	body, err := f.FetchTile(ctx, 0, 0, 0)
	if err != nil || string(body) != "root" {
		t.Fatalf("FetchTile(0/0/0) = %q, %v", body, err)
	}

	_, err = f.FetchTile(ctx, 1, 0, 1)
	if !errors.Is(err, viewport.ErrNotFound) {
		t.Fatalf("404: err = %v, want ErrNotFound", err)
	}
	if viewport.IsTransient(err) {
		t.Fatal("404 must not be transient")
	}

	_, err = f.FetchTile(ctx, 1, 0, 0)
	var ne *viewport.NetworkError
	if !errors.As(err, &ne) || ne.Status != http.StatusServiceUnavailable {
		t.Fatalf("503: err = %v, want NetworkError 503", err)
	}
	if !viewport.IsTransient(err) {
		t.Fatal("503 must be transient")
	}

	_, err = f.FetchTile(ctx, 1, 1, 0)
	if !errors.Is(err, viewport.ErrNotFound) {
		t.Fatalf("empty body: err = %v, want ErrNotFound", err)
	}
}

func TestHTTPFetcherToken(t *testing.T) {
	srv := newTileServer(t)
	f := NewHTTPFetcher(&TileMap{URL: srv.URL + "/{z}/{x}/{y}", Token: "secret"}, nullLogger())
	body, err := f.FetchTile(context.Background(), 1, 1, 1)
	if err != nil || string(body) != "private" {
		t.Fatalf("FetchTile = %q, %v", body, err)
	}
}

func TestHTTPFetcherTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := NewHTTPFetcher(&TileMap{URL: url + "/{z}/{x}/{y}"}, nullLogger())
	_, err := f.FetchTile(context.Background(), 0, 0, 0)
	var ne *viewport.NetworkError
	if !errors.As(err, &ne) || ne.Status != 0 {
		t.Fatalf("err = %v, want NetworkError without status", err)
	}
}

func TestHTTPFetcherGzipsPBF(t *testing.T) {
	srv := newTileServer(t)
	f := NewHTTPFetcher(&TileMap{URL: srv.URL + "/{z}/{x}/{y}", Format: PBF}, nullLogger())
	body, err := f.FetchTile(context.Background(), 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("payload is not gzip: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "root" {
		t.Fatalf("gunzip = %q", raw)
	}
}

func TestHTTPFetcherCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := NewHTTPFetcher(&TileMap{URL: srv.URL + "/{z}/{x}/{y}"}, nullLogger())
	_, err := f.FetchTile(ctx, 0, 0, 0)
	if !viewport.IsTransient(err) || !strings.Contains(err.Error(), "network error") {
		t.Fatalf("err = %v, want transient network error", err)
	}
}
