package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tileview/viewport"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var wf wireFrame
	if err := json.Unmarshal(msg, &wf); err != nil {
		t.Fatal(err)
	}
	return wf
}

func TestEncodeFrame(t *testing.T) {
	f := testFrame(1, viewport.TileKey{Zoom: 1, X: 1, Y: 1})
	f.Viewport = viewport.ViewportState{Zoom: 1, PanOffsetX: 2.5}
	b, err := encodeFrame(f)
	if err != nil {
		t.Fatal(err)
	}
	var wf wireFrame
	if err := json.Unmarshal(b, &wf); err != nil {
		t.Fatal(err)
	}
	if wf.Type != "frame" || wf.Zoom != 1 || len(wf.Tiles) != 4 || wf.Viewport.PanOffsetX != 2.5 {
		t.Fatalf("decoded %+v", wf)
	}
	if string(wf.Tiles[0].Data) != "1/0/0" || wf.Tiles[0].State != "ready" {
		t.Fatalf("tile 0 = %+v", wf.Tiles[0])
	}
	last := wf.Tiles[3]
	if last.Data != nil || last.Error == "" || last.State != "failed" {
		t.Fatalf("placeholder = %+v", last)
	}
}

func TestHubSendsLastFrameOnJoin(t *testing.T) {
	h := NewHub(nullLogger())
	srv := httptest.NewServer(newServeMux(h))
	defer srv.Close()

	h.OnFrame(testFrame(0))
	conn := dialHub(t, srv)
	if wf := readFrame(t, conn); wf.Zoom != 0 || len(wf.Tiles) != 1 {
		t.Fatalf("join frame = %+v", wf)
	}

	h.OnFrame(testFrame(1))
	if wf := readFrame(t, conn); wf.Zoom != 1 || len(wf.Tiles) != 4 {
		t.Fatalf("broadcast frame = %+v", wf)
	}
}

func TestHubForwardsCommands(t *testing.T) {
	h := NewHub(nullLogger())
	c := &fakeCommander{max: 3}
	h.Bind(c)
	srv := httptest.NewServer(newServeMux(h))
	defer srv.Close()

	conn := dialHub(t, srv)
	for _, msg := range []string{
		`{"type":"zoomIn"}`,
		`not json`,
		`{"type":"pan","dx":1,"dy":-1}`,
		`{"type":"zoomOut"}`,
	} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(c.history()) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("commands received: %v", c.history())
		}
		time.Sleep(time.Millisecond)
	}
	got := strings.Join(c.history(), ",")
	if got != "in,pan,out" {
		t.Fatalf("commands = %s", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(newServeMux(NewHub(nullLogger())))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "tiler_reconciliations_total") {
		t.Fatalf("status %d, body without reconciliation metrics", resp.StatusCode)
	}
}
