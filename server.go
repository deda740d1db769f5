package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"tileview/viewport"
)

type wireViewport struct {
	Zoom       int     `json:"zoom"`
	AnchorX    int     `json:"anchorX"`
	AnchorY    int     `json:"anchorY"`
	PanOffsetX float64 `json:"panOffsetX"`
	PanOffsetY float64 `json:"panOffsetY"`
}

type wireTile struct {
	Z     int    `json:"z"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	State string `json:"state"`
	Data  []byte `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type wireFrame struct {
	Type       string       `json:"type"`
	ID         string       `json:"id"`
	Generation uint64       `json:"generation"`
	Zoom       int          `json:"zoom"`
	Viewport   wireViewport `json:"viewport"`
	Tiles      []wireTile   `json:"tiles"`
}

func encodeFrame(f viewport.Frame) ([]byte, error) {
	v := f.Viewport
	wf := wireFrame{
		Type:       "frame",
		ID:         f.ID,
		Generation: f.Generation,
		Zoom:       f.Zoom,
		Viewport: wireViewport{
			Zoom:       v.Zoom,
			AnchorX:    v.AnchorX,
			AnchorY:    v.AnchorY,
			PanOffsetX: v.PanOffsetX,
			PanOffsetY: v.PanOffsetY,
		},
		Tiles: make([]wireTile, 0, len(f.Tiles)),
	}
	for _, t := range f.Tiles {
		wt := wireTile{Z: t.Key.Zoom, X: t.Key.X, Y: t.Key.Y, State: t.State.String(), Data: t.Payload}
		if t.Err != nil {
			wt.Error = t.Err.Error()
		}
		wf.Tiles = append(wf.Tiles, wt)
	}
	return json.Marshal(wf)
}

type client struct {
	send chan []byte
}

// Hub broadcasts published frames to websocket clients and feeds their
// commands to the bound controller.
type Hub struct {
	log      logrus.FieldLogger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
	ctl     Commander
}

func NewHub(l logrus.FieldLogger) *Hub {
	return &Hub{
		log: l,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Bind sets the controller that receives client commands.
func (h *Hub) Bind(c Commander) {
	h.mu.Lock()
	h.ctl = c
	h.mu.Unlock()
}

func (h *Hub) commander() Commander {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctl
}

// OnFrame never blocks on a slow client; a client whose queue is full
// misses the frame.
func (h *Hub) OnFrame(f viewport.Frame) {
	b, err := encodeFrame(f)
	if err != nil {
		h.log.Errorf("encode frame %s error ~ %s", f.ID, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = b
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.log.Debugf("client queue full, frame %s dropped", f.ID)
		}
	}
}

func (h *Hub) join() *client {
	c := &client{send: make(chan []byte, 8)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	return c
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// ServeHTTP upgrades the request and serves one client until it
// disconnects.
func (h *Hub) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		h.log.Debugf("websocket upgrade error ~ %s", err)
		return
	}
	defer conn.Close()

	c := h.join()
	defer h.leave(c)
	h.log.Infof("websocket client %s connected", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// 写协程
	writeErr := make(chan error, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				writeErr <- ctx.Err()
				return
			case b := <-c.send:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var cmd command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			h.log.Debugf("bad command from %s ~ %s", r.RemoteAddr, err)
			continue
		}
		ctl := h.commander()
		if ctl == nil {
			continue
		}
		if _, err := execCommand(ctl, cmd); err != nil {
			h.log.Debugf("command %q from %s ~ %s", cmd.Type, r.RemoteAddr, err)
		}
	}

	cancel()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	select {
	case <-writeErr:
	case <-time.After(500 * time.Millisecond):
	}
	h.log.Infof("websocket client %s disconnected", r.RemoteAddr)
}

func newServeMux(h *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// StartServer serves the websocket hub and the metrics endpoint on
// listen. The returned function shuts the server down.
func StartServer(listen string, h *Hub, l logrus.FieldLogger) func() {
	srv := &http.Server{
		Addr:              listen,
		Handler:           newServeMux(h),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		l.Infof("listening on %s", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Errorf("server error ~ %s", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
