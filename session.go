package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"

	"tileview/viewport"
)

// Commander is the command surface of a viewport controller.
type Commander interface {
	ZoomIn() bool
	ZoomOut() bool
	Pan(dx, dy float64)
	Wheel(deltaY float64) bool
	State() viewport.ViewportState
}

var _ Commander = (*viewport.Controller)(nil)

// command is one user input, from stdin or a websocket client.
type command struct {
	Type   string  `json:"type"`
	Dx     float64 `json:"dx"`
	Dy     float64 `json:"dy"`
	DeltaY float64 `json:"deltaY"`
}

const (
	cmdZoomIn  = "zoomIn"
	cmdZoomOut = "zoomOut"
	cmdPan     = "pan"
	cmdWheel   = "wheel"
	cmdState   = "state"
	cmdQuit    = "quit"
)

var errQuit = errors.New("quit")

// parseCommand reads one stdin line.
func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command")
	}
	args := fields[1:]
	num := func(i int) (float64, error) {
		if i >= len(args) {
			return 0, fmt.Errorf("%s: missing argument %d", fields[0], i+1)
		}
		v, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return 0, fmt.Errorf("%s: bad argument %q", fields[0], args[i])
		}
		return v, nil
	}

	switch strings.ToLower(fields[0]) {
	case "+", "in", "zoomin":
		return command{Type: cmdZoomIn}, nil
	case "-", "out", "zoomout":
		return command{Type: cmdZoomOut}, nil
	case "pan":
		dx, err := num(0)
		if err != nil {
			return command{}, err
		}
		dy, err := num(1)
		if err != nil {
			return command{}, err
		}
		return command{Type: cmdPan, Dx: dx, Dy: dy}, nil
	case "wheel":
		dy, err := num(0)
		if err != nil {
			return command{}, err
		}
		return command{Type: cmdWheel, DeltaY: dy}, nil
	case "state", "s":
		return command{Type: cmdState}, nil
	case "q", "quit", "exit":
		return command{Type: cmdQuit}, nil
	}
	return command{}, fmt.Errorf("unknown command %q", fields[0])
}

func formatState(s viewport.ViewportState) string {
	return fmt.Sprintf("zoom %d, anchor (%d, %d), pan (%g, %g)",
		s.Zoom, s.AnchorX, s.AnchorY, s.PanOffsetX, s.PanOffsetY)
}

// execCommand applies cmd and returns a line for the user.
func execCommand(c Commander, cmd command) (string, error) {
	switch cmd.Type {
	case cmdZoomIn:
		if !c.ZoomIn() {
			return "already at max zoom", nil
		}
	case cmdZoomOut:
		if !c.ZoomOut() {
			return "already at zoom 0", nil
		}
	case cmdPan:
		c.Pan(cmd.Dx, cmd.Dy)
	case cmdWheel:
		if !c.Wheel(cmd.DeltaY) {
			return "wheel ignored", nil
		}
	case cmdState:
	case cmdQuit:
		return "", errQuit
	default:
		return "", fmt.Errorf("unknown command %q", cmd.Type)
	}
	return formatState(c.State()), nil
}

// Session wires the fetcher, cache, sinks and controller of one viewer
// run.
type Session struct {
	ID   string
	Ctl  *viewport.Controller
	Hub  *Hub
	Task *Task

	log     logrus.FieldLogger
	cancel  context.CancelFunc
	closers []func()
}

// NewSession builds a session from c. Frames go to the sinks named in
// output.formats and to the websocket hub.
func NewSession(c *Conf, l *logrus.Logger) (*Session, error) {
	id, _ := shortid.Generate()
	sl := l.WithField("session", id)

	tm := &TileMap{
		Name:   c.Tm.Name,
		Max:    c.Tm.Max,
		Format: c.Tm.Format,
		URL:    c.Tm.URL,
		Token:  c.Tm.Token,
	}
	s := &Session{ID: id, log: sl, Hub: NewHub(sl)}

	sinks := viewport.MultiSink{s.Hub}
	for _, format := range c.Output.Formats {
		switch format {
		case OutputFiles:
			b, err := NewBreakPoint(c.Output.Directory, tm.Name, tm.Format, c.Task.Workers, sl)
			if err != nil {
				s.Close()
				return nil, err
			}
			s.closers = append(s.closers, b.Close)
			sinks = append(sinks, b)
		case OutputMBTiles:
			m, err := NewMBTiles(c.Output.Directory, tm, sl)
			if err != nil {
				s.Close()
				return nil, err
			}
			s.closers = append(s.closers, m.Close)
			sinks = append(sinks, m)
		case OutputGeoJSON:
			g, err := NewGeoJSONSink(c.Output.Directory, sl)
			if err != nil {
				s.Close()
				return nil, err
			}
			sinks = append(sinks, g)
		default:
			s.Close()
			return nil, fmt.Errorf("unknown output format %q", format)
		}
	}

	var bars io.Writer
	if c.Output.OutputTerminal {
		bars = os.Stdout
	}
	s.Task = NewTask(id, tm.Name, bars, sl)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	coord := viewport.NewCoordinator(viewport.NewCache(sl), NewHTTPFetcher(tm, sl),
		viewport.WithWorkers(c.Task.Workers),
		viewport.WithTimeDelay(time.Duration(c.Task.Timedelay)*time.Millisecond),
		viewport.WithFetchTimeout(time.Duration(c.Task.Timeout)*time.Second),
		viewport.WithObserver(s.Task),
		viewport.WithFetchContext(ctx),
		viewport.WithCoordinatorLogger(sl),
	)
	s.Ctl = viewport.New(coord, sinks,
		viewport.WithMaxZoom(tm.Max),
		viewport.WithLogger(l),
		viewport.WithSessionID(id),
		viewport.WithContext(ctx),
	)
	s.Hub.Bind(s.Ctl)

	if c.Server.Listen != "" {
		s.closers = append(s.closers, StartServer(c.Server.Listen, s.Hub, sl))
	}
	return s, nil
}

// RunCommands executes stdin-style commands from r until EOF or quit.
func (s *Session) RunCommands(r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		cmd, err := parseCommand(line)
		if err != nil {
			fmt.Fprintln(w, err)
			continue
		}
		out, err := execCommand(s.Ctl, cmd)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(w, err)
			continue
		}
		fmt.Fprintln(w, out)
	}
	return sc.Err()
}

// Close cancels outstanding fetches, waits for in-flight reconciliations
// and releases the sinks. It is safe to call more than once.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.Ctl != nil {
		s.Ctl.Wait()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
	s.log.Infof("session %s closed", s.ID)
}
