package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"tileview/viewport"
)

// BreakPoint writes the ready tiles of each frame to a z/x/y directory
// tree and keeps a ledger of written keys, so tiles written by an
// earlier session are skipped.
type BreakPoint struct {
	dir        string
	format     string
	file       *os.File
	saveChan   chan Tile
	successMap map[string]struct{}
	log        logrus.FieldLogger

	mu      sync.Mutex
	isClose bool
	done    chan struct{}
}

// NewBreakPoint opens (or creates) the ledger of map name under dir and
// starts the writer goroutine.
func NewBreakPoint(dir, name, format string, buf int, l logrus.FieldLogger) (*BreakPoint, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	filapath := filepath.Join(dir, fmt.Sprintf("%s.log", name))
	file, err := os.OpenFile(filapath, os.O_APPEND|os.O_CREATE|os.O_RDWR, os.ModePerm)
	if err != nil {
		return nil, fmt.Errorf("open break point file %s: %w", filapath, err)
	}
	if buf < 1 {
		buf = 1
	}

	b := &BreakPoint{
		dir:    dir,
		format: format,
		file:   file,
		// 获取断点记录
		successMap: getBackPoint(file),
		saveChan:   make(chan Tile, buf),
		log:        l,
		done:       make(chan struct{}),
	}
	// 开始断点任务
	go b.start()
	return b, nil
}

// 初始化断点文件
func getBackPoint(r io.Reader) map[string]struct{} {
	res := make(map[string]struct{})

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			res[line] = struct{}{}
		}
	}
	return res
}

func ledgerKey(k viewport.TileKey) string {
	return fmt.Sprintf("%d-%d-%d", k.X, k.Y, k.Zoom)
}

func (b *BreakPoint) IsSuccessed(k viewport.TileKey) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.successMap[ledgerKey(k)]
	return ok
}

// OnFrame queues every ready tile of f that is not yet in the ledger.
func (b *BreakPoint) OnFrame(f viewport.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isClose {
		return
	}
	for _, t := range readyTiles(f) {
		key := ledgerKey(t.T)
		if _, ok := b.successMap[key]; ok {
			continue
		}
		b.successMap[key] = struct{}{}
		b.saveChan <- t
	}
}

func (b *BreakPoint) start() {
	defer close(b.done)
	b.log.Infof("断点记录任务已开始")
	for tile := range b.saveChan {
		if err := saveToFiles(b.dir, b.format, tile); err != nil {
			b.log.Errorf("create %v tile file error ~ %s", tile.T, err)
			continue
		}
		if _, err := b.file.WriteString(ledgerKey(tile.T) + "\n"); err != nil {
			b.log.Errorf("write break point %v error ~ %s", tile.T, err)
		}
	}
}

// Close drains queued tiles and closes the ledger. It is safe to call
// more than once.
func (b *BreakPoint) Close() {
	b.mu.Lock()
	if b.isClose {
		b.mu.Unlock()
		return
	}
	b.isClose = true
	close(b.saveChan)
	b.mu.Unlock()

	<-b.done
	b.file.Close()
	b.log.Infof("断点记录任务已安全退出")
}
