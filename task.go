package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	pb "gopkg.in/cheggaaa/pb.v1"

	"tileview/viewport"
)

// Task 批次进度, shows one progress bar per reconciliation batch.
type Task struct {
	ID   string
	Name string
	out  io.Writer
	log  logrus.FieldLogger

	mu   sync.Mutex
	bars map[int][]*pb.ProgressBar
}

var _ viewport.BatchObserver = (*Task)(nil)

// NewTask 创建进度任务. Bars are drawn on out; a nil out hides them.
func NewTask(id, name string, out io.Writer, l logrus.FieldLogger) *Task {
	return &Task{
		ID:   id,
		Name: name,
		out:  out,
		log:  l,
		bars: make(map[int][]*pb.ProgressBar),
	}
}

func (task *Task) BatchStarted(zoom, total int) {
	task.log.Infof("Task %s zoom %d: %d tiles starting", task.Name, zoom, total)
	bar := pb.New(total).Prefix(fmt.Sprintf("Zoom %d : ", zoom)).Postfix("\n")
	bar.SetRefreshRate(time.Second)
	if task.out == nil {
		bar.NotPrint = true
	} else {
		bar.Output = task.out
	}
	bar.Start()

	task.mu.Lock()
	task.bars[zoom] = append(task.bars[zoom], bar)
	task.mu.Unlock()
}

// TileSettled advances the oldest open batch at the tile's zoom.
func (task *Task) TileSettled(e viewport.Entry) {
	if e.State == viewport.Failed {
		task.log.Debugf("tile %s placeholder ~ %s", e.Key, e.Err)
	}
	task.mu.Lock()
	defer task.mu.Unlock()
	if bars := task.bars[e.Key.Zoom]; len(bars) > 0 {
		bars[0].Increment()
	}
}

func (task *Task) BatchFinished(zoom int) {
	task.mu.Lock()
	bars := task.bars[zoom]
	if len(bars) == 0 {
		task.mu.Unlock()
		return
	}
	bar := bars[0]
	if len(bars) == 1 {
		delete(task.bars, zoom)
	} else {
		task.bars[zoom] = bars[1:]
	}
	task.mu.Unlock()

	//等待该层结束
	if task.out == nil {
		bar.Finish()
		return
	}
	bar.FinishPrint(fmt.Sprintf("Task %s Zoom %d finished ~", task.ID, zoom))
}

// Open returns the number of batches still running.
func (task *Task) Open() int {
	task.mu.Lock()
	defer task.mu.Unlock()
	n := 0
	for _, bars := range task.bars {
		n += len(bars)
	}
	return n
}
