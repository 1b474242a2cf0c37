package main

import (
	"os"
	"os/signal"
	"path"
	"sync/atomic"

	"github.com/cheggaaa/pb"
)

// progressMonitor draws a progress bar on stderr and cancels the transfer
// on interrupt.
type progressMonitor struct {
	show     bool
	bar      *pb.ProgressBar
	done     int64
	canceled int32
	stopped  bool
	stop     chan os.Signal
}

func newMonitor(show bool) *progressMonitor {
	m := &progressMonitor{show: show, stop: make(chan os.Signal, 1)}
	signal.Notify(m.stop, os.Interrupt)
	go func() {
		if _, ok := <-m.stop; ok {
			atomic.StoreInt32(&m.canceled, 1)
		}
	}()
	return m
}

func (m *progressMonitor) Start(totalWork int64) {
	// 0 size will hide the progress bar.
	if !m.show || totalWork <= 0 {
		return
	}
	m.bar = pb.New64(totalWork)
	// Write to stderr in case the data goes to stdout.
	m.bar.Output = os.Stderr
	m.bar.ShowSpeed = true
	m.bar.ShowPercent = true
	m.bar.ShowTimeLeft = true
	m.bar.SetUnits(pb.U_BYTES)
	m.bar.Start()
}

func (m *progressMonitor) StartSubTask(name string) {
	if m.bar != nil {
		m.bar.Prefix(path.Base(name) + " ")
	}
}

func (m *progressMonitor) Advance(work int64) {
	m.done += work
	if m.bar != nil {
		m.bar.Add64(work)
	}
}

func (m *progressMonitor) IsCanceled() bool {
	return atomic.LoadInt32(&m.canceled) == 1
}

func (m *progressMonitor) Stop() {
	if m.stopped {
		return
	}
	m.stopped = true
	signal.Stop(m.stop)
	close(m.stop)
	if m.bar != nil {
		m.bar.Finish()
	}
}
