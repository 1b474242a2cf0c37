package adb

import (
	"sync/atomic"
)

// AsyncTransfer is a push or pull running in the background. It is the
// SyncProgressMonitor of its own transfer.
//
// The SyncService runs one operation at a time, so other calls on it block
// until the transfer is done.
type AsyncTransfer struct {
	total     int64
	completed int64
	canceled  int32

	progress chan struct{}
	done     chan struct{}
	err      error
}

var _ SyncProgressMonitor = (*AsyncTransfer)(nil)

func newAsyncTransfer() *AsyncTransfer {
	return &AsyncTransfer{
		progress: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (t *AsyncTransfer) run(transfer func() error) {
	t.err = transfer()
	close(t.done)
}

// PushFileAsync starts PushFile in the background.
func (s *SyncService) PushFileAsync(local, remote string) *AsyncTransfer {
	t := newAsyncTransfer()
	go t.run(func() error { return s.PushFile(local, remote, t) })
	return t
}

// PullFileAsync starts PullFile in the background.
func (s *SyncService) PullFileAsync(remote, local string) *AsyncTransfer {
	t := newAsyncTransfer()
	go t.run(func() error { return s.PullFile(remote, local, t) })
	return t
}

func (t *AsyncTransfer) Start(totalWork int64) {
	atomic.StoreInt64(&t.total, totalWork)
}

func (t *AsyncTransfer) StartSubTask(string) {}

func (t *AsyncTransfer) Advance(work int64) {
	atomic.AddInt64(&t.completed, work)
	select {
	case t.progress <- struct{}{}:
	default:
	}
}

func (t *AsyncTransfer) IsCanceled() bool {
	return atomic.LoadInt32(&t.canceled) == 1
}

func (t *AsyncTransfer) Stop() {}

// Cancel asks the transfer to stop before its next chunk. The transfer then
// fails with a Cancelled SyncError.
func (t *AsyncTransfer) Cancel() {
	atomic.StoreInt32(&t.canceled, 1)
}

// C receives a value whenever progress was made. Notifications are dropped
// while one is pending.
func (t *AsyncTransfer) C() <-chan struct{} {
	return t.progress
}

// Done is closed when the transfer ended.
func (t *AsyncTransfer) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the transfer ended and returns its error.
func (t *AsyncTransfer) Wait() error {
	<-t.done
	return t.err
}

// Err returns the error of a finished transfer, nil while it is running.
func (t *AsyncTransfer) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// BytesCompleted returns the number of bytes transferred so far.
func (t *AsyncTransfer) BytesCompleted() int64 {
	return atomic.LoadInt64(&t.completed)
}

// TotalSize is 0 until the size of the file is known.
func (t *AsyncTransfer) TotalSize() int64 {
	return atomic.LoadInt64(&t.total)
}

func (t *AsyncTransfer) Progress() float64 {
	total := t.TotalSize()
	if total == 0 {
		return 0
	}
	return float64(t.BytesCompleted()) / float64(total)
}
