package adb

import (
	"bytes"
	"strings"
	"sync"
)

// ShellOutputReceiver consumes the output of a shell command or log service.
type ShellOutputReceiver interface {
	// AddOutput is called with every chunk read from the device.
	// The slice is only valid during the call.
	AddOutput(data []byte)
	// Flush is called once after the last chunk, even if the command failed.
	Flush()
	// IsCancelled is polled before every read. Returning true stops the
	// command with ErrCancelled.
	IsCancelled() bool
	// ParsesErrors reports whether the receiver interprets error messages in
	// the output itself. If false, well known failure messages are turned
	// into a *ShellError.
	ParsesErrors() bool
}

// NullOutputReceiver discards all output.
type NullOutputReceiver struct{}

var _ ShellOutputReceiver = NullOutputReceiver{}

func (NullOutputReceiver) AddOutput([]byte)   {}
func (NullOutputReceiver) Flush()             {}
func (NullOutputReceiver) IsCancelled() bool  { return false }
func (NullOutputReceiver) ParsesErrors() bool { return false }

// CollectingOutputReceiver collects the whole output in memory.
// It is safe to read Output while the command is running.
type CollectingOutputReceiver struct {
	mtx       sync.Mutex
	buf       bytes.Buffer
	cancelled bool
}

var _ ShellOutputReceiver = &CollectingOutputReceiver{}

func (r *CollectingOutputReceiver) AddOutput(data []byte) {
	r.mtx.Lock()
	r.buf.Write(data)
	r.mtx.Unlock()
}

func (r *CollectingOutputReceiver) Flush() {}

// Cancel makes the running command stop before its next read.
func (r *CollectingOutputReceiver) Cancel() {
	r.mtx.Lock()
	r.cancelled = true
	r.mtx.Unlock()
}

func (r *CollectingOutputReceiver) IsCancelled() bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.cancelled
}

func (r *CollectingOutputReceiver) ParsesErrors() bool { return false }

// Output returns everything received so far.
func (r *CollectingOutputReceiver) Output() string {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.buf.String()
}

// Bytes returns a copy of everything received so far.
func (r *CollectingOutputReceiver) Bytes() []byte {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]byte(nil), r.buf.Bytes()...)
}

// MultiLineReceiver splits the output into lines and hands complete lines to
// ProcessLines. A trailing partial line is kept until the next chunk or Flush.
// Carriage returns added by the device's pty are stripped.
type MultiLineReceiver struct {
	// ProcessLines is called with every batch of complete lines.
	ProcessLines func(lines []string)
	// Cancelled is polled before every read, if set.
	Cancelled func() bool
	// TrimLines removes leading and trailing whitespace from every line.
	TrimLines bool

	partial string
}

var _ ShellOutputReceiver = &MultiLineReceiver{}

func (r *MultiLineReceiver) AddOutput(data []byte) {
	s := r.partial + string(data)
	parts := strings.Split(s, "\n")
	r.partial = parts[len(parts)-1]
	r.emit(parts[:len(parts)-1])
}

func (r *MultiLineReceiver) Flush() {
	if r.partial != "" {
		r.emit([]string{r.partial})
		r.partial = ""
	}
}

func (r *MultiLineReceiver) emit(lines []string) {
	if len(lines) == 0 || r.ProcessLines == nil {
		return
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		if r.TrimLines {
			line = strings.TrimSpace(line)
		}
		out[i] = line
	}
	r.ProcessLines(out)
}

func (r *MultiLineReceiver) IsCancelled() bool {
	return r.Cancelled != nil && r.Cancelled()
}

func (r *MultiLineReceiver) ParsesErrors() bool { return false }
