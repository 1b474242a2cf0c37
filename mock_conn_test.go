package adb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/d1ced/goadb/wire"
)

// mockServerConn is the server end of one connection to the fake adb server.
type mockServerConn struct {
	t    *testing.T
	conn net.Conn
}

// handler serves one connection. It is called once per dial.
type handler func(s *mockServerConn)

// mockServer hands every dialed connection to a handler and records the
// requests it saw.
type mockServer struct {
	t       *testing.T
	handler handler

	mtx      sync.Mutex
	dials    int
	requests []string
}

func (m *mockServer) dial(address string) (wire.Transport, error) {
	client, server := net.Pipe()
	m.mtx.Lock()
	m.dials++
	m.mtx.Unlock()
	go func() {
		defer server.Close()
		m.handler(&mockServerConn{t: m.t, conn: server})
	}()
	return client, nil
}

func (m *mockServer) record(req string) {
	m.mtx.Lock()
	m.requests = append(m.requests, req)
	m.mtx.Unlock()
}

func (m *mockServer) Requests() []string {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return append([]string(nil), m.requests...)
}

// newMockClient returns a Client whose connections are served by h, and the
// hook receiving its log entries.
func newMockClient(t *testing.T, h handler) (*Client, *mockServer, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	srv := &mockServer{t: t}
	srv.handler = func(s *mockServerConn) {
		h(&mockServerConn{t: t, conn: recordingConn{s.conn, srv}})
	}
	client := New(Config{
		Timeout: 2 * time.Second,
		Dialer:  srv.dial,
		Logger:  logger,
	})
	return client, srv, hook
}

// recordingConn reports every request read by readRequest to the server.
type recordingConn struct {
	net.Conn
	srv *mockServer
}

func (s *mockServerConn) readN(n int) []byte {
	b := make([]byte, n)
	if _, err := io.ReadFull(s.conn, b); err != nil {
		return nil
	}
	return b
}

// readRequest reads one hex length prefixed request.
func (s *mockServerConn) readRequest() string {
	length, err := strconv.ParseUint(string(s.readN(4)), 16, 16)
	if err != nil {
		return ""
	}
	req := string(s.readN(int(length)))
	if rc, ok := s.conn.(recordingConn); ok {
		rc.srv.record(req)
	}
	return req
}

// expect reads a request, checks it and answers OKAY.
func (s *mockServerConn) expect(req string) bool {
	got := s.readRequest()
	if got != req {
		s.t.Errorf("want request %q, got %q", req, got)
		s.fail("unexpected request " + got)
		return false
	}
	s.okay()
	return true
}

func (s *mockServerConn) write(b []byte) {
	s.conn.Write(b)
}

func (s *mockServerConn) okay() {
	s.write([]byte(wire.StatusOkay))
}

func (s *mockServerConn) fail(msg string) {
	s.write([]byte(fmt.Sprintf("FAIL%04x%s", len(msg), msg)))
}

// sendString writes a hex length prefixed message.
func (s *mockServerConn) sendString(msg string) {
	s.write([]byte(fmt.Sprintf("%04x%s", len(msg), msg)))
}

func (s *mockServerConn) writeUint32(v ...uint32) {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], x)
	}
	s.write(buf)
}

func (s *mockServerConn) writeSync(id string, length uint32, payload []byte) {
	buf := make([]byte, 8, 8+len(payload))
	copy(buf, id)
	binary.LittleEndian.PutUint32(buf[4:], length)
	s.write(append(buf, payload...))
}

// readSync reads one sync request. DONE and QUIT carry no payload.
func (s *mockServerConn) readSync() (string, uint32, []byte) {
	hdr := s.readN(8)
	if hdr == nil {
		return "", 0, nil
	}
	id := string(hdr[:4])
	n := binary.LittleEndian.Uint32(hdr[4:])
	if id == wire.SyncDone || id == wire.SyncQuit {
		return id, n, nil
	}
	return id, n, s.readN(int(n))
}

// transport answers the device selection of a Device.
func (s *mockServerConn) transport(serial string) bool {
	return s.expect("host:transport:" + serial)
}

// drain waits until the client closed the connection.
func (s *mockServerConn) drain() {
	io.Copy(io.Discard, s.conn)
}

type fakeFile struct {
	data  []byte
	mode  uint32
	mtime uint32
}

// fakeFS serves the sync protocol from memory.
type fakeFS struct {
	mtx   sync.Mutex
	files map[string]fakeFile
	dirs  map[string]bool
}

func newFakeFS(dirs ...string) *fakeFS {
	fs := &fakeFS{files: map[string]fakeFile{}, dirs: map[string]bool{"/": true}}
	for _, d := range dirs {
		fs.dirs[d] = true
	}
	return fs
}

func (fs *fakeFS) file(p string) (fakeFile, bool) {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()
	f, ok := fs.files[p]
	return f, ok
}

func (fs *fakeFS) serve(s *mockServerConn) {
	for {
		id, n, payload := s.readSync()
		switch id {
		case wire.SyncStat:
			fs.stat(s, string(payload))
		case wire.SyncList:
			fs.list(s, string(payload))
		case wire.SyncSend:
			fs.send(s, string(payload))
		case wire.SyncRecv:
			fs.recv(s, string(payload))
		case wire.SyncQuit, "":
			return
		default:
			s.t.Errorf("unexpected sync request %q (%d)", id, n)
			return
		}
	}
}

func (fs *fakeFS) stat(s *mockServerConn, p string) {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()
	s.write([]byte(wire.SyncStat))
	if fs.dirs[p] {
		s.writeUint32(wire.ModeDir|0755, 4096, 1600000000)
	} else if f, ok := fs.files[p]; ok {
		s.writeUint32(f.mode, uint32(len(f.data)), f.mtime)
	} else {
		s.writeUint32(0, 0, 0)
	}
}

func (fs *fakeFS) list(s *mockServerConn, dir string) {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()
	dent := func(name string, mode, size, mtime uint32) {
		s.write([]byte(wire.SyncDent))
		s.writeUint32(mode, size, mtime, uint32(len(name)))
		s.write([]byte(name))
	}
	dent(".", wire.ModeDir|0755, 4096, 0)
	dent("..", wire.ModeDir|0755, 4096, 0)
	prefix := strings.TrimSuffix(dir, "/") + "/"
	for p := range fs.dirs {
		if name := strings.TrimPrefix(p, prefix); p != dir && strings.HasPrefix(p, prefix) && !strings.Contains(name, "/") {
			dent(name, wire.ModeDir|0755, 4096, 1600000000)
		}
	}
	for p, f := range fs.files {
		if name := strings.TrimPrefix(p, prefix); strings.HasPrefix(p, prefix) && !strings.Contains(name, "/") {
			dent(name, f.mode, uint32(len(f.data)), f.mtime)
		}
	}
	s.write([]byte(wire.SyncDone))
	s.write(make([]byte, 16))
}

func (fs *fakeFS) send(s *mockServerConn, pathAndMode string) {
	i := strings.LastIndex(pathAndMode, ",")
	if i < 0 {
		s.writeSync(wire.SyncFail, 0, nil)
		return
	}
	p := pathAndMode[:i]
	perm, _ := strconv.Atoi(pathAndMode[i+1:])

	var data bytes.Buffer
	for {
		id, n, payload := s.readSync()
		switch id {
		case wire.SyncData:
			data.Write(payload)
		case wire.SyncDone:
			fs.mtx.Lock()
			fs.files[p] = fakeFile{data: data.Bytes(), mode: wire.ModeRegular | uint32(perm), mtime: n}
			fs.mtx.Unlock()
			s.writeSync(wire.SyncOkay, 0, nil)
			return
		case "":
			return
		default:
			s.t.Errorf("unexpected %q during SEND", id)
			return
		}
	}
}

func (fs *fakeFS) recv(s *mockServerConn, p string) {
	f, ok := fs.file(p)
	if !ok {
		msg := "No such file or directory"
		s.writeSync(wire.SyncFail, uint32(len(msg)), []byte(msg))
		return
	}
	data := f.data
	for len(data) > 0 {
		n := len(data)
		if n > wire.SyncMaxChunkSize {
			n = wire.SyncMaxChunkSize
		}
		s.writeSync(wire.SyncData, uint32(n), data[:n])
		data = data[n:]
	}
	s.writeSync(wire.SyncDone, 0, nil)
}

// bufTransport reads from a fixed input and records everything written.
type bufTransport struct {
	mtx sync.Mutex
	in  io.Reader
	out bytes.Buffer
}

func (b *bufTransport) Read(p []byte) (int, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.in.Read(p)
}

func (b *bufTransport) Write(p []byte) (int, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.out.Write(p)
}

func (b *bufTransport) Written() int {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.out.Len()
}

func (b *bufTransport) Close() error                      { return nil }
func (b *bufTransport) SetReadDeadline(time.Time) error  { return nil }
func (b *bufTransport) SetWriteDeadline(time.Time) error { return nil }
