package adb

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d1ced/goadb/wire"
)

// syncHandler serves sync connections from fs and records shell commands.
func syncHandler(fs *fakeFS, shells *[]string, mtx *sync.Mutex) handler {
	return func(s *mockServerConn) {
		if !s.transport("abc") {
			return
		}
		req := s.readRequest()
		switch {
		case req == "sync:":
			s.okay()
			fs.serve(s)
		case strings.HasPrefix(req, "shell:"):
			mtx.Lock()
			*shells = append(*shells, strings.TrimPrefix(req, "shell:"))
			mtx.Unlock()
			s.okay()
		default:
			s.fail("unknown service " + req)
		}
	}
}

func openMockSync(t *testing.T, fs *fakeFS) (*SyncService, func() []string) {
	var (
		mtx    sync.Mutex
		shells []string
	)
	client, _, _ := newMockClient(t, syncHandler(fs, &shells, &mtx))
	s, err := client.Device("abc").OpenSync()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, func() []string {
		mtx.Lock()
		defer mtx.Unlock()
		return append([]string(nil), shells...)
	}
}

func TestPushPullRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 65536, 65537} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			dir := t.TempDir()
			data := make([]byte, n)
			_, err := rand.Read(data)
			require.NoError(t, err)
			local := filepath.Join(dir, "in")
			require.NoError(t, os.WriteFile(local, data, 0644))
			require.NoError(t, os.Chmod(local, 0644))

			fs := newFakeFS("/sdcard")
			s, shells := openMockSync(t, fs)

			require.NoError(t, s.PushFile(local, "/sdcard/f", nil))
			stored, ok := fs.file("/sdcard/f")
			require.True(t, ok)
			assert.Equal(t, uint32(wire.ModeRegular|0644), stored.mode)
			assert.Equal(t, []string{"chmod 666 /sdcard/f"}, shells())

			st, err := s.Stat("/sdcard/f")
			require.NoError(t, err)
			assert.Equal(t, uint32(n), st.Size)
			assert.True(t, st.Mode.IsRegular())

			out := filepath.Join(dir, "out")
			require.NoError(t, s.PullFile("/sdcard/f", out, nil))
			got, err := os.ReadFile(out)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(data, got))
		})
	}
}

type recordingMonitor struct {
	NullSyncProgressMonitor
	total    int64
	done     int64
	tasks    []string
	cancelAt int64
	stopped  bool
}

func (m *recordingMonitor) Start(total int64)        { m.total = total }
func (m *recordingMonitor) StartSubTask(name string) { m.tasks = append(m.tasks, name) }
func (m *recordingMonitor) Advance(work int64)       { m.done += work }
func (m *recordingMonitor) Stop()                    { m.stopped = true }
func (m *recordingMonitor) IsCanceled() bool {
	return m.cancelAt > 0 && m.done >= m.cancelAt
}

func TestPushPullTree(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("world!"), 0644))

	fs := newFakeFS("/sdcard", "/sdcard/src", "/sdcard/src/sub")
	s, _ := openMockSync(t, fs)

	var monitor recordingMonitor
	require.NoError(t, s.Push([]string{src}, "/sdcard", &monitor))
	// two directories and eleven bytes
	assert.Equal(t, int64(13), monitor.total)
	assert.Equal(t, int64(13), monitor.done)
	assert.True(t, monitor.stopped)
	assert.ElementsMatch(t, []string{"/sdcard/src/a.txt", "/sdcard/src/sub/b.txt"}, monitor.tasks)

	entries, err := s.List("/sdcard/src")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"a.txt", "sub"}, names)

	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.Mkdir(dst, 0755))
	var pullMonitor recordingMonitor
	require.NoError(t, s.Pull("/sdcard/src", dst, &pullMonitor))
	assert.Equal(t, int64(13), pullMonitor.total)

	b, err := os.ReadFile(filepath.Join(dst, "src", "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world!", string(b))
}

func TestPushTargets(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0644))

	fs := newFakeFS("/sdcard")
	fs.files["/sdcard/file"] = fakeFile{data: []byte("x"), mode: wire.ModeRegular | 0644, mtime: 1}
	s, _ := openMockSync(t, fs)

	err := s.Push([]string{local}, "/nope", nil)
	assert.Equal(t, NoDirTarget, SyncErrorCode(err))

	err = s.Push([]string{local}, "/sdcard/file", nil)
	assert.Equal(t, RemoteIsFile, SyncErrorCode(err))

	err = s.PushFile(filepath.Join(dir, "missing"), "/sdcard/x", nil)
	assert.Equal(t, NoLocalFile, SyncErrorCode(err))

	err = s.PushFile(dir, "/sdcard/x", nil)
	assert.Equal(t, LocalIsDirectory, SyncErrorCode(err))

	err = s.Pull("/sdcard/file", local, nil)
	assert.Equal(t, TargetIsFile, SyncErrorCode(err))

	err = s.PullFile("/sdcard", filepath.Join(dir, "out"), nil)
	assert.Equal(t, RemoteIsDirectory, SyncErrorCode(err))
}

func TestStatMissing(t *testing.T) {
	s, _ := openMockSync(t, newFakeFS())

	_, err := s.Stat("/nope")
	assert.Equal(t, NoRemoteObject, SyncErrorCode(err))

	// still usable
	st, err := s.Stat("/")
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}

func TestPullFailSurfacesMessage(t *testing.T) {
	s, _ := openMockSync(t, newFakeFS())

	var buf bytes.Buffer
	err := s.PullWriter("/nope", &buf, nil)
	var se *SyncError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ConnectionError, se.Code)
	assert.Equal(t, "No such file or directory", se.Message)
}

func TestPushCancelled(t *testing.T) {
	s, _ := openMockSync(t, newFakeFS("/sdcard"))

	monitor := &recordingMonitor{cancelAt: 1}
	data := bytes.Repeat([]byte{1}, 3*wire.SyncMaxChunkSize)
	err := s.PushReader(bytes.NewReader(data), "/sdcard/big", 0644, time.Time{}, monitor)
	assert.Equal(t, Cancelled, SyncErrorCode(err))
	assert.True(t, errors.Is(err, ErrCancelled))

	// the connection is in an unknown state now
	_, err = s.Stat("/sdcard")
	assert.Equal(t, ConnectionError, SyncErrorCode(err))
}

func newSpySync(in []byte) (*SyncService, *bufTransport) {
	client := New(Config{Dialer: func(string) (wire.Transport, error) {
		return nil, errors.New("no dialing in this test")
	}})
	spy := &bufTransport{in: bytes.NewReader(in)}
	return newSyncService(client.Device("abc"), wire.NewConn(spy, time.Second)), spy
}

func TestRemotePathTooLong(t *testing.T) {
	s, spy := newSpySync(nil)
	remote := "/" + strings.Repeat("a", MaxRemotePathLength)

	err := s.PushReader(strings.NewReader("data"), remote, 0644, time.Time{}, nil)
	assert.Equal(t, RemotePathTooLong, SyncErrorCode(err))
	_, err = s.Stat(remote)
	assert.Equal(t, RemotePathTooLong, SyncErrorCode(err))
	err = s.PullWriter(remote, &bytes.Buffer{}, nil)
	assert.Equal(t, RemotePathTooLong, SyncErrorCode(err))

	assert.Equal(t, 0, spy.Written())

	// the service is still usable
	_, err = s.Stat("/" + strings.Repeat("a", MaxRemotePathLength-1))
	assert.NotEqual(t, RemotePathTooLong, SyncErrorCode(err))
}

func TestRemotePathEncoding(t *testing.T) {
	s, spy := newSpySync(nil)
	_, err := s.List("/sdcard/\xff")
	assert.Equal(t, RemotePathEncoding, SyncErrorCode(err))
	assert.Equal(t, 0, spy.Written())
}

func TestPullBufferOverrun(t *testing.T) {
	in := make([]byte, 8)
	copy(in, wire.SyncData)
	binary.LittleEndian.PutUint32(in[4:], wire.SyncMaxChunkSize+1)
	s, _ := newSpySync(in)

	err := s.PullWriter("/sdcard/f", &bytes.Buffer{}, nil)
	assert.Equal(t, BufferOverrun, SyncErrorCode(err))
}

func TestPullUnexpectedTag(t *testing.T) {
	s, _ := newSpySync([]byte("DENT\x00\x00\x00\x00"))

	err := s.PullWriter("/sdcard/f", &bytes.Buffer{}, nil)
	assert.Equal(t, ConnectionError, SyncErrorCode(err))
}

func TestPushFailAfterDone(t *testing.T) {
	msg := "couldn't create file: Read-only file system"
	in := make([]byte, 8, 8+len(msg))
	copy(in, wire.SyncFail)
	binary.LittleEndian.PutUint32(in[4:], uint32(len(msg)))
	s, spy := newSpySync(append(in, msg...))

	err := s.PushReader(strings.NewReader("hello"), "/system/f", 0644, time.Unix(1600000000, 0), nil)
	var se *SyncError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, msg, se.Message)

	want := []byte("SEND\x0d\x00\x00\x00/system/f,420" +
		"DATA\x05\x00\x00\x00hello" +
		"DONE")
	var mtime [4]byte
	binary.LittleEndian.PutUint32(mtime[:], 1600000000)
	want = append(want, mtime[:]...)
	assert.Equal(t, want, spy.out.Bytes())
}

func TestListSkipsDots(t *testing.T) {
	fs := newFakeFS("/sdcard", "/sdcard/Music")
	fs.files["/sdcard/a"] = fakeFile{data: []byte("abc"), mode: wire.ModeRegular | 0600, mtime: 5}
	s, _ := openMockSync(t, fs)

	entries, err := s.List("/sdcard")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		switch e.Name {
		case "Music":
			assert.True(t, e.IsDir())
		case "a":
			assert.Equal(t, uint32(3), e.Size)
			assert.Equal(t, os.FileMode(0600), e.Mode)
			assert.Equal(t, int64(5), e.ModifiedAt.Unix())
		default:
			t.Errorf("unexpected entry %q", e.Name)
		}
	}
}
