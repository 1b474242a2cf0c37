package adb

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/d1ced/goadb/wire"
)

// MaxRemotePathLength is the longest remote path, in bytes, the sync service accepts.
const MaxRemotePathLength = 1024

// SyncService transfers files over a connection in sync mode.
// Operations are serialized; the service can be shared but not used
// concurrently. Once an operation was cancelled or the connection failed,
// every further call returns a ConnectionError and the service must be
// closed and reopened.
type SyncService struct {
	device *Device
	log    logrus.FieldLogger

	mu     sync.Mutex
	conn   *wire.Conn
	broken error
}

func newSyncService(d *Device, conn *wire.Conn) *SyncService {
	return &SyncService{
		device: d,
		log:    d.client.log.WithField("device", d.String()),
		conn:   conn,
	}
}

// Close sends QUIT and closes the connection.
func (s *SyncService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	if s.broken == nil {
		s.conn.SendSyncLength(wire.SyncQuit, 0)
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *SyncService) usable() error {
	if s.conn == nil {
		return syncErrorf(ConnectionError, "", "sync service is closed")
	}
	if s.broken != nil {
		return &SyncError{Code: ConnectionError, Message: "sync connection is no longer usable", Cause: s.broken}
	}
	return nil
}

// fail marks the connection unusable when err left the protocol in an
// unknown state, and returns err.
func (s *SyncService) fail(err error) error {
	if s.broken == nil {
		s.broken = err
		s.log.WithError(err).Debug("sync connection broken")
	}
	return err
}

func checkRemotePath(remote string) error {
	if !utf8.ValidString(remote) {
		return syncErrorf(RemotePathEncoding, remote, "remote path is not valid UTF-8")
	}
	if len(remote) > MaxRemotePathLength {
		return syncErrorf(RemotePathTooLong, "", "remote path is %d bytes, max %d", len(remote), MaxRemotePathLength)
	}
	return nil
}

func (s *SyncService) request(id, remote string) error {
	if err := checkRemotePath(remote); err != nil {
		return err
	}
	return s.send(id, remote, remote)
}

func (s *SyncService) send(id, payload, remote string) error {
	s.log.WithField("request", id+" "+payload).Debug("sync request")
	if err := s.conn.SendSyncRequest(id, payload); err != nil {
		return s.fail(wrapSyncError(err, ConnectionError, remote))
	}
	return nil
}

// Stat returns mode, size and modification time of remote. A path that does
// not exist is a NoRemoteObject error.
func (s *SyncService) Stat(remote string) (FileStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return FileStatistics{}, err
	}
	return s.stat(remote)
}

func (s *SyncService) stat(remote string) (FileStatistics, error) {
	if err := s.request(wire.SyncStat, remote); err != nil {
		return FileStatistics{}, err
	}
	id, err := s.conn.ReadSyncTag()
	if err != nil {
		return FileStatistics{}, s.fail(wrapSyncError(err, ConnectionError, remote))
	}
	if id != wire.SyncStat {
		return FileStatistics{}, s.fail(syncErrorf(TransferProtocolError, remote, "expected stat ID 'STAT', but got '%s'", id))
	}
	st, err := readStat(s.conn)
	if err != nil {
		return FileStatistics{}, s.fail(wrapSyncError(err, ConnectionError, remote))
	}
	if !st.exists() {
		return st, syncErrorf(NoRemoteObject, remote, "no such file or directory")
	}
	return st, nil
}

// List returns the entries of the remote directory, without "." and "..".
func (s *SyncService) List(remote string) ([]*DirEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return nil, err
	}
	return s.list(remote)
}

func (s *SyncService) list(remote string) ([]*DirEntry, error) {
	if err := s.request(wire.SyncList, remote); err != nil {
		return nil, err
	}
	entries, err := readDirEntries(s.conn)
	if err != nil {
		return nil, s.fail(wrapSyncError(err, ConnectionError, remote))
	}
	return entries, nil
}

// PushReader writes the contents of r to remote, creating it with perm.
// A zero mtime means the time of the transfer.
func (s *SyncService) PushReader(r io.Reader, remote string, perm os.FileMode, mtime time.Time, monitor SyncProgressMonitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	return s.doPush(r, remote, perm, mtime, orNullMonitor(monitor))
}

// doPush runs SEND, DATA..., DONE and reads the status.
func (s *SyncService) doPush(r io.Reader, remote string, perm os.FileMode, mtime time.Time, monitor SyncProgressMonitor) error {
	if err := checkRemotePath(remote); err != nil {
		return err
	}
	if monitor.IsCanceled() {
		return s.cancelled(remote)
	}
	if err := s.send(wire.SyncSend, remote+","+strconv.Itoa(int(perm.Perm())), remote); err != nil {
		return err
	}

	buf := make([]byte, wire.SyncMaxChunkSize)
	for {
		if monitor.IsCanceled() {
			return s.cancelled(remote)
		}
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if werr := s.conn.SendSyncData(buf[:n]); werr != nil {
				return s.fail(wrapSyncError(werr, ConnectionError, remote))
			}
			monitor.Advance(int64(n))
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return s.fail(&SyncError{Code: FileReadError, Path: remote, Cause: err})
		}
	}

	if mtime.IsZero() {
		mtime = time.Now()
	}
	if err := s.conn.SendSyncLength(wire.SyncDone, uint32(mtime.Unix())); err != nil {
		return s.fail(wrapSyncError(err, ConnectionError, remote))
	}

	id, length, err := s.conn.ReadSyncHeader()
	if err != nil {
		return s.fail(wrapSyncError(err, ConnectionError, remote))
	}
	switch id {
	case wire.SyncOkay:
		return nil
	case wire.SyncFail:
		msg, err := s.conn.ReadSyncFailMessage(length)
		if err != nil {
			return s.fail(wrapSyncError(err, ConnectionError, remote))
		}
		return s.fail(syncErrorf(TransferProtocolError, remote, "%s", msg))
	default:
		return s.fail(syncErrorf(TransferProtocolError, remote, "unexpected reply '%s' to DONE", id))
	}
}

// PullWriter copies the contents of remote to w.
func (s *SyncService) PullWriter(remote string, w io.Writer, monitor SyncProgressMonitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	return s.doPull(remote, w, orNullMonitor(monitor))
}

// doPull runs RECV and copies DATA frames until DONE.
func (s *SyncService) doPull(remote string, w io.Writer, monitor SyncProgressMonitor) error {
	if monitor.IsCanceled() {
		return s.cancelled(remote)
	}
	if err := s.request(wire.SyncRecv, remote); err != nil {
		return err
	}

	buf := make([]byte, wire.SyncMaxChunkSize)
	for {
		if monitor.IsCanceled() {
			return s.cancelled(remote)
		}
		id, length, err := s.conn.ReadSyncHeader()
		if err != nil {
			return s.fail(wrapSyncError(err, ConnectionError, remote))
		}
		switch id {
		case wire.SyncData:
			if length > wire.SyncMaxChunkSize {
				return s.fail(syncErrorf(BufferOverrun, remote, "DATA frame of %d bytes", length))
			}
			chunk := buf[:length]
			if err := s.conn.ReadExact(chunk); err != nil {
				return s.fail(wrapSyncError(err, ConnectionError, remote))
			}
			if _, err := w.Write(chunk); err != nil {
				return s.fail(&SyncError{Code: FileWriteError, Path: remote, Cause: err})
			}
			monitor.Advance(int64(length))
		case wire.SyncDone:
			return nil
		case wire.SyncFail:
			msg, err := s.conn.ReadSyncFailMessage(length)
			if err != nil {
				return s.fail(wrapSyncError(err, ConnectionError, remote))
			}
			return s.fail(syncErrorf(ConnectionError, remote, "%s", msg))
		default:
			return s.fail(syncErrorf(ConnectionError, remote, "unexpected sync id '%s'", id))
		}
	}
}

func (s *SyncService) cancelled(remote string) error {
	return s.fail(&SyncError{Code: Cancelled, Path: remote})
}

// PushFile copies the local file to remote, then makes it world readable
// and writable on a best effort basis.
func (s *SyncService) PushFile(local, remote string, monitor SyncProgressMonitor) error {
	monitor = orNullMonitor(monitor)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}

	fi, err := os.Stat(local)
	if err != nil {
		return &SyncError{Code: NoLocalFile, Path: local, Cause: err}
	}
	if fi.IsDir() {
		return syncErrorf(LocalIsDirectory, local, "use Push to copy directories")
	}

	monitor.Start(fi.Size())
	defer monitor.Stop()
	return s.pushFile(local, remote, fi, monitor)
}

func (s *SyncService) pushFile(local, remote string, fi os.FileInfo, monitor SyncProgressMonitor) error {
	f, err := os.Open(local)
	if err != nil {
		return &SyncError{Code: NoLocalFile, Path: local, Cause: err}
	}
	defer f.Close()

	monitor.StartSubTask(remote)
	if err := s.doPush(f, remote, fi.Mode(), time.Now(), monitor); err != nil {
		return err
	}
	s.chmod(remote)
	return nil
}

// chmod runs chmod 666 on a separate connection. Failures are only logged.
func (s *SyncService) chmod(remote string) {
	cmd, err := prepareCommandLine("chmod", "666", remote)
	if err == nil {
		err = s.device.ExecuteRemoteCommand(cmd, NullOutputReceiver{}, s.device.client.config.Timeout)
	}
	if err != nil {
		s.log.WithError(err).WithField("path", remote).Debug("chmod after push failed")
	}
}

// Push copies local files and directories into the remote directory.
// Directories are copied recursively.
func (s *SyncService) Push(locals []string, remoteDir string, monitor SyncProgressMonitor) error {
	monitor = orNullMonitor(monitor)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}

	st, err := s.stat(remoteDir)
	if err != nil {
		if SyncErrorCode(err) == NoRemoteObject {
			return syncErrorf(NoDirTarget, remoteDir, "remote directory does not exist")
		}
		return err
	}
	if !st.IsDir() {
		return syncErrorf(RemoteIsFile, remoteDir, "remote target is not a directory")
	}

	var total int64
	for _, local := range locals {
		w, err := localWeight(local)
		if err != nil {
			return &SyncError{Code: NoLocalFile, Path: local, Cause: err}
		}
		total += w
	}

	monitor.Start(total)
	defer monitor.Stop()
	for _, local := range locals {
		if err := s.pushTree(local, remoteJoin(remoteDir, filepath.Base(local)), monitor); err != nil {
			return err
		}
	}
	return nil
}

func (s *SyncService) pushTree(local, remote string, monitor SyncProgressMonitor) error {
	if monitor.IsCanceled() {
		return s.cancelled(remote)
	}
	fi, err := os.Stat(local)
	if err != nil {
		return &SyncError{Code: NoLocalFile, Path: local, Cause: err}
	}
	if !fi.IsDir() {
		return s.pushFile(local, remote, fi, monitor)
	}

	monitor.Advance(1)
	children, err := os.ReadDir(local)
	if err != nil {
		return &SyncError{Code: FileReadError, Path: local, Cause: err}
	}
	for _, child := range children {
		err := s.pushTree(filepath.Join(local, child.Name()), remoteJoin(remote, child.Name()), monitor)
		if err != nil {
			return err
		}
	}
	return nil
}

// localWeight is the progress weight of a local path: its size for files and
// one for every directory.
func localWeight(local string) (int64, error) {
	var total int64
	err := filepath.Walk(local, func(_ string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			total++
		} else {
			total += fi.Size()
		}
		return nil
	})
	return total, err
}

// PullFile copies remote to the local file, which is created or truncated.
func (s *SyncService) PullFile(remote, local string, monitor SyncProgressMonitor) error {
	monitor = orNullMonitor(monitor)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}

	st, err := s.stat(remote)
	if err != nil {
		return err
	}
	if st.IsDir() {
		return syncErrorf(RemoteIsDirectory, remote, "use Pull to copy directories")
	}

	monitor.Start(int64(st.Size))
	defer monitor.Stop()
	return s.pullFile(remote, local, monitor)
}

func (s *SyncService) pullFile(remote, local string, monitor SyncProgressMonitor) (err error) {
	if fi, statErr := os.Stat(local); statErr == nil && fi.IsDir() {
		return syncErrorf(LocalIsDirectory, local, "local target is a directory")
	}
	f, err := os.Create(local)
	if err != nil {
		return &SyncError{Code: FileWriteError, Path: local, Cause: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &SyncError{Code: FileWriteError, Path: local, Cause: cerr}
		}
	}()

	monitor.StartSubTask(remote)
	return s.doPull(remote, f, monitor)
}

// Pull copies the remote file or directory into localDir.
// Directories are copied recursively.
func (s *SyncService) Pull(remote, localDir string, monitor SyncProgressMonitor) error {
	monitor = orNullMonitor(monitor)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}

	fi, err := os.Stat(localDir)
	if err != nil {
		return &SyncError{Code: NoDirTarget, Path: localDir, Cause: err}
	}
	if !fi.IsDir() {
		return syncErrorf(TargetIsFile, localDir, "local target is not a directory")
	}

	st, err := s.stat(remote)
	if err != nil {
		return err
	}
	total, err := s.remoteWeight(remote, st)
	if err != nil {
		return err
	}

	monitor.Start(total)
	defer monitor.Stop()
	return s.pullTree(remote, st, filepath.Join(localDir, path.Base(remote)), monitor)
}

func (s *SyncService) remoteWeight(remote string, st FileStatistics) (int64, error) {
	if !st.IsDir() {
		return int64(st.Size), nil
	}
	entries, err := s.list(remote)
	if err != nil {
		return 0, err
	}
	total := int64(1)
	for _, entry := range entries {
		w, err := s.remoteWeight(remoteJoin(remote, entry.Name), entry.FileStatistics)
		if err != nil {
			return 0, err
		}
		total += w
	}
	return total, nil
}

func (s *SyncService) pullTree(remote string, st FileStatistics, local string, monitor SyncProgressMonitor) error {
	if monitor.IsCanceled() {
		return s.cancelled(remote)
	}
	if !st.IsDir() {
		return s.pullFile(remote, local, monitor)
	}

	if err := os.MkdirAll(local, 0755); err != nil {
		return &SyncError{Code: FileWriteError, Path: local, Cause: err}
	}
	monitor.Advance(1)
	entries, err := s.list(remote)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		err := s.pullTree(remoteJoin(remote, entry.Name), entry.FileStatistics, filepath.Join(local, entry.Name), monitor)
		if err != nil {
			return err
		}
	}
	return nil
}
