package adb

import (
	"os"
	"path"
	"time"

	"github.com/pkg/errors"

	"github.com/d1ced/goadb/wire"
)

// FileStatistics is the result of a STAT request.
type FileStatistics struct {
	Mode       os.FileMode
	Size       uint32
	ModifiedAt time.Time
}

// IsDir reports whether the entry is a directory.
func (s FileStatistics) IsDir() bool {
	return s.Mode.IsDir()
}

// exists is false for the all-zero reply adb sends for missing paths.
func (s FileStatistics) exists() bool {
	return s.Mode != 0 || s.Size != 0 || s.ModifiedAt.Unix() != 0
}

// DirEntry holds information about a directory entry on a device.
type DirEntry struct {
	Name string
	FileStatistics
}

// readStat reads mode, size and mtime.
func readStat(conn *wire.Conn) (FileStatistics, error) {
	b, err := conn.ReadExactN(12)
	if err != nil {
		return FileStatistics{}, err
	}
	return parseStat(b), nil
}

func parseStat(b []byte) FileStatistics {
	var mode, size, mtime [4]byte
	copy(mode[:], b[0:4])
	copy(size[:], b[4:8])
	copy(mtime[:], b[8:12])
	return FileStatistics{
		Mode:       wire.ParseFileMode(wire.TetraToUint32(mode)),
		Size:       wire.TetraToUint32(size),
		ModifiedAt: wire.TetraToTime(mtime),
	}
}

// readDirEntries reads DENT entries until DONE. The entries "." and ".." are
// skipped.
func readDirEntries(conn *wire.Conn) ([]*DirEntry, error) {
	var result []*DirEntry
	for {
		entry, done, err := readNextDirListEntry(conn)
		if err != nil {
			return result, err
		}
		if done {
			return result, nil
		}
		if entry.Name == "." || entry.Name == ".." {
			continue
		}
		result = append(result, entry)
	}
}

func readNextDirListEntry(conn *wire.Conn) (*DirEntry, bool, error) {
	status, err := conn.ReadSyncTag()
	if err != nil {
		return nil, false, err
	}
	if status != wire.SyncDone && status != wire.SyncDent {
		return nil, false, errors.Errorf("error reading dir entries: expected dir entry ID 'DENT', but got '%s'", status)
	}

	// DONE carries the same 16 bytes as DENT, all zero.
	b, err := conn.ReadExactN(16)
	if err != nil {
		return nil, false, errors.WithMessage(err, "error reading dir entries")
	}
	if status == wire.SyncDone {
		return nil, true, nil
	}

	var nameLen [4]byte
	copy(nameLen[:], b[12:16])
	n := wire.TetraToUint32(nameLen)
	if n > wire.SyncMaxChunkSize {
		return nil, false, errors.Errorf("error reading dir entries: name length %d too long", n)
	}
	name, err := conn.ReadExactN(int(n))
	if err != nil {
		return nil, false, errors.WithMessage(err, "error reading dir entries: error reading file name")
	}

	return &DirEntry{
		Name:           string(name),
		FileStatistics: parseStat(b[:12]),
	}, false, nil
}

// remoteJoin joins device paths, which always use forward slashes.
func remoteJoin(dir, name string) string {
	return path.Join(dir, name)
}
