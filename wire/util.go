package wire

import (
	"encoding/binary"
	"os"
	"regexp"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// DeviceNotFoundMessagePattern recognises the FAIL messages a server sends
// when no device matches a request: "device not found" from old servers,
// "device 'serial' not found" from newer ones.
var DeviceNotFoundMessagePattern = regexp.MustCompile(`device( '.*')? not found`)

var latin1 = charmap.ISO8859_1

// DecodeString decodes b with the single-byte encoding used by the protocol.
// Every byte maps to exactly one rune, so the decoding never fails.
func DecodeString(b []byte) string {
	s, err := latin1.NewDecoder().Bytes(b)
	if err != nil {
		// unreachable for ISO-8859-1
		return string(b)
	}
	return string(s)
}

// TetraToUint32 reads a little endian 32 bit value.
func TetraToUint32(t [4]byte) uint32 {
	return binary.LittleEndian.Uint32(t[:])
}

// Uint32ToTetra is the inverse of TetraToUint32.
func Uint32ToTetra(u uint32) (t [4]byte) {
	binary.LittleEndian.PutUint32(t[:], u)
	return t
}

// TetraToTime interprets octet as little endian seconds since the epoch.
func TetraToTime(octet [4]byte) time.Time {
	return time.Unix(int64(TetraToUint32(octet)), 0)
}

// Unix file type bits, as found in the mode field of STAT and DENT
// responses. Only the low 16 bits of a mode are meaningful.
const (
	ModeFifo        = 0010000
	ModeCharDevice  = 0020000
	ModeDir         = 0040000
	ModeBlockDevice = 0060000
	ModeRegular     = 0100000
	ModeSymlink     = 0120000
	ModeSocket      = 0140000

	modeTypeMask = 0170000
)

var fileTypes = map[uint32]os.FileMode{
	ModeFifo:        os.ModeNamedPipe,
	ModeCharDevice:  os.ModeDevice | os.ModeCharDevice,
	ModeDir:         os.ModeDir,
	ModeBlockDevice: os.ModeDevice,
	ModeSymlink:     os.ModeSymlink,
	ModeSocket:      os.ModeSocket,
}

// ParseFileMode converts a device file mode to an os.FileMode. Regular files
// and unknown types carry only permission bits.
func ParseFileMode(mode uint32) os.FileMode {
	return fileTypes[mode&modeTypeMask] | os.FileMode(mode).Perm()
}
