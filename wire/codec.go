package wire

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// MaxMessageLength is the largest body a 4 hex digit length prefix can announce.
const MaxMessageLength = 0xFFFF

// Status codes returned by the server.
const (
	StatusOkay    = "OKAY"
	StatusFailure = "FAIL"
)

// Sync sub-protocol request and response ids.
// https://android.googlesource.com/platform/system/core/+/master/adb/SYNC.TXT
const (
	SyncStat = "STAT"
	SyncList = "LIST"
	SyncDent = "DENT"
	SyncSend = "SEND"
	SyncRecv = "RECV"
	SyncData = "DATA"
	SyncDone = "DONE"
	SyncOkay = "OKAY"
	SyncFail = "FAIL"
	SyncQuit = "QUIT"
)

// SyncMaxChunkSize is the largest payload of a single DATA frame.
const SyncMaxChunkSize = 64 * 1024

// FormRequest frames body for the server: its byte length as four upper-case
// hex digits, followed by the body itself. No terminator is added.
func FormRequest(body string) ([]byte, error) {
	if len(body) > MaxMessageLength {
		return nil, Errorf(AssertionError, "message length exceeds maximum: %d > %d",
			len(body), MaxMessageLength)
	}
	b := make([]byte, 0, 4+len(body))
	b = append(b, fmt.Sprintf("%04X", len(body))...)
	b = append(b, body...)
	return b, nil
}

// IsOkay reports whether status is exactly "OKAY".
func IsOkay(status []byte) bool {
	return string(status) == StatusOkay
}

// IsFail reports whether status is exactly "FAIL".
func IsFail(status []byte) bool {
	return string(status) == StatusFailure
}

// ParseHexLength parses a 4 digit hex length field.
func ParseHexLength(b []byte) (int, error) {
	if len(b) != 4 {
		return 0, Errorf(MalformedLength, "length field must be 4 bytes, got %d", len(b))
	}
	n, err := strconv.ParseUint(string(b), 16, 16)
	if err != nil {
		return 0, WrapErrorf(err, MalformedLength, "invalid hex length %q", b)
	}
	return int(n), nil
}

// IsSyncTag reports whether s can be used as a sync request id.
func IsSyncTag(s string) bool {
	return len(s) == 4
}

// SyncHeader builds the 8 byte sync header: id followed by a little endian length.
func SyncHeader(tag string, length uint32) ([]byte, error) {
	if !IsSyncTag(tag) {
		return nil, Errorf(AssertionError, "malformed sync id: %q", tag)
	}
	b := make([]byte, 8)
	copy(b, tag)
	binary.LittleEndian.PutUint32(b[4:], length)
	return b, nil
}
