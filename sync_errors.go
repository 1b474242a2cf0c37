package adb

import (
	"fmt"

	"github.com/pkg/errors"
)

// SyncErrCode classifies the outcome of a sync operation.
type SyncErrCode uint8

const (
	SyncOK SyncErrCode = iota
	NoLocalFile
	NoDirTarget
	TargetIsFile
	RemoteIsFile
	RemotePathTooLong
	RemotePathEncoding
	FileReadError
	FileWriteError
	ConnectionError
	BufferOverrun
	Cancelled
	UnknownError
	NoRemoteObject
	LocalIsDirectory
	TransferProtocolError
	RemoteIsDirectory
)

var syncErrCodeNames = [...]string{
	SyncOK:                "OK",
	NoLocalFile:           "NoLocalFile",
	NoDirTarget:           "NoDirTarget",
	TargetIsFile:          "TargetIsFile",
	RemoteIsFile:          "RemoteIsFile",
	RemotePathTooLong:     "RemotePathTooLong",
	RemotePathEncoding:    "RemotePathEncoding",
	FileReadError:         "FileReadError",
	FileWriteError:        "FileWriteError",
	ConnectionError:       "ConnectionError",
	BufferOverrun:         "BufferOverrun",
	Cancelled:             "Cancelled",
	UnknownError:          "UnknownError",
	NoRemoteObject:        "NoRemoteObject",
	LocalIsDirectory:      "LocalIsDirectory",
	TransferProtocolError: "TransferProtocolError",
	RemoteIsDirectory:     "RemoteIsDirectory",
}

func (c SyncErrCode) String() string {
	if int(c) < len(syncErrCodeNames) {
		return syncErrCodeNames[c]
	}
	return fmt.Sprintf("SyncErrCode(%d)", uint8(c))
}

// SyncError is returned by every SyncService operation that did not succeed.
// Message is the diagnostic sent by the device, if any.
type SyncError struct {
	Code    SyncErrCode
	Path    string
	Message string
	Cause   error
}

func (e *SyncError) Error() string {
	msg := e.Code.String()
	if e.Path != "" {
		msg = fmt.Sprintf("%s %s", msg, e.Path)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Cause)
	}
	return msg
}

func (e *SyncError) Unwrap() error {
	if e.Code == Cancelled && e.Cause == nil {
		return ErrCancelled
	}
	return e.Cause
}

func syncErrorf(code SyncErrCode, path string, format string, args ...interface{}) error {
	return &SyncError{Code: code, Path: path, Message: fmt.Sprintf(format, args...)}
}

func wrapSyncError(cause error, code SyncErrCode, path string) error {
	if cause == nil {
		return nil
	}
	var se *SyncError
	if errors.As(cause, &se) {
		return cause
	}
	return &SyncError{Code: code, Path: path, Cause: cause}
}

// SyncErrorCode returns the code of a *SyncError in err's chain, SyncOK for
// a nil err and UnknownError for any other error.
func SyncErrorCode(err error) SyncErrCode {
	if err == nil {
		return SyncOK
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	return UnknownError
}
