package adb

// SyncProgressMonitor follows the progress of a sync transfer and can cancel it.
type SyncProgressMonitor interface {
	// Start is called once with the total amount of work: the sum of the file
	// sizes, plus one per directory.
	Start(totalWork int64)
	// StartSubTask is called before each file with its remote path.
	StartSubTask(name string)
	// Advance reports work done since the last call.
	Advance(work int64)
	// IsCanceled is polled before every file and every chunk.
	IsCanceled() bool
	// Stop is called once when the transfer ends, successfully or not.
	Stop()
}

// NullSyncProgressMonitor ignores progress and never cancels.
type NullSyncProgressMonitor struct{}

var _ SyncProgressMonitor = NullSyncProgressMonitor{}

func (NullSyncProgressMonitor) Start(int64)         {}
func (NullSyncProgressMonitor) StartSubTask(string) {}
func (NullSyncProgressMonitor) Advance(int64)       {}
func (NullSyncProgressMonitor) IsCanceled() bool    { return false }
func (NullSyncProgressMonitor) Stop()               {}

func orNullMonitor(m SyncProgressMonitor) SyncProgressMonitor {
	if m == nil {
		return NullSyncProgressMonitor{}
	}
	return m
}
