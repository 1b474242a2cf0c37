package extra

import (
	"io"
	"log"
	"net/http"
	"os"
	"time"

	rhttp "github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	adb "github.com/d1ced/goadb"
)

// Pusher writes a stream to a file on the device. *adb.SyncService
// implements it.
type Pusher interface {
	PushReader(r io.Reader, remote string, perm os.FileMode, mtime time.Time, monitor adb.SyncProgressMonitor) error
}

var _ Pusher = (*adb.SyncService)(nil)

// HTTPClient downloads the files pushed by PushURL. Failed requests are
// retried with backoff.
var HTTPClient = newHTTPClient()

func newHTTPClient() *rhttp.Client {
	c := rhttp.NewClient()
	c.RetryMax = 3
	c.Logger = log.New(io.Discard, "", 0)
	return c
}

// PushURL downloads url and writes the body to remote on the device.
func PushURL(s Pusher, url, remote string, perm os.FileMode, monitor adb.SyncProgressMonitor) error {
	if monitor == nil {
		monitor = adb.NullSyncProgressMonitor{}
	}
	res, err := HTTPClient.Get(url)
	if err != nil {
		return errors.Wrapf(err, "http download <%s>", url)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("http download <%s> status %v", url, res.Status)
	}

	monitor.Start(res.ContentLength)
	defer monitor.Stop()
	monitor.StartSubTask(remote)
	mtime := time.Now()
	if lm, err := http.ParseTime(res.Header.Get("Last-Modified")); err == nil {
		mtime = lm
	}
	return s.PushReader(res.Body, remote, perm, mtime, monitor)
}
