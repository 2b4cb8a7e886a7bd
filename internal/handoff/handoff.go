// Package handoff carries the worker's endpoint URL back to the invoker.
//
// The channel is a plain OS pipe created by the invoker before the worker is
// spawned. The write end rides the spawn as fd 3 (cmd.ExtraFiles), survives
// the intermediate detach stage, and is written exactly once by the worker:
// the resolved endpoint URL, newline-terminated. The invoker reads exactly
// once. The original platform blocked on this read forever; a worker that
// crashed before binding would then hang the front end, so the read here is
// bounded by a generous configurable deadline instead.
package handoff

import (
	"bufio"
	"os"
	"strings"
	"time"

	"github.com/voxbridge/host/internal/errors"
)

// WorkerFD is the file descriptor number the write end occupies in the
// worker process: the first ExtraFiles entry after stdin/stdout/stderr.
const WorkerFD = 3

// New creates the handoff pipe. The invoker keeps r and passes w to the
// spawned process via ExtraFiles, then closes its copy of w so a worker
// death surfaces as EOF on r.
func New() (r, w *os.File, err error) {
	return os.Pipe()
}

// FromWorker returns the inherited write end inside the worker process.
func FromWorker() (*os.File, error) {
	f := os.NewFile(WorkerFD, "handoff")
	if f == nil {
		return nil, errors.HandoffNoPipe()
	}
	// A stale fd number yields a file that fails on first use; probe it
	// now so the worker dies with a clear diagnostic instead of hanging
	// the invoker.
	if _, err := f.Stat(); err != nil {
		return nil, errors.HandoffNoPipe()
	}
	return f, nil
}

// Send writes the endpoint URL once and closes the pipe. The worker must
// call this (or exit) promptly after binding; the invoker is waiting.
func Send(w *os.File, url string) error {
	defer w.Close()
	if _, err := w.WriteString(url + "\n"); err != nil {
		return errors.HandoffClosed(err)
	}
	return nil
}

// Receive reads the single endpoint URL with a bounded wait.
//
// Returns handoff.timeout if nothing arrives within wait, and
// handoff.closed if the pipe reaches EOF first (the worker died before
// reporting its endpoint).
func Receive(r *os.File, wait time.Duration) (string, error) {
	defer r.Close()

	// Pipes without deadline support fall back to a blocking read; the
	// worker-side contract (bind or exit) keeps this finite.
	_ = r.SetReadDeadline(time.Now().Add(wait))

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil {
		if os.IsTimeout(err) {
			return "", errors.HandoffTimeout(wait.String())
		}
		// The worker writes the URL and newline in one call, so a line
		// cut short means the worker died mid-report; the fragment is
		// not a usable endpoint.
		return "", errors.HandoffClosed(err)
	}

	url := strings.TrimSpace(line)
	if url == "" {
		return "", errors.HandoffClosed(nil)
	}
	return url, nil
}
