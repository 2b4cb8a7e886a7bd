// Package portalloc finds a listening port for a conversation worker.
//
// The allocator scans a configured range in ascending order and keeps the
// winning listener open, so there is no close-and-rebind race between
// choosing a port and serving on it. When the range is exhausted the scan
// continues upward past the configured maximum; the caller sees Fallback set
// and switches the conversation to tunnel mode.
package portalloc

import (
	"fmt"
	"net"

	"github.com/voxbridge/host/internal/errors"
)

// maxScanPort is the absolute end of the fallback scan. Failing to bind
// anything up to here means the network stack is unusable, not contended.
const maxScanPort = 65535

// Allocation is a successfully bound listening port.
type Allocation struct {
	// Listener is the live TCP listener bound to Port.
	Listener net.Listener

	// Port is the bound port number.
	Port int

	// Fallback reports that every port in the configured range was taken
	// and the scan continued past the maximum. The caller should relay
	// the conversation through the front-end URL instead of handing the
	// port out directly.
	Fallback bool
}

// Close releases the listener.
func (a *Allocation) Close() error {
	return a.Listener.Close()
}

// Allocate binds the first free TCP port in [min, max], scanning upward.
//
// A bind failure on any single port is expected contention and simply
// advances the scan. If every port in the range is taken, the scan continues
// past max (Fallback=true). Only running out of port space entirely returns
// an error.
func Allocate(min, max int) (*Allocation, error) {
	if min <= 0 || max > maxScanPort || min > max {
		return nil, errors.PortInvalidRange(min, max)
	}

	for port := min; port <= maxScanPort; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			continue
		}
		return &Allocation{
			Listener: ln,
			Port:     port,
			Fallback: port > max,
		}, nil
	}

	return nil, errors.PortExhausted(min, maxScanPort)
}
