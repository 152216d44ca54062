//go:build linux

package resource

import (
	"math"
	"os"

	"golang.org/x/sys/unix"
)

// SysinfoProbe estimates free pages from sysinfo(2).
//
// The estimate is coarse: sysinfo reports total free RAM, not the
// buddy-allocator breakdown by order, so this probe only catches
// whole-system scarcity.
type SysinfoProbe struct{}

// FreeHighOrderPages implements Probe.
func (SysinfoProbe) FreeHighOrderPages() int64 {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		// Probe failure must not throttle allocation.
		return math.MaxInt64
	}
	free := uint64(si.Freeram) * uint64(si.Unit)
	return int64(free / uint64(os.Getpagesize()))
}
