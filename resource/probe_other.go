//go:build !linux

package resource

import "math"

// SysinfoProbe is only meaningful on Linux; elsewhere it reports memory
// as never scarce.
type SysinfoProbe struct{}

// FreeHighOrderPages implements Probe.
func (SysinfoProbe) FreeHighOrderPages() int64 {
	return math.MaxInt64
}
