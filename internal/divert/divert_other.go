//go:build !linux

package divert

import (
	"fmt"
	"runtime"
	"strconv"

	"firestige.xyz/nfreject/internal/config"
	"firestige.xyz/nfreject/internal/core"
	"firestige.xyz/nfreject/internal/filter"
)

// Open compiles expr and fails: netfilter queues only exist on Linux.
func Open(expr string, cfg config.QueueConfig, opts ...Option) (*Handle, error) {
	o := buildOptions(opts)
	if _, err := filter.Compile(expr, o.snapLen); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: unsupported platform %s", core.ErrDeviceOpenFailed, runtime.GOOS)
}

func lookupLinkName(ifIdx uint32) string {
	if ifIdx == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(ifIdx), 10)
}
