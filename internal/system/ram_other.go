//go:build !linux && !darwin && !windows

package system

import (
	"fmt"
	"runtime"
)

func getRAMInfo() (*RAMInfo, error) {
	return nil, fmt.Errorf("RAM detection not supported on %s", runtime.GOOS)
}
