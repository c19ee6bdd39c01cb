package system

import (
	"runtime"

	"github.com/dustin/go-humanize"
)

// reserveBytes is kept back for the OS and the HTTP server when judging
// whether a model fits.
const reserveBytes = int64(2 * 1024 * 1024 * 1024)

// RAMInfo contains information about system memory
type RAMInfo struct {
	TotalBytes     int64
	AvailableBytes int64
	UsedBytes      int64
}

// GetRAMInfo returns information about system RAM
func GetRAMInfo() (*RAMInfo, error) {
	return getRAMInfo()
}

// FormatBytes formats bytes as a binary-unit string such as "1.5 GiB"
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

// EstimateUsableRAM returns RAM available for model loading
func EstimateUsableRAM() (int64, error) {
	info, err := GetRAMInfo()
	if err != nil {
		return 0, err
	}
	return usable(info.AvailableBytes), nil
}

// Fits reports whether a model of sizeBytes can be held in host memory
// alongside the reserve. It returns the usable figure it compared against.
func Fits(sizeBytes int64) (bool, int64, error) {
	u, err := EstimateUsableRAM()
	if err != nil {
		return false, 0, err
	}
	return sizeBytes <= u, u, nil
}

func usable(available int64) int64 {
	if available < reserveBytes {
		return 0
	}
	return available - reserveBytes
}

// Platform returns os/arch of the running binary.
func Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}
