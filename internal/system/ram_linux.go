package system

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var meminfoPath = "/proc/meminfo"

func getRAMInfo() (*RAMInfo, error) {
	f, err := os.Open(meminfoPath)
	if err != nil {
		return nil, fmt.Errorf("reading memory info: %w", err)
	}
	defer f.Close()

	return parseMeminfo(f)
}

// meminfo holds /proc/meminfo values in bytes, keyed by field name.
type meminfo map[string]int64

func readMeminfo(r io.Reader) (meminfo, error) {
	m := meminfo{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		name, rest, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		n, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			continue
		}
		if len(fields) > 1 && fields[1] == "kB" {
			n *= 1024
		}
		m[name] = n
	}
	return m, sc.Err()
}

// available prefers the kernel's own estimate. Kernels before 3.14 lack
// MemAvailable, so free plus reclaimable page cache stands in.
func (m meminfo) available() int64 {
	if v, ok := m["MemAvailable"]; ok {
		return v
	}
	return m["MemFree"] + m["Buffers"] + m["Cached"]
}

func parseMeminfo(r io.Reader) (*RAMInfo, error) {
	m, err := readMeminfo(r)
	if err != nil {
		return nil, fmt.Errorf("parsing memory info: %w", err)
	}
	total := m["MemTotal"]
	if total == 0 {
		return nil, errors.New("memory info has no MemTotal")
	}
	avail := m.available()
	return &RAMInfo{
		TotalBytes:     total,
		AvailableBytes: avail,
		UsedBytes:      total - avail,
	}, nil
}
