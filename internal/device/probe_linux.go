package device

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

type hostProber struct{}

// cuda looks for a loaded NVIDIA driver; the first GPU's model name is used.
func (hostProber) cuda() (string, bool) {
	return nvidiaGPU("/proc/driver/nvidia/gpus")
}

func (hostProber) metal() (string, bool) {
	return "", false
}

func nvidiaGPU(root string) (string, bool) {
	entries, err := os.ReadDir(root)
	if err != nil || len(entries) == 0 {
		return "", false
	}

	name := "NVIDIA GPU"
	f, err := os.Open(filepath.Join(root, entries[0].Name(), "information"))
	if err != nil {
		return name, true
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if ok && strings.TrimSpace(key) == "Model" {
			name = strings.TrimSpace(value)
			break
		}
	}
	return name, true
}
