package device

import "runtime"

type hostProber struct{}

func (hostProber) cuda() (string, bool) {
	return "", false
}

// metal is available on every Apple Silicon Mac; Intel Macs are left on CPU.
func (hostProber) metal() (string, bool) {
	if runtime.GOARCH != "arm64" {
		return "", false
	}
	return "Apple Silicon GPU", true
}
