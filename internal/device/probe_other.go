//go:build !linux && !darwin

package device

type hostProber struct{}

func (hostProber) cuda() (string, bool)  { return "", false }
func (hostProber) metal() (string, bool) { return "", false }
