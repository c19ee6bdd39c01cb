// Package device picks the compute device the model is bound to at startup.
package device

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Kind represents the type of compute device
type Kind int

const (
	KindCPU Kind = iota
	KindCUDA
	KindMetal
)

func (k Kind) String() string {
	switch k {
	case KindCPU:
		return "cpu"
	case KindCUDA:
		return "cuda"
	case KindMetal:
		return "metal"
	default:
		return "unknown"
	}
}

// ErrUnavailable is returned when an explicitly requested accelerator is absent.
var ErrUnavailable = errors.New("device not available")

// Device is the device selected for the process lifetime.
type Device struct {
	Kind Kind
	Name string
}

// Accelerated reports whether model layers can be offloaded.
func (d Device) Accelerated() bool {
	return d.Kind != KindCPU
}

// GPULayers returns how many layers to offload: the configured count on an
// accelerator, none on the CPU.
func (d Device) GPULayers(configured int) int {
	if !d.Accelerated() {
		return 0
	}
	return configured
}

func (d Device) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Kind)
}

// prober finds accelerators; swapped in tests.
type prober interface {
	cuda() (string, bool)
	metal() (string, bool)
}

var probe prober = hostProber{}

// Select resolves a preference (auto, cpu, gpu, cuda, metal) to a device.
func Select(pref string) (Device, error) {
	return selectWith(probe, pref)
}

func selectWith(p prober, pref string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(pref)) {
	case "", "auto":
		if dev, ok := accelerator(p); ok {
			return dev, nil
		}
		return CPU(), nil

	case "cpu":
		return CPU(), nil

	case "gpu":
		if dev, ok := accelerator(p); ok {
			return dev, nil
		}
		return Device{}, fmt.Errorf("gpu on %s: %w (use --device cpu to force CPU mode)", runtime.GOOS, ErrUnavailable)

	case "cuda":
		if name, ok := p.cuda(); ok {
			return Device{Kind: KindCUDA, Name: name}, nil
		}
		return Device{}, fmt.Errorf("cuda: %w (NVIDIA driver not detected)", ErrUnavailable)

	case "metal":
		if name, ok := p.metal(); ok {
			return Device{Kind: KindMetal, Name: name}, nil
		}
		return Device{}, fmt.Errorf("metal: %w (requires macOS)", ErrUnavailable)

	default:
		return Device{}, fmt.Errorf("unknown device: %s (valid options: auto, cpu, gpu, cuda, metal)", pref)
	}
}

func accelerator(p prober) (Device, bool) {
	if name, ok := p.metal(); ok {
		return Device{Kind: KindMetal, Name: name}, true
	}
	if name, ok := p.cuda(); ok {
		return Device{Kind: KindCUDA, Name: name}, true
	}
	return Device{}, false
}

// CPU returns the general-purpose fallback device.
func CPU() Device {
	return Device{
		Kind: KindCPU,
		Name: fmt.Sprintf("CPU (%s, %d threads)", runtime.GOARCH, runtime.NumCPU()),
	}
}
