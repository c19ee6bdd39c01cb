package llm

import (
	"context"
	"errors"
	"runtime"
)

// ErrBackendUnavailable is returned by Open in builds without llama.cpp.
var ErrBackendUnavailable = errors.New("llama.cpp backend not compiled in (rebuild with CGO_ENABLED=1 -tags llama)")

// Backend runs one sampled completion for a prompt.
type Backend interface {
	// Predict returns only the newly generated text.
	Predict(ctx context.Context, prompt string, p Params) (string, error)
	Close() error
}

// Params controls a generation pass.
type Params struct {
	MaxNewTokens int
	Sample       bool
	Temperature  float32
	TopP         float32
	TopK         int
	// Penalty 1.0 leaves repeated tokens unpenalized.
	Penalty      float32
	// Seed -1 picks a random seed per call.
	Seed         int
}

// DefaultParams are the fixed settings every request is served with.
func DefaultParams() Params {
	return Params{
		MaxNewTokens: 100,
		Sample:       true,
		Temperature:  0.7,
		TopP:         0.9,
		TopK:         50,
		Penalty:      1.0,
		Seed:         -1,
	}
}

// LoadOptions configures model loading
type LoadOptions struct {
	ContextSize int  // Max context tokens
	Threads     int  // CPU threads for inference
	BatchSize   int  // Batch size for prompt processing
	GPULayers   int  // Layers offloaded to the accelerator, 0 on CPU
	UseMMap     bool // Use memory-mapped files
}

// DefaultLoadOptions returns sensible defaults
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		ContextSize: 2048,
		Threads:     runtime.NumCPU(),
		BatchSize:   512,
		UseMMap:     true,
	}
}
