//go:build llama

package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// LlamaBackend wraps go-llama.cpp
type LlamaBackend struct {
	model *llama.LLama
	opts  LoadOptions

	// one llama context cannot run two predictions at once
	mu sync.Mutex
}

// Open loads a GGUF model with llama.cpp.
func Open(modelPath string, opts LoadOptions) (Backend, error) {
	modelOpts := []llama.ModelOption{
		llama.SetContext(opts.ContextSize),
		llama.SetNBatch(opts.BatchSize),
		llama.SetMMap(opts.UseMMap),
		llama.EnableF16Memory,
	}
	if opts.GPULayers > 0 {
		modelOpts = append(modelOpts, llama.SetGPULayers(opts.GPULayers))
	}

	model, err := llama.New(modelPath, modelOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	return &LlamaBackend{model: model, opts: opts}, nil
}

// Predict generates up to p.MaxNewTokens tokens. Generation stops early
// when ctx is done.
func (b *LlamaBackend) Predict(ctx context.Context, prompt string, p Params) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	var out strings.Builder
	opts := append(predictOptions(p, b.opts.Threads), llama.SetTokenCallback(func(token string) bool {
		out.WriteString(token)
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}))

	_, err := b.model.Predict(prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	return out.String(), nil
}

// predictOptions maps Params onto llama.cpp sampling options. Every knob is
// set explicitly so the binding's own defaults never leak in.
func predictOptions(p Params, threads int) []llama.PredictOption {
	temperature := p.Temperature
	if !p.Sample {
		temperature = 0
	}
	return []llama.PredictOption{
		llama.SetTokens(p.MaxNewTokens),
		llama.SetTemperature(temperature),
		llama.SetTopP(p.TopP),
		llama.SetTopK(p.TopK),
		llama.SetPenalty(p.Penalty),
		llama.SetSeed(p.Seed),
		llama.SetThreads(threads),
	}
}

// Close frees the model
func (b *LlamaBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model != nil {
		b.model.Free()
		b.model = nil
	}
	return nil
}
