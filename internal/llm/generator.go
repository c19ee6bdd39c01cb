package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Tokenizer is the part of the tokenizer the generator needs.
type Tokenizer interface {
	CountTokens(text string) int
	StripControl(text string) string
}

// Admitter hands out slots on the device.
type Admitter interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Info describes what the generator serves.
type Info struct {
	Model  string `json:"model"`
	Device string `json:"device"`
}

// Generator is the process-wide handle built once at startup and shared
// read-only by every request.
type Generator struct {
	backend Backend
	tok     Tokenizer
	gate    Admitter
	params  Params
	info    Info
	log     logrus.FieldLogger
}

// NewGenerator wires a loaded backend to its tokenizer and admission gate.
func NewGenerator(backend Backend, tok Tokenizer, gate Admitter, info Info, log logrus.FieldLogger) *Generator {
	return &Generator{
		backend: backend,
		tok:     tok,
		gate:    gate,
		params:  DefaultParams(),
		info:    info,
		log:     log,
	}
}

// Info returns the served model and device.
func (g *Generator) Info() Info {
	return g.info
}

// Generate returns prompt followed by its sampled continuation, with every
// control token removed.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	release, err := g.gate.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	log := g.log.WithField("prompt_tokens", g.tok.CountTokens(prompt))
	log.Debug("Generating")

	start := time.Now()
	continuation, err := g.backend.Predict(ctx, prompt, g.params)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("predict: %w", err)
	}

	log.WithFields(logrus.Fields{
		"output_tokens": g.tok.CountTokens(continuation),
		"duration":      time.Since(start).Round(time.Millisecond),
	}).Debug("Generation finished")

	return g.tok.StripControl(prompt + continuation), nil
}

// Close releases the backend.
func (g *Generator) Close() error {
	return g.backend.Close()
}
