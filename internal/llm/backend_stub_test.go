//go:build !llama

package llm

import (
	"errors"
	"testing"
)

func TestOpenWithoutLlama(t *testing.T) {
	b, err := Open("/models/vsm.gguf", DefaultLoadOptions())
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("Expected ErrBackendUnavailable, got %v", err)
	}
	if b != nil {
		t.Error("Expected nil backend")
	}
}
