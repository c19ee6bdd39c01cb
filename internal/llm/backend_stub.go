//go:build !llama

package llm

// Open fails in builds without llama.cpp so that startup aborts clearly
// instead of serving placeholder text.
func Open(modelPath string, opts LoadOptions) (Backend, error) {
	return nil, ErrBackendUnavailable
}
