package gguf

import "fmt"

// Architecture returns the model architecture (llama, qwen, mistral, etc.)
func (f *File) Architecture() string {
	if arch, ok := f.Metadata[KeyArchitecture].(string); ok {
		return arch
	}
	return "unknown"
}

// GetString looks up a string value, expanding %s with the architecture.
func (f *File) GetString(key string) (string, bool) {
	val, ok := f.lookup(key).(string)
	return val, ok
}

// GetInt looks up any integer-typed value, expanding %s with the architecture.
func (f *File) GetInt(key string) (int, bool) {
	if val := convertToInt(f.lookup(key)); val != nil {
		return *val, true
	}
	return 0, false
}

// GetBool looks up a boolean value.
func (f *File) GetBool(key string) (bool, bool) {
	val, ok := f.lookup(key).(bool)
	return val, ok
}

func (f *File) lookup(key string) interface{} {
	if v, ok := f.Metadata[key]; ok {
		return v
	}
	return f.Metadata[fmt.Sprintf(key, f.Architecture())]
}

// Tokens extracts the tokenizer vocabulary
func (f *File) Tokens() []string {
	return stringArray(f.Metadata[KeyTokenizerTokens])
}

// Merges extracts the BPE merges
func (f *File) Merges() []string {
	return stringArray(f.Metadata[KeyTokenizerMerges])
}

// TokenTypes extracts per-token types; nil when the file carries none.
func (f *File) TokenTypes() []TokenType {
	raw, ok := f.Metadata[KeyTokenizerTypes].([]interface{})
	if !ok {
		return nil
	}
	out := make([]TokenType, 0, len(raw))
	for _, v := range raw {
		n := convertToInt(v)
		if n == nil {
			out = append(out, TokenUndefined)
			continue
		}
		out = append(out, TokenType(*n))
	}
	return out
}

// ChatTemplate returns the chat template, if any.
func (f *File) ChatTemplate() string {
	s, _ := f.Metadata[KeyChatTemplate].(string)
	return s
}

// SpecialTokenID returns a BOS/EOS/PAD style id, or -1 when absent.
func (f *File) SpecialTokenID(key string) int {
	if id, ok := f.GetInt(key); ok {
		return id
	}
	return -1
}

func stringArray(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	result := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			result = append(result, s)
		}
	}
	return result
}

// convertToInt converts various integer types to int
func convertToInt(val interface{}) *int {
	var result int
	switch v := val.(type) {
	case int:
		result = v
	case int8:
		result = int(v)
	case int16:
		result = int(v)
	case int32:
		result = int(v)
	case int64:
		result = int(v)
	case uint8:
		result = int(v)
	case uint16:
		result = int(v)
	case uint32:
		result = int(v)
	case uint64:
		result = int(v)
	default:
		return nil
	}
	return &result
}
