package gguf

import "fmt"

// ValueType represents metadata value types in GGUF files
type ValueType uint32

const (
	TypeUint8   ValueType = 0
	TypeInt8    ValueType = 1
	TypeUint16  ValueType = 2
	TypeInt16   ValueType = 3
	TypeUint32  ValueType = 4
	TypeInt32   ValueType = 5
	TypeFloat32 ValueType = 6
	TypeBool    ValueType = 7
	TypeString  ValueType = 8
	TypeArray   ValueType = 9
	TypeUint64  ValueType = 10
	TypeInt64   ValueType = 11
	TypeFloat64 ValueType = 12
)

func (v ValueType) String() string {
	names := [...]string{"uint8", "int8", "uint16", "int16", "uint32", "int32",
		"float32", "bool", "string", "array", "uint64", "int64", "float64"}
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("unknown(%d)", uint32(v))
}

// Metadata keys read by the server. Keys containing %s are expanded with
// the architecture name.
const (
	KeyArchitecture    = "general.architecture"
	KeyName            = "general.name"
	KeyFileType        = "general.file_type"
	KeyContextLength   = "%s.context_length"
	KeyBlockCount      = "%s.block_count"
	KeyTokenizerModel  = "tokenizer.ggml.model"
	KeyTokenizerTokens = "tokenizer.ggml.tokens"
	KeyTokenizerTypes  = "tokenizer.ggml.token_type"
	KeyTokenizerMerges = "tokenizer.ggml.merges"
	KeyTokenizerBOSID  = "tokenizer.ggml.bos_token_id"
	KeyTokenizerEOSID  = "tokenizer.ggml.eos_token_id"
	KeyTokenizerPADID  = "tokenizer.ggml.padding_token_id"
	KeyTokenizerAddBOS = "tokenizer.ggml.add_bos_token"
	KeyChatTemplate    = "tokenizer.chat_template"
)

// TokenType classifies vocabulary entries (llama.cpp convention).
type TokenType int32

const (
	TokenUndefined   TokenType = 0
	TokenNormal      TokenType = 1
	TokenUnknown     TokenType = 2
	TokenControl     TokenType = 3
	TokenUserDefined TokenType = 4
	TokenUnused      TokenType = 5
	TokenByte        TokenType = 6
)

// File is the parsed header and metadata section of a GGUF model.
// Tensor descriptors and data are never read.
type File struct {
	Path        string
	Version     uint32
	TensorCount uint64
	Metadata    map[string]interface{}
}

// MetadataCount returns the number of metadata key-value pairs
func (f *File) MetadataCount() int {
	return len(f.Metadata)
}
