// Package tokenizer rebuilds the model's vocabulary from GGUF metadata. The
// server uses it to count prompt tokens and to scrub control markers from
// generated text; inference itself tokenizes inside the backend.
package tokenizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xupit3r/vsmserve/internal/gguf"
)

// Tokenizer implements BPE (Byte-Pair Encoding) tokenization
type Tokenizer struct {
	// token string → token ID
	vocab map[string]int

	// token ID → token string
	tokens []string

	// per-token type, parallel to tokens
	types []gguf.TokenType

	// SentencePiece scores, used when the file carries no merges
	scores []float32

	// "left right" → rank, lower rank applied first
	merges map[string]int

	bosID int
	eosID int
	padID int
	unkID int

	// "gpt2", "llama", or anything else for plain byte-level BPE
	modelType string

	controlIDs map[int]struct{}
	// control token strings, longest first
	control  []string
	stripper *strings.Replacer
}

// NewTokenizer creates a new empty tokenizer
func NewTokenizer() *Tokenizer {
	return &Tokenizer{
		vocab:      make(map[string]int),
		merges:     make(map[string]int),
		controlIDs: make(map[int]struct{}),
		bosID:      -1,
		eosID:      -1,
		padID:      -1,
		unkID:      -1,
	}
}

// FromGGUF creates a tokenizer from GGUF metadata
func FromGGUF(gf *gguf.File) (*Tokenizer, error) {
	t := NewTokenizer()

	if modelType, ok := gf.GetString(gguf.KeyTokenizerModel); ok {
		t.modelType = modelType
	} else {
		t.modelType = "unknown"
	}

	tokens := gf.Tokens()
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no tokens found in GGUF metadata")
	}
	t.tokens = tokens
	t.vocab = make(map[string]int, len(tokens))
	for id, token := range tokens {
		t.vocab[token] = id
	}

	if types := gf.TokenTypes(); len(types) == len(tokens) {
		t.types = types
	}
	t.scores = scores(gf)

	mergeStrs := gf.Merges()
	t.merges = make(map[string]int, len(mergeStrs))
	for rank, merge := range mergeStrs {
		t.merges[merge] = rank
	}

	t.bosID = gf.SpecialTokenID(gguf.KeyTokenizerBOSID)
	t.eosID = gf.SpecialTokenID(gguf.KeyTokenizerEOSID)
	t.padID = gf.SpecialTokenID(gguf.KeyTokenizerPADID)

	if unk, ok := t.vocab["<unk>"]; ok {
		t.unkID = unk
	} else if unk, ok := t.vocab["<UNK>"]; ok {
		t.unkID = unk
	}

	t.buildControl()
	return t, nil
}

func scores(gf *gguf.File) []float32 {
	raw, ok := gf.Metadata["tokenizer.ggml.scores"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]float32, len(raw))
	for i, v := range raw {
		if f, ok := v.(float32); ok {
			out[i] = f
		}
	}
	return out
}

// buildControl collects every control token: those typed CONTROL plus
// the BOS/EOS/PAD ids. Must be called after the vocabulary changes.
func (t *Tokenizer) buildControl() {
	t.controlIDs = make(map[int]struct{})
	for id, typ := range t.types {
		if typ == gguf.TokenControl {
			t.controlIDs[id] = struct{}{}
		}
	}
	for _, id := range []int{t.bosID, t.eosID, t.padID} {
		if id >= 0 && id < len(t.tokens) {
			t.controlIDs[id] = struct{}{}
		}
	}

	t.control = t.control[:0]
	for id := range t.controlIDs {
		if s := t.tokens[id]; s != "" {
			t.control = append(t.control, s)
		}
	}
	sort.Slice(t.control, func(i, j int) bool {
		if len(t.control[i]) != len(t.control[j]) {
			return len(t.control[i]) > len(t.control[j])
		}
		return t.control[i] < t.control[j]
	})

	pairs := make([]string, 0, 2*len(t.control))
	for _, s := range t.control {
		pairs = append(pairs, s, "")
	}
	t.stripper = strings.NewReplacer(pairs...)
}

// VocabSize returns the vocabulary size
func (t *Tokenizer) VocabSize() int {
	return len(t.tokens)
}

func (t *Tokenizer) BOSID() int { return t.bosID }
func (t *Tokenizer) EOSID() int { return t.eosID }
func (t *Tokenizer) PADID() int { return t.padID }
func (t *Tokenizer) UNKID() int { return t.unkID }

// ModelType returns the tokenizer model type
func (t *Tokenizer) ModelType() string {
	return t.modelType
}

// TokenToID converts a token string to its ID
// Returns -1 if token not found
func (t *Tokenizer) TokenToID(token string) int {
	if id, ok := t.vocab[token]; ok {
		return id
	}
	return -1
}

// IDToToken converts a token ID to its string
// Returns empty string if ID is out of range
func (t *Tokenizer) IDToToken(id int) string {
	if id >= 0 && id < len(t.tokens) {
		return t.tokens[id]
	}
	return ""
}

// GetMergeRank returns the rank of a merge rule (lower = higher priority)
// Returns -1 if merge doesn't exist
func (t *Tokenizer) GetMergeRank(pair string) int {
	if rank, ok := t.merges[pair]; ok {
		return rank
	}
	return -1
}
