package tokenizer

import (
	"strings"
)

// spmSpace is the SentencePiece word-boundary marker.
const spmSpace = "▁"

// Encode converts text to token IDs using BPE algorithm
// If addBOS is true, prepends BOS token
// If addEOS is true, appends EOS token
// Control tokens written literally in text encode to their own ids.
func (t *Tokenizer) Encode(text string, addBOS, addEOS bool) []int {
	ids := make([]int, 0, len(text)/3+2)

	if addBOS && t.bosID >= 0 {
		ids = append(ids, t.bosID)
	}

	first := true
	for _, seg := range t.splitControl(text) {
		if seg.control {
			ids = append(ids, seg.id)
		} else {
			ids = append(ids, t.encodeBPE(seg.text, first)...)
		}
		first = false
	}

	if addEOS && t.eosID >= 0 {
		ids = append(ids, t.eosID)
	}
	return ids
}

// encodeBPE encodes plain text with no control tokens in it.
func (t *Tokenizer) encodeBPE(text string, leading bool) []int {
	if text == "" {
		return nil
	}

	var symbols []string
	switch t.modelType {
	case "gpt2":
		for _, r := range byteEncode(text) {
			symbols = append(symbols, string(r))
		}
	case "llama":
		text = strings.ReplaceAll(text, " ", spmSpace)
		if leading {
			text = spmSpace + text
		}
		for _, r := range text {
			symbols = append(symbols, string(r))
		}
	default:
		for _, b := range []byte(text) {
			symbols = append(symbols, string([]byte{b}))
		}
	}

	if len(t.merges) > 0 {
		symbols = t.mergeByRank(symbols)
	} else if len(t.scores) == len(t.tokens) {
		symbols = t.mergeByScore(symbols)
	}

	ids := make([]int, 0, len(symbols))
	for _, sym := range symbols {
		if id, ok := t.vocab[sym]; ok {
			ids = append(ids, id)
			continue
		}
		ids = append(ids, t.fallback(sym)...)
	}
	return ids
}

// mergeByRank applies merge rules, lowest rank first, until none apply.
func (t *Tokenizer) mergeByRank(symbols []string) []string {
	for {
		bestRank, bestPos := -1, -1
		for i := 0; i < len(symbols)-1; i++ {
			if rank, ok := t.merges[symbols[i]+" "+symbols[i+1]]; ok {
				if bestRank == -1 || rank < bestRank {
					bestRank, bestPos = rank, i
				}
			}
		}
		if bestPos < 0 {
			return symbols
		}
		symbols = mergeAt(symbols, bestPos)
	}
}

// mergeByScore is SentencePiece BPE: merge the adjacent pair whose result
// has the highest score in the vocabulary.
func (t *Tokenizer) mergeByScore(symbols []string) []string {
	for {
		bestPos := -1
		var bestScore float32
		for i := 0; i < len(symbols)-1; i++ {
			id, ok := t.vocab[symbols[i]+symbols[i+1]]
			if !ok {
				continue
			}
			if bestPos < 0 || t.scores[id] > bestScore {
				bestPos, bestScore = i, t.scores[id]
			}
		}
		if bestPos < 0 {
			return symbols
		}
		symbols = mergeAt(symbols, bestPos)
	}
}

func mergeAt(symbols []string, pos int) []string {
	out := make([]string, 0, len(symbols)-1)
	out = append(out, symbols[:pos]...)
	out = append(out, symbols[pos]+symbols[pos+1])
	return append(out, symbols[pos+2:]...)
}

// fallback maps an out-of-vocabulary symbol to byte tokens when the
// vocabulary has them, else to UNK.
func (t *Tokenizer) fallback(sym string) []int {
	var ids []int
	for _, b := range []byte(sym) {
		if id, ok := t.vocab[byteToken(b)]; ok {
			ids = append(ids, id)
			continue
		}
		if t.unkID >= 0 {
			return []int{t.unkID}
		}
		return nil
	}
	return ids
}

// Decode converts token IDs back to text
// If skipSpecial is true, control tokens (including BOS/EOS/PAD) are dropped.
func (t *Tokenizer) Decode(ids []int, skipSpecial bool) string {
	if len(ids) == 0 {
		return ""
	}

	var pieces strings.Builder
	var raw []byte
	for _, id := range ids {
		if skipSpecial && t.IsControl(id) {
			continue
		}
		token := t.IDToToken(id)
		if token == "" {
			continue
		}

		switch t.modelType {
		case "gpt2":
			if t.IsControl(id) {
				raw = append(raw, token...)
			} else {
				raw = append(raw, byteDecode(token)...)
			}
		case "llama":
			if b, ok := parseByteToken(token); ok {
				raw = append(raw, b)
			} else {
				raw = append(raw, strings.ReplaceAll(token, spmSpace, " ")...)
			}
		default:
			pieces.WriteString(token)
		}
	}

	if raw == nil {
		return pieces.String()
	}
	out := string(raw)
	if t.modelType == "llama" {
		out = strings.TrimPrefix(out, " ")
	}
	return out
}

// CountTokens returns the number of tokens in text (without BOS/EOS)
func (t *Tokenizer) CountTokens(text string) int {
	return len(t.Encode(text, false, false))
}
