package tokenizer

import "strings"

// IsControl reports whether id is a control token.
func (t *Tokenizer) IsControl(id int) bool {
	_, ok := t.controlIDs[id]
	return ok
}

// ControlTokens returns the control token strings, longest first.
func (t *Tokenizer) ControlTokens() []string {
	out := make([]string, len(t.control))
	copy(out, t.control)
	return out
}

// StripControl removes every control token string from text. Longer
// markers are matched before their prefixes.
func (t *Tokenizer) StripControl(text string) string {
	if t.stripper == nil || len(t.control) == 0 {
		return text
	}
	// Removing one marker can splice the halves of another together.
	for {
		out := t.stripper.Replace(text)
		if out == text {
			return out
		}
		text = out
	}
}

// splitControl cuts text around literal control tokens so they encode to
// their own ids instead of being split by BPE.
func (t *Tokenizer) splitControl(text string) []segment {
	var segs []segment
	for len(text) > 0 {
		pos, match := -1, ""
		for _, tok := range t.control {
			if i := strings.Index(text, tok); i >= 0 && (pos < 0 || i < pos) {
				pos, match = i, tok
			}
		}
		if pos < 0 {
			segs = append(segs, segment{text: text})
			break
		}
		if pos > 0 {
			segs = append(segs, segment{text: text[:pos]})
		}
		segs = append(segs, segment{text: match, id: t.vocab[match], control: true})
		text = text[pos+len(match):]
	}
	return segs
}

type segment struct {
	text    string
	id      int
	control bool
}
