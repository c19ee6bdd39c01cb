package tokenizer

import (
	"fmt"
	"strconv"
	"strings"
)

// GPT-2 byte-level BPE maps every byte to a printable rune so that merges
// never see whitespace or control bytes. Space becomes Ġ, newline Ċ.
var (
	byteToRune [256]rune
	runeToByte = make(map[rune]byte, 256)
)

func init() {
	n := 0
	for b := 0; b < 256; b++ {
		printable := (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
		r := rune(b)
		if !printable {
			r = rune(256 + n)
			n++
		}
		byteToRune[b] = r
		runeToByte[r] = byte(b)
	}
}

func byteEncode(text string) string {
	var sb strings.Builder
	sb.Grow(len(text) * 2)
	for i := 0; i < len(text); i++ {
		sb.WriteRune(byteToRune[text[i]])
	}
	return sb.String()
}

// byteDecode reverses byteEncode. Runes outside the table pass through.
func byteDecode(token string) []byte {
	out := make([]byte, 0, len(token))
	for _, r := range token {
		if b, ok := runeToByte[r]; ok {
			out = append(out, b)
			continue
		}
		out = append(out, string(r)...)
	}
	return out
}

func byteToken(b byte) string {
	return fmt.Sprintf("<0x%02X>", b)
}

// parseByteToken recognizes SentencePiece byte-fallback tokens like <0x0A>.
func parseByteToken(token string) (byte, bool) {
	if len(token) != 6 || !strings.HasPrefix(token, "<0x") || token[5] != '>' {
		return 0, false
	}
	v, err := strconv.ParseUint(token[3:5], 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}
