package fonts

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// WinAnsiRune maps a single-byte WinAnsiEncoding code to Unicode. Codes the
// encoding leaves undefined map to themselves.
func WinAnsiRune(code byte) rune {
	r := charmap.Windows1252.DecodeByte(code)
	if r == utf8.RuneError {
		return rune(code)
	}
	return r
}

// WinAnsiCode returns the single-byte code for r.
func WinAnsiCode(r rune) (byte, bool) {
	if r < 0x80 {
		return byte(r), true
	}
	return charmap.Windows1252.EncodeRune(r)
}

// EncodeWinAnsi encodes s for a simple font. Runes outside the encoding
// become '?' and are reported in the second result.
func EncodeWinAnsi(s string) ([]byte, []rune) {
	out := make([]byte, 0, len(s))
	var lost []rune
	for _, r := range s {
		b, ok := WinAnsiCode(r)
		if !ok {
			out = append(out, '?')
			lost = append(lost, r)
			continue
		}
		out = append(out, b)
	}
	return out, lost
}

// DecodeWinAnsi is the inverse of EncodeWinAnsi.
func DecodeWinAnsi(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = WinAnsiRune(c)
	}
	return string(runes)
}
