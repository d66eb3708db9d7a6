package fonts

import (
	"errors"
	"fmt"

	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// Metrics answers advance-width questions for one font. It never changes
// after construction and is safe for concurrent use.
type Metrics struct {
	font  *sfnt.Font
	table map[rune]int
	upem  int
}

// LoadMetrics parses a TrueType or OpenType font program.
func LoadMetrics(data []byte) (*Metrics, error) {
	if len(data) == 0 {
		return nil, errors.New("fonts: font data is empty")
	}
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse truetype: %w", err)
	}
	upem := int(f.UnitsPerEm())
	if upem == 0 {
		return nil, errors.New("fonts: invalid unitsPerEm")
	}
	return &Metrics{font: f, upem: upem}, nil
}

// NewMetrics builds metrics from an explicit advance table in font units.
func NewMetrics(advances map[rune]int, unitsPerEm int) *Metrics {
	table := make(map[rune]int, len(advances))
	for r, adv := range advances {
		table[r] = adv
	}
	if unitsPerEm <= 0 {
		unitsPerEm = 1000
	}
	return &Metrics{table: table, upem: unitsPerEm}
}

func (m *Metrics) UnitsPerEm() int { return m.upem }

// Advance returns the advance width of r in font units. Characters the
// font does not map have zero width.
func (m *Metrics) Advance(r rune) int {
	if m.font == nil {
		return m.table[r]
	}
	var buf sfnt.Buffer
	gid, err := m.font.GlyphIndex(&buf, r)
	if err != nil || gid == 0 {
		return 0
	}
	adv, err := m.font.GlyphAdvance(&buf, gid, fixed.Int26_6(m.upem<<6), xfont.HintingNone)
	if err != nil {
		return 0
	}
	return (int(adv) + 32) >> 6
}

// HasGlyph reports whether r maps to a real glyph.
func (m *Metrics) HasGlyph(r rune) bool {
	if m.font == nil {
		_, ok := m.table[r]
		return ok
	}
	var buf sfnt.Buffer
	gid, err := m.font.GlyphIndex(&buf, r)
	return err == nil && gid != 0
}

// TextWidth is the width of s in points at the given size.
func (m *Metrics) TextWidth(s string, size float64) float64 {
	total := 0
	for _, r := range s {
		total += m.Advance(r)
	}
	return float64(total) / float64(m.upem) * size
}

// CenteredX is the x origin that centers s on center.
func (m *Metrics) CenteredX(s string, size, center float64) float64 {
	return center - m.TextWidth(s, size)/2
}

// Missing lists the runes of s without a glyph, in order of appearance.
func (m *Metrics) Missing(s string) []rune {
	var out []rune
	seen := make(map[rune]bool)
	for _, r := range s {
		if !seen[r] && !m.HasGlyph(r) {
			out = append(out, r)
		}
		seen[r] = true
	}
	return out
}
