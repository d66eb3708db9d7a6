package fonts

import (
	"math"

	"github.com/wudi/bookingpdf/ir/raw"
)

// Width is a glyph width in thousandths of an em, held in millionths so that
// it serializes as an exact decimal.
type Width int64

const widthScale = 1000000

func (w Width) Float() float64 { return float64(w) / widthScale }

// Object renders w as a PDF number with at most six decimals.
func (w Width) Object() raw.NumberObj { return raw.NumberDecimal(int64(w), 6) }

// WidthFromFloat rounds f to six decimals.
func WidthFromFloat(f float64) Width { return Width(math.Round(f * widthScale)) }

// BuildWidths computes the widths of codes fc..lc inclusive, each code
// mapped through WinAnsiEncoding and scaled to 1000 units per em.
func BuildWidths(m *Metrics, fc, lc int) []Width {
	if lc < fc {
		return nil
	}
	out := make([]Width, 0, lc-fc+1)
	scale := 1000.0 / float64(m.UnitsPerEm())
	for code := fc; code <= lc; code++ {
		if code < 0 || code > 255 {
			out = append(out, 0)
			continue
		}
		adv := m.Advance(WinAnsiRune(byte(code)))
		out = append(out, WidthFromFloat(float64(adv)*scale))
	}
	return out
}
