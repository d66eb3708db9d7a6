package contentstream

import (
	"github.com/wudi/bookingpdf/coords"
)

// WidthFunc returns the glyph width of code in font, in thousandths of a text
// space unit.
type WidthFunc func(font string, code byte) float64

// TextRun is the placement of one text showing operator.
type TextRun struct {
	Op    int // index into the traced operators
	Font  string
	Size  float64
	X, Y  float64 // user space origin
	Width float64 // user space advance, zero without a WidthFunc
	Text  []byte
}

// Tracer replays text operators to find where each string is drawn.
type Tracer struct {
	widths WidthFunc
}

// NewTracer returns a tracer. widths may be nil, in which case runs carry
// their origin only and do not advance the text matrix.
func NewTracer(widths WidthFunc) *Tracer {
	return &Tracer{widths: widths}
}

// Trace returns one TextRun per text showing operator in ops.
func (t *Tracer) Trace(ops []Op) ([]TextRun, error) {
	var runs []TextRun
	gs := NewGraphicsState()
	ts := NewTextState()

	for i, op := range ops {
		switch op.Name {
		case "q":
			gs.Save()
		case "Q":
			if err := gs.Restore(); err != nil {
				return runs, err
			}
		case "cm":
			if m, ok := matrix(op); ok {
				gs.CTM = m.Multiply(gs.CTM)
			}
		case "BT":
			ts.beginText()
		case "Tf":
			if len(op.Operands) == 2 && op.Operands[0].Kind == KindName {
				ts.Font = string(op.Operands[0].Value)
			}
			if size, ok := op.Number(1); ok {
				ts.FontSize = size
			}
		case "TL":
			ts.Leading, _ = op.Number(0)
		case "Tc":
			ts.CharSpacing, _ = op.Number(0)
		case "Tw":
			ts.WordSpacing, _ = op.Number(0)
		case "Tz":
			if v, ok := op.Number(0); ok {
				ts.HScale = v
			}
		case "Tm":
			if m, ok := matrix(op); ok {
				ts.TextLineMatrix = m
				ts.TextMatrix = m
			}
		case "Td", "TD":
			tx, _ := op.Number(0)
			ty, _ := op.Number(1)
			if op.Name == "TD" {
				ts.Leading = -ty
			}
			ts.moveLine(tx, ty)
		case "T*":
			ts.moveLine(0, -ts.Leading)
		case "Tj", "TJ":
			runs = append(runs, t.show(i, op, ts, gs))
		case "'", "\"":
			if op.Name == "\"" {
				ts.WordSpacing, _ = op.Number(0)
				ts.CharSpacing, _ = op.Number(1)
			}
			ts.moveLine(0, -ts.Leading)
			runs = append(runs, t.show(i, op, ts, gs))
		}
	}
	return runs, nil
}

func (t *Tracer) show(i int, op Op, ts *TextState, gs *GraphicsState) TextRun {
	m := ts.TextMatrix.Multiply(gs.CTM)
	origin := m.Transform(coords.Point{})
	run := TextRun{Op: i, Font: ts.Font, Size: ts.FontSize, X: origin.X, Y: origin.Y, Text: op.ShowText()}
	if t.widths == nil {
		return run
	}

	scale := ts.HScale / 100
	var tx float64
	addString := func(b []byte) {
		for _, c := range b {
			w := t.widths(ts.Font, c)/1000*ts.FontSize + ts.CharSpacing
			if c == ' ' {
				w += ts.WordSpacing
			}
			tx += w * scale
		}
	}
	for _, o := range op.Operands {
		switch {
		case o.IsString():
			addString(o.Value)
		case o.Kind == KindArray:
			for _, it := range o.Items {
				if it.IsString() {
					addString(it.Value)
				} else if it.Kind == KindNumber {
					tx -= it.Num / 1000 * ts.FontSize * scale
				}
			}
		}
	}
	end := coords.Translate(tx, 0).Multiply(m).Transform(coords.Point{})
	run.Width = end.X - origin.X
	ts.advance(tx)
	return run
}

func matrix(op Op) (coords.Matrix, bool) {
	if len(op.Operands) != 6 {
		return coords.Matrix{}, false
	}
	var m coords.Matrix
	for i := range m {
		v, ok := op.Number(i)
		if !ok {
			return coords.Matrix{}, false
		}
		m[i] = v
	}
	return m, true
}
