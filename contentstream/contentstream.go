// Package contentstream tokenizes page content streams into operators with
// byte spans and tracks the text state needed to place their text.
package contentstream

import (
	"errors"

	"github.com/wudi/bookingpdf/coords"
)

// GraphicsState is the part of the graphics state that affects text placement.
type GraphicsState struct {
	CTM   coords.Matrix
	stack []coords.Matrix
}

func NewGraphicsState() *GraphicsState { return &GraphicsState{CTM: coords.Identity()} }

func (gs *GraphicsState) Save() { gs.stack = append(gs.stack, gs.CTM) }

func (gs *GraphicsState) Restore() error {
	n := len(gs.stack)
	if n == 0 {
		return errors.New("state stack empty")
	}
	gs.CTM = gs.stack[n-1]
	gs.stack = gs.stack[:n-1]
	return nil
}

// TextState holds the text object parameters set by Tf, TL, Tc, Tw and Tz.
type TextState struct {
	Font           string
	FontSize       float64
	Leading        float64
	CharSpacing    float64
	WordSpacing    float64
	HScale         float64
	TextMatrix     coords.Matrix
	TextLineMatrix coords.Matrix
}

func NewTextState() *TextState {
	return &TextState{
		HScale:         100,
		TextMatrix:     coords.Identity(),
		TextLineMatrix: coords.Identity(),
	}
}

func (ts *TextState) beginText() {
	ts.TextMatrix = coords.Identity()
	ts.TextLineMatrix = coords.Identity()
}

// moveLine applies a Td displacement to the line matrix.
func (ts *TextState) moveLine(tx, ty float64) {
	ts.TextLineMatrix = coords.Translate(tx, ty).Multiply(ts.TextLineMatrix)
	ts.TextMatrix = ts.TextLineMatrix
}

func (ts *TextState) advance(tx float64) {
	ts.TextMatrix = coords.Translate(tx, 0).Multiply(ts.TextMatrix)
}
