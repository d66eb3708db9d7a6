// Package editor rewrites text operators of a decoded content stream in
// place. Every edit splices operand bytes only; everything else in the
// stream is left as it was.
package editor

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/wudi/bookingpdf/contentstream"
	"github.com/wudi/bookingpdf/fonts"
)

// WarningKind classifies a Warning.
type WarningKind string

const (
	// NotFound means the rule's target text or operator is absent and the
	// stream was left unchanged.
	NotFound WarningKind = "not-found"
	// NoAnchor means the text was replaced but its position operator was not
	// found, so it was not re-centred.
	NoAnchor WarningKind = "no-anchor"
	// Unencodable means some runes of the new text have no WinAnsi code and
	// were written as '?'.
	Unencodable WarningKind = "unencodable"
	// Syntax means the stream could not be tokenized.
	Syntax WarningKind = "syntax"
)

// Warning reports a rule that did not apply cleanly.
type Warning struct {
	Field   string
	Kind    WarningKind
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s: %s", w.Field, w.Kind, w.Message)
}

// Editor applies replacements to one content stream. Each call works on the
// result of the previous one.
type Editor struct {
	data     []byte
	warnings []Warning
}

func New(data []byte) *Editor {
	return &Editor{data: append([]byte(nil), data...)}
}

// Bytes returns the current stream.
func (e *Editor) Bytes() []byte { return e.data }

// Warnings returns the warnings collected so far.
func (e *Editor) Warnings() []Warning { return e.warnings }

func (e *Editor) warn(field string, kind WarningKind, format string, args ...any) {
	e.warnings = append(e.warnings, Warning{Field: field, Kind: kind, Message: fmt.Sprintf(format, args...)})
}

func (e *Editor) ops(field string) ([]contentstream.Op, bool) {
	ops, err := contentstream.Tokenize(e.data)
	if err != nil {
		e.warn(field, Syntax, "%v", err)
		return nil, false
	}
	return ops, true
}

// literal encodes s to WinAnsi and renders it as a string operand.
func (e *Editor) literal(field, s string) string {
	b, lost := fonts.EncodeWinAnsi(s)
	if len(lost) > 0 {
		e.warn(field, Unencodable, "%q has no WinAnsi code for %q", s, string(lost))
	}
	return contentstream.Literal(b)
}

type splice struct {
	start, end int
	text       string
}

// apply performs non-overlapping splices, back to front.
func (e *Editor) apply(edits ...splice) {
	sort.Slice(edits, func(i, j int) bool { return edits[i].start > edits[j].start })
	for _, s := range edits {
		var buf bytes.Buffer
		buf.Grow(len(e.data) - (s.end - s.start) + len(s.text))
		buf.Write(e.data[:s.start])
		buf.WriteString(s.text)
		buf.Write(e.data[s.end:])
		e.data = buf.Bytes()
	}
}

// findTj returns the index of the first Tj at or after offset from whose
// single string operand equals text.
func findTj(ops []contentstream.Op, text []byte, from int) int {
	for i, op := range ops {
		if op.Start < from || op.Name != "Tj" || len(op.Operands) != 1 || !op.Operands[0].IsString() {
			continue
		}
		if bytes.Equal(op.Operands[0].Value, text) {
			return i
		}
	}
	return -1
}

func encoded(s string) []byte {
	b, _ := fonts.EncodeWinAnsi(s)
	return b
}

// isTm reports whether op is a position operator at x (when x is non-empty)
// and y, compared as they are written in the stream.
func isTm(op contentstream.Op, x, y string) bool {
	if op.Name != "Tm" || len(op.Operands) != 6 {
		return false
	}
	if op.Operands[4].Kind != contentstream.KindNumber || op.Operands[5].Kind != contentstream.KindNumber {
		return false
	}
	return (x == "" || op.Operands[4].Text == x) && op.Operands[5].Text == y
}

func formatX(x float64) string { return strconv.FormatFloat(x, 'f', 4, 64) }

// ReplaceSimple replaces the first (old)Tj with (newText)Tj. With a context, the
// first match after the first occurrence of context in the stream wins; when
// the context or a match after it is missing, the first match anywhere is
// used and a NoAnchor warning is recorded.
func (e *Editor) ReplaceSimple(field, old, newText, context string) bool {
	ops, ok := e.ops(field)
	if !ok {
		return false
	}
	i := -1
	if context != "" {
		if at := bytes.Index(e.data, encoded(context)); at >= 0 {
			i = findTj(ops, encoded(old), at)
		}
	}
	if i < 0 {
		i = findTj(ops, encoded(old), 0)
		if i >= 0 && context != "" {
			e.warn(field, NoAnchor, "no (%s)Tj after %q, replaced the first one", old, context)
		}
	}
	if i < 0 {
		e.warn(field, NotFound, "(%s)Tj not found", old)
		return false
	}
	o := ops[i].Operands[0]
	e.apply(splice{o.Start, o.End, e.literal(field, newText)})
	return true
}

// ReplacePositioned moves the "… oldX y Tm" operator to newX and replaces
// the first (old)Tj after it. Without that Tm the text is replaced where it
// is.
func (e *Editor) ReplacePositioned(field, oldX, y, old, newText string, newX float64) bool {
	ops, ok := e.ops(field)
	if !ok {
		return false
	}
	tm := -1
	for i, op := range ops {
		if isTm(op, oldX, y) {
			tm = i
			break
		}
	}
	if tm < 0 {
		e.warn(field, NoAnchor, "%s %s Tm not found", oldX, y)
		return e.replaceFirst(field, ops, old, newText)
	}
	tj := findTj(ops, encoded(old), ops[tm].End)
	if tj < 0 {
		e.warn(field, NotFound, "(%s)Tj not found after %s %s Tm", old, oldX, y)
		return false
	}
	x := ops[tm].Operands[4]
	o := ops[tj].Operands[0]
	e.apply(
		splice{x.Start, x.End, formatX(newX)},
		splice{o.Start, o.End, e.literal(field, newText)},
	)
	return true
}

func (e *Editor) replaceFirst(field string, ops []contentstream.Op, old, newText string) bool {
	i := findTj(ops, encoded(old), 0)
	if i < 0 {
		e.warn(field, NotFound, "(%s)Tj not found", old)
		return false
	}
	o := ops[i].Operands[0]
	e.apply(splice{o.Start, o.End, e.literal(field, newText)})
	return true
}

// match runs re over the stream decoded from WinAnsi, so patterns are
// written in plain text, and returns the byte span of the first match.
func (e *Editor) match(re *regexp.Regexp) []int {
	text := fonts.DecodeWinAnsi(e.data)
	loc := re.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	// Every stream byte decodes to exactly one rune.
	start := utf8.RuneCountInString(text[:loc[0]])
	return []int{start, start + utf8.RuneCountInString(text[loc[0]:loc[1]])}
}

// ReplaceArrayed replaces the first match of re, normally a whole
// "[…]TJ" operator, with a single (newText)Tj. When center is set, the last
// "a 0 0 d x anchorY Tm" before the match is moved to newX; if that Tm
// cannot be located the text is still replaced.
func (e *Editor) ReplaceArrayed(field string, re *regexp.Regexp, newText, anchorY string, newX float64, center bool) bool {
	loc := e.match(re)
	if loc == nil {
		e.warn(field, NotFound, "no match for %s", re)
		return false
	}
	edits := []splice{{loc[0], loc[1], e.literal(field, newText) + "Tj"}}
	if center {
		ops, ok := e.ops(field)
		if !ok {
			e.apply(edits...)
			return true
		}
		tm := -1
		for i, op := range ops {
			if op.End > loc[0] {
				break
			}
			if isTm(op, "", anchorY) && op.Operands[1].Num == 0 && op.Operands[2].Num == 0 {
				tm = i
			}
		}
		if tm >= 0 {
			x := ops[tm].Operands[4]
			edits = append(edits, splice{x.Start, x.End, formatX(newX)})
		} else {
			e.warn(field, NoAnchor, "no Tm at y=%s before match", anchorY)
		}
	}
	e.apply(edits...)
	return true
}

// weekdayWindow bounds how far before the show operator its Td may start.
const weekdayWindow = 200

// ReplaceWeekday rewrites text drawn with a relative "dx dy Td" from an
// anchor Tm at y=anchorY: dx becomes (targetX-anchorX)/fontSize and the
// (old)Tj becomes (newText)Tj. Without the Td or anchor the text is replaced
// where it is.
func (e *Editor) ReplaceWeekday(field, old, newText, anchorY string, targetX, fontSize float64) bool {
	ops, ok := e.ops(field)
	if !ok {
		return false
	}
	tj := findTj(ops, encoded(old), 0)
	if tj < 0 {
		e.warn(field, NotFound, "(%s)Tj not found", old)
		return false
	}
	td := -1
	for i := tj - 1; i >= 0 && ops[i].Start >= ops[tj].Start-weekdayWindow; i-- {
		if ops[i].Name == "Td" && len(ops[i].Operands) == 2 && ops[i].Operands[0].Kind == contentstream.KindNumber {
			td = i
			break
		}
	}
	anchor := -1
	if td >= 0 {
		for i := td - 1; i >= 0; i-- {
			if isTm(ops[i], "", anchorY) {
				anchor = i
				break
			}
		}
	}
	o := ops[tj].Operands[0]
	if anchor < 0 || fontSize == 0 {
		e.warn(field, NoAnchor, "no Td with anchor Tm at y=%s before (%s)Tj", anchorY, old)
		e.apply(splice{o.Start, o.End, e.literal(field, newText)})
		return true
	}
	dx := (targetX - ops[anchor].Operands[4].Num) / fontSize
	d := ops[td].Operands[0]
	e.apply(
		splice{d.Start, d.End, strconv.FormatFloat(dx, 'f', 3, 64)},
		splice{o.Start, o.End, e.literal(field, newText)},
	)
	return true
}

var refundAmount = regexp.MustCompile(`^(\d[\d,.]*)\s+refund\.$`)

// ReplaceRefundAmount finds the "(<amount> refund.)Tj" operator and swaps
// the amount.
func (e *Editor) ReplaceRefundAmount(field, amount string) bool {
	ops, ok := e.ops(field)
	if !ok {
		return false
	}
	for _, op := range ops {
		if op.Name != "Tj" || len(op.Operands) != 1 || !op.Operands[0].IsString() {
			continue
		}
		if refundAmount.Match(op.Operands[0].Value) {
			o := op.Operands[0]
			e.apply(splice{o.Start, o.End, e.literal(field, amount+" refund.")})
			return true
		}
	}
	e.warn(field, NotFound, "(<amount> refund.)Tj not found")
	return false
}
