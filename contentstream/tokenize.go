package contentstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/bookingpdf/scanner"
)

// OperandKind classifies an operand.
type OperandKind int

const (
	KindNumber OperandKind = iota
	KindName
	KindString
	KindHexString
	KindArray
	KindDict
	KindBool
	KindNull
)

func (k OperandKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindName:
		return "name"
	case KindString:
		return "string"
	case KindHexString:
		return "hexstring"
	case KindArray:
		return "array"
	case KindDict:
		return "dict"
	case KindBool:
		return "bool"
	case KindNull:
		return "null"
	}
	return "unknown"
}

// Operand is one operand of an operator. Start and End are byte offsets into
// the tokenized stream and Text is the source text between them.
type Operand struct {
	Kind  OperandKind
	Start int
	End   int
	Text  string
	Num   float64
	Value []byte    // decoded bytes of strings, name without '/'
	Items []Operand // array elements, dict keys and values in order
}

// IsString reports whether the operand is a literal or hex string.
func (o Operand) IsString() bool { return o.Kind == KindString || o.Kind == KindHexString }

// Op is one operator with its operands. Start is the offset of the first
// operand (or of the operator when there are none), OpStart the offset of the
// operator keyword and End the offset just past it.
type Op struct {
	Name     string
	Operands []Operand
	Start    int
	OpStart  int
	End      int
	Image    []byte // inline image payload of BI ... ID ... EI
}

// Number returns operand i as a number.
func (op Op) Number(i int) (float64, bool) {
	if i < 0 || i >= len(op.Operands) || op.Operands[i].Kind != KindNumber {
		return 0, false
	}
	return op.Operands[i].Num, true
}

// IsShow reports whether op paints text.
func (op Op) IsShow() bool {
	switch op.Name {
	case "Tj", "TJ", "'", "\"":
		return true
	}
	return false
}

// ShowText concatenates the string operands of a text showing operator.
func (op Op) ShowText() []byte {
	var buf bytes.Buffer
	for _, o := range op.Operands {
		switch {
		case o.IsString():
			buf.Write(o.Value)
		case o.Kind == KindArray && op.Name == "TJ":
			for _, it := range o.Items {
				if it.IsString() {
					buf.Write(it.Value)
				}
			}
		}
	}
	return buf.Bytes()
}

var ErrUnbalanced = errors.New("contentstream: unbalanced array or dictionary")

// Tokenize splits a decoded content stream into operators. Operands left
// over at the end of the stream are dropped.
func Tokenize(data []byte) ([]Op, error) {
	s := scanner.New(data, scanner.Config{Content: true})
	var (
		ops     []Op
		pending []Operand
		inImage bool
	)
	for {
		tok, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ops, fmt.Errorf("contentstream: offset %d: %w", s.Position(), err)
		}

		if tok.Type == scanner.TokenInlineImage {
			start := int(tok.Pos)
			if n := len(ops); inImage && n > 0 {
				start = ops[n-1].Start
				ops = ops[:n-1]
			}
			ops = append(ops, Op{Name: "BI", Operands: pending, Start: start, OpStart: start, End: int(tok.End), Image: tok.Bytes})
			pending = nil
			inImage = false
			continue
		}
		if tok.Type == scanner.TokenKeyword {
			if tok.Str == "]" || tok.Str == ">>" {
				return ops, fmt.Errorf("%w at offset %d", ErrUnbalanced, tok.Pos)
			}
			start := int(tok.Pos)
			if len(pending) > 0 {
				start = pending[0].Start
			}
			op := Op{Name: tok.Str, Operands: pending, Start: start, OpStart: int(tok.Pos), End: int(tok.End)}
			pending = nil
			if tok.Str == "BI" {
				// Image dictionary entries collect until ID.
				inImage = true
			}
			ops = append(ops, op)
			continue
		}
		o, err := operand(s, data, tok)
		if err != nil {
			return ops, err
		}
		pending = append(pending, o)
	}
	return ops, nil
}

// operand converts tok, reading nested arrays and dictionaries from s.
func operand(s scanner.Scanner, data []byte, tok scanner.Token) (Operand, error) {
	o := Operand{Start: int(tok.Pos), End: int(tok.End)}
	switch tok.Type {
	case scanner.TokenNumber:
		o.Kind = KindNumber
		if tok.IsInt {
			o.Num = float64(tok.Int)
		} else {
			o.Num = tok.Float
		}
	case scanner.TokenName:
		o.Kind = KindName
		o.Value = []byte(tok.Str)
	case scanner.TokenString:
		o.Kind = KindString
		if tok.Hex {
			o.Kind = KindHexString
		}
		o.Value = append([]byte(nil), tok.Bytes...)
	case scanner.TokenBoolean:
		o.Kind = KindBool
	case scanner.TokenNull:
		o.Kind = KindNull
	case scanner.TokenArray, scanner.TokenDict:
		closer := "]"
		o.Kind = KindArray
		if tok.Type == scanner.TokenDict {
			closer = ">>"
			o.Kind = KindDict
		}
		for {
			next, err := s.Next()
			if err == io.EOF {
				return o, fmt.Errorf("%w: %s opened at offset %d", ErrUnbalanced, o.Kind, tok.Pos)
			}
			if err != nil {
				return o, fmt.Errorf("contentstream: offset %d: %w", s.Position(), err)
			}
			if next.Type == scanner.TokenKeyword && next.Str == closer {
				o.End = int(next.End)
				break
			}
			if next.Type == scanner.TokenKeyword {
				return o, fmt.Errorf("contentstream: operator %q inside %s at offset %d", next.Str, o.Kind, next.Pos)
			}
			it, err := operand(s, data, next)
			if err != nil {
				return o, err
			}
			o.Items = append(o.Items, it)
		}
	default:
		return o, fmt.Errorf("contentstream: unexpected token at offset %d", tok.Pos)
	}
	o.Text = string(data[o.Start:o.End])
	return o, nil
}

// EscapeString escapes backslashes and parentheses for use inside a literal
// string.
func EscapeString(b []byte) []byte {
	out := make([]byte, 0, len(b)+4)
	for _, c := range b {
		switch c {
		case '\\', '(', ')':
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return out
}

// Literal renders b as a complete literal string operand.
func Literal(b []byte) string {
	return "(" + string(EscapeString(b)) + ")"
}
