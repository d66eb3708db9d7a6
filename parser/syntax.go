package parser

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/wudi/bookingpdf/ir/raw"
	"github.com/wudi/bookingpdf/scanner"
)

const maxNesting = 256

var errNesting = errors.New("parser: objects nested too deeply")

type tokenReader struct {
	s   scanner.Scanner
	buf []scanner.Token
}

func newTokenReader(s scanner.Scanner) *tokenReader { return &tokenReader{s: s} }

func (r *tokenReader) next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *tokenReader) unread(tok scanner.Token) { r.buf = append(r.buf, tok) }

func parseObject(tr *tokenReader, depth int) (raw.Object, error) {
	if depth > maxNesting {
		return nil, errNesting
	}
	tok, err := tr.next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return raw.NumberObj{I: tok.Int, IsInt: true, Lit: tok.Str}, nil
		}
		return raw.NumberObj{F: tok.Float, Lit: tok.Str}, nil
	case scanner.TokenBoolean:
		return raw.BoolObj{V: tok.Bool}, nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	case scanner.TokenString:
		if tok.Hex {
			return raw.HexStringObj{Bytes: tok.Bytes}, nil
		}
		return raw.StringObj{Bytes: tok.Bytes}, nil
	case scanner.TokenArray:
		return parseArray(tr, depth)
	case scanner.TokenDict:
		return parseDict(tr, depth)
	case scanner.TokenRef:
		return raw.RefObj{R: raw.ObjectRef{Num: int(tok.Int), Gen: tok.Gen}}, nil
	}
	return nil, fmt.Errorf("parser: unexpected token %q at %d", tok.Str, tok.Pos)
}

func parseArray(tr *tokenReader, depth int) (raw.Object, error) {
	arr := &raw.ArrayObj{}
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			break
		}
		tr.unread(tok)
		item, err := parseObject(tr, depth+1)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
	return arr, nil
}

func parseDict(tr *tokenReader, depth int) (raw.Object, error) {
	d := raw.Dict()
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			break
		}
		if tok.Type != scanner.TokenName {
			// A missing ">>" before endobj or stream is tolerated.
			if tok.Type == scanner.TokenKeyword && tok.Str == "endobj" {
				tr.unread(tok)
				break
			}
			return nil, fmt.Errorf("parser: expected name in dict at %d", tok.Pos)
		}
		val, err := parseObject(tr, depth+1)
		if err != nil {
			return nil, err
		}
		d.Set(tok.Str, val)
	}
	return d, nil
}

// LengthFunc resolves an indirect /Length value.
type LengthFunc func(ref raw.ObjectRef) (int64, bool)

// syntax parses objects at byte offsets of a whole file held in memory.
type syntax struct {
	length LengthFunc
}

// ParseObjectAt parses the direct object starting at offset.
func (p *syntax) ParseObjectAt(data []byte, offset int64) (raw.Object, error) {
	s := scanner.New(data, scanner.Config{})
	if err := s.Seek(offset); err != nil {
		return nil, err
	}
	return parseObject(newTokenReader(s), 0)
}

// ParseIndirectAt parses "n g obj ... endobj" starting at offset.
func (p *syntax) ParseIndirectAt(data []byte, offset int64) (raw.ObjectRef, raw.Object, error) {
	s := scanner.New(data, scanner.Config{})
	if err := s.Seek(offset); err != nil {
		return raw.ObjectRef{}, nil, err
	}
	tr := newTokenReader(s)
	numTok, err := tr.next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	genTok, err := tr.next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	objTok, err := tr.next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	if numTok.Type != scanner.TokenNumber || genTok.Type != scanner.TokenNumber || objTok.Str != "obj" {
		return raw.ObjectRef{}, nil, fmt.Errorf("parser: no object header at %d", offset)
	}
	ref := raw.ObjectRef{Num: int(numTok.Int), Gen: int(genTok.Int)}

	obj, err := parseObject(tr, 0)
	if err != nil {
		return ref, nil, fmt.Errorf("object %s: %w", ref, err)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok || len(tr.buf) > 0 {
		return ref, obj, nil
	}
	pos := s.Position()
	for pos < int64(len(data)) && isSpace(data[pos]) {
		pos++
	}
	if !bytes.HasPrefix(data[pos:], []byte("stream")) {
		return ref, obj, nil
	}
	if n, ok := p.streamLength(dict); ok {
		s.SetNextStreamLength(n)
	}
	tok, err := s.Next()
	if err != nil {
		return ref, nil, fmt.Errorf("object %s: %w", ref, err)
	}
	if tok.Type != scanner.TokenStream {
		return ref, obj, nil
	}
	payload := append([]byte(nil), tok.Bytes...)
	return ref, raw.NewStream(dict, payload), nil
}

func (p *syntax) streamLength(dict *raw.DictObj) (int64, bool) {
	switch v := dict.KV["Length"].(type) {
	case raw.NumberObj:
		return v.Int(), true
	case raw.RefObj:
		if p.length != nil {
			return p.length(v.R)
		}
	}
	return 0, false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}
