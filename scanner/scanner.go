package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"
)

type TokenType int

const (
	TokenDict        TokenType = iota // '<<'
	TokenArray                        // '['
	TokenName                         // '/Name'
	TokenString                       // literal or hex string
	TokenNumber                       // numeric value
	TokenBoolean                      // true/false
	TokenNull                         // null
	TokenRef                          // indirect ref '5 0 R'
	TokenStream                       // 'stream' keyword
	TokenInlineImage                  // inline image data following ID ... EI (content stream only)
	TokenKeyword                      // other keywords (obj, endobj, endstream, >>, ], operators)
)

// Token is one lexical element. Pos and End delimit the bytes it was read from.
type Token struct {
	Type  TokenType
	Pos   int64
	End   int64
	Str   string // names (without '/'), keywords, number literal
	Bytes []byte // decoded string or stream payload
	Hex   bool
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Gen   int
}

type Scanner interface {
	Next() (Token, error)
	Position() int64
	Seek(offset int64) error
	SetNextStreamLength(n int64)
}

type Config struct {
	// Content switches to content-stream mode: "n g R" is never folded into a
	// reference, "stream" is an ordinary keyword and inline images are read.
	Content         bool
	MaxStringLength int64
}

var (
	ErrUnterminatedString = errors.New("scanner: unterminated string")
	ErrMissingEndstream   = errors.New("scanner: endstream not found")
)

// pdfScanner reads tokens from an in-memory PDF byte slice.
type pdfScanner struct {
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
}

func New(data []byte, cfg Config) Scanner {
	return &pdfScanner{data: data, cfg: cfg, nextStreamLen: -1}
}

func (s *pdfScanner) Position() int64 { return s.pos }
func (s *pdfScanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return errors.New("scanner: seek out of range")
	}
	s.pos = offset
	return nil
}
func (s *pdfScanner) SetNextStreamLength(n int64) { s.nextStreamLen = n }

func (s *pdfScanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peekAhead(1) == '<' {
			s.pos += 2
			return s.emit(Token{Type: TokenDict, Str: "<<", Pos: start})
		}
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			return s.emit(Token{Type: TokenKeyword, Str: ">>", Pos: start})
		}
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: ">", Pos: start})
	case '[':
		s.pos++
		return s.emit(Token{Type: TokenArray, Str: "[", Pos: start})
	case ']', '{', '}':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: string(c), Pos: start})
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	return s.scanKeyword()
}

func (s *pdfScanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

func (s *pdfScanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // '/'
	var buf bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			buf.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		buf.WriteByte(c)
		s.pos++
	}
	return s.emit(Token{Type: TokenName, Str: buf.String(), Pos: start})
}

// scanLiteralString follows PDF 7.3.4.2: balanced parentheses, backslash
// escapes, octal escapes and line continuations.
func (s *pdfScanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // '('
	var buf bytes.Buffer
	depth := 1
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if c == '\\' {
			s.pos++
			if s.pos >= int64(len(s.data)) {
				break
			}
			esc := s.data[s.pos]
			if esc == '\r' {
				s.pos++
				if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
				continue
			}
			if esc == '\n' {
				s.pos++
				continue
			}
			if esc >= '0' && esc <= '7' {
				val := int(esc - '0')
				s.pos++
				for k := 0; k < 2 && s.pos < int64(len(s.data)); k++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
				continue
			}
			buf.WriteByte(translateEscape(esc))
			s.pos++
			continue
		}
		if c == '(' {
			depth++
		} else if c == ')' {
			depth--
			if depth == 0 {
				s.pos++
				break
			}
		}
		buf.WriteByte(c)
		s.pos++
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, errors.New("scanner: literal string too long")
		}
	}
	if depth != 0 {
		return Token{}, ErrUnterminatedString
	}
	return s.emit(Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start})
}

func (s *pdfScanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // '<'
	var buf bytes.Buffer
	var hi byte
	half := false
	closed := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			closed = true
			break
		}
		if isWhitespace(c) || !isHex(c) {
			continue
		}
		if !half {
			hi = fromHex(c)
			half = true
			continue
		}
		buf.WriteByte(hi<<4 | fromHex(c))
		half = false
	}
	if !closed {
		return Token{}, ErrUnterminatedString
	}
	if half {
		buf.WriteByte(hi << 4)
	}
	return s.emit(Token{Type: TokenString, Bytes: buf.Bytes(), Hex: true, Pos: start})
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func (s *pdfScanner) scanStream(start int64) (Token, error) {
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
		s.pos++
	}
	dataStart := s.pos
	needle := []byte("endstream")
	defer func() { s.nextStreamLen = -1 }()

	if l := s.nextStreamLen; l >= 0 && dataStart+l <= int64(len(s.data)) {
		end := dataStart + l
		p := end
		for p < int64(len(s.data)) && isWhitespace(s.data[p]) {
			p++
		}
		if bytes.HasPrefix(s.data[p:], needle) {
			s.pos = p + int64(len(needle))
			return s.emit(Token{Type: TokenStream, Bytes: s.data[dataStart:end], Pos: start})
		}
	}

	// Declared length missing or wrong: search for endstream.
	idx := bytes.Index(s.data[dataStart:], needle)
	if idx < 0 {
		return Token{}, ErrMissingEndstream
	}
	end := dataStart + int64(idx)
	if end > dataStart && s.data[end-1] == '\n' {
		end--
	}
	if end > dataStart && s.data[end-1] == '\r' {
		end--
	}
	s.pos = dataStart + int64(idx) + int64(len(needle))
	return s.emit(Token{Type: TokenStream, Bytes: s.data[dataStart:end], Pos: start})
}

// scanInlineImage reads the binary payload after an ID operator up to the
// EI operator that is followed by whitespace or end of data.
func (s *pdfScanner) scanInlineImage(start int64) (Token, error) {
	if s.pos < int64(len(s.data)) && isWhitespace(s.data[s.pos]) {
		s.pos++
	}
	dataStart := s.pos
	for i := dataStart; i+1 < int64(len(s.data)); i++ {
		if s.data[i] != 'E' || s.data[i+1] != 'I' {
			continue
		}
		if i > dataStart && !isWhitespace(s.data[i-1]) {
			continue
		}
		if i+2 < int64(len(s.data)) && !isWhitespace(s.data[i+2]) && !isDelimiter(s.data[i+2]) {
			continue
		}
		end := i
		if end > dataStart && isWhitespace(s.data[end-1]) {
			end--
		}
		s.pos = i + 2
		return s.emit(Token{Type: TokenInlineImage, Str: "EI", Bytes: s.data[dataStart:end], Pos: start})
	}
	return Token{}, errors.New("scanner: EI not found after inline image data")
}

func isWhitespace(c byte) bool {
	return c == 0 || c == '\t' || c == '\n' || c == '\f' || c == '\r' || c == ' '
}
func isEOL(c byte) bool { return c == '\r' || c == '\n' }
func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	}
	return c
}

func (s *pdfScanner) peekAhead(n int64) byte {
	if s.pos+n < int64(len(s.data)) {
		return s.data[s.pos+n]
	}
	return 0
}

func (s *pdfScanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		s.pos++
	}
	if s.pos == start {
		// Stray delimiter such as ')'.
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	switch kw {
	case "true", "false":
		return s.emit(Token{Type: TokenBoolean, Bool: kw == "true", Str: kw, Pos: start})
	case "null":
		return s.emit(Token{Type: TokenNull, Str: kw, Pos: start})
	case "stream":
		if !s.cfg.Content {
			return s.scanStream(start)
		}
	case "ID":
		if s.cfg.Content {
			return s.scanInlineImage(start)
		}
	}
	return s.emit(Token{Type: TokenKeyword, Str: kw, Pos: start})
}

func (s *pdfScanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	num1 := s.scanNumberString()
	if num1 == "" {
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: string(s.data[start]), Pos: start})
	}
	tok := numberToken(num1, start)
	if s.cfg.Content || !tok.IsInt {
		return s.emit(tok)
	}

	// "n g R" is a reference; anything else rewinds to just after n.
	afterFirst := s.pos
	s.skipWSAndComments()
	num2 := s.scanNumberString()
	if num2 != "" {
		if gen, err := strconv.Atoi(num2); err == nil {
			s.skipWSAndComments()
			if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
				(s.pos+1 >= int64(len(s.data)) || isWhitespace(s.data[s.pos+1]) || isDelimiter(s.data[s.pos+1])) {
				s.pos++
				return s.emit(Token{Type: TokenRef, Int: tok.Int, IsInt: true, Gen: gen, Pos: start})
			}
		}
	}
	s.pos = afterFirst
	return s.emit(tok)
}

func numberToken(lit string, start int64) Token {
	if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return Token{Type: TokenNumber, Str: lit, Int: i, IsInt: true, Pos: start}
	}
	f, _ := strconv.ParseFloat(lit, 64)
	return Token{Type: TokenNumber, Str: lit, Float: f, Pos: start}
}

func (s *pdfScanner) scanNumberString() string {
	start := s.pos
	seenDigit := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if c == '+' || c == '-' {
			if s.pos != start {
				break
			}
		} else if c >= '0' && c <= '9' {
			seenDigit = true
		} else if c != '.' {
			break
		}
		s.pos++
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return string(s.data[start:s.pos])
}

func (s *pdfScanner) emit(tok Token) (Token, error) {
	tok.End = s.pos
	return tok, nil
}
