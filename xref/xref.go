package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/wudi/bookingpdf/filters"
	"github.com/wudi/bookingpdf/ir/raw"
)

var (
	ErrNoStartXRef = errors.New("xref: startxref not found")
	ErrBadXRef     = errors.New("xref: malformed cross-reference section")
)

type EntryKind int

const (
	EntryFree EntryKind = iota
	EntryInUse
	EntryCompressed
)

// Entry locates one object: a byte offset for in-use objects, or the object
// stream number and index for compressed ones.
type Entry struct {
	Kind   EntryKind
	Offset int64
	Gen    int
	Stream int
	Index  int
}

// Table holds the merged cross-reference information of a file.
type Table interface {
	Lookup(objNum int) (Entry, bool)
	Objects() []int
	Trailer() *raw.DictObj
	Type() string
}

// ObjectParser parses PDF objects out of the file body. The parser package
// provides the implementation.
type ObjectParser interface {
	ParseObjectAt(data []byte, offset int64) (raw.Object, error)
	ParseIndirectAt(data []byte, offset int64) (raw.ObjectRef, raw.Object, error)
}

// Resolver locates and parses xref information in a PDF.
type Resolver interface {
	Resolve(ctx context.Context, data []byte) (Table, error)
}

type ResolverConfig struct {
	MaxXRefDepth int
	Parser       ObjectParser
	Filters      *filters.Pipeline
}

func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.MaxXRefDepth == 0 {
		cfg.MaxXRefDepth = 64
	}
	if cfg.Filters == nil {
		cfg.Filters = filters.DefaultPipeline()
	}
	return &resolver{cfg: cfg}
}

type resolver struct {
	cfg ResolverConfig
}

type table struct {
	entries map[int]Entry
	trailer *raw.DictObj
	kind    string
}

func (t *table) Lookup(objNum int) (Entry, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.Kind == EntryFree {
		return Entry{}, false
	}
	return e, true
}

func (t *table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k, e := range t.entries {
		if e.Kind != EntryFree {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

func (t *table) Trailer() *raw.DictObj { return t.trailer }
func (t *table) Type() string          { return t.kind }

// Resolve walks the xref chain from the last startxref. Newer sections win.
// When the chain is unusable the file body is scanned instead.
func (r *resolver) Resolve(ctx context.Context, data []byte) (Table, error) {
	t, err := r.resolveChain(ctx, data)
	if err == nil {
		return t, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	rt, rerr := r.repair(data)
	if rerr != nil {
		return nil, fmt.Errorf("%w (repair: %v)", err, rerr)
	}
	return rt, nil
}

func (r *resolver) resolveChain(ctx context.Context, data []byte) (*table, error) {
	offset, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	merged := &table{entries: make(map[int]Entry), kind: "table"}
	visited := make(map[int64]bool)
	for depth := 0; offset >= 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= r.cfg.MaxXRefDepth {
			return nil, fmt.Errorf("%w: chain deeper than %d", ErrBadXRef, r.cfg.MaxXRefDepth)
		}
		if visited[offset] {
			break
		}
		visited[offset] = true
		if offset >= int64(len(data)) {
			return nil, fmt.Errorf("%w: offset %d out of range", ErrBadXRef, offset)
		}

		entries, trailer, err := r.readSection(ctx, data, offset)
		if err != nil {
			return nil, err
		}
		if name, _ := trailer.Name("Type"); name == "XRef" {
			merged.kind = "stream"
		}
		// Hybrid files point at an xref stream holding the compressed objects.
		if stm, ok := trailer.KV["XRefStm"].(raw.NumberObj); ok && !visited[stm.Int()] {
			visited[stm.Int()] = true
			if extra, _, err := r.readSection(ctx, data, stm.Int()); err == nil {
				for num, e := range extra {
					if _, ok := entries[num]; !ok {
						entries[num] = e
					}
				}
			}
		}
		for num, e := range entries {
			if _, ok := merged.entries[num]; !ok {
				merged.entries[num] = e
			}
		}
		if merged.trailer == nil {
			merged.trailer = trailer
		} else {
			for _, k := range trailer.Keys() {
				if _, ok := merged.trailer.Get(k); !ok {
					merged.trailer.Set(k, trailer.KV[k])
				}
			}
		}
		prev, ok := trailer.KV["Prev"].(raw.NumberObj)
		if !ok {
			break
		}
		offset = prev.Int()
	}
	if merged.trailer == nil {
		return nil, ErrBadXRef
	}
	merged.trailer.Delete("Prev")
	merged.trailer.Delete("XRefStm")
	return merged, nil
}

var startXRefRe = regexp.MustCompile(`startxref\s+(\d+)`)

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, ErrNoStartXRef
	}
	m := startXRefRe.FindSubmatch(data[idx:])
	if m == nil {
		return 0, ErrNoStartXRef
	}
	return strconv.ParseInt(string(m[1]), 10, 64)
}

func (r *resolver) readSection(ctx context.Context, data []byte, offset int64) (map[int]Entry, *raw.DictObj, error) {
	p := skipSpace(data, offset)
	if bytes.HasPrefix(data[p:], []byte("xref")) {
		return r.readTable(data, p+4)
	}
	return r.readStream(ctx, data, offset)
}

func skipSpace(data []byte, p int64) int64 {
	for p < int64(len(data)) && isSpace(data[p]) {
		p++
	}
	return p
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

// readTable parses a classic section starting right after the xref keyword.
func (r *resolver) readTable(data []byte, p int64) (map[int]Entry, *raw.DictObj, error) {
	entries := make(map[int]Entry)
	for {
		p = skipSpace(data, p)
		if p >= int64(len(data)) {
			return nil, nil, fmt.Errorf("%w: missing trailer", ErrBadXRef)
		}
		if bytes.HasPrefix(data[p:], []byte("trailer")) {
			p += int64(len("trailer"))
			break
		}
		start, np, ok := readInt(data, p)
		if !ok {
			return nil, nil, fmt.Errorf("%w: bad subsection header at %d", ErrBadXRef, p)
		}
		count, np, ok := readInt(data, skipSpace(data, np))
		if !ok {
			return nil, nil, fmt.Errorf("%w: bad subsection count at %d", ErrBadXRef, np)
		}
		p = np
		for i := 0; i < int(count); i++ {
			p = skipSpace(data, p)
			off, np, ok := readInt(data, p)
			if !ok {
				return nil, nil, fmt.Errorf("%w: bad entry offset at %d", ErrBadXRef, p)
			}
			gen, np, ok := readInt(data, skipSpace(data, np))
			if !ok {
				return nil, nil, fmt.Errorf("%w: bad entry generation at %d", ErrBadXRef, np)
			}
			np = skipSpace(data, np)
			if np >= int64(len(data)) {
				return nil, nil, fmt.Errorf("%w: truncated entry", ErrBadXRef)
			}
			kind := EntryFree
			if data[np] == 'n' {
				kind = EntryInUse
			}
			entries[int(start)+i] = Entry{Kind: kind, Offset: off, Gen: int(gen)}
			p = np + 1
		}
	}
	if r.cfg.Parser == nil {
		return nil, nil, errors.New("xref: no object parser configured")
	}
	obj, err := r.cfg.Parser.ParseObjectAt(data, p)
	if err != nil {
		return nil, nil, fmt.Errorf("xref: trailer: %w", err)
	}
	trailer, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, nil, fmt.Errorf("%w: trailer is not a dictionary", ErrBadXRef)
	}
	return entries, trailer, nil
}

func readInt(data []byte, p int64) (int64, int64, bool) {
	start := p
	for p < int64(len(data)) && data[p] >= '0' && data[p] <= '9' {
		p++
	}
	if p == start {
		return 0, p, false
	}
	v, err := strconv.ParseInt(string(data[start:p]), 10, 64)
	return v, p, err == nil
}

// readStream decodes a cross-reference stream (PDF 1.5+).
func (r *resolver) readStream(ctx context.Context, data []byte, offset int64) (map[int]Entry, *raw.DictObj, error) {
	if r.cfg.Parser == nil {
		return nil, nil, errors.New("xref: no object parser configured")
	}
	_, obj, err := r.cfg.Parser.ParseIndirectAt(data, offset)
	if err != nil {
		return nil, nil, fmt.Errorf("xref stream at %d: %w", offset, err)
	}
	stream, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, nil, fmt.Errorf("%w: no xref keyword or stream at %d", ErrBadXRef, offset)
	}
	if name, _ := stream.Dict.Name("Type"); name != "XRef" {
		return nil, nil, fmt.Errorf("%w: object at %d is not an xref stream", ErrBadXRef, offset)
	}
	payload, err := r.cfg.Filters.DecodeStream(ctx, stream)
	if err != nil {
		return nil, nil, fmt.Errorf("xref stream: %w", err)
	}
	entries, err := decodeStreamEntries(stream.Dict, payload)
	if err != nil {
		return nil, nil, err
	}
	trailer := raw.Dict()
	for _, k := range stream.Dict.Keys() {
		switch k {
		case "Filter", "DecodeParms", "Length", "W", "Index":
			continue
		}
		trailer.Set(k, stream.Dict.KV[k])
	}
	return entries, trailer, nil
}

func decodeStreamEntries(dict *raw.DictObj, payload []byte) (map[int]Entry, error) {
	wArr, ok := dict.KV["W"].(*raw.ArrayObj)
	if !ok || wArr.Len() != 3 {
		return nil, fmt.Errorf("%w: xref stream without /W", ErrBadXRef)
	}
	var w [3]int
	for i := range w {
		n, ok := wArr.Items[i].(raw.NumberObj)
		if !ok || n.Int() < 0 || n.Int() > 8 {
			return nil, fmt.Errorf("%w: invalid /W", ErrBadXRef)
		}
		w[i] = int(n.Int())
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return nil, fmt.Errorf("%w: empty /W", ErrBadXRef)
	}

	var index []int64
	if idx, ok := dict.KV["Index"].(*raw.ArrayObj); ok {
		for _, it := range idx.Items {
			if n, ok := it.(raw.NumberObj); ok {
				index = append(index, n.Int())
			}
		}
	} else {
		size, _ := dict.KV["Size"].(raw.NumberObj)
		index = []int64{0, size.Int()}
	}

	entries := make(map[int]Entry)
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		for n := int64(0); n < index[i+1]; n++ {
			if pos+rowLen > len(payload) {
				return entries, nil
			}
			row := payload[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1)
			if w[0] > 0 {
				typ = field(row[:w[0]])
			}
			f2 := field(row[w[0] : w[0]+w[1]])
			f3 := field(row[w[0]+w[1]:])
			num := int(index[i] + n)
			switch typ {
			case 0:
				entries[num] = Entry{Kind: EntryFree}
			case 1:
				entries[num] = Entry{Kind: EntryInUse, Offset: f2, Gen: int(f3)}
			case 2:
				entries[num] = Entry{Kind: EntryCompressed, Stream: int(f2), Index: int(f3)}
			}
		}
	}
	return entries, nil
}

func field(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

var objHeaderRe = regexp.MustCompile(`(?m)(?:^|[\s>])(\d+)\s+(\d+)\s+obj\b`)

// repair rebuilds the table by scanning for "n g obj" headers. The last
// definition of an object number wins, matching incremental-update order.
func (r *resolver) repair(data []byte) (*table, error) {
	entries := make(map[int]Entry)
	for _, m := range objHeaderRe.FindAllSubmatchIndex(data, -1) {
		num, err1 := strconv.Atoi(string(data[m[2]:m[3]]))
		gen, err2 := strconv.Atoi(string(data[m[4]:m[5]]))
		if err1 != nil || err2 != nil {
			continue
		}
		entries[num] = Entry{Kind: EntryInUse, Offset: int64(m[2]), Gen: gen}
	}
	if len(entries) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}

	trailer := raw.Dict()
	if idx := bytes.LastIndex(data, []byte("trailer")); idx >= 0 && r.cfg.Parser != nil {
		if obj, err := r.cfg.Parser.ParseObjectAt(data, int64(idx+len("trailer"))); err == nil {
			if d, ok := obj.(*raw.DictObj); ok {
				trailer = d
			}
		}
	}
	trailer.Delete("Prev")
	trailer.Delete("XRefStm")
	if _, ok := trailer.Get("Size"); !ok {
		hi := 0
		for num := range entries {
			if num > hi {
				hi = num
			}
		}
		trailer.Set("Size", raw.NumberInt(int64(hi+1)))
	}
	return &table{entries: entries, trailer: trailer, kind: "repair"}, nil
}
