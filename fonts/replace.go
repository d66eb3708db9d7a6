// Package fonts measures, subsets and embeds the TrueType fonts that
// replace a template's own font subsets.
package fonts

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/wudi/bookingpdf/filters"
	"github.com/wudi/bookingpdf/ir/raw"
)

// Default code range of a simple font dictionary without FirstChar/LastChar.
const (
	defaultFirstChar = 32
	defaultLastChar  = 126
)

// Font is a decoded replacement font owned by its caller.
type Font struct {
	Name    string
	Data    []byte
	Metrics *Metrics
}

// NewFont parses data once so the font can be reused across documents.
func NewFont(name string, data []byte) (*Font, error) {
	m, err := LoadMetrics(data)
	if err != nil {
		return nil, fmt.Errorf("font %s: %w", name, err)
	}
	return &Font{Name: name, Data: data, Metrics: m}, nil
}

// ReplaceResult describes what ReplaceFont did to one font dictionary.
type ReplaceResult struct {
	Font       string
	FirstChar  int
	LastChar   int
	Codepoints int
	SubsetSize int
	Embedded   bool
	FontFile   raw.ObjectRef
}

// ReplaceFont points a simple TrueType font dictionary at a subset of font.
// The code range only grows to cover needed, widths are recomputed from the
// replacement font while every non-zero original width is kept, and the
// descriptor gets a fresh FontFile2. Without a descriptor only the widths
// change and Embedded is false.
func ReplaceFont(ctx context.Context, doc *raw.Document, fontDict *raw.DictObj, font *Font, needed []rune) (ReplaceResult, error) {
	res := ReplaceResult{Font: font.Name}
	origFC := intOr(doc, fontDict, "FirstChar", defaultFirstChar)
	origLC := intOr(doc, fontDict, "LastChar", defaultLastChar)
	var origWidths []raw.Object
	if arr, ok := doc.ResolveArray(fontDict.KV["Widths"]); ok {
		origWidths = arr.Items
	}

	fc, lc := origFC, origLC
	for _, r := range needed {
		code, ok := WinAnsiCode(r)
		if !ok {
			continue
		}
		if int(code) < fc {
			fc = int(code)
		}
		if int(code) > lc {
			lc = int(code)
		}
	}

	computed := BuildWidths(font.Metrics, fc, lc)
	final := make([]raw.Object, len(computed))
	nonZero := make([]bool, len(computed))
	for i, w := range computed {
		final[i] = w.Object()
		nonZero[i] = w != 0
	}
	for i, obj := range origWidths {
		idx := (origFC - fc) + i
		if idx < 0 || idx >= len(final) {
			continue
		}
		n, ok := doc.Resolve(obj).(raw.NumberObj)
		if !ok || n.Float() == 0 {
			continue
		}
		final[idx] = n
		nonZero[idx] = true
	}

	set := make(map[rune]bool)
	for i, nz := range nonZero {
		if nz && fc+i >= 0 && fc+i <= 255 {
			set[WinAnsiRune(byte(fc+i))] = true
		}
	}
	for _, r := range needed {
		set[r] = true
	}
	codepoints := make([]rune, 0, len(set))
	for r := range set {
		codepoints = append(codepoints, r)
	}
	sort.Slice(codepoints, func(i, j int) bool { return codepoints[i] < codepoints[j] })

	fontDict.Set("FirstChar", raw.NumberInt(int64(fc)))
	fontDict.Set("LastChar", raw.NumberInt(int64(lc)))
	fontDict.Set("Widths", raw.NewArray(final...))
	res.FirstChar, res.LastChar, res.Codepoints = fc, lc, len(codepoints)

	descriptor, ok := doc.ResolveDict(fontDict.KV["FontDescriptor"])
	if !ok {
		return res, nil
	}
	subset, err := Subset(font.Data, codepoints)
	if err != nil {
		return res, fmt.Errorf("subset %s: %w", font.Name, err)
	}
	compressed, err := filters.NewFlateEncoder().Encode(ctx, subset)
	if err != nil {
		return res, err
	}
	streamDict := raw.Dict()
	streamDict.Set("Length1", raw.NumberInt(int64(len(subset))))
	streamDict.Set("Filter", raw.NameLiteral("FlateDecode"))

	for _, key := range []string{"FontFile", "FontFile2", "FontFile3"} {
		old, ok := descriptor.KV[key].(raw.RefObj)
		descriptor.Delete(key)
		if ok && countRefs(doc, old.R) == 0 {
			delete(doc.Objects, old.R)
		}
	}
	ref := doc.Add(raw.NewStream(streamDict, compressed))
	descriptor.Set("FontFile2", raw.RefObj{R: ref})

	res.Embedded = true
	res.SubsetSize = len(subset)
	res.FontFile = ref
	return res, nil
}

// ErrNoDescriptor marks a font dictionary whose program could not be embedded.
var ErrNoDescriptor = errors.New("fonts: font dictionary has no FontDescriptor")

func intOr(doc *raw.Document, d *raw.DictObj, key string, def int) int {
	if v, ok := doc.ResolveInt(d.KV[key]); ok {
		return int(v)
	}
	return def
}

// countRefs counts references to target from every object in doc.
func countRefs(doc *raw.Document, target raw.ObjectRef) int {
	n := 0
	var walk func(o raw.Object)
	walk = func(o raw.Object) {
		switch v := o.(type) {
		case raw.RefObj:
			if v.R == target {
				n++
			}
		case *raw.ArrayObj:
			for _, it := range v.Items {
				walk(it)
			}
		case *raw.DictObj:
			for _, it := range v.KV {
				walk(it)
			}
		case *raw.StreamObj:
			if v.Dict != nil {
				walk(v.Dict)
			}
		}
	}
	for _, obj := range doc.Objects {
		walk(obj)
	}
	walk(doc.Trailer)
	return n
}
