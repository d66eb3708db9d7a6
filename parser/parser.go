package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/wudi/bookingpdf/filters"
	"github.com/wudi/bookingpdf/ir/raw"
	"github.com/wudi/bookingpdf/observability"
	"github.com/wudi/bookingpdf/xref"
)

var (
	ErrEncrypted = errors.New("parser: encrypted documents are not supported")
	ErrNoCatalog = errors.New("parser: document catalog not found")
)

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	MaxXRefDepth int
	Filters      *filters.Pipeline
	Logger       observability.Logger
}

// DocumentParser builds a raw.Document using xref tables/streams and the object loader.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.Filters == nil {
		cfg.Filters = filters.DefaultPipeline()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	return &DocumentParser{cfg: cfg}
}

// Parse loads every live object of data. Object-stream members become
// ordinary objects; object streams and xref streams themselves are dropped
// since the document is always written back with a classic xref table.
func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*raw.Document, error) {
	resolver := xref.NewResolver(xref.ResolverConfig{
		MaxXRefDepth: p.cfg.MaxXRefDepth,
		Parser:       &syntax{},
		Filters:      p.cfg.Filters,
	})
	table, err := resolver.Resolve(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	trailer := table.Trailer()
	if _, ok := trailer.Get("Encrypt"); ok {
		return nil, ErrEncrypted
	}
	if table.Type() == "repair" {
		p.cfg.Logger.Warn("cross-reference table rebuilt by scanning the file")
	}

	loader := newObjectLoader(data, table, p.cfg.Filters)
	doc := raw.NewDocument(detectHeaderVersion(data))
	doc.Trailer = trailer

	for _, objNum := range table.Objects() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if objNum == 0 {
			continue // free head entry
		}
		e, _ := table.Lookup(objNum)
		ref := raw.ObjectRef{Num: objNum, Gen: e.Gen}
		obj, err := loader.Load(ctx, ref)
		if err != nil {
			p.cfg.Logger.Warn("skipping unreadable object", observability.Int("object", objNum), observability.Error("error", err))
			continue
		}
		if isStructural(obj) {
			continue
		}
		doc.Objects[ref] = obj
	}

	if _, ok := doc.ResolveDict(trailerValue(trailer, "Root")); !ok {
		root, ok := findCatalog(doc)
		if !ok {
			return nil, ErrNoCatalog
		}
		trailer.Set("Root", raw.RefObj{R: root})
	}
	return doc, nil
}

func trailerValue(trailer *raw.DictObj, key string) raw.Object {
	v, ok := trailer.Get(key)
	if !ok {
		return raw.NullObj{}
	}
	return v
}

func isStructural(obj raw.Object) bool {
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return false
	}
	name, _ := st.Dict.Name("Type")
	return name == "ObjStm" || name == "XRef"
}

func findCatalog(doc *raw.Document) (raw.ObjectRef, bool) {
	for _, ref := range doc.Refs() {
		d, ok := doc.Objects[ref].(*raw.DictObj)
		if !ok {
			continue
		}
		if name, _ := d.Name("Type"); name == "Catalog" {
			return ref, true
		}
	}
	return raw.ObjectRef{}, false
}

var headerRe = regexp.MustCompile(`%PDF-(\d\.\d)`)

func detectHeaderVersion(data []byte) string {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if m := headerRe.FindSubmatch(head); m != nil {
		return string(m[1])
	}
	if bytes.Contains(head, []byte("%PDF")) {
		return "1.4"
	}
	return "1.7"
}
