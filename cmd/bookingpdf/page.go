package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/wudi/bookingpdf/filters"
	"github.com/wudi/bookingpdf/ir/raw"
	"github.com/wudi/bookingpdf/observability"
	"github.com/wudi/bookingpdf/parser"
	"github.com/wudi/bookingpdf/resources"
)

// firstPage is page 0 of a parsed template.
type firstPage struct {
	doc     *raw.Document
	page    *resources.Page
	fonts   []resources.FontRef
	content []byte
}

func loadFirstPage(ctx context.Context, path string, logger observability.Logger) (*firstPage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	pipeline := filters.DefaultPipeline()
	doc, err := parser.NewDocumentParser(parser.Config{Filters: pipeline, Logger: logger}).Parse(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	page, err := resources.PageAt(doc, 0)
	if err != nil {
		return nil, err
	}
	fp := &firstPage{doc: doc, page: page}
	if fp.fonts, err = resources.Fonts(ctx, doc, page); err != nil {
		logger.Warn("page has no fonts", observability.Error("error", err))
	}
	streams, err := resources.ContentStreams(doc, page)
	if err != nil {
		return nil, err
	}
	for i, st := range streams {
		decoded, err := pipeline.DecodeStream(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("failed to decode content stream %d: %w", i, err)
		}
		if i > 0 {
			fp.content = append(fp.content, '\n')
		}
		fp.content = append(fp.content, decoded...)
	}
	return fp, nil
}

// widths returns the /Widths lookup of the page fonts, keyed by resource
// name without the slash.
func (p *firstPage) widths() func(font string, code byte) float64 {
	type table struct {
		first  int
		widths []float64
	}
	tables := make(map[string]table, len(p.fonts))
	for _, f := range p.fonts {
		var t table
		if fc, ok := p.doc.ResolveInt(f.Dict.KV["FirstChar"]); ok {
			t.first = int(fc)
		}
		if arr, ok := p.doc.ResolveArray(f.Dict.KV["Widths"]); ok {
			for _, it := range arr.Items {
				n, _ := p.doc.Resolve(it).(raw.NumberObj)
				t.widths = append(t.widths, n.Float())
			}
		}
		tables[strings.TrimPrefix(f.Name, "/")] = t
	}
	return func(font string, code byte) float64 {
		t := tables[font]
		i := int(code) - t.first
		if i < 0 || i >= len(t.widths) {
			return 0
		}
		return t.widths[i]
	}
}
