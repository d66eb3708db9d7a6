// Package patcher fills a booking confirmation template with one
// reservation: it swaps the template's embedded font subsets for subsets of
// the configured fonts and rewrites the text of page 0 in place.
package patcher

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/bookingpdf/booking"
	"github.com/wudi/bookingpdf/contentstream/editor"
	"github.com/wudi/bookingpdf/filters"
	"github.com/wudi/bookingpdf/fonts"
	"github.com/wudi/bookingpdf/ir/raw"
	"github.com/wudi/bookingpdf/observability"
	"github.com/wudi/bookingpdf/parser"
	"github.com/wudi/bookingpdf/resources"
	"github.com/wudi/bookingpdf/template"
	"github.com/wudi/bookingpdf/writer"
)

// FontFiles are the TrueType programs of the three font roles.
type FontFiles struct {
	Bold    []byte
	Regular []byte
	Italic  []byte
}

type Config struct {
	Fonts  FontFiles
	Logger observability.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer wraps each pipeline stage in a span.
func WithTracer(t observability.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// Engine patches templates. The decoded fonts are owned by the engine and
// never modified, so one Engine serves concurrent Patch calls.
type Engine struct {
	bold    *fonts.Font
	regular *fonts.Font
	italic  *fonts.Font

	logger  observability.Logger
	tracer  observability.Tracer
	filters *filters.Pipeline
}

// New decodes the configured fonts once.
func New(cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:  cfg.Logger,
		tracer:  observability.NopTracer(),
		filters: filters.DefaultPipeline(),
	}
	if e.logger == nil {
		e.logger = observability.NopLogger{}
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, f := range []struct {
		name string
		data []byte
		dst  **fonts.Font
	}{
		{"bold", cfg.Fonts.Bold, &e.bold},
		{"regular", cfg.Fonts.Regular, &e.regular},
		{"italic", cfg.Fonts.Italic, &e.italic},
	} {
		font, err := fonts.NewFont(f.name, f.data)
		if err != nil {
			return nil, &FormatError{Op: "load font", Err: err}
		}
		if _, err := fonts.Subset(f.data, nil); err != nil {
			return nil, &FormatError{Op: "load font", Err: fmt.Errorf("font %s: %w", f.name, err)}
		}
		*f.dst = font
	}
	return e, nil
}

// Result is the patched document and what happened on the way.
type Result struct {
	PDF      []byte
	Warnings []editor.Warning
	Fonts    []fonts.ReplaceResult
}

// Patch fills template with data according to tpl; a nil tpl means
// template.Default. Rules that do not match are reported in
// Result.Warnings and do not fail the call.
func (e *Engine) Patch(ctx context.Context, pdf []byte, data booking.Data, tpl *template.Config) (*Result, error) {
	if tpl == nil {
		tpl = template.Default()
	}
	cfg := tpl.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	doc, err := e.parse(ctx, pdf)
	if err != nil {
		return nil, err
	}
	page, err := resources.PageAt(doc, 0)
	if err != nil {
		return nil, &FormatError{Op: "page 0", Err: err}
	}
	fontRefs, err := resources.Fonts(ctx, doc, page)
	if err != nil {
		return nil, &FormatError{Op: "font resources", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}
	needed := data.Codepoints(booking.StaticFragments...)
	if res.Fonts, err = e.replaceFonts(ctx, doc, fontRefs, cfg.FontNames, needed); err != nil {
		return nil, err
	}
	e.logMissingGlyphs(data)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var content []byte
	if res.Warnings, content, err = e.edit(ctx, doc, page, data, cfg); err != nil {
		return nil, err
	}
	stampID(doc, content)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if res.PDF, err = e.write(ctx, doc); err != nil {
		return nil, err
	}
	e.logger.Info("template patched",
		observability.Int("bytes", len(res.PDF)),
		observability.Int("warnings", len(res.Warnings)),
		observability.Int("fonts", len(res.Fonts)))
	return res, nil
}

func (e *Engine) parse(ctx context.Context, pdf []byte) (*raw.Document, error) {
	ctx, span := e.tracer.StartSpan(ctx, observability.SpanParse)
	defer span.Finish()
	p := parser.NewDocumentParser(parser.Config{Filters: e.filters, Logger: e.logger})
	doc, err := p.Parse(ctx, pdf)
	if err != nil {
		span.SetError(err)
		return nil, &FormatError{Op: "parse", Err: err}
	}
	span.SetTag("objects", len(doc.Objects))
	return doc, nil
}

// replaceFonts runs the font replacer for every configured resource name
// present on the page, bold first, then italic, then regular.
func (e *Engine) replaceFonts(ctx context.Context, doc *raw.Document, refs []resources.FontRef, names template.FontNames, needed []rune) ([]fonts.ReplaceResult, error) {
	ctx, span := e.tracer.StartSpan(ctx, observability.SpanFonts)
	defer span.Finish()

	byName := make(map[string]resources.FontRef, len(refs))
	for _, r := range refs {
		byName[r.Name] = r
	}
	var out []fonts.ReplaceResult
	for _, role := range []struct {
		font  *fonts.Font
		names []string
	}{
		{e.bold, names.Bold},
		{e.italic, names.Italic},
		{e.regular, names.Regular},
	} {
		for _, name := range role.names {
			ref, ok := byName[name]
			if !ok {
				e.logger.Debug("font resource not on page", observability.String("resource", name))
				continue
			}
			res, err := fonts.ReplaceFont(ctx, doc, ref.Dict, role.font, needed)
			if err != nil {
				span.SetError(err)
				return nil, &FormatError{Op: "replace font " + name, Err: err}
			}
			log := e.logger.With(observability.String("resource", name), observability.String("font", res.Font))
			if !res.Embedded {
				log.Warn("font program not embedded", observability.Error("error", fonts.ErrNoDescriptor))
			} else {
				log.Info("font replaced",
					observability.Int("first_char", res.FirstChar),
					observability.Int("last_char", res.LastChar),
					observability.Int("codepoints", res.Codepoints),
					observability.Int("subset_bytes", res.SubsetSize))
			}
			out = append(out, res)
		}
	}
	span.SetTag("replaced", len(out))
	return out, nil
}

func (e *Engine) logMissingGlyphs(data booking.Data) {
	for _, check := range []struct {
		font *fonts.Font
		text []string
	}{
		{e.bold, []string{data.CheckinDay, data.CheckinMonth, data.CheckoutDay, data.CheckoutMonth, data.Nights}},
		{e.italic, []string{data.CheckinWeekday, data.CheckoutWeekday}},
	} {
		for _, s := range check.text {
			if missing := check.font.Metrics.Missing(s); len(missing) > 0 {
				e.logger.Warn("glyphs missing from replacement font",
					observability.String("font", check.font.Name),
					observability.String("text", s),
					observability.String("missing", string(missing)))
			}
		}
	}
}

// edit applies every rule to the page content and stores it back as one
// FlateDecode stream.
func (e *Engine) edit(ctx context.Context, doc *raw.Document, page *resources.Page, data booking.Data, cfg *template.Config) ([]editor.Warning, []byte, error) {
	ctx, span := e.tracer.StartSpan(ctx, observability.SpanEdit)
	defer span.Finish()

	streams, err := resources.ContentStreams(doc, page)
	if err != nil {
		return nil, nil, &FormatError{Op: "page content", Err: err}
	}
	var content []byte
	for i, st := range streams {
		decoded, err := e.filters.DecodeStream(ctx, st)
		if err != nil {
			return nil, nil, &FormatError{Op: "decode content", Err: err}
		}
		if i > 0 {
			content = append(content, '\n')
		}
		content = append(content, decoded...)
	}

	ed := editor.New(content)
	newPlan(e, data, cfg).run(ed)
	for _, w := range ed.Warnings() {
		e.logger.Warn("rule not applied",
			observability.String("field", w.Field),
			observability.String("kind", string(w.Kind)),
			observability.String("detail", w.Message))
	}

	encoded, err := filters.NewFlateEncoder().Encode(ctx, ed.Bytes())
	if err != nil {
		return nil, nil, err
	}
	first := streams[0]
	first.Data = encoded
	first.Dict.Set("Filter", raw.NameLiteral("FlateDecode"))
	first.Dict.Delete("DecodeParms")
	for _, st := range streams[1:] {
		st.Data = nil
		st.Dict.Delete("Filter")
		st.Dict.Delete("DecodeParms")
	}
	span.SetTag("warnings", len(ed.Warnings()))
	return ed.Warnings(), ed.Bytes(), nil
}

func (e *Engine) write(ctx context.Context, doc *raw.Document) ([]byte, error) {
	ctx, span := e.tracer.StartSpan(ctx, observability.SpanWrite)
	defer span.Finish()
	var buf bytes.Buffer
	w := (&writer.WriterBuilder{}).WithInterceptor(&writeLogger{logger: e.logger}).Build()
	if err := w.Write(ctx, doc, &buf, writer.Config{}); err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("write document: %w", err)
	}
	return buf.Bytes(), nil
}

// stampID sets a new second /ID element derived from the edited content.
// The first element is kept when the template has one.
func stampID(doc *raw.Document, content []byte) {
	sum := blake2b.Sum256(content)
	changed := raw.HexStringObj{Bytes: sum[:16]}
	original := changed
	if ids, ok := doc.ResolveArray(doc.Trailer.KV["ID"]); ok && ids.Len() == 2 {
		switch first := doc.Resolve(ids.Items[0]).(type) {
		case raw.HexStringObj:
			original = first
		case raw.StringObj:
			original = raw.HexStringObj{Bytes: first.Bytes}
		}
	}
	doc.Trailer.Set("ID", raw.NewArray(original, changed))
}

// writeLogger logs every serialized object at debug level.
type writeLogger struct {
	logger observability.Logger
}

func (l *writeLogger) BeforeWrite(context.Context, raw.ObjectRef, raw.Object) error { return nil }

func (l *writeLogger) AfterWrite(_ context.Context, ref raw.ObjectRef, n int64) error {
	l.logger.Debug("object written", observability.String("ref", ref.String()), observability.Int64("bytes", n))
	return nil
}
