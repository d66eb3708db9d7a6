package patcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/sync/errgroup"

	"github.com/wudi/bookingpdf/booking"
	"github.com/wudi/bookingpdf/contentstream"
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

const templateContent = `q
BT
/TT3 1 Tf
9 0 0 9 40 760 Tm
[(5087.509)-20 (.967)]TJ
[(PIN C)-5 (ode: )]TJ
(0751)Tj
9 0 0 9 40 740 Tm
[( CA)12 (GRI ONCEK)]TJ
/TT0 1 Tf
19.5 0 0 19.5 354.1875 498.1125 Tm
(30)Tj
7.5 0 0 7.5 351.0125 486.6125 Tm
[(MAR)12 (CH)]TJ
/TT13 1 Tf
-0.417 -1.25 Td
(Monday)Tj
/TT3 1 Tf
9 0 0 9 340 460 Tm
[( 15:0)10 (0 - 00)10 (:00)]TJ
/TT0 1 Tf
19.5 0 0 19.5 441.7625 498.1125 Tm
(7)Tj
7.5 0 0 7.5 436.8625 486.6125 Tm
(APRIL)Tj
/TT13 1 Tf
-0.3 -1.25 Td
(Tuesday)Tj
/TT3 1 Tf
9 0 0 9 430 460 Tm
[( until 11)10 (:00)]TJ
/TT0 1 Tf
19.5 0 0 19.5 539.475 498.1125 Tm
(8)Tj
/TT3 1 Tf
9 0 0 9 40 300 Tm
[(Y)88 (ou'll get a full r)-3 (efund if you cancel before 11:)10 (59)]TJ
0 -1.2 TD
(on 30 March 2026. If you cancel from 12:00 on)Tj
T*
(30 March 2026, you'll get a TL)Tj
T*
(1,234 refund.)Tj
9 0 0 9 40 200 Tm
[(2)3 (1,727)]TJ
T*
[(5)3 (,431)]TJ
T*
(27,158)Tj
T*
[(3,91)3 (5)]TJ
ET
Q
`

func subsetFont(doc *raw.Document, base string, descriptor, fontFile bool) raw.RefObj {
	widths := raw.NewArray()
	for c := '0'; c <= '9'; c++ {
		widths.Append(raw.NumberInt(556))
	}
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("Font"))
	d.Set("Subtype", raw.NameLiteral("TrueType"))
	d.Set("BaseFont", raw.NameLiteral(base))
	d.Set("FirstChar", raw.NumberInt('0'))
	d.Set("LastChar", raw.NumberInt('9'))
	d.Set("Widths", widths)
	if descriptor {
		fd := raw.Dict()
		fd.Set("Type", raw.NameLiteral("FontDescriptor"))
		fd.Set("FontName", raw.NameLiteral(base))
		if fontFile {
			ff := doc.Add(raw.NewStream(raw.Dict(), []byte("template subset")))
			fd.Set("FontFile2", raw.RefObj{R: ff})
		}
		d.Set("FontDescriptor", raw.RefObj{R: doc.Add(fd)})
	}
	return raw.RefObj{R: doc.Add(d)}
}

type fixture struct {
	content []byte
	noFonts bool
	split   bool
}

// buildTemplate writes a one page booking template.
func buildTemplate(t *testing.T, fx fixture) []byte {
	t.Helper()
	ctx := context.Background()
	doc := raw.NewDocument("1.7")

	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalogRef := doc.Add(catalog)
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Count", raw.NumberInt(1))
	pagesRef := doc.Add(pages)
	catalog.Set("Pages", raw.RefObj{R: pagesRef})

	page := raw.Dict()
	page.Set("Type", raw.NameLiteral("Page"))
	page.Set("Parent", raw.RefObj{R: pagesRef})
	page.Set("MediaBox", raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(595), raw.NumberInt(842)))
	pages.Set("Kids", raw.NewArray(raw.RefObj{R: doc.Add(page)}))

	if !fx.noFonts {
		fontRes := raw.Dict()
		fontRes.Set("TT0", subsetFont(doc, "AAAAAA+SegoeUI-Bold", true, true))
		fontRes.Set("TT13", subsetFont(doc, "BBBBBB+SegoeUI-Italic", true, false))
		fontRes.Set("TT3", subsetFont(doc, "SegoeUI", false, false))
		res := raw.Dict()
		res.Set("Font", fontRes)
		page.Set("Resources", res)
	}

	content := fx.content
	if content == nil {
		content = []byte(templateContent)
	}
	stream := func(data []byte) raw.RefObj {
		enc, err := filters.NewFlateEncoder().Encode(ctx, data)
		require.NoError(t, err)
		d := raw.Dict()
		d.Set("Filter", raw.NameLiteral("FlateDecode"))
		return raw.RefObj{R: doc.Add(raw.NewStream(d, enc))}
	}
	if fx.split {
		cut := bytes.Index(content, []byte("/TT0 1 Tf"))
		page.Set("Contents", raw.NewArray(stream(content[:cut]), stream(content[cut:])))
	} else {
		page.Set("Contents", stream(content))
	}

	doc.Trailer.Set("Root", raw.RefObj{R: catalogRef})
	var buf bytes.Buffer
	require.NoError(t, writer.New().Write(ctx, doc, &buf, writer.Config{}))
	return buf.Bytes()
}

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(Config{Fonts: FontFiles{Bold: gobold.TTF, Regular: goregular.TTF, Italic: goitalic.TTF}}, opts...)
	require.NoError(t, err)
	return e
}

func sampleBooking(t *testing.T) booking.Data {
	t.Helper()
	refund, total, dkk := 2500.0, 30000.0, 4500.0
	d, err := booking.FromDates(booking.Input{
		Checkin:            "2026-06-05",
		Checkout:           "2026-06-14",
		ConfirmationNumber: "1234.567.890",
		PinCode:            "4821",
		GuestName:          "Jane O'Neil (Sr)",
		NumGuests:          2,
		RefundAmountTL:     &refund,
		PriceTotalTL:       &total,
		PriceTotalDKK:      &dkk,
	})
	require.NoError(t, err)
	return d
}

// pageOps parses out and tokenizes the content of its first page.
func pageOps(t *testing.T, out []byte) (*raw.Document, *resources.Page, []contentstream.Op) {
	t.Helper()
	ctx := context.Background()
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(ctx, out)
	require.NoError(t, err)
	page, err := resources.PageAt(doc, 0)
	require.NoError(t, err)
	streams, err := resources.ContentStreams(doc, page)
	require.NoError(t, err)
	var content []byte
	for _, st := range streams {
		data, err := filters.DefaultPipeline().DecodeStream(ctx, st)
		require.NoError(t, err)
		content = append(content, data...)
	}
	ops, err := contentstream.Tokenize(content)
	require.NoError(t, err)
	return doc, page, ops
}

func shown(ops []contentstream.Op) []string {
	var out []string
	for _, op := range ops {
		if op.IsShow() {
			out = append(out, string(op.ShowText()))
		}
	}
	return out
}

func tmX(ops []contentstream.Op, y string) []string {
	var out []string
	for _, op := range ops {
		if op.Name == "Tm" && len(op.Operands) == 6 && op.Operands[5].Text == y {
			out = append(out, op.Operands[4].Text)
		}
	}
	return out
}

func TestPatchFillsEveryField(t *testing.T) {
	e := newEngine(t)
	data := sampleBooking(t)

	res, err := e.Patch(context.Background(), buildTemplate(t, fixture{}), data, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	_, _, ops := pageOps(t, res.PDF)
	assert.Equal(t, []string{
		"1234.567.890",
		"PIN Code: ",
		"4821",
		" JANE O'NEIL (SR)",
		"5",
		"JUNE",
		"Friday",
		" 15:00 - 00:00",
		"14",
		"JUNE",
		"Sunday",
		" until 11:00",
		"9",
		"You'll get a full refund if you cancel before 11:59",
		"on 5 June 2026. If you cancel from 12:00 on",
		"5 June 2026, you'll get a TL",
		"2,500 refund.",
		"24,000",
		"6,000",
		"30,000",
		"4,500",
	}, shown(ops))

	bold, err := fonts.NewFont("bold", gobold.TTF)
	require.NoError(t, err)
	x := func(s string, size, center float64) string {
		return strconv.FormatFloat(bold.Metrics.CenteredX(s, size, center), 'f', 4, 64)
	}
	assert.Equal(t, []string{x("5", 19.5, 364.9), x("14", 19.5, 448.0), x("9", 19.5, 545.5)}, tmX(ops, "498.1125"))
	assert.Equal(t, []string{x("JUNE", 7.5, 364.9), x("JUNE", 7.5, 448.0)}, tmX(ops, "486.6125"))
}

func TestPatchCentresWeekdayUnderMonth(t *testing.T) {
	e := newEngine(t)
	data := sampleBooking(t)
	res, err := e.Patch(context.Background(), buildTemplate(t, fixture{}), data, nil)
	require.NoError(t, err)
	_, _, ops := pageOps(t, res.PDF)

	italic, err := fonts.NewFont("italic", goitalic.TTF)
	require.NoError(t, err)
	months := tmX(ops, "486.6125")
	require.Len(t, months, 2)

	var dx []string
	for _, op := range ops {
		if op.Name == "Td" {
			dx = append(dx, op.Operands[0].Text)
		}
	}
	want := func(weekday string, center float64, monthX string) string {
		anchor, err := strconv.ParseFloat(monthX, 64)
		require.NoError(t, err)
		target := italic.Metrics.CenteredX(weekday, 7.5, center)
		return strconv.FormatFloat((target-anchor)/7.5, 'f', 3, 64)
	}
	assert.Equal(t, []string{want("Friday", 364.9, months[0]), want("Sunday", 448.0, months[1])}, dx)
}

func TestPatchReplacesFonts(t *testing.T) {
	e := newEngine(t)
	res, err := e.Patch(context.Background(), buildTemplate(t, fixture{}), sampleBooking(t), nil)
	require.NoError(t, err)

	require.Len(t, res.Fonts, 3)
	assert.Equal(t, "bold", res.Fonts[0].Font)
	assert.True(t, res.Fonts[0].Embedded)
	assert.Equal(t, "italic", res.Fonts[1].Font)
	assert.True(t, res.Fonts[1].Embedded)
	assert.Equal(t, "regular", res.Fonts[2].Font)
	assert.False(t, res.Fonts[2].Embedded)

	doc, page, _ := pageOps(t, res.PDF)
	refs, err := resources.Fonts(context.Background(), doc, page)
	require.NoError(t, err)
	for _, ref := range refs {
		fc, _ := doc.ResolveInt(ref.Dict.KV["FirstChar"])
		lc, _ := doc.ResolveInt(ref.Dict.KV["LastChar"])
		widths, ok := doc.ResolveArray(ref.Dict.KV["Widths"])
		require.True(t, ok, ref.Name)
		assert.EqualValues(t, lc-fc+1, widths.Len(), ref.Name)
		assert.EqualValues(t, ' ', fc, ref.Name)
		assert.GreaterOrEqual(t, lc, int64('y'), ref.Name)
	}

	var embedded int
	for _, ref := range doc.Refs() {
		st, ok := doc.Objects[ref].(*raw.StreamObj)
		if !ok {
			continue
		}
		if _, ok := st.Dict.Get("Length1"); !ok {
			continue
		}
		embedded++
		program, err := filters.DefaultPipeline().DecodeStream(context.Background(), st)
		require.NoError(t, err)
		_, err = fonts.NewFont("subset", program)
		assert.NoError(t, err)
	}
	assert.Equal(t, 2, embedded)
	assert.NotContains(t, string(res.PDF), "template subset")
}

type recordLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, level+" "+msg)
}

func (l *recordLogger) Debug(msg string, _ ...observability.Field) { l.record("debug", msg) }
func (l *recordLogger) Info(msg string, _ ...observability.Field)  { l.record("info", msg) }
func (l *recordLogger) Warn(msg string, _ ...observability.Field)  { l.record("warn", msg) }
func (l *recordLogger) Error(msg string, _ ...observability.Field) { l.record("error", msg) }
func (l *recordLogger) With(...observability.Field) observability.Logger { return l }

func TestPatchLogsSkippedEmbedding(t *testing.T) {
	log := &recordLogger{}
	e := newEngine(t, WithLogger(log))
	_, err := e.Patch(context.Background(), buildTemplate(t, fixture{}), sampleBooking(t), nil)
	require.NoError(t, err)
	assert.Contains(t, log.messages, "warn font program not embedded")
	assert.Contains(t, log.messages, "info template patched")
	assert.Contains(t, log.messages, "debug object written")
}

func TestPatchReportsUnmatchedRules(t *testing.T) {
	e := newEngine(t)
	data := sampleBooking(t)
	tpl := template.Default()
	tpl.Patterns[template.PIN] = template.SimpleRule("9999", "PIN C")

	res, err := e.Patch(context.Background(), buildTemplate(t, fixture{}), data, tpl)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "pin", res.Warnings[0].Field)
	assert.Equal(t, editor.NotFound, res.Warnings[0].Kind)

	_, _, ops := pageOps(t, res.PDF)
	assert.Contains(t, shown(ops), "0751")
	assert.Contains(t, shown(ops), "1234.567.890")
}

func TestPatchSkipsOptionalFields(t *testing.T) {
	e := newEngine(t)
	data := sampleBooking(t)
	data.PriceBaseTL, data.PriceVATTL, data.PriceTotalTL, data.PriceTotalDKK = "", "", "", ""
	data.RefundAmountTL = ""

	res, err := e.Patch(context.Background(), buildTemplate(t, fixture{}), data, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	_, _, ops := pageOps(t, res.PDF)
	text := shown(ops)
	assert.Contains(t, text, "1,234 refund.")
	assert.Contains(t, text, "21,727")
	assert.Contains(t, text, "27,158")
}

func TestPatchMergesSplitContent(t *testing.T) {
	e := newEngine(t)
	res, err := e.Patch(context.Background(), buildTemplate(t, fixture{split: true}), sampleBooking(t), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	doc, page, ops := pageOps(t, res.PDF)
	streams, err := resources.ContentStreams(doc, page)
	require.NoError(t, err)
	require.Len(t, streams, 2)
	assert.Empty(t, streams[1].Data)
	assert.Contains(t, shown(ops), "Sunday")
}

func TestPatchRejectsMalformedTemplates(t *testing.T) {
	e := newEngine(t)
	data := sampleBooking(t)
	ctx := context.Background()

	cases := []struct {
		name string
		pdf  []byte
		want error
	}{
		{"not a pdf", []byte("hello"), nil},
		{"no font resources", buildTemplate(t, fixture{noFonts: true}), resources.ErrNoFonts},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := e.Patch(ctx, tc.pdf, data, nil)
			assert.Nil(t, res)
			var fe *FormatError
			require.ErrorAs(t, err, &fe)
			if tc.want != nil {
				assert.ErrorIs(t, err, tc.want)
			}
		})
	}
}

func TestPatchSyntaxErrorIsWarning(t *testing.T) {
	e := newEngine(t)
	res, err := e.Patch(context.Background(), buildTemplate(t, fixture{content: []byte("BT [(a) Tj ET")}), sampleBooking(t), nil)
	require.NoError(t, err)
	kinds := make(map[editor.WarningKind]int)
	for _, w := range res.Warnings {
		kinds[w.Kind]++
	}
	assert.Positive(t, kinds[editor.Syntax])
	assert.Positive(t, kinds[editor.NotFound])
}

func TestPatchRejectsInvalidConfig(t *testing.T) {
	e := newEngine(t)
	tpl := template.Default()
	tpl.FontSizes.Day = 0
	_, err := e.Patch(context.Background(), buildTemplate(t, fixture{}), sampleBooking(t), tpl)
	var ce *template.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 19.5, template.Default().FontSizes.Day)
}

func TestPatchHonoursCancellation(t *testing.T) {
	e := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Patch(ctx, buildTemplate(t, fixture{}), sampleBooking(t), nil)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestNewRejectsBadFont(t *testing.T) {
	_, err := New(Config{Fonts: FontFiles{Bold: []byte("nope"), Regular: goregular.TTF, Italic: goitalic.TTF}})
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "load font", fe.Op)
}

func TestPatchIsSafeForConcurrentUse(t *testing.T) {
	e := newEngine(t)
	pdf := buildTemplate(t, fixture{})
	data := sampleBooking(t)
	want, err := e.Patch(context.Background(), pdf, data, nil)
	require.NoError(t, err)

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 8; i++ {
		i := i
		g.Go(func() error {
			res, err := e.Patch(ctx, pdf, data, nil)
			if err != nil {
				return err
			}
			if !bytes.Equal(res.PDF, want.PDF) {
				return fmt.Errorf("run %d produced different output", i)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestPatchStampsDocumentID(t *testing.T) {
	e := newEngine(t)
	res, err := e.Patch(context.Background(), buildTemplate(t, fixture{}), sampleBooking(t), nil)
	require.NoError(t, err)

	doc, page, _ := pageOps(t, res.PDF)
	ids, ok := doc.ResolveArray(doc.Trailer.KV["ID"])
	require.True(t, ok)
	require.Equal(t, 2, ids.Len())

	streams, err := resources.ContentStreams(doc, page)
	require.NoError(t, err)
	content, err := filters.DefaultPipeline().DecodeStream(context.Background(), streams[0])
	require.NoError(t, err)
	sum := blake2b.Sum256(content)
	changed, ok := ids.Items[1].(raw.HexStringObj)
	require.True(t, ok)
	assert.Equal(t, sum[:16], changed.Bytes)
	assert.Equal(t, ids.Items[0], ids.Items[1])
}
