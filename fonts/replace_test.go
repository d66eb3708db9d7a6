package fonts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/gobold"

	"github.com/wudi/bookingpdf/filters"
	"github.com/wudi/bookingpdf/ir/raw"
)

// templateFont builds a subset-style simple font covering '0'..'9' where
// only '3' and '0' were used by the template.
func templateFont(doc *raw.Document, withDescriptor bool) *raw.DictObj {
	widths := raw.NewArray()
	for c := '0'; c <= '9'; c++ {
		switch c {
		case '0', '3':
			widths.Append(raw.NumberObj{F: 613.28, Lit: "613.28"})
		default:
			widths.Append(raw.NumberInt(0))
		}
	}
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("Font"))
	d.Set("Subtype", raw.NameLiteral("TrueType"))
	d.Set("BaseFont", raw.NameLiteral("AAAAAA+Template-Bold"))
	d.Set("FirstChar", raw.NumberInt('0'))
	d.Set("LastChar", raw.NumberInt('9'))
	d.Set("Widths", widths)
	if withDescriptor {
		oldFile := doc.Add(raw.NewStream(raw.Dict(), []byte("old font program")))
		fd := raw.Dict()
		fd.Set("Type", raw.NameLiteral("FontDescriptor"))
		fd.Set("FontFile2", raw.RefObj{R: oldFile})
		fdRef := doc.Add(fd)
		d.Set("FontDescriptor", raw.RefObj{R: fdRef})
	}
	return d
}

func TestReplaceFontGrowsRangeAndKeepsWidths(t *testing.T) {
	doc := raw.NewDocument("1.7")
	fontDict := templateFont(doc, true)
	font, err := NewFont("bold", gobold.TTF)
	require.NoError(t, err)

	res, err := ReplaceFont(context.Background(), doc, fontDict, font, []rune("7 APRIL"))
	require.NoError(t, err)
	assert.True(t, res.Embedded)
	assert.Equal(t, ' ', rune(res.FirstChar))
	assert.Equal(t, 'R', rune(res.LastChar))

	fc, _ := doc.ResolveInt(fontDict.KV["FirstChar"])
	lc, _ := doc.ResolveInt(fontDict.KV["LastChar"])
	assert.EqualValues(t, ' ', fc)
	assert.EqualValues(t, 'R', lc)

	widths, ok := doc.ResolveArray(fontDict.KV["Widths"])
	require.True(t, ok)
	require.Equal(t, int(lc-fc+1), widths.Len())

	at := func(c rune) raw.NumberObj { return widths.Items[int(c)-int(fc)].(raw.NumberObj) }
	// Original non-zero widths win.
	assert.Equal(t, "613.28", at('0').String())
	assert.Equal(t, "613.28", at('3').String())
	// Originally zero widths are recomputed from the replacement font.
	want := BuildWidths(font.Metrics, '7', '7')[0]
	assert.Equal(t, want.Object().String(), at('7').String())
	assert.NotEqual(t, 0.0, at('A').Float())

	fd, ok := doc.ResolveDict(fontDict.KV["FontDescriptor"])
	require.True(t, ok)
	ffRef, ok := fd.KV["FontFile2"].(raw.RefObj)
	require.True(t, ok)
	assert.Equal(t, res.FontFile, ffRef.R)
	stream, ok := doc.Objects[ffRef.R].(*raw.StreamObj)
	require.True(t, ok)
	length1, _ := doc.ResolveInt(stream.Dict.KV["Length1"])
	assert.EqualValues(t, res.SubsetSize, length1)

	program, err := filters.DefaultPipeline().DecodeStream(context.Background(), stream)
	require.NoError(t, err)
	assert.Len(t, program, res.SubsetSize)
	m, err := LoadMetrics(program)
	require.NoError(t, err)
	for _, r := range "037 APRIL" {
		assert.True(t, m.HasGlyph(r) || r == ' ', "subset lacks %q", r)
	}

	// The previous program had no other reference and is dropped.
	_, stillThere := doc.Objects[raw.ObjectRef{Num: 1}]
	assert.False(t, stillThere)
}

func TestReplaceFontWithoutDescriptor(t *testing.T) {
	doc := raw.NewDocument("1.7")
	fontDict := templateFont(doc, false)
	font, err := NewFont("bold", gobold.TTF)
	require.NoError(t, err)

	res, err := ReplaceFont(context.Background(), doc, fontDict, font, []rune("5"))
	require.NoError(t, err)
	assert.False(t, res.Embedded)
	widths, _ := doc.ResolveArray(fontDict.KV["Widths"])
	assert.Equal(t, 10, widths.Len())
	assert.NotEqual(t, 0.0, widths.Items[5].(raw.NumberObj).Float())
	assert.Empty(t, doc.Objects)
}

func TestReplaceFontDefaultsRange(t *testing.T) {
	doc := raw.NewDocument("1.7")
	fontDict := raw.Dict()
	font, err := NewFont("bold", gobold.TTF)
	require.NoError(t, err)

	res, err := ReplaceFont(context.Background(), doc, fontDict, font, []rune("é"))
	require.NoError(t, err)
	assert.Equal(t, 32, res.FirstChar)
	assert.Equal(t, 0xE9, res.LastChar)
}
