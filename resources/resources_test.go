package resources

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/bookingpdf/ir/raw"
)

func fontDict(base string) *raw.DictObj {
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("Font"))
	d.Set("Subtype", raw.NameLiteral("TrueType"))
	d.Set("BaseFont", raw.NameLiteral(base))
	return d
}

// treeDocument builds Catalog(1) -> Pages(2, resources with /TT0) ->
// [Page(3, no resources), Page(4, own resources with /TT3)].
func treeDocument() *raw.Document {
	doc := raw.NewDocument("1.7")
	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalog.Set("Pages", raw.Ref(2, 0))
	doc.Objects[raw.ObjectRef{Num: 1}] = catalog

	inherited := raw.Dict()
	inherited.Set("TT0", raw.Ref(10, 0))
	inheritedRes := raw.Dict()
	inheritedRes.Set("Font", inherited)
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Kids", raw.NewArray(raw.Ref(3, 0), raw.Ref(4, 0)))
	pages.Set("Resources", inheritedRes)
	doc.Objects[raw.ObjectRef{Num: 2}] = pages

	p1 := raw.Dict()
	p1.Set("Type", raw.NameLiteral("Page"))
	p1.Set("Contents", raw.NewArray(raw.Ref(20, 0), raw.Ref(21, 0)))
	doc.Objects[raw.ObjectRef{Num: 3}] = p1

	own := raw.Dict()
	own.Set("TT3", raw.Ref(11, 0))
	ownRes := raw.Dict()
	ownRes.Set("Font", own)
	p2 := raw.Dict()
	p2.Set("Type", raw.NameLiteral("Page"))
	p2.Set("Resources", ownRes)
	p2.Set("Contents", raw.Ref(22, 0))
	doc.Objects[raw.ObjectRef{Num: 4}] = p2

	doc.Objects[raw.ObjectRef{Num: 10}] = fontDict("Bold")
	doc.Objects[raw.ObjectRef{Num: 11}] = fontDict("Regular")
	doc.Objects[raw.ObjectRef{Num: 20}] = raw.NewStream(raw.Dict(), []byte("q"))
	doc.Objects[raw.ObjectRef{Num: 21}] = raw.NewStream(raw.Dict(), []byte("Q"))
	doc.Objects[raw.ObjectRef{Num: 22}] = raw.NewStream(raw.Dict(), []byte("BT ET"))
	doc.Trailer.Set("Root", raw.Ref(1, 0))
	return doc
}

func TestPageAt(t *testing.T) {
	doc := treeDocument()
	p, err := PageAt(doc, 1)
	require.NoError(t, err)
	assert.Equal(t, raw.ObjectRef{Num: 4}, p.Ref)

	_, err = PageAt(doc, 2)
	assert.True(t, errors.Is(err, ErrPageNotFound))
}

func TestFontsInherited(t *testing.T) {
	doc := treeDocument()
	p, err := PageAt(doc, 0)
	require.NoError(t, err)

	fonts, err := Fonts(context.Background(), doc, p)
	require.NoError(t, err)
	require.Len(t, fonts, 1)
	assert.Equal(t, "/TT0", fonts[0].Name)
	assert.Equal(t, raw.ObjectRef{Num: 10}, fonts[0].Ref)
	base, _ := fonts[0].Dict.Name("BaseFont")
	assert.Equal(t, "Bold", base)
}

func TestOwnResourcesReplaceInherited(t *testing.T) {
	doc := treeDocument()
	p, err := PageAt(doc, 1)
	require.NoError(t, err)

	fonts, err := Fonts(context.Background(), doc, p)
	require.NoError(t, err)
	require.Len(t, fonts, 1)
	assert.Equal(t, "/TT3", fonts[0].Name)
}

func TestNoFonts(t *testing.T) {
	doc := treeDocument()
	p, err := PageAt(doc, 0)
	require.NoError(t, err)
	pages := doc.Objects[raw.ObjectRef{Num: 2}].(*raw.DictObj)
	pages.Delete("Resources")

	_, err = Fonts(context.Background(), doc, p)
	assert.ErrorIs(t, err, ErrNoFonts)
}

func TestContentStreams(t *testing.T) {
	doc := treeDocument()
	p, err := PageAt(doc, 0)
	require.NoError(t, err)
	streams, err := ContentStreams(doc, p)
	require.NoError(t, err)
	require.Len(t, streams, 2)
	assert.Equal(t, "q", string(streams[0].Data))
	assert.Equal(t, "Q", string(streams[1].Data))
}

func TestPageTreeCycle(t *testing.T) {
	doc := treeDocument()
	pages := doc.Objects[raw.ObjectRef{Num: 2}].(*raw.DictObj)
	pages.Set("Kids", raw.NewArray(raw.Ref(2, 0)))
	_, err := PageAt(doc, 0)
	assert.Error(t, err)
}
