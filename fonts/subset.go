package fonts

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	gotext "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/font/opentype"
	"golang.org/x/image/font/sfnt"
)

var ErrUnsupportedOutline = errors.New("fonts: only glyf-based TrueType fonts can be subset")

// Tables copied unchanged into a subset. Layout and kerning tables are
// dropped because they index glyphs by their old ids.
var passthroughTables = []string{"name", "OS/2", "cvt ", "fpgm", "prep", "gasp"}

// Subset builds a standalone TrueType program holding .notdef, the glyphs
// of codepoints and every glyph those reference as composite components.
// Glyph ids are renumbered compactly and a fresh (3,1) cmap covers exactly
// the requested codepoints that the font maps.
func Subset(data []byte, codepoints []rune) ([]byte, error) {
	p, err := newTTParser(data)
	if err != nil {
		return nil, err
	}
	for _, tag := range []string{"glyf", "loca", "head", "maxp", "hmtx", "hhea"} {
		if !p.HasTable(tag) {
			return nil, fmt.Errorf("%w: missing %q table", ErrUnsupportedOutline, tag)
		}
	}
	face, err := gotext.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse cmap: %w", err)
	}

	headData, err := p.ReadTable("head")
	if err != nil {
		return nil, err
	}
	maxpData, err := p.ReadTable("maxp")
	if err != nil {
		return nil, err
	}
	if len(headData) < 54 || len(maxpData) < 6 {
		return nil, errors.New("fonts: truncated head or maxp table")
	}
	indexToLocFormat := int16(binary.BigEndian.Uint16(headData[50:52]))
	numGlyphs := int(binary.BigEndian.Uint16(maxpData[4:6]))

	// Always include .notdef (GID 0)
	closure := map[int]bool{0: true}
	cmap := make(map[rune]int)
	for _, r := range codepoints {
		gid, ok := face.NominalGlyph(r)
		if !ok || gid == 0 || int(gid) >= numGlyphs {
			continue
		}
		cmap[r] = int(gid)
		closure[int(gid)] = true
	}
	if err := p.computeClosure(closure, numGlyphs, indexToLocFormat); err != nil {
		return nil, fmt.Errorf("compute closure: %w", err)
	}

	oldIDs := make([]int, 0, len(closure))
	for gid := range closure {
		oldIDs = append(oldIDs, gid)
	}
	sort.Ints(oldIDs)
	newID := make(map[int]int, len(oldIDs))
	for i, gid := range oldIDs {
		newID[gid] = i
	}

	newGlyf, newLoca, err := p.rebuildGlyfLoca(oldIDs, newID, indexToLocFormat)
	if err != nil {
		return nil, err
	}
	newHmtx, err := p.rebuildHmtx(oldIDs)
	if err != nil {
		return nil, err
	}

	n := uint16(len(oldIDs))
	newMaxp := append([]byte(nil), maxpData...)
	binary.BigEndian.PutUint16(newMaxp[4:], n)

	// The rebuilt loca is always the long format.
	newHead := append([]byte(nil), headData...)
	binary.BigEndian.PutUint16(newHead[50:], 1)

	hhea, err := p.ReadTable("hhea")
	if err != nil {
		return nil, err
	}
	if len(hhea) < 36 {
		return nil, errors.New("fonts: truncated hhea table")
	}
	newHhea := append([]byte(nil), hhea...)
	binary.BigEndian.PutUint16(newHhea[34:], n)

	remapped := make(map[rune]int, len(cmap))
	for r, gid := range cmap {
		remapped[r] = newID[gid]
	}

	w := &ttWriter{}
	w.AddTable("head", newHead)
	w.AddTable("hhea", newHhea)
	w.AddTable("maxp", newMaxp)
	w.AddTable("hmtx", newHmtx)
	w.AddTable("loca", newLoca)
	w.AddTable("glyf", newGlyf)
	w.AddTable("cmap", buildCmap(remapped))
	w.AddTable("post", p.buildPost())
	for _, tag := range passthroughTables {
		if !p.HasTable(tag) {
			continue
		}
		t, err := p.ReadTable(tag)
		if err != nil {
			return nil, err
		}
		w.AddTable(tag, t)
	}

	out := w.Bytes()
	if _, err := sfnt.Parse(out); err != nil {
		return nil, fmt.Errorf("fonts: subset failed verification: %w", err)
	}
	return out, nil
}

// ttParser reads raw sfnt tables through the go-text loader.
type ttParser struct {
	loader *opentype.Loader
	tables map[string][]byte
}

func newTTParser(data []byte) (*ttParser, error) {
	if len(data) >= 4 && string(data[:4]) == "OTTO" {
		return nil, fmt.Errorf("%w: CFF outlines", ErrUnsupportedOutline)
	}
	loader, err := opentype.NewLoader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read font tables: %w", err)
	}
	return &ttParser{loader: loader, tables: make(map[string][]byte)}, nil
}

func tagOf(s string) opentype.Tag { return opentype.NewTag(s[0], s[1], s[2], s[3]) }

func (p *ttParser) HasTable(tag string) bool { return p.loader.HasTable(tagOf(tag)) }

func (p *ttParser) ReadTable(tag string) ([]byte, error) {
	if t, ok := p.tables[tag]; ok {
		return t, nil
	}
	t, err := p.loader.RawTable(tagOf(tag))
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", tag, err)
	}
	p.tables[tag] = t
	return t, nil
}

func (p *ttParser) glyphRange(loca []byte, gid int, indexToLocFormat int16) (uint32, uint32, bool) {
	if indexToLocFormat == 0 {
		if (gid+2)*2 > len(loca) {
			return 0, 0, false
		}
		return uint32(binary.BigEndian.Uint16(loca[gid*2:])) * 2, uint32(binary.BigEndian.Uint16(loca[gid*2+2:])) * 2, true
	}
	if (gid+2)*4 > len(loca) {
		return 0, 0, false
	}
	return binary.BigEndian.Uint32(loca[gid*4:]), binary.BigEndian.Uint32(loca[gid*4+4:]), true
}

// Composite glyph flags.
const (
	argsAreWords   = 0x0001
	haveScale      = 0x0008
	moreComponents = 0x0020
	haveXYScale    = 0x0040
	haveTwoByTwo   = 0x0080
)

// components calls fn with the byte offset of each component glyph id in a
// composite glyph description.
func components(glyph []byte, fn func(idOffset int)) {
	if len(glyph) < 10 || int16(binary.BigEndian.Uint16(glyph)) >= 0 {
		return
	}
	offset := 10
	for offset+4 <= len(glyph) {
		flags := binary.BigEndian.Uint16(glyph[offset:])
		fn(offset + 2)
		offset += 4
		if flags&argsAreWords != 0 {
			offset += 4
		} else {
			offset += 2
		}
		switch {
		case flags&haveScale != 0:
			offset += 2
		case flags&haveXYScale != 0:
			offset += 4
		case flags&haveTwoByTwo != 0:
			offset += 8
		}
		if flags&moreComponents == 0 {
			break
		}
	}
}

func (p *ttParser) computeClosure(closure map[int]bool, numGlyphs int, indexToLocFormat int16) error {
	loca, err := p.ReadTable("loca")
	if err != nil {
		return err
	}
	glyf, err := p.ReadTable("glyf")
	if err != nil {
		return err
	}

	queue := make([]int, 0, len(closure))
	for gid := range closure {
		queue = append(queue, gid)
	}
	for len(queue) > 0 {
		gid := queue[0]
		queue = queue[1:]
		if gid >= numGlyphs {
			continue
		}
		start, end, ok := p.glyphRange(loca, gid, indexToLocFormat)
		if !ok || start >= end || end > uint32(len(glyf)) {
			continue
		}
		g := glyf[start:end]
		components(g, func(idOffset int) {
			sub := int(binary.BigEndian.Uint16(g[idOffset:]))
			if sub < numGlyphs && !closure[sub] {
				closure[sub] = true
				queue = append(queue, sub)
			}
		})
	}
	return nil
}

func (p *ttParser) rebuildGlyfLoca(oldIDs []int, newID map[int]int, indexToLocFormat int16) ([]byte, []byte, error) {
	oldLoca, err := p.ReadTable("loca")
	if err != nil {
		return nil, nil, err
	}
	oldGlyf, err := p.ReadTable("glyf")
	if err != nil {
		return nil, nil, err
	}

	var newGlyf bytes.Buffer
	newLoca := make([]byte, (len(oldIDs)+1)*4)
	for i, gid := range oldIDs {
		binary.BigEndian.PutUint32(newLoca[i*4:], uint32(newGlyf.Len()))
		start, end, ok := p.glyphRange(oldLoca, gid, indexToLocFormat)
		if !ok || start >= end || end > uint32(len(oldGlyf)) {
			continue
		}
		g := append([]byte(nil), oldGlyf[start:end]...)
		components(g, func(idOffset int) {
			old := int(binary.BigEndian.Uint16(g[idOffset:]))
			binary.BigEndian.PutUint16(g[idOffset:], uint16(newID[old]))
		})
		newGlyf.Write(g)
		for newGlyf.Len()%4 != 0 {
			newGlyf.WriteByte(0)
		}
	}
	binary.BigEndian.PutUint32(newLoca[len(oldIDs)*4:], uint32(newGlyf.Len()))
	return newGlyf.Bytes(), newLoca, nil
}

// rebuildHmtx writes one full metric per kept glyph, so numberOfHMetrics
// equals the new glyph count.
func (p *ttParser) rebuildHmtx(oldIDs []int) ([]byte, error) {
	hhea, err := p.ReadTable("hhea")
	if err != nil {
		return nil, err
	}
	if len(hhea) < 36 {
		return nil, errors.New("fonts: truncated hhea table")
	}
	numOfHMetrics := int(binary.BigEndian.Uint16(hhea[34:36]))
	hmtx, err := p.ReadTable("hmtx")
	if err != nil {
		return nil, err
	}
	if numOfHMetrics == 0 || numOfHMetrics*4 > len(hmtx) {
		return nil, errors.New("fonts: hmtx shorter than numberOfHMetrics")
	}

	getMetric := func(gid int) (uint16, uint16) {
		if gid < numOfHMetrics {
			return binary.BigEndian.Uint16(hmtx[gid*4:]), binary.BigEndian.Uint16(hmtx[gid*4+2:])
		}
		// Glyphs past the metrics array share the last advance.
		adv := binary.BigEndian.Uint16(hmtx[(numOfHMetrics-1)*4:])
		lsbOffset := numOfHMetrics*4 + (gid-numOfHMetrics)*2
		if lsbOffset+2 > len(hmtx) {
			return adv, 0
		}
		return adv, binary.BigEndian.Uint16(hmtx[lsbOffset:])
	}

	out := make([]byte, len(oldIDs)*4)
	for i, gid := range oldIDs {
		adv, lsb := getMetric(gid)
		binary.BigEndian.PutUint16(out[i*4:], adv)
		binary.BigEndian.PutUint16(out[i*4+2:], lsb)
	}
	return out, nil
}

// buildPost returns a version 3.0 post table (no glyph names) keeping the
// original italic angle and underline metrics.
func (p *ttParser) buildPost() []byte {
	out := make([]byte, 32)
	if p.HasTable("post") {
		if orig, err := p.ReadTable("post"); err == nil && len(orig) >= 32 {
			copy(out, orig[:32])
		}
	}
	binary.BigEndian.PutUint32(out[0:], 0x00030000)
	return out
}

type cmapSegment struct {
	start, end uint16
	delta      uint16
}

// buildCmap writes a cmap with a single (3,1) format 4 subtable.
func buildCmap(mapping map[rune]int) []byte {
	codes := make([]int, 0, len(mapping))
	for r := range mapping {
		if r >= 0 && r < 0xFFFF {
			codes = append(codes, int(r))
		}
	}
	sort.Ints(codes)

	var segs []cmapSegment
	for _, c := range codes {
		gid := mapping[rune(c)]
		delta := uint16(gid - c)
		if n := len(segs); n > 0 && int(segs[n-1].end)+1 == c && segs[n-1].delta == delta {
			segs[n-1].end = uint16(c)
			continue
		}
		segs = append(segs, cmapSegment{start: uint16(c), end: uint16(c), delta: delta})
	}
	segs = append(segs, cmapSegment{start: 0xFFFF, end: 0xFFFF, delta: 1})

	segCount := len(segs)
	entrySelector := 0
	for 1<<(entrySelector+1) <= segCount {
		entrySelector++
	}
	searchRange := 2 * (1 << entrySelector)
	length := 16 + 8*segCount

	sub := make([]byte, length)
	be := binary.BigEndian
	be.PutUint16(sub[0:], 4)
	be.PutUint16(sub[2:], uint16(length))
	be.PutUint16(sub[6:], uint16(2*segCount))
	be.PutUint16(sub[8:], uint16(searchRange))
	be.PutUint16(sub[10:], uint16(entrySelector))
	be.PutUint16(sub[12:], uint16(2*segCount-searchRange))
	endOff := 14
	startOff := endOff + 2*segCount + 2
	deltaOff := startOff + 2*segCount
	for i, s := range segs {
		be.PutUint16(sub[endOff+2*i:], s.end)
		be.PutUint16(sub[startOff+2*i:], s.start)
		be.PutUint16(sub[deltaOff+2*i:], s.delta)
		// idRangeOffset stays zero.
	}

	out := make([]byte, 12, 12+length)
	be.PutUint16(out[0:], 0) // version
	be.PutUint16(out[2:], 1) // numTables
	be.PutUint16(out[4:], 3) // platform Windows
	be.PutUint16(out[6:], 1) // encoding Unicode BMP
	be.PutUint32(out[8:], 12)
	return append(out, sub...)
}

type ttWriter struct {
	tables []tableData
}

type tableData struct {
	tag  string
	data []byte
}

func (w *ttWriter) AddTable(tag string, data []byte) {
	w.tables = append(w.tables, tableData{tag, data})
}

// Bytes lays out the sfnt with a sorted table directory, 4-byte aligned
// tables, per-table checksums and the head checksum adjustment.
func (w *ttWriter) Bytes() []byte {
	sort.Slice(w.tables, func(i, j int) bool { return w.tables[i].tag < w.tables[j].tag })

	numTables := len(w.tables)
	entrySelector := 0
	for (1 << (entrySelector + 1)) <= numTables {
		entrySelector++
	}
	searchRange := (1 << entrySelector) * 16

	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x01, 0x00, 0x00})
	binary.Write(&buf, binary.BigEndian, uint16(numTables))
	binary.Write(&buf, binary.BigEndian, uint16(searchRange))
	binary.Write(&buf, binary.BigEndian, uint16(entrySelector))
	binary.Write(&buf, binary.BigEndian, uint16(numTables*16-searchRange))

	headOffset := -1
	offset := 12 + 16*numTables
	for _, t := range w.tables {
		data := t.data
		if t.tag == "head" {
			data = append([]byte(nil), data...)
			binary.BigEndian.PutUint32(data[8:], 0)
			headOffset = offset
		}
		buf.WriteString(t.tag)
		binary.Write(&buf, binary.BigEndian, calcChecksum(data))
		binary.Write(&buf, binary.BigEndian, uint32(offset))
		binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		offset += (len(data) + 3) &^ 3
	}
	for _, t := range w.tables {
		data := t.data
		if t.tag == "head" {
			data = append([]byte(nil), data...)
			binary.BigEndian.PutUint32(data[8:], 0)
		}
		buf.Write(data)
		for buf.Len()%4 != 0 {
			buf.WriteByte(0)
		}
	}

	out := buf.Bytes()
	if headOffset >= 0 {
		binary.BigEndian.PutUint32(out[headOffset+8:], 0xB1B0AFBA-calcChecksum(out))
	}
	return out
}

func calcChecksum(data []byte) uint32 {
	var sum uint32
	for i := 0; i < len(data); i += 4 {
		var word [4]byte
		copy(word[:], data[i:])
		sum += binary.BigEndian.Uint32(word[:])
	}
	return sum
}
