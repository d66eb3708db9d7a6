package editor_test

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/bookingpdf/contentstream"
	"github.com/wudi/bookingpdf/contentstream/editor"
	"github.com/wudi/bookingpdf/fonts"
)

const page = `BT
/TT3 1 Tf
9 0 0 9 40 760 Tm
(Ref 0751)Tj
(0751)Tj
/TT13 1 Tf
7.5 0 0 7.5 351.0125 486.6125 Tm
[(MAR)12 (CH)]TJ
-0.417 -1.25 Td
(Monday)Tj
/TT0 1 Tf
19.5 0 0 19.5 354.1875 498.1125 Tm
(30)Tj
19.5 0 0 19.5 441.7625 498.1125 Tm
(7)Tj
/TT0 1 Tf
7.5 0 0 7.5 436.8625 486.6125 Tm
(APRIL)Tj
/TT13 1 Tf
-0.3 -1.25 Td
(Tuesday)Tj
/TT3 1 Tf
9 0 0 9 40 300 Tm
[(PIN C)-5 (ode:)]TJ
(0751)Tj
[( CA)12 (GRI ONCEK)]TJ
(on 30 March 2026. If you cancel from 12:00 on)Tj
0 -1.2 TD
(You'll love it \(really\))Tj
(1,234 refund.)Tj
ET
`

func showTexts(t *testing.T, data []byte) []string {
	t.Helper()
	ops, err := contentstream.Tokenize(data)
	require.NoError(t, err)
	var out []string
	for _, op := range ops {
		if op.IsShow() {
			out = append(out, string(op.ShowText()))
		}
	}
	return out
}

func TestReplacePositionedCentersDay(t *testing.T) {
	bold := fonts.NewMetrics(map[rune]int{'7': 556}, 1000)
	x := bold.CenteredX("7", 19.5, 364.9)

	e := editor.New([]byte(page))
	require.True(t, e.ReplacePositioned("checkin_day", "354.1875", "498.1125", "30", "7", x))
	assert.Empty(t, e.Warnings())

	want := strings.Replace(page, "19.5 0 0 19.5 354.1875 498.1125 Tm\n(30)Tj", "19.5 0 0 19.5 359.4790 498.1125 Tm\n(7)Tj", 1)
	assert.Equal(t, want, string(e.Bytes()))
}

func TestReplaceSimpleRefundLine(t *testing.T) {
	e := editor.New([]byte(page))
	old := "on 30 March 2026. If you cancel from 12:00 on"
	require.True(t, e.ReplaceSimple("refund_line2", old, "on 5 June 2026. If you cancel from 12:00 on", ""))

	want := strings.Replace(page, "("+old+")Tj", "(on 5 June 2026. If you cancel from 12:00 on)Tj", 1)
	assert.Equal(t, want, string(e.Bytes()))
	assert.Contains(t, string(e.Bytes()), `(You'll love it \(really\))Tj`)
}

func TestReplaceSimpleContext(t *testing.T) {
	e := editor.New([]byte(page))
	require.True(t, e.ReplaceSimple("pin", "0751", "9911", "PIN C"))
	got := string(e.Bytes())
	assert.Contains(t, got, "(Ref 0751)Tj\n(0751)Tj")
	assert.Contains(t, got, "[(PIN C)-5 (ode:)]TJ\n(9911)Tj")
	assert.Empty(t, e.Warnings())

	// An absent context falls back to the first occurrence and says so.
	e = editor.New([]byte(page))
	require.True(t, e.ReplaceSimple("pin", "0751", "9911", "no such text"))
	assert.Contains(t, string(e.Bytes()), "(Ref 0751)Tj\n(9911)Tj")
	require.Len(t, e.Warnings(), 1)
	assert.Equal(t, editor.NoAnchor, e.Warnings()[0].Kind)
}

func winAnsi(t *testing.T, s string) []byte {
	t.Helper()
	b, lost := fonts.EncodeWinAnsi(s)
	require.Empty(t, lost)
	return b
}

func TestNonASCIIContextAndPattern(t *testing.T) {
	e := editor.New(winAnsi(t, "BT [(ÖN)12 (CEK)]TJ (0751)Tj (PIN Kodu)Tj (Ödeme)Tj (0751)Tj ET"))

	re := regexp.MustCompile(`\[\(ÖN\)\d+\s*\(CEK\)\]TJ`)
	require.True(t, e.ReplaceArrayed("guest_name", re, " ÖZGE", "", 0, false))
	require.True(t, e.ReplaceSimple("pin", "0751", "9911", "(Ödeme)"))

	assert.Equal(t, winAnsi(t, "BT ( ÖZGE)Tj (0751)Tj (PIN Kodu)Tj (Ödeme)Tj (9911)Tj ET"), e.Bytes())
	assert.Empty(t, e.Warnings())
}

func TestReplaceArrayedGuestNameEscapes(t *testing.T) {
	name := " O'BRIEN (JR)"
	e := editor.New([]byte(page))
	re := regexp.MustCompile(`\[\(\s*CA\)\d+\s*\(GRI ONCEK\)\]TJ`)
	require.True(t, e.ReplaceArrayed("guest_name", re, name, "", 0, false))

	assert.Contains(t, string(e.Bytes()), `( O'BRIEN \(JR\))Tj`)
	assert.Contains(t, showTexts(t, e.Bytes()), name)
	assert.Empty(t, e.Warnings())
}

func TestReplaceArrayedCentersMonth(t *testing.T) {
	e := editor.New([]byte(page))
	re := regexp.MustCompile(`\[\(MAR\)\d+\s*\(CH\)\]TJ`)
	require.True(t, e.ReplaceArrayed("checkin_month", re, "JUNE", "486.6125", 355.25, true))

	want := strings.Replace(page, "7.5 0 0 7.5 351.0125 486.6125 Tm\n[(MAR)12 (CH)]TJ", "7.5 0 0 7.5 355.2500 486.6125 Tm\n(JUNE)Tj", 1)
	assert.Equal(t, want, string(e.Bytes()))
}

func TestReplaceArrayedKeepsTextWhenAnchorSearchFails(t *testing.T) {
	src := "7.5 0 0 7.5 351.0125 486.6125 Tm [(MAR)12 (CH)]TJ [(x) Tj"
	e := editor.New([]byte(src))
	re := regexp.MustCompile(`\[\(MAR\)\d+\s*\(CH\)\]TJ`)
	require.True(t, e.ReplaceArrayed("checkin_month", re, "JUNE", "486.6125", 355.25, true))

	assert.Equal(t, "7.5 0 0 7.5 351.0125 486.6125 Tm (JUNE)Tj [(x) Tj", string(e.Bytes()))
	require.Len(t, e.Warnings(), 1)
	assert.Equal(t, editor.Syntax, e.Warnings()[0].Kind)
}

func TestReplaceWeekdayUsesNearestTd(t *testing.T) {
	src := "BT 7.5 0 0 7.5 351.0125 486.6125 Tm (MARCH)Tj 0 -2 Td 5 0 Td (Monday)Tj ET"
	e := editor.New([]byte(src))
	require.True(t, e.ReplaceWeekday("checkin_weekday", "Monday", "Friday", "486.6125", 360, 7.5))
	assert.Equal(t, "BT 7.5 0 0 7.5 351.0125 486.6125 Tm (MARCH)Tj 0 -2 Td 1.198 0 Td (Friday)Tj ET", string(e.Bytes()))
	assert.Empty(t, e.Warnings())
}

func TestReplaceWeekday(t *testing.T) {
	e := editor.New([]byte(page))
	require.True(t, e.ReplaceWeekday("checkin_weekday", "Monday", "Friday", "486.6125", 360, 7.5))
	// (360 - 351.0125) / 7.5
	assert.Contains(t, string(e.Bytes()), "1.198 -1.25 Td\n(Friday)Tj")

	require.True(t, e.ReplaceWeekday("checkout_weekday", "Tuesday", "Sunday", "486.6125", 440, 7.5))
	// The nearest preceding anchor is the APRIL Tm at 436.8625.
	assert.Contains(t, string(e.Bytes()), "0.418 -1.25 Td\n(Sunday)Tj")
	assert.Empty(t, e.Warnings())
}

func TestSameTextIsByteIdentical(t *testing.T) {
	e := editor.New([]byte(page))
	require.True(t, e.ReplacePositioned("checkin_day", "354.1875", "498.1125", "30", "30", 354.1875))
	require.True(t, e.ReplaceSimple("refund_line2", "on 30 March 2026. If you cancel from 12:00 on", "on 30 March 2026. If you cancel from 12:00 on", ""))
	require.True(t, e.ReplaceWeekday("checkin_weekday", "Monday", "Monday", "486.6125", 351.0125-0.417*7.5, 7.5))
	assert.Equal(t, page, string(e.Bytes()))
}

func TestUnmatchedRulesWarn(t *testing.T) {
	e := editor.New([]byte(page))
	assert.False(t, e.ReplaceSimple("num_guests", "4 adults", "2 adults", ""))
	assert.False(t, e.ReplaceArrayed("price_base_tl", regexp.MustCompile(`\[\(2\)-?\d*\s*\(1,727\)\]TJ`), "100", "", 0, false))
	assert.False(t, e.ReplacePositioned("nights", "539.475", "498.1125", "8", "3", 540))
	assert.False(t, e.ReplaceWeekday("checkout_weekday", "Saturday", "Sunday", "486.6125", 440, 7.5))
	assert.Equal(t, page, string(e.Bytes()))

	ws := e.Warnings()
	require.Len(t, ws, 5)
	assert.Equal(t, editor.Warning{Field: "num_guests", Kind: editor.NotFound, Message: "(4 adults)Tj not found"}, ws[0])
	assert.Equal(t, editor.NotFound, ws[1].Kind)
	// Positioned falls back to a plain replacement, which also fails.
	assert.Equal(t, editor.NoAnchor, ws[2].Kind)
	assert.Equal(t, editor.NotFound, ws[3].Kind)
	assert.Equal(t, "checkout_weekday", ws[4].Field)
}

func TestMissingAnchorStillReplacesText(t *testing.T) {
	e := editor.New([]byte(page))
	require.True(t, e.ReplacePositioned("checkout_day", "999", "498.1125", "7", "12", 440))
	assert.Contains(t, string(e.Bytes()), "441.7625 498.1125 Tm\n(12)Tj")
	require.Len(t, e.Warnings(), 1)
	assert.Equal(t, editor.NoAnchor, e.Warnings()[0].Kind)
}

func TestUnencodableRunes(t *testing.T) {
	e := editor.New([]byte(page))
	require.True(t, e.ReplaceSimple("pin", "0751", "Łódź", "PIN C"))
	assert.Contains(t, string(e.Bytes()), "(?\xf3d?)Tj")
	require.Len(t, e.Warnings(), 1)
	assert.Equal(t, editor.Unencodable, e.Warnings()[0].Kind)
}

func TestReplaceRefundAmount(t *testing.T) {
	e := editor.New([]byte(page))
	require.True(t, e.ReplaceRefundAmount("refund_tl_amount", "2,500"))
	assert.Contains(t, string(e.Bytes()), "(2,500 refund.)Tj")

	e = editor.New([]byte("BT (refund.)Tj ET"))
	assert.False(t, e.ReplaceRefundAmount("refund_tl_amount", "1"))
}

func TestSyntaxErrorIsReported(t *testing.T) {
	e := editor.New([]byte("BT [(a) Tj ET"))
	assert.False(t, e.ReplaceSimple("pin", "a", "b", ""))
	require.Len(t, e.Warnings(), 1)
	assert.Equal(t, editor.Syntax, e.Warnings()[0].Kind)
}
