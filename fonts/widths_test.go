package fonts

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestWinAnsiRune(t *testing.T) {
	cases := map[byte]rune{
		'A':  'A',
		0x20: ' ',
		0x80: '€',
		0x85: '…',
		0x92: '’',
		0x96: '–',
		0x9F: 'Ÿ',
		0xE9: 'é',
		0x81: 0x81, // undefined in WinAnsi
	}
	for code, want := range cases {
		assert.Equal(t, want, WinAnsiRune(code), "code %#x", code)
	}
}

func TestEncodeWinAnsi(t *testing.T) {
	b, lost := EncodeWinAnsi("Öncek – 5 €")
	assert.Equal(t, []byte{0xD6, 'n', 'c', 'e', 'k', ' ', 0x96, ' ', '5', ' ', 0x80}, b)
	assert.Empty(t, lost)
	assert.Equal(t, "Öncek – 5 €", DecodeWinAnsi(b))

	b, lost = EncodeWinAnsi("Łukasz")
	assert.Equal(t, "?ukasz", string(b))
	assert.Equal(t, []rune{'Ł'}, lost)
}

func TestBuildWidths(t *testing.T) {
	m := NewMetrics(map[rune]int{'0': 1139, '1': 1139, '–': 1024}, 2048)
	got := BuildWidths(m, '/', '1')
	want := []Width{0, 556152344, 556152344}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("widths mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "556.152344", got[1].Object().String())
	assert.Equal(t, "0", got[0].Object().String())

	// Code 150 is the en dash in WinAnsi.
	dash := BuildWidths(m, 150, 150)
	assert.Equal(t, "500", dash[0].Object().String())
}

func TestBuildWidthsLength(t *testing.T) {
	m := digitMetrics()
	assert.Len(t, BuildWidths(m, 32, 126), 95)
	assert.Nil(t, BuildWidths(m, 10, 9))
}
