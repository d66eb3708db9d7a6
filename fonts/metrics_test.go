package fonts

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

func digitMetrics() *Metrics {
	adv := map[rune]int{' ': 278}
	for r := '0'; r <= '9'; r++ {
		adv[r] = 556
	}
	return NewMetrics(adv, 1000)
}

func TestCenteredXDigit(t *testing.T) {
	m := digitMetrics()
	x := m.CenteredX("7", 19.5, 364.9)
	// 364.9 - 0.556*19.5/2
	assert.InDelta(t, 359.4790, x, 1e-9)

	x = m.CenteredX("30", 19.5, 364.9)
	assert.InDelta(t, 364.9-2*0.556*19.5/2, x, 1e-9)
}

func TestTextWidthMissingGlyphsAreZero(t *testing.T) {
	m := digitMetrics()
	assert.Equal(t, 0.0, m.TextWidth("ÅÄ", 12))
	assert.Equal(t, 0.0, m.TextWidth("", 12))
	assert.InDelta(t, m.TextWidth("12", 10), m.TextWidth("1Ä2", 10), 1e-12)
	assert.Equal(t, []rune{'Ä'}, m.Missing("1Ä2Ä"))
}

func TestLoadMetricsGoRegular(t *testing.T) {
	m, err := LoadMetrics(goregular.TTF)
	require.NoError(t, err)
	assert.Equal(t, 2048, m.UnitsPerEm())

	assert.Greater(t, m.Advance('M'), m.Advance('i'))
	assert.Equal(t, 0, m.Advance('\U0001F600'))
	assert.True(t, m.HasGlyph('A'))
	assert.False(t, m.HasGlyph('\U0001F600'))

	want := float64(m.Advance('A')+m.Advance('B')) / 2048 * 7.5
	assert.InDelta(t, want, m.TextWidth("AB", 7.5), 1e-12)
}

func TestLoadMetricsRejectsGarbage(t *testing.T) {
	_, err := LoadMetrics(nil)
	assert.Error(t, err)
	_, err = LoadMetrics([]byte("definitely not a font"))
	assert.Error(t, err)
}

func TestMetricsConcurrentUse(t *testing.T) {
	m, err := LoadMetrics(gobold.TTF)
	require.NoError(t, err)
	want := m.TextWidth("TUESDAY 7 APRIL", 19.5)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if got := m.TextWidth("TUESDAY 7 APRIL", 19.5); math.Abs(got-want) > 1e-12 {
					t.Errorf("width changed under concurrency: %v != %v", got, want)
					return
				}
			}
		}()
	}
	wg.Wait()
}
