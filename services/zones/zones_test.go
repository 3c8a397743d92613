package zones

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smcengine/services/candles"
)

func bar(i int, o, h, l, c float64) candles.Candle {
	return candles.Candle{Timestamp: int64(i) * 900_000, Open: o, High: h, Low: l, Close: c, Volume: 100}
}

// upBars returns a steady 15-bar uptrend used as the backdrop fixture.
func upBars(n int, start float64) []candles.Candle {
	out := make([]candles.Candle, n)
	p := start
	for i := range out {
		out[i] = bar(i, p, p+0.6, p-0.2, p+0.5)
		p += 0.5
	}
	return out
}

func TestGapLifecycleFreshTestedInvalidated(t *testing.T) {
	d := NewGapDetector(GapConfig{MinGapSize: 0.5, MaxZonesPerSide: 10})

	// 15-bar uptrend with a three-bar imbalance carved in: bar 7 leaps so that
	// its low clears bar 5's high by more than the minimum size, and the bars
	// after it hold above the band.
	bars := upBars(8, 100)
	bars[5] = bar(5, 102.5, 103.0, 102.3, 102.9)
	bars[6] = bar(6, 102.9, 104.6, 102.8, 104.5)
	bars[7] = bar(7, 104.5, 105.2, 104.1, 105.0) // low 104.1 > high[5] 103.0
	for i := 8; i < 15; i++ {
		bars = append(bars, bar(i, 104.9, 105.5, 104.3, 105.1))
	}

	var z *Zone
	for i, b := range bars {
		if got := d.Update(b); got != nil {
			require.Nil(t, z, "only one gap expected")
			assert.Equal(t, 6, got.FormedAt, "formed at the middle bar")
			z = got
		}
		if i < 7 {
			require.Nil(t, z)
		}
	}
	require.NotNil(t, z)
	assert.Equal(t, KindGap, z.Kind)
	assert.Equal(t, Bullish, z.Polarity)
	assert.Equal(t, StatusFresh, z.Status)
	assert.InDelta(t, 103.0, z.Low, 1e-9)
	assert.InDelta(t, 104.1, z.High, 1e-9)

	// Bar trading 50% into the band: low at the midpoint 103.55.
	d.Update(bar(15, 105.0, 105.1, 103.55, 104.8))
	assert.Equal(t, StatusTested, z.Status)
	assert.InDelta(t, 50, z.FillPct, 1e-6)

	// Full close below the band invalidates.
	d.Update(bar(16, 104.8, 104.9, 102.5, 102.8))
	assert.Equal(t, StatusInvalidated, z.Status)
	assert.InDelta(t, 100, z.FillPct, 1e-9)
	assert.Empty(t, d.Active(Bullish))
}

func TestGapFlipsPolarityAfterReclaim(t *testing.T) {
	d := NewGapDetector(GapConfig{MinGapSize: 0.5, MaxZonesPerSide: 10})

	d.Update(bar(0, 100, 100.5, 99.8, 100.3))
	d.Update(bar(1, 100.3, 101.8, 100.2, 101.6))
	z := d.Update(bar(2, 101.6, 102.4, 101.2, 102.2)) // bullish gap (100.5, 101.2)
	require.NotNil(t, z)
	require.Equal(t, Bullish, z.Polarity)

	d.Update(bar(3, 102.2, 102.3, 100.1, 100.2)) // close below the band
	require.Equal(t, StatusInvalidated, z.Status)

	d.Update(bar(4, 100.2, 100.8, 100.0, 100.6)) // inside, no flip yet
	assert.Equal(t, StatusInvalidated, z.Status)

	d.Update(bar(5, 100.6, 101.6, 100.5, 101.5)) // close back above: reclaimed
	assert.Equal(t, StatusFlipped, z.Status)
	assert.Equal(t, Bearish, z.Polarity)
	require.Len(t, d.Active(Bearish), 1)
	assert.Empty(t, d.Active(Bullish))
}

func TestGapBelowMinimumSizeIgnored(t *testing.T) {
	d := NewGapDetector(GapConfig{MinGapSize: 2.0, MaxZonesPerSide: 10})
	d.Update(bar(0, 100, 100.5, 99.8, 100.3))
	d.Update(bar(1, 100.3, 101.8, 100.2, 101.6))
	assert.Nil(t, d.Update(bar(2, 101.6, 102.4, 101.2, 102.2)))
	assert.Empty(t, d.Active(Bullish))
}

func TestOrderBlockFormsOnImpulse(t *testing.T) {
	d := NewOrderBlockDetector(OrderBlockConfig{ImpulseRatio: 1.5, WickAllowanceATR: 0, MaxZonesPerSide: 10})

	d.Update(bar(0, 100, 100.4, 99.6, 100.1), 0.4)
	d.Update(bar(1, 100.1, 100.3, 99.5, 99.7), 0.4) // bearish block candidate, body 0.4
	// Impulse: bullish body 1.5 >= 1.5*0.4, closes above block high 100.3.
	z := d.Update(bar(2, 99.7, 101.4, 99.6, 101.2), 0.4)
	require.NotNil(t, z)
	assert.Equal(t, KindOrderBlock, z.Kind)
	assert.Equal(t, Bullish, z.Polarity)
	assert.Equal(t, 1, z.FormedAt)
	assert.InDelta(t, 99.5, z.Low, 1e-9)
	assert.InDelta(t, 100.3, z.High, 1e-9)
	assert.Equal(t, StatusFresh, z.Status)
}

func TestOrderBlockWeakImpulseIgnored(t *testing.T) {
	d := NewOrderBlockDetector(OrderBlockConfig{ImpulseRatio: 2.0, MaxZonesPerSide: 10})
	d.Update(bar(0, 100, 100.4, 99.6, 100.1), 0.4)
	d.Update(bar(1, 100.1, 100.3, 99.5, 99.7), 0.4)
	// Body 0.7 < 2.0*0.4: no block even though it closes above the high.
	assert.Nil(t, d.Update(bar(2, 99.7, 100.6, 99.6, 100.4), 0.4))
}

func TestOrderBlockTestedThenInvalidated(t *testing.T) {
	d := NewOrderBlockDetector(OrderBlockConfig{ImpulseRatio: 1.5, MaxZonesPerSide: 10})
	d.Update(bar(0, 100, 100.4, 99.6, 100.1), 0.4)
	d.Update(bar(1, 100.1, 100.3, 99.5, 99.7), 0.4)
	z := d.Update(bar(2, 99.7, 101.4, 99.6, 101.2), 0.4)
	require.NotNil(t, z)

	// Re-entry into the band tests the zone.
	d.Update(bar(3, 101.2, 101.3, 100.1, 100.9), 0.4)
	assert.Equal(t, StatusTested, z.Status)
	assert.Equal(t, 1, z.Tests)

	// Full close below the band kills it.
	d.Update(bar(4, 100.9, 101.0, 99.0, 99.2), 0.4)
	assert.Equal(t, StatusInvalidated, z.Status)
	assert.Empty(t, d.Active(Bullish))
}

func TestOrderBlockWickThroughStillTests(t *testing.T) {
	d := NewOrderBlockDetector(OrderBlockConfig{ImpulseRatio: 1.5, MaxZonesPerSide: 10})
	d.Update(bar(0, 100, 100.4, 99.6, 100.1), 0.4)
	d.Update(bar(1, 100.1, 100.3, 99.5, 99.7), 0.4)
	z := d.Update(bar(2, 99.7, 101.4, 99.6, 101.2), 0.4) // band [99.5, 100.3]
	require.NotNil(t, z)

	// Wick pierces below the whole band but the close comes back inside:
	// that is a test, not a miss and not an invalidation.
	d.Update(bar(3, 101.2, 101.3, 99.0, 100.0), 0.4)
	assert.Equal(t, StatusTested, z.Status)
	assert.Equal(t, 1, z.Tests)

	// The bearish mirror: block above, wick through the top, close inside.
	db := NewOrderBlockDetector(OrderBlockConfig{ImpulseRatio: 1.5, MaxZonesPerSide: 10})
	db.Update(bar(0, 100, 100.4, 99.6, 100.3), 0.4)
	db.Update(bar(1, 100.3, 100.8, 100.2, 100.6), 0.4)
	zb := db.Update(bar(2, 100.6, 100.7, 99.2, 99.4), 0.4) // band [100.2, 100.8]
	require.NotNil(t, zb)
	require.Equal(t, Bearish, zb.Polarity)

	db.Update(bar(3, 99.4, 101.2, 99.3, 100.5), 0.4)
	assert.Equal(t, StatusTested, zb.Status)
}

func TestOrderBlockBookEvictsOldest(t *testing.T) {
	d := NewOrderBlockDetector(OrderBlockConfig{ImpulseRatio: 1.2, MaxZonesPerSide: 2})
	base := 100.0
	formed := 0
	for i := 0; i < 12; i += 3 {
		d.Update(bar(i, base, base+0.4, base-0.4, base+0.1), 0.4)
		d.Update(bar(i+1, base+0.1, base+0.3, base-0.5, base-0.3), 0.4)
		if z := d.Update(bar(i+2, base-0.3, base+1.4, base-0.4, base+1.2), 0.4); z != nil {
			formed++
		}
		base += 1.2
	}
	assert.Equal(t, 4, formed)
	assert.LessOrEqual(t, len(d.Active(Bullish)), 2)
}

func TestSweepOfPreviousSessionLow(t *testing.T) {
	d := NewSweepDetector(SweepConfig{EqualLevelTolATR: 0.25, EqualLevelWindow: 20})
	atr := 0.4 // tol = 0.1

	day := func(dayIdx, slot int, o, h, l, c float64) candles.Candle {
		return candles.Candle{
			Timestamp: int64(dayIdx)*dayMs + int64(slot)*900_000,
			Open:      o, High: h, Low: l, Close: c, Volume: 100,
		}
	}

	// Day 0 establishes a session low at 99.0.
	require.Nil(t, d.Update(day(0, 0, 100, 100.5, 99.5, 100.2), atr))
	require.Nil(t, d.Update(day(0, 1, 100.2, 100.8, 99.0, 100.4), atr))

	// Day 1: previous session's extremes become resting levels.
	require.Nil(t, d.Update(day(1, 0, 100.4, 100.9, 99.6, 100.6), atr))

	// Wick pierces 99.0 by more than tolerance, close returns above: sweep.
	sw := d.Update(day(1, 1, 100.6, 100.7, 98.8, 99.4), atr)
	require.NotNil(t, sw)
	assert.Equal(t, Bullish, sw.Polarity)
	assert.InDelta(t, 99.0, sw.Level.Low, 1e-9)
	assert.True(t, d.SweptWithin(0, Bullish))
	assert.False(t, d.SweptWithin(0, Bearish))

	// A swept level never fires again.
	assert.Nil(t, d.Update(day(1, 2, 99.4, 99.6, 98.7, 99.3), atr))
}

func TestSweepRequiresCloseBack(t *testing.T) {
	d := NewSweepDetector(SweepConfig{EqualLevelTolATR: 0.25, EqualLevelWindow: 20})
	atr := 0.4

	d.Update(candles.Candle{Timestamp: 0, Open: 100, High: 100.5, Low: 99.0, Close: 100.2, Volume: 1}, atr)
	d.Update(candles.Candle{Timestamp: dayMs, Open: 100.2, High: 100.6, Low: 99.8, Close: 100.3, Volume: 1}, atr)

	// Breaks below the prior-day low but closes below it too: a breakout,
	// not a sweep.
	sw := d.Update(candles.Candle{Timestamp: dayMs + 900_000, Open: 100.3, High: 100.4, Low: 98.5, Close: 98.8, Volume: 1}, atr)
	assert.Nil(t, sw)
}

func TestEqualHighsFormLevelAndNearestUnswept(t *testing.T) {
	d := NewSweepDetector(SweepConfig{EqualLevelTolATR: 0.25, EqualLevelWindow: 20})
	atr := 0.4 // tol = 0.1

	d.Update(bar(0, 100, 101.00, 99.5, 100.4), atr)
	d.Update(bar(1, 100.4, 100.6, 99.8, 100.2), atr)
	d.Update(bar(2, 100.2, 101.05, 99.9, 100.5), atr) // equal high with bar 0

	levels := d.Levels(Bearish)
	require.NotEmpty(t, levels)
	assert.InDelta(t, 101.05, levels[0].High, 1e-9)

	tgt, ok := d.NearestUnswept(100.5, Bullish)
	require.True(t, ok)
	assert.InDelta(t, 101.05, tgt, 1e-9)

	_, ok = d.NearestUnswept(100.5, Bearish)
	assert.False(t, ok, "no low-side level below price yet")
}

func TestRangePosition(t *testing.T) {
	cfg := RangeConfig{BuyThreshold: 0.5, SellThreshold: 0.5, OptimalBandWidth: 0.21}

	rp, ok := Position(100.0, 99.0, 101.0, cfg)
	require.True(t, ok)
	assert.InDelta(t, 0.5, rp.Pos, 1e-9)
	assert.False(t, rp.Discount)
	assert.False(t, rp.Premium)

	rp, _ = Position(99.3, 99.0, 101.0, cfg)
	assert.True(t, rp.Discount)
	assert.True(t, rp.Optimal, "0.15 is inside the deep-discount band")

	rp, _ = Position(99.8, 99.0, 101.0, cfg)
	assert.True(t, rp.Discount)
	assert.False(t, rp.Optimal)

	rp, _ = Position(100.9, 99.0, 101.0, cfg)
	assert.True(t, rp.Premium)
	assert.True(t, rp.Optimal)

	// Overshoot clamps rather than erroring.
	rp, _ = Position(102.0, 99.0, 101.0, cfg)
	assert.Equal(t, 1.0, rp.Pos)
	assert.True(t, rp.Premium)

	_, ok = Position(100, 101, 101, cfg)
	assert.False(t, ok, "degenerate range")
}

func TestZoneStatusRegressionPanics(t *testing.T) {
	z := &Zone{Status: StatusInvalidated}
	assert.Panics(t, func() { z.advance(StatusTested) })

	z2 := &Zone{Status: StatusFresh}
	assert.Panics(t, func() { z2.advance(StatusFlipped) }, "flip only from invalidated")
}
