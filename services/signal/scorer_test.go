package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smcengine/services/candles"
	"smcengine/services/config"
	"smcengine/services/structure"
	"smcengine/services/zones"
)

func scorerCfg() config.ScorerConfig {
	return config.Default().Scorer
}

// fullLongSnapshot has every bullish predicate satisfied: macro and
// intermediate bias up, bar trading into a fresh bullish zone, recent
// sell-side sweep, price in discount.
func fullLongSnapshot() Snapshot {
	return Snapshot{
		Instrument:       "EURUSD",
		Bar:              candles.Candle{Timestamp: 1_700_000_000_000, Open: 1.0850, High: 1.0862, Low: 1.0838, Close: 1.0858},
		ATR:              0.0010,
		MacroBias:        structure.Bullish,
		IntermediateBias: structure.Bullish,
		BullZones: []*zones.Zone{{
			Kind: zones.KindOrderBlock, Polarity: zones.Bullish,
			Low: 1.0835, High: 1.0845, Status: zones.StatusFresh,
		}},
		SweptBullish: true,
		Range:        zones.RangePosition{Pos: 0.25, Discount: true},
		RangeOK:      true,
	}
}

func TestAllPredicatesScoreExactlyHundred(t *testing.T) {
	s := NewScorer(scorerCfg(), nil)
	sig := s.Evaluate(fullLongSnapshot())
	require.NotNil(t, sig)
	assert.Equal(t, Long, sig.Direction)
	assert.Equal(t, 100.0, sig.Confidence, "normalized maximum must be exactly 100, not a clamped raw sum")
	assert.Equal(t, 1.0, sig.SizeMultiplier)
	assert.Contains(t, sig.Reasons, "htf_aligned")
	assert.Contains(t, sig.Reasons, "liquidity_swept")
}

func TestConfidenceAlwaysWithinBounds(t *testing.T) {
	s := NewScorer(scorerCfg(), nil)
	snap := fullLongSnapshot()

	variants := []func(*Snapshot){
		func(sn *Snapshot) {},
		func(sn *Snapshot) { sn.SweptBullish = false },
		func(sn *Snapshot) { sn.IntermediateBias = structure.Ranging },
		func(sn *Snapshot) { sn.RangeOK = false },
	}
	for _, mutate := range variants {
		v := snap
		mutate(&v)
		if sig := s.Evaluate(v); sig != nil {
			assert.GreaterOrEqual(t, sig.Confidence, 0.0)
			assert.LessOrEqual(t, sig.Confidence, 100.0)
		}
	}
}

func TestBelowThresholdYieldsNoSignal(t *testing.T) {
	cfg := scorerCfg() // MinConfidence 70
	s := NewScorer(cfg, nil)

	snap := fullLongSnapshot()
	snap.MacroBias = structure.Ranging
	snap.IntermediateBias = structure.Ranging
	snap.SweptBullish = false
	// Zone 20 + range 10 = 30 of 100: well under threshold.
	assert.Nil(t, s.Evaluate(snap))
}

func TestNoQualifyingZoneNoSignal(t *testing.T) {
	s := NewScorer(scorerCfg(), nil)
	snap := fullLongSnapshot()
	// Zone far below the bar: never touched.
	snap.BullZones[0].Low, snap.BullZones[0].High = 1.0700, 1.0710
	assert.Nil(t, s.Evaluate(snap))
}

func TestAmbiguousOppositeZonesSuppressed(t *testing.T) {
	s := NewScorer(scorerCfg(), nil)
	snap := fullLongSnapshot()
	snap.BearZones = []*zones.Zone{{
		Kind: zones.KindGap, Polarity: zones.Bearish,
		Low: 1.0855, High: 1.0865, Status: zones.StatusFresh,
	}}
	assert.Nil(t, s.Evaluate(snap), "opposite qualifying zones on one bar is ambiguity, not opportunity")
}

func TestCounterTrendRequiresSweepAndDeepRange(t *testing.T) {
	s := NewScorer(scorerCfg(), nil)

	base := fullLongSnapshot()
	base.MacroBias = structure.Bearish // long against the macro trend
	base.Range = zones.RangePosition{Pos: 0.25, Discount: true}

	// Aligned MTF + zone + sweep + range = 70: meets threshold, but the
	// counter-trend gate still applies.
	noSweep := base
	noSweep.SweptBullish = false
	assert.Nil(t, s.Evaluate(noSweep))

	shallow := base
	shallow.Range = zones.RangePosition{Pos: 0.45, Discount: true} // not deep enough
	assert.Nil(t, s.Evaluate(shallow))

	deep := base
	deep.Range = zones.RangePosition{Pos: 0.20, Discount: true}
	sig := s.Evaluate(deep)
	require.NotNil(t, sig)
	assert.Equal(t, 0.5, sig.SizeMultiplier, "counter-trend trades run at half size")
	assert.Contains(t, sig.Reasons, "counter_trend")
}

func TestStopAndTargetDerivation(t *testing.T) {
	cfg := scorerCfg() // StopBufferATR 0.5, MinRewardMult 2.0
	s := NewScorer(cfg, nil)

	snap := fullLongSnapshot()
	sig := s.Evaluate(snap)
	require.NotNil(t, sig)

	// Stop: zone low 1.0835 minus 0.5*ATR(0.0010) = 1.0830.
	assert.InDelta(t, 1.0830, sig.Stop, 1e-9)
	// No resting liquidity: fallback 2R above entry 1.0858, risk 0.0028.
	assert.InDelta(t, 1.0858+2*0.0028, sig.Target, 1e-9)

	// A resting level beyond entry is the target, even inside the fallback
	// multiple: here 1.5R, short of the 2R fallback.
	snap.HasLiquidityAbove = true
	snap.LiquidityAbove = 1.0900
	sig = s.Evaluate(snap)
	require.NotNil(t, sig)
	assert.InDelta(t, 1.0900, sig.Target, 1e-9, "nearest liquidity wins over the reward multiple")

	// A level past the fallback is still taken as-is.
	snap.LiquidityAbove = 1.0930
	sig = s.Evaluate(snap)
	require.NotNil(t, sig)
	assert.InDelta(t, 1.0930, sig.Target, 1e-9)

	// A level inside one risk multiple is floored at 1R.
	snap.LiquidityAbove = 1.0870
	sig = s.Evaluate(snap)
	require.NotNil(t, sig)
	assert.InDelta(t, 1.0858+0.0028, sig.Target, 1e-9)
}

func TestShortMirror(t *testing.T) {
	s := NewScorer(scorerCfg(), nil)
	snap := Snapshot{
		Instrument:       "EURUSD",
		Bar:              candles.Candle{Timestamp: 1, Open: 1.0860, High: 1.0872, Low: 1.0848, Close: 1.0852},
		ATR:              0.0010,
		MacroBias:        structure.Bearish,
		IntermediateBias: structure.Bearish,
		BearZones: []*zones.Zone{{
			Kind: zones.KindOrderBlock, Polarity: zones.Bearish,
			Low: 1.0865, High: 1.0875, Status: zones.StatusTested,
		}},
		SweptBearish: true,
		Range:        zones.RangePosition{Pos: 0.85, Premium: true},
		RangeOK:      true,
	}
	sig := s.Evaluate(snap)
	require.NotNil(t, sig)
	assert.Equal(t, Short, sig.Direction)
	assert.Equal(t, 100.0, sig.Confidence)
	assert.Greater(t, sig.Stop, sig.Entry)
	assert.Less(t, sig.Target, sig.Entry)

	// Resting liquidity below entry is the short target: entry 1.0852, risk
	// 0.0028, level at 1.5R.
	snap.HasLiquidityBelow = true
	snap.LiquidityBelow = 1.0810
	sig = s.Evaluate(snap)
	require.NotNil(t, sig)
	assert.InDelta(t, 1.0810, sig.Target, 1e-9)
}

func TestEvaluateIsPure(t *testing.T) {
	s := NewScorer(scorerCfg(), nil)
	snap := fullLongSnapshot()
	a := s.Evaluate(snap)
	b := s.Evaluate(snap)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, a.Confidence, b.Confidence)
	assert.Equal(t, a.Stop, b.Stop)
	assert.Equal(t, a.Target, b.Target)
	assert.NotEqual(t, a.ID, b.ID, "each emission carries its own id")
}
