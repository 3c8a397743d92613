// Package signal fuses structure, zone, sweep and range reads into a single
// directional trade signal with a confidence score.
package signal

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"smcengine/services/candles"
	"smcengine/services/config"
	"smcengine/services/structure"
	"smcengine/services/zones"
)

// Direction of a prospective trade.
type Direction int

const (
	Long Direction = iota
	Short
)

func (d Direction) String() string {
	if d == Short {
		return "short"
	}
	return "long"
}

// Signal is an immutable trade instruction. Confidence is in [0,100]; a
// score with every positive predicate satisfied is exactly 100.
type Signal struct {
	ID             uuid.UUID
	Instrument     string
	Direction      Direction
	Entry          float64
	Stop           float64
	Target         float64
	Confidence     float64
	SizeMultiplier float64
	Reasons        []string
	BarTime        int64
}

// Snapshot is everything the scorer may look at for one bar. It is assembled
// by the replay engine from the per-timeframe analyzers and detectors; the
// scorer itself holds no market state.
type Snapshot struct {
	Instrument string
	Bar        candles.Candle
	ATR        float64

	MacroBias        structure.Bias
	IntermediateBias structure.Bias

	BullZones []*zones.Zone
	BearZones []*zones.Zone

	SweptBullish bool
	SweptBearish bool

	Range   zones.RangePosition
	RangeOK bool

	// Nearest unswept liquidity beyond price on each side, when present.
	LiquidityAbove    float64
	HasLiquidityAbove bool
	LiquidityBelow    float64
	HasLiquidityBelow bool
}

// Scorer applies the weighted confluence rules. It is stateless: the caller
// guarantees it is only consulted while flat on the instrument.
type Scorer struct {
	cfg config.ScorerConfig
	log *zap.Logger
}

// NewScorer builds a scorer from validated config.
func NewScorer(cfg config.ScorerConfig, log *zap.Logger) *Scorer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scorer{cfg: cfg, log: log}
}

// Evaluate scores both directions against the snapshot and returns a signal
// when exactly one side clears the confidence threshold. A bar whose zones
// qualify in both directions is ambiguous and yields no signal.
func (s *Scorer) Evaluate(snap Snapshot) *Signal {
	bullZone := s.touchedZone(snap.Bar, snap.BullZones)
	bearZone := s.touchedZone(snap.Bar, snap.BearZones)
	if bullZone != nil && bearZone != nil {
		s.log.Debug("ambiguous zones, no signal",
			zap.String("instrument", snap.Instrument),
			zap.Int64("bar", snap.Bar.Timestamp))
		return nil
	}

	long := s.score(snap, Long, bullZone)
	short := s.score(snap, Short, bearZone)

	switch {
	case long != nil && short != nil:
		return nil
	case long != nil:
		return long
	case short != nil:
		return short
	}
	return nil
}

// touchedZone returns the first active zone the bar traded into.
func (s *Scorer) touchedZone(c candles.Candle, zs []*zones.Zone) *zones.Zone {
	for _, z := range zs {
		if z.Active() && c.Low <= z.High && c.High >= z.Low {
			return z
		}
	}
	return nil
}

func (s *Scorer) score(snap Snapshot, dir Direction, zone *zones.Zone) *Signal {
	// A qualifying zone is a hard requirement: it anchors entry and stop.
	if zone == nil {
		return nil
	}

	wantBias := structure.Bullish
	swept := snap.SweptBullish
	positioned := snap.RangeOK && snap.Range.Discount
	if dir == Short {
		wantBias = structure.Bearish
		swept = snap.SweptBearish
		positioned = snap.RangeOK && snap.Range.Premium
	}

	total := s.cfg.WeightHTFAlign + s.cfg.WeightMTFAlign + s.cfg.WeightZone +
		s.cfg.WeightSweep + s.cfg.WeightRangePos
	if total <= 0 {
		return nil
	}

	raw := s.cfg.WeightZone
	reasons := []string{"zone_" + zone.Status.String()}
	if snap.MacroBias == wantBias {
		raw += s.cfg.WeightHTFAlign
		reasons = append(reasons, "htf_aligned")
	}
	if snap.IntermediateBias == wantBias {
		raw += s.cfg.WeightMTFAlign
		reasons = append(reasons, "mtf_aligned")
	}
	if swept {
		raw += s.cfg.WeightSweep
		reasons = append(reasons, "liquidity_swept")
	}
	if positioned {
		raw += s.cfg.WeightRangePos
		if dir == Long {
			reasons = append(reasons, "discount")
		} else {
			reasons = append(reasons, "premium")
		}
	}

	// Normalize once so all predicates true is exactly 100. Raw sums are
	// never clamped to an arbitrary ceiling.
	confidence := float64(raw) / float64(total) * 100
	if confidence < s.cfg.MinConfidence {
		return nil
	}

	sizeMult := 1.0
	if counterTrend(snap.MacroBias, wantBias) {
		// Against the macro trend only with a sweep and a deep range read.
		deep := snap.RangeOK && snap.Range.Pos <= s.cfg.DeepDiscountMax
		if dir == Short {
			deep = snap.RangeOK && snap.Range.Pos >= s.cfg.DeepPremiumMin
		}
		if !swept || !deep {
			return nil
		}
		sizeMult = 0.5
		reasons = append(reasons, "counter_trend")
	}

	entry := snap.Bar.Close
	stop, target, ok := s.levels(snap, dir, zone, entry)
	if !ok {
		return nil
	}

	sig := &Signal{
		ID:             uuid.New(),
		Instrument:     snap.Instrument,
		Direction:      dir,
		Entry:          entry,
		Stop:           stop,
		Target:         target,
		Confidence:     confidence,
		SizeMultiplier: sizeMult,
		Reasons:        reasons,
		BarTime:        snap.Bar.Timestamp,
	}
	s.log.Debug("signal",
		zap.String("instrument", snap.Instrument),
		zap.String("dir", dir.String()),
		zap.Float64("confidence", confidence),
		zap.Float64("entry", entry),
		zap.Float64("stop", stop),
		zap.Float64("target", target))
	return sig
}

// levels derives stop and target. Stop sits beyond the zone's invalidation
// point by a volatility buffer. Target is the nearest unswept liquidity
// beyond entry, floored at one risk multiple; the MinRewardMult fallback
// applies only when no level rests beyond entry.
func (s *Scorer) levels(snap Snapshot, dir Direction, zone *zones.Zone, entry float64) (stop, target float64, ok bool) {
	buffer := s.cfg.StopBufferATR * snap.ATR
	if dir == Long {
		stop = zone.Low - buffer
		risk := entry - stop
		if risk <= 0 {
			return 0, 0, false
		}
		target = entry + s.cfg.MinRewardMult*risk
		if snap.HasLiquidityAbove && snap.LiquidityAbove > entry {
			target = snap.LiquidityAbove
			if floor := entry + risk; target < floor {
				target = floor
			}
		}
		return stop, target, true
	}
	stop = zone.High + buffer
	risk := stop - entry
	if risk <= 0 {
		return 0, 0, false
	}
	target = entry - s.cfg.MinRewardMult*risk
	if snap.HasLiquidityBelow && snap.LiquidityBelow < entry {
		target = snap.LiquidityBelow
		if floor := entry - risk; target > floor {
			target = floor
		}
	}
	return stop, target, true
}

func counterTrend(macro structure.Bias, want structure.Bias) bool {
	switch {
	case macro == structure.Bullish && want == structure.Bearish:
		return true
	case macro == structure.Bearish && want == structure.Bullish:
		return true
	}
	return false
}
