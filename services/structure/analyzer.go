// Package structure computes confirmed swing points, directional bias and
// structural break events from a single-timeframe candle feed.
package structure

import (
	talib "github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"smcengine/services/candles"
)

// Bias is the directional read of the current structure.
type Bias int

const (
	Ranging Bias = iota
	Bullish
	Bearish
)

func (b Bias) String() string {
	switch b {
	case Bullish:
		return "bullish"
	case Bearish:
		return "bearish"
	}
	return "ranging"
}

// SwingKind distinguishes highs from lows.
type SwingKind int

const (
	SwingHigh SwingKind = iota
	SwingLow
)

// SwingPoint is a confirmed local extreme. ConfirmedAt is the index of the
// bar whose arrival ruled out a more extreme point in the same leg; it is
// always strictly greater than Index and never ahead of the bar currently
// being processed.
type SwingPoint struct {
	Index       int
	Timestamp   int64
	Price       float64
	Kind        SwingKind
	ConfirmedAt int
	Broken      bool
}

// BreakKind classifies a structural break.
type BreakKind int

const (
	// BreakContinuation extends the prevailing bias (BOS).
	BreakContinuation BreakKind = iota
	// BreakCharacterChange flips it (CHoCH).
	BreakCharacterChange
)

// StructureBreak records a close beyond the most recent confirmed opposite
// swing.
type StructureBreak struct {
	Kind       BreakKind
	Direction  Bias
	BreakIndex int
	BreakPrice float64
	SwingIndex int
	SwingPrice float64
	Timestamp  int64
}

// State is the externally visible structure snapshot after an Update.
type State struct {
	Bias      Bias
	LastBreak *StructureBreak
}

// Config tunes the analyzer. ConfirmWindow is the number of bars on each
// side required to confirm a swing; DisplacementMult gates breaks on an
// impulsive body relative to the trailing average range.
type Config struct {
	ConfirmWindow    int
	DisplacementMult float64
	ATRPeriod        int
	MaxLookback      int
}

// Analyzer consumes one candle at a time and maintains confirmed swings
// only. It never revises state retroactively: a swing exists from the bar
// that confirmed it onward, and breaks are detected against the close of the
// bar being processed.
type Analyzer struct {
	cfg Config
	log *zap.Logger

	instrument string
	bars       []candles.Candle
	dropped    int // bars trimmed off the front of the window

	swings []SwingPoint
	breaks []StructureBreak
	state  State
	lastTs int64
}

// NewAnalyzer builds an analyzer for one instrument and timeframe feed.
func NewAnalyzer(instrument string, cfg Config, log *zap.Logger) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ConfirmWindow < 1 {
		cfg.ConfirmWindow = 5
	}
	if cfg.DisplacementMult <= 0 {
		cfg.DisplacementMult = 1.2
	}
	if cfg.ATRPeriod < 2 {
		cfg.ATRPeriod = 14
	}
	if cfg.MaxLookback < 4*cfg.ConfirmWindow {
		cfg.MaxLookback = 1000
	}
	return &Analyzer{cfg: cfg, log: log, instrument: instrument, lastTs: -1}
}

// Update ingests the next bar and returns the resulting structure state.
// Out-of-order or duplicate timestamps fail with OutOfOrderDataError.
func (a *Analyzer) Update(c candles.Candle) (State, error) {
	if a.lastTs >= 0 && c.Timestamp <= a.lastTs {
		return a.state, &candles.OutOfOrderDataError{
			Instrument: a.instrument,
			PrevTs:     a.lastTs,
			Ts:         c.Timestamp,
		}
	}
	a.lastTs = c.Timestamp
	a.bars = append(a.bars, c)
	a.trim()

	// A candidate at index i-ConfirmWindow becomes a confirmed swing once
	// this bar completes its trailing window. Confirmation therefore always
	// lags the candidate by ConfirmWindow bars: no look-ahead.
	cur := a.absIndex(len(a.bars) - 1)
	cand := cur - a.cfg.ConfirmWindow
	if rel := cand - a.dropped; rel >= a.cfg.ConfirmWindow {
		a.confirmSwingAt(rel, cand)
	}

	a.detectBreak(cur, c)
	a.refreshBias()
	return a.state, nil
}

// State returns the current snapshot without consuming a bar.
func (a *Analyzer) State() State { return a.state }

// Swings returns confirmed swings, oldest first. The slice is shared.
func (a *Analyzer) Swings() []SwingPoint { return a.swings }

// LastSwing returns the most recent confirmed swing of the given kind, or
// nil when none exists.
func (a *Analyzer) LastSwing(kind SwingKind) *SwingPoint {
	for i := len(a.swings) - 1; i >= 0; i-- {
		if a.swings[i].Kind == kind {
			return &a.swings[i]
		}
	}
	return nil
}

// ATR returns the current average true range over the configured period, or
// 0 until enough bars have accumulated.
func (a *Analyzer) ATR() float64 {
	n := len(a.bars)
	if n <= a.cfg.ATRPeriod {
		return 0
	}
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i, b := range a.bars {
		highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
	}
	atr := talib.Atr(highs, lows, closes, a.cfg.ATRPeriod)
	return atr[n-1]
}

// BarsSeen returns the number of bars processed so far.
func (a *Analyzer) BarsSeen() int { return a.dropped + len(a.bars) }

func (a *Analyzer) absIndex(rel int) int { return a.dropped + rel }

func (a *Analyzer) trim() {
	if len(a.bars) <= a.cfg.MaxLookback {
		return
	}
	excess := len(a.bars) - a.cfg.MaxLookback
	a.bars = a.bars[excess:]
	a.dropped += excess
}

// confirmSwingAt checks whether the bar at relative index rel is a strict
// local extreme within ±ConfirmWindow and records it if so.
func (a *Analyzer) confirmSwingAt(rel, abs int) {
	w := a.cfg.ConfirmWindow
	c := a.bars[rel]

	isHigh, isLow := true, true
	for j := 1; j <= w; j++ {
		if a.bars[rel-j].High >= c.High || a.bars[rel+j].High >= c.High {
			isHigh = false
		}
		if a.bars[rel-j].Low <= c.Low || a.bars[rel+j].Low <= c.Low {
			isLow = false
		}
		if !isHigh && !isLow {
			return
		}
	}

	confirmedAt := abs + w
	if isHigh {
		a.swings = append(a.swings, SwingPoint{
			Index: abs, Timestamp: c.Timestamp, Price: c.High,
			Kind: SwingHigh, ConfirmedAt: confirmedAt,
		})
		a.log.Debug("swing confirmed",
			zap.String("instrument", a.instrument),
			zap.String("kind", "high"),
			zap.Int("index", abs),
			zap.Float64("price", c.High))
	}
	if isLow {
		a.swings = append(a.swings, SwingPoint{
			Index: abs, Timestamp: c.Timestamp, Price: c.Low,
			Kind: SwingLow, ConfirmedAt: confirmedAt,
		})
		a.log.Debug("swing confirmed",
			zap.String("instrument", a.instrument),
			zap.String("kind", "low"),
			zap.Int("index", abs),
			zap.Float64("price", c.Low))
	}
	if len(a.swings) > 256 {
		a.swings = a.swings[len(a.swings)-256:]
	}
}

// detectBreak fires when the close of the current bar breaks the most recent
// unbroken confirmed opposite swing with a displaced body.
func (a *Analyzer) detectBreak(cur int, c candles.Candle) {
	for i := len(a.swings) - 1; i >= 0; i-- {
		sw := &a.swings[i]
		if sw.Broken {
			continue
		}
		var dir Bias
		switch {
		case sw.Kind == SwingHigh && c.Close > sw.Price:
			dir = Bullish
		case sw.Kind == SwingLow && c.Close < sw.Price:
			dir = Bearish
		default:
			continue
		}
		if !a.displaced(c) {
			continue
		}
		sw.Broken = true

		kind := BreakContinuation
		if a.state.Bias != Ranging && a.state.Bias != dir {
			kind = BreakCharacterChange
		}
		brk := StructureBreak{
			Kind:       kind,
			Direction:  dir,
			BreakIndex: cur,
			BreakPrice: c.Close,
			SwingIndex: sw.Index,
			SwingPrice: sw.Price,
			Timestamp:  c.Timestamp,
		}
		a.breaks = append(a.breaks, brk)
		if len(a.breaks) > 64 {
			a.breaks = a.breaks[len(a.breaks)-64:]
		}
		a.state.LastBreak = &a.breaks[len(a.breaks)-1]
		a.log.Debug("structure break",
			zap.String("instrument", a.instrument),
			zap.String("dir", dir.String()),
			zap.Bool("character_change", kind == BreakCharacterChange),
			zap.Float64("price", c.Close))
		return
	}
}

// displaced gates breaks on an impulsive body: the breaking bar's body must
// exceed the trailing average range times DisplacementMult.
func (a *Analyzer) displaced(c candles.Candle) bool {
	const span = 10
	n := len(a.bars) - 1 // exclude the bar itself
	if n < span {
		return true
	}
	var sum float64
	for _, b := range a.bars[n-span : n] {
		sum += b.Range()
	}
	avg := sum / span
	if avg == 0 {
		return true
	}
	return c.Body() > avg*a.cfg.DisplacementMult
}

// refreshBias derives bias from the break history: the latest character
// change wins, otherwise the majority direction of the recent breaks.
func (a *Analyzer) refreshBias() {
	if len(a.breaks) == 0 {
		a.state.Bias = Ranging
		return
	}
	for i := len(a.breaks) - 1; i >= 0; i-- {
		if a.breaks[i].Kind == BreakCharacterChange {
			a.state.Bias = a.breaks[i].Direction
			return
		}
	}
	recent := a.breaks
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	var bull, bear int
	for _, b := range recent {
		if b.Direction == Bullish {
			bull++
		} else {
			bear++
		}
	}
	switch {
	case bull > bear:
		a.state.Bias = Bullish
	case bear > bull:
		a.state.Bias = Bearish
	default:
		a.state.Bias = Ranging
	}
}

// Checkpoint captures resumable analyzer progress.
type Checkpoint struct {
	Instrument string `json:"instrument"`
	BarsSeen   int    `json:"bars_seen"`
	LastTs     int64  `json:"last_ts"`
	Bias       string `json:"bias"`
}

// Checkpoint returns the analyzer's resumable progress marker. Detector
// state itself is recomputable from the candle series and a fixed lookback.
func (a *Analyzer) Checkpoint() Checkpoint {
	return Checkpoint{
		Instrument: a.instrument,
		BarsSeen:   a.BarsSeen(),
		LastTs:     a.lastTs,
		Bias:       a.state.Bias.String(),
	}
}
