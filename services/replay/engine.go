package replay

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"smcengine/services/candles"
	"smcengine/services/config"
	"smcengine/services/embargo"
	"smcengine/services/risk"
	"smcengine/services/sessions"
	"smcengine/services/signal"
	"smcengine/services/structure"
	"smcengine/services/zones"
)

// sweepRecency is how many execution bars a sweep stays fresh for scoring.
const sweepRecency = 10

// Engine replays execution-timeframe candles through the full detection and
// decision stack. One Engine instance runs one backtest.
type Engine struct {
	cfg      config.Config
	log      *zap.Logger
	scorer   *signal.Scorer
	sizer    *risk.Sizer
	cal      *embargo.Calendar
	sessions *sessions.Gate

	account *Account
	events  *EventLog
	summary *RunSummary

	states map[string]*instrumentState
	order  []string
}

// instrumentState is everything one instrument carries through the run.
type instrumentState struct {
	name string
	meta config.InstrumentMeta

	exec  *structure.Analyzer
	mid   *structure.Analyzer
	macro *structure.Analyzer

	blocks *zones.OrderBlockDetector
	gaps   *zones.GapDetector
	sweeps *zones.SweepDetector

	midBars   []candles.Candle
	macroBars []candles.Candle
	midIdx    int
	macroIdx  int

	mgr manager
	pos *Position

	lastClose float64
	lastTs    int64
	barsSeen  int
	failed    error
}

// NewEngine wires the stack from validated config. cal may be nil when no
// news calendar is loaded.
func NewEngine(cfg config.Config, cal *embargo.Calendar, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	events := &EventLog{}
	return &Engine{
		cfg:      cfg,
		log:      log,
		scorer:   signal.NewScorer(cfg.Scorer, log),
		sizer:    risk.NewSizer(cfg.Risk, log),
		cal:      cal,
		sessions: sessions.NewGate(cfg.Sessions, log),
		account:  NewAccount(decimal.NewFromFloat(cfg.Replay.InitialBalance), cfg.Risk.MaxDailyLossPct, log),
		events:   events,
		summary: &RunSummary{
			RunID:          uuid.New(),
			InitialBalance: decimal.NewFromFloat(cfg.Replay.InitialBalance),
		},
	}
}

// Events exposes the audit trail.
func (e *Engine) Events() *EventLog { return e.events }

// Run replays the given execution-timeframe series to completion. data maps
// instrument symbol to its candle series; every instrument needs metadata in
// the config. The bar stream is processed in global chronological order with
// the symbol as tie-break, so identical inputs always replay identically.
func (e *Engine) Run(data map[string]*candles.Series) (*RunSummary, error) {
	if err := e.prepare(data); err != nil {
		return nil, err
	}

	type cursor struct {
		st  *instrumentState
		s   *candles.Series
		idx int
	}
	cursors := make([]*cursor, 0, len(e.order))
	for _, name := range e.order {
		cursors = append(cursors, &cursor{st: e.states[name], s: data[name]})
	}

	for {
		var next *cursor
		for _, cu := range cursors {
			if cu.idx >= cu.s.Len() {
				continue
			}
			if next == nil || cu.s.At(cu.idx).Timestamp < next.s.At(next.idx).Timestamp {
				next = cu
			}
		}
		if next == nil {
			break
		}
		e.processBar(next.st, next.s.At(next.idx))
		next.idx++
	}

	e.finish()
	return e.summary, nil
}

func (e *Engine) prepare(data map[string]*candles.Series) error {
	if len(data) == 0 {
		return fmt.Errorf("replay: no instrument data")
	}
	e.states = make(map[string]*instrumentState, len(data))
	e.order = e.order[:0]
	for name := range data {
		e.order = append(e.order, name)
	}
	sort.Strings(e.order)

	zc := e.cfg.Zones
	for _, name := range e.order {
		meta, ok := e.cfg.Instruments[name]
		if !ok {
			return fmt.Errorf("replay: instrument %s has no metadata", name)
		}
		s := data[name]
		mid, err := s.Resample(e.cfg.Replay.IntermediateTF)
		if err != nil {
			return fmt.Errorf("replay: resample %s to %s: %w", name, e.cfg.Replay.IntermediateTF, err)
		}
		macro, err := s.Resample(e.cfg.Replay.MacroTF)
		if err != nil {
			return fmt.Errorf("replay: resample %s to %s: %w", name, e.cfg.Replay.MacroTF, err)
		}

		sc := structure.Config{
			ConfirmWindow:    e.cfg.Structure.ConfirmWindow,
			DisplacementMult: e.cfg.Structure.DisplacementMult,
			ATRPeriod:        e.cfg.Structure.ATRPeriod,
			MaxLookback:      e.cfg.Structure.MaxLookback,
		}
		e.states[name] = &instrumentState{
			name:  name,
			meta:  meta,
			exec:  structure.NewAnalyzer(name, sc, e.log),
			mid:   structure.NewAnalyzer(name, sc, e.log),
			macro: structure.NewAnalyzer(name, sc, e.log),
			blocks: zones.NewOrderBlockDetector(zones.OrderBlockConfig{
				ImpulseRatio:     zc.ImpulseRatio[e.cfg.Replay.ExecutionTF],
				WickAllowanceATR: zc.WickAllowanceATR,
				MaxZonesPerSide:  zc.MaxZonesPerSide,
			}),
			gaps: zones.NewGapDetector(zones.GapConfig{
				MinGapSize:      zc.MinGapPips[e.cfg.Replay.ExecutionTF] * meta.PipSize,
				MaxZonesPerSide: zc.MaxZonesPerSide,
			}),
			sweeps: zones.NewSweepDetector(zones.SweepConfig{
				EqualLevelTolATR: zc.EqualLevelTolATR,
				EqualLevelWindow: zc.EqualLevelWindow,
				MaxLevelsPerSide: zc.MaxZonesPerSide,
			}),
			midBars:   mid.Candles(),
			macroBars: macro.Candles(),
			mgr:       manager{cfg: e.cfg.Replay, meta: meta, log: e.events},
		}
	}
	return nil
}

// processBar advances one instrument by one execution bar: coarse feeds
// first, then detection, then position management, then a possible new
// signal. A coarse bar becomes visible only once its bucket has fully
// closed before this bar opened.
func (e *Engine) processBar(st *instrumentState, c candles.Candle) {
	if st.failed != nil {
		return
	}
	if err := st.feedCoarse(c.Timestamp, e.cfg.Replay); err != nil {
		st.failed = err
		e.log.Error("instrument aborted", zap.String("instrument", st.name), zap.Error(err))
		return
	}

	if _, err := st.exec.Update(c); err != nil {
		st.failed = err
		e.log.Error("instrument aborted", zap.String("instrument", st.name), zap.Error(err))
		return
	}
	atr := st.exec.ATR()
	st.blocks.Update(c, atr)
	st.gaps.Update(c)
	st.sweeps.Update(c, atr)
	st.lastClose = c.Close
	st.lastTs = c.Timestamp
	st.barsSeen++

	if st.pos != nil {
		if trade := st.mgr.step(st.pos, c); trade != nil {
			e.settle(st, trade)
		}
	}
	if st.pos == nil {
		e.maybeSignal(st, c, atr)
	}
	if st.pos != nil {
		e.markEquity(st, c)
	}
}

// markEquity samples open-position equity at the bar close: settled balance
// plus banked partials plus the unrealized leg marked to market. Closed bars
// get their sample from settle instead.
func (e *Engine) markEquity(st *instrumentState, c candles.Candle) {
	p := st.pos
	unrealized := pnl(p.Entry, c.Close, p.Direction, p.Size, st.meta).Add(p.realized)
	e.summary.EquityCurve = append(e.summary.EquityCurve, EquityPoint{
		Ts:      c.Timestamp,
		Balance: e.account.Balance().Add(unrealized),
	})
}

func (st *instrumentState) feedCoarse(ts int64, rc config.ReplayConfig) error {
	midDur := rc.IntermediateTF.DurationMs()
	for st.midIdx < len(st.midBars) && st.midBars[st.midIdx].Timestamp+midDur <= ts {
		if _, err := st.mid.Update(st.midBars[st.midIdx]); err != nil {
			return err
		}
		st.midIdx++
	}
	macroDur := rc.MacroTF.DurationMs()
	for st.macroIdx < len(st.macroBars) && st.macroBars[st.macroIdx].Timestamp+macroDur <= ts {
		if _, err := st.macro.Update(st.macroBars[st.macroIdx]); err != nil {
			return err
		}
		st.macroIdx++
	}
	return nil
}

// maybeSignal runs the scorer on the bar close and, when a signal clears the
// gates, sizes and opens a position within the same bar.
func (e *Engine) maybeSignal(st *instrumentState, c candles.Candle, atr float64) {
	snap := e.snapshot(st, c, atr)
	sig := e.scorer.Evaluate(snap)
	if sig == nil {
		return
	}
	e.events.Append(Event{Ts: c.Timestamp, Type: EventSignal, Instrument: st.name,
		Details: map[string]string{"dir": sig.Direction.String(), "confidence": fmt.Sprintf("%.0f", sig.Confidence)}})

	when := time.UnixMilli(c.Timestamp).UTC()
	if !e.sessions.Permitted(when) {
		e.dropSignal(st, c.Timestamp, DropSession)
		return
	}
	if e.cal != nil && !e.cal.Permitted(st.name, when) {
		e.dropSignal(st, c.Timestamp, DropEmbargo)
		return
	}

	var anomaly *risk.AnomalySizeError
	size, ok, err := e.account.SizeAndCommit(c.Timestamp, func(balance decimal.Decimal) (decimal.Decimal, error) {
		sz, serr := e.sizer.Size(st.name, balance, sig.Entry, sig.Stop, sig.SizeMultiplier, st.meta)
		if serr != nil {
			if errors.As(serr, &anomaly) {
				// Anomalous sizes still trade, at the minimum increment.
				return sz, nil
			}
			return decimal.Zero, serr
		}
		return sz, nil
	})
	if !ok && err == nil {
		e.dropSignal(st, c.Timestamp, DropSuppressed)
		return
	}
	if err != nil {
		var re *risk.RiskError
		if errors.As(err, &re) {
			e.dropSignal(st, c.Timestamp, DropRisk)
			return
		}
		st.failed = err
		e.log.Error("instrument aborted", zap.String("instrument", st.name), zap.Error(err))
		return
	}
	if anomaly != nil {
		e.summary.drop(st.name, DropAnomaly)
		e.events.Append(Event{Ts: c.Timestamp, Type: EventSignalDropped, Instrument: st.name,
			Details: map[string]string{"kind": string(DropAnomaly), "raw": anomaly.Raw.String()}})
	}

	st.pos = &Position{
		ID:         sig.ID,
		Instrument: st.name,
		Direction:  sig.Direction,
		Entry:      sig.Entry,
		Stop:       sig.Stop,
		Target:     sig.Target,
		Size:       size,
		OpenedAt:   c.Timestamp,
		Confidence: sig.Confidence,
	}
	e.events.Append(Event{Ts: c.Timestamp, Type: EventPositionOpen, Instrument: st.name,
		Details: map[string]string{"dir": sig.Direction.String(), "size": size.String()}})
}

func (e *Engine) snapshot(st *instrumentState, c candles.Candle, atr float64) signal.Snapshot {
	snap := signal.Snapshot{
		Instrument:       st.name,
		Bar:              c,
		ATR:              atr,
		MacroBias:        st.macro.State().Bias,
		IntermediateBias: st.mid.State().Bias,
		BullZones:        append(st.blocks.Active(zones.Bullish), st.gaps.Active(zones.Bullish)...),
		BearZones:        append(st.blocks.Active(zones.Bearish), st.gaps.Active(zones.Bearish)...),
		SweptBullish:     st.sweeps.SweptWithin(sweepRecency, zones.Bullish),
		SweptBearish:     st.sweeps.SweptWithin(sweepRecency, zones.Bearish),
	}
	if hi, lo := st.exec.LastSwing(structure.SwingHigh), st.exec.LastSwing(structure.SwingLow); hi != nil && lo != nil {
		rp, ok := zones.Position(c.Close, lo.Price, hi.Price, zones.RangeConfig{
			BuyThreshold:     e.cfg.Zones.BuyThreshold,
			SellThreshold:    e.cfg.Zones.SellThreshold,
			OptimalBandWidth: e.cfg.Zones.OptimalBandWidth,
		})
		snap.Range, snap.RangeOK = rp, ok
	}
	if above, ok := st.sweeps.NearestUnswept(c.Close, zones.Bullish); ok {
		snap.LiquidityAbove, snap.HasLiquidityAbove = above, true
	}
	if below, ok := st.sweeps.NearestUnswept(c.Close, zones.Bearish); ok {
		snap.LiquidityBelow, snap.HasLiquidityBelow = below, true
	}
	return snap
}

func (e *Engine) dropSignal(st *instrumentState, ts int64, kind DropKind) {
	e.summary.drop(st.name, kind)
	e.events.Append(Event{Ts: ts, Type: EventSignalDropped, Instrument: st.name,
		Details: map[string]string{"kind": string(kind)}})
}

// settle books a completed trade against the account and the summary.
func (e *Engine) settle(st *instrumentState, trade *CompletedTrade) {
	st.pos = nil
	e.account.Settle(trade.CloseTime, trade.Pnl)
	e.summary.Trades = append(e.summary.Trades, *trade)
	e.summary.EquityCurve = append(e.summary.EquityCurve, EquityPoint{
		Ts:      trade.CloseTime,
		Balance: e.account.Balance(),
	})
}

// finish force-closes whatever is still open at the last seen price and
// computes the summary statistics.
func (e *Engine) finish() {
	for _, name := range e.order {
		st := e.states[name]
		if st.pos != nil {
			e.settle(st, st.mgr.forceClose(st.pos, st.lastClose, st.lastTs))
		}
	}
	e.summary.FinalBalance = e.account.Balance()
	summarize(e.summary)
}
