// Package replay drives the deterministic bar-by-bar backtest: per-instrument
// trade state machines over a globally time-ordered candle stream, exact
// decimal bookkeeping and hard daily-loss protection.
package replay

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"smcengine/services/candles"
	"smcengine/services/config"
	"smcengine/services/signal"
)

// ExitReason tags how a position left the book.
type ExitReason string

const (
	ExitStop       ExitReason = "stop"
	ExitTarget     ExitReason = "target"
	ExitForceClose ExitReason = "force_close"
)

// firstTouch says which side of a both-hit bar resolves first. When one bar
// spans stop and target, the extremum nearer the open is assumed touched
// first; a tie resolves to the stop (pessimistic).
type firstTouch int

const (
	touchNone firstTouch = iota
	touchStop
	touchTarget
)

func resolveFirstTouch(c candles.Candle, dir signal.Direction, stop, target float64) firstTouch {
	var hitStop, hitTarget bool
	if dir == signal.Long {
		hitStop, hitTarget = c.Low <= stop, c.High >= target
	} else {
		hitStop, hitTarget = c.High >= stop, c.Low <= target
	}
	switch {
	case hitStop && hitTarget:
		distHigh := c.High - c.Open
		distLow := c.Open - c.Low
		stopIsLow := dir == signal.Long
		if (stopIsLow && distLow <= distHigh) || (!stopIsLow && distHigh <= distLow) {
			return touchStop
		}
		return touchTarget
	case hitStop:
		return touchStop
	case hitTarget:
		return touchTarget
	}
	return touchNone
}

// Position is one open trade. At most one exists per instrument.
type Position struct {
	ID         uuid.UUID
	Instrument string
	Direction  signal.Direction
	Entry      float64
	Stop       float64
	Target     float64
	Size       decimal.Decimal
	OpenedAt   int64
	Confidence float64

	breakEvenMoved bool
	partialTaken   bool
	realized       decimal.Decimal // banked by partial closes
}

// CompletedTrade is the produced record for one round trip.
type CompletedTrade struct {
	ID         uuid.UUID
	Instrument string
	Direction  signal.Direction
	Entry      float64
	Exit       float64
	Size       decimal.Decimal
	Pnl        decimal.Decimal
	OpenTime   int64
	CloseTime  int64
	ExitReason ExitReason
	Confidence float64
}

// pnl converts a price move into money: pips times unit value times size,
// signed by direction.
func pnl(entry, exit float64, dir signal.Direction, size decimal.Decimal, meta config.InstrumentMeta) decimal.Decimal {
	diff := exit - entry
	if dir == signal.Short {
		diff = -diff
	}
	pips := decimal.NewFromFloat(diff).Div(decimal.NewFromFloat(meta.PipSize))
	return pips.Mul(decimal.NewFromFloat(meta.UnitValue)).Mul(size)
}

// manager applies the per-bar trade management rules in their fixed order:
// exits first, then trailing stop, break-even move, partial close.
type manager struct {
	cfg  config.ReplayConfig
	meta config.InstrumentMeta
	log  *EventLog
}

// step runs one bar against the open position. It returns the completed
// trade when the position closed, nil otherwise.
func (m *manager) step(p *Position, c candles.Candle) *CompletedTrade {
	switch resolveFirstTouch(c, p.Direction, p.Stop, p.Target) {
	case touchStop:
		m.log.Append(Event{Ts: c.Timestamp, Type: EventStopHit, Instrument: p.Instrument})
		return m.close(p, p.Stop, c.Timestamp, ExitStop)
	case touchTarget:
		m.log.Append(Event{Ts: c.Timestamp, Type: EventTargetHit, Instrument: p.Instrument})
		return m.close(p, p.Target, c.Timestamp, ExitTarget)
	}

	pip := m.meta.PipSize
	favorable := c.Close - p.Entry
	if p.Direction == signal.Short {
		favorable = p.Entry - c.Close
	}

	if m.cfg.UseTrailingStop && favorable >= m.cfg.TrailingStartPips*pip {
		m.trail(p, c)
	}
	if m.cfg.UseBreakEven && !p.breakEvenMoved && favorable >= m.cfg.BreakEvenPips*pip {
		m.moveBreakEven(p, c)
	}
	if m.cfg.UsePartialClose && !p.partialTaken {
		m.maybePartial(p, c)
	}
	return nil
}

// trail ratchets the stop behind the close. The stop only ever tightens.
func (m *manager) trail(p *Position, c candles.Candle) {
	dist := m.cfg.TrailingDistancePips * m.meta.PipSize
	var next float64
	if p.Direction == signal.Long {
		next = c.Close - dist
		if next <= p.Stop {
			return
		}
	} else {
		next = c.Close + dist
		if next >= p.Stop {
			return
		}
	}
	p.Stop = next
	m.log.Append(Event{Ts: c.Timestamp, Type: EventTrailingMove, Instrument: p.Instrument})
}

// moveBreakEven locks the entry plus a small offset once price has run far
// enough. Applies once per position and never loosens a trailed stop.
func (m *manager) moveBreakEven(p *Position, c candles.Candle) {
	offset := m.cfg.BreakEvenOffsetPips * m.meta.PipSize
	var next float64
	if p.Direction == signal.Long {
		next = p.Entry + offset
		if next <= p.Stop {
			p.breakEvenMoved = true
			return
		}
	} else {
		next = p.Entry - offset
		if next >= p.Stop {
			p.breakEvenMoved = true
			return
		}
	}
	p.Stop = next
	p.breakEvenMoved = true
	m.log.Append(Event{Ts: c.Timestamp, Type: EventBreakEvenMove, Instrument: p.Instrument})
}

// maybePartial banks a fraction of the position once the trade has run the
// configured multiple of its initial risk.
func (m *manager) maybePartial(p *Position, c candles.Candle) {
	risk := p.Entry - p.Stop
	if p.Direction == signal.Short {
		risk = p.Stop - p.Entry
	}
	// After BE or trailing the remembered stop distance can be tiny or
	// negative; partials key off the reward multiple of current price only
	// while the stop still sits on the risk side.
	if risk <= 0 {
		return
	}
	reward := c.Close - p.Entry
	if p.Direction == signal.Short {
		reward = p.Entry - c.Close
	}
	if reward < m.cfg.PartialCloseRR*risk {
		return
	}
	fraction := decimal.NewFromFloat(m.cfg.PartialCloseFraction)
	closed := p.Size.Mul(fraction)
	p.realized = p.realized.Add(pnl(p.Entry, c.Close, p.Direction, closed, m.meta))
	p.Size = p.Size.Sub(closed)
	p.partialTaken = true
	m.log.Append(Event{Ts: c.Timestamp, Type: EventPartialClose, Instrument: p.Instrument,
		Details: map[string]string{"closed": closed.String()}})
}

// close settles the remaining size at exit and folds in banked partials.
func (m *manager) close(p *Position, exit float64, ts int64, reason ExitReason) *CompletedTrade {
	total := pnl(p.Entry, exit, p.Direction, p.Size, m.meta).Add(p.realized)
	return &CompletedTrade{
		ID:         p.ID,
		Instrument: p.Instrument,
		Direction:  p.Direction,
		Entry:      p.Entry,
		Exit:       exit,
		Size:       p.Size,
		Pnl:        total,
		OpenTime:   p.OpenedAt,
		CloseTime:  ts,
		ExitReason: reason,
		Confidence: p.Confidence,
	}
}

// forceClose settles at the given price, used at end of run.
func (m *manager) forceClose(p *Position, price float64, ts int64) *CompletedTrade {
	m.log.Append(Event{Ts: ts, Type: EventForceClose, Instrument: p.Instrument})
	return m.close(p, price, ts, ExitForceClose)
}
