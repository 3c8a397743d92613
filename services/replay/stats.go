package replay

import (
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EquityPoint is one equity sample over run time: the settled balance, plus
// the mark-to-market value of the open position on bars where one is held.
type EquityPoint struct {
	Ts      int64
	Balance decimal.Decimal
}

// DropKind classifies why a prospective signal produced no normal trade.
type DropKind string

const (
	DropRisk       DropKind = "risk"
	DropAnomaly    DropKind = "anomaly" // traded at minimum size, still counted
	DropEmbargo    DropKind = "embargo"
	DropSession    DropKind = "session"
	DropSuppressed DropKind = "suppressed"
)

// RunSummary aggregates one finished replay.
type RunSummary struct {
	RunID          uuid.UUID
	InitialBalance decimal.Decimal
	FinalBalance   decimal.Decimal

	Trades      []CompletedTrade
	EquityCurve []EquityPoint

	WinRate      float64
	ProfitFactor float64
	MaxDrawdown  float64 // fraction of the equity peak
	RiskAdjusted float64 // mean over stddev of per-trade P&L

	// Dropped counts prospective signals per instrument per kind.
	Dropped map[string]map[DropKind]int
}

// summarize computes the headline statistics from the trade list and equity
// curve. Ratios degenerate to zero rather than NaN on empty inputs.
func summarize(s *RunSummary) {
	var wins int
	var grossWin, grossLoss decimal.Decimal
	for _, t := range s.Trades {
		if t.Pnl.IsPositive() {
			wins++
			grossWin = grossWin.Add(t.Pnl)
		} else {
			grossLoss = grossLoss.Add(t.Pnl.Neg())
		}
	}
	if n := len(s.Trades); n > 0 {
		s.WinRate = float64(wins) / float64(n)
	}
	if grossLoss.IsPositive() {
		pf, _ := grossWin.Div(grossLoss).Float64()
		s.ProfitFactor = pf
	} else if grossWin.IsPositive() {
		s.ProfitFactor = math.Inf(1)
	}
	s.MaxDrawdown = maxDrawdown(s.EquityCurve)
	s.RiskAdjusted = riskAdjusted(s.Trades)
}

func maxDrawdown(curve []EquityPoint) float64 {
	var peak, worst float64
	for _, p := range curve {
		v, _ := p.Balance.Float64()
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// riskAdjusted is a Sharpe-style ratio over per-trade P&L: mean divided by
// sample standard deviation. Needs at least two trades and dispersion.
func riskAdjusted(trades []CompletedTrade) float64 {
	if len(trades) < 2 {
		return 0
	}
	xs := make([]float64, len(trades))
	var sum float64
	for i, t := range trades {
		xs[i], _ = t.Pnl.Float64()
		sum += xs[i]
	}
	mean := sum / float64(len(xs))
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(xs)-1))
	if std == 0 {
		return 0
	}
	return mean / std
}

// drop records one dropped-signal count.
func (s *RunSummary) drop(instrument string, kind DropKind) {
	if s.Dropped == nil {
		s.Dropped = make(map[string]map[DropKind]int)
	}
	m := s.Dropped[instrument]
	if m == nil {
		m = make(map[DropKind]int)
		s.Dropped[instrument] = m
	}
	m[kind]++
}
