// Package risk converts a signal's stop distance into an order size with
// hard safety bounds. All money arithmetic is decimal; float64 never touches
// a balance.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"smcengine/services/config"
)

// RiskError rejects a sizing request outright. The signal that caused it is
// dropped and counted; the run continues.
type RiskError struct {
	Instrument string
	Reason     string
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("risk: %s: %s", e.Instrument, e.Reason)
}

// AnomalySizeError marks a raw size so far beyond the global cap that the
// inputs themselves are suspect. The size is forced to the minimum increment
// rather than silently clamped to a plausible value, so the anomaly stays
// visible in the trade record.
type AnomalySizeError struct {
	Instrument string
	Raw        decimal.Decimal
	Limit      decimal.Decimal
}

func (e *AnomalySizeError) Error() string {
	return fmt.Sprintf("risk: %s: raw size %s exceeds sanity limit %s, forced to minimum",
		e.Instrument, e.Raw, e.Limit)
}

// Sizer computes position sizes from account balance and stop distance.
type Sizer struct {
	cfg config.RiskConfig
	log *zap.Logger
}

// NewSizer builds a sizer from validated config.
func NewSizer(cfg config.RiskConfig, log *zap.Logger) *Sizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sizer{cfg: cfg, log: log}
}

// Size returns the order size for a trade risking the configured balance
// fraction over the entry-to-stop distance. mult scales the risked fraction
// (counter-trend signals run reduced). Application order is fixed: raw size,
// instrument-class cap, global cap, increment rounding.
//
// A non-nil *AnomalySizeError comes back WITH a usable size: the caller
// records the anomaly and trades the minimum increment.
func (s *Sizer) Size(instrument string, balance decimal.Decimal, entry, stop, mult float64, meta config.InstrumentMeta) (decimal.Decimal, error) {
	if meta.UnitValue <= 0 {
		return decimal.Zero, &RiskError{Instrument: instrument, Reason: "unit value unresolved"}
	}
	if meta.PipSize <= 0 {
		return decimal.Zero, &RiskError{Instrument: instrument, Reason: "pip size unresolved"}
	}
	dist := entry - stop
	if dist < 0 {
		dist = -dist
	}
	if dist == 0 {
		return decimal.Zero, &RiskError{Instrument: instrument, Reason: "stop distance is zero"}
	}
	if mult <= 0 {
		mult = 1
	}

	increment := decimal.NewFromFloat(meta.MinIncrement)
	globalMax := decimal.NewFromFloat(s.cfg.GlobalMaxSize)

	var raw decimal.Decimal
	if s.cfg.UseFixedLot {
		raw = decimal.NewFromFloat(s.cfg.FixedLotSize)
	} else {
		stopUnits := decimal.NewFromFloat(dist).Div(decimal.NewFromFloat(meta.PipSize))
		riskAmount := balance.
			Mul(decimal.NewFromFloat(s.cfg.RiskFraction)).
			Mul(decimal.NewFromFloat(mult))
		raw = riskAmount.Div(stopUnits.Mul(decimal.NewFromFloat(meta.UnitValue)))
	}

	sanity := globalMax.Mul(decimal.NewFromFloat(s.cfg.SanityMultiple))
	if raw.GreaterThan(sanity) {
		s.log.Warn("anomalous raw size, forcing minimum",
			zap.String("instrument", instrument),
			zap.String("raw", raw.String()),
			zap.String("limit", sanity.String()))
		return increment, &AnomalySizeError{Instrument: instrument, Raw: raw, Limit: sanity}
	}

	size := raw
	if classMax, ok := s.cfg.ClassMaxSize[meta.Class]; ok {
		if cm := decimal.NewFromFloat(classMax); size.GreaterThan(cm) {
			size = cm
		}
	}
	if size.GreaterThan(globalMax) {
		size = globalMax
	}

	// Round down to the instrument's size increment; a sub-increment result
	// trades the broker minimum.
	size = size.Div(increment).Floor().Mul(increment)
	if size.LessThan(increment) {
		size = increment
	}
	return size, nil
}
