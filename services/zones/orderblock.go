package zones

import (
	"smcengine/services/candles"
)

// OrderBlockConfig tunes order block detection. ImpulseRatio is already
// resolved for the detector's timeframe: fast resolutions use stricter
// ratios.
type OrderBlockConfig struct {
	ImpulseRatio     float64
	WickAllowanceATR float64
	MaxZonesPerSide  int
}

// OrderBlockDetector finds the last counter-direction bar immediately
// preceding an impulsive move and tracks it as a reaction zone.
//
// A bullish order block is a bearish bar followed by a bullish bar whose
// body is at least ImpulseRatio times the block bar's body and which closes
// above the block bar's high. Bearish blocks mirror this.
type OrderBlockDetector struct {
	cfg  OrderBlockConfig
	book *book

	idx     int
	prev    candles.Candle
	hasPrev bool
}

// NewOrderBlockDetector builds a detector for one instrument/timeframe feed.
func NewOrderBlockDetector(cfg OrderBlockConfig) *OrderBlockDetector {
	if cfg.ImpulseRatio <= 0 {
		cfg.ImpulseRatio = 1.5
	}
	return &OrderBlockDetector{cfg: cfg, book: newBook(cfg.MaxZonesPerSide), idx: -1}
}

// Update consumes the next bar together with the current ATR and returns the
// newly formed zone, if any. Existing zones are re-statused against the bar
// before detection so a zone can never be tested by the move that formed it.
func (d *OrderBlockDetector) Update(c candles.Candle, atr float64) *Zone {
	d.idx++
	d.refresh(c)

	if !d.hasPrev {
		d.prev, d.hasPrev = c, true
		return nil
	}
	prev := d.prev
	d.prev = c

	var formed *Zone
	wick := d.cfg.WickAllowanceATR * atr
	switch {
	case prev.Bearish() && c.Bullish() &&
		prev.Body() > 0 && c.Body() >= d.cfg.ImpulseRatio*prev.Body() &&
		c.Close > prev.High:
		formed = &Zone{
			Kind:     KindOrderBlock,
			Polarity: Bullish,
			Low:      prev.Low - wick,
			High:     prev.High,
			FormedAt: d.idx - 1,
			FormedTs: prev.Timestamp,
		}
	case prev.Bullish() && c.Bearish() &&
		prev.Body() > 0 && c.Body() >= d.cfg.ImpulseRatio*prev.Body() &&
		c.Close < prev.Low:
		formed = &Zone{
			Kind:     KindOrderBlock,
			Polarity: Bearish,
			Low:      prev.Low,
			High:     prev.High + wick,
			FormedAt: d.idx - 1,
			FormedTs: prev.Timestamp,
		}
	}
	if formed != nil {
		d.book.add(formed)
	}
	return formed
}

// refresh applies lifecycle transitions for the incoming bar: a full close
// through against polarity invalidates, a re-entry into the band tests.
func (d *OrderBlockDetector) refresh(c candles.Candle) {
	for _, z := range d.book.all() {
		if !z.Active() || d.idx < z.FormedAt+2 {
			continue
		}
		if z.Polarity == Bullish {
			if c.Close < z.Low {
				z.advance(StatusInvalidated)
				continue
			}
		} else {
			if c.Close > z.High {
				z.advance(StatusInvalidated)
				continue
			}
		}
		// Re-entry is bar overlap with the band; a wick straight through
		// that closes back inside still counts as a test.
		if c.Low <= z.High && c.High >= z.Low {
			if z.Status == StatusFresh {
				z.advance(StatusTested)
			}
			z.Tests++
		}
	}
}

// Active returns the live zones of the given polarity.
func (d *OrderBlockDetector) Active(p Polarity) []*Zone { return d.book.active(p) }
