package zones

import (
	"smcengine/services/candles"
)

// GapConfig tunes gap/imbalance detection. MinGapSize is in price units,
// already resolved for the detector's timeframe.
type GapConfig struct {
	MinGapSize      float64
	MaxZonesPerSide int
}

// GapDetector finds three-bar price imbalances and tracks how much of the
// untraded span gets filled.
//
// A bullish gap exists when the low of bar three sits above the high of bar
// one by at least MinGapSize; the band is the untraded span. Trading into
// the band tests it, a full close through the far side invalidates it, and
// a later close back beyond the band flips the invalidated gap to the
// opposite polarity (a reclaimed gap).
type GapDetector struct {
	cfg  GapConfig
	book *book

	idx  int
	prev [2]candles.Candle
	seen int
}

// NewGapDetector builds a detector for one instrument/timeframe feed.
func NewGapDetector(cfg GapConfig) *GapDetector {
	return &GapDetector{cfg: cfg, book: newBook(cfg.MaxZonesPerSide), idx: -1}
}

// Update consumes the next bar and returns the newly formed gap, if any.
func (d *GapDetector) Update(c candles.Candle) *Zone {
	d.idx++
	d.refresh(c)

	defer func() {
		d.prev[0], d.prev[1] = d.prev[1], c
		if d.seen < 2 {
			d.seen++
		}
	}()
	if d.seen < 2 {
		return nil
	}

	first := d.prev[0]
	var formed *Zone
	switch {
	case c.Low-first.High >= d.cfg.MinGapSize:
		formed = &Zone{
			Kind:     KindGap,
			Polarity: Bullish,
			Low:      first.High,
			High:     c.Low,
			FormedAt: d.idx - 1, // middle bar of the three-bar pattern
			FormedTs: d.prev[1].Timestamp,
		}
	case first.Low-c.High >= d.cfg.MinGapSize:
		formed = &Zone{
			Kind:     KindGap,
			Polarity: Bearish,
			Low:      c.High,
			High:     first.Low,
			FormedAt: d.idx - 1,
			FormedTs: d.prev[1].Timestamp,
		}
	}
	if formed != nil {
		d.book.add(formed)
	}
	return formed
}

// refresh applies fill accounting and lifecycle transitions for the
// incoming bar.
func (d *GapDetector) refresh(c candles.Candle) {
	for _, z := range d.book.all() {
		if d.idx <= z.FormedAt+1 {
			continue // skip the bars that formed the pattern
		}
		switch z.Status {
		case StatusInvalidated:
			d.maybeFlip(z, c)
		case StatusFresh, StatusTested:
			d.fill(z, c)
		}
	}
}

func (d *GapDetector) fill(z *Zone, c candles.Candle) {
	size := z.Size()
	if size <= 0 {
		z.advance(StatusInvalidated)
		return
	}
	if z.Polarity == Bullish {
		if c.Close < z.Low {
			z.FillPct = 100
			z.advance(StatusInvalidated)
			return
		}
		if c.Low < z.High {
			depth := z.High - c.Low
			if depth > size {
				depth = size
			}
			if pct := depth / size * 100; pct > z.FillPct {
				z.FillPct = pct
			}
			if z.Status == StatusFresh {
				z.advance(StatusTested)
			}
			z.Tests++
		}
	} else {
		if c.Close > z.High {
			z.FillPct = 100
			z.advance(StatusInvalidated)
			return
		}
		if c.High > z.Low {
			depth := c.High - z.Low
			if depth > size {
				depth = size
			}
			if pct := depth / size * 100; pct > z.FillPct {
				z.FillPct = pct
			}
			if z.Status == StatusFresh {
				z.advance(StatusTested)
			}
			z.Tests++
		}
	}
}

// maybeFlip reclaims an invalidated gap: once price closes back beyond the
// band from the invalidation side, the zone re-enters play with the
// opposite polarity. This is the only path out of INVALIDATED.
func (d *GapDetector) maybeFlip(z *Zone, c candles.Candle) {
	if z.Polarity == Bullish && c.Close > z.High {
		z.Polarity = Bearish
		z.advance(StatusFlipped)
	} else if z.Polarity == Bearish && c.Close < z.Low {
		z.Polarity = Bullish
		z.advance(StatusFlipped)
	}
}

// Active returns the live zones of the given polarity, flipped gaps
// included under their new polarity.
func (d *GapDetector) Active(p Polarity) []*Zone { return d.book.active(p) }
