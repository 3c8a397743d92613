package zones

import (
	"smcengine/services/candles"
)

// SweepConfig tunes liquidity level tracking. Tolerance for both equal-level
// grouping and sweep penetration is EqualLevelTolATR times the current ATR,
// so it widens and narrows with volatility.
type SweepConfig struct {
	EqualLevelTolATR float64
	EqualLevelWindow int
	MaxLevelsPerSide int
}

// Sweep is a fired liquidity grab: a wick pushed through a resting level and
// the bar closed back on the originating side. Sweeping lows is a bullish
// event, sweeping highs a bearish one.
type Sweep struct {
	Level     *Zone
	Polarity  Polarity
	Index     int
	Timestamp int64
}

// SweepDetector tracks resting liquidity: the previous UTC session's high and
// low, plus equal highs/lows formed inside a trailing window. Levels are
// stored as degenerate zones (Low == High == level price) of kind
// KindSweepLevel; a swept level is invalidated and never re-fires.
type SweepDetector struct {
	cfg    SweepConfig
	levels *book

	idx    int
	window []candles.Candle

	day     int64
	dayHigh float64
	dayLow  float64

	sweeps []Sweep
}

// NewSweepDetector builds a detector for one instrument/timeframe feed.
func NewSweepDetector(cfg SweepConfig) *SweepDetector {
	if cfg.EqualLevelWindow < 3 {
		cfg.EqualLevelWindow = 20
	}
	if cfg.MaxLevelsPerSide < 1 {
		cfg.MaxLevelsPerSide = 10
	}
	return &SweepDetector{
		cfg:    cfg,
		levels: newBook(cfg.MaxLevelsPerSide),
		idx:    -1,
		day:    -1,
	}
}

const dayMs = int64(24 * 60 * 60 * 1000)

// Update consumes the next bar together with the current ATR and returns the
// sweep fired by this bar, if any. At most one sweep fires per bar; when the
// bar takes out several stacked levels the deepest one is reported.
func (d *SweepDetector) Update(c candles.Candle, atr float64) *Sweep {
	d.idx++
	d.rollSession(c)
	tol := d.cfg.EqualLevelTolATR * atr

	sw := d.detectSweep(c, tol)

	d.trackEquals(c, tol)
	d.window = append(d.window, c)
	if len(d.window) > d.cfg.EqualLevelWindow {
		d.window = d.window[1:]
	}
	return sw
}

// rollSession folds the completed UTC day's extremes into resting levels.
func (d *SweepDetector) rollSession(c candles.Candle) {
	day := c.Timestamp / dayMs
	if day != d.day {
		if d.day >= 0 {
			d.addLevel(d.dayHigh, Bearish)
			d.addLevel(d.dayLow, Bullish)
		}
		d.day = day
		d.dayHigh, d.dayLow = c.High, c.Low
		return
	}
	if c.High > d.dayHigh {
		d.dayHigh = c.High
	}
	if c.Low < d.dayLow {
		d.dayLow = c.Low
	}
}

// trackEquals registers an equal-high or equal-low level when the current
// bar's extreme matches an earlier extreme in the window within tolerance.
func (d *SweepDetector) trackEquals(c candles.Candle, tol float64) {
	if tol <= 0 || len(d.window) < 2 {
		return
	}
	// Skip the adjacent bar: equal levels need separation to hold stops.
	for i := 0; i < len(d.window)-1; i++ {
		prev := d.window[i]
		if diff := c.High - prev.High; diff <= tol && diff >= -tol {
			d.addLevel(maxf(c.High, prev.High), Bearish)
			break
		}
	}
	for i := 0; i < len(d.window)-1; i++ {
		prev := d.window[i]
		if diff := c.Low - prev.Low; diff <= tol && diff >= -tol {
			d.addLevel(minf(c.Low, prev.Low), Bullish)
			break
		}
	}
}

// addLevel registers a resting level unless an unswept level already sits at
// (almost) the same price. Polarity is the direction a sweep of this level
// signals: low-side liquidity is bullish, high-side bearish.
func (d *SweepDetector) addLevel(price float64, p Polarity) {
	for _, z := range d.levels.active(p) {
		if z.Low == price {
			return
		}
	}
	d.levels.add(&Zone{
		Kind:     KindSweepLevel,
		Polarity: p,
		Low:      price,
		High:     price,
		FormedAt: d.idx,
	})
}

func (d *SweepDetector) detectSweep(c candles.Candle, tol float64) *Sweep {
	var best *Zone
	var bestDepth float64

	for _, z := range d.levels.active(Bullish) {
		if d.idx <= z.FormedAt {
			continue
		}
		depth := z.Low - c.Low
		if depth > tol && c.Close > z.Low && depth > bestDepth {
			best, bestDepth = z, depth
		}
	}
	if best != nil {
		best.advance(StatusInvalidated)
		return d.record(best, Bullish, c)
	}

	for _, z := range d.levels.active(Bearish) {
		if d.idx <= z.FormedAt {
			continue
		}
		depth := c.High - z.High
		if depth > tol && c.Close < z.High && depth > bestDepth {
			best, bestDepth = z, depth
		}
	}
	if best != nil {
		best.advance(StatusInvalidated)
		return d.record(best, Bearish, c)
	}
	return nil
}

func (d *SweepDetector) record(z *Zone, p Polarity, c candles.Candle) *Sweep {
	d.sweeps = append(d.sweeps, Sweep{Level: z, Polarity: p, Index: d.idx, Timestamp: c.Timestamp})
	if len(d.sweeps) > 64 {
		d.sweeps = d.sweeps[len(d.sweeps)-64:]
	}
	return &d.sweeps[len(d.sweeps)-1]
}

// SweptWithin reports whether a sweep of the given polarity fired in the last
// barsBack bars, the current bar included.
func (d *SweepDetector) SweptWithin(barsBack int, p Polarity) bool {
	for i := len(d.sweeps) - 1; i >= 0; i-- {
		s := d.sweeps[i]
		if d.idx-s.Index > barsBack {
			return false
		}
		if s.Polarity == p {
			return true
		}
	}
	return false
}

// NearestUnswept returns the closest resting level beyond price in the trade
// direction: above price for bullish trades (high-side liquidity), below for
// bearish. Used as the primary take-profit target.
func (d *SweepDetector) NearestUnswept(price float64, dir Polarity) (float64, bool) {
	var best float64
	found := false
	if dir == Bullish {
		for _, z := range d.levels.active(Bearish) {
			if z.High > price && (!found || z.High < best) {
				best, found = z.High, true
			}
		}
	} else {
		for _, z := range d.levels.active(Bullish) {
			if z.Low < price && (!found || z.Low > best) {
				best, found = z.Low, true
			}
		}
	}
	return best, found
}

// Levels returns the unswept levels whose sweep would signal the given
// polarity.
func (d *SweepDetector) Levels(p Polarity) []*Zone { return d.levels.active(p) }

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
