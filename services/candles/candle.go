// Package candles provides the immutable per-instrument, per-timeframe bar
// store that feeds the structure analyzer, zone detectors and replay engine.
package candles

import "time"

// Candle is a single OHLCV bar. Timestamps are Unix milliseconds UTC and mark
// the bar open.
type Candle struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Time returns the bar open time in UTC.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

// Body returns the absolute open-to-close distance.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns the high-to-low distance.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// Bullish reports whether the bar closed above its open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Bearish reports whether the bar closed below its open.
func (c Candle) Bearish() bool { return c.Close < c.Open }

// Timeframe identifies a bar resolution.
type Timeframe string

const (
	TFM1  Timeframe = "M1"
	TFM5  Timeframe = "M5"
	TFM15 Timeframe = "M15"
	TFM30 Timeframe = "M30"
	TFH1  Timeframe = "H1"
	TFH4  Timeframe = "H4"
	TFD1  Timeframe = "D1"
)

// DurationMs returns the bar length in milliseconds, or 0 for an unknown
// timeframe.
func (tf Timeframe) DurationMs() int64 {
	switch tf {
	case TFM1:
		return 60_000
	case TFM5:
		return 5 * 60_000
	case TFM15:
		return 15 * 60_000
	case TFM30:
		return 30 * 60_000
	case TFH1:
		return 60 * 60_000
	case TFH4:
		return 4 * 60 * 60_000
	case TFD1:
		return 24 * 60 * 60_000
	}
	return 0
}

// Valid reports whether the timeframe is one of the supported resolutions.
func (tf Timeframe) Valid() bool { return tf.DurationMs() > 0 }
