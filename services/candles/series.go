package candles

import (
	"fmt"
	"sort"
)

// OutOfOrderDataError reports a non-monotonic or duplicate timestamp in an
// instrument's bar feed. It is fatal for that instrument's run; bars are
// never silently skipped.
type OutOfOrderDataError struct {
	Instrument string
	Timeframe  Timeframe
	PrevTs     int64
	Ts         int64
}

func (e *OutOfOrderDataError) Error() string {
	return fmt.Sprintf("out of order candle for %s %s: ts %d after %d",
		e.Instrument, e.Timeframe, e.Ts, e.PrevTs)
}

// Series is a time-ordered bar sequence for one instrument and timeframe.
// Bars are append-only; historical data is read-only and safe to share
// across readers.
type Series struct {
	Instrument string
	TF         Timeframe
	bars       []Candle
}

// NewSeries validates ordering of the supplied bars and wraps them. The
// slice is retained, not copied.
func NewSeries(instrument string, tf Timeframe, bars []Candle) (*Series, error) {
	s := &Series{Instrument: instrument, TF: tf}
	for _, c := range bars {
		if err := s.Append(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Append adds one bar. Timestamps must be strictly increasing.
func (s *Series) Append(c Candle) error {
	if n := len(s.bars); n > 0 && c.Timestamp <= s.bars[n-1].Timestamp {
		return &OutOfOrderDataError{
			Instrument: s.Instrument,
			Timeframe:  s.TF,
			PrevTs:     s.bars[n-1].Timestamp,
			Ts:         c.Timestamp,
		}
	}
	s.bars = append(s.bars, c)
	return nil
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.bars) }

// At returns the bar at index i.
func (s *Series) At(i int) Candle { return s.bars[i] }

// Last returns the most recent bar. Panics on an empty series.
func (s *Series) Last() Candle { return s.bars[len(s.bars)-1] }

// Candles returns the backing slice. It aliases the series and must not be
// mutated.
func (s *Series) Candles() []Candle { return s.bars }

// Window returns up to n bars ending at index end inclusive. The returned
// slice aliases the series and must not be mutated.
func (s *Series) Window(end, n int) []Candle {
	if end < 0 || end >= len(s.bars) {
		return nil
	}
	start := end + 1 - n
	if start < 0 {
		start = 0
	}
	return s.bars[start : end+1]
}

// IndexAtOrAfter returns the index of the first bar with timestamp >= ts, or
// Len() if no such bar exists.
func (s *Series) IndexAtOrAfter(ts int64) int {
	return sort.Search(len(s.bars), func(i int) bool {
		return s.bars[i].Timestamp >= ts
	})
}

// CadenceMs estimates the bar spacing from the first few gaps. Falls back to
// the nominal timeframe duration when the series is too short.
func (s *Series) CadenceMs() int64 {
	if len(s.bars) < 2 {
		return s.TF.DurationMs()
	}
	limit := len(s.bars)
	if limit > 32 {
		limit = 32
	}
	gaps := make([]int64, 0, limit-1)
	for i := 1; i < limit; i++ {
		gaps = append(gaps, s.bars[i].Timestamp-s.bars[i-1].Timestamp)
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return gaps[len(gaps)/2]
}

// Resample aggregates this series into a coarser timeframe by calendar
// bucket: first open, max high, min low, last close, summed volume. Buckets
// are aligned to the target duration in UTC. Only completed buckets are
// emitted so a coarse bar never leaks information from bars that would close
// after it (right-edge alignment).
func (s *Series) Resample(target Timeframe) (*Series, error) {
	dur := target.DurationMs()
	src := s.TF.DurationMs()
	if dur == 0 || src == 0 || dur%src != 0 || dur <= src {
		return nil, fmt.Errorf("cannot resample %s to %s", s.TF, target)
	}
	out := &Series{Instrument: s.Instrument, TF: target}
	if len(s.bars) == 0 {
		return out, nil
	}

	var cur Candle
	var curBucket int64 = -1
	flush := func() {
		if curBucket >= 0 {
			out.bars = append(out.bars, cur)
		}
	}
	for _, c := range s.bars {
		bucket := c.Timestamp - c.Timestamp%dur
		if bucket != curBucket {
			flush()
			curBucket = bucket
			cur = Candle{Timestamp: bucket, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume}
			continue
		}
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	// The trailing bucket is complete only if the source series reaches its
	// right edge.
	if last := s.bars[len(s.bars)-1]; last.Timestamp+src >= curBucket+dur {
		flush()
	}
	return out, nil
}
