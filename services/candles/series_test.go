package candles

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkBars(startMs, stepMs int64, closes ...float64) []Candle {
	bars := make([]Candle, len(closes))
	for i, c := range closes {
		bars[i] = Candle{
			Timestamp: startMs + int64(i)*stepMs,
			Open:      c - 0.5,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    100,
		}
	}
	return bars
}

func TestSeriesRejectsOutOfOrder(t *testing.T) {
	s, err := NewSeries("EURUSD", TFM15, mkBars(0, 900_000, 1, 2, 3))
	require.NoError(t, err)

	err = s.Append(Candle{Timestamp: s.Last().Timestamp}) // duplicate
	var oo *OutOfOrderDataError
	require.True(t, errors.As(err, &oo))
	assert.Equal(t, "EURUSD", oo.Instrument)

	err = s.Append(Candle{Timestamp: s.Last().Timestamp - 1}) // backwards
	require.True(t, errors.As(err, &oo))
	assert.Equal(t, 3, s.Len(), "failed appends must not mutate the series")
}

func TestSeriesWindow(t *testing.T) {
	s, err := NewSeries("EURUSD", TFM15, mkBars(0, 900_000, 1, 2, 3, 4, 5))
	require.NoError(t, err)

	w := s.Window(4, 3)
	require.Len(t, w, 3)
	assert.Equal(t, 3.0, w[0].Close)
	assert.Equal(t, 5.0, w[2].Close)

	// Window clamped at the left edge.
	w = s.Window(1, 10)
	require.Len(t, w, 2)
	assert.Equal(t, 1.0, w[0].Close)

	assert.Nil(t, s.Window(5, 3))
	assert.Nil(t, s.Window(-1, 3))
}

func TestResampleCalendarBuckets(t *testing.T) {
	// 8 M15 bars starting exactly on the hour: two full H1 buckets.
	bars := mkBars(3_600_000, 900_000, 1, 4, 2, 3, 5, 6, 4, 7)
	s, err := NewSeries("EURUSD", TFM15, bars)
	require.NoError(t, err)

	h1, err := s.Resample(TFH1)
	require.NoError(t, err)
	require.Equal(t, 2, h1.Len())

	first := h1.At(0)
	assert.Equal(t, int64(3_600_000), first.Timestamp)
	assert.Equal(t, 0.5, first.Open)  // open of first M15 bar
	assert.Equal(t, 5.0, first.High)  // max high
	assert.Equal(t, 0.0, first.Low)   // min low
	assert.Equal(t, 3.0, first.Close) // close of last M15 bar in bucket
	assert.Equal(t, 400.0, first.Volume)

	second := h1.At(1)
	assert.Equal(t, int64(7_200_000), second.Timestamp)
	assert.Equal(t, 7.0, second.Close)
}

func TestResampleDropsIncompleteRightEdge(t *testing.T) {
	// 6 M15 bars: one full hour plus half of the next.
	bars := mkBars(3_600_000, 900_000, 1, 2, 3, 4, 5, 6)
	s, err := NewSeries("EURUSD", TFM15, bars)
	require.NoError(t, err)

	h1, err := s.Resample(TFH1)
	require.NoError(t, err)
	require.Equal(t, 1, h1.Len(), "partial trailing bucket must not be visible")
	assert.Equal(t, 4.0, h1.At(0).Close)
}

func TestResampleRejectsFinerTarget(t *testing.T) {
	s, err := NewSeries("EURUSD", TFH1, mkBars(0, 3_600_000, 1, 2))
	require.NoError(t, err)
	_, err = s.Resample(TFM15)
	assert.Error(t, err)
}

func TestCadenceMs(t *testing.T) {
	s, err := NewSeries("EURUSD", TFM5, mkBars(0, 300_000, 1, 2, 3, 4))
	require.NoError(t, err)
	assert.Equal(t, int64(300_000), s.CadenceMs())

	short, err := NewSeries("EURUSD", TFM5, mkBars(0, 300_000, 1))
	require.NoError(t, err)
	assert.Equal(t, TFM5.DurationMs(), short.CadenceMs())
}
