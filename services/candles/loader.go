package candles

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LoadCSV reads an OHLCV series from a CSV file with columns
// timestamp_ms,open,high,low,close,volume. A header row is skipped when the
// first field is not numeric. UTF-8 and UTF-16 BOMs are handled; broker
// exports on Windows tend to carry them. Rows must already be in
// chronological order; ordering violations surface as OutOfOrderDataError
// rather than being dropped.
func LoadCSV(path, instrument string, tf Timeframe) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candle file: %w", err)
	}
	defer f.Close()

	dec := transform.NewReader(f, unicode.BOMOverride(transform.Nop))
	r := csv.NewReader(bufio.NewReader(dec))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	s := &Series{Instrument: instrument, TF: tf}
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s line %d: %w", path, line+1, err)
		}
		line++
		if len(rec) < 6 {
			return nil, fmt.Errorf("read %s line %d: want 6 fields, got %d", path, line, len(rec))
		}

		tsStr := strings.TrimSpace(rec[0])
		ts, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("read %s line %d: bad timestamp %q", path, line, tsStr)
		}

		var fields [5]float64
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("read %s line %d field %d: %w", path, line, i+1, err)
			}
			fields[i] = v
		}

		if err := s.Append(Candle{
			Timestamp: ts,
			Open:      fields[0],
			High:      fields[1],
			Low:       fields[2],
			Close:     fields[3],
			Volume:    fields[4],
		}); err != nil {
			return nil, err
		}
	}
	if s.Len() == 0 {
		return nil, fmt.Errorf("read %s: no candles", path)
	}
	return s, nil
}
