package candles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candles.csv")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadCSV(t *testing.T) {
	doc := "timestamp_ms,open,high,low,close,volume\n" +
		"900000,1.0840,1.0850,1.0835,1.0848,120\n" +
		"1800000,1.0848,1.0862,1.0846,1.0860,95\n"
	s, err := LoadCSV(writeTemp(t, []byte(doc)), "EURUSD", TFM15)
	require.NoError(t, err)

	require.Equal(t, 2, s.Len())
	assert.Equal(t, int64(900000), s.At(0).Timestamp)
	assert.Equal(t, 1.0860, s.At(1).Close)
	assert.Equal(t, "EURUSD", s.Instrument)
}

func TestLoadCSVNoHeader(t *testing.T) {
	doc := "900000,1.0840,1.0850,1.0835,1.0848,120\n"
	s, err := LoadCSV(writeTemp(t, []byte(doc)), "EURUSD", TFM15)
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
}

func TestLoadCSVStripsBOM(t *testing.T) {
	utf8 := append([]byte{0xEF, 0xBB, 0xBF},
		[]byte("900000,1.0840,1.0850,1.0835,1.0848,120\n")...)
	s, err := LoadCSV(writeTemp(t, utf8), "EURUSD", TFM15)
	require.NoError(t, err)
	assert.Equal(t, int64(900000), s.At(0).Timestamp)

	// UTF-16LE with BOM, the shape Windows broker exports arrive in.
	row := "900000,1.0840,1.0850,1.0835,1.0848,120\n"
	utf16 := []byte{0xFF, 0xFE}
	for _, r := range row {
		utf16 = append(utf16, byte(r), 0x00)
	}
	s, err = LoadCSV(writeTemp(t, utf16), "EURUSD", TFM15)
	require.NoError(t, err)
	assert.Equal(t, int64(900000), s.At(0).Timestamp)
}

func TestLoadCSVOutOfOrder(t *testing.T) {
	doc := "1800000,1.0848,1.0862,1.0846,1.0860,95\n" +
		"900000,1.0840,1.0850,1.0835,1.0848,120\n"
	_, err := LoadCSV(writeTemp(t, []byte(doc)), "EURUSD", TFM15)
	var ooe *OutOfOrderDataError
	require.ErrorAs(t, err, &ooe)
	assert.Equal(t, int64(900000), ooe.Ts)
}

func TestLoadCSVEmpty(t *testing.T) {
	_, err := LoadCSV(writeTemp(t, []byte("timestamp_ms,open,high,low,close,volume\n")), "EURUSD", TFM15)
	require.Error(t, err)
}

func TestLoadCSVBadField(t *testing.T) {
	doc := "900000,1.0840,notanumber,1.0835,1.0848,120\n"
	_, err := LoadCSV(writeTemp(t, []byte(doc)), "EURUSD", TFM15)
	require.Error(t, err)
}
