package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smcengine/services/candles"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
risk:
  risk_fraction: 0.02
scorer:
  min_confidence: 60
replay:
  execution_tf: M5
  intermediate_tf: H1
  macro_tf: H4
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.02, cfg.Risk.RiskFraction)
	assert.Equal(t, 60.0, cfg.Scorer.MinConfidence)
	assert.Equal(t, candles.TFM5, cfg.Replay.ExecutionTF)
	// untouched sections keep their defaults
	assert.Equal(t, 1.0, cfg.Risk.GlobalMaxSize)
	assert.Equal(t, 5, cfg.Structure.ConfirmWindow)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("risk:\n  risk_fraction: 1.5\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk_fraction")
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no instruments", func(c *Config) { c.Instruments = nil }, "no instruments"},
		{"zero pip size", func(c *Config) {
			m := c.Instruments["EURUSD"]
			m.PipSize = 0
			c.Instruments["EURUSD"] = m
		}, "pip_size"},
		{"confirm window", func(c *Config) { c.Structure.ConfirmWindow = 0 }, "confirm_window"},
		{"sanity multiple", func(c *Config) { c.Risk.SanityMultiple = 0.5 }, "sanity_multiple"},
		{"confidence range", func(c *Config) { c.Scorer.MinConfidence = 101 }, "min_confidence"},
		{"zero weights", func(c *Config) {
			c.Scorer.WeightHTFAlign = 0
			c.Scorer.WeightMTFAlign = 0
			c.Scorer.WeightZone = 0
			c.Scorer.WeightSweep = 0
			c.Scorer.WeightRangePos = 0
		}, "weights"},
		{"negative weight", func(c *Config) { c.Scorer.WeightSweep = -5 }, "non-negative"},
		{"unknown timeframe", func(c *Config) { c.Replay.MacroTF = "W3" }, "unknown timeframe"},
		{"sessions without windows", func(c *Config) { c.Sessions.Windows = nil }, "no windows"},
		{"session hour range", func(c *Config) {
			c.Sessions.Windows = []SessionWindow{{Name: "bad", StartHour: 7, EndHour: 24}}
		}, "hours"},
		{"empty session window", func(c *Config) {
			c.Sessions.Windows = []SessionWindow{{Name: "bad", StartHour: 7, EndHour: 7}}
		}, "equal"},
		{"non-coarsening timeframes", func(c *Config) {
			c.Replay.IntermediateTF = candles.TFM15
		}, "coarsen"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
