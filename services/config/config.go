// Package config defines the explicit configuration structs passed to each
// component. There is no global mutable configuration; every component
// receives its own struct at construction time.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"smcengine/services/candles"
)

// InstrumentClass groups instruments whose unit values live in the same
// order of magnitude.
type InstrumentClass string

const (
	ClassForex   InstrumentClass = "forex"
	ClassMetals  InstrumentClass = "metals"
	ClassIndices InstrumentClass = "indices"
	ClassCrypto  InstrumentClass = "crypto"
)

// InstrumentMeta is the static per-instrument metadata consumed by the risk
// engine. UnitValue is the monetary value of one pip move for one lot and is
// never inferred from a default: a missing or non-positive value fails the
// sizing call.
type InstrumentMeta struct {
	Class        InstrumentClass `yaml:"class"`
	PipSize      float64         `yaml:"pip_size"`
	UnitValue    float64         `yaml:"unit_value"`
	MinIncrement float64         `yaml:"min_increment"`
}

// StructureConfig tunes the swing/structure analyzer.
type StructureConfig struct {
	ConfirmWindow    int     `yaml:"confirm_window"`
	DisplacementMult float64 `yaml:"displacement_mult"`
	ATRPeriod        int     `yaml:"atr_period"`
	MaxLookback      int     `yaml:"max_lookback"`
}

// ZonesConfig tunes the four zone detectors. ImpulseRatio and MinGapPips are
// per-timeframe tables: fast resolutions demand stricter impulses and the
// minimum gap size shrinks with resolution.
type ZonesConfig struct {
	ImpulseRatio     map[candles.Timeframe]float64 `yaml:"impulse_ratio"`
	MinGapPips       map[candles.Timeframe]float64 `yaml:"min_gap_pips"`
	WickAllowanceATR float64                       `yaml:"wick_allowance_atr"`
	EqualLevelTolATR float64                       `yaml:"equal_level_tol_atr"`
	EqualLevelWindow int                           `yaml:"equal_level_window"`
	MaxZonesPerSide  int                           `yaml:"max_zones_per_side"`
	BuyThreshold     float64                       `yaml:"buy_threshold"`
	SellThreshold    float64                       `yaml:"sell_threshold"`
	OptimalBandWidth float64                       `yaml:"optimal_band_width"`
	RangeLookback    int                           `yaml:"range_lookback"`
}

// ScorerConfig carries the confluence weights. Weights are free-form
// positive integers; the scorer normalizes them so that all predicates true
// scores exactly 100.
type ScorerConfig struct {
	WeightHTFAlign  int     `yaml:"weight_htf_align"`
	WeightMTFAlign  int     `yaml:"weight_mtf_align"`
	WeightZone      int     `yaml:"weight_zone"`
	WeightSweep     int     `yaml:"weight_sweep"`
	WeightRangePos  int     `yaml:"weight_range_pos"`
	MinConfidence   float64 `yaml:"min_confidence"`
	StopBufferATR   float64 `yaml:"stop_buffer_atr"`
	MinRewardMult   float64 `yaml:"min_reward_mult"`
	DeepDiscountMax float64 `yaml:"deep_discount_max"`
	DeepPremiumMin  float64 `yaml:"deep_premium_min"`
}

// RiskConfig tunes position sizing and account protection.
type RiskConfig struct {
	RiskFraction    float64                     `yaml:"risk_fraction"`
	GlobalMaxSize   float64                     `yaml:"global_max_size"`
	ClassMaxSize    map[InstrumentClass]float64 `yaml:"class_max_size"`
	SanityMultiple  float64                     `yaml:"sanity_multiple"`
	MaxDailyLossPct float64                     `yaml:"max_daily_loss_pct"`
	UseFixedLot     bool                        `yaml:"use_fixed_lot"`
	FixedLotSize    float64                     `yaml:"fixed_lot_size"`
}

// ReplayConfig tunes trade management inside the replay engine. Pip-based
// distances are converted via each instrument's PipSize.
type ReplayConfig struct {
	ExecutionTF          candles.Timeframe `yaml:"execution_tf"`
	IntermediateTF       candles.Timeframe `yaml:"intermediate_tf"`
	MacroTF              candles.Timeframe `yaml:"macro_tf"`
	InitialBalance       float64           `yaml:"initial_balance"`
	UseTrailingStop      bool              `yaml:"use_trailing_stop"`
	TrailingStartPips    float64           `yaml:"trailing_start_pips"`
	TrailingDistancePips float64           `yaml:"trailing_distance_pips"`
	UseBreakEven         bool              `yaml:"use_break_even"`
	BreakEvenPips        float64           `yaml:"break_even_pips"`
	BreakEvenOffsetPips  float64           `yaml:"break_even_offset_pips"`
	UsePartialClose      bool              `yaml:"use_partial_close"`
	PartialCloseRR       float64           `yaml:"partial_close_rr"`
	PartialCloseFraction float64           `yaml:"partial_close_fraction"`
}

// SessionWindow is one tradable window of the day in whole UTC hours.
// EndHour is exclusive; a window with EndHour <= StartHour wraps midnight.
type SessionWindow struct {
	Name      string `yaml:"name"`
	StartHour int    `yaml:"start_hour"`
	EndHour   int    `yaml:"end_hour"`
}

// SessionsConfig restricts signal emission to the configured windows.
type SessionsConfig struct {
	Enabled bool            `yaml:"enabled"`
	Windows []SessionWindow `yaml:"windows"`
}

// EmbargoConfig tunes the news-embargo oracle.
type EmbargoConfig struct {
	Enabled          bool `yaml:"enabled"`
	LeadMinutes      int  `yaml:"lead_minutes"`
	TrailMinutes     int  `yaml:"trail_minutes"`
	FilterHighImpact bool `yaml:"filter_high_impact"`
	FilterMedImpact  bool `yaml:"filter_medium_impact"`
}

// Config is the root document.
type Config struct {
	Instruments map[string]InstrumentMeta `yaml:"instruments"`
	Structure   StructureConfig           `yaml:"structure"`
	Zones       ZonesConfig               `yaml:"zones"`
	Scorer      ScorerConfig              `yaml:"scorer"`
	Risk        RiskConfig                `yaml:"risk"`
	Replay      ReplayConfig              `yaml:"replay"`
	Sessions    SessionsConfig            `yaml:"sessions"`
	Embargo     EmbargoConfig             `yaml:"embargo"`
	ClickHouse  candles.ClickHouseConfig  `yaml:"clickhouse"`
}

// Default returns the baseline configuration. Explicit structs plus defaults
// here replace the original's global settings singleton.
func Default() Config {
	return Config{
		Instruments: map[string]InstrumentMeta{
			"EURUSD": {Class: ClassForex, PipSize: 0.0001, UnitValue: 10, MinIncrement: 0.01},
			"GBPUSD": {Class: ClassForex, PipSize: 0.0001, UnitValue: 10, MinIncrement: 0.01},
			"USDJPY": {Class: ClassForex, PipSize: 0.01, UnitValue: 10, MinIncrement: 0.01},
			"XAUUSD": {Class: ClassMetals, PipSize: 0.01, UnitValue: 1, MinIncrement: 0.01},
			"US30":   {Class: ClassIndices, PipSize: 1, UnitValue: 1, MinIncrement: 0.1},
			"BTCUSD": {Class: ClassCrypto, PipSize: 1, UnitValue: 1, MinIncrement: 0.01},
		},
		Structure: StructureConfig{
			ConfirmWindow:    5,
			DisplacementMult: 1.2,
			ATRPeriod:        14,
			MaxLookback:      1000,
		},
		Zones: ZonesConfig{
			ImpulseRatio: map[candles.Timeframe]float64{
				candles.TFM1:  2.5,
				candles.TFM5:  2.0,
				candles.TFM15: 1.5,
				candles.TFH1:  1.5,
				candles.TFH4:  1.3,
				candles.TFD1:  1.3,
			},
			MinGapPips: map[candles.Timeframe]float64{
				candles.TFM1:  2,
				candles.TFM5:  3,
				candles.TFM15: 5,
				candles.TFH1:  8,
				candles.TFH4:  12,
				candles.TFD1:  20,
			},
			WickAllowanceATR: 0.1,
			EqualLevelTolATR: 0.25,
			EqualLevelWindow: 20,
			MaxZonesPerSide:  10,
			BuyThreshold:     0.5,
			SellThreshold:    0.5,
			OptimalBandWidth: 0.21,
			RangeLookback:    50,
		},
		Scorer: ScorerConfig{
			WeightHTFAlign:  30,
			WeightMTFAlign:  20,
			WeightZone:      20,
			WeightSweep:     20,
			WeightRangePos:  10,
			MinConfidence:   70,
			StopBufferATR:   0.5,
			MinRewardMult:   2.0,
			DeepDiscountMax: 0.3,
			DeepPremiumMin:  0.7,
		},
		Risk: RiskConfig{
			RiskFraction:  0.01,
			GlobalMaxSize: 1.0,
			ClassMaxSize: map[InstrumentClass]float64{
				ClassForex:   1.0,
				ClassMetals:  0.5,
				ClassIndices: 0.5,
				ClassCrypto:  0.25,
			},
			SanityMultiple:  10,
			MaxDailyLossPct: 0.05,
			FixedLotSize:    0.01,
		},
		Replay: ReplayConfig{
			ExecutionTF:          candles.TFM15,
			IntermediateTF:       candles.TFH4,
			MacroTF:              candles.TFD1,
			InitialBalance:       10_000,
			UseTrailingStop:      true,
			TrailingStartPips:    20,
			TrailingDistancePips: 15,
			UseBreakEven:         true,
			BreakEvenPips:        15,
			BreakEvenOffsetPips:  2,
			UsePartialClose:      false,
			PartialCloseRR:       1.0,
			PartialCloseFraction: 0.5,
		},
		Sessions: SessionsConfig{
			Enabled: true,
			Windows: []SessionWindow{
				{Name: "london", StartHour: 7, EndHour: 10},
				{Name: "new_york", StartHour: 12, EndHour: 15},
			},
		},
		Embargo: EmbargoConfig{
			Enabled:          true,
			LeadMinutes:      30,
			TrailMinutes:     15,
			FilterHighImpact: true,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	c := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate rejects configurations the engine cannot run safely with.
func (c Config) Validate() error {
	if len(c.Instruments) == 0 {
		return fmt.Errorf("no instruments configured")
	}
	for sym, m := range c.Instruments {
		if m.PipSize <= 0 {
			return fmt.Errorf("instrument %s: pip_size must be positive", sym)
		}
		if m.MinIncrement <= 0 {
			return fmt.Errorf("instrument %s: min_increment must be positive", sym)
		}
	}
	if c.Structure.ConfirmWindow < 1 {
		return fmt.Errorf("structure.confirm_window must be >= 1")
	}
	if c.Risk.RiskFraction <= 0 || c.Risk.RiskFraction >= 1 {
		return fmt.Errorf("risk.risk_fraction must be in (0,1)")
	}
	if c.Risk.GlobalMaxSize <= 0 {
		return fmt.Errorf("risk.global_max_size must be positive")
	}
	if c.Risk.SanityMultiple < 1 {
		return fmt.Errorf("risk.sanity_multiple must be >= 1")
	}
	if c.Scorer.MinConfidence < 0 || c.Scorer.MinConfidence > 100 {
		return fmt.Errorf("scorer.min_confidence must be in [0,100]")
	}
	sum := c.Scorer.WeightHTFAlign + c.Scorer.WeightMTFAlign + c.Scorer.WeightZone +
		c.Scorer.WeightSweep + c.Scorer.WeightRangePos
	if sum <= 0 {
		return fmt.Errorf("scorer weights must sum to a positive value")
	}
	for _, w := range []int{c.Scorer.WeightHTFAlign, c.Scorer.WeightMTFAlign,
		c.Scorer.WeightZone, c.Scorer.WeightSweep, c.Scorer.WeightRangePos} {
		if w < 0 {
			return fmt.Errorf("scorer weights must be non-negative")
		}
	}
	for _, tf := range []candles.Timeframe{c.Replay.ExecutionTF, c.Replay.IntermediateTF, c.Replay.MacroTF} {
		if !tf.Valid() {
			return fmt.Errorf("replay: unknown timeframe %q", tf)
		}
	}
	if c.Sessions.Enabled {
		if len(c.Sessions.Windows) == 0 {
			return fmt.Errorf("sessions enabled with no windows")
		}
		for _, w := range c.Sessions.Windows {
			if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
				return fmt.Errorf("session %s: hours must be in [0,23]", w.Name)
			}
			if w.StartHour == w.EndHour {
				return fmt.Errorf("session %s: start and end hour are equal", w.Name)
			}
		}
	}
	if c.Replay.ExecutionTF.DurationMs() >= c.Replay.IntermediateTF.DurationMs() ||
		c.Replay.IntermediateTF.DurationMs() >= c.Replay.MacroTF.DurationMs() {
		return fmt.Errorf("replay timeframes must strictly coarsen: execution < intermediate < macro")
	}
	return nil
}
