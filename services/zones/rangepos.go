package zones

// RangeConfig tunes dealing-range classification. BuyThreshold and
// SellThreshold split the range into discount and premium; OptimalBandWidth
// is the depth of the optimal entry sub-band measured from each range end.
type RangeConfig struct {
	BuyThreshold     float64
	SellThreshold    float64
	OptimalBandWidth float64
}

// RangePosition locates a price inside the dealing range between the last
// confirmed swing low and swing high. Pos is 0 at the low, 1 at the high.
type RangePosition struct {
	Pos      float64
	Discount bool
	Premium  bool
	Optimal  bool
}

// Position classifies price against the [swingLow, swingHigh] range. A
// degenerate or inverted range yields ok == false. Prices beyond the range
// clamp to [0, 1] so a marginal overshoot still reads as deep discount or
// premium.
func Position(price, swingLow, swingHigh float64, cfg RangeConfig) (RangePosition, bool) {
	span := swingHigh - swingLow
	if span <= 0 {
		return RangePosition{}, false
	}
	pos := (price - swingLow) / span
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	rp := RangePosition{Pos: pos}
	if pos < cfg.BuyThreshold {
		rp.Discount = true
		rp.Optimal = pos <= cfg.OptimalBandWidth
	}
	if pos > cfg.SellThreshold {
		rp.Premium = true
		rp.Optimal = pos >= 1-cfg.OptimalBandWidth
	}
	return rp, true
}
