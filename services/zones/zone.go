// Package zones implements the four zone detectors: order blocks, gap
// imbalances, liquidity sweeps and range position. Detectors are pure over
// (candle window, structure state) and never communicate with each other.
package zones

import "fmt"

// Polarity is the directional meaning of a zone: bullish zones are expected
// to act as demand, bearish zones as supply.
type Polarity int

const (
	Bullish Polarity = iota
	Bearish
)

func (p Polarity) String() string {
	if p == Bearish {
		return "bearish"
	}
	return "bullish"
}

// Opposite returns the inverted polarity.
func (p Polarity) Opposite() Polarity {
	if p == Bullish {
		return Bearish
	}
	return Bullish
}

// Status is the zone lifecycle stage. Transitions are strictly forward:
// FRESH -> TESTED -> INVALIDATED, with the single INVALIDATED -> FLIPPED
// exception for reclaimed gaps. A zone is never resurrected.
type Status int

const (
	StatusFresh Status = iota
	StatusTested
	StatusInvalidated
	StatusFlipped
)

func (s Status) String() string {
	switch s {
	case StatusTested:
		return "tested"
	case StatusInvalidated:
		return "invalidated"
	case StatusFlipped:
		return "flipped"
	}
	return "fresh"
}

// Kind identifies the detector that produced a zone.
type Kind int

const (
	KindOrderBlock Kind = iota
	KindGap
	KindSweepLevel
)

// Zone is a price band with a lifecycle. Low/High bound the band, FormedAt
// is the bar index of formation.
type Zone struct {
	Kind     Kind
	Polarity Polarity
	Low      float64
	High     float64
	FormedAt int
	FormedTs int64
	Status   Status
	FillPct  float64
	Tests    int
}

// Contains reports whether p lies inside the band, inclusive.
func (z *Zone) Contains(p float64) bool { return p >= z.Low && p <= z.High }

// Mid returns the band midpoint.
func (z *Zone) Mid() float64 { return (z.Low + z.High) / 2 }

// Size returns the band height.
func (z *Zone) Size() float64 { return z.High - z.Low }

// Active reports whether the zone still carries weight for its polarity.
func (z *Zone) Active() bool {
	return z.Status == StatusFresh || z.Status == StatusTested || z.Status == StatusFlipped
}

// advance moves the lifecycle forward. Backward transitions are programming
// errors and panic rather than corrupting replay state.
func (z *Zone) advance(to Status) {
	if to < z.Status {
		panic(fmt.Sprintf("zone status regression %s -> %s", z.Status, to))
	}
	if to == StatusFlipped && z.Status != StatusInvalidated {
		panic(fmt.Sprintf("zone flip from %s, want invalidated", z.Status))
	}
	z.Status = to
}

// book retains a bounded set of zones per polarity, oldest evicted first.
type book struct {
	max  int
	bull []*Zone
	bear []*Zone
}

func newBook(maxPerSide int) *book {
	if maxPerSide < 1 {
		maxPerSide = 10
	}
	return &book{max: maxPerSide}
}

func (b *book) add(z *Zone) {
	side := &b.bull
	if z.Polarity == Bearish {
		side = &b.bear
	}
	*side = append(*side, z)
	if len(*side) > b.max {
		*side = (*side)[len(*side)-b.max:]
	}
}

// all returns both sides, oldest first per side.
func (b *book) all() []*Zone {
	out := make([]*Zone, 0, len(b.bull)+len(b.bear))
	out = append(out, b.bull...)
	out = append(out, b.bear...)
	return out
}

// active returns zones still carrying weight for the given polarity,
// including flipped gaps whose polarity now matches.
func (b *book) active(p Polarity) []*Zone {
	var out []*Zone
	for _, z := range b.all() {
		if z.Active() && z.Polarity == p {
			out = append(out, z)
		}
	}
	return out
}
