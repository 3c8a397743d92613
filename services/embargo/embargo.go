// Package embargo suppresses signal generation around scheduled news
// releases. The decision is a pure function over a static event calendar;
// the engine consults it once per prospective signal.
package embargo

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"smcengine/services/config"
)

// Impact is the closed severity scale of a calendar event.
type Impact int

const (
	ImpactNone Impact = iota
	ImpactLow
	ImpactMedium
	ImpactHigh
)

func (i Impact) String() string {
	switch i {
	case ImpactLow:
		return "low"
	case ImpactMedium:
		return "medium"
	case ImpactHigh:
		return "high"
	}
	return "none"
}

// ParseImpact maps calendar feed labels onto the closed scale. Unknown
// labels are ImpactNone: an unrecognized severity never blocks trading.
func ParseImpact(s string) Impact {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return ImpactLow
	case "medium", "med":
		return ImpactMedium
	case "high":
		return ImpactHigh
	}
	return ImpactNone
}

// Event is one scheduled release. Currency is the ISO code the release
// concerns; an event embargoes every instrument quoting that currency.
type Event struct {
	Time     time.Time
	Currency string
	Impact   Impact
	Name     string
}

// Permitted reports whether a signal on instrument at time t is allowed
// given the events. The embargo window of an event runs from lead before to
// trail after its release. Pure: same inputs, same answer.
func Permitted(events []Event, instrument string, t time.Time, lead, trail time.Duration, minImpact Impact) bool {
	for _, ev := range events {
		if ev.Impact < minImpact || ev.Impact == ImpactNone {
			continue
		}
		if !concerns(instrument, ev.Currency) {
			continue
		}
		if !t.Before(ev.Time.Add(-lead)) && !t.After(ev.Time.Add(trail)) {
			return false
		}
	}
	return true
}

// concerns matches an event currency against an instrument symbol. Forex
// pairs embed both legs in the symbol; index and commodity symbols match by
// their quote currency convention (USD unless stated).
func concerns(instrument, currency string) bool {
	if currency == "" {
		return false
	}
	return strings.Contains(strings.ToUpper(instrument), strings.ToUpper(currency))
}

// Calendar is the oracle consumed by the replay engine. Events are kept
// time-sorted so the permitted check can stop early.
type Calendar struct {
	cfg    config.EmbargoConfig
	log    *zap.Logger
	events []Event
}

// NewCalendar builds the oracle over a static event list.
func NewCalendar(cfg config.EmbargoConfig, events []Event, log *zap.Logger) *Calendar {
	if log == nil {
		log = zap.NewNop()
	}
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
	return &Calendar{cfg: cfg, log: log, events: sorted}
}

// Permitted applies the configured lead/trail window and impact floor. A
// disabled calendar always permits.
func (c *Calendar) Permitted(instrument string, t time.Time) bool {
	if !c.cfg.Enabled {
		return true
	}
	minImpact := ImpactHigh
	if c.cfg.FilterMedImpact {
		minImpact = ImpactMedium
	}
	if !c.cfg.FilterHighImpact && !c.cfg.FilterMedImpact {
		return true
	}

	lead := time.Duration(c.cfg.LeadMinutes) * time.Minute
	trail := time.Duration(c.cfg.TrailMinutes) * time.Minute

	// Binary search to the first event whose window could still cover t.
	lo := sort.Search(len(c.events), func(i int) bool {
		return !c.events[i].Time.Add(trail).Before(t)
	})
	for i := lo; i < len(c.events); i++ {
		ev := c.events[i]
		if ev.Time.Add(-lead).After(t) {
			break
		}
		if ev.Impact >= minImpact && concerns(instrument, ev.Currency) {
			c.log.Debug("signal embargoed",
				zap.String("instrument", instrument),
				zap.String("event", ev.Name),
				zap.Time("release", ev.Time))
			return false
		}
	}
	return true
}
