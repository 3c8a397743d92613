// Package sessions restricts signal emission to the high-liquidity windows
// of the trading day. The check is pure clock arithmetic over configured
// UTC hour windows; no market state is consulted.
package sessions

import (
	"time"

	"go.uber.org/zap"

	"smcengine/services/config"
)

// Within reports whether t falls inside the window. EndHour is exclusive;
// a window whose EndHour is not after its StartHour wraps midnight.
func Within(w config.SessionWindow, t time.Time) bool {
	h := t.UTC().Hour()
	if w.StartHour < w.EndHour {
		return h >= w.StartHour && h < w.EndHour
	}
	return h >= w.StartHour || h < w.EndHour
}

// Gate is the session oracle consumed by the replay engine.
type Gate struct {
	cfg config.SessionsConfig
	log *zap.Logger
}

// NewGate builds the oracle from validated config.
func NewGate(cfg config.SessionsConfig, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{cfg: cfg, log: log}
}

// Permitted reports whether a signal at t falls inside any configured
// window. A disabled gate always permits.
func (g *Gate) Permitted(t time.Time) bool {
	if !g.cfg.Enabled {
		return true
	}
	for _, w := range g.cfg.Windows {
		if Within(w, t) {
			return true
		}
	}
	return false
}
