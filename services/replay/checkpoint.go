package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// InstrumentProgress is one instrument's resumable position in the stream.
type InstrumentProgress struct {
	BarsSeen int    `json:"bars_seen"`
	LastTs   int64  `json:"last_ts"`
	Open     bool   `json:"open_position"`
	Failed   string `json:"failed,omitempty"`
}

// Checkpoint is a resumable snapshot of a run. Detector state is not
// serialized: it is recomputed by replaying the bounded lookback ahead of
// LastTs, which is cheaper than versioning every detector's internals.
type Checkpoint struct {
	RunID       uuid.UUID                     `json:"run_id"`
	Balance     string                        `json:"balance"`
	Trades      int                           `json:"trades"`
	Instruments map[string]InstrumentProgress `json:"instruments"`
}

// Checkpoint captures the engine's current progress.
func (e *Engine) Checkpoint() Checkpoint {
	cp := Checkpoint{
		RunID:       e.summary.RunID,
		Balance:     e.account.Balance().String(),
		Trades:      len(e.summary.Trades),
		Instruments: make(map[string]InstrumentProgress, len(e.states)),
	}
	for name, st := range e.states {
		p := InstrumentProgress{
			BarsSeen: st.barsSeen,
			LastTs:   st.lastTs,
			Open:     st.pos != nil,
		}
		if st.failed != nil {
			p.Failed = st.failed.Error()
		}
		cp.Instruments[name] = p
	}
	return cp
}

// WriteCheckpoint persists the snapshot as JSON.
func WriteCheckpoint(path string, cp Checkpoint) error {
	b, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", path, err)
	}
	return nil
}

// ReadCheckpoint loads a snapshot written by WriteCheckpoint.
func ReadCheckpoint(path string) (Checkpoint, error) {
	var cp Checkpoint
	b, err := os.ReadFile(path)
	if err != nil {
		return cp, fmt.Errorf("checkpoint: read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &cp); err != nil {
		return cp, fmt.Errorf("checkpoint: parse %s: %w", path, err)
	}
	return cp, nil
}
