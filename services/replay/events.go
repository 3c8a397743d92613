package replay

// EventType enumerates everything the replay engine can log.
type EventType int

const (
	EventSignal EventType = iota
	EventPositionOpen
	EventStopHit
	EventTargetHit
	EventTrailingMove
	EventBreakEvenMove
	EventPartialClose
	EventForceClose
	EventSignalDropped
)

func (t EventType) String() string {
	switch t {
	case EventSignal:
		return "signal"
	case EventPositionOpen:
		return "position_open"
	case EventStopHit:
		return "stop_hit"
	case EventTargetHit:
		return "target_hit"
	case EventTrailingMove:
		return "trailing_move"
	case EventBreakEvenMove:
		return "break_even_move"
	case EventPartialClose:
		return "partial_close"
	case EventForceClose:
		return "force_close"
	case EventSignalDropped:
		return "signal_dropped"
	}
	return "unknown"
}

// Event is one append-only audit record. Details carry event-specific
// key/value context; the log itself is never consulted by the engine, only
// by forensics and tests.
type Event struct {
	Ts         int64
	Type       EventType
	Instrument string
	Details    map[string]string
}

// EventLog is the run's append-only audit trail.
type EventLog struct {
	Events []Event
}

// Append records an event.
func (l *EventLog) Append(e Event) { l.Events = append(l.Events, e) }

// Count returns how many events of the given type were logged.
func (l *EventLog) Count(t EventType) int {
	n := 0
	for _, e := range l.Events {
		if e.Type == t {
			n++
		}
	}
	return n
}
