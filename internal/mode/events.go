package mode

import "time"

// EventType names one observable moment in the dispatch lifecycle.
type EventType string

const (
	EventModeActivated     EventType = "mode_activated"
	EventModeDeactivated   EventType = "mode_deactivated"
	EventModeSwitched      EventType = "mode_switched"
	EventDispatchCompleted EventType = "dispatch_completed"
	EventDispatchFailed    EventType = "dispatch_failed"
	EventPolicyUpdated     EventType = "policy_updated"
	EventSessionEnded      EventType = "session_ended"
)

// Event is the typed record the engine publishes to its sink at every
// lifecycle moment. Display and analytics concerns subscribe to these
// instead of being wired into the dispatcher itself.
type Event struct {
	Type         EventType     `json:"type"`
	SessionID    string        `json:"session_id,omitempty"`
	Mode         string        `json:"mode,omitempty"`
	PreviousMode string        `json:"previous_mode,omitempty"`
	Category     Category      `json:"category,omitempty"`
	Trigger      Trigger       `json:"trigger,omitempty"`
	Confidence   float64       `json:"confidence,omitempty"`
	ErrKind      ErrorKind     `json:"error_kind,omitempty"`
	Duration     time.Duration `json:"duration_ns,omitempty"`
	At           time.Time     `json:"at"`
}

// Sink receives engine events. Implementations must be fast or hand
// off internally; the dispatcher calls Publish inline and will not
// wait around for slow consumers.
type Sink interface {
	Publish(Event)
}

// NopSink drops every event. The engine default when nothing is
// injected.
type NopSink struct{}

func (NopSink) Publish(Event) {}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Publish(ev Event) { f(ev) }
