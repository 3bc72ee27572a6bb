package mode

import (
	"fmt"
	"time"
)

// Context is the immutable record handed to plugins for one dispatch
// call. The dispatcher builds a fresh Context per call; plugins must
// treat it as read-only. Derivation helpers return copies.
type Context struct {
	// SessionID identifies the conversation this dispatch belongs to.
	SessionID string `json:"session_id"`
	// Input is the raw user input being dispatched.
	Input string `json:"input"`
	// Timestamp is when the dispatch started.
	Timestamp time.Time `json:"timestamp"`
	// PreviousMode is the mode active for the session before this
	// dispatch, or empty when the session had none.
	PreviousMode string `json:"previous_mode,omitempty"`
	// Confidence is the winning fitness score, populated by the
	// dispatcher after the scoring phase (zero during CanHandle).
	Confidence float64 `json:"confidence,omitempty"`
	// Metadata carries free-form caller-supplied hints.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// WithConfidence returns a copy of the context carrying the winning
// confidence score. The receiver is left untouched.
func (c Context) WithConfidence(confidence float64) Context {
	c.Confidence = ClampConfidence(confidence)
	return c
}

// Meta returns the metadata value for key, or "" when absent.
func (c Context) Meta(key string) string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}

// CloneMetadata returns a defensive copy of a metadata map. A nil map
// stays nil so callers can pass options through untouched.
func CloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Fitness is a plugin's self-assessment for one input: a confidence in
// [0,1] plus the human-readable reasoning behind it. Never mutated
// after creation.
type Fitness struct {
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`
}

// NewFitness builds a Fitness with the confidence clamped to [0,1].
func NewFitness(confidence float64, reasons ...string) Fitness {
	return Fitness{Confidence: ClampConfidence(confidence), Reasons: reasons}
}

// ClampConfidence forces v into [0,1]. NaN collapses to 0.
func ClampConfidence(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Result is what a plugin's Process returns. It travels back to the
// caller and a summary of it lands in session history.
type Result struct {
	// Success is false when the mode failed internally; Output then
	// carries the failure message instead of content.
	Success bool `json:"success"`
	// Output is the mode's rendered content (markdown).
	Output string `json:"output"`
	// Suggestions are optional follow-up prompts for the user.
	Suggestions []string `json:"suggestions,omitempty"`
	// NextMode optionally recommends a mode for the next input.
	NextMode string `json:"next_mode,omitempty"`
	// Confidence echoes the fitness score the dispatch ran under.
	Confidence float64 `json:"confidence,omitempty"`
	// Metadata carries mode-specific details for sinks and callers.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Failf builds a failed Result with a formatted message. Plugins use
// this instead of panicking so the dispatcher can keep the session
// alive.
func Failf(format string, args ...interface{}) Result {
	return Result{Success: false, Output: fmt.Sprintf(format, args...)}
}
