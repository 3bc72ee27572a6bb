package dispatch

import (
	"sync"
	"time"

	"cogmux/internal/mode"
)

// =============================================================================
// SESSION STATE
// =============================================================================

// HistoryEntry records one stretch of a mode being active for a
// session. EndedAt stays zero while the mode is still active; the open
// entry is always the newest one.
type HistoryEntry struct {
	Mode       string        `json:"mode"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    time.Time     `json:"ended_at,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Trigger    mode.Trigger  `json:"trigger"`
	Confidence float64       `json:"confidence,omitempty"`
}

// Active reports whether this entry is still open.
func (h HistoryEntry) Active() bool { return h.EndedAt.IsZero() }

// sessionState is the per-session record the engine owns. The mutex
// serializes the whole dispatch sequence for this session; sessions
// never share a lock, so cross-session calls stay parallel.
type sessionState struct {
	mu sync.Mutex

	id                     string
	activeMode             string // empty when no mode is active
	activatedAt            time.Time
	confidenceAtActivation float64
	lastTouched            time.Time

	history      []HistoryEntry
	historyLimit int
}

func newSessionState(id string, historyLimit int) *sessionState {
	if historyLimit < 1 {
		historyLimit = 1
	}
	return &sessionState{id: id, historyLimit: historyLimit}
}

// openEntry appends a fresh active entry, evicting the oldest record
// when the bound is hit. The open entry is appended last, so eviction
// only ever removes closed entries. Callers hold s.mu.
func (s *sessionState) openEntry(modeID string, trigger mode.Trigger, confidence float64, now time.Time) {
	s.history = append(s.history, HistoryEntry{
		Mode:       modeID,
		StartedAt:  now,
		Trigger:    trigger,
		Confidence: confidence,
	})
	if len(s.history) > s.historyLimit {
		overflow := len(s.history) - s.historyLimit
		s.history = append(s.history[:0:0], s.history[overflow:]...)
	}
	s.activeMode = modeID
	s.activatedAt = now
	s.confidenceAtActivation = confidence
}

// closeEntry stamps the open entry with its end time and duration and
// clears the active mode. It returns the closed entry for sinks.
// Callers hold s.mu.
func (s *sessionState) closeEntry(now time.Time) (HistoryEntry, bool) {
	if s.activeMode == "" || len(s.history) == 0 {
		return HistoryEntry{}, false
	}
	last := &s.history[len(s.history)-1]
	if !last.Active() {
		return HistoryEntry{}, false
	}
	last.EndedAt = now
	last.Duration = now.Sub(last.StartedAt)
	s.activeMode = ""
	s.confidenceAtActivation = 0
	closed := *last
	return closed, true
}

// historyCopy returns the entries oldest-first. Callers hold s.mu.
func (s *sessionState) historyCopy() []HistoryEntry {
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}
