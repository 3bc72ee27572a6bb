package dispatch

import (
	"fmt"
	"sort"
	"time"
)

// ModeUsage is one row of the most-used ranking.
type ModeUsage struct {
	Mode  string `json:"mode"`
	Count int64  `json:"count"`
}

// Statistics is an on-demand projection over the registry counters and
// live sessions. Nothing here is materialized between calls, so it
// cannot drift from the underlying state.
type Statistics struct {
	// TotalModeChanges counts every activation since startup, manual
	// and automatic alike.
	TotalModeChanges int64 `json:"total_mode_changes"`
	// MostUsed ranks modes by lifetime activation count, descending.
	MostUsed []ModeUsage `json:"most_used,omitempty"`
	// ActiveByMode maps mode id to its current active-session count.
	ActiveByMode map[string]int `json:"active_by_mode,omitempty"`
	// TrackedSessions is how many sessions the engine currently holds.
	TrackedSessions int `json:"tracked_sessions"`
	// ActiveSessions is how many of those have a mode active.
	ActiveSessions int `json:"active_sessions"`
	// LastSession is the most recently touched session id.
	LastSession string `json:"last_session,omitempty"`
	// LastSessionMode is that session's active mode, if any.
	LastSessionMode string `json:"last_session_mode,omitempty"`
	// Transitions holds learned previous->next mode counts. Populated
	// only while the policy has learning enabled.
	Transitions map[string]map[string]int64 `json:"transitions,omitempty"`
	// GeneratedAt stamps when this projection was computed.
	GeneratedAt time.Time `json:"generated_at"`
}

// Statistics computes the aggregate view across all known sessions.
func (e *Engine) Statistics() Statistics {
	stats := Statistics{
		ActiveByMode: make(map[string]int),
		GeneratedAt:  e.now(),
	}

	for _, ent := range e.registry.snapshot() {
		total := ent.totalCount()
		stats.TotalModeChanges += total
		if total > 0 {
			stats.MostUsed = append(stats.MostUsed, ModeUsage{Mode: ent.def.ID, Count: total})
		}
		if active := ent.activeCount(); active > 0 {
			stats.ActiveByMode[ent.def.ID] = active
		}
	}
	sort.Slice(stats.MostUsed, func(i, j int) bool {
		if stats.MostUsed[i].Count != stats.MostUsed[j].Count {
			return stats.MostUsed[i].Count > stats.MostUsed[j].Count
		}
		return stats.MostUsed[i].Mode < stats.MostUsed[j].Mode
	})

	e.mu.RLock()
	sessions := make([]*sessionState, 0, len(e.sessions))
	for _, sess := range e.sessions {
		sessions = append(sessions, sess)
	}
	e.mu.RUnlock()

	var lastTouch time.Time
	for _, sess := range sessions {
		sess.mu.Lock()
		if sess.activeMode != "" {
			stats.ActiveSessions++
		}
		if sess.lastTouched.After(lastTouch) {
			lastTouch = sess.lastTouched
			stats.LastSession = sess.id
			stats.LastSessionMode = sess.activeMode
		}
		sess.mu.Unlock()
	}
	stats.TrackedSessions = len(sessions)

	e.learnMu.Lock()
	if len(e.transitions) > 0 {
		stats.Transitions = make(map[string]map[string]int64, len(e.transitions))
		for prev, nexts := range e.transitions {
			inner := make(map[string]int64, len(nexts))
			for next, n := range nexts {
				inner[next] = n
			}
			stats.Transitions[prev] = inner
		}
	}
	e.learnMu.Unlock()

	return stats
}

// Summary renders the one-line form used by logs and the status bar.
func (s Statistics) Summary() string {
	top := "none"
	if len(s.MostUsed) > 0 {
		top = fmt.Sprintf("%s(%d)", s.MostUsed[0].Mode, s.MostUsed[0].Count)
	}
	return fmt.Sprintf("changes=%d sessions=%d/%d top=%s",
		s.TotalModeChanges, s.ActiveSessions, s.TrackedSessions, top)
}
