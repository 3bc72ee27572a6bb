package store

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cogmux/internal/mode"
)

// =============================================================================
// EVENT INGESTION
// =============================================================================

// Publish folds engine events into the database. Implements mode.Sink;
// write errors are logged, never surfaced, because a failed history row
// must not take a dispatch down.
func (s *LocalStore) Publish(ev mode.Event) {
	switch ev.Type {
	case mode.EventModeActivated:
		s.touchSession(ev.SessionID, ev.At)
	case mode.EventDispatchCompleted:
		s.touchSession(ev.SessionID, ev.At)
	case mode.EventModeDeactivated:
		s.recordHistory(ev)
	case mode.EventSessionEnded:
		s.endSession(ev.SessionID, ev.At)
	}
}

// recordHistory persists one closed history entry. The deactivation
// event carries the end instant and the duration; start is derived.
func (s *LocalStore) recordHistory(ev mode.Event) {
	if ev.Mode == "" || ev.SessionID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	started := ev.At.Add(-ev.Duration)
	_, err := s.db.Exec(
		`INSERT INTO mode_history (session_id, mode, trigger_kind, confidence, started_at, ended_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.SessionID, ev.Mode, string(ev.Trigger), ev.Confidence,
		started, ev.At, ev.Duration.Milliseconds(),
	)
	if err != nil {
		s.log.Error("history insert failed",
			zap.String("session", ev.SessionID),
			zap.String("mode", ev.Mode),
			zap.Error(err))
	}
}

// touchSession upserts session metadata with a fresh last_touched.
func (s *LocalStore) touchSession(sessionID string, at time.Time) {
	if sessionID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO session_meta (session_id, first_seen, last_touched)
		 VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET last_touched = excluded.last_touched`,
		sessionID, at, at,
	)
	if err != nil {
		s.log.Error("session touch failed", zap.String("session", sessionID), zap.Error(err))
	}
}

// endSession stamps the session's end time, logging failures.
func (s *LocalStore) endSession(sessionID string, at time.Time) {
	if sessionID == "" {
		return
	}
	if err := s.EndSession(sessionID, at); err != nil {
		s.log.Error("session end stamp failed", zap.String("session", sessionID), zap.Error(err))
	}
}

// EndSession stamps the session's end time. Unknown sessions are an
// error so callers can distinguish a typo from a no-op.
func (s *LocalStore) EndSession(sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE session_meta SET ended_at = ? WHERE session_id = ?`,
		at, sessionID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("unknown session %q", sessionID)
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// HistoryRow is one persisted mode activation.
type HistoryRow struct {
	SessionID  string        `json:"session_id"`
	Mode       string        `json:"mode"`
	Trigger    string        `json:"trigger"`
	Confidence float64       `json:"confidence"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    time.Time     `json:"ended_at"`
	Duration   time.Duration `json:"duration"`
}

// History returns a session's persisted entries, newest first.
func (s *LocalStore) History(sessionID string, limit int) ([]HistoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT session_id, mode, trigger_kind, confidence, started_at, ended_at, duration_ms
		 FROM mode_history
		 WHERE session_id = ?
		 ORDER BY started_at DESC, id DESC
		 LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistory(rows)
}

// RecentHistory returns the latest entries across all sessions.
func (s *LocalStore) RecentHistory(limit int) ([]HistoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT session_id, mode, trigger_kind, confidence, started_at, ended_at, duration_ms
		 FROM mode_history
		 ORDER BY started_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistory(rows)
}

func scanHistory(rows *sql.Rows) ([]HistoryRow, error) {
	var out []HistoryRow
	for rows.Next() {
		var r HistoryRow
		var durationMS int64
		if err := rows.Scan(&r.SessionID, &r.Mode, &r.Trigger, &r.Confidence,
			&r.StartedAt, &r.EndedAt, &durationMS); err != nil {
			continue
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// ModeTotal aggregates one mode's persisted usage across all sessions.
type ModeTotal struct {
	Mode        string        `json:"mode"`
	Activations int64         `json:"activations"`
	Active      time.Duration `json:"active"`
}

// TotalsByMode returns lifetime per-mode usage, most used first.
func (s *LocalStore) TotalsByMode() ([]ModeTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT mode, COUNT(*) AS n, COALESCE(SUM(duration_ms), 0) AS total_ms
		 FROM mode_history
		 GROUP BY mode
		 ORDER BY n DESC, mode ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModeTotal
	for rows.Next() {
		var t ModeTotal
		var totalMS int64
		if err := rows.Scan(&t.Mode, &t.Activations, &totalMS); err != nil {
			continue
		}
		t.Active = time.Duration(totalMS) * time.Millisecond
		out = append(out, t)
	}
	return out, rows.Err()
}

// SessionRow is per-session metadata.
type SessionRow struct {
	SessionID   string     `json:"session_id"`
	FirstSeen   time.Time  `json:"first_seen"`
	LastTouched time.Time  `json:"last_touched"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// RecentSessions lists known sessions, most recently touched first.
func (s *LocalStore) RecentSessions(limit int) ([]SessionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT session_id, first_seen, last_touched, ended_at
		 FROM session_meta
		 ORDER BY last_touched DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		var ended sql.NullTime
		if err := rows.Scan(&r.SessionID, &r.FirstSeen, &r.LastTouched, &ended); err != nil {
			continue
		}
		if ended.Valid {
			t := ended.Time
			r.EndedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
