package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cogmux/internal/dispatch"
)

// SavePolicy persists the auto-switch policy as the single policy row.
func (s *LocalStore) SavePolicy(p dispatch.AutoSwitchPolicy) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: marshal policy: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO policy (id, payload, updated_at) VALUES (1, ?, ?)`,
		string(payload), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("store: save policy: %w", err)
	}
	return nil
}

// LoadPolicy returns the persisted policy. found is false when no
// policy has ever been saved.
func (s *LocalStore) LoadPolicy() (p dispatch.AutoSwitchPolicy, found bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err = s.db.QueryRow(`SELECT payload FROM policy WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return dispatch.AutoSwitchPolicy{}, false, nil
	}
	if err != nil {
		return dispatch.AutoSwitchPolicy{}, false, fmt.Errorf("store: load policy: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return dispatch.AutoSwitchPolicy{}, false, fmt.Errorf("store: decode policy: %w", err)
	}
	return p, true, nil
}
