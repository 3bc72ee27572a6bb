package dispatch

import (
	"fmt"
	"sync"
)

// AutoSwitchPolicy controls whether the engine may replace a session's
// active mode on its own when a stronger candidate appears. Updates
// replace the whole value; dispatch calls read one consistent snapshot
// and never observe a partial update.
type AutoSwitchPolicy struct {
	// Enabled allows automatic replacement at all. When false only
	// explicit SetMode calls change a session's active mode.
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Threshold is the confidence gain a challenger must have over the
	// active mode's confidence at activation before an automatic switch
	// happens. The margin is what keeps sessions from thrashing between
	// near-equal modes.
	Threshold float64 `json:"threshold" yaml:"threshold"`
	// LearningEnabled turns on recording of mode-transition patterns
	// for the statistics and analytics surfaces.
	LearningEnabled bool `json:"learning_enabled" yaml:"learning_enabled"`
}

// DefaultAutoSwitchPolicy matches the engine's startup behavior:
// automatic switching on, a 0.2 confidence margin, learning off.
func DefaultAutoSwitchPolicy() AutoSwitchPolicy {
	return AutoSwitchPolicy{Enabled: true, Threshold: 0.2}
}

// Validate rejects thresholds outside [0,1].
func (p AutoSwitchPolicy) Validate() error {
	if p.Threshold < 0 || p.Threshold > 1 {
		return fmt.Errorf("auto-switch threshold %.3f outside [0,1]", p.Threshold)
	}
	return nil
}

// policyHolder guards the live policy value. Reads take a snapshot so
// a dispatch call works against one consistent policy even while an
// update lands mid-flight.
type policyHolder struct {
	mu sync.RWMutex
	p  AutoSwitchPolicy
}

func (h *policyHolder) snapshot() AutoSwitchPolicy {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.p
}

func (h *policyHolder) update(p AutoSwitchPolicy) {
	h.mu.Lock()
	h.p = p
	h.mu.Unlock()
}
