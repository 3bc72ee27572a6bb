// Package mode defines the plugin contract and the shared data records
// that flow between the dispatcher and individual cognitive modes.
// Everything here is a leaf type: plugins and the engine both import
// this package and nothing else inside cogmux.
package mode

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// MODE CONTRACT
// =============================================================================

// Plugin is the capability contract every cognitive mode implements.
// Implementations are registered once at startup through a static table;
// there is no dynamic loading or reflection.
//
// Lifecycle discipline (enforced by the dispatcher, relied on by plugins):
// Activate is called exactly once when the mode becomes active for a
// session, Process once per dispatch while active, Deactivate exactly
// once when the session leaves the mode.
type Plugin interface {
	// Definition returns the static descriptor for this mode. It must
	// return the same value for the lifetime of the process.
	Definition() Definition

	// CanHandle scores this mode's fitness for the given input. It must
	// be pure (no side effects) and fast, since it runs once per
	// registered plugin on every dispatch. Confidence is clamped to
	// [0,1] by the caller regardless.
	CanHandle(ctx context.Context, input string, mc Context) Fitness

	// Activate prepares per-session state when this mode becomes the
	// session's active mode. It must respect ctx and return promptly.
	Activate(ctx context.Context, mc Context) error

	// Process performs the mode's actual work for one input. On internal
	// failure it returns a Result with Success=false rather than
	// panicking, so the dispatcher can keep the session alive.
	Process(ctx context.Context, input string, mc Context) Result

	// Deactivate releases any per-session state. Called when the session
	// switches away, ends, or the engine shuts down.
	Deactivate(sessionID string)
}

// =============================================================================
// STATIC DEFINITION
// =============================================================================

// Category groups modes by the kind of cognitive work they do.
// The set is closed; Definition validation rejects anything else.
type Category string

const (
	CategoryAnalytical  Category = "analytical"
	CategoryStructural  Category = "structural"
	CategoryCreative    Category = "creative"
	CategoryTechnical   Category = "technical"
	CategoryOperational Category = "operational"
)

// Categories returns the closed category set in stable order.
func Categories() []Category {
	return []Category{
		CategoryAnalytical,
		CategoryStructural,
		CategoryCreative,
		CategoryTechnical,
		CategoryOperational,
	}
}

// Valid reports whether c is a member of the closed category set.
func (c Category) Valid() bool {
	switch c {
	case CategoryAnalytical, CategoryStructural, CategoryCreative,
		CategoryTechnical, CategoryOperational:
		return true
	}
	return false
}

// Trigger records how a mode became active for a session.
type Trigger string

const (
	// TriggerManual marks activations the user asked for by name.
	TriggerManual Trigger = "manual"
	// TriggerAutomatic marks activations won through fitness scoring.
	TriggerAutomatic Trigger = "automatic"
)

// Valid reports whether t is a known trigger kind.
func (t Trigger) Valid() bool {
	return t == TriggerManual || t == TriggerAutomatic
}

// Definition is the static descriptor a plugin registers under.
// All fields are fixed at registration time; the registry hands out
// copies, never pointers into its own state.
type Definition struct {
	// ID uniquely identifies the mode across the registry.
	ID string `json:"id" yaml:"id"`
	// Name is the human-facing display name.
	Name string `json:"name" yaml:"name"`
	// Category places the mode in the closed category set.
	Category Category `json:"category" yaml:"category"`
	// Keywords are single tokens that raise fitness when present.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	// Triggers are whole phrases that strongly indicate this mode.
	Triggers []string `json:"triggers,omitempty" yaml:"triggers,omitempty"`
	// Priority breaks confidence ties; higher wins.
	Priority int `json:"priority" yaml:"priority"`
	// Timeout bounds Activate and Process calls for this mode.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// MaxConcurrentSessions caps how many sessions may hold this mode
	// active at the same instant.
	MaxConcurrentSessions int `json:"max_concurrent_sessions" yaml:"max_concurrent_sessions"`
	// Description is optional help text for the command layer.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Validate checks the definition is complete enough to register.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("mode definition missing id")
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("mode %q: missing display name", d.ID)
	}
	if !d.Category.Valid() {
		return fmt.Errorf("mode %q: unknown category %q", d.ID, d.Category)
	}
	if d.Priority < 0 {
		return fmt.Errorf("mode %q: negative priority %d", d.ID, d.Priority)
	}
	if d.Timeout <= 0 {
		return fmt.Errorf("mode %q: timeout must be positive, got %v", d.ID, d.Timeout)
	}
	if d.MaxConcurrentSessions <= 0 {
		return fmt.Errorf("mode %q: max_concurrent_sessions must be positive, got %d", d.ID, d.MaxConcurrentSessions)
	}
	return nil
}

// SortDefinitions orders definitions by priority (desc) then id for
// stable human-facing listings.
func SortDefinitions(defs []Definition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].Priority != defs[j].Priority {
			return defs[i].Priority > defs[j].Priority
		}
		return defs[i].ID < defs[j].ID
	})
}
