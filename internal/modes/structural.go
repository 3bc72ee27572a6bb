package modes

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cogmux/internal/mode"
)

// =============================================================================
// STRUCTURAL MODES: organizing, architecting, planning
// =============================================================================

// NewOrganizing builds the organizing mode. It turns loose items into
// a deduplicated, ordered outline.
func NewOrganizing() mode.Plugin {
	return newBuiltin(
		mode.Definition{
			ID:                    IDOrganizing,
			Name:                  "Organizing",
			Category:              mode.CategoryStructural,
			Keywords:              []string{"organize", "structure", "sort", "group", "categorize", "arrange", "outline"},
			Triggers:              []string{"organize this", "put this in order", "make an outline"},
			Priority:              6,
			Timeout:               10 * time.Second,
			MaxConcurrentSessions: 32,
			Description:           "Turn loose items into an ordered outline",
		},
		Scorer{
			Affinity: []string{IDSummarizing, IDBrainstorming},
			Structure: func(s InputShape) (float64, string) {
				switch {
				case s.HasList && s.Lines >= 5:
					return 0.15, "item list"
				case s.HasList:
					return 0.10, "list markers"
				case s.Lines >= 5:
					return 0.05, "multi-line input"
				}
				return 0, ""
			},
		},
		renderOrganizing,
	)
}

func renderOrganizing(input string, mc mode.Context, mem SessionMemory) mode.Result {
	items := itemLines(input)
	if len(items) == 0 {
		return mode.Failf("nothing to organize")
	}
	sorted := make([]string, len(items))
	copy(sorted, items)
	sort.Strings(sorted)

	var b strings.Builder
	b.WriteString("## Outline\n\n")
	for i, item := range sorted {
		fmt.Fprintf(&b, "%d. %s\n", i+1, truncate(item, 120))
	}
	dropped := 0
	for _, line := range strings.Split(input, "\n") {
		if strings.TrimSpace(line) != "" {
			dropped++
		}
	}
	dropped -= len(items)
	if dropped > 0 {
		fmt.Fprintf(&b, "\n%d duplicate items merged.\n", dropped)
	}

	return mode.Result{
		Success:     true,
		Output:      b.String(),
		Suggestions: []string{"Group the outline into phases", "Reorder by priority instead"},
		NextMode:    IDPlanning,
		Metadata:    map[string]string{"items": fmt.Sprintf("%d", len(sorted))},
	}
}

// NewArchitecting builds the architecting mode for system design
// sketches.
func NewArchitecting() mode.Plugin {
	return newBuiltin(
		mode.Definition{
			ID:                    IDArchitecting,
			Name:                  "Architecting",
			Category:              mode.CategoryStructural,
			Keywords:              []string{"architecture", "architect", "design", "component", "system", "schema", "boundary"},
			Triggers:              []string{"system design", "high-level design", "architecture for", "design a"},
			Priority:              7,
			Timeout:               30 * time.Second,
			MaxConcurrentSessions: 8,
			Description:           "Sketch components, boundaries, and risks for a system",
		},
		Scorer{
			Affinity: []string{IDBrainstorming, IDPlanning},
			Structure: func(s InputShape) (float64, string) {
				if s.Words >= 40 {
					return 0.05, "detailed brief"
				}
				return 0, ""
			},
		},
		renderArchitecting,
	)
}

func renderArchitecting(input string, mc mode.Context, mem SessionMemory) mode.Result {
	topic := subject(input)
	var b strings.Builder
	fmt.Fprintf(&b, "## Architecture Sketch: %s\n\n", topic)
	b.WriteString("**Components**\n")
	b.WriteString("- Entry surface: where requests or inputs arrive\n")
	b.WriteString("- Core: the decision or transform this system exists for\n")
	b.WriteString("- State: what must survive a restart, and where it lives\n\n")
	b.WriteString("**Boundaries**\n")
	b.WriteString("- Keep the core free of transport and storage details\n")
	b.WriteString("- One owner per piece of mutable state\n\n")
	b.WriteString("**Risks**\n")
	b.WriteString("- The unbounded thing: find the queue, cache, or history that needs a cap\n")
	b.WriteString("- The shared thing: find the state two paths mutate and serialize it\n")

	return mode.Result{
		Success:     true,
		Output:      b.String(),
		Suggestions: []string{"Break the sketch into a delivery plan", "Drill into one component"},
		NextMode:    IDImplementing,
		Metadata:    map[string]string{"topic": topic},
	}
}

// NewPlanning builds the planning mode. It converts a goal into
// ordered phases with exit criteria.
func NewPlanning() mode.Plugin {
	return newBuiltin(
		mode.Definition{
			ID:                    IDPlanning,
			Name:                  "Planning",
			Category:              mode.CategoryStructural,
			Keywords:              []string{"plan", "roadmap", "milestone", "schedule", "steps", "phases", "timeline"},
			Triggers:              []string{"make a plan", "plan for", "break this down"},
			Priority:              6,
			Timeout:               15 * time.Second,
			MaxConcurrentSessions: 16,
			Description:           "Convert a goal into ordered phases with exit criteria",
		},
		Scorer{
			Affinity: []string{IDBrainstorming, IDArchitecting, IDOrganizing},
			Structure: func(s InputShape) (float64, string) {
				if s.HasList {
					return 0.05, "listed goals"
				}
				return 0, ""
			},
		},
		renderPlanning,
	)
}

func renderPlanning(input string, mc mode.Context, mem SessionMemory) mode.Result {
	goals := keyPoints(input, 4)
	if len(goals) == 0 {
		return mode.Failf("nothing to plan")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Plan: %s\n\n", subject(input))
	for i, g := range goals {
		fmt.Fprintf(&b, "**Phase %d.** %s\n", i+1, truncate(g, 110))
		b.WriteString("Exit: demonstrably done, not merely started.\n\n")
	}
	b.WriteString("Sequence is strict; a phase starts when the previous one exits.\n")

	return mode.Result{
		Success:     true,
		Output:      b.String(),
		Suggestions: []string{"Start phase 1", "Challenge the phase order"},
		NextMode:    IDImplementing,
		Metadata:    map[string]string{"phases": fmt.Sprintf("%d", len(goals))},
	}
}
