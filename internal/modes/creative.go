package modes

import (
	"fmt"
	"strings"
	"time"

	"cogmux/internal/mode"
)

// =============================================================================
// CREATIVE MODES: brainstorming, documenting
// =============================================================================

// NewBrainstorming builds the brainstorming mode. It widens one topic
// into distinct angles before anything converges.
func NewBrainstorming() mode.Plugin {
	return newBuiltin(
		mode.Definition{
			ID:                    IDBrainstorming,
			Name:                  "Brainstorming",
			Category:              mode.CategoryCreative,
			Keywords:              []string{"brainstorm", "ideas", "alternatives", "options", "possibilities", "explore"},
			Triggers:              []string{"give me ideas", "what are my options", "think of"},
			Priority:              5,
			Timeout:               15 * time.Second,
			MaxConcurrentSessions: 16,
			Description:           "Widen a topic into distinct angles",
		},
		Scorer{
			Structure: func(s InputShape) (float64, string) {
				if s.HasQuestion {
					return 0.05, "open question"
				}
				return 0, ""
			},
		},
		renderBrainstorming,
	)
}

func renderBrainstorming(input string, mc mode.Context, mem SessionMemory) mode.Result {
	topic := subject(input)
	var b strings.Builder
	fmt.Fprintf(&b, "## Angles on: %s\n\n", topic)
	fmt.Fprintf(&b, "1. **Invert** — what would guarantee failure for %q? Avoid exactly that.\n", topic)
	b.WriteString("2. **Constrain** — solve it with a tenth of the budget, time, or code.\n")
	b.WriteString("3. **Combine** — bolt it onto something that already works.\n")
	b.WriteString("4. **Scale** — what changes at 100x volume? Design for that first.\n")
	b.WriteString("5. **Steal** — name the nearest solved problem and copy its shape.\n")

	return mode.Result{
		Success:     true,
		Output:      b.String(),
		Suggestions: []string{"Develop one angle", "Turn the best angle into a plan"},
		NextMode:    IDPlanning,
		Metadata:    map[string]string{"angles": "5"},
	}
}

// NewDocumenting builds the documenting mode. It drafts a doc skeleton
// around the input.
func NewDocumenting() mode.Plugin {
	return newBuiltin(
		mode.Definition{
			ID:                    IDDocumenting,
			Name:                  "Documenting",
			Category:              mode.CategoryCreative,
			Keywords:              []string{"document", "docs", "readme", "comment", "docstring", "documentation"},
			Triggers:              []string{"write docs", "document this", "add a readme"},
			Priority:              5,
			Timeout:               20 * time.Second,
			MaxConcurrentSessions: 16,
			Description:           "Draft a documentation skeleton around the input",
		},
		Scorer{
			Affinity: []string{IDImplementing, IDReviewing},
			Structure: func(s InputShape) (float64, string) {
				if s.HasCodeFence {
					return 0.10, "code block"
				}
				return 0, ""
			},
		},
		renderDocumenting,
	)
}

func renderDocumenting(input string, mc mode.Context, mem SessionMemory) mode.Result {
	topic := subject(input)
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", topic)
	b.WriteString("## Overview\n\nOne paragraph: what it does and the problem it removes. No history, no apology.\n\n")
	b.WriteString("## Usage\n\nThe single most common invocation, runnable as written.\n\n")
	if lang, code, ok := firstCodeBlock(input); ok {
		fmt.Fprintf(&b, "```%s\n%s\n```\n\n", lang, truncate(code, 400))
	}
	b.WriteString("## Notes\n\nSharp edges and defaults the reader will trip on otherwise.\n")

	return mode.Result{
		Success:     true,
		Output:      b.String(),
		Suggestions: []string{"Fill in the overview", "List the sharp edges"},
		Metadata:    map[string]string{"topic": topic},
	}
}
