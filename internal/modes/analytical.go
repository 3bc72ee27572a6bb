package modes

import (
	"fmt"
	"strings"
	"time"

	"cogmux/internal/mode"
)

// =============================================================================
// ANALYTICAL MODES: summarizing, explaining, reviewing
// =============================================================================

// NewSummarizing builds the summarizing mode. It condenses long input
// into a handful of key points.
func NewSummarizing() mode.Plugin {
	return newBuiltin(
		mode.Definition{
			ID:                    IDSummarizing,
			Name:                  "Summarizing",
			Category:              mode.CategoryAnalytical,
			Keywords:              []string{"summarize", "summary", "condense", "digest", "recap", "shorten"},
			Triggers:              []string{"tl;dr", "summarize this", "give me a summary", "in summary"},
			Priority:              8,
			Timeout:               10 * time.Second,
			MaxConcurrentSessions: 32,
			Description:           "Condense long input into key points",
		},
		Scorer{
			Affinity: []string{IDExplaining, IDReviewing},
			Structure: func(s InputShape) (float64, string) {
				switch {
				case s.Words >= 120:
					return 0.15, "long input"
				case s.Words >= 60:
					return 0.10, "medium input"
				}
				return 0, ""
			},
		},
		renderSummarizing,
	)
}

func renderSummarizing(input string, mc mode.Context, mem SessionMemory) mode.Result {
	points := keyPoints(input, 5)
	if len(points) == 0 {
		return mode.Failf("nothing to summarize")
	}

	var b strings.Builder
	b.WriteString("## Summary\n\n")
	for _, p := range points {
		fmt.Fprintf(&b, "- %s\n", truncate(p, 120))
	}
	total := len(splitSentences(input))
	fmt.Fprintf(&b, "\n%d sentences condensed to %d points.\n", total, len(points))

	return mode.Result{
		Success:     true,
		Output:      b.String(),
		Suggestions: []string{"Organize these points into an outline", "Expand any point for detail"},
		NextMode:    IDOrganizing,
		Metadata:    map[string]string{"points": fmt.Sprintf("%d", len(points))},
	}
}

// NewExplaining builds the explaining mode for "what/how/why does X"
// questions.
func NewExplaining() mode.Plugin {
	return newBuiltin(
		mode.Definition{
			ID:                    IDExplaining,
			Name:                  "Explaining",
			Category:              mode.CategoryAnalytical,
			Keywords:              []string{"explain", "meaning", "clarify", "understand", "eli5"},
			Triggers:              []string{"what does", "how does", "why does", "explain this", "what is"},
			Priority:              7,
			Timeout:               15 * time.Second,
			MaxConcurrentSessions: 32,
			Description:           "Unpack what something is, how it works, and why it matters",
		},
		Scorer{
			Affinity: []string{IDDebugging, IDReviewing},
			Structure: func(s InputShape) (float64, string) {
				if s.HasQuestion {
					return 0.10, "question"
				}
				return 0, ""
			},
		},
		renderExplaining,
	)
}

func renderExplaining(input string, mc mode.Context, mem SessionMemory) mode.Result {
	topic := subject(input)
	var b strings.Builder
	fmt.Fprintf(&b, "## Explaining: %s\n\n", topic)
	fmt.Fprintf(&b, "**What it is.** The core of %q in one sentence, before any detail.\n\n", topic)
	b.WriteString("**How it works.** The mechanism, traced step by step from input to effect.\n\n")
	b.WriteString("**Why it matters.** The problem it solves and what breaks without it.\n")

	return mode.Result{
		Success:     true,
		Output:      b.String(),
		Suggestions: []string{"Ask for a worked example", "Ask what the common mistakes are"},
		Metadata:    map[string]string{"topic": topic},
	}
}

// NewReviewing builds the reviewing mode for critiquing code or prose.
func NewReviewing() mode.Plugin {
	return newBuiltin(
		mode.Definition{
			ID:                    IDReviewing,
			Name:                  "Reviewing",
			Category:              mode.CategoryAnalytical,
			Keywords:              []string{"review", "critique", "feedback", "assess", "evaluate", "audit"},
			Triggers:              []string{"code review", "review this", "take a look at"},
			Priority:              7,
			Timeout:               20 * time.Second,
			MaxConcurrentSessions: 16,
			Description:           "Structured critique of code or prose",
		},
		Scorer{
			Affinity: []string{IDImplementing, IDRefactoring},
			Structure: func(s InputShape) (float64, string) {
				switch {
				case s.HasDiff:
					return 0.15, "diff markers"
				case s.HasCodeFence:
					return 0.10, "code block"
				}
				return 0, ""
			},
		},
		renderReviewing,
	)
}

func renderReviewing(input string, mc mode.Context, mem SessionMemory) mode.Result {
	var b strings.Builder
	b.WriteString("## Review\n\n")

	body := input
	if _, code, ok := firstCodeBlock(input); ok {
		body = code
		b.WriteString("Scope: first code block in the input.\n\n")
	}

	findings := 0
	if marked := flaggedLines(body, 5, "todo", "fixme", "hack", "xxx"); len(marked) > 0 {
		b.WriteString("**Unfinished markers**\n")
		for _, line := range marked {
			fmt.Fprintf(&b, "- `%s`\n", line)
		}
		b.WriteString("\n")
		findings += len(marked)
	}
	if n := longLines(body, 100); n > 0 {
		fmt.Fprintf(&b, "**Readability**: %d lines exceed 100 columns.\n\n", n)
		findings++
	}
	if dups := duplicateLines(body, 3); len(dups) > 0 {
		b.WriteString("**Duplication**\n")
		for _, line := range dups {
			fmt.Fprintf(&b, "- `%s` appears more than once\n", line)
		}
		b.WriteString("\n")
		findings += len(dups)
	}

	b.WriteString("**Checklist**: correctness, naming, error paths, test coverage.\n")
	if findings == 0 {
		b.WriteString("\nNo mechanical findings; remaining review is judgment.\n")
	}

	return mode.Result{
		Success:     true,
		Output:      b.String(),
		Suggestions: []string{"Address the flagged items", "Ask for a deeper pass on one section"},
		NextMode:    IDRefactoring,
		Metadata:    map[string]string{"findings": fmt.Sprintf("%d", findings)},
	}
}
