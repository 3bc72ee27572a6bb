package modes

import (
	"fmt"
	"strings"
	"time"

	"cogmux/internal/mode"
)

// =============================================================================
// TECHNICAL MODES: refactoring, implementing, debugging
// =============================================================================

// NewRefactoring builds the refactoring mode. It spots mechanical
// smells and proposes a safe transformation order.
func NewRefactoring() mode.Plugin {
	return newBuiltin(
		mode.Definition{
			ID:                    IDRefactoring,
			Name:                  "Refactoring",
			Category:              mode.CategoryTechnical,
			Keywords:              []string{"refactor", "cleanup", "simplify", "extract", "rename", "dedupe", "restructure"},
			Triggers:              []string{"refactor this", "clean up this code", "make this readable"},
			Priority:              7,
			Timeout:               30 * time.Second,
			MaxConcurrentSessions: 8,
			Description:           "Spot smells and order safe code transformations",
		},
		Scorer{
			Affinity: []string{IDReviewing, IDDebugging},
			Structure: func(s InputShape) (float64, string) {
				if s.HasCodeFence {
					return 0.15, "code block"
				}
				return 0, ""
			},
		},
		renderRefactoring,
	)
}

func renderRefactoring(input string, mc mode.Context, mem SessionMemory) mode.Result {
	body := input
	if _, code, ok := firstCodeBlock(input); ok {
		body = code
	}

	var b strings.Builder
	b.WriteString("## Refactoring Pass\n\n")

	smells := 0
	if dups := duplicateLines(body, 3); len(dups) > 0 {
		b.WriteString("**Duplication** — extract before anything else:\n")
		for _, d := range dups {
			fmt.Fprintf(&b, "- `%s`\n", d)
		}
		b.WriteString("\n")
		smells += len(dups)
	}
	if n := longLines(body, 100); n > 0 {
		fmt.Fprintf(&b, "**Long lines** — %d over 100 columns, usually a sign of buried structure.\n\n", n)
		smells++
	}
	if marked := flaggedLines(body, 3, "todo", "fixme"); len(marked) > 0 {
		fmt.Fprintf(&b, "**Deferred work** — %d markers; finish or file them before reshaping.\n\n", len(marked))
		smells += len(marked)
	}

	b.WriteString("**Order**: add a pinning test, extract duplication, rename for intent, simplify conditionals. One transformation per commit.\n")
	if smells == 0 {
		b.WriteString("\nNo mechanical smells found; remaining gains are naming and shape.\n")
	}

	return mode.Result{
		Success:     true,
		Output:      b.String(),
		Suggestions: []string{"Apply step one", "Show the duplication in context"},
		NextMode:    IDReviewing,
		Metadata:    map[string]string{"smells": fmt.Sprintf("%d", smells)},
	}
}

// NewImplementing builds the implementing mode. It scaffolds a goal
// into steps plus a starting stub.
func NewImplementing() mode.Plugin {
	return newBuiltin(
		mode.Definition{
			ID:                    IDImplementing,
			Name:                  "Implementing",
			Category:              mode.CategoryTechnical,
			Keywords:              []string{"implement", "build", "write", "create", "add", "code", "feature"},
			Triggers:              []string{"implement a", "write a function", "build a", "add support for"},
			Priority:              6,
			Timeout:               30 * time.Second,
			MaxConcurrentSessions: 8,
			Description:           "Scaffold a feature into steps and a starting stub",
		},
		Scorer{
			Affinity: []string{IDPlanning, IDArchitecting, IDDebugging},
			Structure: func(s InputShape) (float64, string) {
				if s.HasCodeFence {
					return 0.10, "code block"
				}
				return 0, ""
			},
		},
		renderImplementing,
	)
}

func renderImplementing(input string, mc mode.Context, mem SessionMemory) mode.Result {
	goal := subject(input)
	lang := guessLanguage(input)

	var b strings.Builder
	fmt.Fprintf(&b, "## Implementing: %s\n\n", goal)
	b.WriteString("**Steps**\n")
	b.WriteString("1. Define the narrowest type or function signature that expresses the goal\n")
	b.WriteString("2. Write the failing test for the primary case\n")
	b.WriteString("3. Implement the straight-line path, no edge handling yet\n")
	b.WriteString("4. Add the edge cases the test list demands\n\n")
	fmt.Fprintf(&b, "**Stub**\n\n```%s\n%s\n```\n", lang, stubFor(lang, goal))

	return mode.Result{
		Success:     true,
		Output:      b.String(),
		Suggestions: []string{"Fill in the stub", "List the edge cases first"},
		NextMode:    IDReviewing,
		Metadata:    map[string]string{"language": lang},
	}
}

// guessLanguage picks a fence language from telltale tokens. Defaults
// to go, matching the tool's audience.
func guessLanguage(input string) string {
	if lang, _, ok := firstCodeBlock(input); ok && lang != "" {
		return lang
	}
	lower := strings.ToLower(input)
	switch {
	case strings.Contains(lower, "def ") || strings.Contains(lower, "python"):
		return "python"
	case strings.Contains(lower, "function ") || strings.Contains(lower, "javascript") || strings.Contains(lower, "typescript"):
		return "typescript"
	case strings.Contains(lower, "fn ") || strings.Contains(lower, "rust"):
		return "rust"
	}
	return "go"
}

func stubFor(lang, goal string) string {
	switch lang {
	case "python":
		return fmt.Sprintf("def solve():\n    \"\"\"%s\"\"\"\n    raise NotImplementedError", goal)
	case "typescript":
		return fmt.Sprintf("// %s\nexport function solve(): void {\n  throw new Error(\"not implemented\");\n}", goal)
	case "rust":
		return fmt.Sprintf("// %s\npub fn solve() {\n    todo!()\n}", goal)
	default:
		return fmt.Sprintf("// solve: %s\nfunc solve() error {\n\treturn errors.New(\"not implemented\")\n}", goal)
	}
}

// NewDebugging builds the debugging mode. It extracts the failure
// signal and proposes hypotheses in check order.
func NewDebugging() mode.Plugin {
	return newBuiltin(
		mode.Definition{
			ID:                    IDDebugging,
			Name:                  "Debugging",
			Category:              mode.CategoryTechnical,
			Keywords:              []string{"debug", "bug", "crash", "panic", "error", "fails", "broken", "fix"},
			Triggers:              []string{"stack trace", "why is this failing", "fix this bug", "doesn't work"},
			Priority:              8,
			Timeout:               30 * time.Second,
			MaxConcurrentSessions: 8,
			Description:           "Isolate a failure and order the hypotheses to check",
		},
		Scorer{
			Affinity: []string{IDImplementing, IDReviewing},
			Structure: func(s InputShape) (float64, string) {
				if s.HasTrace {
					return 0.15, "error output"
				}
				return 0, ""
			},
		},
		renderDebugging,
	)
}

func renderDebugging(input string, mc mode.Context, mem SessionMemory) mode.Result {
	var b strings.Builder
	b.WriteString("## Debugging\n\n")

	if errs := flaggedLines(input, 4, "error", "panic", "fail", "exception"); len(errs) > 0 {
		b.WriteString("**Signal**\n")
		for _, e := range errs {
			fmt.Fprintf(&b, "- `%s`\n", e)
		}
		b.WriteString("\n")
	}

	b.WriteString("**Hypotheses, in check order**\n")
	b.WriteString("1. What changed last: diff against the most recent working state\n")
	b.WriteString("2. Bad input at the boundary: log the exact value entering the failing path\n")
	b.WriteString("3. Shared state: two writers, or a read racing a write\n")
	b.WriteString("4. Environment: version, config, or data differs from where it works\n\n")
	b.WriteString("**Next**: make the failure reproducible in one command before fixing anything.\n")

	return mode.Result{
		Success:     true,
		Output:      b.String(),
		Suggestions: []string{"Paste the full error output", "Describe the last change"},
		NextMode:    IDImplementing,
	}
}
