package modes

import "strings"

// Render helpers shared by the catalog. All of these are deterministic
// string transforms; none of them touch the filesystem or the clock.

// subject distills the input into a short topic line: the first
// sentence, trimmed of terminal punctuation and capped in length.
func subject(input string) string {
	s := strings.TrimSpace(input)
	if sents := splitSentences(input); len(sents) > 0 {
		s = sents[0]
	}
	s = strings.TrimRight(strings.TrimSpace(s), ".!?:")
	if s == "" {
		return "this input"
	}
	return truncate(s, 72)
}

// keyPoints samples up to max sentences, spread across the input so a
// long text contributes from its whole span, not only its opening.
func keyPoints(input string, max int) []string {
	sents := splitSentences(input)
	if len(sents) == 0 || max <= 0 {
		return nil
	}
	if len(sents) <= max {
		out := make([]string, len(sents))
		copy(out, sents)
		return out
	}
	out := make([]string, 0, max)
	step := float64(len(sents)) / float64(max)
	for i := 0; i < max; i++ {
		out = append(out, sents[int(float64(i)*step)])
	}
	return out
}

// firstCodeBlock extracts the first fenced code block. ok is false when
// the input has no complete fence pair.
func firstCodeBlock(input string) (lang, body string, ok bool) {
	open := strings.Index(input, "```")
	if open < 0 {
		return "", "", false
	}
	rest := input[open+3:]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return "", "", false
	}
	lang = strings.TrimSpace(rest[:nl])
	rest = rest[nl+1:]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", "", false
	}
	return lang, strings.Trim(rest[:end], "\n"), true
}

// flaggedLines returns the lines of body containing any marker, capped
// so review output stays readable on huge pastes.
func flaggedLines(body string, limit int, markers ...string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		for _, m := range markers {
			if strings.Contains(lower, m) {
				out = append(out, truncate(trimmed, 96))
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}

// duplicateLines returns lines that appear more than once in body,
// first-occurrence order, ignoring blanks and braces.
func duplicateLines(body string, limit int) []string {
	seen := make(map[string]int)
	var out []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < 8 || trimmed == "}" || trimmed == "{" {
			continue
		}
		seen[trimmed]++
		if seen[trimmed] == 2 {
			out = append(out, truncate(trimmed, 96))
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

// longLines counts lines in body wider than width runes.
func longLines(body string, width int) int {
	n := 0
	for _, line := range strings.Split(body, "\n") {
		if len([]rune(line)) > width {
			n++
		}
	}
	return n
}

// itemLines returns the non-empty trimmed lines of input with list
// markers stripped, deduplicated, original order preserved.
func itemLines(input string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		trimmed = strings.TrimPrefix(trimmed, "- ")
		trimmed = strings.TrimPrefix(trimmed, "* ")
		trimmed = strings.TrimSpace(trimmed)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// truncate caps s at n runes, appending an ellipsis when it cuts.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
