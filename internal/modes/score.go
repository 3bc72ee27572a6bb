// Package modes holds the built-in cognitive mode catalog: a shared
// fitness scorer plus one templated content generator per mode, grouped
// by category. Every mode registers through Register at startup.
package modes

import (
	"fmt"
	"strings"
	"unicode"

	"cogmux/internal/mode"
)

// Score weights. Components are summed and clamped to [0,1]; a single
// trigger phrase plus one keyword lands at 0.9, a lone keyword at 0.3.
const (
	triggerWeight      = 0.60
	keywordWeight      = 0.30
	extraKeywordWeight = 0.10
	keywordCap         = 0.50
	affinityBonus      = 0.10
	structureCap       = 0.15
)

// Breakdown itemizes the components behind one fitness score so the
// reasons surfaced to the user match the arithmetic exactly.
type Breakdown struct {
	TriggerScore   float64
	KeywordScore   float64
	StructureScore float64
	AffinityScore  float64
	Total          float64
	Reasons        []string
}

// Scorer is the per-mode fitness table. All fields are static; Score
// itself is pure and allocation-light, since it runs for every
// registered mode on every dispatch.
type Scorer struct {
	// Keywords are single lowercase tokens matched against the input.
	Keywords []string
	// Triggers are whole lowercase phrases that strongly indicate the
	// mode. One match scores the full trigger weight.
	Triggers []string
	// Affinity lists modes this one naturally follows; a dispatch whose
	// previous mode is listed earns a small bonus.
	Affinity []string
	// Structure is an optional shape heuristic returning a score in
	// [0, structureCap] and a reason. Nil means no structural signal.
	Structure func(s InputShape) (float64, string)
}

// Score computes the full breakdown for one input.
func (sc Scorer) Score(input string, mc mode.Context) Breakdown {
	var bd Breakdown
	lower := strings.ToLower(input)

	for _, phrase := range sc.Triggers {
		if strings.Contains(lower, phrase) {
			bd.TriggerScore = triggerWeight
			bd.Reasons = append(bd.Reasons, fmt.Sprintf("trigger phrase %q", phrase))
			break
		}
	}

	if hits := matchKeywords(lower, sc.Keywords); len(hits) > 0 {
		bd.KeywordScore = keywordWeight + float64(len(hits)-1)*extraKeywordWeight
		if bd.KeywordScore > keywordCap {
			bd.KeywordScore = keywordCap
		}
		bd.Reasons = append(bd.Reasons, "keywords: "+strings.Join(hits, ", "))
	}

	if sc.Structure != nil {
		score, reason := sc.Structure(ShapeOf(input))
		if score > structureCap {
			score = structureCap
		}
		if score > 0 {
			bd.StructureScore = score
			bd.Reasons = append(bd.Reasons, "structure: "+reason)
		}
	}

	if mc.PreviousMode != "" {
		for _, prev := range sc.Affinity {
			if prev == mc.PreviousMode {
				bd.AffinityScore = affinityBonus
				bd.Reasons = append(bd.Reasons, "follows "+prev)
				break
			}
		}
	}

	bd.Total = mode.ClampConfidence(bd.TriggerScore + bd.KeywordScore + bd.StructureScore + bd.AffinityScore)
	return bd
}

// Fitness converts the breakdown into the plugin contract's type.
func (sc Scorer) Fitness(input string, mc mode.Context) mode.Fitness {
	bd := sc.Score(input, mc)
	return mode.NewFitness(bd.Total, bd.Reasons...)
}

// matchKeywords returns the distinct keywords present as whole tokens
// in the lowercased input, in keyword-table order.
func matchKeywords(lower string, keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}
	tokens := tokenize(lower)
	if len(tokens) == 0 {
		return nil
	}
	var hits []string
	for _, kw := range keywords {
		if _, ok := tokens[kw]; ok {
			hits = append(hits, kw)
		}
	}
	return hits
}

// tokenize splits lowercased input into a token set on non-alphanumeric
// boundaries.
func tokenize(lower string) map[string]struct{} {
	out := make(map[string]struct{})
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}

// =============================================================================
// INPUT SHAPE
// =============================================================================

// InputShape captures the cheap structural features the per-mode
// heuristics key on.
type InputShape struct {
	Words        int
	Sentences    int
	Lines        int
	HasQuestion  bool
	HasCodeFence bool
	HasDiff      bool
	HasList      bool
	HasTrace     bool
}

// ShapeOf scans the input once and fills an InputShape.
func ShapeOf(input string) InputShape {
	s := InputShape{
		Words:        len(strings.Fields(input)),
		Sentences:    len(splitSentences(input)),
		HasQuestion:  strings.Contains(input, "?"),
		HasCodeFence: strings.Contains(input, "```"),
	}
	lower := strings.ToLower(input)
	s.HasTrace = strings.Contains(lower, "panic:") ||
		strings.Contains(lower, "stack trace") ||
		strings.Contains(lower, "traceback") ||
		strings.Contains(lower, "error:")

	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		s.Lines++
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") || isNumberedItem(trimmed) {
			s.HasList = true
		}
		if strings.HasPrefix(trimmed, "+++") || strings.HasPrefix(trimmed, "---") || strings.HasPrefix(trimmed, "@@") {
			s.HasDiff = true
		}
	}
	return s
}

// isNumberedItem reports whether a line starts like "1." or "2)".
func isNumberedItem(line string) bool {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	return i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')')
}

// splitSentences breaks input on terminal punctuation. Good enough for
// shape heuristics and summaries; this is not a linguistic parser.
func splitSentences(input string) []string {
	var out []string
	var cur strings.Builder
	for _, r := range input {
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(cur.String()); s != "" && s != "." && s != "!" && s != "?" {
				out = append(out, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}
