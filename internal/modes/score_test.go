package modes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"cogmux/internal/mode"
)

func TestScorer_TriggerPlusKeyword(t *testing.T) {
	sc := Scorer{
		Keywords: []string{"summarize", "summary"},
		Triggers: []string{"summarize this"},
	}
	bd := sc.Score("summarize this", mode.Context{})

	assert.InDelta(t, 0.60, bd.TriggerScore, 1e-9)
	assert.InDelta(t, 0.30, bd.KeywordScore, 1e-9)
	assert.InDelta(t, 0.90, bd.Total, 1e-9)
	assert.NotEmpty(t, bd.Reasons)
}

func TestScorer_KeywordCap(t *testing.T) {
	sc := Scorer{Keywords: []string{"a1", "b2", "c3", "d4", "e5"}}
	bd := sc.Score("a1 b2 c3 d4 e5", mode.Context{})

	// First keyword 0.3, each extra 0.1, capped at 0.5.
	assert.InDelta(t, 0.50, bd.KeywordScore, 1e-9)
	assert.InDelta(t, 0.50, bd.Total, 1e-9)
}

func TestScorer_KeywordsMatchWholeTokens(t *testing.T) {
	sc := Scorer{Keywords: []string{"sort"}}

	bd := sc.Score("please sort these", mode.Context{})
	assert.InDelta(t, 0.30, bd.Total, 1e-9)

	// "resort" must not match "sort".
	bd = sc.Score("the resort was lovely", mode.Context{})
	assert.Zero(t, bd.Total)
}

func TestScorer_AffinityBonus(t *testing.T) {
	sc := Scorer{Keywords: []string{"plan"}, Affinity: []string{"brainstorming"}}

	without := sc.Score("plan it", mode.Context{})
	with := sc.Score("plan it", mode.Context{PreviousMode: "brainstorming"})

	assert.InDelta(t, 0.10, with.Total-without.Total, 1e-9)
	assert.Contains(t, strings.Join(with.Reasons, " "), "brainstorming")
}

func TestScorer_StructureCapped(t *testing.T) {
	sc := Scorer{
		Structure: func(s InputShape) (float64, string) { return 0.9, "oversized" },
	}
	bd := sc.Score("anything", mode.Context{})
	assert.InDelta(t, structureCap, bd.StructureScore, 1e-9)
}

func TestScorer_TotalClamped(t *testing.T) {
	sc := Scorer{
		Keywords:  []string{"a1", "b2", "c3"},
		Triggers:  []string{"a1 b2"},
		Affinity:  []string{"x"},
		Structure: func(s InputShape) (float64, string) { return 0.15, "full" },
	}
	bd := sc.Score("a1 b2 c3", mode.Context{PreviousMode: "x"})
	assert.LessOrEqual(t, bd.Total, 1.0)
}

func TestShapeOf(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, s InputShape)
	}{
		{
			name:  "question",
			input: "how does this work?",
			check: func(t *testing.T, s InputShape) { assert.True(t, s.HasQuestion) },
		},
		{
			name:  "code fence",
			input: "look:\n```go\nfunc main() {}\n```",
			check: func(t *testing.T, s InputShape) { assert.True(t, s.HasCodeFence) },
		},
		{
			name:  "diff markers",
			input: "--- a/x.go\n+++ b/x.go\n@@ -1 +1 @@",
			check: func(t *testing.T, s InputShape) { assert.True(t, s.HasDiff) },
		},
		{
			name:  "bullet list",
			input: "- first\n- second\n- third",
			check: func(t *testing.T, s InputShape) {
				assert.True(t, s.HasList)
				assert.Equal(t, 3, s.Lines)
			},
		},
		{
			name:  "numbered list",
			input: "1. first\n2) second",
			check: func(t *testing.T, s InputShape) { assert.True(t, s.HasList) },
		},
		{
			name:  "trace",
			input: "panic: runtime error: index out of range",
			check: func(t *testing.T, s InputShape) { assert.True(t, s.HasTrace) },
		},
		{
			name:  "plain prose",
			input: "Nothing structured here at all",
			check: func(t *testing.T, s InputShape) {
				assert.False(t, s.HasQuestion)
				assert.False(t, s.HasCodeFence)
				assert.False(t, s.HasDiff)
				assert.False(t, s.HasList)
				assert.False(t, s.HasTrace)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, ShapeOf(tt.input))
		})
	}
}

func TestSplitSentences(t *testing.T) {
	sents := splitSentences("First one. Second one! Third one? Fourth")
	assert.Len(t, sents, 4)
	assert.Equal(t, "First one.", sents[0])
	assert.Equal(t, "Fourth", sents[3])

	assert.Empty(t, splitSentences(""))
}

func TestKeyPoints_SpreadsAcrossInput(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("Sentence number ")
		b.WriteString(string(rune('a' + i)))
		b.WriteString(". ")
	}
	points := keyPoints(b.String(), 5)
	assert.Len(t, points, 5)
	// First point comes from the opening, last from well past the middle.
	assert.Equal(t, "Sentence number a.", points[0])
	assert.NotEqual(t, points[0], points[4])
}
