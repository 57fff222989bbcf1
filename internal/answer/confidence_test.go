package answer

import (
	"math"
	"strings"
	"testing"
)

func scoreApprox(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Score() = %v, want %v", got, want)
	}
}

func TestScore_WellFormedAnswer(t *testing.T) {
	t.Parallel()

	response := "Under IRC Section 179, a taxpayer may elect to expense the cost of qualifying property placed in service during the tax year, subject to the annual deduction limit."
	citations := ExtractCitations(response) // IRC Section 179, Section 179
	contexts := []string{"Section 179 allows a deduction up to $1,160,000 for tax year 2023."}

	// base 0.7 + length 0.1 + two citations 0.1 + one context used 0.05
	scoreApprox(t, Score(response, citations, contexts), 0.95)
}

func TestScore_ShortNoCitations(t *testing.T) {
	t.Parallel()

	// base 0.7 - short 0.2 - no citations 0.1
	scoreApprox(t, Score("It depends.", nil, nil), 0.4)
}

func TestScore_UncertaintyPhrases(t *testing.T) {
	t.Parallel()

	// 64 chars: no length adjustment. Two hedges, no citations.
	response := "I'm not sure about this question. I don't know the exact answer."
	if len(response) < 50 || len(response) >= 100 {
		t.Fatalf("test response length %d outside neutral band", len(response))
	}
	// base 0.7 - no citations 0.1 - uncertainty 0.2
	scoreApprox(t, Score(response, nil, nil), 0.4)
}

func TestScore_UncertaintyPenaltyCapped(t *testing.T) {
	t.Parallel()

	response := "I'm not sure. I don't know. It's unclear. I'm uncertain. I cannot provide more, and it's difficult to determine."
	if len(response) < 100 || len(response) > 1000 {
		t.Fatalf("test response length %d outside bonus band", len(response))
	}
	// base 0.7 + length 0.1 - no citations 0.1 - uncertainty capped at 0.3
	scoreApprox(t, Score(response, nil, nil), 0.4)
}

func TestScore_CitationBonusCapped(t *testing.T) {
	t.Parallel()

	response := strings.Repeat("answer text ", 12) // ~144 chars, in bonus band
	citations := []string{"Section 61", "Section 62", "Section 63", "Section 64"}
	// base 0.7 + length 0.1 + citations capped at 0.15
	scoreApprox(t, Score(response, citations, nil), 0.95)
}

func TestScore_ContextBonusCapped(t *testing.T) {
	t.Parallel()

	response := strings.Repeat("depreciation deduction recapture ", 5) // ~165 chars
	contexts := []string{
		"depreciation schedules for property",
		"deduction limits for vehicles",
		"recapture computation worksheet",
	}
	// base 0.7 + length 0.1 - no citations 0.1 + context capped at 0.1
	scoreApprox(t, Score(response, nil, contexts), 0.8)
}

func TestScore_ClampedToOne(t *testing.T) {
	t.Parallel()

	response := strings.Repeat("The Section 179 deduction limit applies to qualifying property. ", 4)
	citations := []string{"Section 179", "IRC Section 179", "IRS Publication 946"}
	contexts := []string{"Section 179 deduction limits", "qualifying property definitions"}
	// Unclamped: 0.7 + 0.1 + 0.15 + 0.1 = 1.05.
	scoreApprox(t, Score(response, citations, contexts), 1.0)
}

func TestScore_Bounds(t *testing.T) {
	t.Parallel()

	responses := []string{
		"",
		"short",
		"I'm not sure. I don't know. It's unclear. I'm uncertain. I cannot provide an answer.",
		strings.Repeat("a", 2000),
		strings.Repeat("confident detailed answer with citations ", 10),
	}
	citationSets := [][]string{nil, {"Section 1"}, {"a", "b", "c", "d", "e"}}
	contextSets := [][]string{nil, {"matching citations answer"}, {"x", "y"}}

	for _, r := range responses {
		for _, cs := range citationSets {
			for _, ctx := range contextSets {
				got := Score(r, cs, ctx)
				if got < 0 || got > 1 {
					t.Errorf("Score(%.20q, %d citations, %d contexts) = %v out of [0,1]",
						r, len(cs), len(ctx), got)
				}
			}
		}
	}
}
