package answer

import (
	"regexp"
	"strings"
)

// Weights are the coefficients of the confidence heuristic. The score is a
// documented heuristic, not a calibrated probability: it rewards answers of
// reasonable length that cite sources and use the retrieved context, and
// penalizes hedging.
type Weights struct {
	Base float64

	ShortPenalty float64 // length < 50 chars
	LengthBonus  float64 // length in [100, 1000] chars

	CitationBonus     float64 // per citation
	CitationBonusMax  float64
	NoCitationPenalty float64

	UncertaintyPenalty    float64 // per uncertainty phrase present
	UncertaintyPenaltyMax float64

	ContextBonus    float64 // per context item used
	ContextBonusMax float64
}

// DefaultWeights are the tuned production coefficients.
var DefaultWeights = Weights{
	Base:                  0.7,
	ShortPenalty:          0.2,
	LengthBonus:           0.1,
	CitationBonus:         0.05,
	CitationBonusMax:      0.15,
	NoCitationPenalty:     0.1,
	UncertaintyPenalty:    0.1,
	UncertaintyPenaltyMax: 0.3,
	ContextBonus:          0.05,
	ContextBonusMax:       0.1,
}

// uncertaintyPhrases are hedges that signal the model lacked grounding.
var uncertaintyPhrases = []string{
	"i'm not sure",
	"i don't know",
	"it's unclear",
	"i'm uncertain",
	"i don't have enough information",
	"it's difficult to determine",
	"i cannot provide",
}

const (
	contextWordMinLen   = 5  // words must be longer than this to count
	contextWordsPerItem = 10 // significant words sampled per context item
)

var reWord = regexp.MustCompile(`\w+`)

// Score rates an answer in [0, 1] using DefaultWeights.
func Score(response string, citations []string, contexts []string) float64 {
	return DefaultWeights.Score(response, citations, contexts)
}

// Score applies the heuristic: base score, then additive adjustments for
// length, citations, uncertainty phrases, and context utilization, clamped
// to [0, 1].
func (w Weights) Score(response string, citations []string, contexts []string) float64 {
	score := w.Base

	switch n := len(response); {
	case n < 50:
		score -= w.ShortPenalty
	case n >= 100 && n <= 1000:
		score += w.LengthBonus
	}

	if len(citations) > 0 {
		score += min(w.CitationBonus*float64(len(citations)), w.CitationBonusMax)
	} else {
		score -= w.NoCitationPenalty
	}

	lower := strings.ToLower(response)
	uncertain := 0
	for _, phrase := range uncertaintyPhrases {
		if strings.Contains(lower, phrase) {
			uncertain++
		}
	}
	if uncertain > 0 {
		score -= min(w.UncertaintyPenalty*float64(uncertain), w.UncertaintyPenaltyMax)
	}

	if used := contextsUsed(lower, contexts); used > 0 {
		score += min(w.ContextBonus*float64(used), w.ContextBonusMax)
	}

	return clamp01(score)
}

// contextsUsed counts context items whose significant words (longer than 5
// characters, at most 10 sampled per item) appear in the response. Each
// item counts once regardless of how many of its words matched.
func contextsUsed(lowerResponse string, contexts []string) int {
	used := 0
	for _, item := range contexts {
		words := reWord.FindAllString(strings.ToLower(item), -1)
		sampled := 0
		for _, word := range words {
			if len(word) <= contextWordMinLen {
				continue
			}
			if strings.Contains(lowerResponse, word) {
				used++
				break
			}
			sampled++
			if sampled >= contextWordsPerItem {
				break
			}
		}
	}
	return used
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
