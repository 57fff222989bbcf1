package retrieval

import (
	"regexp"
	"strings"
)

var reToken = regexp.MustCompile(`\w+`)

// stopwords is the fixed set dropped during keyword extraction. Tax-law
// queries are dominated by these function words, which carry no retrieval
// signal.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "can": {}, "do": {}, "does": {}, "for": {},
	"from": {}, "how": {}, "i": {}, "if": {}, "in": {}, "is": {},
	"it": {}, "my": {}, "of": {}, "on": {}, "or": {}, "the": {},
	"this": {}, "to": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "who": {}, "why": {}, "will": {}, "with": {},
}

// ExtractKeywords tokenizes a query and returns the lowercase keywords that
// survive stopword and short-token filtering. Tokens of length 2 or less are
// dropped. Order follows first appearance; duplicates are kept out.
func ExtractKeywords(query string) []string {
	tokens := reToken.FindAllString(strings.ToLower(query), -1)
	seen := make(map[string]struct{}, len(tokens))
	var keywords []string
	for _, tok := range tokens {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}
	return keywords
}

// KeywordScore measures how strongly a chunk's content matches the extracted
// keywords. The score is the fraction of keywords present, normalized by a
// length penalty (word count / 100) so long chunks do not win on incidental
// matches, capped at 1.0. Returns 0 for empty inputs.
func KeywordScore(content string, keywords []string) float64 {
	if len(keywords) == 0 || content == "" {
		return 0
	}
	words := reToken.FindAllString(strings.ToLower(content), -1)
	if len(words) == 0 {
		return 0
	}

	present := make(map[string]struct{}, len(words))
	for _, w := range words {
		present[w] = struct{}{}
	}
	matches := 0
	for _, kw := range keywords {
		if _, ok := present[kw]; ok {
			matches++
		}
	}
	if matches == 0 {
		return 0
	}

	penalty := float64(len(words)) / 100.0
	score := float64(matches) / (float64(len(keywords)) * penalty)
	if score > 1.0 {
		return 1.0
	}
	return score
}
