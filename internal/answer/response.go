package answer

import (
	"regexp"
	"sort"
	"strings"
)

// Source is a structured reference entry tied to the chunks actually sent
// to the model, addressed by bracketed number in the answer text.
type Source struct {
	ID      int    `json:"id"`
	Label   string `json:"label"`
	URL     string `json:"url,omitempty"`
	Excerpt string `json:"excerpt"`
}

const excerptLength = 200

// FormatResponse cleans raw model output and builds the numbered source
// list. When the model echoed the prompt, everything up to and including
// the first answer marker is discarded; later occurrences belong to the
// answer body and are kept verbatim.
func FormatResponse(raw string, refs []Reference) (string, []Source) {
	text := raw
	if idx := strings.Index(text, AnswerMarker); idx >= 0 {
		text = text[idx+len(AnswerMarker):]
	}
	text = strings.TrimSpace(text)

	sources := make([]Source, len(refs))
	for i, ref := range refs {
		excerpt := ref.Content
		if len(excerpt) > excerptLength {
			excerpt = excerpt[:excerptLength] + "..."
		}
		sources[i] = Source{
			ID:      i + 1,
			Label:   ref.Source,
			URL:     ref.URL,
			Excerpt: excerpt,
		}
	}
	return text, sources
}

// citationPatterns match the legal-citation shapes that appear in IRS and
// Treasury materials. Patterns overlap on purpose: "IRC Section 179" also
// yields "Section 179", matching how practitioners cite both forms.
var citationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`IRS Publication \d+`),
	regexp.MustCompile(`IRS Notice \d+-\d+`),
	regexp.MustCompile(`IRC (?:§ ?|Section )\d+(?:\([a-zA-Z0-9]+\))*`),
	regexp.MustCompile(`Treasury Regulation §? ?\d+\.\d+-\d+`),
	regexp.MustCompile(`Section \d+(?:\([a-zA-Z0-9]+\))*`),
	regexp.MustCompile(`\d+ CFR § ?\d+(?:\.\d+)?`),
	regexp.MustCompile(`Revenue Ruling \d+-\d+`),
	regexp.MustCompile(`Tax Court (?:Case|Memo\.?) [\w-]+`),
}

// ExtractCitations scrapes legal citations from answer text. The result is
// a deduplicated set returned in sorted order for determinism.
func ExtractCitations(text string) []string {
	seen := make(map[string]struct{})
	for _, re := range citationPatterns {
		for _, m := range re.FindAllString(text, -1) {
			seen[m] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	citations := make([]string, 0, len(seen))
	for c := range seen {
		citations = append(citations, c)
	}
	sort.Strings(citations)
	return citations
}
