// Package textproc prepares raw tax-law document text for indexing.
//
// It contains two stages that run before embedding:
//
//   - Preprocess: cleans whitespace, repairs common OCR misreadings and
//     broken paragraph breaks, and normalizes legal citation shorthand.
//   - Chunk / ChunkSections: splits cleaned text into overlapping,
//     boundary-aware segments sized for the embedding model.
//
// All functions are pure and never fail; unmatched patterns pass through
// unchanged, and Preprocess is idempotent on already-clean text.
package textproc

import (
	"regexp"
	"strings"
)

// Whitespace normalization patterns.
var (
	reSpaceRuns    = regexp.MustCompile(` +`)
	reNewlineRuns  = regexp.MustCompile(`\n{3,}`)
	reLeadingSpace = regexp.MustCompile(`\n +`)
)

// ocrFix pairs a misreading pattern with its correction.
// Applied in order; a map would randomize application order across runs.
type ocrFix struct {
	pattern     *regexp.Regexp
	replacement string
}

// apply rewrites only genuine misreadings: matches carrying a digit swap
// or an internal split. A clean spelling that happens to match the pattern
// passes through untouched, so corrections never flip the case of text the
// citation normalizer has already produced.
func (f ocrFix) apply(text string) string {
	return f.pattern.ReplaceAllStringFunc(text, func(m string) string {
		if !strings.ContainsAny(m, "0134 \t\n") {
			return m
		}
		repl := f.replacement
		switch c := m[0]; {
		case c >= 'A' && c <= 'Z':
			repl = strings.ToUpper(repl[:1]) + repl[1:]
		case c >= 'a' && c <= 'z':
			repl = strings.ToLower(repl[:1]) + repl[1:]
		}
		return repl
	})
}

// ocrFixes corrects misreadings that show up repeatedly in scanned IRS
// publications: split acronyms ("I RS") and digit-for-letter swaps
// (1 for i, 3 for e, 4 for a, 0 for o).
var ocrFixes = []ocrFix{
	{regexp.MustCompile(`I RS`), "IRS"},
	{regexp.MustCompile(`(?i)Sect\s*[i1]on`), "Section"},
	{regexp.MustCompile(`(?i)[0O]rd[i1]nary`), "Ordinary"},
	{regexp.MustCompile(`(?i)[i1]ncome`), "income"},
	{regexp.MustCompile(`(?i)d[e3]duct[i1]on`), "deduction"},
	{regexp.MustCompile(`(?i)cr[e3]d[i1]t`), "credit"},
	{regexp.MustCompile(`(?i)t[a4]x[a4]ble`), "taxable"},
	{regexp.MustCompile(`(?i)r[e3]gul[a4]t[i1][o0]n`), "regulation"},
}

// Citation shorthand normalization.
var (
	// "IRC Sec. 123", "I.R.C. § 123" -> "IRC Section 123"
	reIRCSection = regexp.MustCompile(`(IRC|I\.R\.C\.)(\s+|\s*§\s*|\s*Sec\.?\s+)(\d+)`)

	// "Treas. Reg. 1.123-4" -> "Treasury Regulation 1.123-4"
	reTreasReg = regexp.MustCompile(`Treas\.?\s*Reg\.?\s*(\d+\.\d+-\d+)`)
)

// Paragraph repair patterns.
var (
	// A lowercase letter followed by a line break into an uppercase letter
	// is a sentence whose terminal period was lost.
	reBrokenBreak = regexp.MustCompile(`([a-z])[ \t]*\n[ \t]*([A-Z])`)

	// Missing space after a sentence-ending period.
	reTightPeriod = regexp.MustCompile(`\.([A-Z])`)
)

// Preprocess cleans raw document text. The stages run in a fixed order:
// whitespace collapse, OCR corrections, citation normalization, paragraph
// repair. The function is pure and idempotent; text that matches nothing
// passes through unchanged.
func Preprocess(raw string) string {
	text := raw

	// 1. Whitespace: collapse space runs, cap blank lines at one,
	// strip indentation artifacts.
	text = reSpaceRuns.ReplaceAllString(text, " ")
	text = reNewlineRuns.ReplaceAllString(text, "\n\n")
	text = reLeadingSpace.ReplaceAllString(text, "\n")
	text = strings.TrimSpace(text)

	// 2. OCR corrections.
	for _, fix := range ocrFixes {
		text = fix.apply(text)
	}

	// 3. Legal citation shorthand.
	text = reIRCSection.ReplaceAllString(text, "IRC Section $3")
	text = reTreasReg.ReplaceAllString(text, "Treasury Regulation $1")

	// 4. Paragraph repair.
	text = reBrokenBreak.ReplaceAllString(text, "$1. $2")
	text = reTightPeriod.ReplaceAllString(text, ". $1")

	return text
}

// Section is a statutory section extracted from a document.
type Section struct {
	Number  string // e.g. "Section 179" or "§ 179.1"
	Title   string // header text following the number, may be empty
	Content string
}

// reSectionHeader matches statutory section headers like "Section 179(d)(1)"
// or "§ 1.263-4" at the start of a line.
var reSectionHeader = regexp.MustCompile(`(?mi)^(Section \d+[\w().\-]*|§ ?\d+[\w().\-]*)[ \t]*(.*)$`)

// Sections splits text on statutory section headers. Returns nil when the
// text contains fewer than two headers; callers should then fall back to
// size-based chunking.
func Sections(text string) []Section {
	matches := reSectionHeader.FindAllStringSubmatchIndex(text, -1)
	if len(matches) < 2 {
		return nil
	}

	sections := make([]Section, 0, len(matches))
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		// m[2]:m[3] is the section number, m[4]:m[5] the rest of the header line.
		contentStart := m[1]
		sections = append(sections, Section{
			Number:  text[m[2]:m[3]],
			Title:   strings.TrimSpace(text[m[4]:m[5]]),
			Content: strings.TrimSpace(text[contentStart:end]),
		})
	}
	return sections
}
