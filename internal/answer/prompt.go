// Package answer assembles generation prompts from retrieved tax-law
// references, post-processes raw model output into structured responses,
// and scores answers with a documented confidence heuristic.
package answer

import (
	"fmt"
	"strings"
)

// AnswerMarker separates the instruction block from the model's answer.
// Some models echo the prompt; slicing after the marker recovers just the
// generated text.
const AnswerMarker = "ANSWER:"

const systemInstruction = `You are a tax law expert assistant. Answer the user's question using only the provided tax law references. Be precise about dollar amounts, tax years, and statutory requirements. If the references do not contain enough information to answer, say so rather than guessing.`

const citationInstruction = `Cite the references you rely on by their bracketed number, for example [1]. Include specific legal citations (IRC sections, Treasury Regulations, IRS Publications) where the references provide them.`

// Reference is one retrieved chunk handed to the model as context.
type Reference struct {
	Source  string
	Content string
	URL     string
}

// BuildPrompt renders the full generation prompt: persona instruction,
// numbered reference block, citation instruction, the user question, and
// the answer-start marker.
func BuildPrompt(query string, refs []Reference) string {
	var b strings.Builder
	b.WriteString(systemInstruction)
	b.WriteString("\n\n")

	if len(refs) > 0 {
		b.WriteString("TAX LAW REFERENCES:\n")
		for i, ref := range refs {
			fmt.Fprintf(&b, "Reference [%d]: %s\n%s\n\n", i+1, ref.Source, ref.Content)
		}
		b.WriteString(citationInstruction)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "USER QUESTION: %s\n\n%s", query, AnswerMarker)
	return b.String()
}
