package textproc

import "strings"

// Default chunking parameters. Sized for embedding models with a ~2048
// token input limit; see knowledge.Store for the model contract.
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50

	// boundaryLookback is how far back from a hard cut we search for a
	// sentence end or paragraph break.
	boundaryLookback = 100
)

// Chunk splits text into overlapping segments of at most size characters.
//
// Behavior:
//   - text shorter than size is returned as a single chunk
//   - each cut prefers a sentence end (./?/! followed by space or newline)
//     or a paragraph break within boundaryLookback characters of the hard
//     boundary, falling back to an exact cut at size
//   - consecutive chunks share overlap characters; each chunk's start is
//     the previous end minus overlap
//   - the final chunk always extends to the end of the text
//
// An overlap >= size cannot make forward progress and is clamped to
// size-1. Empty text yields a nil slice. Chunk count is deterministic for
// fixed inputs.
func Chunk(text string, size, overlap int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}

		if cut := findBoundary(text, start, end); cut > start {
			end = cut
		}

		chunks = append(chunks, text[start:end])

		next := end - overlap
		if next <= start {
			// Boundary search plus overlap would revisit the same
			// region; skip the overlap to guarantee progress.
			next = end
		}
		start = next
	}
	return chunks
}

// findBoundary searches backward from end (exclusive) for a natural break:
// a sentence-ending punctuation mark followed by a space or newline, or a
// paragraph break. Returns the cut position, or 0 when no break exists
// within boundaryLookback characters.
func findBoundary(text string, start, end int) int {
	limit := end - boundaryLookback
	if limit < start {
		limit = start
	}
	for i := end; i > limit; i-- {
		prev, cur := text[i-1], text[i]
		if cur == '\n' && prev == '\n' {
			return i
		}
		if (prev == '.' || prev == '?' || prev == '!') && (cur == ' ' || cur == '\n') {
			return i
		}
	}
	return 0
}

// ChunkSections splits text primarily on statutory section headers,
// falling back to size-based chunking when the document has no section
// structure. Sections longer than size are themselves size-chunked.
func ChunkSections(text string, size, overlap int) []string {
	sections := Sections(text)
	if sections == nil {
		return Chunk(text, size, overlap)
	}

	var chunks []string
	for _, sec := range sections {
		header := sec.Number
		if sec.Title != "" {
			header += " " + sec.Title
		}
		body := sec.Content
		if !strings.HasPrefix(body, header) {
			body = header + "\n" + body
		}
		if len(body) <= size {
			chunks = append(chunks, body)
			continue
		}
		chunks = append(chunks, Chunk(body, size, overlap)...)
	}
	return chunks
}
