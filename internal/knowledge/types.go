package knowledge

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidMetadata indicates document metadata failed validation.
	ErrInvalidMetadata = errors.New("invalid document metadata")

	// ErrModelVersionMismatch indicates the index holds vectors from a
	// different embedding model version than the store is configured with.
	// Mixing versions silently corrupts similarity comparisons, so queries
	// are rejected instead.
	ErrModelVersionMismatch = errors.New("embedding model version mismatch")
)

// Metadata describes a tax-law document. Fields other than Source are
// optional; validation happens once at ingestion rather than defensively
// at every read site.
type Metadata struct {
	Title           string     `json:"title,omitempty"`
	Source          string     `json:"source"`
	Jurisdiction    string     `json:"jurisdiction,omitempty"`
	DocumentType    string     `json:"document_type,omitempty"`
	PublicationDate *time.Time `json:"publication_date,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	URL             string     `json:"url,omitempty"`
}

// Validate checks the metadata at ingestion time.
func (m Metadata) Validate() error {
	if m.Source == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidMetadata)
	}
	if m.URL != "" && len(m.URL) > 2048 {
		return fmt.Errorf("%w: url exceeds 2048 characters", ErrInvalidMetadata)
	}
	return nil
}

// Label returns the human-readable source label used in citations,
// preferring "Title (Source)" when both are present.
func (m Metadata) Label() string {
	if m.Title != "" && m.Source != "" {
		return fmt.Sprintf("%s (%s)", m.Title, m.Source)
	}
	if m.Title != "" {
		return m.Title
	}
	return m.Source
}

// Document is a logical unit of tax-law text. The store owns the
// canonical copy; callers hold only the ID.
type Document struct {
	ID        string
	Content   string
	Metadata  Metadata
	CreatedAt time.Time
}

// Chunk is a contiguous segment of a document's content, stored with its
// embedding. Chunk IDs are derived as "{documentID}_chunk_{index}".
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Total      int
	Content    string
	Metadata   Metadata
	CreatedAt  time.Time
}

// ChunkID derives the stable chunk identifier for a document position.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

// DocumentIDFromChunkID recovers the document ID a chunk ID was derived
// from. The chunk ID is returned unchanged if it does not follow the
// derived format.
func DocumentIDFromChunkID(chunkID string) string {
	if i := strings.LastIndex(chunkID, "_chunk_"); i >= 0 {
		return chunkID[:i]
	}
	return chunkID
}

// Result is a single search hit with its cosine similarity score.
type Result struct {
	Chunk      Chunk
	Similarity float32 // 1 - cosine distance, higher is more similar
}

// SearchOption configures search behavior using the functional options
// pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK    int32
	filter  map[string]string
	timeout time.Duration
}

// DefaultSearchTimeout bounds vector search plus query embedding. External
// embedding calls are the only operations with unbounded latency.
const DefaultSearchTimeout = 10 * time.Second

// WithTopK sets the maximum number of results to return. Default is 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = int32(k)
		}
	}
}

// WithFilter restricts results to chunks whose metadata contains the given
// key/value pair. Multiple filters combine with AND logic.
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

// WithTimeout overrides the default search timeout.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// SearchSettings are the resolved values of a set of SearchOptions. Test
// doubles standing in for the Store use this to honor WithTopK and
// WithFilter the same way the real implementation does.
type SearchSettings struct {
	TopK    int
	Filter  map[string]string
	Timeout time.Duration
}

// ResolveSearchOptions applies opts over the defaults and returns the
// effective settings.
func ResolveSearchOptions(opts []SearchOption) SearchSettings {
	cfg := buildSearchConfig(opts)
	return SearchSettings{
		TopK:    int(cfg.topK),
		Filter:  cfg.filter,
		Timeout: cfg.timeout,
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    5,
		timeout: DefaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
