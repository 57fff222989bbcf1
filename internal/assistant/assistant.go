// Package assistant is the core public API of taxaide: document ingestion,
// question answering over the ingested corpus, and document management.
// It wires the text pipeline, knowledge store, hybrid retriever, generation
// model, and response cache behind one explicit context object.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taxaide/taxaide/internal/answer"
	"github.com/taxaide/taxaide/internal/cache"
	"github.com/taxaide/taxaide/internal/knowledge"
	"github.com/taxaide/taxaide/internal/log"
	"github.com/taxaide/taxaide/internal/retrieval"
	"github.com/taxaide/taxaide/internal/textproc"
)

var (
	// ErrEmptyQuery indicates the query was empty or whitespace.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrQueryTooShort indicates the query is below the minimum length.
	ErrQueryTooShort = errors.New("query too short")

	// ErrQueryTooLong indicates the query exceeds the maximum length.
	ErrQueryTooLong = errors.New("query too long")

	// ErrDisallowedQuery indicates the query matched an injection pattern.
	ErrDisallowedQuery = errors.New("query contains disallowed pattern")

	// ErrEmptyDocument indicates a document had no content after
	// preprocessing.
	ErrEmptyDocument = errors.New("document content is empty")
)

const (
	minQueryLength = 10
	maxQueryLength = 1000
)

// disallowedPatterns reject queries that look like injection attempts.
// Queries reach parameterized SQL and a prompt, never string-concatenated
// SQL, so this is defense in depth with user-actionable rejection messages.
var disallowedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunion\s+select\b`),
	regexp.MustCompile(`(?i)\bdrop\s+table\b`),
	regexp.MustCompile(`(?i)\bdelete\s+from\b`),
	regexp.MustCompile(`(?i)\binsert\s+into\b`),
	regexp.MustCompile(`(?i)'\s*or\s+'?1'?\s*=\s*'?1`),
	regexp.MustCompile(`;\s*--`),
}

// placeholderAnswer substitutes for a failed generation. It is clearly
// marked so it can never be mistaken for a real answer, and Placeholder is
// set on the response.
const placeholderAnswer = "[Automated placeholder] The answer generation service is currently unavailable. " +
	"The sources listed below were retrieved for your question; please consult them directly or retry shortly."

// placeholderMaxConfidence caps the score of substituted answers.
const placeholderMaxConfidence = 0.7

// Generator produces answer text from a fully assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Store is the slice of the knowledge store the assistant depends on.
type Store interface {
	AddDocument(ctx context.Context, doc knowledge.Document, chunkTexts []string) ([]string, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Count(ctx context.Context) (int, error)
	DocumentCount(ctx context.Context) (int, error)
	ListDocuments(ctx context.Context, limit int) ([]knowledge.Document, error)
}

// Retriever ranks stored chunks against a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]retrieval.Result, error)
}

// Response is the structured result of a query. Callers always receive one
// of these on success; only validation errors surface as errors.
type Response struct {
	Query       string          `json:"query"`
	Answer      string          `json:"answer"`
	Citations   []string        `json:"citations,omitempty"`
	Sources     []answer.Source `json:"sources,omitempty"`
	Confidence  float64         `json:"confidence"`
	Placeholder bool            `json:"placeholder,omitempty"`
	Cached      bool            `json:"cached,omitempty"`
	Elapsed     time.Duration   `json:"elapsed_ns"`
}

// Options tune the assistant's pipeline.
type Options struct {
	TopK         int // chunks retrieved per query
	ChunkSize    int
	ChunkOverlap int
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = retrieval.DefaultTopK
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = textproc.DefaultChunkSize
	}
	if o.ChunkOverlap <= 0 {
		o.ChunkOverlap = textproc.DefaultChunkOverlap
	}
	return o
}

// Assistant answers tax-law questions over an ingested document corpus.
type Assistant struct {
	store     Store
	retriever Retriever
	generator Generator
	cache     *cache.Cache[*Response] // nil disables caching
	opts      Options
	logger    log.Logger
}

// New creates an Assistant. cache may be nil to disable response caching.
func New(store Store, retriever Retriever, generator Generator, c *cache.Cache[*Response], opts Options, logger log.Logger) *Assistant {
	return &Assistant{
		store:     store,
		retriever: retriever,
		generator: generator,
		cache:     c,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// Ingest preprocesses, chunks, embeds, and stores a document, returning the
// derived chunk IDs. A document with an empty ID gets a generated one.
// Re-ingesting an existing ID replaces its chunks atomically.
func (a *Assistant) Ingest(ctx context.Context, doc knowledge.Document) ([]string, error) {
	if err := doc.Metadata.Validate(); err != nil {
		return nil, err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	content := textproc.Preprocess(doc.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: document %s", ErrEmptyDocument, doc.ID)
	}

	chunks := textproc.ChunkSections(content, a.opts.ChunkSize, a.opts.ChunkOverlap)
	chunkIDs, err := a.store.AddDocument(ctx, doc, chunks)
	if err != nil {
		return nil, fmt.Errorf("ingest document %s: %w", doc.ID, err)
	}

	// The corpus changed; cached answers may now be stale.
	a.cache.Purge()

	a.logger.Info("document ingested",
		"document_id", doc.ID,
		"chunks", len(chunkIDs),
		"source", doc.Metadata.Source)
	return chunkIDs, nil
}

// QueryOption configures a single Query call.
type QueryOption func(*queryConfig)

type queryConfig struct {
	topK     int
	contexts []string
}

// WithTopK overrides the number of chunks retrieved for this query.
func WithTopK(k int) QueryOption {
	return func(c *queryConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithContext supplies extra caller-provided context passages alongside the
// retrieved chunks.
func WithContext(items ...string) QueryOption {
	return func(c *queryConfig) {
		c.contexts = append(c.contexts, items...)
	}
}

// Query validates a question, retrieves supporting chunks, generates an
// answer, and scores it. Retrieval and generation failures degrade rather
// than fail: retrieval errors yield an answer without context, generation
// errors yield a tagged placeholder. Only validation errors are returned.
func (a *Assistant) Query(ctx context.Context, question string, opts ...QueryOption) (*Response, error) {
	start := time.Now()

	q := strings.TrimSpace(question)
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	cfg := queryConfig{topK: a.opts.TopK}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cached, ok := a.cache.Get(q, cfg.contexts); ok {
		resp := *cached
		resp.Cached = true
		resp.Elapsed = time.Since(start)
		a.logger.Debug("cache hit", "query_len", len(q))
		return &resp, nil
	}

	results, err := a.retriever.Retrieve(ctx, q, cfg.topK)
	if err != nil {
		// Retrieval degradation: answer without context instead of failing.
		a.logger.Warn("retrieval failed, proceeding without context", "error", err)
		results = nil
	}

	refs := make([]answer.Reference, 0, len(results)+len(cfg.contexts))
	contexts := make([]string, 0, len(results)+len(cfg.contexts))
	for _, r := range results {
		refs = append(refs, answer.Reference{
			Source:  r.Chunk.Metadata.Label(),
			Content: r.Chunk.Content,
			URL:     r.Chunk.Metadata.URL,
		})
		contexts = append(contexts, r.Chunk.Content)
	}
	for _, item := range cfg.contexts {
		refs = append(refs, answer.Reference{Source: "Provided Context", Content: item})
		contexts = append(contexts, item)
	}

	prompt := answer.BuildPrompt(q, refs)

	placeholder := false
	raw, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		a.logger.Warn("generation failed, substituting placeholder", "error", err)
		raw = placeholderAnswer
		placeholder = true
	}

	text, sources := answer.FormatResponse(raw, refs)
	citations := answer.ExtractCitations(text)
	confidence := answer.Score(text, citations, contexts)
	if placeholder && confidence > placeholderMaxConfidence {
		confidence = placeholderMaxConfidence
	}

	resp := &Response{
		Query:       q,
		Answer:      text,
		Citations:   citations,
		Sources:     sources,
		Confidence:  confidence,
		Placeholder: placeholder,
		Elapsed:     time.Since(start),
	}

	// Placeholders are transient; caching them would pin an outage.
	if !placeholder {
		a.cache.Set(q, cfg.contexts, resp)
	}

	a.logger.Info("query answered",
		"sources", len(sources),
		"citations", len(citations),
		"confidence", confidence,
		"placeholder", placeholder,
		"elapsed", resp.Elapsed)
	return resp, nil
}

// DeleteDocument removes a document and its chunks. Unknown IDs are a
// no-op.
func (a *Assistant) DeleteDocument(ctx context.Context, documentID string) error {
	if err := a.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	a.cache.Purge()
	return nil
}

// DocumentCount reports the number of ingested documents.
func (a *Assistant) DocumentCount(ctx context.Context) (int, error) {
	return a.store.DocumentCount(ctx)
}

// ChunkCount reports the total number of stored chunks.
func (a *Assistant) ChunkCount(ctx context.Context) (int, error) {
	return a.store.Count(ctx)
}

// ListDocuments returns metadata for ingested documents, newest first.
func (a *Assistant) ListDocuments(ctx context.Context, limit int) ([]knowledge.Document, error) {
	return a.store.ListDocuments(ctx, limit)
}

func validateQuery(q string) error {
	if q == "" {
		return ErrEmptyQuery
	}
	if len(q) < minQueryLength {
		return fmt.Errorf("%w: minimum %d characters", ErrQueryTooShort, minQueryLength)
	}
	if len(q) > maxQueryLength {
		return fmt.Errorf("%w: maximum %d characters", ErrQueryTooLong, maxQueryLength)
	}
	for _, re := range disallowedPatterns {
		if re.MatchString(q) {
			return ErrDisallowedQuery
		}
	}
	return nil
}
