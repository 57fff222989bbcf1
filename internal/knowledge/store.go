// Package knowledge provides persistent storage and semantic search over
// tax-law documents. Documents are chunked upstream, embedded through a
// genkit embedder, and stored in PostgreSQL with pgvector for cosine
// nearest-neighbor search.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"

	"github.com/taxaide/taxaide/internal/config"
	"github.com/taxaide/taxaide/internal/log"
)

// Querier is the storage interface the Store depends on, implemented by
// Queries over pgx. Defined here, on the consumer side, so tests can
// substitute an in-memory implementation.
type Querier interface {
	UpsertDocumentChunks(ctx context.Context, doc DocumentRow, chunks []UpsertChunkParams) error
	SearchChunks(ctx context.Context, params SearchChunksParams) ([]SearchChunksRow, error)
	ChunksByDocument(ctx context.Context, documentID string) ([]ChunkRow, error)
	DeleteDocument(ctx context.Context, documentID string) error
	CountChunks(ctx context.Context) (int64, error)
	CountChunksOtherModel(ctx context.Context, modelVersion string) (int64, error)
	CountDocuments(ctx context.Context) (int64, error)
	ListDocuments(ctx context.Context, limit int32) ([]DocumentRow, error)
}

// Store manages tax-law documents and their chunk embeddings.
type Store struct {
	queries      Querier
	embedder     ai.Embedder
	modelVersion string
	logger       log.Logger

	// mu guards locks; each document gets its own mutex so concurrent
	// mutations of the same document serialize while distinct documents
	// proceed in parallel.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a Store. modelVersion identifies the embedding model
// that produced every vector in the index; it is recorded per chunk and
// checked at query time.
func NewStore(queries Querier, embedder ai.Embedder, modelVersion string, logger log.Logger) *Store {
	return &Store{
		queries:      queries,
		embedder:     embedder,
		modelVersion: modelVersion,
		logger:       logger,
		locks:        make(map[string]*sync.Mutex),
	}
}

// ModelVersion reports the embedding model version this store writes.
func (s *Store) ModelVersion() string {
	return s.modelVersion
}

func (s *Store) docLock(documentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[documentID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[documentID] = l
	}
	return l
}

// AddDocument stores a document and its chunk texts. Each chunk is embedded,
// then the document row and all chunk rows are written in one transaction,
// so a failed ingestion leaves no partial document behind. Returns the
// derived chunk IDs.
func (s *Store) AddDocument(ctx context.Context, doc Document, chunkTexts []string) ([]string, error) {
	if err := doc.Metadata.Validate(); err != nil {
		return nil, err
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("%w: document id is required", ErrInvalidMetadata)
	}
	if len(chunkTexts) == 0 {
		return nil, fmt.Errorf("document %s has no chunks", doc.ID)
	}

	embeddings, err := s.embedTexts(ctx, chunkTexts)
	if err != nil {
		return nil, fmt.Errorf("embed document %s: %w", doc.ID, err)
	}

	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata for %s: %w", doc.ID, err)
	}

	chunkIDs := make([]string, len(chunkTexts))
	params := make([]UpsertChunkParams, len(chunkTexts))
	for i, text := range chunkTexts {
		chunkIDs[i] = ChunkID(doc.ID, i)
		params[i] = UpsertChunkParams{
			Row: ChunkRow{
				ID:           chunkIDs[i],
				DocumentID:   doc.ID,
				ChunkIndex:   int32(i),
				ChunkTotal:   int32(len(chunkTexts)),
				Content:      text,
				Metadata:     metaJSON,
				ModelVersion: s.modelVersion,
			},
			Embedding: pgvector.NewVector(embeddings[i]),
		}
	}

	lock := s.docLock(doc.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.queries.UpsertDocumentChunks(ctx, documentToRow(doc), params); err != nil {
		return nil, fmt.Errorf("store document %s: %w", doc.ID, err)
	}

	s.logger.Info("document stored",
		"document_id", doc.ID,
		"chunks", len(chunkTexts),
		"source", doc.Metadata.Source)
	return chunkIDs, nil
}

// Search embeds the query and returns the nearest chunks by cosine
// similarity. It fails with ErrModelVersionMismatch when the index contains
// vectors from another embedding model version.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	stale, err := s.queries.CountChunksOtherModel(ctx, s.modelVersion)
	if err != nil {
		return nil, fmt.Errorf("check model versions: %w", err)
	}
	if stale > 0 {
		return nil, fmt.Errorf("%w: %d chunks embedded with a different model, re-ingest before querying", ErrModelVersionMismatch, stale)
	}

	embeddings, err := s.embedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vec := pgvector.NewVector(embeddings[0])

	params := SearchChunksParams{
		QueryEmbedding: &vec,
		ResultLimit:    cfg.topK,
	}
	if len(cfg.filter) > 0 {
		filterJSON, err := json.Marshal(cfg.filter)
		if err != nil {
			return nil, fmt.Errorf("marshal search filter: %w", err)
		}
		params.Filter = filterJSON
	}

	rows, err := s.queries.SearchChunks(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return rowsToResults(rows)
}

// ChunksByDocument returns a document's chunks in positional order.
func (s *Store) ChunksByDocument(ctx context.Context, documentID string) ([]Chunk, error) {
	rows, err := s.queries.ChunksByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	chunks := make([]Chunk, 0, len(rows))
	for _, r := range rows {
		c, err := rowToChunk(r)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// DeleteDocument removes a document and all of its chunks. Unknown IDs are
// a no-op.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	lock := s.docLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.queries.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	s.logger.Info("document deleted", "document_id", documentID)
	return nil
}

// Count returns the total number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.queries.CountChunks(ctx)
	return int(n), err
}

// DocumentCount returns the total number of stored documents.
func (s *Store) DocumentCount(ctx context.Context) (int, error) {
	n, err := s.queries.CountDocuments(ctx)
	return int(n), err
}

// ListDocuments returns metadata for stored documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.queries.ListDocuments(ctx, int32(limit))
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, rowToDocument(r))
	}
	return docs, nil
}

// embedTexts embeds all texts in a single request. The response carries one
// embedding per input document in order. The output dimensionality must be
// pinned to the schema's vector size; gemini-embedding-001 returns 3072-dim
// vectors otherwise, and pgvector rejects them at insert.
func (s *Store) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}
	dim := int32(config.VectorDimension)
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   docs,
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		out[i] = e.Embedding
	}
	return out, nil
}

func textOrNull(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func documentToRow(doc Document) DocumentRow {
	row := DocumentRow{
		ID:     doc.ID,
		Source: doc.Metadata.Source,
		Tags:   doc.Metadata.Tags,
	}
	row.Title = textOrNull(doc.Metadata.Title)
	row.Jurisdiction = textOrNull(doc.Metadata.Jurisdiction)
	row.DocumentType = textOrNull(doc.Metadata.DocumentType)
	row.URL = textOrNull(doc.Metadata.URL)
	if doc.Metadata.PublicationDate != nil {
		row.PublicationDate = pgtype.Timestamptz{Time: *doc.Metadata.PublicationDate, Valid: true}
	}
	return row
}

func rowToDocument(r DocumentRow) Document {
	doc := Document{
		ID: r.ID,
		Metadata: Metadata{
			Title:        r.Title.String,
			Source:       r.Source,
			Jurisdiction: r.Jurisdiction.String,
			DocumentType: r.DocumentType.String,
			Tags:         r.Tags,
			URL:          r.URL.String,
		},
	}
	if r.PublicationDate.Valid {
		t := r.PublicationDate.Time
		doc.Metadata.PublicationDate = &t
	}
	if r.CreatedAt.Valid {
		doc.CreatedAt = r.CreatedAt.Time
	}
	return doc
}

func rowToChunk(r ChunkRow) (Chunk, error) {
	var meta Metadata
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &meta); err != nil {
			return Chunk{}, fmt.Errorf("unmarshal metadata for chunk %s: %w", r.ID, err)
		}
	}
	c := Chunk{
		ID:         r.ID,
		DocumentID: r.DocumentID,
		Index:      int(r.ChunkIndex),
		Total:      int(r.ChunkTotal),
		Content:    r.Content,
		Metadata:   meta,
	}
	if r.CreatedAt.Valid {
		c.CreatedAt = r.CreatedAt.Time
	}
	return c, nil
}

func rowsToResults(rows []SearchChunksRow) ([]Result, error) {
	results := make([]Result, 0, len(rows))
	for _, r := range rows {
		c, err := rowToChunk(r.ChunkRow)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{Chunk: c, Similarity: r.Similarity})
	}
	return results, nil
}

var _ Querier = (*Queries)(nil)
