package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// DocumentRow mirrors the documents table.
type DocumentRow struct {
	ID              string
	Title           pgtype.Text
	Source          string
	Jurisdiction    pgtype.Text
	DocumentType    pgtype.Text
	PublicationDate pgtype.Timestamptz
	Tags            []string
	URL             pgtype.Text
	CreatedAt       pgtype.Timestamptz
}

// ChunkRow mirrors the chunks table minus the embedding, which is write-only
// from the application's perspective.
type ChunkRow struct {
	ID           string
	DocumentID   string
	ChunkIndex   int32
	ChunkTotal   int32
	Content      string
	Metadata     []byte
	ModelVersion string
	CreatedAt    pgtype.Timestamptz
}

// SearchChunksParams carries a query embedding and result bound into a
// vector search.
type SearchChunksParams struct {
	QueryEmbedding *pgvector.Vector
	ResultLimit    int32
	Filter         []byte // JSONB containment filter, nil for none
}

// SearchChunksRow is a chunk row plus its cosine similarity to the query.
type SearchChunksRow struct {
	ChunkRow
	Similarity float32
}

// UpsertChunkParams is one chunk insert within an UpsertDocumentChunks call.
type UpsertChunkParams struct {
	Row       ChunkRow
	Embedding pgvector.Vector
}

// Queries implements the Store's Querier interface against a pgx connection
// pool. All statements are parameterized.
type Queries struct {
	pool *pgxpool.Pool
}

// NewQueries wraps a pgx pool.
func NewQueries(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

const upsertDocumentSQL = `
INSERT INTO documents (id, title, source, jurisdiction, document_type, publication_date, tags, url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title,
    source = EXCLUDED.source,
    jurisdiction = EXCLUDED.jurisdiction,
    document_type = EXCLUDED.document_type,
    publication_date = EXCLUDED.publication_date,
    tags = EXCLUDED.tags,
    url = EXCLUDED.url`

const upsertChunkSQL = `
INSERT INTO chunks (id, document_id, chunk_index, chunk_total, content, metadata, model_version, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
    document_id = EXCLUDED.document_id,
    chunk_index = EXCLUDED.chunk_index,
    chunk_total = EXCLUDED.chunk_total,
    content = EXCLUDED.content,
    metadata = EXCLUDED.metadata,
    model_version = EXCLUDED.model_version,
    embedding = EXCLUDED.embedding`

// UpsertDocumentChunks writes a document row and all of its chunks in a
// single transaction. Stale chunks from a previous version of the document
// are removed so re-ingestion cannot leave orphans behind.
func (q *Queries) UpsertDocumentChunks(ctx context.Context, doc DocumentRow, chunks []UpsertChunkParams) error {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, upsertDocumentSQL,
		doc.ID, doc.Title, doc.Source, doc.Jurisdiction, doc.DocumentType,
		doc.PublicationDate, doc.Tags, doc.URL,
	); err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("clear chunks for document %s: %w", doc.ID, err)
	}

	for _, c := range chunks {
		if _, err := tx.Exec(ctx, upsertChunkSQL,
			c.Row.ID, c.Row.DocumentID, c.Row.ChunkIndex, c.Row.ChunkTotal,
			c.Row.Content, c.Row.Metadata, c.Row.ModelVersion, c.Embedding,
		); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.Row.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const searchChunksSQL = `
SELECT id, document_id, chunk_index, chunk_total, content, metadata, model_version, created_at,
       1 - (embedding <=> $1) AS similarity
FROM chunks
ORDER BY embedding <=> $1
LIMIT $2`

const searchChunksFilteredSQL = `
SELECT id, document_id, chunk_index, chunk_total, content, metadata, model_version, created_at,
       1 - (embedding <=> $1) AS similarity
FROM chunks
WHERE metadata @> $3
ORDER BY embedding <=> $1
LIMIT $2`

// SearchChunks runs a cosine-distance nearest-neighbor query, optionally
// restricted by a JSONB containment filter on chunk metadata.
func (q *Queries) SearchChunks(ctx context.Context, params SearchChunksParams) ([]SearchChunksRow, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if params.Filter != nil {
		rows, err = q.pool.Query(ctx, searchChunksFilteredSQL,
			params.QueryEmbedding, params.ResultLimit, params.Filter)
	} else {
		rows, err = q.pool.Query(ctx, searchChunksSQL,
			params.QueryEmbedding, params.ResultLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var results []SearchChunksRow
	for rows.Next() {
		var r SearchChunksRow
		if err := rows.Scan(
			&r.ID, &r.DocumentID, &r.ChunkIndex, &r.ChunkTotal,
			&r.Content, &r.Metadata, &r.ModelVersion, &r.CreatedAt,
			&r.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

const chunksByDocumentSQL = `
SELECT id, document_id, chunk_index, chunk_total, content, metadata, model_version, created_at
FROM chunks
WHERE document_id = $1
ORDER BY chunk_index`

// ChunksByDocument returns a document's chunks in positional order.
func (q *Queries) ChunksByDocument(ctx context.Context, documentID string) ([]ChunkRow, error) {
	rows, err := q.pool.Query(ctx, chunksByDocumentSQL, documentID)
	if err != nil {
		return nil, fmt.Errorf("chunks by document: %w", err)
	}
	defer rows.Close()

	var chunks []ChunkRow
	for rows.Next() {
		var c ChunkRow
		if err := rows.Scan(
			&c.ID, &c.DocumentID, &c.ChunkIndex, &c.ChunkTotal,
			&c.Content, &c.Metadata, &c.ModelVersion, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk rows: %w", err)
	}
	return chunks, nil
}

// DeleteDocument removes a document and its chunks. Deleting an unknown
// document is a no-op. The chunks table cascades on document deletion, but
// the explicit delete keeps behavior correct even without the constraint.
func (q *Queries) DeleteDocument(ctx context.Context, documentID string) error {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete chunks for document %s: %w", documentID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE id = $1`, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CountChunks returns the total number of stored chunks.
func (q *Queries) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	if err := q.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

// CountChunksOtherModel returns how many chunks were embedded with a model
// version other than the given one.
func (q *Queries) CountChunksOtherModel(ctx context.Context, modelVersion string) (int64, error) {
	var count int64
	if err := q.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks WHERE model_version <> $1`, modelVersion,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count chunks other model: %w", err)
	}
	return count, nil
}

// CountDocuments returns the total number of stored documents.
func (q *Queries) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	if err := q.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

const listDocumentsSQL = `
SELECT id, title, source, jurisdiction, document_type, publication_date, tags, url, created_at
FROM documents
ORDER BY created_at DESC
LIMIT $1`

// ListDocuments returns document metadata rows, newest first.
func (q *Queries) ListDocuments(ctx context.Context, limit int32) ([]DocumentRow, error) {
	rows, err := q.pool.Query(ctx, listDocumentsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentRow
	for rows.Next() {
		var d DocumentRow
		if err := rows.Scan(
			&d.ID, &d.Title, &d.Source, &d.Jurisdiction, &d.DocumentType,
			&d.PublicationDate, &d.Tags, &d.URL, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return docs, nil
}
