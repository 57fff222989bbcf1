package knowledge_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"

	"github.com/firebase/genkit/go/genkit"

	"github.com/taxaide/taxaide/internal/config"
	"github.com/taxaide/taxaide/internal/knowledge"
	"github.com/taxaide/taxaide/internal/log"
	"github.com/taxaide/taxaide/internal/testutil"
)

// fakeQuerier is an in-memory Querier for unit tests. Search computes real
// cosine similarity over stored embeddings so ranking behavior can be
// asserted without a database.
type fakeQuerier struct {
	mu     sync.Mutex
	docs   map[string]knowledge.DocumentRow
	chunks map[string]knowledge.UpsertChunkParams
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		docs:   make(map[string]knowledge.DocumentRow),
		chunks: make(map[string]knowledge.UpsertChunkParams),
	}
}

func (f *fakeQuerier) UpsertDocumentChunks(_ context.Context, doc knowledge.DocumentRow, chunks []knowledge.UpsertChunkParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
	for id, c := range f.chunks {
		if c.Row.DocumentID == doc.ID {
			delete(f.chunks, id)
		}
	}
	for _, c := range chunks {
		f.chunks[c.Row.ID] = c
	}
	return nil
}

func (f *fakeQuerier) SearchChunks(_ context.Context, params knowledge.SearchChunksParams) ([]knowledge.SearchChunksRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var filter map[string]string
	if params.Filter != nil {
		if err := json.Unmarshal(params.Filter, &filter); err != nil {
			return nil, err
		}
	}

	query := params.QueryEmbedding.Slice()
	var rows []knowledge.SearchChunksRow
	for _, c := range f.chunks {
		if filter != nil && !metadataContains(c.Row.Metadata, filter) {
			continue
		}
		rows = append(rows, knowledge.SearchChunksRow{
			ChunkRow:   c.Row,
			Similarity: cosine(query, c.Embedding.Slice()),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Similarity > rows[j].Similarity })
	if int32(len(rows)) > params.ResultLimit {
		rows = rows[:params.ResultLimit]
	}
	return rows, nil
}

func (f *fakeQuerier) ChunksByDocument(_ context.Context, documentID string) ([]knowledge.ChunkRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []knowledge.ChunkRow
	for _, c := range f.chunks {
		if c.Row.DocumentID == documentID {
			rows = append(rows, c.Row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ChunkIndex < rows[j].ChunkIndex })
	return rows, nil
}

func (f *fakeQuerier) DeleteDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, documentID)
	for id, c := range f.chunks {
		if c.Row.DocumentID == documentID {
			delete(f.chunks, id)
		}
	}
	return nil
}

func (f *fakeQuerier) CountChunks(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.chunks)), nil
}

func (f *fakeQuerier) CountChunksOtherModel(_ context.Context, modelVersion string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, c := range f.chunks {
		if c.Row.ModelVersion != modelVersion {
			n++
		}
	}
	return n, nil
}

func (f *fakeQuerier) CountDocuments(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.docs)), nil
}

func (f *fakeQuerier) ListDocuments(_ context.Context, limit int32) ([]knowledge.DocumentRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []knowledge.DocumentRow
	for _, d := range f.docs {
		rows = append(rows, d)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	if int32(len(rows)) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func metadataContains(metaJSON []byte, filter map[string]string) bool {
	var meta map[string]any
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return false
	}
	for k, v := range filter {
		got, ok := meta[k].(string)
		if !ok || got != v {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func newTestStore(t *testing.T) (*knowledge.Store, *fakeQuerier, *testutil.MockEmbedder) {
	t.Helper()
	g := genkit.Init(context.Background())
	me := testutil.NewMockEmbedder(8)
	embedder := me.RegisterEmbedder(g)
	fq := newFakeQuerier()
	store := knowledge.NewStore(fq, embedder, "test-model@768", log.NewNop())
	return store, fq, me
}

func TestStore_AddDocument(t *testing.T) {
	t.Parallel()
	store, fq, _ := newTestStore(t)
	ctx := context.Background()

	doc := knowledge.Document{
		ID: "pub946",
		Metadata: knowledge.Metadata{
			Title:        "How To Depreciate Property",
			Source:       "IRS Publication 946",
			Jurisdiction: "US",
			DocumentType: "publication",
		},
	}
	chunkIDs, err := store.AddDocument(ctx, doc, []string{
		"Section 179 allows expensing of qualifying property.",
		"MACRS is the proper depreciation system for most property.",
		"Listed property has special recordkeeping requirements.",
	})
	if err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
	want := []string{"pub946_chunk_0", "pub946_chunk_1", "pub946_chunk_2"}
	if len(chunkIDs) != len(want) {
		t.Fatalf("AddDocument() returned %d chunk IDs, want %d", len(chunkIDs), len(want))
	}
	for i, id := range chunkIDs {
		if id != want[i] {
			t.Errorf("chunk ID[%d] = %q, want %q", i, id, want[i])
		}
	}

	chunks, err := store.ChunksByDocument(ctx, "pub946")
	if err != nil {
		t.Fatalf("ChunksByDocument() error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("stored %d chunks, want 3", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk[%d].Index = %d", i, c.Index)
		}
		if c.Total != 3 {
			t.Errorf("chunk[%d].Total = %d, want 3", i, c.Total)
		}
		if c.Metadata.Source != "IRS Publication 946" {
			t.Errorf("chunk[%d].Metadata.Source = %q", i, c.Metadata.Source)
		}
	}

	for _, c := range fq.chunks {
		if c.Row.ModelVersion != "test-model@768" {
			t.Errorf("chunk %s model version = %q", c.Row.ID, c.Row.ModelVersion)
		}
	}
}

// Embeddings must be requested at the schema's vector width on every call;
// gemini-embedding-001 defaults to 3072 dimensions and pgvector rejects
// anything that does not match the declared column size.
func TestStore_EmbedDimensionality(t *testing.T) {
	t.Parallel()
	store, _, me := newTestStore(t)
	ctx := context.Background()

	doc := knowledge.Document{
		ID:       "pub17",
		Metadata: knowledge.Metadata{Source: "IRS Publication 17"},
	}
	if _, err := store.AddDocument(ctx, doc, []string{"standard deduction amounts by filing status"}); err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
	if got := me.RequestedDimensionality(); got != config.VectorDimension {
		t.Errorf("AddDocument() embed dimensionality = %d, want %d", got, config.VectorDimension)
	}

	if _, err := store.Search(ctx, "standard deduction"); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got := me.RequestedDimensionality(); got != config.VectorDimension {
		t.Errorf("Search() embed dimensionality = %d, want %d", got, config.VectorDimension)
	}
}

func TestStore_AddDocument_Reingest(t *testing.T) {
	t.Parallel()
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	doc := knowledge.Document{
		ID:       "doc1",
		Metadata: knowledge.Metadata{Source: "IRC Section 179"},
	}
	if _, err := store.AddDocument(ctx, doc, []string{"a", "b", "c"}); err != nil {
		t.Fatalf("first AddDocument() error = %v", err)
	}
	if _, err := store.AddDocument(ctx, doc, []string{"shorter"}); err != nil {
		t.Fatalf("second AddDocument() error = %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() after re-ingest = %d, want 1 (stale chunks must be removed)", count)
	}
}

func TestStore_AddDocument_Validation(t *testing.T) {
	t.Parallel()
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		doc    knowledge.Document
		chunks []string
	}{
		{
			name:   "missing source",
			doc:    knowledge.Document{ID: "d1", Metadata: knowledge.Metadata{Title: "untitled"}},
			chunks: []string{"text"},
		},
		{
			name:   "missing id",
			doc:    knowledge.Document{Metadata: knowledge.Metadata{Source: "IRS"}},
			chunks: []string{"text"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.AddDocument(ctx, tt.doc, tt.chunks); !errors.Is(err, knowledge.ErrInvalidMetadata) {
				t.Errorf("AddDocument() error = %v, want ErrInvalidMetadata", err)
			}
		})
	}

	doc := knowledge.Document{ID: "d2", Metadata: knowledge.Metadata{Source: "IRS"}}
	if _, err := store.AddDocument(ctx, doc, nil); err == nil {
		t.Error("AddDocument() with no chunks succeeded, want error")
	}
}

func TestStore_Search_Ranking(t *testing.T) {
	t.Parallel()
	store, _, me := newTestStore(t)
	ctx := context.Background()

	// Orthogonal axes give exact, predictable cosine similarities.
	me.SetVector("capital gains rates", []float32{1, 0, 0, 0, 0, 0, 0, 0})
	me.SetVector("long-term capital gains are taxed at lower rates", []float32{0.9, 0.1, 0, 0, 0, 0, 0, 0})
	me.SetVector("depreciation recapture rules", []float32{0, 1, 0, 0, 0, 0, 0, 0})

	docs := []struct {
		id, text string
	}{
		{"gains", "long-term capital gains are taxed at lower rates"},
		{"recapture", "depreciation recapture rules"},
	}
	for _, d := range docs {
		doc := knowledge.Document{ID: d.id, Metadata: knowledge.Metadata{Source: d.id}}
		if _, err := store.AddDocument(ctx, doc, []string{d.text}); err != nil {
			t.Fatalf("AddDocument(%s) error = %v", d.id, err)
		}
	}

	results, err := store.Search(ctx, "capital gains rates", knowledge.WithTopK(2))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	if results[0].Chunk.DocumentID != "gains" {
		t.Errorf("top result document = %q, want %q", results[0].Chunk.DocumentID, "gains")
	}
	if results[0].Similarity <= results[1].Similarity {
		t.Errorf("results not ordered by similarity: %v then %v", results[0].Similarity, results[1].Similarity)
	}
}

func TestStore_Search_Filter(t *testing.T) {
	t.Parallel()
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	for _, d := range []struct{ id, jurisdiction string }{
		{"federal", "US"},
		{"state", "CA"},
	} {
		doc := knowledge.Document{
			ID: d.id,
			Metadata: knowledge.Metadata{
				Source:       d.id,
				Jurisdiction: d.jurisdiction,
			},
		}
		if _, err := store.AddDocument(ctx, doc, []string{"standard deduction amounts"}); err != nil {
			t.Fatalf("AddDocument(%s) error = %v", d.id, err)
		}
	}

	results, err := store.Search(ctx, "standard deduction",
		knowledge.WithTopK(10),
		knowledge.WithFilter("jurisdiction", "CA"))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("filtered search returned %d results, want 1", len(results))
	}
	if results[0].Chunk.DocumentID != "state" {
		t.Errorf("filtered result document = %q, want %q", results[0].Chunk.DocumentID, "state")
	}
}

func TestStore_Search_ModelVersionMismatch(t *testing.T) {
	t.Parallel()
	g := genkit.Init(context.Background())
	me := testutil.NewMockEmbedder(8)
	embedder := me.RegisterEmbedder(g)
	fq := newFakeQuerier()
	ctx := context.Background()

	old := knowledge.NewStore(fq, embedder, "old-model@768", log.NewNop())
	doc := knowledge.Document{ID: "d1", Metadata: knowledge.Metadata{Source: "IRS"}}
	if _, err := old.AddDocument(ctx, doc, []string{"text"}); err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}

	current := knowledge.NewStore(fq, embedder, "new-model@768", log.NewNop())
	if _, err := current.Search(ctx, "query"); !errors.Is(err, knowledge.ErrModelVersionMismatch) {
		t.Errorf("Search() error = %v, want ErrModelVersionMismatch", err)
	}
}

func TestStore_DeleteDocument(t *testing.T) {
	t.Parallel()
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	doc := knowledge.Document{ID: "d1", Metadata: knowledge.Metadata{Source: "IRS"}}
	if _, err := store.AddDocument(ctx, doc, []string{"a", "b"}); err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}

	if err := store.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() after delete = %d, want 0", count)
	}

	// Unknown documents are a no-op.
	if err := store.DeleteDocument(ctx, "never-existed"); err != nil {
		t.Errorf("DeleteDocument(unknown) error = %v, want nil", err)
	}
}

func TestStore_ListDocuments(t *testing.T) {
	t.Parallel()
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		doc := knowledge.Document{ID: id, Metadata: knowledge.Metadata{Source: "src-" + id}}
		if _, err := store.AddDocument(ctx, doc, []string{"content"}); err != nil {
			t.Fatalf("AddDocument(%s) error = %v", id, err)
		}
	}

	docs, err := store.ListDocuments(ctx, 2)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("ListDocuments(2) returned %d documents", len(docs))
	}

	n, err := store.DocumentCount(ctx)
	if err != nil {
		t.Fatalf("DocumentCount() error = %v", err)
	}
	if n != 3 {
		t.Errorf("DocumentCount() = %d, want 3", n)
	}
}

func TestChunkID(t *testing.T) {
	t.Parallel()
	if got := knowledge.ChunkID("pub17", 4); got != "pub17_chunk_4" {
		t.Errorf("ChunkID() = %q", got)
	}
	if got := knowledge.DocumentIDFromChunkID("pub17_chunk_4"); got != "pub17" {
		t.Errorf("DocumentIDFromChunkID() = %q, want pub17", got)
	}
	// IDs with the separator in the document part resolve to the last marker.
	if got := knowledge.DocumentIDFromChunkID("a_chunk_b_chunk_2"); got != "a_chunk_b" {
		t.Errorf("DocumentIDFromChunkID() = %q, want a_chunk_b", got)
	}
	if got := knowledge.DocumentIDFromChunkID("freeform-id"); got != "freeform-id" {
		t.Errorf("DocumentIDFromChunkID() = %q, want input unchanged", got)
	}
}

func TestMetadata_Label(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		meta knowledge.Metadata
		want string
	}{
		{
			name: "title and source",
			meta: knowledge.Metadata{Title: "Your Federal Income Tax", Source: "IRS Publication 17"},
			want: "Your Federal Income Tax (IRS Publication 17)",
		},
		{
			name: "source only",
			meta: knowledge.Metadata{Source: "IRC Section 61"},
			want: "IRC Section 61",
		},
		{
			name: "title only",
			meta: knowledge.Metadata{Title: "Internal Notes"},
			want: "Internal Notes",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.meta.Label(); got != tt.want {
				t.Errorf("Label() = %q, want %q", got, tt.want)
			}
		})
	}
}
