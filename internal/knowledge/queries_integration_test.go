package knowledge_test

import (
	"context"
	"testing"

	"github.com/firebase/genkit/go/genkit"

	"github.com/taxaide/taxaide/internal/knowledge"
	"github.com/taxaide/taxaide/internal/log"
	"github.com/taxaide/taxaide/internal/testutil"
)

// TestQueries_Roundtrip exercises the pgx Querier against a real pgvector
// instance: ingest, search, list, delete. Requires Docker.
func TestQueries_Roundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	g := genkit.Init(context.Background())
	me := testutil.NewMockEmbedder(768)
	embedder := me.RegisterEmbedder(g)

	queries := knowledge.NewQueries(tdb.Pool)
	store := knowledge.NewStore(queries, embedder, "test-model@768", log.NewNop())
	ctx := context.Background()

	doc := knowledge.Document{
		ID: "pub544",
		Metadata: knowledge.Metadata{
			Title:        "Sales and Other Dispositions of Assets",
			Source:       "IRS Publication 544",
			Jurisdiction: "US",
			DocumentType: "publication",
			Tags:         []string{"capital-gains", "dispositions"},
		},
	}
	chunkIDs, err := store.AddDocument(ctx, doc, []string{
		"Gain or loss on the sale of property is the difference between the amount realized and the adjusted basis.",
		"Section 1231 gains may be treated as long-term capital gains.",
	})
	if err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
	if len(chunkIDs) != 2 {
		t.Fatalf("AddDocument() returned %d chunk IDs, want 2", len(chunkIDs))
	}

	results, err := store.Search(ctx, "Section 1231 gains may be treated as long-term capital gains.",
		knowledge.WithTopK(2))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	// The query text matches a stored chunk exactly, so the deterministic
	// embedder returns the same vector and similarity is maximal.
	if results[0].Chunk.ID != "pub544_chunk_1" {
		t.Errorf("top result = %q, want pub544_chunk_1", results[0].Chunk.ID)
	}
	if results[0].Similarity < 0.99 {
		t.Errorf("identical text similarity = %v, want ~1.0", results[0].Similarity)
	}
	if results[0].Chunk.Metadata.Source != "IRS Publication 544" {
		t.Errorf("result metadata source = %q", results[0].Chunk.Metadata.Source)
	}

	filtered, err := store.Search(ctx, "anything",
		knowledge.WithTopK(10),
		knowledge.WithFilter("jurisdiction", "EU"))
	if err != nil {
		t.Fatalf("filtered Search() error = %v", err)
	}
	if len(filtered) != 0 {
		t.Errorf("filtered search returned %d results, want 0", len(filtered))
	}

	docs, err := store.ListDocuments(ctx, 10)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "pub544" {
		t.Fatalf("ListDocuments() = %+v, want single pub544", docs)
	}
	if len(docs[0].Metadata.Tags) != 2 {
		t.Errorf("listed document tags = %v", docs[0].Metadata.Tags)
	}

	if err := store.DeleteDocument(ctx, "pub544"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() after delete = %d, want 0", count)
	}
}
