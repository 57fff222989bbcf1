package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/taxaide/taxaide/internal/app"
	"github.com/taxaide/taxaide/internal/knowledge"
)

// runIngest reads a document from a file and ingests it into the corpus.
func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	var (
		id           = fs.String("id", "", "document ID (generated if omitted)")
		title        = fs.String("title", "", "document title")
		source       = fs.String("source", "", "document source (required)")
		jurisdiction = fs.String("jurisdiction", "", "jurisdiction, e.g. US")
		docType      = fs.String("type", "", "document type, e.g. publication")
		tags         = fs.String("tags", "", "comma-separated tags")
		url          = fs.String("url", "", "source URL")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: taxaide ingest <file> [flags]")
	}

	content, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("reading document file: %w", err)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	doc := knowledge.Document{
		ID:      *id,
		Content: string(content),
		Metadata: knowledge.Metadata{
			Title:        *title,
			Source:       *source,
			Jurisdiction: *jurisdiction,
			DocumentType: *docType,
			Tags:         splitTags(*tags),
			URL:          *url,
		},
	}

	chunkIDs, err := a.Assistant.Ingest(ctx, doc)
	if err != nil {
		return fmt.Errorf("ingesting document: %w", err)
	}

	docID := doc.ID
	if docID == "" && len(chunkIDs) > 0 {
		docID = knowledge.DocumentIDFromChunkID(chunkIDs[0])
	}
	fmt.Printf("Ingested document %s (%d chunks)\n", docID, len(chunkIDs))
	return nil
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
