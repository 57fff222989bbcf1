package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/taxaide/taxaide/internal/app"
)

// runDocs handles document management subcommands: list, delete.
func runDocs(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: taxaide docs <list|delete>")
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

	switch args[0] {
	case "list":
		return listDocs(ctx, a)
	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("usage: taxaide docs delete <id>")
		}
		if err := a.Assistant.DeleteDocument(ctx, args[1]); err != nil {
			return fmt.Errorf("deleting document: %w", err)
		}
		fmt.Printf("Deleted document %s\n", args[1])
		return nil
	default:
		return fmt.Errorf("unknown docs subcommand: %s", args[0])
	}
}

func listDocs(ctx context.Context, a *app.App) error {
	docs, err := a.Assistant.ListDocuments(ctx, 100)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}
	if len(docs) == 0 {
		fmt.Println("No documents ingested.")
		return nil
	}

	for _, d := range docs {
		line := fmt.Sprintf("%s  %s", d.ID, d.Metadata.Label())
		if d.Metadata.Jurisdiction != "" {
			line += "  [" + d.Metadata.Jurisdiction + "]"
		}
		if len(d.Metadata.Tags) > 0 {
			line += "  (" + strings.Join(d.Metadata.Tags, ", ") + ")"
		}
		fmt.Println(line)
	}

	chunks, err := a.Assistant.ChunkCount(ctx)
	if err != nil {
		return fmt.Errorf("counting chunks: %w", err)
	}
	fmt.Printf("\n%d documents, %d chunks\n", len(docs), chunks)
	return nil
}
