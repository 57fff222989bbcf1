// Package cmd provides the taxaide CLI commands.
//
// Commands:
//   - serve: HTTP JSON API server
//   - ingest: ingest a tax-law document from a file
//   - ask: one-shot question answering
//   - docs: list or delete ingested documents
//
// Signal handling and graceful shutdown are implemented for all commands
// via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/taxaide/taxaide/internal/config"
	"github.com/taxaide/taxaide/internal/log"
)

// Execute is the main entry point for the taxaide CLI.
func Execute() error {
	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(os.Args[2:])
	case "ingest":
		return runIngest(os.Args[2:])
	case "ask":
		return runAsk(os.Args[2:])
	case "docs":
		return runDocs(os.Args[2:])
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// loadConfig loads and validates configuration, returning it with a logger
// built from its logging settings.
func loadConfig() (*config.Config, log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("validating config: %w", err)
	}

	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
	}
	logger := log.New(log.Config{Level: level, JSON: cfg.LogJSON})
	return cfg, logger, nil
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("taxaide - Tax law question answering over your document corpus")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  taxaide serve [addr]            Start HTTP API server (default: :8080)")
	fmt.Println("  taxaide ingest <file> [flags]   Ingest a document from a text file")
	fmt.Println("  taxaide ask <question>          Ask a one-shot question")
	fmt.Println("  taxaide docs list               List ingested documents")
	fmt.Println("  taxaide docs delete <id>        Delete a document and its chunks")
	fmt.Println("  taxaide version                 Show version information")
	fmt.Println("  taxaide help                    Show this help")
	fmt.Println()
	fmt.Println("Ingest flags:")
	fmt.Println("  -id            Document ID (generated if omitted)")
	fmt.Println("  -title         Document title")
	fmt.Println("  -source        Document source, e.g. \"IRS Publication 946\" (required)")
	fmt.Println("  -jurisdiction  Jurisdiction, e.g. US")
	fmt.Println("  -type          Document type, e.g. publication, ruling")
	fmt.Println("  -tags          Comma-separated tags")
	fmt.Println("  -url           Source URL")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY  Required: Gemini API key")
	fmt.Println("  DATABASE_URL    Optional: overrides postgres_* config values")
}
