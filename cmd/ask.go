package cmd

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/taxaide/taxaide/internal/app"
	"github.com/taxaide/taxaide/internal/assistant"
)

// runAsk answers a single question and prints the result.
func runAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	topK := fs.Int("top-k", 0, "number of supporting chunks to retrieve")
	if err := fs.Parse(args); err != nil {
		return err
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return fmt.Errorf("usage: taxaide ask <question>")
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

	var opts []assistant.QueryOption
	if *topK > 0 {
		opts = append(opts, assistant.WithTopK(*topK))
	}

	resp, err := a.Assistant.Query(ctx, question, opts...)
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	fmt.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for i, s := range resp.Sources {
			fmt.Printf("  [%d] %s\n", i+1, s.Label)
		}
	}
	fmt.Println()
	fmt.Printf("Confidence: %.2f", resp.Confidence)
	if resp.Placeholder {
		fmt.Print(" (placeholder: generation unavailable)")
	}
	fmt.Println()
	return nil
}
