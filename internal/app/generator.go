package app

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/taxaide/taxaide/internal/config"
)

// modelGenerator adapts genkit text generation to the assistant's Generator
// interface. The prompt arrives fully assembled, so generation is a single
// non-streaming call.
type modelGenerator struct {
	g         *genkit.Genkit
	modelName string
	config    map[string]any
}

func newModelGenerator(g *genkit.Genkit, cfg *config.Config) *modelGenerator {
	return &modelGenerator{
		g:         g,
		modelName: cfg.FullModelName(),
		config: map[string]any{
			"temperature":     cfg.Temperature,
			"topP":            cfg.TopP,
			"maxOutputTokens": cfg.MaxTokens,
		},
	}
}

func (m *modelGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, m.g,
		ai.WithModelName(m.modelName),
		ai.WithPrompt(prompt),
		ai.WithConfig(m.config),
	)
	if err != nil {
		return "", fmt.Errorf("generating with %s: %w", m.modelName, err)
	}
	return resp.Text(), nil
}
