package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/genkit"
	"github.com/google/go-cmp/cmp"

	"github.com/taxaide/taxaide/internal/config"
	"github.com/taxaide/taxaide/internal/log"
	"github.com/taxaide/taxaide/internal/testutil"
)

func TestApp_Close_PartiallyConstructed(t *testing.T) {
	// Close must be safe on an App where Setup failed before the pool
	// was created.
	a := &App{Logger: log.NewNop()}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() on partial App: %v", err)
	}

	// And on a zero App, which Setup's deferred cleanup can see.
	var zero App
	if err := zero.Close(); err != nil {
		t.Fatalf("Close() on zero App: %v", err)
	}
}

func TestNewModelGenerator_Config(t *testing.T) {
	cfg := &config.Config{
		ModelName:   "gemini-2.5-flash",
		Temperature: 0.3,
		TopP:        0.9,
		MaxTokens:   1024,
	}

	gen := newModelGenerator(nil, cfg)

	if gen.modelName != "googleai/gemini-2.5-flash" {
		t.Errorf("modelName = %q, want googleai/gemini-2.5-flash", gen.modelName)
	}
	want := map[string]any{
		"temperature":     float32(0.3),
		"topP":            float32(0.9),
		"maxOutputTokens": 1024,
	}
	if diff := cmp.Diff(want, gen.config); diff != "" {
		t.Errorf("generation config mismatch (-want +got):\n%s", diff)
	}
}

func TestModelGenerator_Generate(t *testing.T) {
	g := genkit.Init(context.Background())
	mock := testutil.NewMockLLM("fallback answer")
	mock.AddResponse("section 179", "ANSWER: The limit is $1,160,000 per IRS Publication 946.")
	mock.RegisterModel(g)

	gen := &modelGenerator{
		g:         g,
		modelName: "mock/test-model",
		config:    map[string]any{"temperature": float32(0.3)},
	}

	text, err := gen.Generate(context.Background(), "What is the Section 179 limit?")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(text, "$1,160,000") {
		t.Errorf("Generate() = %q, want mock rule response", text)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("model calls = %d, want 1", len(calls))
	}
	if !strings.Contains(calls[0].UserMessage, "Section 179") {
		t.Errorf("prompt did not reach the model: %q", calls[0].UserMessage)
	}
}

func TestModelGenerator_GenerateFailure(t *testing.T) {
	g := genkit.Init(context.Background())
	mock := testutil.NewMockLLM("unused")
	mock.FailWith(errors.New("quota exhausted"))
	mock.RegisterModel(g)

	gen := &modelGenerator{g: g, modelName: "mock/test-model", config: map[string]any{}}

	if _, err := gen.Generate(context.Background(), "Any prompt at all."); err == nil {
		t.Fatal("Generate() with failing model: expected error")
	}
}
