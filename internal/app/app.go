// Package app provides application initialization and dependency wiring.
//
// App is the container that owns every long-lived component: the database
// pool, Genkit instance, knowledge store, retriever, response cache, and
// the assistant built from them. Setup constructs it in dependency order;
// Close releases resources in reverse.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taxaide/taxaide/internal/assistant"
	"github.com/taxaide/taxaide/internal/config"
	"github.com/taxaide/taxaide/internal/knowledge"
	"github.com/taxaide/taxaide/internal/log"
	"github.com/taxaide/taxaide/internal/retrieval"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit    *genkit.Genkit
	Embedder  ai.Embedder
	Pool      *pgxpool.Pool
	Knowledge *knowledge.Store
	Retriever *retrieval.Retriever
	Assistant *assistant.Assistant
}

// Close releases all resources. Safe to call on a partially constructed
// App after a Setup failure.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return nil
}
