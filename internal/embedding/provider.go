// Package embedding defines the provider seam for text embeddings. The real
// remote provider lives outside this module; this package supplies the
// interface, a deterministic local fallback, and the degraded-mode wrapper
// that keeps ingestion live when the remote provider is down.
package embedding

import "context"

// Provider produces a fixed-dimension embedding for a text.
type Provider interface {
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the vector dimension this provider emits.
	Dimension() int

	// Name returns the provider identifier for logging.
	Name() string
}
