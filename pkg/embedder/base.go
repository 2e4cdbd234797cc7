// Package embedder defines the interface for text embedding providers.
//
// An embedder converts arbitrary-length text into one fixed-length float
// vector whose dimensionality is determined by the embedding model.
package embedder

import "context"

// Provider defines the interface for embedding providers.
type Provider interface {
	// Embed converts text into a single vector. If the provider returns
	// the embedding in multiple chunks, they are concatenated in order.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Dimensions returns the vector dimensionality of this provider.
	Dimensions() int

	// Close releases provider resources.
	Close() error
}
