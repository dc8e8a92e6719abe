package ai

import "context"

// Embedder generates vector embeddings from text.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Completer answers a single text prompt.
// Implementations must be thread-safe for concurrent use.
type Completer interface {
	// Complete returns the model's reply to prompt, trimmed of surrounding whitespace.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Describer produces a natural-language description of an image file.
// Implementations must be thread-safe for concurrent use.
type Describer interface {
	// DescribeImage returns a short caption of the image stored at path.
	DescribeImage(ctx context.Context, path string) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Completer returns the text completion service.
	Completer() Completer

	// Describer returns the image description service.
	Describer() Describer

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
