package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Provider names accepted by NewFromConfig.
const (
	ProviderStatic = "static"
	ProviderOllama = "ollama"
)

// Options selects and sizes an embedder.
type Options struct {
	Provider   string
	Model      string
	Dimensions int
	OllamaHost string
	CacheSize  int
	// Verify pings remote providers before returning.
	Verify bool
}

// NewFromConfig builds the configured embedder wrapped in an LRU cache.
func NewFromConfig(ctx context.Context, opts Options) (Embedder, error) {
	var inner Embedder

	switch strings.ToLower(opts.Provider) {
	case "", ProviderStatic:
		inner = NewStaticEmbedder(opts.Dimensions)

	case ProviderOllama:
		o := NewOllamaEmbedder(OllamaConfig{
			Host:       opts.OllamaHost,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
		})
		if opts.Verify {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := o.Ping(pingCtx)
			cancel()
			if err != nil {
				_ = o.Close()
				return nil, err
			}
		}
		inner = o

	default:
		return nil, fmt.Errorf("unknown embeddings provider %q (use static or ollama)", opts.Provider)
	}

	slog.Debug("embedder_created",
		slog.String("provider", opts.Provider),
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))

	return NewCachedEmbedder(inner, opts.CacheSize), nil
}
