package embedding

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/config"
)

// NewFromConfig builds a Provider for cfg. If the configured ONNX or OpenAI model
// cannot be constructed, the hash embedder is used instead and a warning is logged.
func NewFromConfig(cfg config.EmbeddingConfig, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	embedder, model := buildEmbedder(cfg, logger)

	opts := []ProviderOption{
		WithCache(cfg.CacheSize),
		WithModelName(model),
		WithDimensions(cfg.Dimensions),
		WithLogger(logger),
	}
	if cfg.PersistentCachePath != "" {
		disk, err := OpenDiskCache(cfg.PersistentCachePath, false, logger)
		if err != nil {
			_ = embedder.Close()
			return nil, fmt.Errorf("failed to open persistent embedding cache: %w", err)
		}
		opts = append(opts, WithDiskCache(disk))
	}
	return NewProvider(embedder, opts...), nil
}

func buildEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, string) {
	switch cfg.Provider {
	case "onnx":
		e, err := NewONNXEmbedder(ONNXOptions{
			ModelPath:  cfg.ModelPath,
			Dimensions: cfg.Dimensions,
			MaxTokens:  cfg.MaxTokens,
		})
		if err == nil {
			return e, "onnx:" + filepath.Base(cfg.ModelPath)
		}
		logger.Warn("ONNX embedder unavailable, using hash embedder", zap.String("model", cfg.ModelPath), zap.Error(err))
	case "openai":
		e, err := NewOpenAIEmbedder(OpenAIOptions{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			Model:      cfg.OpenAI.Model,
			Dimensions: cfg.Dimensions,
		})
		if err == nil {
			return e, "openai:" + e.Model()
		}
		logger.Warn("OpenAI embedder unavailable, using hash embedder", zap.Error(err))
	}
	return NewHashEmbedder(cfg.Dimensions), "hash"
}
