package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	openAIMaxBatch     = 2048
	openAIDefaultModel = "text-embedding-3-small"
)

// OpenAIOptions configures an OpenAI-compatible embeddings endpoint.
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// OpenAIEmbedder calls the OpenAI embeddings API. Any OpenAI-compatible
// provider works by setting BaseURL.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dims   int
}

// NewOpenAIEmbedder creates an embedder for the configured model. APIKey is required.
func NewOpenAIEmbedder(opts OpenAIOptions) (*OpenAIEmbedder, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if opts.Model == "" {
		opts.Model = openAIDefaultModel
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = 384
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(clientOpts...)

	return &OpenAIEmbedder{client: &client, model: opts.Model, dims: opts.Dimensions}, nil
}

// Embed returns the embedding for a single text.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns embeddings for texts, splitting into API-sized requests.
func (o *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := 0; i < len(texts); i += openAIMaxBatch {
		end := min(i+openAIMaxBatch, len(texts))
		vecs, err := o.callAPI(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", i, end, err)
		}
		copy(result[i:], vecs)
	}
	return result, nil
}

// Dimensions returns the requested vector size.
func (o *OpenAIEmbedder) Dimensions() int {
	return o.dims
}

// Model returns the remote model identifier.
func (o *OpenAIEmbedder) Model() string {
	return o.model
}

// Close is a no-op; the HTTP client needs no teardown.
func (o *OpenAIEmbedder) Close() error {
	return nil
}

func (o *OpenAIEmbedder) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model:          o.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions:     openai.Int(int64(o.dims)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(texts))
	for _, item := range resp.Data {
		idx := item.Index
		if idx < 0 || idx >= int64(len(texts)) {
			return nil, fmt.Errorf("unexpected embedding index %d for batch size %d", idx, len(texts))
		}
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		vecs[idx] = vec
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
	}
	return vecs, nil
}
