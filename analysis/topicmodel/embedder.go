package topicmodel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/theimaginaryfoundation/loupe/analysis/provider"
)

// DefaultEmbeddingBatch is the number of texts sent per embeddings request.
const DefaultEmbeddingBatch = 256

// OpenAIEmbedder embeds texts with the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	Model  string

	// Dimensions shortens text-embedding-3 vectors when > 0.
	Dimensions int
	BatchSize  int
	Retry      provider.RetryPolicy
}

func NewOpenAIEmbedder(apiKey, model string, opts ...option.RequestOption) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("NewOpenAIEmbedder: missing API key")
	}
	if model == "" {
		model = openai.EmbeddingModelTextEmbedding3Small
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIEmbedder{
		client:    &client,
		Model:     model,
		BatchSize: DefaultEmbeddingBatch,
		Retry:     provider.DefaultRetryPolicy,
	}, nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// Embed returns one vector per text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	size := e.BatchSize
	if size <= 0 {
		size = DefaultEmbeddingBatch
	}
	out := make([][]float64, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		batch := make([]string, end-start)
		for i, t := range texts[start:end] {
			// The endpoint rejects empty inputs.
			if strings.TrimSpace(t) == "" {
				t = " "
			}
			batch[i] = t
		}

		params := openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
			Model: e.Model,
		}
		if e.Dimensions > 0 {
			params.Dimensions = openai.Int(int64(e.Dimensions))
		}
		resp, err := provider.Retry(ctx, e.Retry, func(ctx context.Context) (*openai.CreateEmbeddingResponse, error) {
			return e.client.Embeddings.New(ctx, params)
		})
		if err != nil {
			return nil, fmt.Errorf("OpenAIEmbedder: batch %d-%d: %w", start, end, err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("OpenAIEmbedder: got %d embeddings for %d texts", len(resp.Data), len(batch))
		}
		for _, d := range resp.Data {
			if d.Index < 0 || int(d.Index) >= len(batch) {
				return nil, fmt.Errorf("OpenAIEmbedder: embedding index %d out of range", d.Index)
			}
			out[start+int(d.Index)] = d.Embedding
		}
	}
	return out, nil
}
