package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/theimaginaryfoundation/loupe/analysis"
	"github.com/theimaginaryfoundation/loupe/analysis/fileutils"
)

// OpenAIClassifier classifies text with a Responses API model constrained to a strict JSON schema.
type OpenAIClassifier struct {
	client *openai.Client
	Model  string

	// MaxInputChars clips the text sent per request (defaults to DefaultMaxInputChars).
	MaxInputChars int

	Retry RetryPolicy
}

// NewOpenAIClassifier builds a classifier from an API key; extra options (base URL, HTTP client)
// are passed to the client.
func NewOpenAIClassifier(apiKey, model string, opts ...option.RequestOption) (*OpenAIClassifier, error) {
	if apiKey == "" {
		return nil, errors.New("NewOpenAIClassifier: missing API key (set -api-key or OPENAI_API_KEY)")
	}
	if model == "" {
		return nil, errors.New("NewOpenAIClassifier: model is empty")
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIClassifier{client: &client, Model: model, MaxInputChars: DefaultMaxInputChars, Retry: DefaultRetryPolicy}, nil
}

var _ analysis.Classifier = (*OpenAIClassifier)(nil)

func (c *OpenAIClassifier) ClassifyOnce(ctx context.Context, text string) (analysis.ChunkVote, error) {
	if c.client == nil {
		return analysis.ChunkVote{}, errors.New("OpenAIClassifier: client is nil")
	}
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "SentimentVerdict",
			Schema:      sentimentSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Sentiment label and confidence"),
			Type:        "json_schema",
		},
	}
	params := responses.ResponseNewParams{
		Model:           c.Model,
		MaxOutputTokens: openai.Int(200),
		Instructions:    openai.String(sentimentInstructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(clipText(text, c.maxInput()), responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := Retry(ctx, c.Retry, func(ctx context.Context) (*responses.Response, error) {
		return c.client.Responses.New(ctx, params)
	})
	if err != nil {
		return analysis.ChunkVote{}, fmt.Errorf("OpenAIClassifier: %w", err)
	}

	var out sentimentVerdict
	if err := fileutils.DecodeModelJSON(resp.OutputText(), &out); err != nil {
		return analysis.ChunkVote{}, fmt.Errorf("OpenAIClassifier: unmarshal verdict: %w", err)
	}
	v, err := out.vote()
	if err != nil {
		return analysis.ChunkVote{}, fmt.Errorf("OpenAIClassifier: %w", err)
	}
	return v, nil
}

func (c *OpenAIClassifier) maxInput() int {
	if c.MaxInputChars <= 0 {
		return DefaultMaxInputChars
	}
	return c.MaxInputChars
}
