package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/theimaginaryfoundation/loupe/analysis"
	"github.com/theimaginaryfoundation/loupe/analysis/fileutils"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

const anthropicAnswerFormat = `Reply with a single JSON object and nothing else: {"label": "NEGATIVE|NEUTRAL|POSITIVE", "confidence": <number between 0 and 1>}`

// AnthropicClassifier classifies text with the Messages API.
type AnthropicClassifier struct {
	client anthropic.Client
	Model  string

	MaxInputChars int
	Retry         RetryPolicy
}

func NewAnthropicClassifier(apiKey, model string, opts ...option.RequestOption) (*AnthropicClassifier, error) {
	if apiKey == "" {
		return nil, errors.New("NewAnthropicClassifier: missing API key (set -api-key or ANTHROPIC_API_KEY)")
	}
	if model == "" {
		model = defaultAnthropicModel
	}
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &AnthropicClassifier{client: client, Model: model, MaxInputChars: DefaultMaxInputChars, Retry: DefaultRetryPolicy}, nil
}

var _ analysis.Classifier = (*AnthropicClassifier)(nil)

func (c *AnthropicClassifier) ClassifyOnce(ctx context.Context, text string) (analysis.ChunkVote, error) {
	max := c.MaxInputChars
	if max <= 0 {
		max = DefaultMaxInputChars
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.Model),
		MaxTokens: 200,
		System: []anthropic.TextBlockParam{
			{Text: sentimentInstructions + "\n" + anthropicAnswerFormat},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(clipText(text, max))),
		},
	}

	message, err := Retry(ctx, c.Retry, func(ctx context.Context) (*anthropic.Message, error) {
		return c.client.Messages.New(ctx, params)
	})
	if err != nil {
		return analysis.ChunkVote{}, fmt.Errorf("AnthropicClassifier: %w", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return analysis.ChunkVote{}, errors.New("AnthropicClassifier: no text content in response")
	}

	var out sentimentVerdict
	if err := fileutils.DecodeModelJSON(sb.String(), &out); err != nil {
		return analysis.ChunkVote{}, fmt.Errorf("AnthropicClassifier: unmarshal verdict: %w", err)
	}
	v, err := out.vote()
	if err != nil {
		return analysis.ChunkVote{}, fmt.Errorf("AnthropicClassifier: %w", err)
	}
	return v, nil
}
