package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	language "cloud.google.com/go/language/apiv2"
	"cloud.google.com/go/language/apiv2/languagepb"
	"google.golang.org/api/option"

	"github.com/theimaginaryfoundation/loupe/analysis"
)

// NeutralBand is the half-width of the document score interval mapped to NEUTRAL.
const NeutralBand = 0.25

// LanguageClassifier classifies text with the Cloud Natural Language AnalyzeSentiment call.
type LanguageClassifier struct {
	analyze func(context.Context, *languagepb.AnalyzeSentimentRequest) (*languagepb.AnalyzeSentimentResponse, error)
	close   func() error

	MaxInputChars int
	Retry         RetryPolicy
}

// NewLanguageClassifier connects with the given service-account credentials, raw JSON or base64
// encoded JSON. Empty credentials fall back to Application Default Credentials.
func NewLanguageClassifier(ctx context.Context, credentials string) (*LanguageClassifier, error) {
	var opts []option.ClientOption
	if credentials != "" {
		creds, err := decodeCredentials(credentials)
		if err != nil {
			return nil, fmt.Errorf("NewLanguageClassifier: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(creds))
	}
	client, err := language.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewLanguageClassifier: create client: %w", err)
	}
	return &LanguageClassifier{
		analyze: func(ctx context.Context, req *languagepb.AnalyzeSentimentRequest) (*languagepb.AnalyzeSentimentResponse, error) {
			return client.AnalyzeSentiment(ctx, req)
		},
		close:         client.Close,
		MaxInputChars: DefaultMaxInputChars,
		Retry:         DefaultRetryPolicy,
	}, nil
}

func decodeCredentials(s string) ([]byte, error) {
	b := bytes.TrimSpace([]byte(s))
	if len(b) > 0 && b[0] == '{' {
		return b, nil
	}
	dec, err := base64.StdEncoding.DecodeString(string(b))
	if err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return dec, nil
}

var _ analysis.Classifier = (*LanguageClassifier)(nil)

func (c *LanguageClassifier) ClassifyOnce(ctx context.Context, text string) (analysis.ChunkVote, error) {
	if c.analyze == nil {
		return analysis.ChunkVote{}, errors.New("LanguageClassifier: client is nil")
	}
	req := &languagepb.AnalyzeSentimentRequest{
		Document: &languagepb.Document{
			Source: &languagepb.Document_Content{
				Content: clipText(text, c.MaxInputChars),
			},
			Type: languagepb.Document_PLAIN_TEXT,
		},
		EncodingType: languagepb.EncodingType_UTF8,
	}
	resp, err := Retry(ctx, c.Retry, func(ctx context.Context) (*languagepb.AnalyzeSentimentResponse, error) {
		return c.analyze(ctx, req)
	})
	if err != nil {
		return analysis.ChunkVote{}, fmt.Errorf("LanguageClassifier: AnalyzeSentiment: %w", err)
	}
	if resp.GetDocumentSentiment() == nil {
		return analysis.ChunkVote{}, errors.New("LanguageClassifier: response has no document sentiment")
	}
	return voteFromScore(float64(resp.GetDocumentSentiment().GetScore())), nil
}

// voteFromScore maps a document score in [-1,1] to a kind. NEGATIVE and POSITIVE grow more
// confident towards the ends of the scale; NEUTRAL is most confident at 0.
func voteFromScore(s float64) analysis.ChunkVote {
	s = math.Max(-1, math.Min(1, s))
	switch {
	case s < -NeutralBand:
		return analysis.ChunkVote{Kind: analysis.Negative, Confidence: 0.5 + math.Abs(s)/2}
	case s > NeutralBand:
		return analysis.ChunkVote{Kind: analysis.Positive, Confidence: 0.5 + math.Abs(s)/2}
	default:
		return analysis.ChunkVote{Kind: analysis.Neutral, Confidence: 1 - 2*math.Abs(s)}
	}
}

func (c *LanguageClassifier) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}
