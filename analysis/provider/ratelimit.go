package provider

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/theimaginaryfoundation/loupe/analysis"
)

// RateLimitedClassifier waits on a token bucket before every call to Next.
type RateLimitedClassifier struct {
	Next    analysis.Classifier
	Limiter *rate.Limiter
}

// NewRateLimitedClassifier allows perSecond calls per second with the given burst.
func NewRateLimitedClassifier(next analysis.Classifier, perSecond float64, burst int) *RateLimitedClassifier {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClassifier{Next: next, Limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimitedClassifier) ClassifyOnce(ctx context.Context, text string) (analysis.ChunkVote, error) {
	if err := r.Limiter.Wait(ctx); err != nil {
		return analysis.ChunkVote{}, err
	}
	return r.Next.ClassifyOnce(ctx, text)
}
