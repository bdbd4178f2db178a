package provider

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/theimaginaryfoundation/loupe/analysis"
)

// DefaultMaxInputChars bounds the text sent to remote classifiers in one request.
const DefaultMaxInputChars = 20_000

const sentimentInstructions = `You classify the overall sentiment of a piece of user-written text (a review, comment or post).
Answer with exactly one label: NEGATIVE, NEUTRAL or POSITIVE.
Confidence is your probability, between 0 and 1, that the label is correct.
Judge the author's attitude, not the topic: "the battery died" in a complaint is NEGATIVE, a factual product description is NEUTRAL.
The text may be a fragment cut out of a longer text; classify the fragment as given.`

// sentimentVerdict is the structured answer requested from LLM classifiers.
type sentimentVerdict struct {
	Label      string  `json:"label" jsonschema:"enum=NEGATIVE,enum=NEUTRAL,enum=POSITIVE"`
	Confidence float64 `json:"confidence" jsonschema:"description=Probability between 0 and 1 that the label is correct"`
}

func (v sentimentVerdict) vote() (analysis.ChunkVote, error) {
	k, err := analysis.ParseKind(v.Label)
	if err != nil {
		return analysis.ChunkVote{}, err
	}
	c := v.Confidence
	// Some models answer in percent.
	if c > 1 && c <= 100 {
		c /= 100
	}
	if c < 0 || c > 1 {
		return analysis.ChunkVote{}, fmt.Errorf("confidence %v out of range", v.Confidence)
	}
	return analysis.ChunkVote{Kind: k, Confidence: c}, nil
}

// clipText cuts text to at most max runes.
func clipText(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	r := []rune(text)
	return strings.TrimSpace(string(r[:max]))
}
