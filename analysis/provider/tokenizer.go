package provider

import (
	"errors"
	"fmt"
	"sync"
	"unicode"
	"unicode/utf8"

	tokenizer "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"

	"github.com/theimaginaryfoundation/loupe/analysis"
)

// HFTokenizer counts tokens with a Hugging Face tokenizer.json.
type HFTokenizer struct {
	mu  sync.Mutex
	tok *tokenizer.Tokenizer
}

func NewHFTokenizer(path string) (*HFTokenizer, error) {
	if path == "" {
		return nil, errors.New("NewHFTokenizer: tokenizer path is empty")
	}
	tok, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("NewHFTokenizer: load %s: %w", path, err)
	}
	return &HFTokenizer{tok: tok}, nil
}

var _ analysis.Tokenizer = (*HFTokenizer)(nil)

// IDs encodes text with special tokens added.
func (t *HFTokenizer) IDs(text string) ([]int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	enc, err := t.tok.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return enc.GetIds(), nil
}

func (t *HFTokenizer) CountTokens(text string) (int, error) {
	ids, err := t.IDs(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// ApproxTokenizer estimates byte-pair token counts without a vocabulary: every punctuation rune is
// a token, and every word costs one token per started CharsPerToken runes, plus two special tokens
// per text.
type ApproxTokenizer struct {
	CharsPerToken int
}

var _ analysis.Tokenizer = ApproxTokenizer{}

func (a ApproxTokenizer) CountTokens(text string) (int, error) {
	per := a.CharsPerToken
	if per <= 0 {
		per = 4
	}
	n := 2
	word := 0
	flush := func() {
		if word > 0 {
			n += (word + per - 1) / per
			word = 0
		}
	}
	for len(text) > 0 {
		r, size := utf8.DecodeRuneInString(text)
		text = text[size:]
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r):
			word++
		case unicode.IsSpace(r):
			flush()
		default:
			flush()
			n++
		}
	}
	flush()
	return n, nil
}
