package topicmodel

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kljensen/snowball"
)

const minTermRunes = 2

// vector is a sparse vector with strictly increasing indices.
type vector struct {
	idx []int
	val []float64
}

func (v vector) empty() bool { return len(v.idx) == 0 }

func dot(a, b vector) float64 {
	var s float64
	i, j := 0, 0
	for i < len(a.idx) && j < len(b.idx) {
		switch {
		case a.idx[i] == b.idx[j]:
			s += a.val[i] * b.val[j]
			i++
			j++
		case a.idx[i] < b.idx[j]:
			i++
		default:
			j++
		}
	}
	return s
}

func normalize(v vector) vector {
	var n float64
	for _, x := range v.val {
		n += x * x
	}
	if n == 0 {
		return v
	}
	n = math.Sqrt(n)
	out := vector{idx: v.idx, val: make([]float64, len(v.val))}
	for i, x := range v.val {
		out.val[i] = x / n
	}
	return out
}

func denseVector(x []float64) vector {
	v := vector{idx: make([]int, 0, len(x)), val: make([]float64, 0, len(x))}
	for i, f := range x {
		if f != 0 {
			v.idx = append(v.idx, i)
			v.val = append(v.val, f)
		}
	}
	return normalize(v)
}

// analyzer turns raw text into stems and remembers which surface form each stem came from.
type analyzer struct {
	language  string
	stems     bool
	stopwords map[string]struct{}
	surfaces  map[string]map[string]int
}

func newAnalyzer(language string) *analyzer {
	_, err := snowball.Stem("words", language, true)
	return &analyzer{
		language:  language,
		stems:     err == nil,
		stopwords: stopwordsFor(language),
		surfaces:  make(map[string]map[string]int),
	}
}

func (a *analyzer) terms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < minTermRunes || isNumeric(w) {
			continue
		}
		if _, stop := a.stopwords[w]; stop {
			continue
		}
		stem := w
		if a.stems {
			if s, err := snowball.Stem(w, a.language, true); err == nil && s != "" {
				stem = s
			}
		}
		forms := a.surfaces[stem]
		if forms == nil {
			forms = make(map[string]int)
			a.surfaces[stem] = forms
		}
		forms[w]++
		out = append(out, stem)
	}
	return out
}

// display returns the most frequent surface form of stem.
func (a *analyzer) display(stem string) string {
	best, bestN := stem, 0
	for form, n := range a.surfaces[stem] {
		if n > bestN || (n == bestN && form < best) {
			best, bestN = form, n
		}
	}
	return best
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// vocabulary keeps the maxFeatures terms with the highest document frequency.
func vocabulary(docs [][]string, maxFeatures int) map[string]int {
	df := make(map[string]int)
	for _, terms := range docs {
		seen := make(map[string]struct{}, len(terms))
		for _, t := range terms {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}
	all := make([]string, 0, len(df))
	for t := range df {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		if df[all[i]] != df[all[j]] {
			return df[all[i]] > df[all[j]]
		}
		return all[i] < all[j]
	})
	if maxFeatures > 0 && len(all) > maxFeatures {
		all = all[:maxFeatures]
	}
	sort.Strings(all)
	vocab := make(map[string]int, len(all))
	for i, t := range all {
		vocab[t] = i
	}
	return vocab
}

// tfidfVectors builds L2-normalized sublinear tf-idf vectors over vocab.
func tfidfVectors(docs [][]string, vocab map[string]int) []vector {
	n := float64(len(docs))
	df := make([]int, len(vocab))
	for _, terms := range docs {
		seen := make(map[int]struct{}, len(terms))
		for _, t := range terms {
			i, ok := vocab[t]
			if !ok {
				continue
			}
			if _, dup := seen[i]; dup {
				continue
			}
			seen[i] = struct{}{}
			df[i]++
		}
	}

	out := make([]vector, len(docs))
	for d, terms := range docs {
		tf := make(map[int]int, len(terms))
		for _, t := range terms {
			if i, ok := vocab[t]; ok {
				tf[i]++
			}
		}
		v := vector{idx: make([]int, 0, len(tf)), val: make([]float64, 0, len(tf))}
		for i := range tf {
			v.idx = append(v.idx, i)
		}
		sort.Ints(v.idx)
		for _, i := range v.idx {
			idf := math.Log((1+n)/(1+float64(df[i]))) + 1
			v.val = append(v.val, (1+math.Log(float64(tf[i])))*idf)
		}
		out[d] = normalize(v)
	}
	return out
}
