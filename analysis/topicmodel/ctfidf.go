package topicmodel

import (
	"math"
	"sort"

	"github.com/theimaginaryfoundation/loupe/analysis"
)

// classTFIDF scores the terms of every class (topic, outliers included) with
//
//	W(t,c) = tf(t,c)/|c| * log(1 + A/f(t))
//
// where |c| is the number of terms in class c, A the average class size and f(t) the frequency
// of t across all classes. It returns the topN best terms per class, best first.
func classTFIDF(docs [][]string, labels []int, topN int, display func(string) string) map[int][]analysis.TermScore {
	classTF := make(map[int]map[string]int)
	classLen := make(map[int]int)
	termFreq := make(map[string]int)
	for d, terms := range docs {
		c := labels[d]
		if classTF[c] == nil {
			classTF[c] = make(map[string]int)
		}
		for _, t := range terms {
			classTF[c][t]++
			classLen[c]++
			termFreq[t]++
		}
	}
	if len(classTF) == 0 {
		return nil
	}

	var total int
	for _, n := range classLen {
		total += n
	}
	avg := float64(total) / float64(len(classTF))

	out := make(map[int][]analysis.TermScore, len(classTF))
	for c, tf := range classTF {
		if classLen[c] == 0 {
			out[c] = nil
			continue
		}
		scored := make([]analysis.TermScore, 0, len(tf))
		for t, n := range tf {
			w := float64(n) / float64(classLen[c]) * math.Log(1+avg/float64(termFreq[t]))
			scored = append(scored, analysis.TermScore{Term: t, Score: w})
		}
		sort.Slice(scored, func(i, j int) bool {
			if scored[i].Score != scored[j].Score {
				return scored[i].Score > scored[j].Score
			}
			return scored[i].Term < scored[j].Term
		})
		if topN > 0 && len(scored) > topN {
			scored = scored[:topN]
		}
		for i := range scored {
			scored[i].Term = display(scored[i].Term)
		}
		out[c] = scored
	}
	return out
}
