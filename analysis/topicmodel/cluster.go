package topicmodel

import (
	"context"
	"sort"
)

const unassigned = -2

// cluster groups vectors into topics. Documents are visited densest first (most neighbors with
// cosine similarity >= threshold); an unvisited seed whose still-unassigned neighborhood holds at
// least minSize documents becomes a topic. Whatever is left is an outlier (-1). Topic ids are
// renumbered so topic 0 is the largest.
func cluster(ctx context.Context, vecs []vector, minSize int, threshold float64) ([]int, error) {
	n := len(vecs)
	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if vecs[i].empty() {
			continue
		}
		for j := 0; j < n; j++ {
			if i == j {
				neighbors[i] = append(neighbors[i], j)
				continue
			}
			if vecs[j].empty() {
				continue
			}
			if dot(vecs[i], vecs[j]) >= threshold {
				neighbors[i] = append(neighbors[i], j)
			}
		}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return len(neighbors[order[a]]) > len(neighbors[order[b]])
	})

	assigned := make([]int, n)
	for i := range assigned {
		assigned[i] = unassigned
	}
	var sizes []int
	for _, seed := range order {
		if assigned[seed] != unassigned || len(neighbors[seed]) < minSize {
			continue
		}
		members := make([]int, 0, len(neighbors[seed]))
		for _, j := range neighbors[seed] {
			if assigned[j] == unassigned {
				members = append(members, j)
			}
		}
		if len(members) < minSize {
			continue
		}
		id := len(sizes)
		for _, j := range members {
			assigned[j] = id
		}
		sizes = append(sizes, len(members))
	}

	// Largest topic first; formation order breaks ties.
	rank := make([]int, len(sizes))
	for i := range rank {
		rank[i] = i
	}
	sort.SliceStable(rank, func(a, b int) bool { return sizes[rank[a]] > sizes[rank[b]] })
	remap := make([]int, len(sizes))
	for newID, oldID := range rank {
		remap[oldID] = newID
	}

	labels := make([]int, n)
	for i, a := range assigned {
		if a == unassigned {
			labels[i] = -1
			continue
		}
		labels[i] = remap[a]
	}
	return labels, nil
}

// centroids returns the normalized mean vector of every topic.
func centroids(vecs []vector, labels []int, topics int) []vector {
	sums := make([]map[int]float64, topics)
	for i := range sums {
		sums[i] = make(map[int]float64)
	}
	for d, t := range labels {
		if t < 0 {
			continue
		}
		for k, idx := range vecs[d].idx {
			sums[t][idx] += vecs[d].val[k]
		}
	}
	out := make([]vector, topics)
	for t, m := range sums {
		v := vector{idx: make([]int, 0, len(m)), val: make([]float64, 0, len(m))}
		for idx := range m {
			v.idx = append(v.idx, idx)
		}
		sort.Ints(v.idx)
		for _, idx := range v.idx {
			v.val = append(v.val, m[idx])
		}
		out[t] = normalize(v)
	}
	return out
}
