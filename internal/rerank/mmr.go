// Package rerank selects a relevant yet non-redundant subset of retrieval
// candidates using Maximal Marginal Relevance.
package rerank

import "math"

// MMR returns the indices of up to k candidates, ordered by selection.
// Each round scores every remaining candidate as
//
//	lambda*cos(query, cand) - (1-lambda)*max cos(cand, selected)
//
// and takes the best. lambda near 1 favors pure relevance, near 0 pure
// diversity. Ties break deterministically toward the lowest candidate
// index. Fewer than k candidates returns all of them.
func MMR(query []float32, vectors [][]float32, k int, lambda float64) []int {
	n := len(vectors)
	if n == 0 || k <= 0 {
		return nil
	}
	if k > n {
		k = n
	}

	simQuery := make([]float64, n)
	for i, v := range vectors {
		simQuery[i] = cosine(query, v)
	}

	selected := make([]int, 0, k)
	remaining := make([]bool, n)
	for i := range remaining {
		remaining[i] = true
	}

	for len(selected) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i := 0; i < n; i++ {
			if !remaining[i] {
				continue
			}
			diversity := 0.0
			for j, s := range selected {
				sim := cosine(vectors[i], vectors[s])
				if j == 0 || sim > diversity {
					diversity = sim
				}
			}
			score := lambda*simQuery[i] - (1-lambda)*diversity
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
		if best < 0 {
			break
		}
		selected = append(selected, best)
		remaining[best] = false
	}
	return selected
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
