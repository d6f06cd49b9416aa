package clustering

import "digestline/internal/core"

// densityGroups builds a similarity graph over articles (edge when
// cosine similarity >= threshold) and returns its connected components
// as index groups, approximating the density-based (HDBSCAN-like)
// clustering spec.md §4.5 step 2 describes: "distance = 1 - cosine
// similarity, selection epsilon ≈ 1 - similarity-threshold". Singleton
// components (the "noise label" of a real density clusterer) are
// dropped by the caller's min-cluster-size check.
func densityGroups(articles []core.ProcessedArticle, threshold float64) [][]int {
	n := len(articles)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < n; i++ {
		if len(articles[i].Embedding) == 0 {
			continue
		}
		for j := i + 1; j < n; j++ {
			if len(articles[j].Embedding) == 0 {
				continue
			}
			sim := core.CosineSimilarity(articles[i].Embedding, articles[j].Embedding)
			if sim >= threshold {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := find(i)
		groups[root] = append(groups[root], i)
	}
	var out [][]int
	for _, idxs := range groups {
		if len(idxs) > 1 {
			out = append(out, idxs)
		}
	}
	return out
}

// kmeansK picks the fallback cluster count spec.md §4.5 step 2 names:
// min(max_clusters, floor(N/min_size)).
func kmeansK(n, maxClusters, minSize int) int {
	if minSize <= 0 {
		minSize = 1
	}
	k := n / minSize
	if k > maxClusters {
		k = maxClusters
	}
	if k < 1 {
		k = 1
	}
	return k
}

// kmeansGroups runs a fixed-iteration KMeans over article embeddings
// and returns cluster membership as index groups.
func kmeansGroups(articles []core.ProcessedArticle, k int) [][]int {
	n := len(articles)
	if n == 0 || k <= 0 {
		return nil
	}
	if k > n {
		k = n
	}
	dim := 0
	for _, a := range articles {
		if len(a.Embedding) > dim {
			dim = len(a.Embedding)
		}
	}
	if dim == 0 {
		return nil
	}

	vecs := make([][]float64, n)
	for i, a := range articles {
		v := make([]float64, dim)
		for j, x := range a.Embedding {
			v[j] = float64(x)
		}
		vecs[i] = v
	}

	centroids := make([][]float64, k)
	for i := 0; i < k; i++ {
		centroids[i] = append([]float64{}, vecs[(i*n)/k]...)
	}

	assignments := make([]int, n)
	for iter := 0; iter < 25; iter++ {
		changed := false
		for i, v := range vecs {
			best, bestDist := 0, euclidean(v, centroids[0])
			for c := 1; c < k; c++ {
				d := euclidean(v, centroids[c])
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			if assignments[i] != best {
				changed = true
			}
			assignments[i] = best
		}
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := 0; c < k; c++ {
			sums[c] = make([]float64, dim)
		}
		for i, v := range vecs {
			c := assignments[i]
			counts[c]++
			for d := 0; d < dim; d++ {
				sums[c][d] += v[d]
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for d := 0; d < dim; d++ {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
		if !changed {
			break
		}
	}

	groups := make(map[int][]int)
	for i, c := range assignments {
		groups[c] = append(groups[c], i)
	}
	var out [][]int
	for _, idxs := range groups {
		out = append(out, idxs)
	}
	return out
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func indexMembers(articles []core.ProcessedArticle, idxs []int) []core.ProcessedArticle {
	out := make([]core.ProcessedArticle, len(idxs))
	for i, idx := range idxs {
		out[i] = articles[idx]
	}
	return out
}

// meanCoherence is the mean pairwise cosine similarity within a
// cluster's member embeddings (spec.md §4.5 step 5, "Coherence" in the
// glossary).
func meanCoherence(members []core.ProcessedArticle) float64 {
	if len(members) <= 1 {
		return 1
	}
	var sum float64
	var count int
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			if len(members[i].Embedding) == 0 || len(members[j].Embedding) == 0 {
				continue
			}
			sum += core.CosineSimilarity(members[i].Embedding, members[j].Embedding)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// applySemanticGuard drops members whose mean similarity-to-others
// falls below 0.8*coherenceThreshold (spec.md §4.5 step 5).
func (c *Clusterer) applySemanticGuard(members []core.ProcessedArticle) []core.ProcessedArticle {
	if len(members) <= 2 {
		return members
	}
	floor := 0.8 * c.cfg.CoherenceThreshold
	var kept []core.ProcessedArticle
	for i, m := range members {
		if len(m.Embedding) == 0 {
			kept = append(kept, m)
			continue
		}
		var sum float64
		var count int
		for j, other := range members {
			if i == j || len(other.Embedding) == 0 {
				continue
			}
			sum += core.CosineSimilarity(m.Embedding, other.Embedding)
			count++
		}
		if count == 0 || sum/float64(count) >= floor {
			kept = append(kept, m)
		}
	}
	return kept
}
