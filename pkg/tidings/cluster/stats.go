package cluster

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/cognicore/tidings/pkg/tidings/embed"
)

// StableID derives a cluster ID from its member IDs. The same membership
// always yields the same ID, whatever the order of ids.
func StableID(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	sum := md5.Sum([]byte(strings.Join(sorted, "|")))
	return hex.EncodeToString(sum[:])
}

// Score ranks clusters for a digest: size plus a recency bonus of
// 2/hours since the newest member, with hours floored at 1.
func Score(size int, end, now time.Time) float64 {
	hours := now.Sub(end).Hours()
	if hours < 1 {
		hours = 1
	}
	return float64(size) + 2/hours
}

// coherence is the mean pairwise cosine similarity, 1 for a singleton and 0
// when there are no feature rows.
func coherence(rows [][]float64, n int) float64 {
	if n <= 1 {
		return 1
	}
	if rows == nil {
		return 0
	}
	total, pairs := 0.0, 0
	for i := 0; i < len(rows); i++ {
		for j := i + 1; j < len(rows); j++ {
			total += embed.Cosine(rows[i], rows[j])
			pairs++
		}
	}
	return total / float64(pairs)
}

// pairwiseSums scores each row by its summed similarity to the others.
func pairwiseSums(rows [][]float64) []float64 {
	out := make([]float64, len(rows))
	for i := 0; i < len(rows); i++ {
		for j := i + 1; j < len(rows); j++ {
			s := embed.Cosine(rows[i], rows[j])
			out[i] += s
			out[j] += s
		}
	}
	return out
}

// centroidSims scores each row by its cosine to the normalized centroid.
func centroidSims(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	centroid := make([]float64, len(rows[0]))
	for _, r := range rows {
		floats.Add(centroid, r)
	}
	embed.Normalize(centroid)

	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = embed.Cosine(r, centroid)
	}
	return out
}

// pickRepresentatives returns up to limit member IDs by descending score,
// ties going to the earlier then lower-ID member. idx is in member order;
// scores[i] belongs to idx[i] and may be nil.
func pickRepresentatives(members []Member, idx []int, scores []float64, limit int) []string {
	order := make([]int, len(idx))
	for i := range order {
		order[i] = i
	}
	score := func(i int) float64 {
		if scores == nil {
			return 0
		}
		return scores[i]
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := score(order[a]), score(order[b])
		if sa != sb {
			return sa > sb
		}
		return memberBefore(members[idx[order[a]]], members[idx[order[b]]])
	})
	if len(order) > limit {
		order = order[:limit]
	}
	out := make([]string, len(order))
	for i, o := range order {
		out[i] = members[idx[o]].ID
	}
	return out
}

// weightedTerms sums the TF-IDF columns of rows and returns the heaviest
// terms.
func weightedTerms(terms []string, rows [][]float64, limit int) []string {
	if len(terms) == 0 || rows == nil {
		return nil
	}
	sums := make([]float64, len(terms))
	for _, r := range rows {
		floats.Add(sums, r)
	}
	weights := make(map[string]float64, len(terms))
	for j, w := range sums {
		if w > 0 {
			weights[terms[j]] = w
		}
	}
	return topByWeight(weights, limit)
}

func topByWeight(weights map[string]float64, limit int) []string {
	terms := make([]string, 0, len(weights))
	for t, w := range weights {
		if w > 0 {
			terms = append(terms, t)
		}
	}
	sort.Slice(terms, func(a, b int) bool {
		if weights[terms[a]] != weights[terms[b]] {
			return weights[terms[a]] > weights[terms[b]]
		}
		return terms[a] < terms[b]
	})
	if len(terms) > limit {
		terms = terms[:limit]
	}
	return terms
}
