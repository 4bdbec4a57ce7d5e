package cluster

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/tidings/pkg/tidings/embed"
)

// averageLinkage groups rows bottom-up by average cosine distance. Pairs are
// merged while the closest one is within threshold; after that merging goes
// on only while more than maxGroups groups remain. Groups are returned in
// order of their smallest row index, each sorted ascending.
func averageLinkage(data *mat.Dense, threshold float64, maxGroups int) [][]int {
	n, _ := data.Dims()
	if n == 0 {
		return nil
	}

	dist := make([][]float64, n)
	for i := 0; i < n; i++ {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := 1 - embed.Cosine(data.RawRowView(i), data.RawRowView(j))
			dist[i][j], dist[j][i] = d, d
		}
	}

	groups := make([][]int, n)
	active := make([]bool, n)
	for i := range groups {
		groups[i] = []int{i}
		active[i] = true
	}
	remaining := n

	for remaining > 1 {
		a, b := -1, -1
		minDist := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && dist[i][j] < minDist {
					minDist, a, b = dist[i][j], i, j
				}
			}
		}
		if a < 0 {
			break
		}
		if minDist > threshold && (maxGroups <= 0 || remaining <= maxGroups) {
			break
		}

		// Lance-Williams update for average linkage.
		na, nb := float64(len(groups[a])), float64(len(groups[b]))
		for k := 0; k < n; k++ {
			if !active[k] || k == a || k == b {
				continue
			}
			d := (na*dist[a][k] + nb*dist[b][k]) / (na + nb)
			dist[a][k], dist[k][a] = d, d
		}
		groups[a] = mergeSorted(groups[a], groups[b])
		groups[b] = nil
		active[b] = false
		remaining--
	}

	out := make([][]int, 0, remaining)
	for i := 0; i < n; i++ {
		if active[i] {
			out = append(out, groups[i])
		}
	}
	return out
}

func mergeSorted(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] < b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
