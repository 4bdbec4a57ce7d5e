package cluster

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/tidings/pkg/tidings/embed"
)

// ChooseK picks the number of lexical clusters for n items. k grows with
// the square root of n so small batches are not shattered into singletons:
// 2 up to 8 items, then round(sqrt(n/2)) clamped to [2, 24], never above
// maxClusters or n.
func ChooseK(n, maxClusters int) int {
	if n <= 1 {
		return n
	}
	k := 2
	if n > 8 {
		k = int(math.Round(math.Sqrt(float64(n) / 2)))
	}
	if k < 2 {
		k = 2
	}
	if k > 24 {
		k = 24
	}
	if maxClusters > 0 && k > maxClusters {
		k = maxClusters
	}
	if k > n {
		k = n
	}
	return k
}

type kmeansResult struct {
	labels  []int
	inertia float64
}

// sphericalKMeans partitions the rows of data into at most k groups by
// cosine similarity. Each of nInit runs is seeded from seed+run; the run with
// the lowest inertia wins and earlier runs win ties. Labels are renumbered in
// order of first appearance, so empty clusters leave no gaps.
func sphericalKMeans(data *mat.Dense, k int, seed int64, nInit, maxIter int) []int {
	n, _ := data.Dims()
	if n == 0 || k <= 0 {
		return nil
	}
	if k == 1 {
		return make([]int, n)
	}
	if nInit <= 0 {
		nInit = 1
	}

	var best *kmeansResult
	for run := 0; run < nInit; run++ {
		rng := rand.New(rand.NewSource(seed + int64(run)))
		res := kmeansOnce(data, k, rng, maxIter)
		if best == nil || res.inertia < best.inertia {
			best = &res
		}
	}
	return relabel(best.labels)
}

func kmeansOnce(data *mat.Dense, k int, rng *rand.Rand, maxIter int) kmeansResult {
	n, _ := data.Dims()
	centroids := initKMeansPlusPlus(data, k, rng)

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	for iter := 0; iter < maxIter; iter++ {
		changed := assign(data, centroids, labels)
		if !changed {
			break
		}
		updateCentroids(data, labels, centroids)
	}

	inertia := 0.0
	for i := 0; i < n; i++ {
		inertia += 1 - embed.Cosine(data.RawRowView(i), centroids.RawRowView(labels[i]))
	}
	return kmeansResult{labels: labels, inertia: inertia}
}

// initKMeansPlusPlus picks the first centroid uniformly and each following
// one with probability proportional to its squared cosine distance from the
// nearest centroid chosen so far.
func initKMeansPlusPlus(data *mat.Dense, k int, rng *rand.Rand) *mat.Dense {
	n, d := data.Dims()
	centroids := mat.NewDense(k, d, nil)
	centroids.SetRow(0, data.RawRowView(rng.Intn(n)))

	distances := make([]float64, n)
	for c := 1; c < k; c++ {
		for j := 0; j < n; j++ {
			point := data.RawRowView(j)
			minDist := math.Inf(1)
			for p := 0; p < c; p++ {
				if dist := 1 - embed.Cosine(point, centroids.RawRowView(p)); dist < minDist {
					minDist = dist
				}
			}
			if minDist < 0 {
				minDist = 0
			}
			distances[j] = minDist * minDist
		}

		total := floats.Sum(distances)
		if total == 0 {
			centroids.SetRow(c, data.RawRowView(rng.Intn(n)))
			continue
		}
		target := rng.Float64() * total
		cum := 0.0
		chosen := n - 1
		for j, dist := range distances {
			cum += dist
			if cum >= target && dist > 0 {
				chosen = j
				break
			}
		}
		centroids.SetRow(c, data.RawRowView(chosen))
	}
	return centroids
}

// assign moves every point to its most similar centroid (lowest index on
// ties) and reports whether any label changed.
func assign(data, centroids *mat.Dense, labels []int) bool {
	n, _ := data.Dims()
	k, _ := centroids.Dims()
	changed := false
	for i := 0; i < n; i++ {
		point := data.RawRowView(i)
		best, bestSim := 0, math.Inf(-1)
		for c := 0; c < k; c++ {
			if sim := embed.Cosine(point, centroids.RawRowView(c)); sim > bestSim {
				best, bestSim = c, sim
			}
		}
		if labels[i] != best {
			labels[i] = best
			changed = true
		}
	}
	return changed
}

// updateCentroids sets each centroid to the normalized mean of its points.
// A centroid that lost all its points keeps its previous position.
func updateCentroids(data *mat.Dense, labels []int, centroids *mat.Dense) {
	k, d := centroids.Dims()
	sums := mat.NewDense(k, d, nil)
	counts := make([]int, k)
	for i, c := range labels {
		floats.Add(sums.RawRowView(c), data.RawRowView(i))
		counts[c]++
	}
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			continue
		}
		row := sums.RawRowView(c)
		embed.Normalize(row)
		centroids.SetRow(c, row)
	}
}

func relabel(labels []int) []int {
	mapping := make(map[int]int)
	out := make([]int, len(labels))
	for i, l := range labels {
		id, ok := mapping[l]
		if !ok {
			id = len(mapping)
			mapping[l] = id
		}
		out[i] = id
	}
	return out
}
