package cluster

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// Defaults used when the corresponding KMeans field is zero.
const (
	DefaultRestarts      = 10
	DefaultMaxIterations = 300
	DefaultTolerance     = 1e-9
)

// KMeans is a one-dimensional k-means clusterer with k-means++ seeding.
//
// Restarts independent seedings are drawn from a single PCG stream seeded
// with Seed; the partition with the lowest inertia wins. Lloyd iterations
// stop once no center moves by more than Tolerance or after MaxIterations.
type KMeans struct {
	Clusters      int
	Seed          uint64
	Restarts      int
	MaxIterations int
	Tolerance     float64
}

// NewKMeans creates a clusterer for k clusters with default settings.
func NewKMeans(k int, seed uint64) *KMeans {
	return &KMeans{Clusters: k, Seed: seed}
}

// K returns the number of clusters produced.
func (km *KMeans) K() int { return km.Clusters }

// Cluster partitions points into K clusters. An empty input yields K empty
// clusters.
func (km *KMeans) Cluster(points []float64) ([]Cluster, error) {
	if km.Clusters < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, km.Clusters)
	}
	if len(points) == 0 {
		return make([]Cluster, km.Clusters), nil
	}

	restarts := km.Restarts
	if restarts <= 0 {
		restarts = DefaultRestarts
	}
	rng := rand.New(rand.NewPCG(km.Seed, km.Seed^0x9e3779b97f4a7c15))

	var (
		bestLabels  []int
		bestInertia = math.Inf(1)
	)
	for r := 0; r < restarts; r++ {
		centers := km.seed(points, rng)
		labels, inertia := km.lloyd(points, centers)
		if inertia < bestInertia {
			bestInertia = inertia
			bestLabels = labels
		}
	}

	return summarise(points, bestLabels, km.Clusters), nil
}

// seed picks initial centers with k-means++: the first uniformly, each
// following one with probability proportional to the squared distance to
// the nearest center already chosen.
func (km *KMeans) seed(points []float64, rng *rand.Rand) []float64 {
	centers := make([]float64, 0, km.Clusters)
	centers = append(centers, points[rng.IntN(len(points))])

	d2 := make([]float64, len(points))
	for i, p := range points {
		d := p - centers[0]
		d2[i] = d * d
	}

	for len(centers) < km.Clusters {
		idx, ok := sampleuv.NewWeighted(d2, rng).Take()
		if !ok {
			// Every point coincides with a center already chosen.
			idx = rng.IntN(len(points))
		}
		c := points[idx]
		centers = append(centers, c)
		for i, p := range points {
			d := p - c
			if d*d < d2[i] {
				d2[i] = d * d
			}
		}
	}
	return centers
}

// lloyd refines centers in place and returns the final assignment and its
// inertia. A center that loses all its points stays where it is.
func (km *KMeans) lloyd(points, centers []float64) ([]int, float64) {
	maxIter := km.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	tol := km.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}

	labels := make([]int, len(points))
	sums := make([]float64, len(centers))
	counts := make([]int, len(centers))

	for iter := 0; iter < maxIter; iter++ {
		assign(points, centers, labels)

		for k := range sums {
			sums[k], counts[k] = 0, 0
		}
		for i, p := range points {
			sums[labels[i]] += p
			counts[labels[i]]++
		}

		shift := 0.0
		for k := range centers {
			if counts[k] == 0 {
				continue
			}
			next := sums[k] / float64(counts[k])
			shift = math.Max(shift, math.Abs(next-centers[k]))
			centers[k] = next
		}
		if shift <= tol {
			break
		}
	}

	inertia := assign(points, centers, labels)
	return labels, inertia
}

// assign labels each point with its nearest center (lowest index on ties)
// and returns the inertia.
func assign(points, centers []float64, labels []int) float64 {
	var inertia float64
	for i, p := range points {
		best, bestD := 0, math.Inf(1)
		for k, c := range centers {
			d := (p - c) * (p - c)
			if d < bestD {
				best, bestD = k, d
			}
		}
		labels[i] = best
		inertia += bestD
	}
	return inertia
}

// summarise computes per-cluster statistics and orders the clusters by
// center, heaviest first on ties, with empty clusters last.
func summarise(points []float64, labels []int, k int) []Cluster {
	members := make([][]float64, k)
	for i, p := range points {
		members[labels[i]] = append(members[labels[i]], p)
	}

	out := make([]Cluster, k)
	for j, m := range members {
		if len(m) == 0 {
			continue
		}
		mean, std := stat.PopMeanStdDev(m, nil)
		out[j] = Cluster{
			Center: mean,
			Spread: std,
			Weight: len(m),
			Max:    floats.Max(m),
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		ea, eb := out[a].Empty(), out[b].Empty()
		if ea != eb {
			return eb
		}
		if out[a].Center != out[b].Center {
			return out[a].Center < out[b].Center
		}
		return out[a].Weight > out[b].Weight
	})
	return out
}

var _ Clusterer = (*KMeans)(nil)
