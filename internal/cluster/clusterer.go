package cluster

import "errors"

var (
	// ErrInvalidK is returned when a clusterer is asked for fewer than one
	// cluster.
	ErrInvalidK = errors.New("cluster: k must be at least 1")
	// ErrTooManyPoints is returned by Expand when the point cloud would
	// exceed MaxPoints.
	ErrTooManyPoints = errors.New("cluster: point cloud too large")
)

// Clusterer abstracts the clustering implementation so the initialiser
// can be exercised with alternative strategies in tests.
type Clusterer interface {
	// Cluster partitions points into exactly K() clusters.
	// Clusters are sorted ascending by center; empty clusters come last.
	Cluster(points []float64) ([]Cluster, error)

	// K returns the number of clusters produced.
	K() int
}

// Cluster summarises the points assigned to one cluster.
type Cluster struct {
	Center float64 // Sample mean of the member points
	Spread float64 // Population standard deviation of the member points
	Weight int     // Number of member points
	Max    float64 // Largest member value
}

// Empty reports whether no points were assigned to the cluster.
func (c Cluster) Empty() bool { return c.Weight == 0 }
