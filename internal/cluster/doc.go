// Package cluster partitions one-dimensional point clouds for peak-fit
// initialisation.
//
// Responsibilities: expanding a binned dataset into an unbinned point
// cloud, k-means clustering with k-means++ seeding, and per-cluster
// summary statistics (center, population spread, weight, maximum).
// Key types: Clusterer, KMeans, Cluster.
//
// Output is deterministic for a fixed seed: clusters are sorted by center
// and empty clusters are reported last with zero-valued statistics.
package cluster
