package fit

import (
	"fmt"

	"github.com/banshee-data/peakfit/internal/cluster"
	"github.com/banshee-data/peakfit/internal/monitoring"
)

// InitReport describes what AutoInitialise did. Non-fatal conditions are
// reported here rather than as errors.
type InitReport struct {
	EmptyInput bool              // the dataset expanded to no points; nothing was changed
	Points     int               // size of the expanded point cloud
	Clusters   []cluster.Cluster // sorted by center, aligned with the peak components
	Degenerate []string          // peak components that received an empty cluster
}

// AutoInitialise estimates the mean, sigma and normalisation of every peak
// component by clustering the dataset.
//
// The dataset is expanded into a point cloud (each bin center repeated
// round(content) times) and split into as many clusters as there are peak
// components. Clusters sorted by center are matched in order to the peak
// components, which must therefore be declared left-to-right. For cluster
// i the stored parameters of peak component i become:
//
//	mean   center            Bounded  [center-spread, center+spread]
//	sigma  spread            Fixed    [0.9*spread, 2*spread]
//	norm   max member value  Free     [0.8*max, 1.2*max]
//
// The spread is the population standard deviation. The normalisation
// estimate is the largest x value in the cluster, not a bin content.
// An empty cluster yields zero estimates. Parameters outside the peak
// mappings are left untouched.
func (c *Coordinator) AutoInitialise() (InitReport, error) {
	var peaks []*Component
	for _, comp := range c.components {
		if comp.Peak != nil {
			peaks = append(peaks, comp)
		}
	}
	if len(peaks) == 0 {
		monitoring.Logf("fit: auto-initialise skipped, no peak components configured")
		return InitReport{}, nil
	}

	points, err := cluster.Expand(c.data)
	if err != nil {
		return InitReport{}, fmt.Errorf("auto-initialise: %w", err)
	}
	report := InitReport{Points: len(points)}
	if len(points) == 0 {
		monitoring.Logf("fit: auto-initialise skipped, no data points to cluster")
		report.EmptyInput = true
		return report, nil
	}

	clusterer := c.newClusterer(len(peaks))
	if clusterer.K() != len(peaks) {
		return report, fmt.Errorf("fit: clusterer produces %d clusters for %d peak components", clusterer.K(), len(peaks))
	}
	clusters, err := clusterer.Cluster(points)
	if err != nil {
		return report, fmt.Errorf("auto-initialise: %w", err)
	}
	if len(clusters) != len(peaks) {
		return report, fmt.Errorf("fit: clusterer returned %d clusters, expected %d", len(clusters), len(peaks))
	}
	report.Clusters = clusters

	for i, comp := range peaks {
		cl := clusters[i]
		if cl.Empty() {
			monitoring.Logf("fit: auto-initialise: component %q received an empty cluster, using zero estimates", comp.Name)
			report.Degenerate = append(report.Degenerate, comp.Name)
		}

		mean, spread, norm := cl.Center, cl.Spread, cl.Max
		c.store.Set(comp.Peak.Mean, Parameter{
			Value: mean, Mode: Bounded, Bounds: [2]float64{mean - spread, mean + spread},
		})
		c.store.Set(comp.Peak.Sigma, Parameter{
			Value: spread, Mode: Fixed, Bounds: [2]float64{0.9 * spread, 2 * spread},
		})
		c.store.Set(comp.Peak.Norm, Parameter{
			Value: norm, Mode: Free, Bounds: [2]float64{0.8 * norm, 1.2 * norm},
		})
		monitoring.Debugf("fit: auto-initialise %s: mean=%g sigma=%g norm=%g weight=%d",
			comp.Name, mean, spread, norm, cl.Weight)
	}
	return report, nil
}
