package cluster

import (
	"fmt"
	"math"

	"github.com/banshee-data/peakfit/internal/hist"
)

// MaxPoints caps the size of an expanded point cloud.
const MaxPoints = 1 << 26

// Expand converts a binned dataset into an unbinned point cloud: the
// center of every bin is emitted round(content) times. Non-positive and
// non-finite contents contribute nothing. A dataset whose rounded contents
// sum to more than MaxPoints is ErrTooManyPoints.
func Expand(b hist.Binned) ([]float64, error) {
	n := b.NBinsX()
	total := 0
	counts := make([]int, n+1)
	for i := 1; i <= n; i++ {
		c := b.BinContent(i)
		if math.IsNaN(c) || math.IsInf(c, 0) || c <= 0 {
			continue
		}
		r := math.Round(c)
		if r > float64(MaxPoints-total) {
			return nil, fmt.Errorf("%w: more than %d points at bin %d (content %g)", ErrTooManyPoints, MaxPoints, i, c)
		}
		counts[i] = int(r)
		total += counts[i]
	}
	if total == 0 {
		return nil, nil
	}

	points := make([]float64, 0, total)
	for i := 1; i <= n; i++ {
		x := b.BinCenter(i)
		for k := 0; k < counts[i]; k++ {
			points = append(points, x)
		}
	}
	return points, nil
}
