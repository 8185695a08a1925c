package hist

import (
	"fmt"
	"math"
)

// AxisSpec describes a fixed-width binned axis.
type AxisSpec struct {
	NBins int     `json:"nbins"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Name  string  `json:"name,omitempty"`
	Title string  `json:"title,omitempty"`
}

// Validate checks that the axis has at least one bin and a positive width.
func (a AxisSpec) Validate() error {
	if a.NBins < 1 {
		return fmt.Errorf("%w: axis %q needs at least one bin, got %d", ErrBinning, a.Name, a.NBins)
	}
	if !(a.Max > a.Min) || math.IsInf(a.Max-a.Min, 0) {
		return fmt.Errorf("%w: axis %q has invalid range [%g, %g]", ErrBinning, a.Name, a.Min, a.Max)
	}
	return nil
}

// BinWidth returns the width of a single bin.
func (a AxisSpec) BinWidth() float64 {
	return (a.Max - a.Min) / float64(a.NBins)
}

// BinCenter returns the center of bin i (1-based). Underflow and overflow
// bins report the center they would have if the axis were extended.
func (a AxisSpec) BinCenter(i int) float64 {
	return a.Min + (float64(i)-0.5)*a.BinWidth()
}

// BinLowEdge returns the lower edge of bin i (1-based).
func (a AxisSpec) BinLowEdge(i int) float64 {
	return a.Min + float64(i-1)*a.BinWidth()
}

// FindBin returns the 1-based bin holding x, 0 for underflow and NBins+1
// for overflow.
func (a AxisSpec) FindBin(x float64) int {
	switch {
	case math.IsNaN(x) || x < a.Min:
		return 0
	case x >= a.Max:
		return a.NBins + 1
	}
	bin := int((x-a.Min)/a.BinWidth()) + 1
	if bin > a.NBins {
		bin = a.NBins
	}
	return bin
}

// Compatible reports whether two axes share binning.
func (a AxisSpec) Compatible(b AxisSpec) bool {
	return a.NBins == b.NBins && a.Min == b.Min && a.Max == b.Max
}
