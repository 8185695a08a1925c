// Package hist provides the binned histograms consumed by the fit packages.
//
// A Histogram is a tagged variant: its Kind (one- or two-dimensional) is
// fixed by the number of axes passed to New and never re-derived. Bins are
// 1-based on every axis; bin 0 is underflow and NBins+1 is overflow.
package hist

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimension is returned when an operation does not match the
	// histogram's Kind.
	ErrDimension = errors.New("hist: dimension mismatch")
	// ErrBinning is returned for invalid or incompatible axes.
	ErrBinning = errors.New("hist: invalid binning")
)

// Kind tags a histogram as one- or two-dimensional.
type Kind int

const (
	OneDimensional Kind = iota + 1
	TwoDimensional
)

func (k Kind) String() string {
	switch k {
	case OneDimensional:
		return "1D"
	case TwoDimensional:
		return "2D"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Binned is the read-only view of a one-dimensional binned dataset used by
// the auto-initialiser and the fitters. Bin indices are 1-based.
type Binned interface {
	NBinsX() int
	BinCenter(i int) float64
	BinContent(i int) float64
	XMin() float64
	XMax() float64
}

// BinErrorer is implemented by datasets that carry per-bin uncertainties.
type BinErrorer interface {
	BinError(i int) float64
}

// Histogram is a fixed-binning 1-D or 2-D histogram.
type Histogram struct {
	Name  string
	Title string

	kind    Kind
	axes    []AxisSpec
	content []float64
	sumw2   []float64 // nil until an error is set explicitly
	entries int
	labels  [2]map[int]string
}

// New creates an empty histogram with one axis (OneDimensional) or two
// axes (TwoDimensional). Any other number of axes is ErrDimension.
func New(name, title string, axes ...AxisSpec) (*Histogram, error) {
	var kind Kind
	switch len(axes) {
	case 1:
		kind = OneDimensional
	case 2:
		kind = TwoDimensional
	default:
		return nil, fmt.Errorf("%w: need one or two axes, got %d", ErrDimension, len(axes))
	}
	for _, a := range axes {
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}

	h := &Histogram{
		Name:  name,
		Title: title,
		kind:  kind,
		axes:  append([]AxisSpec(nil), axes...),
	}
	h.content = make([]float64, h.cells())
	return h, nil
}

// Kind returns the histogram's dimensionality tag.
func (h *Histogram) Kind() Kind { return h.kind }

// Axis returns axis 0 (x) or 1 (y).
func (h *Histogram) Axis(i int) (AxisSpec, error) {
	if i < 0 || i >= len(h.axes) {
		return AxisSpec{}, fmt.Errorf("%w: %s histogram has no axis %d", ErrDimension, h.kind, i)
	}
	return h.axes[i], nil
}

func (h *Histogram) strideY() int { return h.axes[0].NBins + 2 }

func (h *Histogram) cells() int {
	n := h.strideY()
	if h.kind == TwoDimensional {
		n *= h.axes[1].NBins + 2
	}
	return n
}

func (h *Histogram) index(ix, iy int) (int, bool) {
	if ix < 0 || ix > h.axes[0].NBins+1 {
		return 0, false
	}
	if h.kind == OneDimensional {
		return ix, iy == 0
	}
	if iy < 0 || iy > h.axes[1].NBins+1 {
		return 0, false
	}
	return ix + iy*h.strideY(), true
}

// NBinsX returns the number of x bins.
func (h *Histogram) NBinsX() int { return h.axes[0].NBins }

// NBinsY returns the number of y bins, or 0 for a 1-D histogram.
func (h *Histogram) NBinsY() int {
	if h.kind != TwoDimensional {
		return 0
	}
	return h.axes[1].NBins
}

// XMin returns the lower edge of the x axis.
func (h *Histogram) XMin() float64 { return h.axes[0].Min }

// XMax returns the upper edge of the x axis.
func (h *Histogram) XMax() float64 { return h.axes[0].Max }

// BinCenter returns the x center of bin i.
func (h *Histogram) BinCenter(i int) float64 { return h.axes[0].BinCenter(i) }

// BinContent returns the content of x bin i. For a 2-D histogram this is
// the projection onto x, summed over every y bin including under- and
// overflow.
func (h *Histogram) BinContent(i int) float64 {
	if h.kind == OneDimensional {
		return h.Content(i, 0)
	}
	var sum float64
	for iy := 0; iy <= h.axes[1].NBins+1; iy++ {
		sum += h.Content(i, iy)
	}
	return sum
}

// BinError returns the uncertainty of x bin i, projected for 2-D.
func (h *Histogram) BinError(i int) float64 {
	if h.kind == OneDimensional {
		return h.Error(i, 0)
	}
	var sum2 float64
	for iy := 0; iy <= h.axes[1].NBins+1; iy++ {
		e := h.Error(i, iy)
		sum2 += e * e
	}
	return math.Sqrt(sum2)
}

// Content returns the content of cell (ix, iy). Use iy = 0 for 1-D.
// Out-of-range cells read as zero.
func (h *Histogram) Content(ix, iy int) float64 {
	idx, ok := h.index(ix, iy)
	if !ok {
		return 0
	}
	return h.content[idx]
}

// SetContent overwrites cell (ix, iy).
func (h *Histogram) SetContent(ix, iy int, v float64) error {
	idx, ok := h.index(ix, iy)
	if !ok {
		return fmt.Errorf("%w: cell (%d, %d) outside %s histogram", ErrBinning, ix, iy, h.kind)
	}
	h.content[idx] = v
	return nil
}

// Error returns the uncertainty of cell (ix, iy): the explicit error when
// one has been set, otherwise sqrt(|content|).
func (h *Histogram) Error(ix, iy int) float64 {
	idx, ok := h.index(ix, iy)
	if !ok {
		return 0
	}
	if h.sumw2 != nil {
		return math.Sqrt(h.sumw2[idx])
	}
	return math.Sqrt(math.Abs(h.content[idx]))
}

// SetError overwrites the uncertainty of cell (ix, iy). The first call
// switches the histogram to explicit per-cell errors.
func (h *Histogram) SetError(ix, iy int, e float64) error {
	idx, ok := h.index(ix, iy)
	if !ok {
		return fmt.Errorf("%w: cell (%d, %d) outside %s histogram", ErrBinning, ix, iy, h.kind)
	}
	if h.sumw2 == nil {
		h.sumw2 = make([]float64, len(h.content))
		for i, c := range h.content {
			h.sumw2[i] = math.Abs(c)
		}
	}
	h.sumw2[idx] = e * e
	return nil
}

// Fill adds one entry at x. Only valid for 1-D histograms.
func (h *Histogram) Fill(x float64) error {
	if h.kind != OneDimensional {
		return fmt.Errorf("%w: Fill on %s histogram", ErrDimension, h.kind)
	}
	h.add(h.axes[0].FindBin(x), 0)
	return nil
}

// FillXY adds one entry at (x, y). Only valid for 2-D histograms.
func (h *Histogram) FillXY(x, y float64) error {
	if h.kind != TwoDimensional {
		return fmt.Errorf("%w: FillXY on %s histogram", ErrDimension, h.kind)
	}
	h.add(h.axes[0].FindBin(x), h.axes[1].FindBin(y))
	return nil
}

func (h *Histogram) add(ix, iy int) {
	idx, _ := h.index(ix, iy)
	h.content[idx]++
	if h.sumw2 != nil {
		h.sumw2[idx]++
	}
	h.entries++
}

// Entries returns the number of Fill calls.
func (h *Histogram) Entries() int { return h.entries }

// Integral sums the in-range contents.
func (h *Histogram) Integral() float64 {
	var sum float64
	if h.kind == OneDimensional {
		for ix := 1; ix <= h.axes[0].NBins; ix++ {
			sum += h.Content(ix, 0)
		}
		return sum
	}
	for iy := 1; iy <= h.axes[1].NBins; iy++ {
		for ix := 1; ix <= h.axes[0].NBins; ix++ {
			sum += h.Content(ix, iy)
		}
	}
	return sum
}

// ProjectionX returns a 1-D histogram of the x projection. For a 1-D
// histogram it returns a copy.
func (h *Histogram) ProjectionX() *Histogram {
	p := &Histogram{
		Name:  h.Name + "_px",
		Title: h.Title,
		kind:  OneDimensional,
		axes:  []AxisSpec{h.axes[0]},
	}
	p.content = make([]float64, p.cells())
	explicit := h.sumw2 != nil
	if explicit {
		p.sumw2 = make([]float64, p.cells())
	}
	for ix := 0; ix <= h.axes[0].NBins+1; ix++ {
		p.content[ix] = h.BinContent(ix)
		if explicit {
			e := h.BinError(ix)
			p.sumw2[ix] = e * e
		}
	}
	p.entries = h.entries
	return p
}

// SetLabels attaches labels to bins of axis "x" or "y". Keys are 0-based
// positions along the axis, so key k labels bin k+1. Contents are kept.
func (h *Histogram) SetLabels(axis string, labels map[int]string) error {
	var a int
	switch axis {
	case "x":
		a = 0
	case "y":
		if h.kind != TwoDimensional {
			return fmt.Errorf("%w: y labels on %s histogram", ErrDimension, h.kind)
		}
		a = 1
	default:
		return fmt.Errorf("hist: unknown axis %q, accepted values are \"x\" and \"y\"", axis)
	}
	if h.labels[a] == nil {
		h.labels[a] = make(map[int]string, len(labels))
	}
	for k, label := range labels {
		h.labels[a][k+1] = label
	}
	return nil
}

// Label returns the label of bin i on axis "x" or "y", if any.
func (h *Histogram) Label(axis string, i int) string {
	switch axis {
	case "x":
		return h.labels[0][i]
	case "y":
		return h.labels[1][i]
	}
	return ""
}

var _ Binned = (*Histogram)(nil)
var _ BinErrorer = (*Histogram)(nil)
