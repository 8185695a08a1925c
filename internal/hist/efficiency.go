package hist

import (
	"fmt"
	"math"
)

// Efficiency divides partial by total bin by bin and attaches binomial
// errors sqrt(eff*(1-eff)/total). Bins with an empty total stay at zero.
//
// A 2-D partial may be divided by a 1-D total, in which case every y row
// is normalised by the total of its x bin, or by a 2-D total of the same
// binning, cell by cell. A 1-D partial needs a 1-D total.
func Efficiency(partial, total *Histogram) (*Histogram, error) {
	if partial == nil || total == nil {
		return nil, fmt.Errorf("%w: nil histogram", ErrDimension)
	}
	if partial.kind == OneDimensional && total.kind != OneDimensional {
		return nil, fmt.Errorf("%w: 1D partial needs a 1D total, got %s", ErrDimension, total.kind)
	}
	if !partial.axes[0].Compatible(total.axes[0]) {
		return nil, fmt.Errorf("%w: x axes differ", ErrBinning)
	}
	if total.kind == TwoDimensional && !partial.axes[1].Compatible(total.axes[1]) {
		return nil, fmt.Errorf("%w: y axes differ", ErrBinning)
	}

	axes := make([]AxisSpec, len(partial.axes))
	for i, a := range partial.axes {
		a.Name = partial.Name + "Eff"
		a.Title = partial.Name + " Efficiency"
		axes[i] = a
	}
	eff, err := New(partial.Name+"Eff", partial.Name+" Efficiency", axes...)
	if err != nil {
		return nil, err
	}

	rows := []int{0}
	if partial.kind == TwoDimensional {
		rows = rows[:0]
		for iy := 1; iy <= partial.axes[1].NBins; iy++ {
			rows = append(rows, iy)
		}
	}
	for _, iy := range rows {
		for ix := 1; ix <= partial.axes[0].NBins; ix++ {
			den := total.Content(ix, 0)
			if total.kind == TwoDimensional {
				den = total.Content(ix, iy)
			}
			if den <= 0 {
				continue
			}
			e := partial.Content(ix, iy) / den
			var se float64
			if e < 1 {
				se = math.Sqrt(e * (1 - e) / den)
			}
			if err := eff.SetContent(ix, iy, e); err != nil {
				return nil, err
			}
			if err := eff.SetError(ix, iy, se); err != nil {
				return nil, err
			}
		}
	}
	return eff, nil
}
