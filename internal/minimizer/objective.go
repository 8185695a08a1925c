package minimizer

import (
	"math"

	"github.com/banshee-data/peakfit/internal/hist"
	"github.com/banshee-data/peakfit/internal/model"
)

// point is one bin taking part in the fit.
type point struct {
	x, y, err float64
}

// selectBins returns the bins whose centers lie in the function range.
// For chi-square fits, bins with zero error (empty bins unless errors are
// set explicitly) are skipped.
func selectBins(data hist.Binned, fn *model.Function, o options) []point {
	lo, hi := fn.Range()
	errs, hasErrors := data.(hist.BinErrorer)

	var pts []point
	for i := 1; i <= data.NBinsX(); i++ {
		x := data.BinCenter(i)
		if x < lo || x > hi {
			continue
		}
		y := data.BinContent(i)
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}

		e := math.Sqrt(math.Abs(y))
		if hasErrors {
			e = errs.BinError(i)
		}
		if o.unitWeights {
			e = 1
		}

		if o.likelihood {
			if y < 0 {
				continue
			}
		} else if !(e > 0) {
			continue
		}
		pts = append(pts, point{x: x, y: y, err: e})
	}
	return pts
}

// freePar is a parameter adjusted by the minimiser. Limited parameters
// are optimised through the sine transform
//
//	p = lo + (hi-lo)*(sin(u)+1)/2
//
// which keeps p inside [lo, hi] for every u.
type freePar struct {
	index   int
	limited bool
	lo, hi  float64
}

func (f freePar) external(u float64) float64 {
	if !f.limited {
		return u
	}
	return f.lo + (f.hi-f.lo)*(math.Sin(u)+1)/2
}

func (f freePar) internal(p float64) float64 {
	if !f.limited {
		return p
	}
	s := 2*(p-f.lo)/(f.hi-f.lo) - 1
	return math.Asin(math.Max(-1, math.Min(1, s)))
}

// freeParameters lists the parameters referenced by fn's formula that are
// not fixed. Unreferenced parameters never take part in a fit.
func freeParameters(fn *model.Function) []freePar {
	var out []freePar
	for _, i := range fn.Formula().Indices() {
		if i >= fn.NPar() || fn.IsFixed(i) {
			continue
		}
		fp := freePar{index: i}
		if lo, hi, ok := fn.Limits(i); ok {
			fp.limited, fp.lo, fp.hi = true, lo, hi
		}
		out = append(out, fp)
	}
	return out
}

// objective evaluates the fit statistic for a full parameter vector.
type objective struct {
	fn         *model.Function
	pts        []point
	likelihood bool
}

// tiny replaces non-positive model predictions in the likelihood.
const tiny = 1e-300

// value returns the chi-square, or for likelihood fits the Baker-Cousins
// likelihood ratio 2*sum(f - y + y*ln(y/f)). Evaluation failures yield +Inf.
func (o objective) value(p []float64) float64 {
	var sum float64
	for _, pt := range o.pts {
		f, err := o.fn.EvalWith(pt.x, p)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return math.Inf(1)
		}
		if o.likelihood {
			if f < tiny {
				f = tiny
			}
			sum += f - pt.y
			if pt.y > 0 {
				sum += pt.y * math.Log(pt.y/f)
			}
			continue
		}
		r := (pt.y - f) / pt.err
		sum += r * r
	}
	if o.likelihood {
		sum *= 2
	}
	return sum
}
