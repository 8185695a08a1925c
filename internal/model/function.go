// Package model holds Function, the fit-function handle that is configured
// by the coordinator and handed to a fitter. A Function pairs a compiled
// formula with per-parameter state (value, error, fixed flag, limits) and
// the x range over which it is fitted.
package model

import (
	"fmt"

	"github.com/banshee-data/peakfit/internal/formula"
)

type parameter struct {
	value   float64
	err     float64
	fixed   bool
	limited bool
	lo, hi  float64
}

// Function is a named formula with mutable parameter state. Parameter
// setters silently ignore out-of-range indices.
type Function struct {
	name    string
	formula *formula.Formula
	params  []parameter
	xmin    float64
	xmax    float64
}

// New creates a function over [xmin, xmax] with f.NPar() free parameters
// initialised to zero.
func New(name string, f *formula.Formula, xmin, xmax float64) *Function {
	return &Function{
		name:    name,
		formula: f,
		params:  make([]parameter, f.NPar()),
		xmin:    xmin,
		xmax:    xmax,
	}
}

func (fn *Function) Name() string              { return fn.name }
func (fn *Function) Formula() *formula.Formula { return fn.formula }
func (fn *Function) NPar() int                 { return len(fn.params) }

func (fn *Function) valid(i int) bool { return i >= 0 && i < len(fn.params) }

// SetParameter sets the value of parameter i without touching its fixed
// flag or limits.
func (fn *Function) SetParameter(i int, v float64) {
	if fn.valid(i) {
		fn.params[i].value = v
	}
}

// FixParameter fixes parameter i at v and clears its limits.
func (fn *Function) FixParameter(i int, v float64) {
	if !fn.valid(i) {
		return
	}
	fn.params[i] = parameter{value: v, err: fn.params[i].err, fixed: true}
}

// ReleaseParameter makes parameter i free and unbounded.
func (fn *Function) ReleaseParameter(i int) {
	if !fn.valid(i) {
		return
	}
	p := &fn.params[i]
	p.fixed = false
	p.limited = false
	p.lo, p.hi = 0, 0
}

// SetParLimits bounds parameter i to [lo, hi]. Equal non-zero bounds fix
// the parameter at lo; [0, 0] or lo > hi removes any existing limits.
func (fn *Function) SetParLimits(i int, lo, hi float64) {
	if !fn.valid(i) {
		return
	}
	p := &fn.params[i]
	switch {
	case lo < hi:
		p.fixed = false
		p.limited = true
		p.lo, p.hi = lo, hi
	case lo == hi && lo != 0:
		fn.FixParameter(i, lo)
	default:
		p.limited = false
		p.lo, p.hi = 0, 0
	}
}

// Parameter returns the value of parameter i, or 0 when i is out of range.
func (fn *Function) Parameter(i int) float64 {
	if !fn.valid(i) {
		return 0
	}
	return fn.params[i].value
}

// ParError returns the uncertainty last reported for parameter i.
func (fn *Function) ParError(i int) float64 {
	if !fn.valid(i) {
		return 0
	}
	return fn.params[i].err
}

// SetParError records the uncertainty of parameter i.
func (fn *Function) SetParError(i int, e float64) {
	if fn.valid(i) {
		fn.params[i].err = e
	}
}

// IsFixed reports whether parameter i is held constant during a fit.
func (fn *Function) IsFixed(i int) bool {
	return fn.valid(i) && fn.params[i].fixed
}

// Limits returns the bounds of parameter i and whether they are active.
func (fn *Function) Limits(i int) (lo, hi float64, ok bool) {
	if !fn.valid(i) || !fn.params[i].limited {
		return 0, 0, false
	}
	return fn.params[i].lo, fn.params[i].hi, true
}

// Parameters returns a copy of the parameter values.
func (fn *Function) Parameters() []float64 {
	out := make([]float64, len(fn.params))
	for i, p := range fn.params {
		out[i] = p.value
	}
	return out
}

// SetRange sets the x range used when fitting.
func (fn *Function) SetRange(lo, hi float64) {
	fn.xmin, fn.xmax = lo, hi
}

// Range returns the fit range.
func (fn *Function) Range() (lo, hi float64) {
	return fn.xmin, fn.xmax
}

// Eval evaluates the function at x with the current parameter values.
func (fn *Function) Eval(x float64) (float64, error) {
	return fn.EvalWith(x, fn.Parameters())
}

// EvalWith evaluates the function at x with an explicit parameter vector.
func (fn *Function) EvalWith(x float64, p []float64) (float64, error) {
	v, err := fn.formula.Eval(x, p)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", fn.name, err)
	}
	return v, nil
}

func (fn *Function) String() string {
	return fmt.Sprintf("%s: %s on [%g, %g]", fn.name, fn.formula.Expr(), fn.xmin, fn.xmax)
}
