// Package minimizer is the default fit.Fitter. It minimises a chi-square
// or Poisson likelihood over the bins of a dataset with gonum/optimize,
// holding fixed parameters constant and mapping limited ones through a
// sine transform, and estimates parameter errors from a finite-difference
// Hessian.
package minimizer

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/banshee-data/peakfit/internal/config"
	"github.com/banshee-data/peakfit/internal/fit"
	"github.com/banshee-data/peakfit/internal/hist"
	"github.com/banshee-data/peakfit/internal/model"
	"github.com/banshee-data/peakfit/internal/monitoring"
)

var (
	// ErrOption is returned for an unrecognised fit option letter.
	ErrOption = errors.New("minimizer: unknown fit option")
	// ErrNoData is returned when no bin falls inside the fit range.
	ErrNoData = errors.New("minimizer: no bins in fit range")
	// ErrMethod is returned for an unknown minimisation method.
	ErrMethod = errors.New("minimizer: unknown method")
)

// Status codes reported in fit.Status.Code.
const (
	CodeOK         = 0
	CodeCallLimit  = 1 // iteration or evaluation limit reached
	CodeFailed     = 4 // the optimiser terminated abnormally
	CodeBadRequest = -1
)

// Minimizer fits model functions to binned data.
type Minimizer struct {
	Method        string // nelder-mead, lbfgs, bfgs or gradient-descent
	MaxIterations int
	Tolerance     float64
}

// New returns a Minimizer configured from the fit settings.
func New(s config.FitSettings) *Minimizer {
	return &Minimizer{
		Method:        s.GetMethod(),
		MaxIterations: s.GetMaxIterations(),
		Tolerance:     s.GetTolerance(),
	}
}

// newMethod returns a fresh optimiser for one pass starting at u. The
// Nelder-Mead simplex is scaled to each coordinate.
func (m *Minimizer) newMethod(f func([]float64) float64, u []float64) (optimize.Method, error) {
	switch m.Method {
	case "", "nelder-mead":
		vertices := make([][]float64, len(u)+1)
		values := make([]float64, len(u)+1)
		for i := range vertices {
			v := append([]float64(nil), u...)
			if i > 0 {
				v[i-1] += simplexStep(u[i-1])
			}
			vertices[i] = v
			values[i] = f(v)
		}
		return &optimize.NelderMead{InitialVertices: vertices, InitialValues: values}, nil
	case "lbfgs":
		return &optimize.LBFGS{}, nil
	case "bfgs":
		return &optimize.BFGS{}, nil
	case "gradient-descent":
		return &optimize.GradientDescent{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrMethod, m.Method)
}

func simplexStep(u float64) float64 {
	if a := math.Abs(u); a > 1 {
		return 0.1 * a
	}
	return 0.1
}

func knownMethod(name string) bool {
	switch name {
	case "", "nelder-mead", "lbfgs", "bfgs", "gradient-descent":
		return true
	}
	return false
}

func (m *Minimizer) needsGradient() bool {
	switch m.Method {
	case "lbfgs", "bfgs", "gradient-descent":
		return true
	}
	return false
}

// Fit adjusts the free and limited parameters of fn to data over fn's
// range and stores the fitted values and their errors in fn.
func (m *Minimizer) Fit(data hist.Binned, fn *model.Function, option string) (fit.Status, error) {
	opts, err := parseOptions(option)
	if err != nil {
		return fit.Status{Code: CodeBadRequest, Message: err.Error()}, err
	}
	if !knownMethod(m.Method) {
		err := fmt.Errorf("%w: %q", ErrMethod, m.Method)
		return fit.Status{Code: CodeBadRequest, Message: err.Error()}, err
	}

	obj := objective{fn: fn, pts: selectBins(data, fn, opts), likelihood: opts.likelihood}
	if len(obj.pts) == 0 {
		lo, hi := fn.Range()
		err := fmt.Errorf("%w [%g, %g]", ErrNoData, lo, hi)
		return fit.Status{Code: CodeBadRequest, Message: err.Error()}, err
	}

	free := freeParameters(fn)
	base := fn.Parameters()
	status := fit.Status{NDF: len(obj.pts) - len(free)}

	// full maps internal coordinates onto a complete parameter vector.
	full := func(u []float64) []float64 {
		p := append([]float64(nil), base...)
		for k, fp := range free {
			p[fp.index] = fp.external(u[k])
		}
		return p
	}

	if len(free) == 0 {
		status.Chi2 = obj.value(base)
		status.Evaluations = 1
		status.Converged = true
		m.report(fn, opts, status)
		return status, nil
	}

	u := make([]float64, len(free))
	for k, fp := range free {
		u[k] = fp.internal(base[fp.index])
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 { return obj.value(full(x)) },
	}
	if m.needsGradient() {
		problem.Grad = func(grad, x []float64) {
			fd.Gradient(grad, problem.Func, x, &fd.Settings{Formula: fd.Central})
		}
	}

	passes := 1
	if opts.improve {
		passes = 2
	}
	var (
		result *optimize.Result
		stuck  bool
	)
	for pass := 0; pass < passes; pass++ {
		settings := &optimize.Settings{
			MajorIterations: m.MaxIterations,
			Converger: &optimize.FunctionConverge{
				Absolute:   m.Tolerance,
				Relative:   m.Tolerance,
				Iterations: 50,
			},
		}
		method, merr := m.newMethod(problem.Func, u)
		if merr != nil {
			return fit.Status{Code: CodeBadRequest, Message: merr.Error()}, merr
		}
		result, err = optimize.Minimize(problem, u, settings, method)
		if stuck = stalled(err); stuck {
			err = nil
		}
		if result != nil {
			status.Evaluations += result.FuncEvaluations + result.GradEvaluations*2*len(free)
		}
		if result == nil || len(result.X) != len(u) {
			break
		}
		copy(u, result.X)
		if err != nil || result.Status.Early() {
			break
		}
	}

	if result == nil {
		if err == nil {
			err = errors.New("optimize returned no result")
		}
		status.Code = CodeFailed
		status.Message = err.Error()
		return status, fmt.Errorf("minimise %s: %w", fn.Name(), err)
	}

	fitted := full(u)
	for _, fp := range free {
		fn.SetParameter(fp.index, fitted[fp.index])
	}
	status.Chi2 = obj.value(fitted)
	status.Message = result.Status.String()

	switch {
	case isLimit(result.Status):
		status.Code = CodeCallLimit
	case err != nil || (result.Status == optimize.Failure && !stuck):
		if err == nil {
			err = result.Status.Err()
		}
		status.Code = CodeFailed
		status.Message = err.Error()
		m.report(fn, opts, status)
		return status, fmt.Errorf("minimise %s: %w", fn.Name(), err)
	default:
		status.Converged = true
	}

	if errs, ok := parameterErrors(obj, fitted, free); ok {
		for k, fp := range free {
			fn.SetParError(fp.index, errs[k])
		}
	} else {
		status.Message += "; covariance matrix not positive definite"
	}

	m.report(fn, opts, status)
	return status, nil
}

// stalled reports line search errors raised when a gradient method can
// make no further progress from the current minimum.
func stalled(err error) bool {
	return errors.Is(err, optimize.ErrNoProgress) || errors.Is(err, optimize.ErrLinesearcherFailure)
}

func isLimit(s optimize.Status) bool {
	switch s {
	case optimize.IterationLimit, optimize.RuntimeLimit, optimize.FunctionEvaluationLimit,
		optimize.GradientEvaluationLimit, optimize.HessianEvaluationLimit:
		return true
	}
	return false
}

func (m *Minimizer) report(fn *model.Function, o options, s fit.Status) {
	if o.quiet {
		return
	}
	monitoring.Debugf("minimizer: %s: code=%d converged=%t chi2=%g ndf=%d evaluations=%d %s",
		fn.Name(), s.Code, s.Converged, s.Chi2, s.NDF, s.Evaluations, s.Message)
}

// parameterErrors estimates the error of each free parameter as the square
// root of the diagonal of 2*H^-1, where H is the Hessian of the fit
// statistic with respect to the free parameters at p.
func parameterErrors(obj objective, p []float64, free []freePar) ([]float64, bool) {
	n := len(free)
	x := make([]float64, n)
	for k, fp := range free {
		x[k] = p[fp.index]
	}
	f := func(q []float64) float64 {
		v := append([]float64(nil), p...)
		for k, fp := range free {
			v[fp.index] = q[k]
		}
		return obj.value(v)
	}

	h := mat.NewSymDense(n, nil)
	fd.Hessian(h, f, x, &fd.Settings{Formula: fd.Central})

	var chol mat.Cholesky
	if ok := chol.Factorize(h); !ok {
		return nil, false
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return nil, false
	}

	out := make([]float64, n)
	for k := range out {
		v := 2 * cov.At(k, k)
		if !(v >= 0) || math.IsInf(v, 0) {
			return nil, false
		}
		out[k] = math.Sqrt(v)
	}
	return out, true
}

var _ fit.Fitter = (*Minimizer)(nil)
