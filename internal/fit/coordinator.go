// Package fit coordinates multi-component peak fits: it owns the parameter
// store, derives initial estimates by clustering the data, and applies the
// stored constraints to the composite model handed to a Fitter.
//
// A Coordinator provides no internal synchronisation. Callers sharing one
// across goroutines must serialise access themselves.
package fit

import (
	"fmt"

	"github.com/banshee-data/peakfit/internal/cluster"
	"github.com/banshee-data/peakfit/internal/config"
	"github.com/banshee-data/peakfit/internal/formula"
	"github.com/banshee-data/peakfit/internal/hist"
	"github.com/banshee-data/peakfit/internal/model"
	"github.com/banshee-data/peakfit/internal/monitoring"
)

// Default fit options, matching the conventions of the analysis toolkit
// the configurations were written for.
const (
	DefaultFuncOption = "S"
	DefaultFitOption  = "RMS+"
)

// Component is one configured model component.
type Component struct {
	Name    string
	Formula *formula.Formula
	Params  []int             // declared parameter indices, ascending
	Peak    *config.PeakIndex // nil for components without a peak mapping

	fn *model.Function
}

// Coordinator owns a binned dataset, its components and the parameter
// store shared between them.
type Coordinator struct {
	data       hist.Binned
	components []*Component
	byName     map[string]*Component
	store      *Store
	fitter     Fitter
	fitOption  string

	newClusterer func(k int) cluster.Clusterer
}

// New builds one model function per configured component and seeds the
// store from the configuration. Every parameter referenced by a component
// expression or peak mapping must be declared by some component, otherwise
// ErrNotFound is returned.
func New(data hist.Binned, cfg *config.Config, fitter Fitter) (*Coordinator, error) {
	if data == nil {
		return nil, fmt.Errorf("fit: nil dataset")
	}
	if cfg == nil {
		return nil, fmt.Errorf("fit: nil configuration")
	}

	c := &Coordinator{
		data:      data,
		byName:    make(map[string]*Component, len(cfg.Components)),
		store:     NewStore(),
		fitter:    fitter,
		fitOption: cfg.Fit.GetOption(),
	}
	seed, restarts := cfg.Fit.GetSeed(), cfg.Fit.GetRestarts()
	c.newClusterer = func(k int) cluster.Clusterer {
		return &cluster.KMeans{Clusters: k, Seed: seed, Restarts: restarts}
	}

	for _, cc := range cfg.Components {
		if _, dup := c.byName[cc.Name]; dup {
			return nil, fmt.Errorf("fit: duplicate component %q", cc.Name)
		}
		f, err := formula.Compile(cc.Expr)
		if err != nil {
			return nil, fmt.Errorf("component %q: %w", cc.Name, err)
		}

		comp := &Component{
			Name:    cc.Name,
			Formula: f,
			Params:  cc.ParamIndices(),
			fn:      model.New(cc.Name, f, data.XMin(), data.XMax()),
		}
		if peak, ok := cc.Peak(); ok {
			comp.Peak = &peak
		}

		for _, idx := range comp.Params {
			pc := cc.Params[idx]
			mode, err := ParseMode(pc.GetOpt())
			if err != nil {
				return nil, fmt.Errorf("component %q parameter %d: %w", cc.Name, idx, err)
			}
			c.store.Set(idx, Parameter{Value: pc.GetInit(), Mode: mode, Bounds: pc.GetLimits()})
		}

		c.components = append(c.components, comp)
		c.byName[comp.Name] = comp
	}

	for _, comp := range c.components {
		if err := c.checkDeclared(comp); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Coordinator) checkDeclared(comp *Component) error {
	for _, idx := range comp.Formula.Indices() {
		if !c.store.Has(idx) {
			return fmt.Errorf("component %q references parameter %d: %w", comp.Name, idx, ErrNotFound)
		}
	}
	if comp.Peak != nil {
		for _, idx := range []int{comp.Peak.Mean, comp.Peak.Sigma, comp.Peak.Norm} {
			if !c.store.Has(idx) {
				return fmt.Errorf("component %q peak parameter %d: %w", comp.Name, idx, ErrNotFound)
			}
		}
	}
	return nil
}

// SetClusterer replaces the clustering strategy used by AutoInitialise.
// newClusterer is called with the number of peak components.
func (c *Coordinator) SetClusterer(newClusterer func(k int) cluster.Clusterer) {
	c.newClusterer = newClusterer
}

// Store exposes the parameter store for manual configuration.
func (c *Coordinator) Store() *Store { return c.store }

// Parameters returns a copy of the stored parameters.
func (c *Coordinator) Parameters() map[int]Parameter { return c.store.Snapshot() }

// Components returns the configured components in declaration order.
func (c *Coordinator) Components() []*Component {
	return append([]*Component(nil), c.components...)
}

// Function returns the single-component model function used by FitFunc.
func (comp *Component) Function() *model.Function { return comp.fn }

// FuncOptions configures FitFunc. Zero values select the defaults.
type FuncOptions struct {
	Range     *[2]float64 // restricts the fit domain; nil keeps the current range
	FitOption string      // passed to the fitter verbatim; "" selects DefaultFuncOption
	ParamMode *Mode       // when set, replaces the stored mode of every parameter of the component
}

// FitFunc fits a single component on its own against the dataset and
// stores the fitted values of the declared parameters its formula
// references. Stored bounds are kept; stored modes are kept unless
// opts.ParamMode is set.
func (c *Coordinator) FitFunc(name string, opts FuncOptions) (Status, error) {
	comp, ok := c.byName[name]
	if !ok {
		return Status{}, fmt.Errorf("%w: %q", ErrUnknownComponent, name)
	}
	if opts.ParamMode != nil && !opts.ParamMode.Valid() {
		return Status{}, fmt.Errorf("%w: %q", ErrInvalidParameterMode, *opts.ParamMode)
	}
	if c.fitter == nil {
		return Status{}, fmt.Errorf("fit: no fitter configured")
	}

	fn := comp.fn
	if opts.Range != nil {
		fn.SetRange(opts.Range[0], opts.Range[1])
	}
	if err := c.apply(fn, comp.Formula.Indices()); err != nil {
		return Status{}, err
	}

	option := opts.FitOption
	if option == "" {
		option = DefaultFuncOption
	}
	status, err := c.fitter.Fit(c.data, fn, option)
	if err != nil {
		return status, fmt.Errorf("fit %q: %w", name, err)
	}

	fitted := referenced(comp.Formula)
	for _, idx := range comp.Params {
		p, _ := c.store.Get(idx)
		if fitted[idx] {
			p.Value = fn.Parameter(idx)
		}
		if opts.ParamMode != nil {
			p.Mode = *opts.ParamMode
		}
		c.store.Set(idx, p)
	}
	return status, nil
}

// Options configures PerformFit.
type Options struct {
	FitOption string // "" selects the configured option (default DefaultFitOption)
}

// PerformFit builds the composite model as the sum of every component
// expression over the dataset's axis range, applies every stored parameter
// by mode in ascending index order, and runs the fitter. All modes are
// validated before anything is applied; an invalid mode aborts the call
// without invoking the fitter. On success the stored values of parameters
// referenced by the composite formula are refreshed from the fitted model.
func (c *Coordinator) PerformFit(opts Options) (*FitResult, error) {
	if c.fitter == nil {
		return nil, fmt.Errorf("fit: no fitter configured")
	}

	indices := c.store.Indices()
	for _, idx := range indices {
		p, _ := c.store.Get(idx)
		if !p.Mode.Valid() {
			return nil, fmt.Errorf("parameter %d: %w: %q", idx, ErrInvalidParameterMode, p.Mode)
		}
	}
	for _, comp := range c.components {
		if err := c.checkDeclared(comp); err != nil {
			return nil, err
		}
	}

	formulas := make([]*formula.Formula, len(c.components))
	for i, comp := range c.components {
		formulas[i] = comp.Formula
	}
	sum, err := formula.Sum(formulas...)
	if err != nil {
		return nil, fmt.Errorf("build composite model: %w", err)
	}
	composite := model.New("fit", sum, c.data.XMin(), c.data.XMax())
	if err := c.apply(composite, indices); err != nil {
		return nil, err
	}

	option := opts.FitOption
	if option == "" {
		option = c.fitOption
	}
	status, err := c.fitter.Fit(c.data, composite, option)
	res := &FitResult{Status: status, Model: composite}
	if err != nil {
		return res, fmt.Errorf("composite fit: %w", err)
	}

	fitted := referenced(sum)
	for _, idx := range indices {
		if !fitted[idx] {
			continue
		}
		p, _ := c.store.Get(idx)
		p.Value = composite.Parameter(idx)
		c.store.Set(idx, p)
	}
	return res, nil
}

// referenced returns the parameter indices used by f. Only these take part
// in a fit; the stored values of other declared parameters are kept.
func referenced(f *formula.Formula) map[int]bool {
	out := make(map[int]bool)
	for _, idx := range f.Indices() {
		out[idx] = true
	}
	return out
}

// apply transfers the stored state of the given indices onto fn.
func (c *Coordinator) apply(fn *model.Function, indices []int) error {
	for _, idx := range indices {
		p, err := c.store.Get(idx)
		if err != nil {
			return err
		}
		monitoring.Debugf("fit: %s param %d: value=%g mode=%s bounds=[%g, %g]",
			fn.Name(), idx, p.Value, p.Mode, p.Bounds[0], p.Bounds[1])

		switch p.Mode {
		case Fixed:
			fn.FixParameter(idx, p.Value)
		case Free:
			fn.ReleaseParameter(idx)
			fn.SetParameter(idx, p.Value)
		case Bounded:
			fn.ReleaseParameter(idx)
			fn.SetParameter(idx, p.Value)
			fn.SetParLimits(idx, p.Bounds[0], p.Bounds[1])
		default:
			return fmt.Errorf("parameter %d: %w: %q", idx, ErrInvalidParameterMode, p.Mode)
		}
	}
	return nil
}
