package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// KnownMethods lists the minimisation methods accepted in fit.method.
var KnownMethods = []string{"nelder-mead", "lbfgs", "bfgs", "gradient-descent"}

// Recognised parameter option strings and their aliases.
var knownOpts = map[string]bool{
	"fix": true, "fixed": true,
	"set": true, "free": true,
	"limit": true, "bounded": true,
}

// Config is the declarative fit configuration. Components are ordered:
// peak components must be listed left-to-right by expected position.
type Config struct {
	Fit        FitSettings       `json:"fit" yaml:"fit"`
	Components []ComponentConfig `json:"components" yaml:"components"`
}

// FitSettings holds global fit and clustering options. Every field is
// optional; the Get* accessors supply defaults.
type FitSettings struct {
	Option        *string  `json:"option,omitempty" yaml:"option,omitempty"`
	Method        *string  `json:"method,omitempty" yaml:"method,omitempty"`
	MaxIterations *int     `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	Tolerance     *float64 `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	Seed          *uint64  `json:"seed,omitempty" yaml:"seed,omitempty"`
	Restarts      *int     `json:"restarts,omitempty" yaml:"restarts,omitempty"`
}

// ComponentConfig declares one model component.
type ComponentConfig struct {
	Name     string              `json:"name" yaml:"name"`
	Expr     string              `json:"expr" yaml:"expr"`
	MeanIdx  *int                `json:"mean_idx,omitempty" yaml:"mean_idx,omitempty"`
	SigmaIdx *int                `json:"sigma_idx,omitempty" yaml:"sigma_idx,omitempty"`
	NormIdx  *int                `json:"norm_idx,omitempty" yaml:"norm_idx,omitempty"`
	Params   map[int]ParamConfig `json:"params" yaml:"params"`
}

// ParamConfig seeds one parameter. Missing fields fall back to init 0,
// opt "set" and limits [0, 0].
type ParamConfig struct {
	Init   *float64  `json:"init,omitempty" yaml:"init,omitempty"`
	Opt    *string   `json:"opt,omitempty" yaml:"opt,omitempty"`
	Limits []float64 `json:"limits,omitempty" yaml:"limits,omitempty"`
}

// PeakIndex maps a peak component onto its mean, sigma and normalisation
// parameters.
type PeakIndex struct {
	Mean, Sigma, Norm int
}

// Load reads a configuration file. The format is chosen by extension:
// .yaml/.yml or .json. Files larger than 1MB are rejected.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".yaml", ".yml", ".json":
	default:
		return nil, fmt.Errorf("config file must have .yaml, .yml or .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, ext)
}

// Parse decodes and validates configuration data in the format named by
// ext (".yaml", ".yml" or ".json").
func Parse(data []byte, ext string) (*Config, error) {
	cfg := &Config{}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if len(c.Components) == 0 {
		return fmt.Errorf("%w: no components declared", ErrInvalid)
	}

	if c.Fit.Method != nil && !knownMethod(*c.Fit.Method) {
		return fmt.Errorf("%w: unknown method %q, accepted values are %s",
			ErrInvalid, *c.Fit.Method, strings.Join(KnownMethods, ", "))
	}
	if c.Fit.MaxIterations != nil && *c.Fit.MaxIterations < 1 {
		return fmt.Errorf("%w: max_iterations must be positive, got %d", ErrInvalid, *c.Fit.MaxIterations)
	}
	if c.Fit.Tolerance != nil && !(*c.Fit.Tolerance > 0) {
		return fmt.Errorf("%w: tolerance must be positive, got %g", ErrInvalid, *c.Fit.Tolerance)
	}
	if c.Fit.Restarts != nil && *c.Fit.Restarts < 1 {
		return fmt.Errorf("%w: restarts must be positive, got %d", ErrInvalid, *c.Fit.Restarts)
	}

	names := make(map[string]bool, len(c.Components))
	owner := make(map[int]string)
	for i, comp := range c.Components {
		if comp.Name == "" {
			return fmt.Errorf("%w: component %d has no name", ErrInvalid, i)
		}
		if names[comp.Name] {
			return fmt.Errorf("%w: duplicate component name %q", ErrInvalid, comp.Name)
		}
		names[comp.Name] = true

		if strings.TrimSpace(comp.Expr) == "" {
			return fmt.Errorf("%w: component %q has an empty expression", ErrInvalid, comp.Name)
		}

		for idx, p := range comp.Params {
			if idx < 0 {
				return fmt.Errorf("%w: component %q declares negative parameter index %d", ErrInvalid, comp.Name, idx)
			}
			if prev, ok := owner[idx]; ok {
				return fmt.Errorf("%w: parameter %d declared by both %q and %q", ErrInvalid, idx, prev, comp.Name)
			}
			owner[idx] = comp.Name

			if p.Opt != nil && !knownOpts[strings.ToLower(*p.Opt)] {
				return fmt.Errorf("%w: component %q parameter %d has unknown opt %q", ErrInvalid, comp.Name, idx, *p.Opt)
			}
			if p.Limits != nil && len(p.Limits) != 2 {
				return fmt.Errorf("%w: component %q parameter %d limits need 2 values, got %d", ErrInvalid, comp.Name, idx, len(p.Limits))
			}
		}

		set := 0
		for _, p := range []*int{comp.MeanIdx, comp.SigmaIdx, comp.NormIdx} {
			if p != nil {
				set++
			}
		}
		if set != 0 && set != 3 {
			return fmt.Errorf("%w: component %q needs all of mean_idx, sigma_idx and norm_idx or none", ErrInvalid, comp.Name)
		}
	}

	return nil
}

func knownMethod(m string) bool {
	for _, k := range KnownMethods {
		if k == m {
			return true
		}
	}
	return false
}

// Peak returns the peak index mapping, or false for a component without
// one (for example a background term).
func (cc ComponentConfig) Peak() (PeakIndex, bool) {
	if cc.MeanIdx == nil || cc.SigmaIdx == nil || cc.NormIdx == nil {
		return PeakIndex{}, false
	}
	return PeakIndex{Mean: *cc.MeanIdx, Sigma: *cc.SigmaIdx, Norm: *cc.NormIdx}, true
}

// ParamIndices returns the declared parameter indices in ascending order.
func (cc ComponentConfig) ParamIndices() []int {
	idx := make([]int, 0, len(cc.Params))
	for i := range cc.Params {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// GetInit returns the initial value or 0.
func (p ParamConfig) GetInit() float64 {
	if p.Init == nil {
		return 0
	}
	return *p.Init
}

// GetOpt returns the parameter option or "set".
func (p ParamConfig) GetOpt() string {
	if p.Opt == nil {
		return "set"
	}
	return *p.Opt
}

// GetLimits returns the limits or [0, 0].
func (p ParamConfig) GetLimits() [2]float64 {
	if len(p.Limits) != 2 {
		return [2]float64{}
	}
	return [2]float64{p.Limits[0], p.Limits[1]}
}

// GetOption returns the default fit option for the composite fit.
func (f FitSettings) GetOption() string {
	if f.Option == nil {
		return "RMS+"
	}
	return *f.Option
}

// GetMethod returns the minimisation method name.
func (f FitSettings) GetMethod() string {
	if f.Method == nil {
		return "nelder-mead"
	}
	return *f.Method
}

// GetMaxIterations returns the minimiser iteration cap.
func (f FitSettings) GetMaxIterations() int {
	if f.MaxIterations == nil {
		return 2000
	}
	return *f.MaxIterations
}

// GetTolerance returns the minimiser convergence tolerance.
func (f FitSettings) GetTolerance() float64 {
	if f.Tolerance == nil {
		return 1e-8
	}
	return *f.Tolerance
}

// GetSeed returns the k-means++ seed.
func (f FitSettings) GetSeed() uint64 {
	if f.Seed == nil {
		return 1
	}
	return *f.Seed
}

// GetRestarts returns the number of k-means++ restarts.
func (f FitSettings) GetRestarts() int {
	if f.Restarts == nil {
		return 10
	}
	return *f.Restarts
}
