// Package formula compiles the expression templates used to describe fit
// components. Templates use x as the variable and [i] for the i-th entry of
// the shared parameter vector, e.g. "[0]*exp(-0.5*((x-[1])/[2])^2)".
//
// The shortcuts gaus, expo and polN are expanded before compilation:
//
//	gaus(k)  [k]*exp(-0.5*((x-[k+1])/[k+2])^2)
//	expo(k)  exp([k]+[k+1]*x)
//	polN(k)  [k]+[k+1]*x+...+[k+N]*x^N
//
// A bare shortcut (no offset) starts at parameter 0.
package formula

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

var (
	// ErrSyntax is returned when a template cannot be compiled.
	ErrSyntax = errors.New("formula: syntax error")
	// ErrParameterIndex is returned when the parameter vector is shorter
	// than the highest index referenced by the formula.
	ErrParameterIndex = errors.New("formula: parameter index out of range")
)

var (
	shortcutRe = regexp.MustCompile(`\b(gaus|expo|pol([0-9]+))\b(?:\(\s*([0-9]+)\s*\))?`)
	paramRe    = regexp.MustCompile(`\[\s*([0-9]+)\s*\]`)
)

// env is the evaluation environment handed to the expression VM.
type env struct {
	X float64   `expr:"x"`
	P []float64 `expr:"p"`
}

// Formula is a compiled expression template. It is safe to evaluate from a
// single goroutine at a time.
type Formula struct {
	template string
	expanded string
	indices  []int
	program  *vm.Program
}

// Compile expands shortcuts in template, resolves parameter references
// and compiles the result.
func Compile(template string) (*Formula, error) {
	trimmed := strings.TrimSpace(template)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}

	expanded, err := expandShortcuts(trimmed)
	if err != nil {
		return nil, err
	}

	indices := referencedIndices(expanded)
	code := paramRe.ReplaceAllString(expanded, "p[$1]")

	program, err := expr.Compile(code, compileOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrSyntax, template, err)
	}

	return &Formula{
		template: template,
		expanded: expanded,
		indices:  indices,
		program:  program,
	}, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// package-level fixtures.
func MustCompile(template string) *Formula {
	f, err := Compile(template)
	if err != nil {
		panic(err)
	}
	return f
}

// Sum compiles the sum of the given formulas. Each term is parenthesised so
// operator precedence inside a component cannot leak into its neighbours.
func Sum(fs ...*Formula) (*Formula, error) {
	if len(fs) == 0 {
		return nil, fmt.Errorf("%w: empty sum", ErrSyntax)
	}
	terms := make([]string, 0, len(fs))
	for _, f := range fs {
		terms = append(terms, "("+f.expanded+")")
	}
	return Compile(strings.Join(terms, "+"))
}

// Template returns the template as given to Compile.
func (f *Formula) Template() string { return f.template }

// Expr returns the template with shortcuts expanded.
func (f *Formula) Expr() string { return f.expanded }

// Indices returns the sorted, de-duplicated parameter indices referenced by
// the formula.
func (f *Formula) Indices() []int {
	out := make([]int, len(f.indices))
	copy(out, f.indices)
	return out
}

// NPar is one more than the highest referenced parameter index, or zero if
// the formula has no parameters.
func (f *Formula) NPar() int {
	if len(f.indices) == 0 {
		return 0
	}
	return f.indices[len(f.indices)-1] + 1
}

// Eval evaluates the formula at x with parameter vector p.
func (f *Formula) Eval(x float64, p []float64) (float64, error) {
	if len(p) < f.NPar() {
		return 0, fmt.Errorf("%w: need %d parameters, got %d", ErrParameterIndex, f.NPar(), len(p))
	}
	out, err := expr.Run(f.program, env{X: x, P: p})
	if err != nil {
		return 0, fmt.Errorf("formula %q: %w", f.expanded, err)
	}
	v, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("formula %q: unexpected result type %T", f.expanded, out)
	}
	return v, nil
}

func (f *Formula) String() string { return f.expanded }

func expandShortcuts(s string) (string, error) {
	var expandErr error
	out := shortcutRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := shortcutRe.FindStringSubmatch(m)
		offset := 0
		if sub[3] != "" {
			offset, _ = strconv.Atoi(sub[3])
		}
		switch {
		case sub[1] == "gaus":
			return fmt.Sprintf("([%d]*exp(-0.5*((x-[%d])/[%d])^2))", offset, offset+1, offset+2)
		case sub[1] == "expo":
			return fmt.Sprintf("exp([%d]+[%d]*x)", offset, offset+1)
		default:
			degree, err := strconv.Atoi(sub[2])
			if err != nil || degree > 20 {
				expandErr = fmt.Errorf("%w: unsupported polynomial %q", ErrSyntax, sub[1])
				return m
			}
			return polynomial(degree, offset)
		}
	})
	if expandErr != nil {
		return "", expandErr
	}
	return out, nil
}

func polynomial(degree, offset int) string {
	var b strings.Builder
	b.WriteString("(")
	for i := 0; i <= degree; i++ {
		if i > 0 {
			b.WriteString("+")
		}
		switch i {
		case 0:
			fmt.Fprintf(&b, "[%d]", offset)
		case 1:
			fmt.Fprintf(&b, "[%d]*x", offset+1)
		default:
			fmt.Fprintf(&b, "[%d]*x^%d", offset+i, i)
		}
	}
	b.WriteString(")")
	return b.String()
}

func referencedIndices(s string) []int {
	seen := make(map[int]bool)
	for _, m := range paramRe.FindAllStringSubmatch(s, -1) {
		i, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		seen[i] = true
	}
	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func compileOptions() []expr.Option {
	opts := []expr.Option{
		expr.Env(env{}),
		expr.AsFloat64(),
		expr.Function("pow", binary(math.Pow), new(func(float64, float64) float64)),
	}
	unaries := map[string]func(float64) float64{
		"exp":  math.Exp,
		"log":  math.Log,
		"sqrt": math.Sqrt,
		"sin":  math.Sin,
		"cos":  math.Cos,
		"tan":  math.Tan,
		"atan": math.Atan,
		"tanh": math.Tanh,
		"erf":  math.Erf,
		"erfc": math.Erfc,
	}
	names := make([]string, 0, len(unaries))
	for name := range unaries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, expr.Function(name, unary(unaries[name]), new(func(float64) float64)))
	}
	return opts
}

func unary(f func(float64) float64) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		v, err := toFloat(params[0])
		if err != nil {
			return nil, err
		}
		return f(v), nil
	}
}

func binary(f func(float64, float64) float64) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		a, err := toFloat(params[0])
		if err != nil {
			return nil, err
		}
		b, err := toFloat(params[1])
		if err != nil {
			return nil, err
		}
		return f(a, b), nil
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}
