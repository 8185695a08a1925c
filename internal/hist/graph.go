package hist

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrColumn is returned when a graph column is missing or has the wrong
// length.
var ErrColumn = errors.New("hist: bad column")

// Columns is a column-oriented table of values keyed by column name. NaN
// marks a missing value.
type Columns map[string][]float64

// Graph is a set of (x, y) points with optional per-point errors. It
// satisfies Binned and BinErrorer with each point acting as one bin, so a
// graph can be fitted like a histogram. Point indices are 1-based.
type Graph struct {
	Name   string
	X, Y   []float64
	EX, EY []float64 // nil for a graph without errors
}

// NewGraph builds a graph from the x and y columns of cols. Rows where
// either value is missing are dropped.
func NewGraph(name string, cols Columns, x, y string) (*Graph, error) {
	return newGraph(name, cols, x, y, "", "", false)
}

// NewGraphErrors is NewGraph with x and y errors. An empty error column
// name gives zero errors on that axis.
func NewGraphErrors(name string, cols Columns, x, y, ex, ey string) (*Graph, error) {
	return newGraph(name, cols, x, y, ex, ey, true)
}

func newGraph(name string, cols Columns, x, y, ex, ey string, withErrors bool) (*Graph, error) {
	xs, err := column(cols, x, -1)
	if err != nil {
		return nil, err
	}
	n := len(xs)
	ys, err := column(cols, y, n)
	if err != nil {
		return nil, err
	}
	var exs, eys []float64
	if withErrors {
		if exs, err = column(cols, ex, n); err != nil {
			return nil, err
		}
		if eys, err = column(cols, ey, n); err != nil {
			return nil, err
		}
	}

	g := &Graph{Name: name}
	for i := 0; i < n; i++ {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		g.X = append(g.X, xs[i])
		g.Y = append(g.Y, ys[i])
		if withErrors {
			g.EX = append(g.EX, valueOrZero(exs, i))
			g.EY = append(g.EY, valueOrZero(eys, i))
		}
	}
	return g, nil
}

// column returns cols[name], checking its length when n >= 0. An empty
// name returns nil.
func column(cols Columns, name string, n int) ([]float64, error) {
	if name == "" {
		return nil, nil
	}
	c, ok := cols[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q not found", ErrColumn, name)
	}
	if n >= 0 && len(c) != n {
		return nil, fmt.Errorf("%w: %q has %d rows, want %d", ErrColumn, name, len(c), n)
	}
	return c, nil
}

func valueOrZero(c []float64, i int) float64 {
	if c == nil || math.IsNaN(c[i]) {
		return 0
	}
	return c[i]
}

// Len returns the number of points.
func (g *Graph) Len() int { return len(g.X) }

func (g *Graph) NBinsX() int              { return len(g.X) }
func (g *Graph) BinCenter(i int) float64  { return g.X[i-1] }
func (g *Graph) BinContent(i int) float64 { return g.Y[i-1] }

// BinError returns the y error of point i. A graph without errors weighs
// every point equally and reports 1.
func (g *Graph) BinError(i int) float64 {
	if g.EY == nil {
		return 1
	}
	return g.EY[i-1]
}

// XMin returns the smallest x value, or 0 for an empty graph.
func (g *Graph) XMin() float64 {
	if len(g.X) == 0 {
		return 0
	}
	return floats.Min(g.X)
}

// XMax returns the largest x value, or 0 for an empty graph.
func (g *Graph) XMax() float64 {
	if len(g.X) == 0 {
		return 0
	}
	return floats.Max(g.X)
}

var (
	_ Binned     = (*Graph)(nil)
	_ BinErrorer = (*Graph)(nil)
)
