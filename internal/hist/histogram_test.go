package hist

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, axes ...AxisSpec) *Histogram {
	t.Helper()
	h, err := New("h", "test", axes...)
	require.NoError(t, err)
	return h
}

func TestAxisSpec(t *testing.T) {
	a := AxisSpec{NBins: 10, Min: 0, Max: 5}
	require.NoError(t, a.Validate())

	assert.Equal(t, 0.5, a.BinWidth())
	assert.Equal(t, 0.25, a.BinCenter(1))
	assert.Equal(t, 4.75, a.BinCenter(10))
	assert.Equal(t, 1.0, a.BinLowEdge(3))

	assert.Equal(t, 0, a.FindBin(-0.1))
	assert.Equal(t, 1, a.FindBin(0))
	assert.Equal(t, 2, a.FindBin(0.5))
	assert.Equal(t, 10, a.FindBin(4.999))
	assert.Equal(t, 11, a.FindBin(5))
	assert.Equal(t, 0, a.FindBin(math.NaN()))

	for _, bad := range []AxisSpec{
		{NBins: 0, Min: 0, Max: 1},
		{NBins: 5, Min: 1, Max: 1},
		{NBins: 5, Min: 2, Max: 1},
	} {
		assert.ErrorIs(t, bad.Validate(), ErrBinning)
	}
}

func TestNew_Kind(t *testing.T) {
	x := AxisSpec{NBins: 4, Min: 0, Max: 4}
	y := AxisSpec{NBins: 2, Min: 0, Max: 2}

	h1 := mustNew(t, x)
	assert.Equal(t, OneDimensional, h1.Kind())
	assert.Equal(t, 0, h1.NBinsY())

	h2 := mustNew(t, x, y)
	assert.Equal(t, TwoDimensional, h2.Kind())
	assert.Equal(t, 2, h2.NBinsY())

	_, err := New("none", "")
	assert.ErrorIs(t, err, ErrDimension)
	_, err = New("three", "", x, y, x)
	assert.ErrorIs(t, err, ErrDimension)

	_, err = h1.Axis(1)
	assert.ErrorIs(t, err, ErrDimension)
}

func TestFill1D(t *testing.T) {
	h := mustNew(t, AxisSpec{NBins: 4, Min: 0, Max: 4})

	for _, x := range []float64{0.5, 0.7, 1.5, 3.9, -1, 10} {
		require.NoError(t, h.Fill(x))
	}

	assert.Equal(t, 6, h.Entries())
	assert.Equal(t, 2.0, h.BinContent(1))
	assert.Equal(t, 1.0, h.BinContent(2))
	assert.Equal(t, 0.0, h.BinContent(3))
	assert.Equal(t, 1.0, h.BinContent(4))
	assert.Equal(t, 1.0, h.BinContent(0), "underflow")
	assert.Equal(t, 1.0, h.BinContent(5), "overflow")
	assert.Equal(t, 4.0, h.Integral())
	assert.InDelta(t, math.Sqrt2, h.BinError(1), 1e-12)

	assert.ErrorIs(t, h.FillXY(1, 1), ErrDimension)
}

func TestFill2D_Projection(t *testing.T) {
	h := mustNew(t,
		AxisSpec{NBins: 2, Min: 0, Max: 2},
		AxisSpec{NBins: 2, Min: 0, Max: 2},
	)
	require.NoError(t, h.FillXY(0.5, 0.5))
	require.NoError(t, h.FillXY(0.5, 1.5))
	require.NoError(t, h.FillXY(1.5, 1.5))
	require.NoError(t, h.FillXY(1.5, 5)) // y overflow still projects

	assert.ErrorIs(t, h.Fill(1), ErrDimension)
	assert.Equal(t, 1.0, h.Content(1, 1))
	assert.Equal(t, 3.0, h.Integral())

	// The Binned view of a 2-D histogram is its x projection.
	assert.Equal(t, 2.0, h.BinContent(1))
	assert.Equal(t, 2.0, h.BinContent(2))

	p := h.ProjectionX()
	assert.Equal(t, OneDimensional, p.Kind())
	assert.Equal(t, 2.0, p.BinContent(1))
	assert.Equal(t, 2.0, p.BinContent(2))
}

func TestSetContentAndErrors(t *testing.T) {
	h := mustNew(t, AxisSpec{NBins: 3, Min: 0, Max: 3})
	require.NoError(t, h.SetContent(1, 0, 9))
	require.NoError(t, h.SetContent(2, 0, 4))

	assert.Equal(t, 3.0, h.Error(1, 0))

	require.NoError(t, h.SetError(2, 0, 0.5))
	assert.Equal(t, 0.5, h.Error(2, 0))
	assert.Equal(t, 3.0, h.Error(1, 0), "switching to explicit errors keeps sqrt(content) elsewhere")

	assert.ErrorIs(t, h.SetContent(9, 0, 1), ErrBinning)
	assert.ErrorIs(t, h.SetContent(1, 1, 1), ErrBinning)
	assert.Equal(t, 0.0, h.Content(1, 1))
}

func TestSetLabels(t *testing.T) {
	h := mustNew(t, AxisSpec{NBins: 3, Min: 0, Max: 3})
	require.NoError(t, h.SetContent(1, 0, 5))

	require.NoError(t, h.SetLabels("x", map[int]string{0: "a", 2: "c"}))
	assert.Equal(t, "a", h.Label("x", 1))
	assert.Equal(t, "", h.Label("x", 2))
	assert.Equal(t, "c", h.Label("x", 3))
	assert.Equal(t, 5.0, h.BinContent(1), "labels keep contents")

	assert.ErrorIs(t, h.SetLabels("y", map[int]string{0: "a"}), ErrDimension)
	assert.Error(t, h.SetLabels("z", nil))
}

func TestEfficiency1D(t *testing.T) {
	axis := AxisSpec{NBins: 3, Min: 0, Max: 3}
	partial := mustNew(t, axis)
	partial.Name = "pass"
	total := mustNew(t, axis)

	require.NoError(t, partial.SetContent(1, 0, 5))
	require.NoError(t, total.SetContent(1, 0, 10))
	require.NoError(t, partial.SetContent(2, 0, 4))
	require.NoError(t, total.SetContent(2, 0, 4))
	require.NoError(t, partial.SetContent(3, 0, 1)) // empty total

	eff, err := Efficiency(partial, total)
	require.NoError(t, err)

	assert.Equal(t, "passEff", eff.Name)
	assert.Equal(t, "pass Efficiency", eff.Title)
	assert.Equal(t, 0.5, eff.BinContent(1))
	assert.InDelta(t, math.Sqrt(0.25/10), eff.BinError(1), 1e-12)
	assert.Equal(t, 1.0, eff.BinContent(2))
	assert.Equal(t, 0.0, eff.BinError(2))
	assert.Equal(t, 0.0, eff.BinContent(3))
}

func TestEfficiency2DOver1D(t *testing.T) {
	x := AxisSpec{NBins: 2, Min: 0, Max: 2}
	y := AxisSpec{NBins: 2, Min: 0, Max: 2}
	partial := mustNew(t, x, y)
	total := mustNew(t, x)

	require.NoError(t, total.SetContent(1, 0, 4))
	require.NoError(t, partial.SetContent(1, 1, 1))
	require.NoError(t, partial.SetContent(1, 2, 2))

	eff, err := Efficiency(partial, total)
	require.NoError(t, err)
	assert.Equal(t, TwoDimensional, eff.Kind())
	assert.Equal(t, 0.25, eff.Content(1, 1))
	assert.Equal(t, 0.5, eff.Content(1, 2))
	assert.Equal(t, 0.0, eff.Content(2, 1))
}

func TestEfficiency_Errors(t *testing.T) {
	a := mustNew(t, AxisSpec{NBins: 2, Min: 0, Max: 2})
	b := mustNew(t, AxisSpec{NBins: 3, Min: 0, Max: 2})
	c := mustNew(t, AxisSpec{NBins: 2, Min: 0, Max: 2}, AxisSpec{NBins: 2, Min: 0, Max: 2})

	_, err := Efficiency(a, b)
	assert.ErrorIs(t, err, ErrBinning)
	_, err = Efficiency(a, c)
	assert.ErrorIs(t, err, ErrDimension)
	_, err = Efficiency(nil, a)
	assert.ErrorIs(t, err, ErrDimension)
}

func TestLoadDump(t *testing.T) {
	d := Dump{
		Name:     "mass",
		Title:    "invariant mass",
		Axes:     []AxisSpec{{NBins: 3, Min: 0, Max: 3, Name: "m"}},
		Contents: []float64{1, 2, 3},
	}
	data, err := json.Marshal(d)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "mass.json")
	require.NoError(t, os.WriteFile(path, data, 0644))

	h, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mass", h.Name)
	assert.Equal(t, 3, h.NBinsX())
	assert.Equal(t, 2.0, h.BinContent(2))

	if diff := cmp.Diff(d, h.ToDump()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "mass.txt"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"name":"x","axes":[{"nbins":2,"min":0,"max":1}],"contents":[1]}`), 0644))
	_, err = Load(bad)
	if !errors.Is(err, ErrBinning) {
		t.Errorf("expected ErrBinning, got %v", err)
	}
}

func TestFromDump2D(t *testing.T) {
	h, err := FromDump(Dump{
		Name:     "xy",
		Axes:     []AxisSpec{{NBins: 2, Min: 0, Max: 2}, {NBins: 2, Min: 0, Max: 2}},
		Contents: []float64{1, 2, 3, 4},
		Errors:   []float64{0.1, 0.2, 0.3, 0.4},
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, h.Content(2, 1))
	assert.Equal(t, 3.0, h.Content(1, 2))
	assert.InDelta(t, 0.4, h.Error(2, 2), 1e-12)
}
