package main

import (
	"bytes"
	"encoding/json"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/peakfit/internal/hist"
	"github.com/banshee-data/peakfit/internal/monitoring"
)

const twoPeakConfig = `
fit:
  option: "QM"
components:
  - name: lo
    expr: "gaus(0)"
    norm_idx: 0
    mean_idx: 1
    sigma_idx: 2
    params: {0: {}, 1: {}, 2: {}}
  - name: hi
    expr: "gaus(3)"
    norm_idx: 3
    mean_idx: 4
    sigma_idx: 5
    params: {3: {}, 4: {}, 5: {}}
`

func writeInputs(t *testing.T) (cfgPath, histPath string) {
	t.Helper()
	dir := t.TempDir()

	h, err := hist.New("energy", "", hist.AxisSpec{NBins: 120, Min: 0, Max: 12})
	require.NoError(t, err)
	src := rand.New(rand.NewPCG(3, 4))
	for _, peak := range []struct {
		mu, sigma float64
		n         int
	}{{3, 0.5, 4000}, {8, 0.6, 6000}} {
		d := distuv.Normal{Mu: peak.mu, Sigma: peak.sigma, Src: src}
		for i := 0; i < peak.n; i++ {
			require.NoError(t, h.Fill(d.Rand()))
		}
	}
	data, err := json.Marshal(h.ToDump())
	require.NoError(t, err)

	histPath = filepath.Join(dir, "energy.json")
	require.NoError(t, os.WriteFile(histPath, data, 0644))
	cfgPath = filepath.Join(dir, "peaks.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(twoPeakConfig), 0644))
	return cfgPath, histPath
}

func quietLogs(t *testing.T) {
	t.Helper()
	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() {
		monitoring.SetLogger(prev)
		monitoring.SetDebug(false)
	})
}

func TestRun_FitAndRecord(t *testing.T) {
	quietLogs(t)
	cfgPath, histPath := writeInputs(t)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", cfgPath, "-hist", histPath, "-auto", "-db", dbPath}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "converged=true")
	assert.Contains(t, out, "INDEX")
	assert.Contains(t, out, "recorded in "+dbPath)
	// sigma parameters are fixed by auto-initialisation.
	assert.Regexp(t, `(?m)^2\s+\S+\s+\S+\s+fix\s+-`, out)

	stdout.Reset()
	code = run([]string{"-db", dbPath, "-list", "5"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "energy")
	assert.Contains(t, lines[1], "QM")
}

func TestRun_PreFitComponents(t *testing.T) {
	quietLogs(t)
	cfgPath, histPath := writeInputs(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{
		"-config", cfgPath, "-hist", histPath, "-auto",
		"-func", "lo", "-range", "1,5", "-option", "Q",
	}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "converged=true")
}

func TestRun_Errors(t *testing.T) {
	quietLogs(t)
	cfgPath, histPath := writeInputs(t)

	tests := []struct {
		name string
		args []string
		code int
		msg  string
	}{
		{"missing inputs", []string{"-auto"}, 1, "-config and -hist are required"},
		{"unknown flag", []string{"-nope"}, 2, "flag provided but not defined"},
		{"extra argument", []string{"x"}, 2, "unexpected arguments"},
		{"bad range", []string{"-config", cfgPath, "-hist", histPath, "-range", "5,1"}, 1, "lo must be below hi"},
		{"unknown component", []string{"-config", cfgPath, "-hist", histPath, "-func", "mid"}, 1, "unknown component"},
		{"list without db", []string{"-list", "3"}, 1, "-list requires -db"},
		{"missing config", []string{"-config", filepath.Join(t.TempDir(), "none.yaml"), "-hist", histPath}, 1, "failed to stat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, tt.code, run(tt.args, &stdout, &stderr))
			assert.Contains(t, stderr.String(), tt.msg)
		})
	}
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, run([]string{"-version"}, &stdout, &stderr))
	assert.True(t, strings.HasPrefix(stdout.String(), "peakfit "))
}

func TestParseRange(t *testing.T) {
	r, err := parseRange(" -1.5, 2 ")
	require.NoError(t, err)
	assert.Equal(t, [2]float64{-1.5, 2}, *r)

	r, err = parseRange("")
	require.NoError(t, err)
	assert.Nil(t, r)

	for _, bad := range []string{"1", "a,2", "1,2,3", "2,2"} {
		_, err := parseRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestSplitNames(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitNames(" a,,b ,"))
	assert.Nil(t, splitNames(""))
}
