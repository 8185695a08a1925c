// Command peakfit fits a sum of peak components to a one-dimensional
// histogram. Parameter starting values come from the configuration file
// and, with -auto, from clustering the histogram contents.
//
// Usage:
//
//	peakfit -config peaks.yaml -hist energy.json [-auto] [-func name,...] [-db runs.db]
//	peakfit -db runs.db -list 10
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/peakfit/internal/config"
	"github.com/banshee-data/peakfit/internal/fit"
	"github.com/banshee-data/peakfit/internal/hist"
	"github.com/banshee-data/peakfit/internal/minimizer"
	"github.com/banshee-data/peakfit/internal/monitoring"
	"github.com/banshee-data/peakfit/internal/runstore"
	"github.com/banshee-data/peakfit/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type cliOptions struct {
	configPath string
	histPath   string
	auto       bool
	funcs      string
	fitRange   string
	option     string
	dbPath     string
	list       int
	debug      bool
	version    bool
}

func parseFlags(args []string, stderr io.Writer) (*cliOptions, error) {
	fs := flag.NewFlagSet("peakfit", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &cliOptions{}
	fs.StringVar(&o.configPath, "config", "", "Path to the fit configuration (.yaml or .json)")
	fs.StringVar(&o.histPath, "hist", "", "Path to the histogram JSON dump")
	fs.BoolVar(&o.auto, "auto", false, "Estimate peak parameters by clustering before fitting")
	fs.StringVar(&o.funcs, "func", "", "Comma-separated components to pre-fit individually before the composite fit")
	fs.StringVar(&o.fitRange, "range", "", "Fit range lo,hi for -func pre-fits (defaults to the histogram axis)")
	fs.StringVar(&o.option, "option", "", "Fit option for the composite fit (defaults to the configured option)")
	fs.StringVar(&o.dbPath, "db", "", "SQLite database to record fit runs in")
	fs.IntVar(&o.list, "list", 0, "List the N most recent runs from -db and exit")
	fs.BoolVar(&o.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&o.version, "version", false, "Print version information and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return o, nil
}

// parseRange parses "lo,hi".
func parseRange(s string) (*[2]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid range %q: want lo,hi", s)
	}
	var r [2]float64
	for i, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		r[i] = v
	}
	if !(r[0] < r[1]) {
		return nil, fmt.Errorf("invalid range %q: lo must be below hi", s)
	}
	return &r, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}
	if o.version {
		fmt.Fprintln(stdout, version.String())
		return 0
	}
	monitoring.SetDebug(o.debug)

	if o.list > 0 {
		if err := listRuns(o, stdout); err != nil {
			fmt.Fprintf(stderr, "peakfit: %v\n", err)
			return 1
		}
		return 0
	}

	if err := fitHistogram(o, stdout); err != nil {
		fmt.Fprintf(stderr, "peakfit: %v\n", err)
		return 1
	}
	return 0
}

func fitHistogram(o *cliOptions, stdout io.Writer) error {
	if o.configPath == "" || o.histPath == "" {
		return errors.New("-config and -hist are required")
	}
	fitRange, err := parseRange(o.fitRange)
	if err != nil {
		return err
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	h, err := hist.Load(o.histPath)
	if err != nil {
		return err
	}

	c, err := fit.New(h, cfg, minimizer.New(cfg.Fit))
	if err != nil {
		return err
	}

	if o.auto {
		report, err := c.AutoInitialise()
		if err != nil {
			return err
		}
		for _, name := range report.Degenerate {
			monitoring.Logf("peakfit: component %q received an empty cluster", name)
		}
	}

	for _, name := range splitNames(o.funcs) {
		status, err := c.FitFunc(name, fit.FuncOptions{Range: fitRange})
		if err != nil {
			return err
		}
		monitoring.Logf("peakfit: pre-fit %s: converged=%t chi2=%g ndf=%d", name, status.Converged, status.Chi2, status.NDF)
	}

	option := o.option
	if option == "" {
		option = cfg.Fit.GetOption()
	}
	start := time.Now()
	res, err := c.PerformFit(fit.Options{FitOption: option})
	if err != nil {
		return err
	}
	monitoring.Debugf("peakfit: composite fit took %s", time.Since(start))

	params := c.Parameters()
	printResult(stdout, res, params)

	if o.dbPath == "" {
		return nil
	}
	r, err := runstore.NewRun(res, params)
	if err != nil {
		return err
	}
	r.ConfigPath = o.configPath
	r.HistName = h.Name
	r.FitOption = option

	store, err := runstore.Open(o.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Insert(r); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "run %s recorded in %s\n", r.RunID, o.dbPath)
	return nil
}

func splitNames(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printResult(w io.Writer, res *fit.FitResult, params map[int]fit.Parameter) {
	s := res.Status
	fmt.Fprintf(w, "status=%d converged=%t chi2=%.6g ndf=%d evaluations=%d\n",
		s.Code, s.Converged, s.Chi2, s.NDF, s.Evaluations)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tVALUE\tERROR\tMODE\tBOUNDS")
	idx := make([]int, 0, len(params))
	for i := range params {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		p := params[i]
		var parErr float64
		if res.Model != nil && i < res.Model.NPar() {
			parErr = res.Model.ParError(i)
		}
		bounds := "-"
		if p.Mode == fit.Bounded {
			bounds = fmt.Sprintf("[%.6g, %.6g]", p.Bounds[0], p.Bounds[1])
		}
		fmt.Fprintf(tw, "%d\t%.6g\t%.3g\t%s\t%s\n", i, p.Value, parErr, p.Mode, bounds)
	}
	tw.Flush()
}

func listRuns(o *cliOptions, stdout io.Writer) error {
	if o.dbPath == "" {
		return errors.New("-list requires -db")
	}
	store, err := runstore.Open(o.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(o.list)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCREATED\tHIST\tOPTION\tCONVERGED\tCHI2/NDF")
	for _, r := range runs {
		ratio := "-"
		if r.NDF > 0 {
			ratio = fmt.Sprintf("%.4g", r.Chi2/float64(r.NDF))
		}
		created := time.Unix(0, r.CreatedAt).UTC().Format(time.RFC3339)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", r.RunID, created, r.HistName, r.FitOption, r.Converged, ratio)
	}
	return tw.Flush()
}
