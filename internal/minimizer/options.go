package minimizer

import (
	"fmt"
	"strings"
)

// options are the parsed single-letter fit options.
type options struct {
	likelihood  bool // L: Poisson likelihood instead of chi-square
	unitWeights bool // W: every bin has unit error
	quiet       bool // Q: no status logging
	improve     bool // M: second minimisation from the first result
}

// parseOptions reads a fit option string such as "RMS+" or "LQ". Letters
// are case-insensitive. R, S, N, E, 0 and + are accepted for
// compatibility: the function range is always honoured, a status is
// always returned, errors are always computed and nothing is drawn.
func parseOptions(s string) (options, error) {
	var o options
	for _, r := range strings.ToUpper(s) {
		switch r {
		case 'L':
			o.likelihood = true
		case 'W':
			o.unitWeights = true
		case 'Q':
			o.quiet = true
		case 'M':
			o.improve = true
		case 'R', 'S', 'N', 'E', '0', '+', ' ':
		default:
			return options{}, fmt.Errorf("%w: %q in %q", ErrOption, r, s)
		}
	}
	return o, nil
}
