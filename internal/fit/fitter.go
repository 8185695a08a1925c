package fit

import (
	"github.com/banshee-data/peakfit/internal/hist"
	"github.com/banshee-data/peakfit/internal/model"
)

// Fitter is the external fit routine. Fit adjusts the free and bounded
// parameters of fn against data, honouring fn's range, fixed flags and
// limits, and leaves the fitted values and errors in fn.
//
// A returned error means the fit could not be carried out. A fit that ran
// but did not converge reports it through Status instead.
type Fitter interface {
	Fit(data hist.Binned, fn *model.Function, option string) (Status, error)
}

// Status summarises one external fit call.
type Status struct {
	Code        int     `json:"code"` // 0 on success
	Converged   bool    `json:"converged"`
	Message     string  `json:"message,omitempty"`
	Chi2        float64 `json:"chi2"` // chi-square, or the likelihood ratio for "L" fits
	NDF         int     `json:"ndf"`
	Evaluations int     `json:"evaluations"`
}

// FitResult is returned by PerformFit. The caller owns Model.
type FitResult struct {
	Status Status
	Model  *model.Function
}
