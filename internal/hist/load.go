package hist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const maxDumpSize = 64 * 1024 * 1024

// Dump is the JSON representation of a histogram. Contents and errors
// cover in-range cells only, row-major with x varying fastest.
type Dump struct {
	Name     string     `json:"name"`
	Title    string     `json:"title,omitempty"`
	Axes     []AxisSpec `json:"axes"`
	Contents []float64  `json:"contents"`
	Errors   []float64  `json:"errors,omitempty"`
}

// Load reads a histogram from a JSON dump file.
func Load(path string) (*Histogram, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("histogram file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat histogram file: %w", err)
	}
	if fileInfo.Size() > maxDumpSize {
		return nil, fmt.Errorf("histogram file too large: %d bytes (max %d)", fileInfo.Size(), maxDumpSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read histogram file: %w", err)
	}

	var d Dump
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse histogram JSON: %w", err)
	}
	return FromDump(d)
}

// FromDump builds a histogram from its JSON representation.
func FromDump(d Dump) (*Histogram, error) {
	h, err := New(d.Name, d.Title, d.Axes...)
	if err != nil {
		return nil, err
	}

	nx := h.NBinsX()
	ny := 1
	if h.kind == TwoDimensional {
		ny = h.NBinsY()
	}
	if len(d.Contents) != nx*ny {
		return nil, fmt.Errorf("%w: %d contents for %d cells", ErrBinning, len(d.Contents), nx*ny)
	}
	if len(d.Errors) != 0 && len(d.Errors) != nx*ny {
		return nil, fmt.Errorf("%w: %d errors for %d cells", ErrBinning, len(d.Errors), nx*ny)
	}

	for k, v := range d.Contents {
		ix, iy := k%nx+1, 0
		if h.kind == TwoDimensional {
			iy = k/nx + 1
		}
		if err := h.SetContent(ix, iy, v); err != nil {
			return nil, err
		}
		if len(d.Errors) > 0 {
			if err := h.SetError(ix, iy, d.Errors[k]); err != nil {
				return nil, err
			}
		}
	}
	return h, nil
}

// ToDump returns the JSON representation of h.
func (h *Histogram) ToDump() Dump {
	d := Dump{
		Name:  h.Name,
		Title: h.Title,
		Axes:  append([]AxisSpec(nil), h.axes...),
	}
	nx := h.NBinsX()
	ny := 1
	if h.kind == TwoDimensional {
		ny = h.NBinsY()
	}
	for k := 0; k < nx*ny; k++ {
		ix, iy := k%nx+1, 0
		if h.kind == TwoDimensional {
			iy = k/nx + 1
		}
		d.Contents = append(d.Contents, h.Content(ix, iy))
		if h.sumw2 != nil {
			d.Errors = append(d.Errors, h.Error(ix, iy))
		}
	}
	return d
}
