// Package interpolation answers point queries against a solved DEM
// grid, returning a predicted height and its standard deviation by
// nearest-cell or bilinear sampling.
package interpolation

import (
	"fmt"
	"math"

	"demgmrf/pkg/grid"
)

// Mode selects how a query point samples the grid.
type Mode int

const (
	// Nearest returns the estimate of the single cell containing the
	// query point.
	Nearest Mode = iota

	// Bilinear blends the four cells whose centers surround the query
	// point with standard bilinear weights.
	Bilinear
)

// String returns the short name used in output filenames.
func (m Mode) String() string {
	switch m {
	case Nearest:
		return "NN"
	case Bilinear:
		return "Bi"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Predict returns the estimated height and standard deviation of the
// fitted surface at (x, y). Queries outside the grid extent fail with
// grid.ErrOutOfBounds; within the extent, bilinear queries closer than
// half a cell to the border clamp to the nearest valid 4-cell stencil
// instead of failing.
func Predict(m *grid.Map, x, y float64, mode Mode) (z, std float64, err error) {
	switch mode {
	case Nearest:
		return predictNearest(m, x, y)
	case Bilinear:
		return predictBilinear(m, x, y)
	default:
		return 0, 0, fmt.Errorf("unknown interpolation mode %d", int(mode))
	}
}

func predictNearest(m *grid.Map, x, y float64) (z, std float64, err error) {
	row, col, err := m.CellIndexOf(x, y)
	if err != nil {
		return 0, 0, err
	}
	cell, err := m.CellAt(row, col)
	if err != nil {
		return 0, 0, err
	}
	return cell.Mean, math.Sqrt(cell.Variance), nil
}

func predictBilinear(m *grid.Map, x, y float64) (z, std float64, err error) {
	bb := m.Bounds()
	if !bb.Contains(x, y) {
		return 0, 0, fmt.Errorf("point (%g, %g): %w", x, y, grid.ErrOutOfBounds)
	}

	// Fractional coordinates relative to cell centers: an integer
	// value lands exactly on a cell center, which makes the stencil
	// collapse to that single cell and reproduces the Nearest result.
	fx := (x-bb.MinX)/m.Resolution() - 0.5
	fy := (y-bb.MinY)/m.Resolution() - 0.5

	c0, dx := stencilAxis(fx, m.Cols())
	r0, dy := stencilAxis(fy, m.Rows())
	c1 := min(c0+1, m.Cols()-1)
	r1 := min(r0+1, m.Rows()-1)

	w00 := (1 - dx) * (1 - dy)
	w10 := dx * (1 - dy)
	w01 := (1 - dx) * dy
	w11 := dx * dy

	cells := [4]*grid.Cell{
		m.Cell(m.FlatIndex(r0, c0)),
		m.Cell(m.FlatIndex(r0, c1)),
		m.Cell(m.FlatIndex(r1, c0)),
		m.Cell(m.FlatIndex(r1, c1)),
	}
	weights := [4]float64{w00, w10, w01, w11}

	var variance float64
	for i, c := range cells {
		z += weights[i] * c.Mean
		// Treating the four cell estimates as independent, the
		// blended variance is the weight-squared combination.
		variance += weights[i] * weights[i] * c.Variance
	}
	return z, math.Sqrt(variance), nil
}

// stencilAxis clamps a fractional cell coordinate to a valid stencil
// origin along one axis and returns the origin index with the
// interpolation fraction in [0, 1].
func stencilAxis(f float64, cells int) (origin int, frac float64) {
	origin = int(math.Floor(f))
	if origin < 0 {
		origin = 0
	}
	if origin > cells-2 {
		origin = cells - 2
	}
	if origin < 0 {
		// Single-cell axis: no second cell to blend with.
		return 0, 0
	}
	frac = f - float64(origin)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return origin, frac
}
