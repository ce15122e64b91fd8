// Package validation evaluates a fitted DEM against withheld
// checkpoint observations and summarizes the prediction residuals.
package validation

import (
	"fmt"
	"math"
	"os"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"demgmrf/internal/models"
	"demgmrf/pkg/grid"
	"demgmrf/pkg/interpolation"
)

// StatsHeader is the comment line written above a serialized stats
// row. The MAX_ABS_ERR and MIN_ABS_ERR names are historical: the
// values are signed extrema, kept that way so existing consumers of
// these stats files keep reading identical numbers.
const StatsHeader = "% MAX_ABS_ERR   MIN_ABS_ERR   AVERAGE_ERR   STD_DEV   RMSE    MEDIAN"

// Result holds the per-checkpoint residuals (observed minus predicted
// height) for both interpolation modes. A checkpoint that falls
// outside the grid extent is skipped for that mode and counted; it
// does not abort the evaluation.
type Result struct {
	ResidualsNN []float64
	ResidualsBi []float64
	SkippedNN   int
	SkippedBi   int
}

// Evaluate queries the fitted grid at every checkpoint position with
// both Nearest and Bilinear interpolation and collects the residuals.
func Evaluate(m *grid.Map, checkpoints []models.Observation) *Result {
	res := &Result{
		ResidualsNN: make([]float64, 0, len(checkpoints)),
		ResidualsBi: make([]float64, 0, len(checkpoints)),
	}
	for _, cp := range checkpoints {
		if z, _, err := interpolation.Predict(m, cp.X, cp.Y, interpolation.Nearest); err != nil {
			res.SkippedNN++
		} else {
			res.ResidualsNN = append(res.ResidualsNN, cp.Z-z)
		}
		if z, _, err := interpolation.Predict(m, cp.X, cp.Y, interpolation.Bilinear); err != nil {
			res.SkippedBi++
		} else {
			res.ResidualsBi = append(res.ResidualsBi, cp.Z-z)
		}
	}
	return res
}

// Stats summarizes a residual vector. An empty vector yields the zero
// statistics without error. Max and Min are signed extrema and the
// median is the sorted vector's element at index n/2; see
// models.ResidualStats for the compatibility notes on both.
func Stats(residuals []float64) models.ResidualStats {
	n := len(residuals)
	if n == 0 {
		return models.ResidualStats{}
	}

	var s models.ResidualStats
	s.MaxErr = floats.Max(residuals)
	s.MinErr = floats.Min(residuals)

	if n > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(residuals, nil)
	} else {
		s.Mean = residuals[0]
	}

	var sumSq float64
	for _, r := range residuals {
		sumSq += r * r
	}
	s.RMSE = math.Sqrt(sumSq / float64(n))

	sorted := make([]float64, n)
	copy(sorted, residuals)
	sort.Float64s(sorted)
	s.Median = sorted[n/2]

	return s
}

// SaveResiduals writes one residual per line as a plain text vector.
func SaveResiduals(path string, residuals []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating residual file: %w", err)
	}
	defer f.Close()
	for _, r := range residuals {
		if _, err := fmt.Fprintf(f, "%e\n", r); err != nil {
			return fmt.Errorf("error writing residual file: %w", err)
		}
	}
	return nil
}

// SaveStats writes the header comment followed by the 6-number stats
// row.
func SaveStats(path string, s models.ResidualStats) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating stats file: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s\n%e %e %e %e %e %e\n",
		StatsHeader, s.MaxErr, s.MinErr, s.Mean, s.StdDev, s.RMSE, s.Median)
	if err != nil {
		return fmt.Errorf("error writing stats file: %w", err)
	}
	return nil
}
