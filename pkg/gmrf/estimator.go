// Package gmrf implements the grid-based Gaussian Markov Random Field
// terrain estimator: Bayesian fusion of noisy point readings into
// per-cell information, a 4-connected smoothness prior, and a sparse
// information-form solve for the maximum-a-posteriori surface.
package gmrf

import (
	"errors"
	"fmt"

	"demgmrf/internal/models"
	"demgmrf/pkg/grid"
)

// ErrInvalidObservation is returned for readings that cannot be fused:
// non-positive standard deviation or a position outside the grid.
var ErrInvalidObservation = errors.New("invalid observation")

// Params holds the estimator configuration.
type Params struct {
	// LambdaPrior is the precision of each smoothness constraint
	// between adjacent cells, 1/stdPrior^2. Larger values enforce a
	// flatter surface.
	LambdaPrior float64

	// LambdaObs is a global scale factor applied to the precision of
	// every observation. The information added by a reading with
	// standard deviation s is LambdaObs/s^2. Normally 1.0.
	LambdaObs float64

	// SkipVariance disables posterior variance estimation; cells then
	// keep their default variance after a solve.
	SkipVariance bool

	// Tolerance is the relative residual at which the conjugate
	// gradient solve is considered converged. Zero selects the
	// default.
	Tolerance float64

	// MaxIterations caps the conjugate gradient iterations. Zero
	// selects the default (the system dimension). Hitting the cap is
	// a warning, not an error; the best iterate is kept.
	MaxIterations int
}

// SolveReport describes the outcome of one map update.
type SolveReport struct {
	// Iterations is the number of conjugate gradient iterations run
	// for the mean solve.
	Iterations int

	// Residual is the final relative residual of the mean solve.
	Residual float64

	// Converged is false when the iteration cap was reached before
	// the tolerance; the approximate solution is still applied.
	Converged bool

	// VarianceEstimated is true when posterior variances were
	// (approximately) estimated during this update.
	VarianceEstimated bool
}

// Estimator fuses point readings into a grid and recomputes the MAP
// surface on demand. Insertion and solving are strictly separated:
// InsertReading only touches the per-cell accumulators, and only
// UpdateMapEstimation rewrites Mean and Variance.
type Estimator struct {
	m      *grid.Map
	params Params

	// Variance selects the posterior variance estimator used when
	// Params.SkipVariance is false. Nil selects the default
	// Hutchinson estimator. All provided estimators are approximate;
	// exact marginals would require a full matrix inverse.
	Variance VarianceEstimator

	skipped int
}

// NewEstimator creates an estimator over m. The precisions must be
// positive.
func NewEstimator(m *grid.Map, params Params) (*Estimator, error) {
	if params.LambdaPrior <= 0 {
		return nil, fmt.Errorf("prior precision must be positive, got %g", params.LambdaPrior)
	}
	if params.LambdaObs <= 0 {
		return nil, fmt.Errorf("observation precision scale must be positive, got %g", params.LambdaObs)
	}
	return &Estimator{m: m, params: params}, nil
}

// Grid returns the map the estimator operates on.
func (e *Estimator) Grid() *grid.Map { return e.m }

// SkippedReadings returns how many readings were rejected by
// InsertReading since construction.
func (e *Estimator) SkippedReadings() int { return e.skipped }

// InsertReading fuses one observation into its owning cell. Repeated
// readings in the same cell accumulate additively, which is exact
// Bayesian fusion of independent Gaussian measurements. Readings with
// non-positive standard deviation or outside the grid extent are
// rejected with ErrInvalidObservation and counted; the caller decides
// whether to continue.
func (e *Estimator) InsertReading(obs models.Observation) error {
	if obs.StdDev <= 0 {
		e.skipped++
		return fmt.Errorf("reading at (%g, %g) with stddev %g: %w",
			obs.X, obs.Y, obs.StdDev, ErrInvalidObservation)
	}
	row, col, err := e.m.CellIndexOf(obs.X, obs.Y)
	if err != nil {
		e.skipped++
		return fmt.Errorf("reading at (%g, %g): %w", obs.X, obs.Y, ErrInvalidObservation)
	}

	cell, err := e.m.CellAt(row, col)
	if err != nil {
		e.skipped++
		return err
	}
	info := e.params.LambdaObs / (obs.StdDev * obs.StdDev)
	cell.InformationSum += info
	cell.InformationWeightedMean += info * obs.Z
	return nil
}

// UpdateMapEstimation rebuilds the information system from the
// accumulated observations and the smoothness prior, solves it for the
// MAP mean surface, and writes the result into every cell. Cells that
// received no observations are filled by information propagating
// through the prior coupling. When variance estimation is enabled,
// each cell's Variance is replaced by an approximate posterior
// marginal variance.
//
// The operation is idempotent for a fixed accumulated state and may be
// invoked any number of times.
func (e *Estimator) UpdateMapEstimation() (*SolveReport, error) {
	sys := NewSystem(e.m, e.params.LambdaPrior)

	tol := e.params.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	maxIter := e.params.MaxIterations
	if maxIter <= 0 {
		maxIter = sys.Dim()
	}

	mean := make([]float64, sys.Dim())
	iters, resid, converged := sys.SolvePCG(sys.Eta, mean, tol, maxIter)

	report := &SolveReport{
		Iterations: iters,
		Residual:   resid,
		Converged:  converged,
	}

	for i := 0; i < sys.Dim(); i++ {
		e.m.Cell(i).Mean = mean[i]
	}

	if !e.params.SkipVariance {
		est := e.Variance
		if est == nil {
			est = defaultVarianceEstimator()
		}
		variances, err := est.Estimate(sys)
		if err != nil {
			return report, fmt.Errorf("variance estimation: %w", err)
		}
		for i, v := range variances {
			if v > 0 {
				e.m.Cell(i).Variance = v
			}
		}
		report.VarianceEstimated = true
	}
	return report, nil
}

// FusedMean returns the fused observation mean of the cell at
// (row, col), i.e. the precision-weighted average of the readings it
// received, ignoring the prior. The second result is false for cells
// without observations.
func (e *Estimator) FusedMean(row, col int) (float64, bool) {
	cell, err := e.m.CellAt(row, col)
	if err != nil || cell.InformationSum <= 0 {
		return 0, false
	}
	return cell.InformationWeightedMean / cell.InformationSum, true
}
