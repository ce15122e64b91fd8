package gmrf

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// VarianceEstimator approximates the per-cell posterior marginal
// variance, i.e. the diagonal of the inverse of the assembled
// precision matrix. The exact diagonal would require a full matrix
// inverse, which is infeasible at grid scale, so every implementation
// here is approximate and documents its bias.
type VarianceEstimator interface {
	// Estimate returns one variance per cell in row-major order.
	// Entries that the estimator cannot resolve may be <= 0; the
	// caller leaves those cells at their default variance.
	Estimate(sys *System) ([]float64, error)
}

// HutchinsonEstimator estimates diag(Lambda^-1) with the Hutchinson
// stochastic trace estimator: for random +-1 probe vectors z,
// E[z_i * (Lambda^-1 z)_i] equals the i-th diagonal entry of the
// inverse. Each probe costs one conjugate gradient solve, so the total
// cost is Probes times the mean solve. The estimate is unbiased with
// variance shrinking as 1/Probes; it is never exact.
type HutchinsonEstimator struct {
	// Probes is the number of random probe vectors. Zero selects the
	// default of 16.
	Probes int

	// Rng is the probe source. Nil selects a fixed-seed generator so
	// repeated updates of the same system are reproducible.
	Rng *rand.Rand

	// Tolerance and MaxIterations bound each probe solve. Zero values
	// select DefaultTolerance and the system dimension. Probe solves
	// may be run looser than the mean solve.
	Tolerance     float64
	MaxIterations int
}

// Estimate runs the probe solves and averages the diagonal samples.
func (h *HutchinsonEstimator) Estimate(sys *System) ([]float64, error) {
	n := sys.Dim()
	probes := h.Probes
	if probes <= 0 {
		probes = 16
	}
	rng := h.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(0x5eed))
	}
	tol := h.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	maxIter := h.MaxIterations
	if maxIter <= 0 {
		maxIter = n
	}

	z := make([]float64, n)
	y := make([]float64, n)
	acc := make([]float64, n)

	for p := 0; p < probes; p++ {
		for i := range z {
			if rng.Intn(2) == 0 {
				z[i] = 1
			} else {
				z[i] = -1
			}
		}
		// A probe solve that hits its iteration cap still contributes
		// a usable, if noisier, sample.
		sys.SolvePCG(z, y, tol, maxIter)
		for i := range acc {
			acc[i] += z[i] * y[i]
		}
	}
	floats.Scale(1/float64(probes), acc)
	return acc, nil
}

// JacobiEstimator approximates each marginal variance as 1/Lambda_ii,
// the inverse of the cell's own total information. It ignores all
// off-diagonal coupling and therefore underestimates the variance of
// weakly observed cells, but costs a single pass over the diagonal.
type JacobiEstimator struct{}

// Estimate returns the reciprocal diagonal.
func (JacobiEstimator) Estimate(sys *System) ([]float64, error) {
	out := make([]float64, sys.Dim())
	for i, d := range sys.Diag {
		if d <= 0 {
			return nil, fmt.Errorf("non-positive information %g at cell %d", d, i)
		}
		out[i] = 1 / d
	}
	return out, nil
}

func defaultVarianceEstimator() VarianceEstimator {
	return &HutchinsonEstimator{}
}
