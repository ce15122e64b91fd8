package gmrf

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"demgmrf/pkg/grid"
)

// DefaultTolerance is the relative residual threshold used by the
// conjugate gradient solve when Params.Tolerance is zero.
const DefaultTolerance = 1e-7

// System is the information form of the posterior built for one solve:
// the sparse precision matrix Lambda and information vector Eta over
// all grid cells, in row-major cell order.
//
// Lambda is never materialized as a general sparse matrix. Its
// off-diagonal pattern is exactly the grid's 4-connectivity with the
// constant coupling -LambdaPrior on every edge, so only the diagonal
// is stored and MulVec applies the stencil directly. Every coupling
// affects both endpoints, so the matrix is symmetric by construction.
// The System is transient: built fresh per update and discarded after.
type System struct {
	// Diag holds the diagonal of Lambda: each cell's accumulated
	// observation information plus LambdaPrior times its neighbor
	// count.
	Diag []float64

	// Eta is the information vector: each cell's accumulated
	// precision-weighted height sum. The prior is zero-mean in height
	// differences and contributes nothing here.
	Eta []float64

	// LambdaPrior is the precision of each smoothness edge.
	LambdaPrior float64

	rows, cols int
}

// NewSystem assembles the information system for the grid's current
// accumulated observation state and the given prior precision.
func NewSystem(m *grid.Map, lambdaPrior float64) *System {
	rows, cols := m.Rows(), m.Cols()
	n := rows * cols
	s := &System{
		Diag:        make([]float64, n),
		Eta:         make([]float64, n),
		LambdaPrior: lambdaPrior,
		rows:        rows,
		cols:        cols,
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := r*cols + c
			cell := m.Cell(i)

			degree := 0
			if r > 0 {
				degree++
			}
			if r < rows-1 {
				degree++
			}
			if c > 0 {
				degree++
			}
			if c < cols-1 {
				degree++
			}

			s.Diag[i] = cell.InformationSum + lambdaPrior*float64(degree)
			s.Eta[i] = cell.InformationWeightedMean
		}
	}
	return s
}

// Dim returns the dimension of the system (total cell count).
func (s *System) Dim() int { return len(s.Diag) }

// MulVec computes dst = Lambda*x using the 5-point stencil.
func (s *System) MulVec(dst, x []float64) {
	lp := s.LambdaPrior
	for r := 0; r < s.rows; r++ {
		for c := 0; c < s.cols; c++ {
			i := r*s.cols + c
			v := s.Diag[i] * x[i]
			if r > 0 {
				v -= lp * x[i-s.cols]
			}
			if r < s.rows-1 {
				v -= lp * x[i+s.cols]
			}
			if c > 0 {
				v -= lp * x[i-1]
			}
			if c < s.cols-1 {
				v -= lp * x[i+1]
			}
			dst[i] = v
		}
	}
}

// SolvePCG solves Lambda*x = b with a Jacobi-preconditioned conjugate
// gradient, starting from the zero vector, until the residual norm
// falls below tol*|b| or maxIter iterations have run. It returns the
// iteration count, the final relative residual, and whether the
// tolerance was reached. On non-convergence the best available
// iterate is left in x; the caller decides whether to warn.
func (s *System) SolvePCG(b, x []float64, tol float64, maxIter int) (iters int, resid float64, converged bool) {
	n := s.Dim()
	for i := range x {
		x[i] = 0
	}

	bNorm := math.Sqrt(floats.Dot(b, b))
	if bNorm == 0 {
		// Zero information vector: the zero surface is exact.
		return 0, 0, true
	}

	// Jacobi preconditioner. A zero diagonal entry only occurs for a
	// degenerate 1x1 grid with no observations, which the bNorm test
	// above already handled; guard anyway.
	precond := make([]float64, n)
	for i, d := range s.Diag {
		if d > 0 {
			precond[i] = 1 / d
		} else {
			precond[i] = 1
		}
	}

	r := make([]float64, n)
	copy(r, b) // r = b - Lambda*0
	z := make([]float64, n)
	floats.MulTo(z, precond, r)
	p := make([]float64, n)
	copy(p, z)
	ap := make([]float64, n)

	rz := floats.Dot(r, z)
	resid = 1.0

	for iters = 0; iters < maxIter; iters++ {
		resid = math.Sqrt(floats.Dot(r, r)) / bNorm
		if resid <= tol {
			return iters, resid, true
		}

		s.MulVec(ap, p)
		pap := floats.Dot(p, ap)
		if pap <= 0 {
			// Numerical breakdown (semi-definite direction); keep the
			// current iterate.
			return iters, resid, false
		}
		alpha := rz / pap
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, ap)

		floats.MulTo(z, precond, r)
		rzNext := floats.Dot(r, z)
		beta := rzNext / rz
		rz = rzNext

		for i := range p {
			p[i] = z[i] + beta*p[i]
		}
	}

	resid = math.Sqrt(floats.Dot(r, r)) / bNorm
	return iters, resid, resid <= tol
}
