package gmrf

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"demgmrf/internal/models"
)

// TestJacobiEstimator verifies the reciprocal-diagonal approximation.
func TestJacobiEstimator(t *testing.T) {
	m := testGrid(t, 3, 3, 1)
	e := testEstimator(t, m, Params{LambdaPrior: 2, LambdaObs: 1})
	obs := models.Observation{X: 1.5, Y: 1.5, Z: 1, StdDev: 0.5, TimeInvariant: true}
	if err := e.InsertReading(obs); err != nil {
		t.Fatalf("Failed to insert reading: %v", err)
	}

	sys := NewSystem(m, 2)
	v, err := JacobiEstimator{}.Estimate(sys)
	if err != nil {
		t.Fatalf("Jacobi estimation failed: %v", err)
	}
	for i := range v {
		want := 1 / sys.Diag[i]
		if math.Abs(v[i]-want) > 1e-15 {
			t.Errorf("Cell %d: expected %g, got %g", i, want, v[i])
		}
	}
}

// TestHutchinsonExactForDiagonalSystem verifies that with no prior
// coupling the stochastic estimator is exact: every +-1 probe yields
// z_i * z_i/Lambda_ii = 1/Lambda_ii.
func TestHutchinsonExactForDiagonalSystem(t *testing.T) {
	m := testGrid(t, 3, 3, 1)
	e := testEstimator(t, m, Params{LambdaPrior: 1, LambdaObs: 1})
	rng := rand.New(rand.NewSource(2))
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			x, y := m.CellCenter(r, c)
			obs := models.Observation{X: x, Y: y, Z: 1, StdDev: 0.1 + rng.Float64(), TimeInvariant: true}
			if err := e.InsertReading(obs); err != nil {
				t.Fatalf("Failed to insert reading: %v", err)
			}
		}
	}

	// Assemble with a zero prior so the matrix is purely diagonal.
	sys := NewSystem(m, 0)
	h := &HutchinsonEstimator{Probes: 3}
	v, err := h.Estimate(sys)
	if err != nil {
		t.Fatalf("Hutchinson estimation failed: %v", err)
	}
	for i := range v {
		want := 1 / sys.Diag[i]
		if math.Abs(v[i]-want) > 1e-7 {
			t.Errorf("Cell %d: expected %g, got %g", i, want, v[i])
		}
	}
}

// TestHutchinsonApproximatesDenseInverse compares the stochastic
// estimate against the exact inverse diagonal of a small coupled
// system, allowing for the estimator's sampling noise.
func TestHutchinsonApproximatesDenseInverse(t *testing.T) {
	m := testGrid(t, 3, 3, 1)
	e := testEstimator(t, m, Params{LambdaPrior: 0.5, LambdaObs: 1})
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			x, y := m.CellCenter(r, c)
			obs := models.Observation{X: x, Y: y, Z: 1, StdDev: 0.5, TimeInvariant: true}
			if err := e.InsertReading(obs); err != nil {
				t.Fatalf("Failed to insert reading: %v", err)
			}
		}
	}

	sys := NewSystem(m, 0.5)
	n := sys.Dim()

	var inv mat.Dense
	if err := inv.Inverse(denseFromSystem(sys)); err != nil {
		t.Fatalf("Dense inverse failed: %v", err)
	}

	h := &HutchinsonEstimator{Probes: 512, Rng: rand.New(rand.NewSource(9))}
	v, err := h.Estimate(sys)
	if err != nil {
		t.Fatalf("Hutchinson estimation failed: %v", err)
	}
	for i := 0; i < n; i++ {
		want := inv.At(i, i)
		if math.Abs(v[i]-want) > 0.5*want {
			t.Errorf("Cell %d: estimate %g too far from exact %g", i, v[i], want)
		}
	}
}

// TestUpdateWritesVariances verifies that a solve with variance
// estimation enabled replaces the default variances, and that
// SkipVariance leaves them untouched.
func TestUpdateWritesVariances(t *testing.T) {
	insert := func(skip bool) (*Estimator, *SolveReport) {
		m := testGrid(t, 3, 3, 1)
		e := testEstimator(t, m, Params{LambdaPrior: 1, LambdaObs: 1, SkipVariance: skip})
		e.Variance = JacobiEstimator{}
		obs := models.Observation{X: 1.5, Y: 1.5, Z: 5, StdDev: 0.2, TimeInvariant: true}
		if err := e.InsertReading(obs); err != nil {
			t.Fatalf("Failed to insert reading: %v", err)
		}
		report, err := e.UpdateMapEstimation()
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		return e, report
	}

	e, report := insert(false)
	if !report.VarianceEstimated {
		t.Error("Expected variance estimation to run")
	}
	center, _ := e.Grid().CellAt(1, 1)
	if center.Variance == 1.0 {
		t.Error("Variance estimation did not update the observed cell")
	}

	e, report = insert(true)
	if report.VarianceEstimated {
		t.Error("SkipVariance did not skip estimation")
	}
	center, _ = e.Grid().CellAt(1, 1)
	if center.Variance != 1.0 {
		t.Errorf("SkipVariance run modified variance: %g", center.Variance)
	}
}
