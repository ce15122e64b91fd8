package gmrf

import (
	"errors"
	"math"
	"testing"

	"demgmrf/internal/models"
	"demgmrf/pkg/grid"
)

func testGrid(t *testing.T, maxX, maxY, res float64) *grid.Map {
	t.Helper()
	bbox := models.BoundingBox{MinX: 0, MaxX: maxX, MinY: 0, MaxY: maxY}
	m, err := grid.New(bbox, res, grid.Cell{Variance: 1.0})
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}
	return m
}

func testEstimator(t *testing.T, m *grid.Map, params Params) *Estimator {
	t.Helper()
	e, err := NewEstimator(m, params)
	if err != nil {
		t.Fatalf("Failed to create estimator: %v", err)
	}
	return e
}

// TestFusionSymmetry verifies the fusion law: two observations with
// equal stddev at the same cell are exactly equivalent to a single
// observation of their average with the stddev reduced by sqrt(2).
func TestFusionSymmetry(t *testing.T) {
	params := Params{LambdaPrior: 1, LambdaObs: 1, SkipVariance: true}

	m1 := testGrid(t, 4, 4, 1)
	e1 := testEstimator(t, m1, params)
	for _, z := range []float64{3.0, 5.0} {
		obs := models.Observation{X: 1.5, Y: 1.5, Z: z, StdDev: 0.4, TimeInvariant: true}
		if err := e1.InsertReading(obs); err != nil {
			t.Fatalf("Failed to insert reading: %v", err)
		}
	}

	m2 := testGrid(t, 4, 4, 1)
	e2 := testEstimator(t, m2, params)
	single := models.Observation{X: 1.5, Y: 1.5, Z: 4.0, StdDev: 0.4 / math.Sqrt(2), TimeInvariant: true}
	if err := e2.InsertReading(single); err != nil {
		t.Fatalf("Failed to insert reading: %v", err)
	}

	c1, _ := m1.CellAt(1, 1)
	c2, _ := m2.CellAt(1, 1)
	if math.Abs(c1.InformationSum-c2.InformationSum) > 1e-12 {
		t.Errorf("Information mismatch: two readings %g, single reading %g",
			c1.InformationSum, c2.InformationSum)
	}

	f1, ok1 := e1.FusedMean(1, 1)
	f2, ok2 := e2.FusedMean(1, 1)
	if !ok1 || !ok2 {
		t.Fatal("Expected fused means for the observed cell")
	}
	if math.Abs(f1-f2) > 1e-12 {
		t.Errorf("Fused mean mismatch: two readings %g, single reading %g", f1, f2)
	}
}

// TestDoubledStdDevHalvesInformation verifies the quantitative fusion
// formula: inserting the observation set twice with doubled stddevs
// yields exactly half the information of a single insertion.
func TestDoubledStdDevHalvesInformation(t *testing.T) {
	params := Params{LambdaPrior: 1, LambdaObs: 1, SkipVariance: true}
	obs := []models.Observation{
		{X: 0.5, Y: 0.5, Z: 1, StdDev: 0.2, TimeInvariant: true},
		{X: 2.5, Y: 1.5, Z: 2, StdDev: 0.5, TimeInvariant: true},
	}

	mSingle := testGrid(t, 4, 4, 1)
	eSingle := testEstimator(t, mSingle, params)
	for _, o := range obs {
		if err := eSingle.InsertReading(o); err != nil {
			t.Fatalf("Failed to insert reading: %v", err)
		}
	}

	mDouble := testGrid(t, 4, 4, 1)
	eDouble := testEstimator(t, mDouble, params)
	for pass := 0; pass < 2; pass++ {
		for _, o := range obs {
			o.StdDev *= 2
			if err := eDouble.InsertReading(o); err != nil {
				t.Fatalf("Failed to insert reading: %v", err)
			}
		}
	}

	for _, o := range obs {
		row, col, _ := mSingle.CellIndexOf(o.X, o.Y)
		cs, _ := mSingle.CellAt(row, col)
		cd, _ := mDouble.CellAt(row, col)
		if math.Abs(cd.InformationSum-0.5*cs.InformationSum) > 1e-12 {
			t.Errorf("Cell (%d, %d): expected information %g, got %g",
				row, col, 0.5*cs.InformationSum, cd.InformationSum)
		}
	}
}

// TestInsertRejectsInvalidReadings verifies the per-point error
// handling: bad stddev and out-of-extent positions are rejected,
// counted, and do not stop subsequent insertions.
func TestInsertRejectsInvalidReadings(t *testing.T) {
	m := testGrid(t, 4, 4, 1)
	e := testEstimator(t, m, Params{LambdaPrior: 1, LambdaObs: 1})

	bad := []models.Observation{
		{X: 1, Y: 1, Z: 0, StdDev: 0},
		{X: 1, Y: 1, Z: 0, StdDev: -0.5},
		{X: 99, Y: 1, Z: 0, StdDev: 0.2},
	}
	for _, o := range bad {
		if err := e.InsertReading(o); !errors.Is(err, ErrInvalidObservation) {
			t.Errorf("Observation %+v: expected ErrInvalidObservation, got %v", o, err)
		}
	}
	if e.SkippedReadings() != len(bad) {
		t.Errorf("Expected %d skipped readings, got %d", len(bad), e.SkippedReadings())
	}

	good := models.Observation{X: 1, Y: 1, Z: 2, StdDev: 0.2, TimeInvariant: true}
	if err := e.InsertReading(good); err != nil {
		t.Fatalf("Valid reading rejected after invalid ones: %v", err)
	}
}

// TestInsertDoesNotTouchEstimate verifies the accumulate-then-solve
// separation: insertion updates only the information accumulators.
func TestInsertDoesNotTouchEstimate(t *testing.T) {
	m := testGrid(t, 4, 4, 1)
	e := testEstimator(t, m, Params{LambdaPrior: 1, LambdaObs: 1})

	obs := models.Observation{X: 1.5, Y: 1.5, Z: 7, StdDev: 0.2, TimeInvariant: true}
	if err := e.InsertReading(obs); err != nil {
		t.Fatalf("Failed to insert reading: %v", err)
	}

	cell, _ := m.CellAt(1, 1)
	if cell.Mean != 0 {
		t.Errorf("Insertion modified Mean: %g", cell.Mean)
	}
	if cell.Variance != 1.0 {
		t.Errorf("Insertion modified Variance: %g", cell.Variance)
	}
	if cell.InformationSum <= 0 {
		t.Error("Insertion did not accumulate information")
	}
}

// TestNewEstimatorRejectsBadParams verifies parameter validation.
func TestNewEstimatorRejectsBadParams(t *testing.T) {
	m := testGrid(t, 2, 2, 1)
	if _, err := NewEstimator(m, Params{LambdaPrior: 0, LambdaObs: 1}); err == nil {
		t.Error("Expected error for zero prior precision")
	}
	if _, err := NewEstimator(m, Params{LambdaPrior: 1, LambdaObs: -1}); err == nil {
		t.Error("Expected error for negative observation precision scale")
	}
}
