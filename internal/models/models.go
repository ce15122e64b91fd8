package models

// Observation represents a single noisy height sample taken at a
// planar position. Observations are immutable once created: the
// estimator consumes them during insertion and does not retain them.
type Observation struct {
	// X, Y is the planar position of the sample in map units
	X, Y float64

	// Z is the measured terrain height at (X, Y)
	Z float64

	// StdDev is the standard deviation of the height measurement.
	// Must be > 0 for the observation to be accepted.
	StdDev float64

	// TimeInvariant marks the reading as a permanent feature of the
	// terrain rather than a transient measurement. All readings fused
	// into the DEM are time invariant.
	TimeInvariant bool
}

// BoundingBox is an axis-aligned planar rectangle, plus the vertical
// range of the data it was computed from. The vertical range is kept
// for reporting only and does not affect grid construction.
type BoundingBox struct {
	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
}

// Expand grows the box by the given border on every planar side and
// on the vertical range.
func (b *BoundingBox) Expand(border float64) {
	b.MinX -= border
	b.MaxX += border
	b.MinY -= border
	b.MaxY += border
	b.MinZ -= border
	b.MaxZ += border
}

// Contains reports whether the planar point (x, y) lies inside the box.
func (b *BoundingBox) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// SpanX returns the planar extent of the box along x.
func (b *BoundingBox) SpanX() float64 { return b.MaxX - b.MinX }

// SpanY returns the planar extent of the box along y.
func (b *BoundingBox) SpanY() float64 { return b.MaxY - b.MinY }

// ResidualStats summarizes a vector of checkpoint residuals
// (observed minus predicted heights).
//
// MaxErr and MinErr are computed over the raw signed residuals, not
// their absolute values. The serialized stats header labels them
// MAX_ABS_ERR and MIN_ABS_ERR for historical reasons; the signed
// behavior is deliberate so existing consumers of the stats files keep
// reading identical numbers.
type ResidualStats struct {
	// MaxErr is the largest signed residual.
	MaxErr float64

	// MinErr is the smallest signed residual.
	MinErr float64

	// Mean is the sample mean of the residuals.
	Mean float64

	// StdDev is the sample standard deviation of the residuals.
	StdDev float64

	// RMSE is the root of the mean squared residual.
	RMSE float64

	// Median is the element at index n/2 of the sorted residual
	// vector (the upper-middle element for even n).
	Median float64
}
