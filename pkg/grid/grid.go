// Package grid implements the cell store backing the DEM estimator:
// a fixed-size 2D array of cells covering a bounding rectangle at a
// uniform resolution, with coordinate to cell-index mapping.
package grid

import (
	"errors"
	"fmt"
	"math"

	"demgmrf/internal/models"
)

// ErrOutOfBounds is returned when a coordinate or cell index falls
// outside the grid extent.
var ErrOutOfBounds = errors.New("coordinate outside grid extent")

// Cell holds the state of a single DEM cell. Mean and Variance are
// the current surface estimate; the information fields are the
// accumulated observation evidence consumed by the solver.
type Cell struct {
	// Mean is the current best-estimate height of the cell.
	Mean float64

	// Variance is the current uncertainty of the estimate. It keeps
	// its default value until a solve with variance estimation runs.
	Variance float64

	// InformationSum is the accumulated precision (sum of scaled
	// 1/stddev^2 contributions) of all observations fused into the cell.
	InformationSum float64

	// InformationWeightedMean is the accumulated precision-weighted
	// height sum of those observations.
	InformationWeightedMean float64
}

// Map is a fixed-extent, fixed-resolution grid of cells. The size is
// decided at construction and never changes afterward; cells are owned
// exclusively by the map.
type Map struct {
	bbox       models.BoundingBox
	resolution float64
	rows, cols int
	cells      []Cell
}

// New allocates a grid covering bbox at the given resolution, with
// every cell initialized to def. Column count is ceil(spanX/resolution)
// and row count ceil(spanY/resolution), so the grid always covers the
// full requested extent.
func New(bbox models.BoundingBox, resolution float64, def Cell) (*Map, error) {
	if resolution <= 0 {
		return nil, fmt.Errorf("resolution must be positive, got %g", resolution)
	}
	if bbox.MaxX < bbox.MinX || bbox.MaxY < bbox.MinY {
		return nil, fmt.Errorf("inverted bounding box: x=[%g,%g] y=[%g,%g]",
			bbox.MinX, bbox.MaxX, bbox.MinY, bbox.MaxY)
	}

	cols := int(math.Ceil(bbox.SpanX() / resolution))
	rows := int(math.Ceil(bbox.SpanY() / resolution))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	m := &Map{
		bbox:       bbox,
		resolution: resolution,
		rows:       rows,
		cols:       cols,
		cells:      make([]Cell, rows*cols),
	}
	for i := range m.cells {
		m.cells[i] = def
	}
	return m, nil
}

// Rows returns the number of cell rows (y direction).
func (m *Map) Rows() int { return m.rows }

// Cols returns the number of cell columns (x direction).
func (m *Map) Cols() int { return m.cols }

// Size returns the total cell count.
func (m *Map) Size() int { return len(m.cells) }

// Resolution returns the cell side length.
func (m *Map) Resolution() float64 { return m.resolution }

// Bounds returns the bounding box the grid was built for.
func (m *Map) Bounds() models.BoundingBox { return m.bbox }

// CellIndexOf maps a planar coordinate to the (row, col) of the cell
// containing it. Coordinates outside the grid extent return
// ErrOutOfBounds; the caller is expected to have expanded the bounding
// box to cover all data before building the grid.
func (m *Map) CellIndexOf(x, y float64) (row, col int, err error) {
	if !m.bbox.Contains(x, y) {
		return 0, 0, fmt.Errorf("point (%g, %g): %w", x, y, ErrOutOfBounds)
	}
	col = int((x - m.bbox.MinX) / m.resolution)
	row = int((y - m.bbox.MinY) / m.resolution)
	// Points exactly on the max edge belong to the last cell.
	if col >= m.cols {
		col = m.cols - 1
	}
	if row >= m.rows {
		row = m.rows - 1
	}
	return row, col, nil
}

// CellAt returns a mutable reference to the cell at (row, col), or
// ErrOutOfBounds for indices outside the grid.
func (m *Map) CellAt(row, col int) (*Cell, error) {
	if row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		return nil, fmt.Errorf("cell index (%d, %d) outside %dx%d grid: %w",
			row, col, m.rows, m.cols, ErrOutOfBounds)
	}
	return &m.cells[row*m.cols+col], nil
}

// Cell returns the cell at the given flat index. The flat layout is
// row-major: index = row*Cols() + col.
func (m *Map) Cell(idx int) *Cell { return &m.cells[idx] }

// FlatIndex converts (row, col) to the row-major flat index without
// bounds checking.
func (m *Map) FlatIndex(row, col int) int { return row*m.cols + col }

// CellCenter returns the planar coordinate of the center of cell
// (row, col).
func (m *Map) CellCenter(row, col int) (x, y float64) {
	x = m.bbox.MinX + (float64(col)+0.5)*m.resolution
	y = m.bbox.MinY + (float64(row)+0.5)*m.resolution
	return x, y
}
