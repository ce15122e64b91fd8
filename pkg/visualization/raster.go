// Package visualization exports the fitted DEM surfaces as grayscale
// raster images and plain-text matrices.
package visualization

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"demgmrf/pkg/grid"
)

// Raster renders the per-cell fields of a solved grid.
type Raster struct {
	m *grid.Map
}

// NewRaster creates a raster exporter for the given grid.
func NewRaster(m *grid.Map) *Raster {
	return &Raster{m: m}
}

// SaveMeanPNG writes the mean surface as a 16-bit grayscale PNG, with
// the height range normalized to the full gray range. Rows are written
// north-up: the last grid row is the top image row.
func (r *Raster) SaveMeanPNG(path string) error {
	return r.savePNG(path, func(c *grid.Cell) float64 { return c.Mean })
}

// SaveStdPNG writes the per-cell standard deviation surface as a
// 16-bit grayscale PNG with the same normalization as SaveMeanPNG.
func (r *Raster) SaveStdPNG(path string) error {
	return r.savePNG(path, func(c *grid.Cell) float64 { return math.Sqrt(c.Variance) })
}

// SaveMeanMatrix writes the mean surface as a whitespace-delimited
// text matrix, one grid row per line.
func (r *Raster) SaveMeanMatrix(path string) error {
	return r.saveMatrix(path, func(c *grid.Cell) float64 { return c.Mean })
}

// SaveStdMatrix writes the standard deviation surface as a text
// matrix, one grid row per line.
func (r *Raster) SaveStdMatrix(path string) error {
	return r.saveMatrix(path, func(c *grid.Cell) float64 { return math.Sqrt(c.Variance) })
}

func (r *Raster) savePNG(path string, field func(*grid.Cell) float64) error {
	rows, cols := r.m.Rows(), r.m.Cols()

	lo := math.MaxFloat64
	hi := -math.MaxFloat64
	for i := 0; i < r.m.Size(); i++ {
		v := field(r.m.Cell(i))
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}

	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			v := field(r.m.Cell(r.m.FlatIndex(row, col)))
			value := uint16(math.Max(0, math.Min(65535, (v-lo)/span*65535)))
			img.SetGray16(col, rows-1-row, color.Gray16{Y: value})
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create raster file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode raster: %v", err)
	}
	return nil
}

func (r *Raster) saveMatrix(path string, field func(*grid.Cell) float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create matrix file: %v", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for row := 0; row < r.m.Rows(); row++ {
		for col := 0; col < r.m.Cols(); col++ {
			if col > 0 {
				if _, err := w.WriteRune(' '); err != nil {
					return fmt.Errorf("failed to write matrix file: %v", err)
				}
			}
			v := field(r.m.Cell(r.m.FlatIndex(row, col)))
			if _, err := fmt.Fprintf(w, "%e", v); err != nil {
				return fmt.Errorf("failed to write matrix file: %v", err)
			}
		}
		if _, err := w.WriteRune('\n'); err != nil {
			return fmt.Errorf("failed to write matrix file: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write matrix file: %v", err)
	}
	return nil
}
