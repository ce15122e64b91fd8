// Package stl exports the fitted DEM surface as a binary STL triangle
// mesh, suitable for any standard 3D viewer.
package stl

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"demgmrf/pkg/grid"
)

// Triangle represents a single mesh triangle with its outward normal.
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// HeightField triangulates the mean surface of a solved grid: one
// vertex per cell center, two triangles per quad of adjacent centers.
type HeightField struct {
	m *grid.Map

	// scaleZ multiplies heights in the mesh, for vertical
	// exaggeration. Defaults to 1.
	scaleZ float64
}

// NewHeightField creates a mesh generator for the given grid.
func NewHeightField(m *grid.Map) *HeightField {
	return &HeightField{m: m, scaleZ: 1}
}

// SetScale sets the vertical exaggeration factor applied to heights.
func (h *HeightField) SetScale(scaleZ float64) {
	h.scaleZ = scaleZ
}

// GenerateTriangles triangulates the surface. Grids smaller than 2x2
// yield no triangles.
func (h *HeightField) GenerateTriangles() []Triangle {
	rows, cols := h.m.Rows(), h.m.Cols()
	if rows < 2 || cols < 2 {
		return nil
	}

	vertex := func(row, col int) [3]float32 {
		x, y := h.m.CellCenter(row, col)
		z := h.m.Cell(h.m.FlatIndex(row, col)).Mean * h.scaleZ
		return [3]float32{float32(x), float32(y), float32(z)}
	}

	triangles := make([]Triangle, 0, 2*(rows-1)*(cols-1))
	for row := 0; row < rows-1; row++ {
		for col := 0; col < cols-1; col++ {
			v00 := vertex(row, col)
			v10 := vertex(row, col+1)
			v01 := vertex(row+1, col)
			v11 := vertex(row+1, col+1)

			// Counter-clockwise winding seen from above, so normals
			// point upward.
			triangles = append(triangles,
				newTriangle(v00, v10, v11),
				newTriangle(v00, v11, v01),
			)
		}
	}
	return triangles
}

func newTriangle(a, b, c [3]float32) Triangle {
	u := [3]float32{b[0] - a[0], b[1] - a[1], b[2] - a[2]}
	v := [3]float32{c[0] - a[0], c[1] - a[1], c[2] - a[2]}
	n := [3]float32{
		u[1]*v[2] - u[2]*v[1],
		u[2]*v[0] - u[0]*v[2],
		u[0]*v[1] - u[1]*v[0],
	}
	mag := float32(math.Sqrt(float64(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])))
	if mag > 0 {
		n[0] /= mag
		n[1] /= mag
		n[2] /= mag
	}
	return Triangle{Normal: n, Vertex1: a, Vertex2: b, Vertex3: c}
}

// Write saves triangles as a binary STL file: an 80-byte header, a
// uint32 triangle count, then 50 bytes per triangle.
func Write(path string, triangles []Triangle) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create STL file: %v", err)
	}
	defer f.Close()

	var header [80]byte
	copy(header[:], "demgmrf height field")
	if _, err := f.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write STL header: %v", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return fmt.Errorf("failed to write STL count: %v", err)
	}

	for _, t := range triangles {
		for _, vec := range [][3]float32{t.Normal, t.Vertex1, t.Vertex2, t.Vertex3} {
			if err := binary.Write(f, binary.LittleEndian, vec); err != nil {
				return fmt.Errorf("failed to write STL triangle: %v", err)
			}
		}
		// Attribute byte count, always zero.
		if err := binary.Write(f, binary.LittleEndian, uint16(0)); err != nil {
			return fmt.Errorf("failed to write STL triangle: %v", err)
		}
	}
	return nil
}
