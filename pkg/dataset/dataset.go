// Package dataset loads XYZ point files, computes data bounds, splits
// points into insertion and checkpoint subsets, and writes the point
// list outputs.
package dataset

import (
	"bufio"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"demgmrf/internal/models"
)

// DefaultBorder is how far the bounding box is expanded beyond the raw
// data extent before the grid is built, in map units.
const DefaultBorder = 10.0

// zSentinel marks no-data heights in some raster exports; such values
// are kept as points but ignored when computing the vertical range.
const zSentinel = 1e6

// Dataset is an in-memory point cloud loaded from a text file.
type Dataset struct {
	// Points holds every parsed observation. When the file had no
	// stddev column, each point carries the default stddev passed to
	// Load.
	Points []models.Observation

	// PerPointStdDev is true when the file supplied a 4th column with
	// an individual stddev per point.
	PerPointStdDev bool
}

// Load parses a plain-text point file. Each row is `x y z` or
// `x y z stddev`, delimited by whitespace and/or commas; blank lines
// and lines starting with '%' or '#' are skipped. Rows with fewer than
// 3 columns, or a column count differing from the first data row, are
// a fatal input error. defaultStdDev is assigned to every point of a
// 3-column file.
func Load(path string, defaultStdDev float64) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening dataset: %w", err)
	}
	defer f.Close()

	d := &Dataset{}
	nCols := 0

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "%") || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ','
		})
		if nCols == 0 {
			if len(fields) < 3 {
				return nil, fmt.Errorf("line %d: expected at least 3 columns, got %d", lineNo, len(fields))
			}
			nCols = len(fields)
		} else if len(fields) != nCols {
			return nil, fmt.Errorf("line %d: expected %d columns, got %d", lineNo, nCols, len(fields))
		}

		vals := make([]float64, len(fields))
		for i, s := range fields {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad number %q: %w", lineNo, s, err)
			}
			vals[i] = v
		}

		obs := models.Observation{
			X:             vals[0],
			Y:             vals[1],
			Z:             vals[2],
			StdDev:        defaultStdDev,
			TimeInvariant: true,
		}
		if nCols >= 4 {
			obs.StdDev = vals[3]
		}
		d.Points = append(d.Points, obs)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("error reading dataset: %w", err)
	}
	if len(d.Points) == 0 {
		return nil, fmt.Errorf("dataset %s contains no points", path)
	}
	d.PerPointStdDev = nCols >= 4
	return d, nil
}

// Bounds computes the axis-aligned bounding box of the points,
// expanded by border on every side. Heights with |z| >= 1e6 are
// treated as no-data sentinels and excluded from the vertical range.
func (d *Dataset) Bounds(border float64) models.BoundingBox {
	bb := models.BoundingBox{
		MinX: math.MaxFloat64, MaxX: -math.MaxFloat64,
		MinY: math.MaxFloat64, MaxY: -math.MaxFloat64,
		MinZ: math.MaxFloat64, MaxZ: -math.MaxFloat64,
	}
	for _, p := range d.Points {
		bb.MinX = math.Min(bb.MinX, p.X)
		bb.MaxX = math.Max(bb.MaxX, p.X)
		bb.MinY = math.Min(bb.MinY, p.Y)
		bb.MaxY = math.Max(bb.MaxY, p.Y)
		if math.Abs(p.Z) < zSentinel {
			bb.MinZ = math.Min(bb.MinZ, p.Z)
			bb.MaxZ = math.Max(bb.MaxZ, p.Z)
		}
	}
	bb.Expand(border)
	return bb
}

// Split shuffles the point indices with rng and withholds
// round(ratio*N) points as checkpoints, returning the remaining points
// for insertion. ratio must lie in [0, 1]. The shuffle order is fully
// determined by rng, so a seeded generator makes the split
// reproducible.
func (d *Dataset) Split(rng *rand.Rand, ratio float64) (insert, checkpoints []models.Observation, err error) {
	if ratio < 0 || ratio > 1 {
		return nil, nil, fmt.Errorf("checkpoint ratio must be in [0,1], got %g", ratio)
	}
	n := len(d.Points)
	indices := rng.Perm(n)
	nChk := int(math.Round(ratio * float64(n)))
	nIns := n - nChk

	insert = make([]models.Observation, 0, nIns)
	checkpoints = make([]models.Observation, 0, nChk)
	for k, i := range indices {
		if k < nIns {
			insert = append(insert, d.Points[i])
		} else {
			checkpoints = append(checkpoints, d.Points[i])
		}
	}
	return insert, checkpoints, nil
}

// SavePoints writes points as `x, y, z` rows, the format used by the
// _pts_map and _pts_chk output files.
func SavePoints(path string, pts []models.Observation) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating points file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, p := range pts {
		if _, err := fmt.Fprintf(w, "%f, %f, %f\n", p.X, p.Y, p.Z); err != nil {
			return fmt.Errorf("error writing points file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("error writing points file: %w", err)
	}
	return nil
}
