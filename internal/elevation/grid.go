package elevation

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wshedlab/hydrodata/internal/domain"
)

// grid is a parsed Arc/Info ASCII raster. Rows are stored north-to-south
// as they appear in the file.
type grid struct {
	ncols    int
	nrows    int
	xll      float64 // west edge of the grid
	yll      float64 // south edge of the grid
	cellsize float64
	nodata   float64
	cells    [][]float64
}

// parseAAIGrid reads an Arc/Info ASCII grid: header lines
// (ncols, nrows, xllcorner/xllcenter, yllcorner/yllcenter, cellsize,
// NODATA_value) followed by nrows whitespace-separated data rows,
// northernmost first. Center-referenced origins are shifted to the
// cell edge so sampling always works from the corner.
func parseAAIGrid(r io.Reader) (*grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	g := &grid{nodata: -9999}
	var xCenter, yCenter bool
	var firstRow []string

	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if _, err := strconv.ParseFloat(fields[0], 64); err == nil {
			// Header keys are words; the first numeric line starts the data.
			firstRow = fields
			break
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed grid header line %q", sc.Text())
		}
		key := strings.ToLower(fields[0])
		val, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("grid header %s: %w", key, err)
		}
		switch key {
		case "ncols":
			g.ncols = int(val)
		case "nrows":
			g.nrows = int(val)
		case "xllcorner":
			g.xll = val
		case "xllcenter":
			g.xll = val
			xCenter = true
		case "yllcorner":
			g.yll = val
		case "yllcenter":
			g.yll = val
			yCenter = true
		case "cellsize":
			g.cellsize = val
		case "nodata_value":
			g.nodata = val
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read grid header: %w", err)
	}
	if g.ncols <= 0 || g.nrows <= 0 || g.cellsize <= 0 {
		return nil, fmt.Errorf("incomplete grid header (%dx%d, cellsize %g)",
			g.ncols, g.nrows, g.cellsize)
	}
	if xCenter {
		g.xll -= g.cellsize / 2
	}
	if yCenter {
		g.yll -= g.cellsize / 2
	}

	g.cells = make([][]float64, 0, g.nrows)
	appendRow := func(fields []string) error {
		if len(fields) != g.ncols {
			return fmt.Errorf("grid row %d has %d columns, want %d",
				len(g.cells), len(fields), g.ncols)
		}
		row := make([]float64, g.ncols)
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return fmt.Errorf("grid cell (%d,%d): %w", len(g.cells), i, err)
			}
			row[i] = v
		}
		g.cells = append(g.cells, row)
		return nil
	}

	if firstRow != nil {
		if err := appendRow(firstRow); err != nil {
			return nil, err
		}
	}
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if err := appendRow(fields); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read grid: %w", err)
	}
	if len(g.cells) != g.nrows {
		return nil, fmt.Errorf("grid has %d rows, header says %d", len(g.cells), g.nrows)
	}
	return g, nil
}

// sample returns the value of the cell containing (lon, lat).
func (g *grid) sample(lon, lat float64) (float64, error) {
	col := int((lon - g.xll) / g.cellsize)
	rowFromSouth := int((lat - g.yll) / g.cellsize)
	row := g.nrows - 1 - rowFromSouth

	if col < 0 || col >= g.ncols || row < 0 || row >= g.nrows {
		return 0, fmt.Errorf("%w: coordinate (%.6f, %.6f) outside the clipped grid",
			domain.ErrOutOfDomain, lon, lat)
	}

	v := g.cells[row][col]
	if v == g.nodata {
		return 0, fmt.Errorf("%w: no elevation data at (%.6f, %.6f)",
			domain.ErrOutOfDomain, lon, lat)
	}
	return v, nil
}
