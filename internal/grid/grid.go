// Package grid implements the occupancy-grid cost model shared by the global
// and local costmaps: the cell matrix itself, the soft-padding decay profiles
// and the radial padding engine.
package grid

import (
	"fmt"
	"math"

	"github.com/banshee-data/navstack/internal/geo"
)

// Cell cost values. The padded grid monotonically refines the input: values
// only ever increase, occupied cells stay occupied and unknown cells stay
// unknown.
const (
	CostUnknown   int8 = -1
	CostFree      int8 = 0
	CostForbidden int8 = 99
	CostOccupied  int8 = 100
)

// Grid is a row-major occupancy grid. Data holds one signed byte per cell:
// -1 unknown, 0 free, 1..98 graded soft cost, 99 hard-padded, 100 occupied.
type Grid struct {
	Width      int     // cells per row
	Height     int     // rows
	Resolution float64 // meters per cell

	// Origin is the world-frame pose of cell (0,0)'s corner.
	OriginX   float64
	OriginY   float64
	OriginYaw float64

	Data []int8 // len = Width*Height, index = row*Width + col
}

// New allocates a free grid of the given dimensions.
func New(width, height int, resolution float64) *Grid {
	return &Grid{
		Width:      width,
		Height:     height,
		Resolution: resolution,
		Data:       make([]int8, width*height),
	}
}

// Idx returns the flat index for a (col,row) cell. Callers must bounds-check
// with InBounds first.
func (g *Grid) Idx(col, row int) int { return row*g.Width + col }

// InBounds reports whether (col,row) addresses a cell inside the grid.
func (g *Grid) InBounds(col, row int) bool {
	return col >= 0 && col < g.Width && row >= 0 && row < g.Height
}

// At returns the cost at (col,row).
func (g *Grid) At(col, row int) int8 { return g.Data[g.Idx(col, row)] }

// Set writes the cost at (col,row).
func (g *Grid) Set(col, row int, v int8) { g.Data[g.Idx(col, row)] = v }

// WorldToCell quantises a world point onto the grid. The second return is
// false when the point falls outside the grid bounds.
func (g *Grid) WorldToCell(p geo.Point) (col, row int, ok bool) {
	col = int(math.Floor((p.X - g.OriginX) / g.Resolution))
	row = int(math.Floor((p.Y - g.OriginY) / g.Resolution))
	return col, row, g.InBounds(col, row)
}

// CellToWorld returns the world position of a cell's center.
func (g *Grid) CellToWorld(col, row int) geo.Point {
	return geo.Point{
		X: g.OriginX + (float64(col)+0.5)*g.Resolution,
		Y: g.OriginY + (float64(row)+0.5)*g.Resolution,
	}
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	out := *g
	out.Data = make([]int8, len(g.Data))
	copy(out.Data, g.Data)
	return &out
}

// Occupied returns the flat indices of all occupied cells.
func (g *Grid) Occupied() []int {
	var out []int
	for i, v := range g.Data {
		if v == CostOccupied {
			out = append(out, i)
		}
	}
	return out
}

// Validate checks structural consistency of a grid received from an external
// provider before it is adopted as the global costmap.
func (g *Grid) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("grid dimensions must be positive, got %dx%d", g.Width, g.Height)
	}
	if g.Resolution <= 0 {
		return fmt.Errorf("grid resolution must be positive, got %f", g.Resolution)
	}
	if len(g.Data) != g.Width*g.Height {
		return fmt.Errorf("grid data length %d does not match %dx%d", len(g.Data), g.Width, g.Height)
	}
	return nil
}
