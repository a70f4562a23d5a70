package grid

// cellOffset is a mask offset relative to an occupied cell.
type cellOffset struct {
	dc int
	dr int
}

// Padder imprints a radial cost disk around every occupied cell. The disk is
// precomputed once as per-ring offset lists: ring 0 covers all cells within
// the hard radius, ring i the cells at exactly hardRadius+i. Ring membership
// uses L1 (Manhattan) cell distance, which keeps the stamped footprint the
// diamond the rest of the stack expects.
type Padder struct {
	hardRadius int
	hardVal    int8
	profile    Profile
	rings      [][]cellOffset // rings[0] = hard disk, rings[i] = soft ring i
}

// NewPadder builds the stamp masks for a hard radius (cells), a hard cost
// value and a soft decay profile. A hardVal outside [1,99] is clamped to 99.
func NewPadder(hardRadius int, hardVal int8, profile Profile) *Padder {
	if hardVal < 1 || hardVal > CostForbidden {
		hardVal = CostForbidden
	}
	if hardRadius < 0 {
		hardRadius = 0
	}

	maxDist := hardRadius + len(profile)
	rings := make([][]cellOffset, len(profile)+1)
	for dr := -maxDist; dr <= maxDist; dr++ {
		for dc := -maxDist; dc <= maxDist; dc++ {
			d := absInt(dc) + absInt(dr)
			if d > maxDist {
				continue
			}
			ring := 0
			if d > hardRadius {
				ring = d - hardRadius
			}
			rings[ring] = append(rings[ring], cellOffset{dc: dc, dr: dr})
		}
	}

	return &Padder{
		hardRadius: hardRadius,
		hardVal:    hardVal,
		profile:    profile,
		rings:      rings,
	}
}

// Pad applies the padding disk around every occupied cell of g, in place.
// Each write is an upper-bounded max-lift, so the iteration order of occupied
// cells cannot affect the result and padding an already-padded grid is a
// no-op.
func (p *Padder) Pad(g *Grid) {
	for _, idx := range g.Occupied() {
		p.PadCell(g, idx%g.Width, idx/g.Width)
	}
}

// PadCell stamps the padding disk centered on a single cell. Writes outside
// the grid bounds are dropped; unknown cells are never overwritten; no cell
// value ever decreases.
func (p *Padder) PadCell(g *Grid, col, row int) {
	for _, off := range p.rings[0] {
		p.lift(g, col+off.dc, row+off.dr, p.hardVal)
	}
	for i, d := range p.profile {
		for _, off := range p.rings[i+1] {
			p.lift(g, col+off.dc, row+off.dr, d)
		}
	}
}

// lift raises a cell to v if the cell exists, is known, and currently holds a
// smaller value.
func (p *Padder) lift(g *Grid, col, row int, v int8) {
	if !g.InBounds(col, row) {
		return
	}
	i := g.Idx(col, row)
	if cur := g.Data[i]; cur > CostUnknown && cur < v {
		g.Data[i] = v
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
