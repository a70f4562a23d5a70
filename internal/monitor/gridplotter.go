package monitor

import (
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/navstack/internal/grid"
	"github.com/banshee-data/navstack/internal/monitoring"
)

// costmapXYZ adapts an occupancy grid to gonum/plot's heat map interface.
// Unknown cells render below free space so they stand out as the coldest
// band.
type costmapXYZ struct {
	g *grid.Grid
}

func (c costmapXYZ) Dims() (cols, rows int) { return c.g.Width, c.g.Height }

func (c costmapXYZ) Z(col, row int) float64 {
	v := c.g.At(col, row)
	if v == grid.CostUnknown {
		return -20
	}
	return float64(v)
}

func (c costmapXYZ) X(col int) float64 {
	return c.g.OriginX + (float64(col)+0.5)*c.g.Resolution
}

func (c costmapXYZ) Y(row int) float64 {
	return c.g.OriginY + (float64(row)+0.5)*c.g.Resolution
}

// handleCostmapPNG renders the global costmap as a heat map with the most
// recent selected trajectories overlaid.
func (ws *WebServer) handleCostmapPNG(w http.ResponseWriter, r *http.Request) {
	g := ws.gen.Global()
	if g == nil {
		http.Error(w, "no global costmap loaded", http.StatusNotFound)
		return
	}

	p := plot.New()
	p.Title.Text = "global costmap"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"

	heat := plotter.NewHeatMap(costmapXYZ{g: g}, palette.Heat(16, 1))
	p.Add(heat)

	ws.mu.Lock()
	trajs := make([]dwaTrajectory, len(ws.lastTraj))
	copy(trajs, ws.lastTraj)
	ws.mu.Unlock()

	for _, traj := range trajs {
		pts := make(plotter.XYs, len(traj.Xs))
		for i := range traj.Xs {
			pts[i].X = traj.Xs[i]
			pts[i].Y = traj.Ys[i]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			continue
		}
		line.Width = vg.Points(1.5)
		p.Add(line)
	}

	img := vgimg.New(6*vg.Inch, 6*vg.Inch)
	dc := draw.New(img)
	p.Draw(dc)

	w.Header().Set("Content-Type", "image/png")
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		monitoring.Logf("[monitor] costmap png write failed: %v", err)
	}
}
