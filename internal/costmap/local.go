package costmap

import (
	"context"
	"math"
	"time"

	"github.com/banshee-data/navstack/internal/frames"
	"github.com/banshee-data/navstack/internal/geo"
	"github.com/banshee-data/navstack/internal/grid"
	"github.com/banshee-data/navstack/internal/monitoring"
	"github.com/banshee-data/navstack/internal/msg"
)

// RunLocal is the local-costmap loop. Each tick converts the latest scan into
// an ego-centered occupancy grid and a world-frame obstacle cloud, publishing
// both. It blocks until ctx is cancelled.
func (g *Generator) RunLocal(ctx context.Context) {
	period := time.Duration(float64(time.Second) / g.cfg.GetFrequency())
	monitoring.Logf("[costmap] local loop starting at %.1f Hz", g.cfg.GetFrequency())

	for ctx.Err() == nil {
		start := g.clock.Now()
		g.localTick(ctx)

		// Overruns compress the sleep to zero rather than dropping ticks.
		if remaining := period - g.clock.Since(start); remaining > 0 {
			g.clock.Sleep(remaining)
		}
	}
	monitoring.Logf("[costmap] local loop stopped")
}

// localTick performs one iteration of the local loop. It takes the mutex only
// to copy snapshots, releasing it before the transform lookup and the beam
// sweep.
func (g *Generator) localTick(ctx context.Context) {
	g.mu.Lock()
	if !g.haveScan || !g.haveOdom || g.global == nil {
		g.mu.Unlock()
		return
	}
	scan := *g.scan
	pose := g.pose
	res := g.global.Resolution
	g.mu.Unlock()

	if stale := g.clock.Since(scan.Stamp); stale > time.Duration(3*float64(time.Second)/g.cfg.GetFrequencyScan()) {
		monitoring.Tracef("[costmap] scan is %.2fs old", stale.Seconds())
	}

	start := g.clock.Now()
	length := g.cfg.GetLength()
	half := length / 2

	lookupCtx, cancel := context.WithTimeout(ctx, frames.LookupTimeout)
	sensorToWorld, err := g.chain.SensorToWorld(lookupCtx)
	cancel()
	if err != nil {
		// Recoverable: skip this tick, the loop carries on.
		monitoring.Logf("[costmap] transform unavailable, skipping tick: %v", err)
		return
	}

	// Odd side length keeps the robot on the exact center cell.
	side := int(math.Ceil(length / res))
	if side%2 == 0 {
		side++
	}
	center := side / 2

	ego := grid.New(side, side, res)
	ego.OriginX = pose.X - half
	ego.OriginY = pose.Y - half

	obstacles := make([]geo.Point, 0, len(scan.Ranges))
	for i, r := range scan.Ranges {
		if r <= 0 || math.IsInf(r, 0) || math.IsNaN(r) || r >= half {
			continue
		}
		theta := scan.AngleMin + float64(i)*scan.AngleIncrement

		// Sensor-frame return, lifted through sensor->base->odom->map.
		sin, cos := math.Sincos(theta)
		world := sensorToWorld.Apply(geo.Point{X: r * cos, Y: r * sin})
		obstacles = append(obstacles, world)

		// Ego-grid cell relative to the robot heading.
		beamSin, beamCos := math.Sincos(theta + pose.Yaw)
		col := center + int(math.Floor(r*beamCos/res))
		row := center + int(math.Floor(r*beamSin/res))
		if ego.InBounds(col, row) {
			ego.Set(col, row, grid.CostOccupied)
		}
	}

	g.mu.Lock()
	g.localObstacles = obstacles
	g.mu.Unlock()

	now := g.clock.Now()
	g.bus.Publish(msg.TopicLocalCostmap, now, msg.GridStamped{Stamp: now, Grid: ego})
	g.bus.Publish(msg.TopicLocalObstacles, now, msg.PointCloud{Stamp: now, Frame: msg.FrameMap, Points: obstacles})

	if g.cfg.GetLogTimes() {
		monitoring.Logf("[costmap] local tick took %s (%d beams kept)", g.clock.Since(start), len(obstacles))
	}
}
