// Package costmap owns the padded global obstacle grid and the rolling local
// grid derived from laser scans. The Generator services map-switch, clear and
// local-absorption requests and runs the local-costmap loop feeding the
// planner with world-frame obstacles.
package costmap

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/banshee-data/navstack/internal/bus"
	"github.com/banshee-data/navstack/internal/config"
	"github.com/banshee-data/navstack/internal/frames"
	"github.com/banshee-data/navstack/internal/geo"
	"github.com/banshee-data/navstack/internal/grid"
	"github.com/banshee-data/navstack/internal/monitoring"
	"github.com/banshee-data/navstack/internal/msg"
	"github.com/banshee-data/navstack/internal/timeutil"
)

// ErrBadCommand is returned when a service is invoked with a command string
// it does not accept. No state changes in that case.
var ErrBadCommand = errors.New("unrecognised service command")

// MapProvider supplies occupancy grids by id. Startup failures are fatal;
// failures during switch/clear leave the previous grid in place.
type MapProvider interface {
	GetMap(ctx context.Context, id int) (*grid.Grid, error)
}

// Generator maintains the global costmap and the scan-derived local state.
// All shared state sits behind one coarse mutex; sensor callbacks are short
// critical sections and the loops copy snapshots before computing.
type Generator struct {
	cfg      *config.NavConfig
	provider MapProvider
	bus      *bus.Bus
	clock    timeutil.Clock
	chain    *frames.Chain

	mu             sync.Mutex
	global         *grid.Grid
	mapID          int
	padder         *grid.Padder
	scan           *msg.LaserScan
	pose           geo.Pose
	twist          geo.Twist
	haveScan       bool
	haveOdom       bool
	localObstacles []geo.Point
}

// New wires a Generator. Call Startup before starting the local loop.
func New(cfg *config.NavConfig, provider MapProvider, b *bus.Bus, clock timeutil.Clock, chain *frames.Chain) *Generator {
	b.Latch(msg.TopicGlobalCostmap)
	return &Generator{
		cfg:      cfg,
		provider: provider,
		bus:      b,
		clock:    clock,
		chain:    chain,
	}
}

// Startup fetches the initial map, pads it and publishes the latched global
// costmap. A provider failure here is fatal to the process.
func (g *Generator) Startup(ctx context.Context) error {
	id := g.cfg.GetInitMapNr()
	if err := g.loadAndPublish(ctx, id); err != nil {
		return fmt.Errorf("initial map %d: %w", id, err)
	}
	return nil
}

// SwitchMap replaces the stored grid with map id from the provider, re-pads
// and republishes. The previous grid is preserved on failure.
func (g *Generator) SwitchMap(ctx context.Context, id int) error {
	if err := g.loadAndPublish(ctx, id); err != nil {
		return fmt.Errorf("switch to map %d: %w", id, err)
	}
	monitoring.Logf("[costmap] switched to map %d", id)
	return nil
}

// ClearMap refetches the current map, wiping any absorbed local obstacles.
// Only the command "clear" is accepted.
func (g *Generator) ClearMap(ctx context.Context, command string) error {
	if command != "clear" {
		return ErrBadCommand
	}
	g.mu.Lock()
	id := g.mapID
	g.mu.Unlock()
	if err := g.loadAndPublish(ctx, id); err != nil {
		return fmt.Errorf("clear map %d: %w", id, err)
	}
	monitoring.Logf("[costmap] cleared map %d", id)
	return nil
}

// AddLocalMap absorbs the most recent local-obstacle set into the global
// costmap: each point is quantised onto the grid, marked occupied and padded
// in place. Out-of-bounds points are skipped silently. Only the command
// "stuck" is accepted.
func (g *Generator) AddLocalMap(ctx context.Context, command string) error {
	if command != "stuck" {
		return ErrBadCommand
	}

	g.mu.Lock()
	if g.global == nil {
		g.mu.Unlock()
		return errors.New("no global costmap loaded")
	}
	absorbed := 0
	for _, p := range g.localObstacles {
		col, row, ok := g.global.WorldToCell(p)
		if !ok {
			continue
		}
		g.global.Set(col, row, grid.CostOccupied)
		g.padder.PadCell(g.global, col, row)
		absorbed++
	}
	snapshot := g.global.Clone()
	g.mu.Unlock()

	monitoring.Logf("[costmap] absorbed %d local obstacle points into global map", absorbed)
	g.bus.Publish(msg.TopicGlobalCostmap, g.clock.Now(), msg.GridStamped{Stamp: g.clock.Now(), Grid: snapshot})
	return nil
}

// OnScan records the latest laser scan. Called from the scan subscription.
func (g *Generator) OnScan(s msg.LaserScan) {
	g.mu.Lock()
	g.scan = &s
	g.haveScan = true
	g.mu.Unlock()
}

// OnOdom records the latest robot state. Only this callback writes the pose.
func (g *Generator) OnOdom(o msg.Odometry) {
	g.mu.Lock()
	g.pose = o.Pose()
	g.twist = o.Twist()
	g.haveOdom = true
	g.mu.Unlock()
}

// Global returns a copy of the current global costmap, or nil before startup.
func (g *Generator) Global() *grid.Grid {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.global == nil {
		return nil
	}
	return g.global.Clone()
}

// MapID returns the id of the currently loaded map.
func (g *Generator) MapID() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mapID
}

// LocalObstacles returns the most recent world-frame obstacle set.
func (g *Generator) LocalObstacles() []geo.Point {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]geo.Point, len(g.localObstacles))
	copy(out, g.localObstacles)
	return out
}

// loadAndPublish fetches a map, pads it and adopts it as the global costmap.
// The stored grid is only replaced once the provider call and validation
// succeed.
func (g *Generator) loadAndPublish(ctx context.Context, id int) error {
	fetched, err := g.provider.GetMap(ctx, id)
	if err != nil {
		return fmt.Errorf("map provider: %w", err)
	}
	if err := fetched.Validate(); err != nil {
		return fmt.Errorf("map provider returned invalid grid: %w", err)
	}

	padder, err := g.newPadder(fetched.Resolution)
	if err != nil {
		return err
	}
	padded := fetched.Clone()
	padder.Pad(padded)

	g.mu.Lock()
	g.global = padded
	g.mapID = id
	g.padder = padder
	snapshot := padded.Clone()
	g.mu.Unlock()

	g.bus.Publish(msg.TopicGlobalCostmap, g.clock.Now(), msg.GridStamped{Stamp: g.clock.Now(), Grid: snapshot})
	return nil
}

// newPadder builds the padding masks for a map resolution from the costmap
// configuration: hard radius covers the robot footprint plus the safety
// margin, soft rings follow the configured decay law.
func (g *Generator) newPadder(resolution float64) (*grid.Padder, error) {
	law, err := grid.ParseDecayLaw(g.cfg.GetDecayType())
	if err != nil {
		return nil, err
	}
	var profile grid.Profile
	if g.cfg.GetApplySoftPadding() {
		profile, err = grid.NewProfile(law, g.cfg.GetDecayDistance(), resolution)
		if err != nil {
			return nil, err
		}
	}
	hardMeters := g.cfg.GetRobotDiameter()/2 + g.cfg.GetSafetyDistance()
	hardRadius := int(math.Ceil(hardMeters / resolution))
	return grid.NewPadder(hardRadius, int8(g.cfg.GetPaddedVal()), profile), nil
}
