package dwa

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/navstack/internal/bus"
	"github.com/banshee-data/navstack/internal/config"
	"github.com/banshee-data/navstack/internal/geo"
	"github.com/banshee-data/navstack/internal/monitoring"
	"github.com/banshee-data/navstack/internal/msg"
	"github.com/banshee-data/navstack/internal/timeutil"
)

// Absorber is the costmap service invoked when the planner detects a stuck
// condition.
type Absorber interface {
	AddLocalMap(ctx context.Context, command string) error
}

// Status is a snapshot of the planner for monitoring and telemetry. It is
// published on the planner-status topic on every tick that runs with an
// active plan, including the tick that ends the plan by recovery or by
// reaching the goal. Activating a plan publishes no status by itself.
type Status struct {
	Stamp        time.Time   `json:"stamp"`
	PlanID       string      `json:"plan_id"`
	Active       bool        `json:"active"`
	Pose         geo.Pose    `json:"pose"`
	Goal         geo.Point   `json:"goal"`
	Best         geo.Twist   `json:"best"`
	BestCost     float64     `json:"best_cost"`
	PathLength   int         `json:"path_length"`
	ObstacleN    int         `json:"obstacles"`
	TickCount    uint64      `json:"tick_count"`
	LowVelCount  int         `json:"low_vel_count"`
	CirclePos    int         `json:"circle_pos_count"`
	CircleNeg    int         `json:"circle_neg_count"`
	PathTicks    int         `json:"path_ticks"`
	LastRecovery string      `json:"last_recovery,omitempty"`
	Trajectory   []geo.Point `json:"-"`
}

// Planner runs the dynamic-window control loop: sample the reachable
// velocity space, score every pair against the path and the live obstacles,
// publish the best command and watch for stuck conditions.
type Planner struct {
	cfg      *config.NavConfig
	bus      *bus.Bus
	clock    timeutil.Clock
	absorber Absorber
	eval     *Evaluator
	dt       time.Duration

	mu           sync.Mutex
	pose         geo.Pose
	twist        geo.Twist
	havePose     bool
	path         []geo.Point
	goal         geo.Point
	active       bool
	planID       string
	obstacles    []geo.Point
	rec          *recovery
	tickCount    uint64
	lastRecovery string
	lastStatus   Status
}

// New wires a Planner. The absorber may be nil in tests that do not exercise
// recovery side effects.
func New(cfg *config.NavConfig, b *bus.Bus, clock timeutil.Clock, absorber Absorber) *Planner {
	dt := time.Duration(float64(time.Second) / cfg.GetFrequencyDWA())
	return &Planner{
		cfg:      cfg,
		bus:      b,
		clock:    clock,
		absorber: absorber,
		eval:     NewEvaluator(cfg),
		dt:       dt,
		rec:      newRecovery(cfg, dt.Seconds()),
	}
}

// OnOdom records the robot state. Only this callback writes the pose.
func (p *Planner) OnOdom(o msg.Odometry) {
	p.mu.Lock()
	p.pose = o.Pose()
	p.twist = o.Twist()
	p.havePose = true
	p.mu.Unlock()
}

// OnPath atomically replaces the global path and activates the plan. An
// empty path leaves the planner idle.
func (p *Planner) OnPath(path msg.Path) {
	if len(path.Waypoints) == 0 {
		monitoring.Logf("[dwa] received empty path, staying idle")
		return
	}
	wps := make([]geo.Point, len(path.Waypoints))
	copy(wps, path.Waypoints)

	p.mu.Lock()
	p.path = wps
	p.goal = wps[len(wps)-1]
	p.active = true
	p.planID = uuid.New().String()
	p.lastRecovery = ""
	p.rec.Reset()
	id := p.planID
	p.mu.Unlock()

	monitoring.Logf("[dwa] plan %s activated with %d waypoints", id, len(wps))
}

// OnObstacles records the latest world-frame obstacle set from the costmap
// generator.
func (p *Planner) OnObstacles(pc msg.PointCloud) {
	pts := make([]geo.Point, len(pc.Points))
	copy(pts, pc.Points)
	p.mu.Lock()
	p.obstacles = pts
	p.mu.Unlock()
}

// Status returns the most recent planner snapshot.
func (p *Planner) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastStatus
}

// Run executes the planner loop until ctx is cancelled. A zero twist is
// always published on exit so the robot never keeps the last command.
func (p *Planner) Run(ctx context.Context) {
	monitoring.Logf("[dwa] planner loop starting at %.1f Hz", p.cfg.GetFrequencyDWA())
	defer p.publishTwist(geo.Zero)

	for ctx.Err() == nil {
		start := p.clock.Now()
		p.Tick(ctx)
		if remaining := p.dt - p.clock.Since(start); remaining > 0 {
			p.clock.Sleep(remaining)
		}
	}
	monitoring.Logf("[dwa] planner loop stopped")
}

// Tick performs one planner iteration. Exported so tests and tools can step
// the planner without the loop's timing.
func (p *Planner) Tick(ctx context.Context) {
	start := p.clock.Now()

	p.mu.Lock()
	if !p.active || !p.havePose {
		p.mu.Unlock()
		return
	}
	pose := p.pose
	twist := p.twist
	path := p.path
	obstacles := p.obstacles
	goal := p.goal
	planID := p.planID
	p.mu.Unlock()

	// Sweep the dynamic window for the cheapest pair.
	w := NewWindow(twist, p.cfg)
	bestCost := math.Inf(1)
	bestV, bestOmega := w.Linear[0], w.Angular[0]
	var bestTraj []geo.Point
	for _, v := range w.Linear {
		for _, omega := range w.Angular {
			c, traj := p.eval.Evaluate(v, omega, pose, path, obstacles)
			if c < bestCost || bestTraj == nil {
				bestCost = c
				bestV, bestOmega = v, omega
				bestTraj = traj
			}
		}
	}

	p.mu.Lock()
	p.tickCount++
	triggered, reason := p.rec.Update(bestV, bestOmega, len(path))
	if triggered {
		p.active = false
		p.lastRecovery = reason
		p.captureStatusLocked(pose, goal, geo.Twist{Linear: bestV, Angular: bestOmega}, bestCost, len(path), len(obstacles), bestTraj)
		p.mu.Unlock()

		monitoring.Logf("[dwa] plan %s recovery triggered: %s", planID, reason)
		p.publishTwist(geo.Zero)
		p.recover(ctx, goal)
		p.publishStatus()
		return
	}
	p.captureStatusLocked(pose, goal, geo.Twist{Linear: bestV, Angular: bestOmega}, bestCost, len(path), len(obstacles), bestTraj)
	p.mu.Unlock()

	// Command first, then visualisation.
	p.publishTwist(geo.Twist{Linear: bestV, Angular: bestOmega})
	now := p.clock.Now()
	p.bus.Publish(msg.TopicPlanMarker, now, msg.Marker{Stamp: now, Frame: msg.FrameMap, Points: bestTraj})
	p.publishStatus()

	if geo.Dist(pose.Position(), goal) < p.cfg.GetMinDistGoal() {
		p.mu.Lock()
		p.active = false
		p.rec.Reset()
		p.captureStatusLocked(pose, goal, geo.Zero, 0, len(path), len(obstacles), nil)
		p.mu.Unlock()

		monitoring.Logf("[dwa] plan %s complete: goal reached", planID)
		p.publishTwist(geo.Zero)
		p.publishStatus()
	}

	if p.cfg.GetLogTimes() {
		monitoring.Logf("[dwa] tick took %s", p.clock.Since(start))
	}
}

// recover absorbs the transient obstacles into the global costmap and
// republishes the goal so the global planner can replan around them.
func (p *Planner) recover(ctx context.Context, goal geo.Point) {
	if p.absorber != nil {
		if err := p.absorber.AddLocalMap(ctx, "stuck"); err != nil {
			monitoring.Logf("[dwa] local map absorption failed: %v", err)
		}
	}
	p.bus.Publish(msg.TopicGoal, p.clock.Now(), goal)
}

func (p *Planner) publishTwist(t geo.Twist) {
	p.bus.Publish(msg.TopicCmdVel, p.clock.Now(), t)
}

func (p *Planner) publishStatus() {
	p.mu.Lock()
	st := p.lastStatus
	p.mu.Unlock()
	p.bus.Publish(msg.TopicPlannerStatus, st.Stamp, st)
}

// captureStatusLocked refreshes lastStatus. Caller holds p.mu.
func (p *Planner) captureStatusLocked(pose geo.Pose, goal geo.Point, best geo.Twist, cost float64, pathLen, obstacleN int, traj []geo.Point) {
	lowVel, cPos, cNeg, pathTicks := p.rec.Counters()
	p.lastStatus = Status{
		Stamp:        p.clock.Now(),
		PlanID:       p.planID,
		Active:       p.active,
		Pose:         pose,
		Goal:         goal,
		Best:         best,
		BestCost:     cost,
		PathLength:   pathLen,
		ObstacleN:    obstacleN,
		TickCount:    p.tickCount,
		LowVelCount:  lowVel,
		CirclePos:    cPos,
		CircleNeg:    cNeg,
		PathTicks:    pathTicks,
		LastRecovery: p.lastRecovery,
		Trajectory:   traj,
	}
}
