package dwa

import (
	"math"

	"github.com/banshee-data/navstack/internal/config"
	"github.com/banshee-data/navstack/internal/geo"
)

// Evaluator scores candidate velocity pairs as a weighted sum of velocity,
// goal-heading, path-proximity and obstacle-proximity terms.
type Evaluator struct {
	vMin, vMax  float64
	tau         float64
	robotRadius float64
	safety      float64
	maxDec      float64

	gainVel       float64
	gainGoalAngle float64
	gainPath      float64
	gainClearance float64

	// defaultClearance is the finite obstacle cost charged when no obstacle
	// is in range: the inverse of the local costmap's reach.
	defaultClearance float64
}

// NewEvaluator builds an Evaluator from the planner configuration.
func NewEvaluator(cfg *config.NavConfig) *Evaluator {
	return &Evaluator{
		vMin:             cfg.GetMinLinearVel(),
		vMax:             cfg.GetMaxLinearVel(),
		tau:              cfg.GetLookahead(),
		robotRadius:      cfg.GetRobotDiameter() / 2,
		safety:           cfg.GetSafetyDistance(),
		maxDec:           cfg.GetMaxDec(),
		gainVel:          cfg.GetGainVel(),
		gainGoalAngle:    cfg.GetGainGoalAngle(),
		gainPath:         cfg.GetGainGlobPath(),
		gainClearance:    cfg.GetGainClearance(),
		defaultClearance: 1 / (cfg.GetLength() / 2),
	}
}

// Evaluate rolls out the pair (v, omega) from pose and returns the composite
// cost together with the sampled trajectory. An empty path yields no goal or
// path terms (the planner never evaluates without a path in practice). The
// cost is +Inf when the trajectory violates the braking clearance around any
// obstacle.
func (e *Evaluator) Evaluate(v, omega float64, pose geo.Pose, path, obstacles []geo.Point) (float64, []geo.Point) {
	traj, terminal := Rollout(v, omega, pose, e.tau, rolloutSteps)

	// Velocity term: prefer fast forward motion.
	var cVel float64
	if e.vMax > e.vMin {
		cVel = (e.vMax - v) / (e.vMax - e.vMin)
	}

	var cGoal, cPath float64
	if len(path) > 0 {
		goal := path[len(path)-1]
		alpha := math.Atan2(goal.Y-terminal.Y, goal.X-terminal.X) - terminal.Yaw
		cGoal = math.Abs(math.Atan2(math.Sin(alpha), math.Cos(alpha))) / math.Pi

		cPath = math.Inf(1)
		for _, wp := range path {
			if d := geo.Dist(wp, terminal.Position()); d < cPath {
				cPath = d
			}
		}
	}

	cObst := e.clearanceCost(v, traj, obstacles)
	if math.IsInf(cObst, 1) {
		return math.Inf(1), traj
	}

	total := e.gainVel*cVel + e.gainGoalAngle*cGoal + e.gainPath*cPath + e.gainClearance*cObst
	return total, traj
}

// clearanceCost returns +Inf when any trajectory point comes closer to an
// obstacle than the braking distance allows, the inverse minimum distance
// otherwise, and the finite default when no obstacles are known.
func (e *Evaluator) clearanceCost(v float64, traj, obstacles []geo.Point) float64 {
	if len(obstacles) == 0 {
		return e.defaultClearance
	}

	minDist := math.Inf(1)
	for _, t := range traj {
		for _, o := range obstacles {
			if d := geo.Dist(t, o); d < minDist {
				minDist = d
			}
		}
	}

	threshold := e.safety + e.robotRadius + v*v/(2*e.maxDec)
	if minDist < threshold {
		return math.Inf(1)
	}
	if minDist == 0 {
		return math.Inf(1)
	}
	return 1 / minDist
}
