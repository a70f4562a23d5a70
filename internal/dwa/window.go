// Package dwa implements the dynamic-window local planner: reachable
// velocity sampling, constant-twist rollouts, trajectory scoring and the
// recovery state machine driving the control loop.
package dwa

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/navstack/internal/config"
	"github.com/banshee-data/navstack/internal/geo"
)

// Window is the rectangular grid of (v, omega) pairs reachable from the
// current twist within one lookahead horizon under the acceleration limits.
type Window struct {
	Linear  []float64
	Angular []float64
}

// NewWindow samples the reachable velocity space around the current twist.
func NewWindow(cur geo.Twist, cfg *config.NavConfig) Window {
	tau := cfg.GetLookahead()
	acc := cfg.GetMaxAcc()
	return Window{
		Linear:  axisSamples(cur.Linear, cfg.GetMinLinearVel(), cfg.GetMaxLinearVel(), acc, tau, cfg.GetResLinVelSpace()),
		Angular: axisSamples(cur.Angular, cfg.GetMinAngularVel(), cfg.GetMaxAngularVel(), acc, tau, cfg.GetResAngVelSpace()),
	}
}

// axisSamples spans the reachable interval for one velocity axis, clamped to
// the configured limits. When the current velocity is already infeasible the
// sampler falls back to the full configured range so the search space never
// collapses to nothing.
func axisSamples(cur, min, max, acc, tau float64, n int) []float64 {
	if n < 2 {
		n = 2
	}
	lo := cur - acc*tau
	hi := cur + acc*tau
	if lo > max || hi < min {
		lo, hi = min, max
	} else {
		lo = math.Max(min, lo)
		hi = math.Min(max, hi)
	}
	dst := make([]float64, n)
	floats.Span(dst, lo, hi)
	return dst
}
