package dwa

import (
	"math"

	"github.com/banshee-data/navstack/internal/config"
)

// Recovery reasons reported by the state machine.
const (
	RecoverLowVelocity = "low_velocity"
	RecoverCircling    = "circling"
	RecoverPathTimeout = "path_timeout"
)

// recovery tracks the three stuck conditions across planner ticks. It is not
// safe for concurrent use; the planner owns it under its mutex.
type recovery struct {
	dt             float64
	minLinVel      float64
	lowVelLimit    int
	circlingLimit  int
	pathTimeFactor float64
	pathMinLength  int

	lowVel    int
	circlePos int
	circleNeg int
	pathTicks int
}

func newRecovery(cfg *config.NavConfig, dt float64) *recovery {
	return &recovery{
		dt:             dt,
		minLinVel:      cfg.GetRecMinLinVel(),
		lowVelLimit:    int(cfg.GetRecMinLinVelTime() / dt),
		circlingLimit:  int(cfg.GetRecCirclingTime() / dt),
		pathTimeFactor: cfg.GetRecPathTimeFactor(),
		pathMinLength:  cfg.GetRecPathLength(),
	}
}

// Update advances the counters with this tick's selected command and reports
// whether a stuck condition fired. All counters reset on trigger.
func (r *recovery) Update(bestV, bestOmega float64, pathLen int) (bool, string) {
	// Low-velocity stall: consecutive ticks below the recovery threshold.
	if bestV < r.minLinVel {
		r.lowVel++
	} else {
		r.lowVel = 0
	}

	// Circling: the selected turn direction never changes sign.
	switch {
	case bestOmega > 0:
		r.circlePos++
		r.circleNeg = 0
	case bestOmega < 0:
		r.circleNeg++
		r.circlePos = 0
	default:
		r.circlePos = 0
		r.circleNeg = 0
	}

	// Path timeout: the plan has been active longer than its length warrants.
	r.pathTicks++

	switch {
	case r.lowVelLimit > 0 && r.lowVel >= r.lowVelLimit:
		r.Reset()
		return true, RecoverLowVelocity
	case r.circlingLimit > 0 && (r.circlePos >= r.circlingLimit || r.circleNeg >= r.circlingLimit):
		r.Reset()
		return true, RecoverCircling
	case pathLen > r.pathMinLength && r.pathTicks >= int(math.Floor(r.pathTimeFactor*float64(pathLen)/r.dt)):
		r.Reset()
		return true, RecoverPathTimeout
	}
	return false, ""
}

// Reset clears every counter. Called on trigger, on goal-reached and when a
// new plan activates.
func (r *recovery) Reset() {
	r.lowVel = 0
	r.circlePos = 0
	r.circleNeg = 0
	r.pathTicks = 0
}

// Counters exposes the current counter values for status reporting.
func (r *recovery) Counters() (lowVel, circlePos, circleNeg, pathTicks int) {
	return r.lowVel, r.circlePos, r.circleNeg, r.pathTicks
}
