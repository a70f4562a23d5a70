package grid

import (
	"fmt"
	"math"
)

// DecayLaw selects how soft-padding cost falls off with distance from the
// hard-padded core.
type DecayLaw string

const (
	DecayExponential DecayLaw = "exponential"
	DecayReciprocal  DecayLaw = "reciprocal"
	DecayLinear      DecayLaw = "linear"
)

// ParseDecayLaw validates a configured decay law name. Unknown names are a
// startup error.
func ParseDecayLaw(s string) (DecayLaw, error) {
	switch DecayLaw(s) {
	case DecayExponential, DecayReciprocal, DecayLinear:
		return DecayLaw(s), nil
	}
	return "", fmt.Errorf("unknown decay law %q (want exponential, reciprocal or linear)", s)
}

// Profile is the per-ring soft cost sequence beyond the hard-padding radius.
// Profile[i] is the cost of ring i+1. All three laws span 98 down to 1 over
// the normalised ring index.
type Profile []int8

// NewProfile precomputes the soft cost vector for a decay law. The profile
// has ceil(softDistance/resolution) entries; a non-positive soft distance
// yields an empty profile (hard padding only).
func NewProfile(law DecayLaw, softDistance, resolution float64) (Profile, error) {
	if resolution <= 0 {
		return nil, fmt.Errorf("resolution must be positive, got %f", resolution)
	}
	steps := int(math.Ceil(softDistance / resolution))
	if steps <= 0 {
		return nil, nil
	}

	out := make(Profile, steps)
	for i := 0; i < steps; i++ {
		// Normalised ring index over [0,1]; a single step sits at r=0.
		var r float64
		if steps > 1 {
			r = float64(i) / float64(steps-1)
		}
		var v float64
		switch law {
		case DecayExponential:
			v = math.Floor(100*math.Exp(-3.506*r)) - 2
		case DecayReciprocal:
			v = math.Floor(1 / (0.9898*r + 0.0102))
		case DecayLinear:
			v = math.Floor(100 - 97*r - 2)
		default:
			return nil, fmt.Errorf("unknown decay law %q", law)
		}
		if v < 1 {
			v = 1
		}
		if v > float64(CostForbidden-1) {
			v = float64(CostForbidden - 1)
		}
		out[i] = int8(v)
	}
	return out, nil
}
