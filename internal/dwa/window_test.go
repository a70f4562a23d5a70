package dwa

import (
	"math"
	"testing"

	"github.com/banshee-data/navstack/internal/config"
	"github.com/banshee-data/navstack/internal/geo"
)

func ptrF(v float64) *float64 { return &v }
func ptrI(v int) *int         { return &v }

func windowConfig() *config.NavConfig {
	return &config.NavConfig{
		MinLinearVel:   ptrF(0.0),
		MaxLinearVel:   ptrF(0.22),
		MinAngularVel:  ptrF(-2.75),
		MaxAngularVel:  ptrF(2.75),
		MaxAcc:         ptrF(0.5),
		Lookahead:      ptrF(0.3),
		ResLinVelSpace: ptrI(5),
		ResAngVelSpace: ptrI(11),
	}
}

// From 0.20 m/s with a*tau = 0.15: the window clamps to [0.05, 0.22] and
// spans it inclusively.
func TestWindowClampsToLimits(t *testing.T) {
	w := NewWindow(geo.Twist{Linear: 0.20}, windowConfig())

	if len(w.Linear) != 5 {
		t.Fatalf("expected 5 linear samples, got %d", len(w.Linear))
	}
	if math.Abs(w.Linear[0]-0.05) > 1e-12 {
		t.Errorf("lower bound = %v, want 0.05", w.Linear[0])
	}
	if math.Abs(w.Linear[len(w.Linear)-1]-0.22) > 1e-12 {
		t.Errorf("upper bound = %v, want 0.22", w.Linear[len(w.Linear)-1])
	}
}

// No sample may fall outside the configured limits, on either axis.
func TestWindowNeverExceedsLimits(t *testing.T) {
	cfg := windowConfig()
	for _, tw := range []geo.Twist{
		{Linear: 0, Angular: 0},
		{Linear: 0.22, Angular: 2.75},
		{Linear: 0.01, Angular: -2.75},
		{Linear: 0.11, Angular: 1.0},
	} {
		w := NewWindow(tw, cfg)
		for _, v := range w.Linear {
			if v < cfg.GetMinLinearVel()-1e-12 || v > cfg.GetMaxLinearVel()+1e-12 {
				t.Fatalf("linear sample %v outside limits for twist %+v", v, tw)
			}
		}
		for _, omega := range w.Angular {
			if omega < cfg.GetMinAngularVel()-1e-12 || omega > cfg.GetMaxAngularVel()+1e-12 {
				t.Fatalf("angular sample %v outside limits for twist %+v", omega, tw)
			}
		}
	}
}

// Samples stay within a*tau of the current velocity (the reachable set).
func TestWindowReachability(t *testing.T) {
	cfg := windowConfig()
	cur := geo.Twist{Linear: 0.11, Angular: 0.5}
	w := NewWindow(cur, cfg)
	bound := cfg.GetMaxAcc()*cfg.GetLookahead() + 1e-12
	for _, v := range w.Linear {
		if math.Abs(v-cur.Linear) > bound {
			t.Fatalf("linear sample %v further than a*tau from %v", v, cur.Linear)
		}
	}
	for _, omega := range w.Angular {
		if math.Abs(omega-cur.Angular) > bound {
			t.Fatalf("angular sample %v further than a*tau from %v", omega, cur.Angular)
		}
	}
}

// An infeasible current velocity falls back to the full configured range so
// the search space never empties.
func TestWindowInfeasibleFallback(t *testing.T) {
	cfg := windowConfig()
	w := NewWindow(geo.Twist{Linear: 1.0}, cfg)
	if math.Abs(w.Linear[0]-0.0) > 1e-12 || math.Abs(w.Linear[len(w.Linear)-1]-0.22) > 1e-12 {
		t.Fatalf("fallback window = [%v, %v], want full range [0, 0.22]",
			w.Linear[0], w.Linear[len(w.Linear)-1])
	}

	w = NewWindow(geo.Twist{Linear: -1.0}, cfg)
	if math.Abs(w.Linear[0]-0.0) > 1e-12 || math.Abs(w.Linear[len(w.Linear)-1]-0.22) > 1e-12 {
		t.Fatalf("fallback below range = [%v, %v], want [0, 0.22]",
			w.Linear[0], w.Linear[len(w.Linear)-1])
	}
}
