package dwa

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/navstack/internal/bus"
	"github.com/banshee-data/navstack/internal/config"
	"github.com/banshee-data/navstack/internal/geo"
	"github.com/banshee-data/navstack/internal/msg"
	"github.com/banshee-data/navstack/internal/timeutil"
)

// fakeAbsorber records add_local_map invocations.
type fakeAbsorber struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeAbsorber) AddLocalMap(ctx context.Context, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, command)
	return nil
}

func (f *fakeAbsorber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func plannerConfig() *config.NavConfig {
	cfg := evalConfig()
	cfg.MinDistGoal = ptrF(0.1)
	cfg.FrequencyDWA = ptrF(10.0)
	cfg.RecMinLinVel = ptrF(0.05)
	cfg.RecMinLinVelTime = ptrF(2.0)
	cfg.RecCirclingTime = ptrF(3.0)
	cfg.RecPathTimeFactor = ptrF(3.0)
	cfg.RecPathLength = ptrI(10)
	return cfg
}

func odomAt(x, y, yaw float64) msg.Odometry {
	return msg.Odometry{
		X:     x,
		Y:     y,
		QuatZ: math.Sin(yaw / 2),
		QuatW: math.Cos(yaw / 2),
	}
}

// drainTwists subscribes to /cmd_vel and returns a getter for published
// twists.
func drainTwists(t *testing.T, b *bus.Bus) func() []geo.Twist {
	t.Helper()
	ch, cancel := b.Subscribe(msg.TopicCmdVel, 1024)
	t.Cleanup(cancel)
	return func() []geo.Twist {
		var out []geo.Twist
		for {
			select {
			case m := <-ch:
				if tw, ok := m.Payload.(geo.Twist); ok {
					out = append(out, tw)
				}
			default:
				return out
			}
		}
	}
}

// Within min_dist_goal of the path's last point the planner publishes a zero
// twist, deactivates and resets the counters.
func TestGoalReached(t *testing.T) {
	b := bus.New()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	p := New(plannerConfig(), b, clock, nil)
	twists := drainTwists(t, b)

	p.OnOdom(odomAt(1.0, 1.0, 0))
	p.OnPath(msg.Path{Waypoints: []geo.Point{{X: 1.05, Y: 1.05}}})
	p.Tick(context.Background())

	st := p.Status()
	if st.Active {
		t.Fatalf("planner still active after reaching the goal")
	}
	if st.LowVelCount != 0 || st.CirclePos != 0 || st.CircleNeg != 0 || st.PathTicks != 0 {
		t.Fatalf("counters not reset: %+v", st)
	}

	got := twists()
	if len(got) == 0 {
		t.Fatalf("no twist published")
	}
	last := got[len(got)-1]
	if last.Linear != 0 || last.Angular != 0 {
		t.Fatalf("last twist = %+v, want zero", last)
	}

	// Goal-reached latches: further ticks publish nothing new.
	p.Tick(context.Background())
	if extra := twists(); len(extra) != 0 {
		t.Fatalf("idle planner published %d twists", len(extra))
	}
}

// Every published command stays inside the configured velocity limits.
func TestPublishedTwistWithinLimits(t *testing.T) {
	cfg := plannerConfig()
	b := bus.New()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	p := New(cfg, b, clock, nil)
	twists := drainTwists(t, b)

	p.OnOdom(odomAt(0, 0, 0))
	p.OnPath(msg.Path{Waypoints: []geo.Point{{X: 3, Y: 1}, {X: 5, Y: 2}}})
	for i := 0; i < 10; i++ {
		p.Tick(context.Background())
	}

	for _, tw := range twists() {
		if tw.Linear < cfg.GetMinLinearVel()-1e-12 || tw.Linear > cfg.GetMaxLinearVel()+1e-12 {
			t.Fatalf("linear command %v outside limits", tw.Linear)
		}
		if tw.Angular < cfg.GetMinAngularVel()-1e-12 || tw.Angular > cfg.GetMaxAngularVel()+1e-12 {
			t.Fatalf("angular command %v outside limits", tw.Angular)
		}
	}
}

// Twenty consecutive ticks with v* below rec_min_lin_vel trigger the stall
// recovery exactly once: one absorption call and one goal republish.
func TestStallRecovery(t *testing.T) {
	cfg := plannerConfig()
	// Cap the velocity space below the recovery threshold so every selected
	// command counts as a stall.
	cfg.MaxLinearVel = ptrF(0.04)

	b := bus.New()
	goalCh, cancelGoal := b.Subscribe(msg.TopicGoal, 16)
	defer cancelGoal()

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	absorber := &fakeAbsorber{}
	p := New(cfg, b, clock, absorber)

	p.OnOdom(odomAt(0, 0, 0))
	p.OnPath(msg.Path{Waypoints: []geo.Point{{X: 5, Y: 0}}})

	for i := 0; i < 19; i++ {
		p.Tick(context.Background())
		if absorber.count() != 0 {
			t.Fatalf("recovery fired early at tick %d", i+1)
		}
	}
	p.Tick(context.Background())

	if absorber.count() != 1 {
		t.Fatalf("absorber called %d times, want 1", absorber.count())
	}
	if len(absorber.calls) != 1 || absorber.calls[0] != "stuck" {
		t.Fatalf("absorber calls = %v", absorber.calls)
	}
	if p.Status().Active {
		t.Fatalf("planner still active after recovery")
	}
	if p.Status().LastRecovery != RecoverLowVelocity {
		t.Fatalf("recovery reason = %q", p.Status().LastRecovery)
	}

	select {
	case m := <-goalCh:
		goal, ok := m.Payload.(geo.Point)
		if !ok || goal.X != 5 || goal.Y != 0 {
			t.Fatalf("republished goal = %#v", m.Payload)
		}
	default:
		t.Fatalf("goal not republished")
	}

	// Idle after the trigger: no further absorption.
	for i := 0; i < 30; i++ {
		p.Tick(context.Background())
	}
	if absorber.count() != 1 {
		t.Fatalf("absorber called again while idle")
	}
}

// Thirty consecutive ticks with omega* > 0 trigger the circling recovery;
// the opposite-sign counter stays zero throughout.
func TestCirclingRecovery(t *testing.T) {
	cfg := plannerConfig()
	// Disable the stall trigger and force purely rotational preference: only
	// the goal-heading gain is active and the goal sits straight behind the
	// left shoulder.
	cfg.RecMinLinVel = ptrF(0)
	cfg.GainVel = ptrF(0)
	cfg.GainGlobPath = ptrF(0)
	cfg.GainClearance = ptrF(0)
	cfg.MinAngularVel = ptrF(0.5) // every candidate turns left
	cfg.MaxAngularVel = ptrF(2.75)

	b := bus.New()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	absorber := &fakeAbsorber{}
	p := New(cfg, b, clock, absorber)

	p.OnOdom(odomAt(0, 0, 0))
	p.OnPath(msg.Path{Waypoints: []geo.Point{{X: -5, Y: 0.1}}})

	for i := 0; i < 29; i++ {
		p.Tick(context.Background())
		if absorber.count() != 0 {
			t.Fatalf("circling recovery fired early at tick %d", i+1)
		}
		if st := p.Status(); st.CircleNeg != 0 {
			t.Fatalf("negative counter moved at tick %d: %+v", i+1, st)
		}
	}
	p.Tick(context.Background())

	if absorber.count() != 1 {
		t.Fatalf("absorber called %d times, want 1", absorber.count())
	}
	if p.Status().LastRecovery != RecoverCircling {
		t.Fatalf("recovery reason = %q", p.Status().LastRecovery)
	}
}

// A plan older than rec_path_time_factor * |P| seconds triggers the path
// timeout once the path is long enough.
func TestPathTimeoutRecovery(t *testing.T) {
	cfg := plannerConfig()
	cfg.RecMinLinVel = ptrF(0)      // no stall trigger
	cfg.RecCirclingTime = ptrF(1e9) // no circling trigger
	cfg.RecPathTimeFactor = ptrF(0.1)
	cfg.RecPathLength = ptrI(2)

	b := bus.New()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	absorber := &fakeAbsorber{}
	p := New(cfg, b, clock, absorber)

	p.OnOdom(odomAt(0, 0, 0))
	// 3 waypoints > rec_path_length; limit = floor(0.1*3/0.1) = 3 ticks.
	p.OnPath(msg.Path{Waypoints: []geo.Point{{X: 3, Y: 0}, {X: 4, Y: 0}, {X: 5, Y: 0}}})

	p.Tick(context.Background())
	p.Tick(context.Background())
	if absorber.count() != 0 {
		t.Fatalf("path timeout fired early")
	}
	p.Tick(context.Background())
	if absorber.count() != 1 {
		t.Fatalf("path timeout did not fire on tick 3")
	}
	if p.Status().LastRecovery != RecoverPathTimeout {
		t.Fatalf("recovery reason = %q", p.Status().LastRecovery)
	}
}

// A short path never arms the timeout.
func TestPathTimeoutNeedsLongPath(t *testing.T) {
	cfg := plannerConfig()
	cfg.RecMinLinVel = ptrF(0)
	cfg.RecCirclingTime = ptrF(1e9)
	cfg.RecPathTimeFactor = ptrF(0.1)
	cfg.RecPathLength = ptrI(5)

	b := bus.New()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	absorber := &fakeAbsorber{}
	p := New(cfg, b, clock, absorber)

	p.OnOdom(odomAt(0, 0, 0))
	p.OnPath(msg.Path{Waypoints: []geo.Point{{X: 3, Y: 0}, {X: 4, Y: 0}, {X: 5, Y: 0}}})

	for i := 0; i < 50; i++ {
		p.Tick(context.Background())
	}
	if absorber.count() != 0 {
		t.Fatalf("path timeout fired for a short path")
	}
}

// An empty path leaves the planner idle.
func TestEmptyPathStaysIdle(t *testing.T) {
	b := bus.New()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	p := New(plannerConfig(), b, clock, nil)
	twists := drainTwists(t, b)

	p.OnOdom(odomAt(0, 0, 0))
	p.OnPath(msg.Path{})
	p.Tick(context.Background())

	if p.Status().Active {
		t.Fatalf("planner active after empty path")
	}
	if len(twists()) != 0 {
		t.Fatalf("idle planner published a twist")
	}
}

// A fresh path after goal-reached reactivates the plan with a new id.
func TestNewPathReactivates(t *testing.T) {
	b := bus.New()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	p := New(plannerConfig(), b, clock, nil)

	p.OnOdom(odomAt(1.0, 1.0, 0))
	p.OnPath(msg.Path{Waypoints: []geo.Point{{X: 1.05, Y: 1.05}}})
	p.Tick(context.Background())
	firstID := p.Status().PlanID
	if p.Status().Active {
		t.Fatalf("plan should have completed")
	}

	p.OnPath(msg.Path{Waypoints: []geo.Point{{X: 4, Y: 4}}})
	p.Tick(context.Background())
	st := p.Status()
	if !st.Active {
		t.Fatalf("planner idle after new path")
	}
	if st.PlanID == firstID || st.PlanID == "" {
		t.Fatalf("plan id not refreshed: %q -> %q", firstID, st.PlanID)
	}
}
