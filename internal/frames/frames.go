// Package frames provides planar rigid-body transforms between named
// coordinate frames and the lookup service the costmap generator uses to map
// sensor returns into the world frame.
package frames

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/navstack/internal/geo"
)

// LookupTimeout bounds how long a transform lookup may block before the
// caller skips the current tick.
const LookupTimeout = 10 * time.Second

// Transform is a planar rigid transform: rotate by Yaw, then translate by
// (X, Y). It maps points from the child frame into the parent frame.
type Transform struct {
	X   float64
	Y   float64
	Yaw float64
}

// Identity returns the identity transform.
func Identity() Transform { return Transform{} }

// FromPose builds the child→parent transform for a body whose pose in the
// parent frame is p.
func FromPose(p geo.Pose) Transform {
	return Transform{X: p.X, Y: p.Y, Yaw: p.Yaw}
}

// Apply maps a child-frame point into the parent frame.
func (t Transform) Apply(p geo.Point) geo.Point {
	sin, cos := math.Sincos(t.Yaw)
	return geo.Point{
		X: t.X + cos*p.X - sin*p.Y,
		Y: t.Y + sin*p.X + cos*p.Y,
	}
}

// Compose returns the transform equivalent to applying o first, then t.
func (t Transform) Compose(o Transform) Transform {
	sin, cos := math.Sincos(t.Yaw)
	return Transform{
		X:   t.X + cos*o.X - sin*o.Y,
		Y:   t.Y + sin*o.X + cos*o.Y,
		Yaw: geo.NormalizeAngle(t.Yaw + o.Yaw),
	}
}

// Service resolves the transform mapping points in frame `from` into frame
// `to`. Implementations may block; callers bound the wait with a context
// deadline.
type Service interface {
	Lookup(ctx context.Context, from, to string) (Transform, error)
}

// StaticProvider is an in-process Service backed by a table of direct
// child→parent edges. Sensor adapters update the dynamic edges (base→odom)
// as odometry arrives; fixed mounts are set once at startup.
type StaticProvider struct {
	mu    sync.RWMutex
	edges map[string]Transform // key = edgeKey(from, to)
}

// NewStaticProvider returns an empty provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{edges: make(map[string]Transform)}
}

func edgeKey(from, to string) string { return from + "\x00" + to }

// Set records the transform mapping `from`-frame points into `to`.
func (s *StaticProvider) Set(from, to string, t Transform) {
	s.mu.Lock()
	s.edges[edgeKey(from, to)] = t
	s.mu.Unlock()
}

// Lookup returns the direct edge between two frames. Unknown edges are an
// error; the caller decides whether to retry within its deadline.
func (s *StaticProvider) Lookup(ctx context.Context, from, to string) (Transform, error) {
	if err := ctx.Err(); err != nil {
		return Transform{}, err
	}
	s.mu.RLock()
	t, ok := s.edges[edgeKey(from, to)]
	s.mu.RUnlock()
	if !ok {
		return Transform{}, fmt.Errorf("no transform %s -> %s", from, to)
	}
	return t, nil
}

// Chain composes a fixed sensor mount with the dynamic base→odom→map edges.
// The sensor→base edge cannot change at runtime, so it is looked up once and
// cached, halving the per-tick round trips to the transform service.
type Chain struct {
	svc    Service
	sensor string
	base   string
	odom   string
	world  string

	mu           sync.Mutex
	sensorToBase *Transform
}

// NewChain builds a sensor→base→odom→world lookup chain over svc.
func NewChain(svc Service, sensor, base, odom, world string) *Chain {
	return &Chain{svc: svc, sensor: sensor, base: base, odom: odom, world: world}
}

// SensorToWorld resolves the full chain, caching the fixed sensor mount.
func (c *Chain) SensorToWorld(ctx context.Context) (Transform, error) {
	mount, err := c.mount(ctx)
	if err != nil {
		return Transform{}, err
	}
	baseToOdom, err := c.svc.Lookup(ctx, c.base, c.odom)
	if err != nil {
		return Transform{}, fmt.Errorf("lookup %s -> %s: %w", c.base, c.odom, err)
	}
	odomToWorld, err := c.svc.Lookup(ctx, c.odom, c.world)
	if err != nil {
		return Transform{}, fmt.Errorf("lookup %s -> %s: %w", c.odom, c.world, err)
	}
	return odomToWorld.Compose(baseToOdom.Compose(mount)), nil
}

func (c *Chain) mount(ctx context.Context) (Transform, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sensorToBase != nil {
		return *c.sensorToBase, nil
	}
	t, err := c.svc.Lookup(ctx, c.sensor, c.base)
	if err != nil {
		return Transform{}, fmt.Errorf("lookup %s -> %s: %w", c.sensor, c.base, err)
	}
	c.sensorToBase = &t
	return t, nil
}
