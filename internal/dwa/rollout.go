package dwa

import (
	"math"

	"github.com/banshee-data/navstack/internal/geo"
)

// straightOmegaEps is the angular velocity below which an arc degenerates to
// a straight line.
const straightOmegaEps = 1e-3

// rolloutSteps is the number of sampled points per trajectory.
const rolloutSteps = 10

// Rollout forward-integrates a constant twist (v, omega) over the horizon
// tau from the given pose, returning the sampled trajectory (excluding the
// start) and the terminal pose.
func Rollout(v, omega float64, start geo.Pose, tau float64, steps int) ([]geo.Point, geo.Pose) {
	if steps < 1 {
		steps = 1
	}
	traj := make([]geo.Point, 0, steps)
	sin, cos := math.Sincos(start.Yaw)

	if math.Abs(omega) < straightOmegaEps {
		dx := v * cos * tau / float64(steps)
		dy := v * sin * tau / float64(steps)
		for k := 1; k <= steps; k++ {
			traj = append(traj, geo.Point{
				X: start.X + dx*float64(k),
				Y: start.Y + dy*float64(k),
			})
		}
	} else {
		r := v / omega
		for k := 1; k <= steps; k++ {
			phi := start.Yaw + omega*tau*float64(k)/float64(steps)
			traj = append(traj, geo.Point{
				X: start.X - r*sin + r*math.Sin(phi),
				Y: start.Y + r*cos - r*math.Cos(phi),
			})
		}
	}

	terminal := geo.Pose{Yaw: geo.NormalizeAngle(start.Yaw + omega*tau)}
	terminal.X = traj[len(traj)-1].X
	terminal.Y = traj[len(traj)-1].Y
	return traj, terminal
}
