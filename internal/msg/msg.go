// Package msg defines the message types exchanged between the costmap
// generator, the planner and their external collaborators. Keeping them in a
// leaf package avoids import cycles between producers and consumers.
package msg

import (
	"time"

	"github.com/banshee-data/navstack/internal/geo"
	"github.com/banshee-data/navstack/internal/grid"
)

// Well-known frame names used by the transform service.
const (
	FrameMap   = "map"
	FrameOdom  = "odom"
	FrameBase  = "base_link"
	FrameLaser = "hokuyo_link"
)

// Topic names.
const (
	TopicGlobalCostmap  = "/global_costmap"
	TopicLocalCostmap   = "/local_costmap"
	TopicLocalObstacles = "/local_obstacles"
	TopicCmdVel         = "/cmd_vel"
	TopicPlanMarker     = "/plan_marker"
	TopicGoal           = "/goal"
	TopicOdom           = "/odom"
	TopicScan           = "/scan"
	TopicGlobalPath     = "/global_path"
	TopicPlannerStatus  = "/planner_status"
)

// LaserScan is one sweep of the range finder. Beam i points at
// AngleMin + i*AngleIncrement in the sensor frame.
type LaserScan struct {
	Stamp          time.Time `json:"stamp"`
	AngleMin       float64   `json:"angle_min"`
	AngleIncrement float64   `json:"angle_increment"`
	Ranges         []float64 `json:"ranges"`
}

// Odometry carries the robot pose (orientation as a quaternion, matching the
// upstream odometry source) and the measured planar twist.
type Odometry struct {
	Stamp time.Time `json:"stamp"`
	X     float64   `json:"x"`
	Y     float64   `json:"y"`
	QuatX float64   `json:"quat_x"`
	QuatY float64   `json:"quat_y"`
	QuatZ float64   `json:"quat_z"`
	QuatW float64   `json:"quat_w"`

	LinearX  float64 `json:"linear_x"`
	AngularZ float64 `json:"angular_z"`
}

// Pose converts the quaternion orientation into a planar pose.
func (o Odometry) Pose() geo.Pose {
	return geo.Pose{
		X:   o.X,
		Y:   o.Y,
		Yaw: geo.YawFromQuaternion(o.QuatX, o.QuatY, o.QuatZ, o.QuatW),
	}
}

// Twist returns the measured planar twist.
func (o Odometry) Twist() geo.Twist {
	return geo.Twist{Linear: o.LinearX, Angular: o.AngularZ}
}

// Path is an ordered sequence of world-frame waypoints produced by the global
// planner. It is immutable once received and replaced atomically.
type Path struct {
	Stamp     time.Time   `json:"stamp"`
	Waypoints []geo.Point `json:"waypoints"`
}

// PointCloud is an unordered set of points in a named frame.
type PointCloud struct {
	Stamp  time.Time   `json:"stamp"`
	Frame  string      `json:"frame"`
	Points []geo.Point `json:"points"`
}

// GridStamped pairs an occupancy grid with a publication stamp so latched
// subscribers observe monotonic updates.
type GridStamped struct {
	Stamp time.Time  `json:"stamp"`
	Grid  *grid.Grid `json:"grid"`
}

// Marker is a line strip for visualising a selected trajectory.
type Marker struct {
	Stamp  time.Time   `json:"stamp"`
	Frame  string      `json:"frame"`
	Points []geo.Point `json:"points"`
}
