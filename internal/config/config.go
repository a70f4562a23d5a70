// Package config loads the navigation stack's tuning parameters from JSON.
// Fields are pointers so partial config files are safe: anything omitted
// falls back to the defaults supplied by the Get* accessors.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// NavConfig is the root configuration. The JSON schema mirrors the parameter
// names used by the costmap generator and the planner.
type NavConfig struct {
	// Global costmap params
	RobotDiameter    *float64 `json:"robot_diameter,omitempty"`
	SafetyDistance   *float64 `json:"safety_distance,omitempty"`
	PaddedVal        *int     `json:"padded_val,omitempty"`
	DecayType        *string  `json:"decay_type,omitempty"` // exponential, reciprocal or linear
	DecayDistance    *float64 `json:"decay_distance,omitempty"`
	ApplySoftPadding *bool    `json:"apply_soft_padding,omitempty"`

	// Local costmap params
	Length        *float64 `json:"length,omitempty"`
	Frequency     *float64 `json:"frequency,omitempty"`
	FrequencyScan *float64 `json:"frequency_scan,omitempty"`

	// Planner params
	MinLinearVel      *float64 `json:"min_linear_vel,omitempty"`
	MaxLinearVel      *float64 `json:"max_linear_vel,omitempty"`
	MinAngularVel     *float64 `json:"min_angular_vel,omitempty"`
	MaxAngularVel     *float64 `json:"max_angular_vel,omitempty"`
	MaxAcc            *float64 `json:"max_acc,omitempty"`
	MaxDec            *float64 `json:"max_dec,omitempty"`
	MinDistGoal       *float64 `json:"min_dist_goal,omitempty"`
	Lookahead         *float64 `json:"lookahead,omitempty"`
	ResLinVelSpace    *int     `json:"res_lin_vel_space,omitempty"`
	ResAngVelSpace    *int     `json:"res_ang_vel_space,omitempty"`
	FrequencyDWA      *float64 `json:"frequency_dwa,omitempty"`
	GainVel           *float64 `json:"gain_vel,omitempty"`
	GainGlobPath      *float64 `json:"gain_glob_path,omitempty"`
	GainGoalAngle     *float64 `json:"gain_goal_angle,omitempty"`
	GainClearance     *float64 `json:"gain_clearance,omitempty"`
	RecMinLinVel      *float64 `json:"rec_min_lin_vel,omitempty"`
	RecMinLinVelTime  *float64 `json:"rec_min_lin_vel_time,omitempty"`
	RecCirclingTime   *float64 `json:"rec_circling_time,omitempty"`
	RecPathTimeFactor *float64 `json:"rec_path_time_factor,omitempty"`
	RecPathLength     *int     `json:"rec_path_length,omitempty"`

	// Global params
	InitMapNr *int  `json:"init_map_nr,omitempty"`
	DebugMode *bool `json:"debug_mode,omitempty"`
	LogTimes  *bool `json:"log_times,omitempty"`
}

// Default returns a NavConfig with all fields unset; the Get* accessors then
// supply every default.
func Default() *NavConfig { return &NavConfig{} }

// Load reads and validates a NavConfig from a JSON file. Fields omitted from
// the file retain their defaults, so partial configs are safe.
func Load(path string) (*NavConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &NavConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configured values are usable. An invalid decay
// type is fatal at startup, so it is rejected here.
func (c *NavConfig) Validate() error {
	if c.DecayType != nil {
		switch *c.DecayType {
		case "exponential", "reciprocal", "linear":
		default:
			return fmt.Errorf("decay_type must be exponential, reciprocal or linear, got %q", *c.DecayType)
		}
	}
	if c.RobotDiameter != nil && *c.RobotDiameter <= 0 {
		return fmt.Errorf("robot_diameter must be positive, got %f", *c.RobotDiameter)
	}
	if c.Length != nil && *c.Length <= 0 {
		return fmt.Errorf("length must be positive, got %f", *c.Length)
	}
	if c.Frequency != nil && *c.Frequency <= 0 {
		return fmt.Errorf("frequency must be positive, got %f", *c.Frequency)
	}
	if c.FrequencyDWA != nil && *c.FrequencyDWA <= 0 {
		return fmt.Errorf("frequency_dwa must be positive, got %f", *c.FrequencyDWA)
	}
	if c.MinLinearVel != nil && c.MaxLinearVel != nil && *c.MinLinearVel > *c.MaxLinearVel {
		return fmt.Errorf("min_linear_vel %f exceeds max_linear_vel %f", *c.MinLinearVel, *c.MaxLinearVel)
	}
	if c.MinAngularVel != nil && c.MaxAngularVel != nil && *c.MinAngularVel > *c.MaxAngularVel {
		return fmt.Errorf("min_angular_vel %f exceeds max_angular_vel %f", *c.MinAngularVel, *c.MaxAngularVel)
	}
	if c.ResLinVelSpace != nil && *c.ResLinVelSpace < 2 {
		return fmt.Errorf("res_lin_vel_space must be at least 2, got %d", *c.ResLinVelSpace)
	}
	if c.ResAngVelSpace != nil && *c.ResAngVelSpace < 2 {
		return fmt.Errorf("res_ang_vel_space must be at least 2, got %d", *c.ResAngVelSpace)
	}
	if c.PaddedVal != nil && (*c.PaddedVal < 1 || *c.PaddedVal > 99) {
		return fmt.Errorf("padded_val must be in [1,99], got %d", *c.PaddedVal)
	}
	for name, g := range map[string]*float64{
		"gain_vel":        c.GainVel,
		"gain_glob_path":  c.GainGlobPath,
		"gain_goal_angle": c.GainGoalAngle,
		"gain_clearance":  c.GainClearance,
	} {
		if g != nil && *g < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *g)
		}
	}
	return nil
}

// GetRobotDiameter returns robot_diameter or the default.
func (c *NavConfig) GetRobotDiameter() float64 {
	if c.RobotDiameter == nil {
		return 0.24
	}
	return *c.RobotDiameter
}

// GetSafetyDistance returns safety_distance or the default.
func (c *NavConfig) GetSafetyDistance() float64 {
	if c.SafetyDistance == nil {
		return 0.05
	}
	return *c.SafetyDistance
}

// GetPaddedVal returns padded_val or the default.
func (c *NavConfig) GetPaddedVal() int {
	if c.PaddedVal == nil {
		return 99
	}
	return *c.PaddedVal
}

// GetDecayType returns decay_type or the default.
func (c *NavConfig) GetDecayType() string {
	if c.DecayType == nil {
		return "exponential"
	}
	return *c.DecayType
}

// GetDecayDistance returns decay_distance or the default.
func (c *NavConfig) GetDecayDistance() float64 {
	if c.DecayDistance == nil {
		return 0.5
	}
	return *c.DecayDistance
}

// GetApplySoftPadding returns apply_soft_padding or the default.
func (c *NavConfig) GetApplySoftPadding() bool {
	if c.ApplySoftPadding == nil {
		return true
	}
	return *c.ApplySoftPadding
}

// GetLength returns the local costmap side length or the default.
func (c *NavConfig) GetLength() float64 {
	if c.Length == nil {
		return 3.3
	}
	return *c.Length
}

// GetFrequency returns the local costmap loop frequency or the default.
func (c *NavConfig) GetFrequency() float64 {
	if c.Frequency == nil {
		return 5.0
	}
	return *c.Frequency
}

// GetFrequencyScan returns the expected scan rate or the default.
func (c *NavConfig) GetFrequencyScan() float64 {
	if c.FrequencyScan == nil {
		return 10.0
	}
	return *c.FrequencyScan
}

// GetMinLinearVel returns min_linear_vel or the default.
func (c *NavConfig) GetMinLinearVel() float64 {
	if c.MinLinearVel == nil {
		return 0.0
	}
	return *c.MinLinearVel
}

// GetMaxLinearVel returns max_linear_vel or the default.
func (c *NavConfig) GetMaxLinearVel() float64 {
	if c.MaxLinearVel == nil {
		return 0.22
	}
	return *c.MaxLinearVel
}

// GetMinAngularVel returns min_angular_vel or the default.
func (c *NavConfig) GetMinAngularVel() float64 {
	if c.MinAngularVel == nil {
		return -2.75
	}
	return *c.MinAngularVel
}

// GetMaxAngularVel returns max_angular_vel or the default.
func (c *NavConfig) GetMaxAngularVel() float64 {
	if c.MaxAngularVel == nil {
		return 2.75
	}
	return *c.MaxAngularVel
}

// GetMaxAcc returns max_acc or the default.
func (c *NavConfig) GetMaxAcc() float64 {
	if c.MaxAcc == nil {
		return 0.5
	}
	return *c.MaxAcc
}

// GetMaxDec returns max_dec or the default.
func (c *NavConfig) GetMaxDec() float64 {
	if c.MaxDec == nil {
		return 0.5
	}
	return *c.MaxDec
}

// GetMinDistGoal returns min_dist_goal or the default.
func (c *NavConfig) GetMinDistGoal() float64 {
	if c.MinDistGoal == nil {
		return 0.1
	}
	return *c.MinDistGoal
}

// GetLookahead returns the rollout horizon or the default.
func (c *NavConfig) GetLookahead() float64 {
	if c.Lookahead == nil {
		return 0.3
	}
	return *c.Lookahead
}

// GetResLinVelSpace returns res_lin_vel_space or the default.
func (c *NavConfig) GetResLinVelSpace() int {
	if c.ResLinVelSpace == nil {
		return 5
	}
	return *c.ResLinVelSpace
}

// GetResAngVelSpace returns res_ang_vel_space or the default.
func (c *NavConfig) GetResAngVelSpace() int {
	if c.ResAngVelSpace == nil {
		return 11
	}
	return *c.ResAngVelSpace
}

// GetFrequencyDWA returns the planner loop frequency or the default.
func (c *NavConfig) GetFrequencyDWA() float64 {
	if c.FrequencyDWA == nil {
		return 10.0
	}
	return *c.FrequencyDWA
}

// GetGainVel returns gain_vel or the default.
func (c *NavConfig) GetGainVel() float64 {
	if c.GainVel == nil {
		return 1.0
	}
	return *c.GainVel
}

// GetGainGlobPath returns gain_glob_path or the default.
func (c *NavConfig) GetGainGlobPath() float64 {
	if c.GainGlobPath == nil {
		return 1.0
	}
	return *c.GainGlobPath
}

// GetGainGoalAngle returns gain_goal_angle or the default.
func (c *NavConfig) GetGainGoalAngle() float64 {
	if c.GainGoalAngle == nil {
		return 1.0
	}
	return *c.GainGoalAngle
}

// GetGainClearance returns gain_clearance or the default.
func (c *NavConfig) GetGainClearance() float64 {
	if c.GainClearance == nil {
		return 1.0
	}
	return *c.GainClearance
}

// GetRecMinLinVel returns rec_min_lin_vel or the default.
func (c *NavConfig) GetRecMinLinVel() float64 {
	if c.RecMinLinVel == nil {
		return 0.05
	}
	return *c.RecMinLinVel
}

// GetRecMinLinVelTime returns rec_min_lin_vel_time (seconds) or the default.
func (c *NavConfig) GetRecMinLinVelTime() float64 {
	if c.RecMinLinVelTime == nil {
		return 2.0
	}
	return *c.RecMinLinVelTime
}

// GetRecCirclingTime returns rec_circling_time (seconds) or the default.
func (c *NavConfig) GetRecCirclingTime() float64 {
	if c.RecCirclingTime == nil {
		return 3.0
	}
	return *c.RecCirclingTime
}

// GetRecPathTimeFactor returns rec_path_time_factor or the default.
func (c *NavConfig) GetRecPathTimeFactor() float64 {
	if c.RecPathTimeFactor == nil {
		return 3.0
	}
	return *c.RecPathTimeFactor
}

// GetRecPathLength returns rec_path_length or the default.
func (c *NavConfig) GetRecPathLength() int {
	if c.RecPathLength == nil {
		return 10
	}
	return *c.RecPathLength
}

// GetInitMapNr returns init_map_nr or the default.
func (c *NavConfig) GetInitMapNr() int {
	if c.InitMapNr == nil {
		return 1
	}
	return *c.InitMapNr
}

// GetDebugMode returns debug_mode or the default.
func (c *NavConfig) GetDebugMode() bool {
	if c.DebugMode == nil {
		return false
	}
	return *c.DebugMode
}

// GetLogTimes returns log_times or the default.
func (c *NavConfig) GetLogTimes() bool {
	if c.LogTimes == nil {
		return false
	}
	return *c.LogTimes
}
