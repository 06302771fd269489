package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ShaperAxisConfig holds one axis's input-shaper settings (spec.md §6
// M593: "D damping, F frequency, T type, R vibration reduction").
type ShaperAxisConfig struct {
	Enable            bool    `yaml:"enable"`
	Type              int     `yaml:"type"`   // 0=none .. 5=EI3Hump, matches core.ShaperType
	FrequencyHz       float64 `yaml:"freq_hz"`
	Damping           float64 `yaml:"damping"`
	VibrationPercent  float64 `yaml:"vibration_reduction"`
	WeightAdjustDelta float64 `yaml:"weight_adjust_delta_hz"` // M593 A
	WeightAdjustLimit float64 `yaml:"weight_adjust_mass_limit_g"` // M593 M
}

// PressureAdvanceConfig holds the extruder compensator's persisted state
// (spec.md §6 M572).
type PressureAdvanceConfig struct {
	Alpha      float64 `yaml:"alpha"`       // seconds, 0-10
	SmoothTime float64 `yaml:"smooth_time"` // seconds, 0-0.2
}

// HarmonicPair is one (magnitude, phase) term of a phase-stepping
// corrected-current LUT, serialised flat and indexed by position
// (spec.md §6: "flat list of (mag, pha) pairs indexed by harmonic").
type HarmonicPair struct {
	Mag float64 `yaml:"mag"`
	Pha float64 `yaml:"pha"`
}

// PhaseStepAxisConfig holds one axis's phase-stepping enable flag and its
// forward/backward corrected-current LUTs (spec.md §6 M970-975).
type PhaseStepAxisConfig struct {
	Enable bool           `yaml:"enable"`
	Fwd    []HarmonicPair `yaml:"fwd,omitempty"`
	Bck    []HarmonicPair `yaml:"bck,omitempty"`
}

// MotionConfig is the typed persisted-state section spec.md §6 names:
// per-axis shaper config, pressure advance, and phase-stepping LUTs.
// Stored separately from the JSON-based MachineConfig (the teacher's
// static hardware description) because this section is written at
// runtime by M-code handlers, not authored once at setup time.
type MotionConfig struct {
	Shaper        map[string]ShaperAxisConfig    `yaml:"shaper"`
	PressureAdv   PressureAdvanceConfig          `yaml:"pressure_advance"`
	PhaseStepping map[string]PhaseStepAxisConfig `yaml:"phase_stepping"`
	BedMassGrams  float64                        `yaml:"bed_mass_grams"` // M74 W
}

// DefaultMotionConfig returns an empty-but-valid MotionConfig: shaping
// disabled on every axis, pressure advance zero, phase stepping disabled.
func DefaultMotionConfig() *MotionConfig {
	return &MotionConfig{
		Shaper: map[string]ShaperAxisConfig{
			"x": {}, "y": {}, "z": {},
		},
		PhaseStepping: map[string]PhaseStepAxisConfig{
			"x": {}, "y": {}, "z": {},
		},
	}
}

// LoadMotionConfig reads a MotionConfig from a YAML file, returning
// DefaultMotionConfig if the file does not yet exist (first boot).
func LoadMotionConfig(path string) (*MotionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultMotionConfig(), nil
		}
		return nil, fmt.Errorf("config: read motion config: %w", err)
	}
	var mc MotionConfig
	if err := yaml.Unmarshal(data, &mc); err != nil {
		return nil, fmt.Errorf("config: parse motion config: %w", err)
	}
	if mc.Shaper == nil {
		mc.Shaper = map[string]ShaperAxisConfig{}
	}
	if mc.PhaseStepping == nil {
		mc.PhaseStepping = map[string]PhaseStepAxisConfig{}
	}
	return &mc, nil
}

// PersistMotionConfig writes mc to path as YAML. This is the only
// write path for motion-related persisted state (spec.md §6: "no other
// persistence is performed by the core"). Through motion.Controller it is
// called by M74, by M572/M900 when they set a value, by M593 whenever it
// sets any shaper value (its W letter is not read), by M959 W, by
// M970/M971, by M973 and by M974.
func PersistMotionConfig(path string, mc *MotionConfig) error {
	data, err := yaml.Marshal(mc)
	if err != nil {
		return fmt.Errorf("config: marshal motion config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write motion config: %w", err)
	}
	return nil
}
