// Package motion wires the tuning/calibration routines (spec.md §4.11) and
// the persisted input-shaper/pressure-advance/phase-stepping state (spec.md
// §6) into something the G-code interpreter can call directly. It is the
// onboard (standalone-mode) counterpart to host/cmd/gopper-host/tune.go,
// which runs the same tuning package offline on captured data files.
package motion

import (
	"fmt"
	"strconv"
	"strings"

	"motioncore/core"
	"motioncore/standalone/config"
	"motioncore/tuning"
)

// Controller implements gcode.MotionController against a persisted
// config.MotionConfig plus whatever hardware collaborators the build has
// wired up. StepsPerMM/Pusher/Sampler/Evaluators are populated by the
// caller once the actual axis hardware exists; tuning operations that need
// a collaborator which is nil fail with a descriptive error rather than
// reaching through a nil pointer.
type Controller struct {
	configPath string
	mc         *config.MotionConfig

	stepsPerMM map[string]float64
	pushers    map[string]tuning.StepPusher
	sampler    tuning.AccelSampler
	evaluators map[string]tuning.HarmonicEvaluator

	luts map[string]*axisLUT
}

type axisLUT struct {
	fwd core.CorrectedLUT
	bck core.CorrectedLUT
}

// NewController loads (or defaults) the motion config at configPath and
// returns a ready Controller. Hardware collaborators are registered
// afterward via RegisterAxis/SetSampler.
func NewController(configPath string) (*Controller, error) {
	mc, err := config.LoadMotionConfig(configPath)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		configPath: configPath,
		mc:         mc,
		stepsPerMM: map[string]float64{},
		pushers:    map[string]tuning.StepPusher{},
		evaluators: map[string]tuning.HarmonicEvaluator{},
		luts:       map[string]*axisLUT{},
	}
	for axis, cfg := range mc.PhaseStepping {
		c.luts[axis] = lutFromConfig(cfg)
	}
	return c, nil
}

func lutFromConfig(cfg config.PhaseStepAxisConfig) *axisLUT {
	l := &axisLUT{}
	for i, h := range cfg.Fwd {
		if i >= core.MaxHarmonics {
			break
		}
		l.fwd.SetHarmonic(i, h.Mag, h.Pha)
	}
	for i, h := range cfg.Bck {
		if i >= core.MaxHarmonics {
			break
		}
		l.bck.SetHarmonic(i, h.Mag, h.Pha)
	}
	l.fwd.Recompute()
	l.bck.Recompute()
	return l
}

// RegisterAxis wires an axis's steps-per-mm and step pusher, enabling the
// tuning gcodes (M958/M959) to target it.
func (c *Controller) RegisterAxis(axis string, stepsPerMM float64, pusher tuning.StepPusher) {
	c.stepsPerMM[axis] = stepsPerMM
	c.pushers[axis] = pusher
}

// SetSampler registers the shared accelerometer sampler (spec.md §4.11
// routines all read from one onboard accelerometer regardless of which
// axis is under test).
func (c *Controller) SetSampler(sampler tuning.AccelSampler) { c.sampler = sampler }

// SetEvaluator registers the harmonic evaluator for phase-stepping
// calibration on the given axis (M974).
func (c *Controller) SetEvaluator(axis string, eval tuning.HarmonicEvaluator) {
	c.evaluators[axis] = eval
}

func (c *Controller) persist() error {
	for axis, l := range c.luts {
		entry := c.mc.PhaseStepping[axis]
		entry.Fwd = harmonicsToPairs(l.fwd)
		entry.Bck = harmonicsToPairs(l.bck)
		c.mc.PhaseStepping[axis] = entry
	}
	return config.PersistMotionConfig(c.configPath, c.mc)
}

func harmonicsToPairs(l core.CorrectedLUT) []config.HarmonicPair {
	out := make([]config.HarmonicPair, 0, core.MaxHarmonics)
	for _, h := range l.Harmonics {
		out = append(out, config.HarmonicPair{Mag: h.Mag, Pha: h.Pha})
	}
	return out
}

// --- Pressure advance (M572) ---

func (c *Controller) GetPressureAdvance() (alpha, smoothTime float64) {
	return c.mc.PressureAdv.Alpha, c.mc.PressureAdv.SmoothTime
}

func (c *Controller) SetPressureAdvance(alpha, smoothTime float64, haveAlpha, haveSmooth bool) error {
	if haveAlpha {
		if alpha < 0 || alpha > 10 {
			return fmt.Errorf("motion: pressure advance S out of range [0,10]: %v", alpha)
		}
		c.mc.PressureAdv.Alpha = alpha
	}
	if haveSmooth {
		if smoothTime < 0 || smoothTime > 0.2 {
			return fmt.Errorf("motion: pressure advance W out of range [0,0.2]: %v", smoothTime)
		}
		c.mc.PressureAdv.SmoothTime = smoothTime
	}
	if haveAlpha || haveSmooth {
		return c.persist()
	}
	return nil
}

// --- Input shaper (M593) ---

func (c *Controller) GetShaperConfig(axis string) config.ShaperAxisConfig {
	return c.mc.Shaper[axis]
}

func (c *Controller) SetShaperConfig(axis string, cfg config.ShaperAxisConfig) error {
	if cfg.FrequencyHz != 0 {
		if cfg.FrequencyHz > tuning.FreqSweepMax {
			cfg.FrequencyHz = tuning.FreqSweepMax
		} else if cfg.FrequencyHz < tuning.FreqSweepMin {
			cfg.FrequencyHz = tuning.FreqSweepMin
		}
	}
	c.mc.Shaper[axis] = cfg
	return c.persist()
}

// --- Bed-mass hint (M74) ---

func (c *Controller) SetBedMassHint(grams float64) error {
	c.mc.BedMassGrams = grams
	return c.persist()
}

// --- Vibration excitation probe (M958) ---

func (c *Controller) VibrateMeasure(axis string, params tuning.ExcitationParams) (tuning.ExcitationResult, error) {
	pusher, ok := c.pushers[axis]
	if !ok || pusher == nil {
		return tuning.ExcitationResult{}, fmt.Errorf("motion: axis %q has no registered step pusher", axis)
	}
	if c.sampler == nil {
		return tuning.ExcitationResult{}, fmt.Errorf("motion: no accelerometer sampler registered")
	}
	stepsPerMM := c.stepsPerMM[axis]
	return tuning.VibrateMeasure(params, stepsPerMM, pusher, c.sampler)
}

// --- Sweep + auto-fit (M959) ---

// SweepAndFit sweeps [startHz, endHz] in stepHz increments, measuring the
// excitation amplitude at each frequency with VibrateMeasure, then selects the best shaper
// for the resulting spectrum via tuning.FindBestShaper.
func (c *Controller) SweepAndFit(axis string, startHz, endHz, stepHz, accelMMPS2 float64, cycles int, damping float64) (tuning.ShaperFitCandidate, error) {
	if stepHz <= 0 {
		stepHz = 1
	}
	var psd []tuning.PSDPoint
	for f := startHz; f <= endHz; f += stepHz {
		res, err := c.VibrateMeasure(axis, tuning.ExcitationParams{
			Axes: axisMaskFor(axis), DirectionPositive: true,
			FreqHz: f, AccelMMPS2: accelMMPS2, Cycles: cycles, MeasureCycles: cycles,
		})
		if err != nil {
			return tuning.ShaperFitCandidate{}, err
		}
		psd = append(psd, tuning.PSDPoint{FreqHz: res.FrequencyHz, Magnitude: res.Amplitude})
	}
	if len(psd) == 0 {
		return tuning.ShaperFitCandidate{}, fmt.Errorf("motion: sweep produced no measurements")
	}
	return tuning.FindBestShaper(psd, damping), nil
}

func axisMaskFor(axis string) tuning.AxisMask {
	switch strings.ToLower(axis) {
	case "x":
		return tuning.AxisMaskX
	case "y":
		return tuning.AxisMaskY
	case "z":
		return tuning.AxisMaskZ
	default:
		return 0
	}
}

// --- Phase stepping (M970-975) ---

func (c *Controller) EnablePhaseStepping(axis string) error {
	entry := c.mc.PhaseStepping[axis]
	entry.Enable = true
	c.mc.PhaseStepping[axis] = entry
	return c.persist()
}

func (c *Controller) DisablePhaseStepping(axis string) error {
	entry := c.mc.PhaseStepping[axis]
	entry.Enable = false
	c.mc.PhaseStepping[axis] = entry
	return c.persist()
}

func (c *Controller) PhaseSteppingStatus(axis string) (enabled bool, cfg config.PhaseStepAxisConfig) {
	entry := c.mc.PhaseStepping[axis]
	return entry.Enable, entry
}

// SetLUTFromCSV parses a flat "mag,pha,mag,pha,..." string (M973's quoted
// W argument) into the axis's forward or backward corrected-current LUT.
func (c *Controller) SetLUTFromCSV(axis string, forward bool, csv string) error {
	fields := strings.Split(csv, ",")
	if len(fields)%2 != 0 {
		return fmt.Errorf("motion: LUT CSV must have an even number of fields, got %d", len(fields))
	}
	l, ok := c.luts[axis]
	if !ok {
		l = &axisLUT{}
		c.luts[axis] = l
	}
	target := &l.bck
	if forward {
		target = &l.fwd
	}
	for i := 0; i*2 < len(fields) && i < core.MaxHarmonics; i++ {
		mag, err := strconv.ParseFloat(strings.TrimSpace(fields[i*2]), 64)
		if err != nil {
			return fmt.Errorf("motion: LUT CSV field %d (mag): %w", i*2, err)
		}
		pha, err := strconv.ParseFloat(strings.TrimSpace(fields[i*2+1]), 64)
		if err != nil {
			return fmt.Errorf("motion: LUT CSV field %d (pha): %w", i*2+1, err)
		}
		target.SetHarmonic(i, mag, pha)
	}
	target.Recompute()
	return c.persist()
}

// MeasureResonance runs CalibratePhaseHarmonic for one axis/harmonic,
// updating the axis's forward/backward LUT on success (M974).
func (c *Controller) MeasureResonance(axis string, params tuning.PhaseCalibrationParams) (fwd, bck core.Harmonic, err error) {
	eval, ok := c.evaluators[axis]
	if !ok || eval == nil {
		return core.Harmonic{}, core.Harmonic{}, fmt.Errorf("motion: axis %q has no registered harmonic evaluator", axis)
	}
	f, b, ok := tuning.CalibratePhaseHarmonic(params, 0, 1, eval)
	if !ok {
		return core.Harmonic{}, core.Harmonic{}, fmt.Errorf("motion: calibration aborted (accelerometer sample rate out of range)")
	}
	l, exists := c.luts[axis]
	if !exists {
		l = &axisLUT{}
		c.luts[axis] = l
	}
	l.fwd.SetHarmonic(params.Harmonic, f.Mag, f.Pha)
	l.bck.SetHarmonic(params.Harmonic, b.Mag, b.Pha)
	l.fwd.Recompute()
	l.bck.Recompute()
	if err := c.persist(); err != nil {
		return f, b, err
	}
	return f, b, nil
}

// ProbeAccelSampleRate collects a short accelerometer burst and reports the
// observed sample rate plus whether it falls within the sane range
// (M975, spec.md §7/§4.11).
func (c *Controller) ProbeAccelSampleRate(durationS float64) (hz float64, sane bool, err error) {
	if c.sampler == nil {
		return 0, false, fmt.Errorf("motion: no accelerometer sampler registered")
	}
	samples, err := c.sampler.Collect(durationS)
	if err != nil {
		return 0, false, err
	}
	if len(samples) < 2 || durationS <= 0 {
		return 0, false, fmt.Errorf("motion: not enough samples to estimate rate")
	}
	hz = float64(len(samples)) / durationS
	return hz, tuning.AccelSampleRateSane(hz), nil
}
