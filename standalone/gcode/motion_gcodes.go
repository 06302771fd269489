package gcode

import (
	"fmt"

	"motioncore/core"
	"motioncore/standalone"
	"motioncore/standalone/config"
	"motioncore/tuning"
)

// MotionController is the collaborator the motion M-codes (M74, M572,
// M593, M900, M958, M959, M970-975) delegate to. The concrete
// implementation (standalone/motion.Controller) owns the persisted
// MotionConfig plus whatever hardware collaborators (step pusher,
// accelerometer sampler, harmonic evaluator) the build has wired up.
type MotionController interface {
	GetPressureAdvance() (alpha, smoothTime float64)
	SetPressureAdvance(alpha, smoothTime float64, haveAlpha, haveSmooth bool) error

	GetShaperConfig(axis string) config.ShaperAxisConfig
	SetShaperConfig(axis string, cfg config.ShaperAxisConfig) error

	SetBedMassHint(grams float64) error

	VibrateMeasure(axis string, params tuning.ExcitationParams) (tuning.ExcitationResult, error)
	SweepAndFit(axis string, startHz, endHz, stepHz, accelMMPS2 float64, cycles int, damping float64) (tuning.ShaperFitCandidate, error)

	EnablePhaseStepping(axis string) error
	DisablePhaseStepping(axis string) error
	PhaseSteppingStatus(axis string) (enabled bool, cfg config.PhaseStepAxisConfig)
	SetLUTFromCSV(axis string, forward bool, csv string) error
	MeasureResonance(axis string, params tuning.PhaseCalibrationParams) (fwd, bck core.Harmonic, err error)
	ProbeAccelSampleRate(durationS float64) (hz float64, sane bool, err error)
}

// Responder emits informational reply lines back to the host (the "ok"/
// "error:"/data lines a serial-connected printer firmware writes).
// Motion M-codes that report state (M572/M593/M972 with no setter
// arguments) use this instead of returning data through the error
// channel.
type Responder interface {
	Printf(format string, args ...interface{})
}

type nullResponder struct{}

func (nullResponder) Printf(format string, args ...interface{}) {}

// SetMotionController wires the motion tuning/persistence collaborator.
// Until this is called, M74/M572/M593/M900/M958/M959/M970-975 all fail
// with "motion controller not configured" rather than silently no-oping.
func (interp *Interpreter) SetMotionController(mc MotionController) {
	interp.motion = mc
}

// SetResponder wires the info-line output collaborator used by the
// state-reporting motion M-codes.
func (interp *Interpreter) SetResponder(r Responder) {
	if r == nil {
		r = nullResponder{}
	}
	interp.responder = r
}

func (interp *Interpreter) requireMotion() (MotionController, error) {
	if interp.motion == nil {
		return nil, fmt.Errorf("motion controller not configured")
	}
	return interp.motion, nil
}

// firstAxis returns the first of X, Y, Z present on the command, or ""
// if none are (M958/M959/M970-975's "axis flags" argument is a letter
// presence test, not a value).
func firstAxis(cmd *standalone.GCodeCommand) string {
	if cmd.HasParameter('X') {
		return "x"
	}
	if cmd.HasParameter('Y') {
		return "y"
	}
	if cmd.HasParameter('Z') {
		return "z"
	}
	return ""
}

// executeMotionM dispatches the motion-tuning M-codes. Called from
// executeM for any number this file handles; returns (handled, error).
func (interp *Interpreter) executeMotionM(cmd *standalone.GCodeCommand) (bool, error) {
	switch cmd.Number {
	case 74:
		return true, interp.cmdM74(cmd)
	case 572:
		return true, interp.cmdM572(cmd)
	case 593:
		return true, interp.cmdM593(cmd)
	case 900:
		return true, interp.cmdM900(cmd)
	case 958:
		return true, interp.cmdM958(cmd)
	case 959:
		return true, interp.cmdM959(cmd)
	case 970:
		return true, interp.cmdM970(cmd)
	case 971:
		return true, interp.cmdM971(cmd)
	case 972:
		return true, interp.cmdM972(cmd)
	case 973:
		return true, interp.cmdM973(cmd)
	case 974:
		return true, interp.cmdM974(cmd)
	case 975:
		return true, interp.cmdM975(cmd)
	}
	return false, nil
}

// M74 W<g> - bed-mass hint.
func (interp *Interpreter) cmdM74(cmd *standalone.GCodeCommand) error {
	mc, err := interp.requireMotion()
	if err != nil {
		return err
	}
	if !cmd.HasParameter('W') {
		return fmt.Errorf("M74 requires a W<grams> parameter")
	}
	return mc.SetBedMassHint(cmd.GetParameter('W', 0))
}

// M572 [S][W] - get/set pressure advance.
func (interp *Interpreter) cmdM572(cmd *standalone.GCodeCommand) error {
	mc, err := interp.requireMotion()
	if err != nil {
		return err
	}
	haveS, haveW := cmd.HasParameter('S'), cmd.HasParameter('W')
	if !haveS && !haveW {
		alpha, smooth := mc.GetPressureAdvance()
		interp.responder.Printf("pressure_advance: alpha=%.4f smooth_time=%.4f\n", alpha, smooth)
		return nil
	}
	return mc.SetPressureAdvance(cmd.GetParameter('S', 0), cmd.GetParameter('W', 0), haveS, haveW)
}

// M593 [X][Y][Z][D][F][T][R][A][M][W] - input-shaper config.
func (interp *Interpreter) cmdM593(cmd *standalone.GCodeCommand) error {
	mc, err := interp.requireMotion()
	if err != nil {
		return err
	}
	axis := firstAxis(cmd)
	if axis == "" {
		axis = "x"
	}
	haveAny := cmd.HasParameter('D') || cmd.HasParameter('F') || cmd.HasParameter('T') ||
		cmd.HasParameter('R') || cmd.HasParameter('A') || cmd.HasParameter('M')
	if !haveAny {
		cfg := mc.GetShaperConfig(axis)
		interp.responder.Printf("shaper[%s]: type=%d freq=%.2f damping=%.3f vibration=%.1f\n",
			axis, cfg.Type, cfg.FrequencyHz, cfg.Damping, cfg.VibrationPercent)
		return nil
	}

	cfg := mc.GetShaperConfig(axis)
	cfg.Enable = true
	if cmd.HasParameter('T') {
		t := int(cmd.GetParameter('T', 0))
		if t < 0 || t > 5 {
			return fmt.Errorf("M593 T out of range [0,5]: %d", t)
		}
		cfg.Type = t
	}
	if cmd.HasParameter('D') {
		d := cmd.GetParameter('D', 0)
		if d < 0 || d > 1 {
			return fmt.Errorf("M593 D out of range [0,1]: %v", d)
		}
		cfg.Damping = d
	}
	if cmd.HasParameter('F') {
		f := cmd.GetParameter('F', 0)
		if f < tuning.FreqSweepMin || f > tuning.FreqSweepMax {
			interp.responder.Printf("warning: M593 F %.1f clamped to [%g,%g]\n", f, tuning.FreqSweepMin, tuning.FreqSweepMax)
			if f < tuning.FreqSweepMin {
				f = tuning.FreqSweepMin
			} else {
				f = tuning.FreqSweepMax
			}
		}
		cfg.FrequencyHz = f
	}
	if cmd.HasParameter('R') {
		cfg.VibrationPercent = cmd.GetParameter('R', 0)
	}
	if cmd.HasParameter('A') {
		cfg.WeightAdjustDelta = cmd.GetParameter('A', 0)
	}
	if cmd.HasParameter('M') {
		cfg.WeightAdjustLimit = cmd.GetParameter('M', 0)
	}
	return mc.SetShaperConfig(axis, cfg)
}

// M900 K<k> - legacy linear-advance alias, routes to pressure advance.
func (interp *Interpreter) cmdM900(cmd *standalone.GCodeCommand) error {
	mc, err := interp.requireMotion()
	if err != nil {
		return err
	}
	if !cmd.HasParameter('K') {
		return fmt.Errorf("M900 requires a K<value> parameter")
	}
	return mc.SetPressureAdvance(cmd.GetParameter('K', 0), 0, true, false)
}

// M958 X|Y|Z F<Hz> A<accel> N<cycles> [C][K][I] - single-frequency
// excitation probe.
func (interp *Interpreter) cmdM958(cmd *standalone.GCodeCommand) error {
	mc, err := interp.requireMotion()
	if err != nil {
		return err
	}
	if cmd.HasParameter('C') {
		hz, sane, err := mc.ProbeAccelSampleRate(1.0)
		if err != nil {
			return err
		}
		interp.responder.Printf("accel_sample_rate: %.1f sane=%v\n", hz, sane)
		return nil
	}
	axis := firstAxis(cmd)
	if axis == "" {
		return fmt.Errorf("M958 requires an axis (X, Y, or Z)")
	}
	if !cmd.HasParameter('F') || !cmd.HasParameter('A') || !cmd.HasParameter('N') {
		return fmt.Errorf("M958 requires F<Hz>, A<accel>, and N<cycles>")
	}
	res, err := mc.VibrateMeasure(axis, tuning.ExcitationParams{
		Axes:              axisMaskFor(axis),
		DirectionPositive: true,
		FreqHz:            cmd.GetParameter('F', 0),
		AccelMMPS2:        cmd.GetParameter('A', 0),
		Cycles:            int(cmd.GetParameter('N', 0)),
		MeasureCycles:     int(cmd.GetParameter('N', 0)),
	})
	if err != nil {
		return err
	}
	if cmd.HasParameter('K') {
		interp.responder.Printf("freq=%.2f amp=%.6f gain=%.6f\n", res.FrequencyHz, res.Amplitude, res.Gain)
	} else {
		interp.responder.Printf("excitation probe: %.2f Hz, amplitude %.6f, gain %.6f\n", res.FrequencyHz, res.Amplitude, res.Gain)
	}
	return nil
}

func axisMaskFor(axis string) tuning.AxisMask {
	switch axis {
	case "x":
		return tuning.AxisMaskX
	case "y":
		return tuning.AxisMaskY
	case "z":
		return tuning.AxisMaskZ
	}
	return 0
}

// M959 X|Y|Z [K][M] F<start> G<end> H<step> A<accel> N<cycles> D [W] [I] -
// sweep and auto-fit shaper.
func (interp *Interpreter) cmdM959(cmd *standalone.GCodeCommand) error {
	mc, err := interp.requireMotion()
	if err != nil {
		return err
	}
	axis := firstAxis(cmd)
	if axis == "" {
		return fmt.Errorf("M959 requires an axis (X, Y, or Z)")
	}
	if !cmd.HasParameter('F') || !cmd.HasParameter('G') {
		return fmt.Errorf("M959 requires F<start> and G<end>")
	}
	damping := 0.1
	result, err := mc.SweepAndFit(axis,
		cmd.GetParameter('F', tuning.FreqSweepMin),
		cmd.GetParameter('G', tuning.FreqSweepMax),
		cmd.GetParameter('H', 1),
		cmd.GetParameter('A', 1000),
		int(cmd.GetParameter('N', 10)),
		damping,
	)
	if err != nil {
		return err
	}
	interp.responder.Printf("best shaper[%s]: type=%d freq=%.2f damping=%.3f vib=%.4f smoothing=%.4f\n",
		axis, result.Type, result.FreqHz, result.Damping, result.Vibration, result.Smoothing)
	if cmd.HasParameter('W') {
		cfg := mc.GetShaperConfig(axis)
		cfg.Enable = true
		cfg.Type = int(result.Type)
		cfg.FrequencyHz = result.FreqHz
		cfg.Damping = result.Damping
		return mc.SetShaperConfig(axis, cfg)
	}
	return nil
}

// M970 [X][Y] - enable phase stepping.
func (interp *Interpreter) cmdM970(cmd *standalone.GCodeCommand) error {
	mc, err := interp.requireMotion()
	if err != nil {
		return err
	}
	axis := firstAxis(cmd)
	if axis == "" {
		return fmt.Errorf("M970 requires an axis (X or Y)")
	}
	return mc.EnablePhaseStepping(axis)
}

// M971 [X][Y] - disable phase stepping.
func (interp *Interpreter) cmdM971(cmd *standalone.GCodeCommand) error {
	mc, err := interp.requireMotion()
	if err != nil {
		return err
	}
	axis := firstAxis(cmd)
	if axis == "" {
		return fmt.Errorf("M971 requires an axis (X or Y)")
	}
	return mc.DisablePhaseStepping(axis)
}

// M972 [X][Y] - get phase-stepping status.
func (interp *Interpreter) cmdM972(cmd *standalone.GCodeCommand) error {
	mc, err := interp.requireMotion()
	if err != nil {
		return err
	}
	axis := firstAxis(cmd)
	if axis == "" {
		return fmt.Errorf("M972 requires an axis (X or Y)")
	}
	enabled, cfg := mc.PhaseSteppingStatus(axis)
	interp.responder.Printf("phase_stepping[%s]: enabled=%v fwd_harmonics=%d bck_harmonics=%d\n",
		axis, enabled, len(cfg.Fwd), len(cfg.Bck))
	return nil
}

// M973 [X][Y] R<0|1> W"mag,pha,..." - set phase-stepping LUT.
func (interp *Interpreter) cmdM973(cmd *standalone.GCodeCommand) error {
	mc, err := interp.requireMotion()
	if err != nil {
		return err
	}
	axis := firstAxis(cmd)
	if axis == "" {
		return fmt.Errorf("M973 requires an axis (X or Y)")
	}
	if !cmd.HasStringParameter('W') {
		return fmt.Errorf("M973 requires a W\"mag,pha,...\" CSV argument")
	}
	forward := cmd.GetParameter('R', 1) != 0
	return mc.SetLUTFromCSV(axis, forward, cmd.GetStringParameter('W'))
}

// M974 [X][Y] [F][R] - measure resonance (phase-stepping harmonic
// calibration).
func (interp *Interpreter) cmdM974(cmd *standalone.GCodeCommand) error {
	mc, err := interp.requireMotion()
	if err != nil {
		return err
	}
	axis := firstAxis(cmd)
	if axis == "" {
		return fmt.Errorf("M974 requires an axis (X or Y)")
	}
	harmonic := int(cmd.GetParameter('I', 0))
	params := tuning.PhaseCalibrationParams{
		Harmonic:              harmonic,
		PhaseWindowRad:        cmd.GetParameter('R', 0.1),
		MotorElectricalFreqHz: cmd.GetParameter('F', 0),
	}
	fwd, bck, err := mc.MeasureResonance(axis, params)
	if err != nil {
		return err
	}
	interp.responder.Printf("phase_harmonic[%s][%d]: fwd=(%.4f,%.4f) bck=(%.4f,%.4f)\n",
		axis, harmonic, fwd.Mag, fwd.Pha, bck.Mag, bck.Pha)
	return nil
}

// M975 - probe accelerometer sample rate.
func (interp *Interpreter) cmdM975(cmd *standalone.GCodeCommand) error {
	mc, err := interp.requireMotion()
	if err != nil {
		return err
	}
	duration := cmd.GetParameter('F', 1.0)
	hz, sane, err := mc.ProbeAccelSampleRate(duration)
	if err != nil {
		return err
	}
	interp.responder.Printf("accel_sample_rate: %.1f sane=%v\n", hz, sane)
	return nil
}
