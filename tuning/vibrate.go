package tuning

import (
	"math"

	"motioncore/core"
)

// ExcitationParams configures a single-sine excitation sweep
// (vibrate_measure, spec.md §4.11).
type ExcitationParams struct {
	Axes              AxisMask
	DirectionPositive bool
	FreqHz            float64
	AccelMMPS2        float64
	Cycles            int
	WaitCycles        int
	MeasureCycles     int
	StepLengthMM      float64 // distance of one whole step, 1/steps_per_mm
}

// ExcitationResult is vibrate_measure's successful outcome.
type ExcitationResult struct {
	FrequencyHz float64
	Amplitude   float64
	Gain        float64 // Amplitude / excitation acceleration
}

// AccelSampler is the external collaborator that hands back accelerometer
// samples collected during (or after) excitation; modelled as a closure so
// callers can source samples from the FIFO transport, a simulation, or a
// recorded fixture.
type AccelSampler interface {
	// Collect blocks (in the caller thread) until approximately
	// durationS worth of samples are available, and returns them.
	Collect(durationS float64) ([]Sample3, error)
}

// StepPusher is the narrow collaborator vibrate_measure needs from the
// step queue: pushing pre-built wire step events directly, bypassing the
// move-segment builder (spec.md §4.11 step 2).
type StepPusher interface {
	Push(ev core.WireStepEvent) error
}

// BuildExcitationSteps turns a single-sine displacement trajectory into a
// sequence of whole-step events. Amplitude is rounded to a whole number of
// steps; the returned actualFreqHz is re-derived from the rounded step
// count so the caller reports what was actually commanded rather than the
// nominal request (spec.md §4.11 step 1).
func BuildExcitationSteps(p ExcitationParams, stepsPerMM float64) (events []core.WireStepEvent, actualFreqHz float64, amplitudeMM float64) {
	if p.FreqHz <= 0 || p.Cycles <= 0 || stepsPerMM <= 0 {
		return nil, 0, 0
	}
	// amplitude of a sinusoidal position trajectory with peak
	// acceleration p.AccelMMPS2 at angular frequency omega: a = A*omega^2.
	omega := 2 * math.Pi * p.FreqHz
	amplitude := p.AccelMMPS2 / (omega * omega)
	steps := math.Round(amplitude * stepsPerMM)
	if steps < 1 {
		steps = 1
	}
	amplitudeMM = steps / stepsPerMM
	// Recompute the frequency that gives this rounded amplitude the same
	// peak acceleration.
	actualOmega := math.Sqrt(p.AccelMMPS2 / amplitudeMM)
	actualFreqHz = actualOmega / (2 * math.Pi)

	period := 1.0 / actualFreqHz
	totalTime := period * float64(p.Cycles)
	// Quarter-period-resolution step schedule: one step event per
	// quarter cycle toggling direction, matching a single-sine drive.
	quarter := period / 4
	n := int(totalTime / quarter)
	forward := p.DirectionPositive
	for i := 0; i < n; i++ {
		flags := core.StepEventFlagStepX | core.StepEventFlagActiveX
		if forward {
			flags |= core.StepEventFlagDirX
		}
		delta := uint32(0)
		if i > 0 {
			delta = uint32(quarter * float64(core.TimerFreq))
		}
		events = append(events, core.WireStepEvent{TimeTicks: uint16(delta), Flags: flags})
		forward = !forward
	}
	return events, actualFreqHz, amplitudeMM
}

// VibrateMeasure runs one excitation + measurement cycle (spec.md §4.11
// "vibrate_measure"). It retries transient accelerometer errors up to 3
// times before giving up.
func VibrateMeasure(p ExcitationParams, stepsPerMM float64, pusher StepPusher, sampler AccelSampler) (ExcitationResult, error) {
	events, actualFreq, _ := BuildExcitationSteps(p, stepsPerMM)
	if len(events) == 0 {
		return ExcitationResult{}, errTuningNoSteps
	}

	const maxRetries = 3
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		lastErr = nil
		for _, ev := range events {
			if err := pusher.Push(ev); err != nil {
				lastErr = err
				break
			}
		}
		if lastErr != nil {
			continue
		}

		period := 1.0 / actualFreq
		waitS := period * float64(p.WaitCycles)
		measureCycles := p.MeasureCycles
		if measureCycles == 0 {
			measureCycles = p.Cycles
		}
		measureS := period * float64(measureCycles)

		if waitS > 0 {
			if _, err := sampler.Collect(waitS); err != nil {
				lastErr = err
				continue
			}
		}

		samples, err := sampler.Collect(measureS)
		if err != nil {
			lastErr = err
			continue
		}
		if len(samples) == 0 {
			lastErr = errTuningNoSamples
			continue
		}

		harmonic := actualFreq // fundamental by default; callers scale
		bin := FourierSeries3d(samples, harmonic)
		amp := bin.Magnitude()
		gain := 0.0
		if p.AccelMMPS2 != 0 {
			gain = amp / p.AccelMMPS2
		}
		return ExcitationResult{FrequencyHz: actualFreq, Amplitude: amp, Gain: gain}, nil
	}
	if lastErr == nil {
		lastErr = errTuningNoSamples
	}
	return ExcitationResult{}, lastErr
}

type tuningError string

func (e tuningError) Error() string { return string(e) }

const (
	errTuningNoSteps   = tuningError("tuning: excitation produced no steps")
	errTuningNoSamples = tuningError("tuning: no accelerometer samples collected")
)
