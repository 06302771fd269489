package tuning

import (
	"math"

	"motioncore/core"
)

// --- Phase-stepping harmonic calibration (spec.md §4.11 "Phase-stepping
// calibration") ---

// PhaseCalibrationParams configures one harmonic's forward/backward search.
type PhaseCalibrationParams struct {
	Harmonic              int
	PhaseWindowRad        float64 // default 0.1
	Iterations            int     // default 18
	MotorElectricalFreqHz float64
}

// HarmonicEvaluator runs one short constant-velocity move in the given
// direction and returns the DFT magnitude of the configured harmonic bin,
// plus the accelerometer sample rate observed (for the sanity check).
type HarmonicEvaluator interface {
	Evaluate(forward bool, phaseOrMag float64, isPhase bool) (magnitude, sampleRateHz float64, err error)
}

// CalibratePhaseHarmonic implements spec.md §4.11's per-harmonic
// golden-section phase then magnitude search, interleaving forward and
// backward evaluations so the printer never idles between them. It
// aborts (leaving the harmonic unchanged) if either direction's sample
// rate fails the sanity check four times in a row.
func CalibratePhaseHarmonic(p PhaseCalibrationParams, basePhase float64, magWindow float64, eval HarmonicEvaluator) (fwd, bck core.Harmonic, ok bool) {
	window := p.PhaseWindowRad
	if window == 0 {
		window = 0.1
	}
	iters := p.Iterations
	if iters == 0 {
		iters = 18
	}

	fwdPhase, bckPhase := basePhase, basePhase
	consecutiveBadFwd, consecutiveBadBck := 0, 0

	for i := 0; i < iters; i++ {
		var failFwd, failBck bool
		fwdPhase, failFwd = searchOneDirection(true, fwdPhase, window, eval, &consecutiveBadFwd)
		bckPhase, failBck = searchOneDirection(false, bckPhase, window, eval, &consecutiveBadBck)
		if failFwd || failBck {
			return core.Harmonic{}, core.Harmonic{}, false
		}
	}

	fwdMag, bckMag := 0.0, 0.0
	for i := 0; i < iters; i++ {
		var failFwd, failBck bool
		fwdMag, failFwd = searchMagnitude(true, fwdMag, magWindow, eval, &consecutiveBadFwd)
		bckMag, failBck = searchMagnitude(false, bckMag, magWindow, eval, &consecutiveBadBck)
		if failFwd || failBck {
			return core.Harmonic{}, core.Harmonic{}, false
		}
	}

	return core.Harmonic{Mag: fwdMag, Pha: fwdPhase}, core.Harmonic{Mag: bckMag, Pha: bckPhase}, true
}

func searchOneDirection(forward bool, center, window float64, eval HarmonicEvaluator, consecutiveBad *int) (float64, bool) {
	tripped := false
	objective := func(phase float64) float64 {
		mag, rate, err := eval.Evaluate(forward, phase, true)
		if err != nil || !AccelSampleRateSane(rate) {
			*consecutiveBad++
			if *consecutiveBad >= 4 {
				tripped = true
			}
			return math.Inf(1)
		}
		*consecutiveBad = 0
		return mag
	}
	result, _ := GoldenSectionSearch(objective, center-window/2, center+window/2, 1e-4)
	return result, tripped
}

func searchMagnitude(forward bool, center, window float64, eval HarmonicEvaluator, consecutiveBad *int) (float64, bool) {
	tripped := false
	objective := func(mag float64) float64 {
		m, rate, err := eval.Evaluate(forward, mag, false)
		if err != nil || !AccelSampleRateSane(rate) {
			*consecutiveBad++
			if *consecutiveBad >= 4 {
				tripped = true
			}
			return math.Inf(1)
		}
		*consecutiveBad = 0
		return m
	}
	lo := center - window/2
	if lo < 0 {
		lo = 0
	}
	result, _ := GoldenSectionSearch(objective, lo, center+window/2, 1e-4)
	return result, tripped
}
