package tuning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHarmonicEvaluator struct {
	truePhase float64
	trueMag   float64
	rate      float64
	calls     int
}

func (e *fakeHarmonicEvaluator) Evaluate(forward bool, phaseOrMag float64, isPhase bool) (float64, float64, error) {
	e.calls++
	if isPhase {
		d := phaseOrMag - e.truePhase
		return d * d, e.rate, nil
	}
	d := phaseOrMag - e.trueMag
	return d * d, e.rate, nil
}

// TestCalibratePhaseHarmonicFindsMinimum checks the golden-section search
// converges toward the known phase/magnitude minimum.
func TestCalibratePhaseHarmonicFindsMinimum(t *testing.T) {
	eval := &fakeHarmonicEvaluator{truePhase: 0.02, trueMag: 0.5, rate: 1300}
	params := PhaseCalibrationParams{Harmonic: 1, PhaseWindowRad: 0.1, Iterations: 4, MotorElectricalFreqHz: 200}
	fwd, bck, ok := CalibratePhaseHarmonic(params, 0.0, 1.0, eval)
	require.True(t, ok)
	assert.InDelta(t, 0.02, fwd.Pha, 0.02)
	assert.InDelta(t, 0.02, bck.Pha, 0.02)
	assert.Greater(t, eval.calls, 0)
}

// TestCalibratePhaseHarmonicAbortsOnBadSampleRate checks the abort-on-error
// path (spec.md §7, §4.11): four consecutive out-of-range sample rates
// leave the result unchanged (ok=false).
func TestCalibratePhaseHarmonicAbortsOnBadSampleRate(t *testing.T) {
	eval := &fakeHarmonicEvaluator{truePhase: 0, trueMag: 0, rate: 50} // out of [1100,1500]
	params := PhaseCalibrationParams{Harmonic: 1, PhaseWindowRad: 0.1, Iterations: 18}
	_, _, ok := CalibratePhaseHarmonic(params, 0, 1, eval)
	assert.False(t, ok)
}
