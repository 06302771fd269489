package tuning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motioncore/core"
)

type fakeSampler struct {
	samples []Sample3
	err     error
}

func (f *fakeSampler) Collect(durationS float64) ([]Sample3, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.samples, nil
}

// TestVibrateMeasureRetriesOnAccelError checks that an accelerometer error
// which persists through every attempt is returned to the caller.
func TestVibrateMeasureRetriesOnAccelError(t *testing.T) {
	q := &core.StepQueue{}
	sampler := &fakeSampler{err: errTuningNoSamples}
	params := ExcitationParams{
		Axes: AxisMaskX, DirectionPositive: true,
		FreqHz: 50, AccelMMPS2: 1000, Cycles: 10, MeasureCycles: 10,
	}
	_, err := VibrateMeasure(params, 80, q, sampler)
	require.Error(t, err)
}

func TestVibrateMeasureSucceeds(t *testing.T) {
	q := &core.StepQueue{}
	samples := []Sample3{{TimeS: 0, X: 1}, {TimeS: 0.001, X: -1}, {TimeS: 0.002, X: 1}}
	sampler := &fakeSampler{samples: samples}
	params := ExcitationParams{
		Axes: AxisMaskX, DirectionPositive: true,
		FreqHz: 50, AccelMMPS2: 1000, Cycles: 10, MeasureCycles: 10,
	}
	result, err := VibrateMeasure(params, 80, q, sampler)
	require.NoError(t, err)
	assert.Greater(t, result.FrequencyHz, 0.0)
}
