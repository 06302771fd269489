package tuning

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"motioncore/core"
)

// TestFindBestShaperSelectsZVAt50Hz is spec.md §8 scenario 6.
func TestFindBestShaperSelectsZVAt50Hz(t *testing.T) {
	psd := make([]PSDPoint, 0, 146)
	for f := 5.0; f <= 150; f++ {
		mag := 0.0
		if math.Abs(f-50) < 0.5 {
			mag = 1.0
		}
		psd = append(psd, PSDPoint{FreqHz: f, Magnitude: mag})
	}
	best := FindBestShaper(psd, 0.1)
	assert.Contains(t, []core.ShaperType{core.ShaperZV, core.ShaperMZV}, best.Type)
	assert.InDelta(t, 50, best.FreqHz, 1.0)
	assert.Equal(t, 0.1, best.Damping)
}

// TestShaperPulsesNormalised checks spec.md §8's shaper invariants: sum of
// amplitudes is 1, amplitude-weighted mean of times is 0.
func TestShaperPulsesNormalised(t *testing.T) {
	types := []core.ShaperType{
		core.ShaperZV, core.ShaperZVD, core.ShaperMZV,
		core.ShaperEI, core.ShaperEI2Hump, core.ShaperEI3Hump,
	}
	for _, st := range types {
		p := core.BuildShaper(st, 0.1, 40, 20)
		var sum, weighted float64
		for _, tap := range p.Pulses {
			sum += tap.Amplitude
			weighted += tap.Amplitude * tap.Time
		}
		assert.InDeltaf(t, 1.0, sum, 1e-6, "type %v", st)
		assert.InDeltaf(t, 0.0, weighted, 1e-6, "type %v", st)
	}
}
