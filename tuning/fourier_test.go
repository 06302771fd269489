package tuning

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestFourierSeries3dExtractsKnownTone checks the single-bin DFT recovers
// the amplitude of a synthetic pure tone (spec.md §4.11 step 3).
func TestFourierSeries3dExtractsKnownTone(t *testing.T) {
	const freq = 50.0
	const amp = 2.5
	const fs = 2000.0
	n := 4000
	samples := make([]Sample3, n)
	for i := 0; i < n; i++ {
		tS := float64(i) / fs
		samples[i] = Sample3{
			TimeS: tS,
			X:     amp * math.Sin(2*math.Pi*freq*tS),
		}
	}
	bin := FourierSeries3d(samples, freq)
	// Single-bin DFT of a pure sine of amplitude A yields magnitude A/2.
	assert.InDelta(t, amp/2, cabs(bin.X), 0.05)
}

func TestAccelSampleRateSane(t *testing.T) {
	assert.True(t, AccelSampleRateSane(1300))
	assert.False(t, AccelSampleRateSane(1000))
	assert.False(t, AccelSampleRateSane(1600))
}
