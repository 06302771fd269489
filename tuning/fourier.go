// Tuning and calibration routines (spec.md §4.11): vibration-excitation
// sweeps, a single-bin DFT used to extract per-frequency gain from
// accelerometer samples, input-shaper auto-fit, and phase-stepping
// harmonic golden-section search. All of this runs synchronously in a
// caller thread (never an ISR): no float-in-ISR concerns apply here.
package tuning

import "math"

// AxisMask selects which logical axes an excitation or measurement
// targets (spec.md §6 M958/M959 "X|Y|Z" argument).
type AxisMask uint8

const (
	AxisMaskX AxisMask = 1 << iota
	AxisMaskY
	AxisMaskZ
)

// Complex3 is a per-axis complex DFT bin, one for each of X, Y, Z.
type Complex3 struct {
	X, Y, Z complex128
}

// Sample3 is one accelerometer reading used by FourierSeries3d.
type Sample3 struct {
	TimeS  float64
	X, Y, Z float64
}

// FourierSeries3d computes the complex amplitude of samples at freqHz using
// a single-bin DFT (spec.md §4.11 step 3): sum(sample * exp(-i*2*pi*f*t))
// normalised by sample count. This is the same technique Klipper's
// calibrate_shaper.py and resonance testing use to pull one frequency's
// magnitude/phase out of a time series without a full FFT.
func FourierSeries3d(samples []Sample3, freqHz float64) Complex3 {
	var out Complex3
	if len(samples) == 0 {
		return out
	}
	n := float64(len(samples))
	for _, s := range samples {
		theta := -2 * math.Pi * freqHz * s.TimeS
		c := complex(math.Cos(theta), math.Sin(theta))
		out.X += complex(s.X, 0) * c
		out.Y += complex(s.Y, 0) * c
		out.Z += complex(s.Z, 0) * c
	}
	out.X /= complex(n, 0)
	out.Y /= complex(n, 0)
	out.Z /= complex(n, 0)
	return out
}

func cabs(c complex128) float64 { return math.Hypot(real(c), imag(c)) }

// Magnitude returns the Euclidean norm of the three per-axis magnitudes,
// the scalar "vibration" figure tuning routines score against.
func (c Complex3) Magnitude() float64 {
	mx, my, mz := cabs(c.X), cabs(c.Y), cabs(c.Z)
	return math.Sqrt(mx*mx + my*my + mz*mz)
}

// AccelSampleRateMin/Max bound the sane range for accelerometer sample
// rate sanity checks (spec.md §7, §4.11 "abort-on-error").
const (
	AccelSampleRateMin = 1100.0
	AccelSampleRateMax = 1500.0
)

// AccelSampleRateSane reports whether a measured sample rate falls within
// the accepted range.
func AccelSampleRateSane(hz float64) bool {
	return hz >= AccelSampleRateMin && hz <= AccelSampleRateMax
}
