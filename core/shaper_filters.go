package core

import "math"

// ShaperType identifies one of the input-shaper filter catalogue entries.
type ShaperType uint8

const (
	ShaperNone ShaperType = iota // identity shaper, one tap at t=0
	ShaperZV
	ShaperZVD
	ShaperMZV
	ShaperEI
	ShaperEI2Hump
	ShaperEI3Hump
)

// MaxPulses bounds the number of taps any catalogue entry produces.
const MaxPulses = 5

// InputShaperVelocityEpsilon / InputShaperAccelerationEpsilon are the
// snap-to-zero thresholds applied after every shaper state update.
const (
	InputShaperVelocityEpsilon     = 1e-4
	InputShaperAccelerationEpsilon = 0.1
)

// ShaperPulse is one weighted, time-shifted tap of a convolution filter.
type ShaperPulse struct {
	Amplitude float64 // a_i > 0
	Time      float64 // t_i, amplitude-weighted mean already subtracted
}

// ShaperPulses is an ordered, normalised set of taps: amplitudes sum to 1,
// times are monotonically increasing and shifted so their amplitude-weighted
// mean is zero.
type ShaperPulses struct {
	Pulses []ShaperPulse
}

// Lookback returns the maximum lookback time (-min(t_i)) this filter
// requires from the move queue.
func (s ShaperPulses) Lookback() float64 {
	if len(s.Pulses) == 0 {
		return 0
	}
	min := s.Pulses[0].Time
	for _, p := range s.Pulses[1:] {
		if p.Time < min {
			min = p.Time
		}
	}
	if min > 0 {
		return 0
	}
	return -min
}

func normalize(pulses []ShaperPulse) ShaperPulses {
	var sum float64
	for _, p := range pulses {
		sum += p.Amplitude
	}
	if sum == 0 {
		sum = 1
	}
	var weightedMean float64
	for i := range pulses {
		pulses[i].Amplitude /= sum
		weightedMean += pulses[i].Amplitude * pulses[i].Time
	}
	for i := range pulses {
		pulses[i].Time -= weightedMean
	}
	return ShaperPulses{Pulses: pulses}
}

// NullShaper is the identity filter: one tap at t=0, a=1. Used for axes
// without a configured shaper so the same generator code path can serve
// both shaped and unshaped axes.
func NullShaper() ShaperPulses {
	return ShaperPulses{Pulses: []ShaperPulse{{Amplitude: 1, Time: 0}}}
}

// dampingTerms returns the shared T_d and K terms used by every catalogue
// entry, given damping ratio zeta and target frequency freqHz.
func dampingTerms(zeta, freqHz float64) (td, k float64) {
	root := math.Sqrt(1 - zeta*zeta)
	td = 1 / (freqHz * root)
	k = math.Exp(-zeta * math.Pi / root)
	return
}

// BuildShaper constructs the catalogue entry for the given type, damping
// ratio, target frequency, and (for EI variants) vibration-tolerance
// vibrationReduction (vr, used as v_tol = 1/vr).
func BuildShaper(t ShaperType, zeta, freqHz, vibrationReduction float64) ShaperPulses {
	switch t {
	case ShaperZV:
		return buildZV(zeta, freqHz)
	case ShaperZVD:
		return buildZVD(zeta, freqHz)
	case ShaperMZV:
		return buildMZV(zeta, freqHz)
	case ShaperEI:
		return buildEI(zeta, freqHz, vibrationReduction)
	case ShaperEI2Hump:
		return buildEI2Hump(zeta, freqHz, vibrationReduction)
	case ShaperEI3Hump:
		return buildEI3Hump(zeta, freqHz, vibrationReduction)
	default:
		return NullShaper()
	}
}

func buildZV(zeta, freqHz float64) ShaperPulses {
	td, k := dampingTerms(zeta, freqHz)
	pulses := []ShaperPulse{
		{Amplitude: 1, Time: 0},
		{Amplitude: k, Time: 0.5 * td},
	}
	return normalize(pulses)
}

func buildZVD(zeta, freqHz float64) ShaperPulses {
	td, k := dampingTerms(zeta, freqHz)
	pulses := []ShaperPulse{
		{Amplitude: 1, Time: 0},
		{Amplitude: 2 * k, Time: 0.5 * td},
		{Amplitude: k * k, Time: td},
	}
	return normalize(pulses)
}

func buildMZV(zeta, freqHz float64) ShaperPulses {
	td, _ := dampingTerms(zeta, freqHz)
	root := math.Sqrt(1 - zeta*zeta)
	kp := math.Exp(-0.75 * zeta * math.Pi / root)
	a1 := 1 - 1/math.Sqrt2
	a2 := (math.Sqrt2 - 1) * kp
	a3 := a1 * kp * kp
	pulses := []ShaperPulse{
		{Amplitude: a1, Time: 0},
		{Amplitude: a2, Time: 0.375 * td},
		{Amplitude: a3, Time: 0.75 * td},
	}
	return normalize(pulses)
}

// eiCoefficients computes the closed-form amplitude/time pairs shared by
// the EI family, following the classic Singer/Seering extra-insensitive
// shaper derivation parameterised by damping ratio and vibration
// tolerance v_tol = 1/vibrationReduction.
func eiCoefficients(zeta, freqHz, vibrationReduction float64) (amps, times []float64) {
	if vibrationReduction <= 0 {
		vibrationReduction = 20
	}
	vTol := 1 / vibrationReduction
	td, k := dampingTerms(zeta, freqHz)

	a1 := 0.25 * (1 + vTol)
	a2 := 0.5 * (1 - vTol) * k
	a3 := a1 * k * k
	amps = []float64{a1, a2, a3}
	times = []float64{0, 0.5 * td, td}
	return
}

func buildEI(zeta, freqHz, vr float64) ShaperPulses {
	amps, times := eiCoefficients(zeta, freqHz, vr)
	pulses := make([]ShaperPulse, len(amps))
	for i := range amps {
		pulses[i] = ShaperPulse{Amplitude: amps[i], Time: times[i]}
	}
	return normalize(pulses)
}

func buildEI2Hump(zeta, freqHz, vr float64) ShaperPulses {
	if vr <= 0 {
		vr = 20
	}
	v := 1 / vr
	td, k := dampingTerms(zeta, freqHz)

	x := math.Cbrt(v * v * (math.Sqrt(1-v*v) + 1))
	a1 := (3*x*x + 2*x + 3*v*v) / (16 * x)
	a2 := (0.5 - a1) * k
	a3 := a2 * k
	a4 := a1 * k * k * k
	amps := []float64{a1, a2, a3, a4}
	times := []float64{0, 0.5 * td, td, 1.5 * td}
	pulses := make([]ShaperPulse, len(amps))
	for i := range amps {
		pulses[i] = ShaperPulse{Amplitude: amps[i], Time: times[i]}
	}
	return normalize(pulses)
}

func buildEI3Hump(zeta, freqHz, vr float64) ShaperPulses {
	if vr <= 0 {
		vr = 20
	}
	v := 1 / vr
	td, k := dampingTerms(zeta, freqHz)

	a1 := 0.0625 * (1 + 3*v + 2*math.Sqrt(2*(v+1)*v))
	a2 := 0.25 * (1 - v) * k
	a3 := (0.5*(1+v) - 2*a1) * k * k
	a4 := a2 * k * k
	a5 := a1 * k * k * k * k
	amps := []float64{a1, a2, a3, a4, a5}
	times := []float64{0, 0.5 * td, td, 1.5 * td, 2 * td}
	pulses := make([]ShaperPulse, len(amps))
	for i := range amps {
		pulses[i] = ShaperPulse{Amplitude: amps[i], Time: times[i]}
	}
	return normalize(pulses)
}

// ClampShaperFrequency restricts a requested frequency to the safe range,
// reporting whether clamping occurred so the caller can issue a warning
// (spec.md §7).
func ClampShaperFrequency(freqHz, min, max float64) (float64, bool) {
	if freqHz < min {
		return min, true
	}
	if freqHz > max {
		return max, true
	}
	return freqHz, false
}
