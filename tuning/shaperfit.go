package tuning

import (
	"math"

	"motioncore/core"
)

// --- Shaper auto-fit (spec.md §4.11 "Shaper auto-fit") ---

// PSDPoint is one frequency/vibration-magnitude sample of the swept power
// spectrum.
type PSDPoint struct {
	FreqHz    float64
	Magnitude float64
}

// ShaperFitCandidate is one scored candidate returned by FindBestShaper.
type ShaperFitCandidate struct {
	Type      core.ShaperType
	FreqHz    float64
	Damping   float64
	Vibration float64
	Smoothing float64
	Score     float64
}

// shaperFitZetas are the damping ratios the auto-fit pessimises over
// (spec.md §4.11).
var shaperFitZetas = [...]float64{0.05, 0.10, 0.15}

// smoothingTemplateAccel/Vel are the reference accel/velocity used to
// derive a shaper's "smoothing" figure (spec.md §4.11: "5000 mm/s^2 /
// 5 mm/s template").
const (
	smoothingTemplateAccel = 5000.0
	smoothingTemplateVel   = 5.0
)

// shaperSmoothing estimates how much a shaper blurs a step input: the
// time-weighted spread of tap offsets scaled by the template's
// accel/velocity ratio, following Klipper's calibrate_shaper.py
// estimate_shaper formulation.
func shaperSmoothing(p core.ShaperPulses) float64 {
	if len(p.Pulses) == 0 {
		return 0
	}
	var spread float64
	for _, a := range p.Pulses {
		for _, b := range p.Pulses {
			dt := a.Time - b.Time
			spread += a.Amplitude * b.Amplitude * dt * dt
		}
	}
	accelTime := smoothingTemplateVel / smoothingTemplateAccel
	return math.Sqrt(spread) / accelTime
}

// remainingVibration estimates the fraction of input vibration at freqHz
// that survives after the shaper is applied, for one candidate damping
// ratio zeta, by evaluating the shaper's frequency response
// |sum(a_i * exp(-i*2*pi*f*t_i))| against an undamped unit input.
func remainingVibration(p core.ShaperPulses, freqHz, zeta float64) float64 {
	omega := 2 * math.Pi * freqHz
	dampedOmega := omega * math.Sqrt(1-zeta*zeta)
	var re, im float64
	for _, tap := range p.Pulses {
		decay := math.Exp(-zeta * omega * tap.Time)
		theta := dampedOmega * tap.Time
		re += tap.Amplitude * decay * math.Cos(theta)
		im += tap.Amplitude * decay * math.Sin(theta)
	}
	return math.Hypot(re, im)
}

// weightedVibration integrates remainingVibration over the measured PSD,
// weighting each frequency bin by its measured energy so shaper types
// tuned away from where the vibration actually lives score poorly
// (spec.md §4.11: "vib is the pessimised remaining vibration").
func weightedVibration(p core.ShaperPulses, psd []PSDPoint, zeta float64) float64 {
	var num, den float64
	for _, pt := range psd {
		v := remainingVibration(p, pt.FreqHz, zeta)
		num += pt.Magnitude * v
		den += pt.Magnitude
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// shaperScore implements the scoring function named in spec.md §4.11:
// smoothing * (vib^1.5 + 0.2*vib + 0.01), vib pessimised (max) over the
// candidate damping ratios and weighted by the measured PSD.
func shaperScore(p core.ShaperPulses, psd []PSDPoint) (vib, smoothing, score float64) {
	for _, zeta := range shaperFitZetas {
		v := weightedVibration(p, psd, zeta)
		if v > vib {
			vib = v
		}
	}
	smoothing = shaperSmoothing(p)
	score = smoothing * (math.Pow(vib, 1.5) + 0.2*vib + 0.01)
	return
}

// candidateShaperTypes is the search order FindBestShaper scores in;
// ties prefer the earlier entry (spec.md §8 scenario 6: "MZV on printers
// whose config lists MZV as first equally-scoring").
var candidateShaperTypes = []core.ShaperType{
	core.ShaperZV, core.ShaperMZV, core.ShaperZVD,
	core.ShaperEI, core.ShaperEI2Hump, core.ShaperEI3Hump,
}

// FreqSweepMin/Max bound the frequency search range (spec.md §4.11).
const (
	FreqSweepMin = 5.0
	FreqSweepMax = 150.0
)

// FindBestShaper sweeps each candidate shaper type over [FreqSweepMin,
// FreqSweepMax] against the measured PSD, keeping for each type the
// frequency that minimises its score, then selects the overall winner:
// the best-scoring type if it beats the runner-up by >=20% or has >=10%
// less smoothing than it; otherwise whichever of the two comes first in
// search order (spec.md §4.11).
func FindBestShaper(psd []PSDPoint, damping float64) ShaperFitCandidate {
	var best []ShaperFitCandidate
	for _, st := range candidateShaperTypes {
		var bestForType ShaperFitCandidate
		bestForType.Score = math.Inf(1)
		for _, pt := range psd {
			if pt.FreqHz < FreqSweepMin || pt.FreqHz > FreqSweepMax {
				continue
			}
			shaper := core.BuildShaper(st, damping, pt.FreqHz, 20)
			vib, smoothing, score := shaperScore(shaper, psd)
			if score < bestForType.Score {
				bestForType = ShaperFitCandidate{
					Type: st, FreqHz: pt.FreqHz, Damping: damping,
					Vibration: vib, Smoothing: smoothing, Score: score,
				}
			}
		}
		best = append(best, bestForType)
	}

	winner := best[0]
	for _, c := range best[1:] {
		if c.Score < winner.Score {
			winner = c
		}
	}
	// Find the runner-up (second-lowest score among distinct candidates).
	runnerUp := winner
	runnerUp.Score = math.Inf(1)
	for _, c := range best {
		if c.Type == winner.Type {
			continue
		}
		if c.Score < runnerUp.Score {
			runnerUp = c
		}
	}
	if math.IsInf(runnerUp.Score, 1) {
		return winner
	}
	if winner.Score <= 0.8*runnerUp.Score {
		return winner
	}
	if winner.Smoothing <= 0.9*runnerUp.Smoothing {
		return winner
	}
	// Neither margin met: return whichever of the winner and the runner-up
	// comes first in search order, even when that is the higher-scoring one.
	for _, st := range candidateShaperTypes {
		for _, c := range best {
			if c.Type == st && (c.Score == winner.Score || c.Score == runnerUp.Score) {
				return c
			}
		}
	}
	return winner
}
