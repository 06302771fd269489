package core

// PressureAdvanceMinPositionDiff is the smallest meaningful position
// difference between two consecutive filtered samples (mm); differences
// below this snap to the earlier sample's time rather than emitting a step.
const PressureAdvanceMinPositionDiff = 1e-5

// PAWindow selects the pressure-advance smoothing window shape.
type PAWindow uint8

const (
	PAWindowBartlett PAWindow = iota
	PAWindowRectangular
)

// paInternalRate is the fixed internal sampling rate (Hz) used to derive the
// filter tap count N from the configured smooth time, per spec.md §4.4.
const paInternalRate = 10000.0

// paSample holds one raw, pre-filter extruder position sample alongside the
// absolute time it was taken.
type paSample struct {
	pos  float64
	time float64
}

// PressureAdvanceGenerator implements spec.md §4.4: a configurable
// Bartlett/rectangular smoothing window applied to start_pos(t) + alpha *
// v_e(t), replacing the classic generator on the extruder axis.
type PressureAdvanceGenerator struct {
	queue *MoveQueue
	axis  Axis

	halfStepMM float64
	alpha      float64 // pressure-advance value (mm of extra extrusion per mm/s)
	window     PAWindow
	rate       float64 // F_pa, Hz
	n          int     // tap count, odd

	weights []float64

	ring    []paSample
	ringPos int
	filled  int

	segIdx uint8
	hasSeg bool

	prevOut, curOut         float64
	prevTime, curTime       float64
	haveOut                 bool

	stepDir bool

	pending     StepEvent
	eventTime   float64
	havePending bool
}

// NewPressureAdvanceGenerator builds a generator for the extruder axis with
// pressure-advance value alpha (seconds-equivalent; see spec.md §4.4) and
// half-smooth-time halfSmoothTime (seconds).
func NewPressureAdvanceGenerator(q *MoveQueue, axis Axis, stepsPerMM, alpha, halfSmoothTime float64, window PAWindow) *PressureAdvanceGenerator {
	g := &PressureAdvanceGenerator{
		queue:      q,
		axis:       axis,
		halfStepMM: 1.0 / (2 * stepsPerMM),
		alpha:      alpha,
		window:     window,
	}
	g.configureWindow(halfSmoothTime)
	return g
}

// configureWindow derives N = 2*ceil(half_smooth_time*F_internal)+1 (rounded
// up to odd, already guaranteed by the +1), F_pa = 1/(2*half_smooth_time/(N-1)),
// and the normalised window weights.
func (g *PressureAdvanceGenerator) configureWindow(halfSmoothTime float64) {
	if halfSmoothTime <= 0 {
		g.n = 1
		g.rate = paInternalRate
		g.weights = []float64{1}
		g.ring = make([]paSample, 1)
		return
	}
	half := int(halfSmoothTime*paInternalRate + 0.999999)
	if half < 1 {
		half = 1
	}
	g.n = 2*half + 1
	g.rate = 1 / (2 * halfSmoothTime / float64(g.n-1))
	g.weights = buildPAWindow(g.n, g.window)
	g.ring = make([]paSample, g.n)
}

func buildPAWindow(n int, w PAWindow) []float64 {
	weights := make([]float64, n)
	var sum float64
	switch w {
	case PAWindowRectangular:
		for i := range weights {
			weights[i] = 1
			sum += 1
		}
	default: // Bartlett (triangular)
		mid := float64(n-1) / 2
		for i := range weights {
			d := mid - absf(float64(i)-mid)
			weights[i] = d + 1
			sum += weights[i]
		}
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

func (g *PressureAdvanceGenerator) Kind() GeneratorKind   { return GeneratorPressureAdvance }
func (g *PressureAdvanceGenerator) LookbackTime() float64 { return 0 }

// SetAlpha updates the pressure-advance value at runtime (M572 S<value>).
// The caller is responsible for the "disable on alpha=0" transition
// described in spec.md §4.4 — that is a scheduler-level policy
// (replace the generator with the classic one), not this type's concern.
func (g *PressureAdvanceGenerator) SetAlpha(alpha float64) { g.alpha = alpha }

func (g *PressureAdvanceGenerator) acquireFirst() bool {
	if !g.queue.HasQueued() {
		return false
	}
	g.segIdx = g.queue.tail
	seg := g.queue.At(g.segIdx)
	seg.ReferenceCount++
	g.hasSeg = true
	return true
}

func (g *PressureAdvanceGenerator) advanceSeg() bool {
	g.queue.At(g.segIdx).ReferenceCount--
	next, ok := g.queue.IndexAfter(g.segIdx)
	if !ok {
		g.hasSeg = false
		return false
	}
	g.segIdx = next
	g.queue.At(g.segIdx).ReferenceCount++
	return true
}

// sampleAt returns the raw (unfiltered) extruder position plus
// alpha*velocity at absolute time t, walking segments forward as needed, and
// whether the queue currently has enough lookahead to answer.
func (g *PressureAdvanceGenerator) sampleAt(t float64) (float64, bool) {
	if !g.hasSeg {
		if !g.acquireFirst() {
			return 0, false
		}
	}
	for {
		seg := g.queue.At(g.segIdx)
		if t < seg.PrintTime+seg.Duration || seg.Flags&MoveFlagEndingEmpty != 0 {
			dt := t - seg.PrintTime
			if dt < 0 {
				dt = 0
			}
			v := seg.StartV*seg.AxesUnit[g.axis] + 2*seg.HalfAccel*seg.AxesUnit[g.axis]*dt
			pos := seg.StartPos[g.axis] + seg.StartV*seg.AxesUnit[g.axis]*dt + seg.HalfAccel*seg.AxesUnit[g.axis]*dt*dt
			return pos + g.alpha*v, true
		}
		if !g.advanceSeg() {
			return 0, false
		}
	}
}

// pushSample shifts one new raw sample into the ring and recomputes the
// filtered output for the sample that is now centered in the window.
func (g *PressureAdvanceGenerator) pushSample(t float64) bool {
	raw, ok := g.sampleAt(t)
	if !ok {
		return false
	}
	g.ring[g.ringPos] = paSample{pos: raw, time: t}
	g.ringPos = (g.ringPos + 1) % g.n
	if g.filled < g.n {
		g.filled++
	}
	if g.filled < g.n {
		return true
	}
	var out float64
	for i := 0; i < g.n; i++ {
		idx := (g.ringPos + i) % g.n
		out += g.weights[i] * g.ring[idx].pos
	}
	centerIdx := (g.ringPos + g.n/2) % g.n
	centerTime := g.ring[centerIdx].time
	g.prevOut, g.prevTime = g.curOut, g.curTime
	g.curOut, g.curTime = out, centerTime
	if !g.haveOut {
		g.prevOut, g.prevTime = out, centerTime
		g.haveOut = true
	}
	return true
}

// Advance pulls raw samples at the internal sample rate until a pending step
// event can be produced from the filtered output, per spec.md §4.4: step
// times come from linear interpolation between consecutive filtered samples
// whose position difference exceeds half a mini-step.
func (g *PressureAdvanceGenerator) Advance(now float64) StepGeneratorStatus {
	if g.havePending {
		return StatusOK
	}
	for i := 0; i < 64; i++ {
		t := g.prevTime + 1/g.rate
		if !g.haveOut {
			t = now
		}
		if !g.pushSample(t) {
			if g.hasSeg && g.queue.At(g.segIdx).Flags&MoveFlagEndingEmpty != 0 {
				return StatusEndOfMotion
			}
			return StatusNeedsMoveSegment
		}
		diff := g.curOut - g.prevOut
		if absf(diff) < PressureAdvanceMinPositionDiff {
			continue
		}
		g.stepDir = diff > 0
		if g.tryEmit() {
			return StatusOK
		}
	}
	return StatusOK
}

// tryEmit checks whether the interpolated path between prevOut and curOut
// crosses the next half-step boundary and, if so, stages the step event.
func (g *PressureAdvanceGenerator) tryEmit() bool {
	steps := g.prevOut / g.halfStepMM
	var n float64
	if g.stepDir {
		n = floorf(steps) + 1
	} else {
		n = ceilf(steps) - 1
	}
	target := n * g.halfStepMM
	lo, hi := g.prevOut, g.curOut
	if lo > hi {
		lo, hi = hi, lo
	}
	if target < lo || target > hi {
		return false
	}
	// Linear interpolation between the two filtered samples for the
	// boundary-crossing time; snaps to prevTime when the span collapses
	// (hi==lo handled above via the min-diff threshold in Advance).
	frac := (target - g.prevOut) / (g.curOut - g.prevOut)
	g.eventTime = g.prevTime + frac*(g.curTime-g.prevTime)
	g.pending = StepEvent{Flags: activeBit(g.axis) | stepBit(g.axis)}
	if g.stepDir {
		g.pending.Flags |= dirBit(g.axis)
	}
	g.havePending = true
	return true
}

// EventTime returns the absolute time (seconds) of the most recently staged
// pending event.
func (g *PressureAdvanceGenerator) EventTime() float64 { return g.eventTime }

func (g *PressureAdvanceGenerator) Take() (StepEvent, bool) {
	if !g.havePending {
		return StepEvent{}, false
	}
	g.havePending = false
	return g.pending, true
}

func (g *PressureAdvanceGenerator) OnMoveConsumed() {}

func (g *PressureAdvanceGenerator) Reset(preserveSubStep bool) {
	if g.hasSeg {
		g.queue.At(g.segIdx).ReferenceCount--
	}
	g.hasSeg = false
	g.havePending = false
	g.haveOut = false
	g.filled = 0
	g.ringPos = 0
	if !preserveSubStep {
		g.prevOut, g.curOut = 0, 0
	}
}
