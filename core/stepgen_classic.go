package core

// CoreXYProjection describes how a physical motor axis (A or B on a CoreXY
// kinematic) is synthesised from the X and Y logical axes: motor_unit =
// signX*X + signY*Y. A directly-mapped axis (X, Y, Z, E on Cartesian, or
// any axis on a CoreXY machine that isn't A/B) has a nil projection.
type CoreXYProjection struct {
	SignX, SignY float64
}

// ClassicGenerator implements spec.md §4.2: for each active axis, solve the
// quadratic start_pos + start_v*t + half_accel*t^2 = next_half_step_boundary
// for the smallest positive t.
type ClassicGenerator struct {
	queue   *MoveQueue
	axis    Axis
	project *CoreXYProjection
	halfStepMM float64 // mm per half microstep

	segIdx   uint8
	hasSeg   bool

	startV, halfAccel, startPos, segStart, segDuration float64
	stepDir    bool
	nextBoundary float64 // absolute mm, signed per direction
	lastEventTime float64

	pending    StepEvent
	havePending bool
}

// NewClassicGenerator creates a classic step generator reading from q for
// the given logical axis. stepsPerMM converts mm to whole steps; a
// microstep multiplier of 1 is assumed (callers scale stepsPerMM to
// include microstepping).
func NewClassicGenerator(q *MoveQueue, axis Axis, stepsPerMM float64, project *CoreXYProjection) *ClassicGenerator {
	return &ClassicGenerator{
		queue:      q,
		axis:       axis,
		project:    project,
		halfStepMM: 1.0 / (2 * stepsPerMM),
	}
}

func (g *ClassicGenerator) Kind() GeneratorKind { return GeneratorClassic }

func (g *ClassicGenerator) projected(seg *MoveSegment) (startV, halfAccel, startPos float64, active bool) {
	if g.project == nil {
		return seg.StartV * seg.AxesUnit[g.axis], seg.HalfAccel * seg.AxesUnit[g.axis], seg.StartPos[g.axis], seg.IsActive(g.axis)
	}
	unit := g.project.SignX*seg.AxesUnit[AxisX] + g.project.SignY*seg.AxesUnit[AxisY]
	pos := g.project.SignX*seg.StartPos[AxisX] + g.project.SignY*seg.StartPos[AxisY]
	return seg.StartV * unit, seg.HalfAccel * unit, pos, seg.IsActive(AxisX) || seg.IsActive(AxisY)
}

// acquireFirst finds the first segment in the queue available to this
// generator (starting from the queue's tail) if none is held yet.
func (g *ClassicGenerator) acquireFirst() bool {
	if !g.queue.HasQueued() {
		return false
	}
	g.segIdx = g.queue.tail
	return g.loadSeg()
}

func (g *ClassicGenerator) loadSeg() bool {
	seg := g.queue.At(g.segIdx)
	seg.ReferenceCount++
	sv, ha, sp, active := g.projected(seg)
	g.startV, g.halfAccel, g.startPos = sv, ha, sp
	g.segStart = seg.PrintTime
	g.segDuration = seg.Duration
	g.hasSeg = true
	if active {
		if g.project == nil {
			// Directly-mapped axis: the planner already resolved the
			// direction bit.
			g.stepDir = seg.Direction(g.axis)
		} else {
			// Synthesised motor axis (CoreXY A/B): direction follows the
			// sign of the projected motor velocity, tie-broken by accel.
			switch {
			case sv > 0, sv == 0 && ha > 0:
				g.stepDir = true
			case sv < 0, sv == 0 && ha < 0:
				g.stepDir = false
			}
		}
	}
	return true
}

func (g *ClassicGenerator) release() {
	seg := g.queue.At(g.segIdx)
	seg.ReferenceCount--
	g.hasSeg = false
}

func (g *ClassicGenerator) advanceSeg() bool {
	g.release()
	next, ok := g.queue.IndexAfter(g.segIdx)
	if !ok {
		return false
	}
	g.segIdx = next
	return g.loadSeg()
}

// Advance implements the quadratic solve. now is the absolute print time
// (seconds) the caller is asking the generator to make progress up to; the
// classic generator ignores it and instead solves purely from segment
// state, consistent with spec.md §4.2.
func (g *ClassicGenerator) Advance(now float64) StepGeneratorStatus {
	if g.havePending {
		return StatusOK
	}
	if !g.hasSeg {
		if !g.acquireFirst() {
			return StatusNeedsMoveSegment
		}
	}

	for {
		seg := g.queue.At(g.segIdx)
		if seg.Flags&MoveFlagEndingEmpty != 0 {
			return StatusEndOfMotion
		}

		var dir float64 = 1
		if !g.stepDir {
			dir = -1
		}
		target := g.nextHalfStepBoundary(dir)
		t, ok := solveQuadratic(g.startPos, g.startV, g.halfAccel, target)
		if ok && t >= 0 && t <= g.segDuration {
			g.nextBoundary = target
			g.lastEventTime = g.segStart + t
			g.pending = StepEvent{
				TimeTicks: 0, // filled by caller with tick conversion
				Flags:     activeBit(g.axis),
			}
			if g.stepDir {
				g.pending.Flags |= dirBit(g.axis)
			}
			g.pending.Flags |= stepBit(g.axis)
			g.havePending = true
			return StatusOK
		}

		// Cannot reach the boundary within this segment; advance.
		if !g.advanceSeg() {
			return StatusNeedsMoveSegment
		}
	}
}

// nextHalfStepBoundary returns the absolute mm position of the next
// half-step crossing ahead of startPos in the direction dir (+1/-1).
func (g *ClassicGenerator) nextHalfStepBoundary(dir float64) float64 {
	steps := g.startPos / g.halfStepMM
	var n float64
	if dir > 0 {
		n = floorf(steps) + 1
	} else {
		n = ceilf(steps) - 1
	}
	return n * g.halfStepMM
}

// EventTime returns the absolute time (seconds) of the most recently staged
// pending event.
func (g *ClassicGenerator) EventTime() float64 { return g.lastEventTime }

func (g *ClassicGenerator) Take() (StepEvent, bool) {
	if !g.havePending {
		return StepEvent{}, false
	}
	g.havePending = false
	return g.pending, true
}

func (g *ClassicGenerator) OnMoveConsumed() {
	// The classic generator releases its segment reference as soon as it
	// advances past it (see advanceSeg); nothing further to release here.
}

func (g *ClassicGenerator) LookbackTime() float64 { return 0 }

func (g *ClassicGenerator) Reset(preserveSubStep bool) {
	if g.hasSeg {
		g.release()
	}
	g.hasSeg = false
	g.havePending = false
	if !preserveSubStep {
		g.startPos = 0
	}
}

// solveQuadratic solves start_pos + start_v*t + half_accel*t^2 = target for
// the smallest non-negative t. Returns ok=false if no real, non-negative
// solution exists.
func solveQuadratic(startPos, startV, halfAccel, target float64) (float64, bool) {
	c := startPos - target
	a := halfAccel
	b := startV

	if a == 0 {
		if b == 0 {
			return 0, false
		}
		t := -c / b
		return t, t >= 0
	}

	disc := b*b - 4*a*c
	if disc < 0 {
		return 0, false
	}
	sq := Sqrtf(disc)
	t1 := (-b + sq) / (2 * a)
	t2 := (-b - sq) / (2 * a)

	// Prefer the smallest non-negative root; when both roots are
	// non-negative (rare, only possible very near a velocity reversal) the
	// earlier one is taken.
	lo, hi := t1, t2
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo >= -1e-9 {
		return maxf(lo, 0), true
	}
	if hi >= -1e-9 {
		return maxf(hi, 0), true
	}
	return 0, false
}

func floorf(v float64) float64 {
	i := float64(int64(v))
	if v < 0 && i != v {
		i--
	}
	return i
}

func ceilf(v float64) float64 {
	i := float64(int64(v))
	if v > 0 && i != v {
		i++
	}
	return i
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
