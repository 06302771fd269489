package core

import "errors"

// PlannerBlock is the planner's output as consumed by the move-segment
// builder: one linear move with entry/cruise/exit velocities, acceleration,
// distance travelled, and the axis direction/active bits the planner
// already resolved via its own inverse kinematics.
type PlannerBlock struct {
	StartVel, CruiseVel, EndVel float64 // mm/s
	Accel                       float64 // mm/s^2, magnitude
	Distance                    float64 // mm travelled along the block

	AxesUnit [AxisCount]float64 // per-axis direction cosines
	Active   [AxisCount]bool
	Dir      [AxisCount]bool // true = positive direction

	// UsedSinceHalt marks axes touched since the last halt; propagated into
	// the reset-position flags of the first segment emitted after a halt.
	UsedSinceHalt [AxisCount]bool
}

// ErrBuilderWouldBlock is reported when the move queue has no free slot;
// the caller should retry the same block later.
var ErrBuilderWouldBlock = errors.New("move queue full, would block")

// MoveBuilder turns planner blocks into move segments (accel/cruise/decel)
// pushed onto a MoveQueue, tracking the absolute print-time and position
// cursors across blocks.
type MoveBuilder struct {
	Queue *MoveQueue

	printTime float64
	startPos  [AxisCount]float64

	halted         bool
	maxLookback    float64 // seconds; largest lookback time of any active generator
	pendingUsed    [AxisCount]bool
}

// NewMoveBuilder creates a builder writing into q, with the given initial
// absolute position.
func NewMoveBuilder(q *MoveQueue, startPos [AxisCount]float64) *MoveBuilder {
	return &MoveBuilder{Queue: q, startPos: startPos, halted: true}
}

// SetMaxLookback sets the lookback time (seconds) the longest-lookback
// generator requires; used to size the beginning-empty move.
func (b *MoveBuilder) SetMaxLookback(t float64) { b.maxLookback = t }

// emit pushes one segment, stamping its print_time/start_pos cursors, and
// advances them past the segment's duration/displacement.
func (b *MoveBuilder) emit(seg MoveSegment) error {
	seg.PrintTime = b.printTime
	seg.StartPos = b.startPos
	if err := b.Queue.Push(seg); err != nil {
		return err
	}
	b.printTime += seg.Duration
	disp := seg.StartV*seg.Duration + seg.HalfAccel*seg.Duration*seg.Duration
	for a := Axis(0); a < AxisCount; a++ {
		b.startPos[a] += disp * seg.AxesUnit[a]
	}
	return nil
}

// BeginMotion emits the synthetic beginning-empty move that primes every
// shaper tap with a real segment to point at before real motion starts. No-op
// if motion is already running (not halted).
func (b *MoveBuilder) BeginMotion() error {
	if !b.halted {
		return nil
	}
	if b.Queue.FreeSlots() < 1+1 {
		return ErrBuilderWouldBlock
	}
	dur := b.maxLookback + 0.001 // +1ms, per spec
	seg := MoveSegment{
		Duration: dur,
		Flags:    MoveFlagBeginningEmpty | MoveFlagFirst,
	}
	if err := b.emit(seg); err != nil {
		return err
	}
	b.halted = false
	return nil
}

// EndMotion emits the sentinel ending-empty move on planner drain.
func (b *MoveBuilder) EndMotion() error {
	if b.Queue.FreeSlots() == 0 {
		return ErrBuilderWouldBlock
	}
	seg := MoveSegment{
		Duration: EndingEmptyMoveDuration,
		Flags:    MoveFlagEndingEmpty | MoveFlagLast,
	}
	if err := b.emit(seg); err != nil {
		return err
	}
	b.halted = true
	return nil
}

// AddBlock converts one planner block into up to three move segments
// (accel/cruise/decel). Phases no longer than EpsilonDistance are dropped;
// their distance is not added to the adjacent phase. Returns
// ErrBuilderWouldBlock if the queue lacks a free slot; the caller must
// retry the identical block later (nothing is partially emitted on that
// error, since FreeSlots is checked for the worst case up front). One slot
// is always left free for the ending-empty move.
func (b *MoveBuilder) AddBlock(blk PlannerBlock) error {
	if b.halted {
		if err := b.BeginMotion(); err != nil {
			return err
		}
	}
	if b.Queue.FreeSlots() < 3+1 {
		return ErrBuilderWouldBlock
	}

	vs, vc, ve, a, total := blk.StartVel, blk.CruiseVel, blk.EndVel, blk.Accel, blk.Distance

	var accelDist, decelDist float64
	if a > 0 {
		accelDist = (vc*vc - vs*vs) / (2 * a)
		decelDist = (vc*vc - ve*ve) / (2 * a)
	}
	if accelDist < 0 {
		accelDist = 0
	}
	if decelDist < 0 {
		decelDist = 0
	}
	if accelDist > total {
		accelDist = total
	}
	if decelDist > total {
		decelDist = total
	}

	var cruiseDist float64
	if accelDist+decelDist >= total {
		// No cruise phase: recompute the reachable peak velocity and split
		// total into accel-only and decel-only.
		if a > 0 {
			peakSq := a*total + (vs*vs+ve*ve)/2
			vc = Sqrtf(peakSq)
			accelDist = (vc*vc - vs*vs) / (2 * a)
			if accelDist < 0 {
				accelDist = 0
			}
			if accelDist > total {
				accelDist = total
			}
			decelDist = total - accelDist
		} else {
			accelDist, decelDist = 0, 0
		}
		cruiseDist = 0
	} else {
		cruiseDist = total - accelDist - decelDist
	}

	type phase struct {
		startV, endV, dist float64
	}
	phases := []phase{}
	if accelDist > EpsilonDistance {
		phases = append(phases, phase{vs, vc, accelDist})
	}
	if cruiseDist > EpsilonDistance {
		phases = append(phases, phase{vc, vc, cruiseDist})
	}
	if decelDist > EpsilonDistance {
		phases = append(phases, phase{vc, ve, decelDist})
	}
	if len(phases) == 0 {
		// Degenerate zero-length block: still emit one zero-duration-ish
		// cruise phase carrying the direction/active bits forward so
		// downstream generators see consistent axis flags.
		phases = append(phases, phase{vs, ve, total})
	}

	for i, p := range phases {
		var dur float64
		switch {
		case p.endV != p.startV && a > 0:
			dur = absf(p.endV-p.startV) / a
		case p.dist > 0 && p.startV > 0:
			dur = p.dist / p.startV
		}
		halfAccel := 0.0
		if dur > 0 {
			halfAccel = (p.endV - p.startV) / (2 * dur)
		}

		seg := MoveSegment{
			StartV:    p.startV,
			HalfAccel: halfAccel,
			Duration:  dur,
			AxesUnit:  blk.AxesUnit,
		}
		if i == 0 {
			seg.Flags |= MoveFlagFirst
		}
		if i == len(phases)-1 {
			seg.Flags |= MoveFlagLast
		}
		for ax := Axis(0); ax < AxisCount; ax++ {
			seg.SetActive(ax, blk.Active[ax])
			seg.SetDirection(ax, blk.Dir[ax])
			if i == 0 && blk.UsedSinceHalt[ax] {
				seg.SetReset(ax, true)
			}
		}
		if err := b.emit(seg); err != nil {
			return err
		}
	}
	return nil
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
