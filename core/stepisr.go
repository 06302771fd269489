package core

// MinReserveTicks is the minimum interval (ticks) the step ISR keeps in
// reserve when coalescing sub-threshold placeholder events, so a storm of
// zero/near-zero-delta events cannot cause unbounded ISR re-entry
// (spec.md §4.7).
const MinReserveTicks = uint32(TimerFreq) / 200000 // ~5us at 12MHz

// AxisPins names the GPIO pins a physical axis steps through.
type AxisPins struct {
	StepPin, DirPin GPIOPin
	InvertDir       bool
	SquareWave      bool // toggle the step pin instead of pulse set/reset
}

// PhaseModeQuery lets the step ISR skip DIR/STEP GPIO writes for axes the
// phase-stepping engine currently owns (spec.md §4.7 step 1): "not
// currently in phase-stepping mode".
type PhaseModeQuery interface {
	InPhaseMode(a Axis) bool
}

// StepISRScheduler implements spec.md §4.7: pops one step event per
// dispatch (a few when coalescing sub-threshold gaps), writes step/dir
// GPIOs, and reprograms the hardware compare-match deadline.
type StepISRScheduler struct {
	Queue *StepQueue
	Pins  [AxisCount]AxisPins
	Phase PhaseModeQuery

	CompareTimer Timer

	dirState [AxisCount]bool
	positions [AxisCount]int64

	stepDeadlineMiss uint32
	stepEventMiss    uint32
	sawEndOfMotion   bool

	// OnBeginningOfMove is invoked when a popped event carries
	// StepEventFlagBeginningOfMove, so the caller can retire the
	// originating planner block and apply its sync-position (spec.md
	// §4.5, §5 "Shared resources").
	OnBeginningOfMove func()
}

// NewStepISRScheduler creates a scheduler consuming q.
func NewStepISRScheduler(q *StepQueue, pins [AxisCount]AxisPins) *StepISRScheduler {
	return &StepISRScheduler{Queue: q, Pins: pins}
}

// Position returns the axis's whole-step counter.
func (s *StepISRScheduler) Position(a Axis) int64 { return s.positions[a] }

// applyEvent writes DIR/STEP GPIOs for one popped event and updates step
// counters, per spec.md §4.7 steps 1-2.
func (s *StepISRScheduler) applyEvent(ev WireStepEvent) {
	for a := Axis(0); a < AxisCount; a++ {
		if s.Phase != nil && s.Phase.InPhaseMode(a) {
			continue
		}
		pins := s.Pins[a]
		newDir := ev.Flags&dirBit(a) != 0
		if ev.Flags&activeBit(a) != 0 && newDir != s.dirState[a] {
			s.dirState[a] = newDir
			_ = MustGPIO().SetPin(pins.DirPin, newDir != pins.InvertDir)
		}
		if ev.Flags&stepBit(a) == 0 {
			continue
		}
		if pins.SquareWave {
			cur, _ := MustGPIO().GetPin(pins.StepPin)
			_ = MustGPIO().SetPin(pins.StepPin, !cur)
		} else {
			_ = MustGPIO().SetPin(pins.StepPin, true)
			_ = MustGPIO().SetPin(pins.StepPin, false)
		}
		if newDir {
			s.positions[a]++
		} else {
			s.positions[a]--
		}
	}
}

// Dispatch implements one step-ISR firing: pops and applies events,
// coalescing additional pops while their accumulated interval stays below
// MinReserveTicks, and returns the absolute tick deadline for the next
// compare match.
func (s *StepISRScheduler) Dispatch(nowTicks uint32) (nextDeadline uint32, haveNext bool) {
	var accumulated uint32
	for {
		ev, err := s.Queue.Pop()
		if err != nil {
			s.stepEventMiss++
			RecordTiming(EvtStepEventMiss, 0, nowTicks, s.stepEventMiss, 0)
			return 0, false
		}

		if ev.Flags&StepEventFlagBeginningOfMove != 0 && s.OnBeginningOfMove != nil {
			s.OnBeginningOfMove()
		}
		if ev.Flags&StepEventFlagEndOfMotion != 0 {
			s.sawEndOfMotion = true
			return 0, false
		}

		s.applyEvent(ev)

		ticks := uint32(ev.TimeTicks)
		if ticks > StepTimerMaxTicks {
			ticks = StepTimerMaxTicks
		}
		accumulated += ticks
		if accumulated >= MinReserveTicks || s.Queue.IsEmpty() {
			deadline := nowTicks + accumulated
			if int32(deadline-nowTicks) < 0 || deadline == nowTicks {
				// Scheduling into the past: clamp forward and carry the
				// shortfall as diagnostic only (spec.md §4.7 step 4).
				s.stepDeadlineMiss++
				RecordTiming(EvtStepDeadlineMiss, 0, nowTicks, s.stepDeadlineMiss, accumulated)
				deadline = nowTicks + MinReserveTicks
			}
			return deadline, true
		}
		// Sub-threshold gap: keep coalescing within this dispatch.
	}
}

// DeadlineMissCount / EventMissCount expose the diagnostic counters from
// spec.md §7.
func (s *StepISRScheduler) DeadlineMissCount() uint32 { return s.stepDeadlineMiss }
func (s *StepISRScheduler) EventMissCount() uint32    { return s.stepEventMiss }

// SawEndOfMotion reports whether the most recent Dispatch observed the
// end-of-motion marker.
func (s *StepISRScheduler) SawEndOfMotion() bool { return s.sawEndOfMotion }

// Reset clears queue-consumer state (called while the step ISR is
// disabled, per spec.md §3's "Cleared only while the step ISR is
// disabled").
func (s *StepISRScheduler) Reset() {
	s.Queue.Clear()
	s.sawEndOfMotion = false
	s.stepDeadlineMiss = 0
	s.stepEventMiss = 0
}
