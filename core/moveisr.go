package core

import "sort"

// MaxStepEventsPerISR bounds how many step events the move ISR will draw
// from a single axis generator in one dispatch, keeping the move ISR's
// per-tick worst case bounded (spec.md §4.6, §5).
const MaxStepEventsPerISR = 8

// maxBlockDrainSlack is added to BlockSource.QueuedCount to bound how many
// planner blocks the move ISR will pull in one tick; spec.md §4.6 says
// "bounded iteration count (<= block count + 1)".
const maxBlockDrainSlack = 1

// BlockSource is the external planner collaborator: it hands over blocks
// already resolved to per-axis kinematics (direction bits, active bits,
// axis-unit ratios) and reports how many more it currently holds queued.
type BlockSource interface {
	// NextBlock returns the next queued block, or ok=false if the planner
	// has nothing ready right now (not the same as "drained": see Drained).
	NextBlock() (blk PlannerBlock, ok bool)
	// QueuedCount reports how many blocks are currently buffered in the
	// planner, used only to size the per-tick drain bound.
	QueuedCount() int
	// Drained reports whether the planner has permanently finished
	// (motion stopped, no more blocks will ever arrive) so the move ISR
	// knows to emit the ending-empty move.
	Drained() bool
}

// axisSlot pairs one physical axis's generator with its step-tick
// conversion and bookkeeping needed by the move ISR.
type axisSlot struct {
	axis       Axis
	gen        StepGenerator
	endOfMotion bool
}

// MoveISRScheduler implements spec.md §4.6: periodically drains planner
// blocks into the move queue and advances every axis generator, staging
// produced events through a StepMerger into the step queue.
type MoveISRScheduler struct {
	Builder *MoveBuilder
	Source  BlockSource
	Merger  *StepMerger

	slots []axisSlot

	lastEventTicks uint32
	haveLastEvent  bool

	stopPending bool

	// Diagnostics (spec.md §7).
	MoveUnderflowCount uint32
	endOfMotionPending bool
}

// NewMoveISRScheduler creates a scheduler over the given axis generators.
func NewMoveISRScheduler(builder *MoveBuilder, source BlockSource, merger *StepMerger, gens map[Axis]StepGenerator) *MoveISRScheduler {
	s := &MoveISRScheduler{Builder: builder, Source: source, Merger: merger}
	maxLookback := 0.0
	for a := Axis(0); a < AxisCount; a++ {
		g, ok := gens[a]
		if !ok {
			continue
		}
		s.slots = append(s.slots, axisSlot{axis: a, gen: g})
		if lb := g.LookbackTime(); lb > maxLookback {
			maxLookback = lb
		}
	}
	builder.SetMaxLookback(maxLookback)
	return s
}

// RequestStop sets the stop_pending flag; the next Tick short-circuits.
func (s *MoveISRScheduler) RequestStop() { s.stopPending = true }

// drainBlocks pulls planner blocks into the move queue until either the
// queue fills, the planner has nothing more ready, or the bounded
// iteration count is reached.
func (s *MoveISRScheduler) drainBlocks() {
	if s.Source == nil {
		return
	}
	limit := s.Source.QueuedCount() + maxBlockDrainSlack
	for i := 0; i < limit; i++ {
		blk, ok := s.Source.NextBlock()
		if !ok {
			if s.Source.Drained() {
				_ = s.Builder.EndMotion()
			}
			return
		}
		if err := s.Builder.AddBlock(blk); err == ErrBuilderWouldBlock {
			return
		}
	}
}

// secondsToTicks converts an absolute print-time (seconds since motion
// start) to an absolute timer-tick count, using the system timer frequency.
func secondsToTicks(t float64) uint32 {
	if t < 0 {
		t = 0
	}
	return uint32(t * float64(TimerFreq))
}

// Tick runs one move-ISR dispatch: drains blocks, advances every axis
// generator up to MaxStepEventsPerISR new events each, and stages the
// resulting events (time-ordered across axes) through the merger.
func (s *MoveISRScheduler) Tick(now float64) error {
	if s.stopPending {
		s.ResetQueues()
		s.stopPending = false
		return nil
	}

	s.drainBlocks()

	type ready struct {
		axis Axis
		gen  StepGenerator
		ev   StepEvent
		t    float64
	}
	var batch []ready

	for i := range s.slots {
		slot := &s.slots[i]
		if slot.endOfMotion {
			continue
		}
		for n := 0; n < MaxStepEventsPerISR; n++ {
			status := slot.gen.Advance(now)
			switch status {
			case StatusOK:
				ev, ok := slot.gen.Take()
				if !ok {
					continue
				}
				batch = append(batch, ready{axis: slot.axis, gen: slot.gen, ev: ev, t: slot.gen.EventTime()})
			case StatusNeedsMoveSegment:
				s.drainBlocks()
				if slot.gen.Advance(now) == StatusNeedsMoveSegment {
					s.MoveUnderflowCount++
				}
				n = MaxStepEventsPerISR
			case StatusEndOfMotion:
				slot.endOfMotion = true
				n = MaxStepEventsPerISR
			}
		}
	}

	sort.Slice(batch, func(i, j int) bool { return batch[i].t < batch[j].t })

	for _, r := range batch {
		ticks := secondsToTicks(r.t)
		var delta uint32
		if s.haveLastEvent {
			delta = ticks - s.lastEventTicks
		}
		if err := s.Merger.Push(delta, r.ev); err != nil {
			return err
		}
		s.lastEventTicks = ticks
		s.haveLastEvent = true
		if r.ev.Flags&StepEventFlagBeginningOfMove != 0 {
			s.Merger.MarkBeginningOfMove()
		}
	}

	if s.allEndOfMotion() && len(batch) == 0 {
		if !s.endOfMotionPending {
			s.endOfMotionPending = true
			return s.Merger.PushEndOfMotion()
		}
	}
	return nil
}

func (s *MoveISRScheduler) allEndOfMotion() bool {
	if len(s.slots) == 0 {
		return false
	}
	for i := range s.slots {
		if !s.slots[i].endOfMotion {
			return false
		}
	}
	return true
}

// ResetQueues implements spec.md §5's reset_queues(): clears the move queue,
// resets every generator (preserving sub-step fractions), and clears the
// merger/end-of-motion bookkeeping. The step queue is not touched here;
// StepISRScheduler.Reset clears it.
func (s *MoveISRScheduler) ResetQueues() {
	for i := range s.slots {
		s.slots[i].gen.Reset(true)
		s.slots[i].endOfMotion = false
	}
	s.Builder.Queue.Clear()
	s.Merger.Reset()
	s.haveLastEvent = false
	s.endOfMotionPending = false
}
