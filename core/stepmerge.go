package core

// StepMerger implements spec.md §4.5: a single staging slot that fuses
// same-timestamp events across axes into one multi-step event when their
// step/active flags don't collide and direction bits agree, and splits
// overlong inter-event gaps into StepTimerMaxTicks placeholder events.
type StepMerger struct {
	queue *StepQueue

	staged    StepEvent
	haveStage bool

	firstStepPending bool // next flush stamps StepEventFlagFirstStep
	motionStarted    bool
}

// NewStepMerger creates a merger flushing into q.
func NewStepMerger(q *StepQueue) *StepMerger {
	return &StepMerger{queue: q, firstStepPending: true}
}

const stepAxisMask = StepEventFlagStepX | StepEventFlagStepY | StepEventFlagStepZ | StepEventFlagStepE
const activeAxisMask = StepEventFlagActiveX | StepEventFlagActiveY | StepEventFlagActiveZ | StepEventFlagActiveE
const dirAxisMask = StepEventFlagDirX | StepEventFlagDirY | StepEventFlagDirZ | StepEventFlagDirE

// canMerge reports whether incoming event ev (at zero delta from the
// staged event) can be OR'd into it: step/active bits on the axes both
// events touch must not collide, and shared axes' direction bits must
// agree.
func canMerge(staged, ev StepEvent) bool {
	stagedActive := staged.Flags & activeAxisMask
	evActive := ev.Flags & activeAxisMask
	shared := stagedActive & evActive
	if shared != 0 {
		// Axes both events claim active on must agree on direction.
		sharedDir := StepEventFlag(shared) >> 4
		if (staged.Flags&dirAxisMask)&sharedDir != (ev.Flags&dirAxisMask)&sharedDir {
			return false
		}
	}
	if staged.Flags&ev.Flags&stepAxisMask != 0 {
		// A step bit already staged for this tick: a second
		// step on the same axis within one tick cannot be merged away
		// (would lose a pulse), so force a flush instead of OR-ing.
		return false
	}
	return true
}

// Push submits one generator-produced event at delta ticks after the
// previously submitted one. delta==0 attempts to merge into the staged
// event; a non-zero delta flushes the stage (splitting oversized gaps) and
// replaces it.
func (m *StepMerger) Push(delta uint32, ev StepEvent) error {
	if !m.haveStage {
		m.staged = ev
		m.staged.TimeTicks = delta
		m.haveStage = true
		return nil
	}
	if delta == 0 && canMerge(m.staged, ev) {
		m.staged.Flags |= ev.Flags
		return nil
	}
	if err := m.flush(); err != nil {
		return err
	}
	m.staged = ev
	m.staged.TimeTicks = delta
	m.haveStage = true
	return nil
}

// flush emits the staged event, splitting its TimeTicks into a run of
// StepTimerMaxTicks placeholders (direction+active bits only) followed by a
// final event carrying the remainder and the full flag set, per spec.md
// §4.5's splitter rule.
func (m *StepMerger) flush() error {
	if !m.haveStage {
		return nil
	}
	delta := m.staged.TimeTicks
	flags := m.staged.Flags
	if m.firstStepPending {
		flags |= StepEventFlagFirstStep
		m.firstStepPending = false
	}

	full := uint32(StepTimerMaxTicks)
	for delta > full {
		if err := m.queue.Push(WireStepEvent{TimeTicks: StepTimerMaxTicks, Flags: flags & (dirAxisMask | activeAxisMask)}); err != nil {
			return err
		}
		delta -= full
	}
	if err := m.queue.Push(WireStepEvent{TimeTicks: uint16(delta), Flags: flags}); err != nil {
		return err
	}
	m.haveStage = false
	return nil
}

// Flush forces the currently staged event out (used at end-of-motion or
// when the move ISR yields without a new event ready).
func (m *StepMerger) Flush() error { return m.flush() }

// MarkBeginningOfMove stamps the staged event with
// StepEventFlagBeginningOfMove, called when a generator reports its current
// move segment was just consumed.
func (m *StepMerger) MarkBeginningOfMove() {
	if m.haveStage {
		m.staged.Flags |= StepEventFlagBeginningOfMove
	}
}

// PushEndOfMotion flushes any staged event and pushes a final zero-flag
// discard event stamped StepEventFlagEndOfMotion, once every generator has
// observed the ending-empty move.
func (m *StepMerger) PushEndOfMotion() error {
	if err := m.Flush(); err != nil {
		return err
	}
	if err := m.queue.Push(WireStepEvent{TimeTicks: 0, Flags: StepEventFlagEndOfMotion}); err != nil {
		return err
	}
	m.motionStarted = false
	m.firstStepPending = true
	return nil
}

// Reset clears merger state back to a fresh-motion-start condition, used by
// reset_queues() on stop_pending.
func (m *StepMerger) Reset() {
	m.haveStage = false
	m.firstStepPending = true
	m.motionStarted = false
}
