package core

// PhaseCurrentAmplitude is the signed coil-current magnitude (XDIRECT
// units) phase stepping commits at full current, before per-tick LUT
// correction.
const PhaseCurrentAmplitude = 127

// PhaseSPIFaultThreshold is the consecutive-miss count (spec.md §4.8 step
// 6: "if it exceeds a large threshold declare a fatal SPI fault") beyond
// which a phase axis is reported as faulted rather than silently retried.
const PhaseSPIFaultThreshold = 2000

// MoveTarget is one phase-stepping motion segment, as translated from a
// planner move by the auxiliary step generator (spec.md §4.8 "MoveTarget
// preparation"): electrical-length start position/velocity/acceleration
// held constant over Duration seconds.
type MoveTarget struct {
	StartPos  float64 // electrical length units at segment start
	StartVel  float64
	HalfAccel float64
	Duration  float64 // seconds

	refcount int32
}

// PendingMoveSource hands the phase-stepping engine its next MoveTarget,
// mirroring BlockSource's hookup for the move ISR (core/moveisr.go).
type PendingMoveSource interface {
	NextMoveTarget() (MoveTarget, bool)
}

// MicrostepCounter reads a driver's live microstep position and switches it
// between indexer and direct-current mode, the handoff spec.md §4.9
// describes for enabling/disabling phase stepping.
type MicrostepCounter interface {
	ReadMSCNT() (uint16, error)
	SetDirectMode(enabled bool) error
}

// StepResyncer issues discrete step pulses to walk a driver's MSCNT to a
// target phase, used when disabling phase stepping (spec.md §4.9). A
// BurstStepper satisfies this.
type StepResyncer interface {
	StepToward(axis Axis, currentMSCNT, targetMSCNT uint16) error
}

// PhaseAxis holds one axis's phase-stepping state: the corrected-current
// LUTs, the currently-committed MoveTarget, and the collaborators used to
// pull more targets and commit currents (spec.md §4.8).
type PhaseAxis struct {
	Axis Axis

	Active    bool
	Inverted  bool // axis convention: negate computed position

	StepsPerUnit float64
	Microsteps   int

	ZeroRotorPhase int32

	Forward  CorrectedLUT
	Backward CorrectedLUT

	Source PendingMoveSource
	TMC    *QuickTMC

	initialTime  uint32
	current      MoveTarget
	haveCurrent  bool
	lastPosition float64

	missedTxCount uint32
}

// PhaseStepEngine round-robins its registered axes once per Tick, matching
// spec.md §4.8's "runs from a dedicated ~90 kHz timer interrupt ...
// round-robins the supported axes" — one axis is serviced per dispatch, not
// all of them, so each axis effectively runs at (tick rate / axis count).
type PhaseStepEngine struct {
	axes []*PhaseAxis
	next int
}

// NewPhaseStepEngine creates an engine with no axes registered.
func NewPhaseStepEngine() *PhaseStepEngine {
	return &PhaseStepEngine{}
}

// AddAxis registers a, resuming round-robin from wherever the cursor is.
func (e *PhaseStepEngine) AddAxis(a *PhaseAxis) {
	e.axes = append(e.axes, a)
}

// Tick services one axis and returns the scheduler.Timer reschedule code
// (core/scheduler.go's SF_DONE/SF_RESCHEDULE), so it can be wired in
// directly as a Timer.Handler at the phase-stepping rate.
func (e *PhaseStepEngine) Tick(now uint32) uint8 {
	if len(e.axes) == 0 {
		return SF_DONE
	}
	a := e.axes[e.next]
	e.next = (e.next + 1) % len(e.axes)
	e.tickAxis(a, now)
	return SF_RESCHEDULE
}

func ticksToSeconds(ticks uint32) float64 {
	return float64(ticks) / float64(TimerFreq)
}

func (e *PhaseStepEngine) nextTarget(a *PhaseAxis) (MoveTarget, bool) {
	if a.Source == nil {
		return MoveTarget{}, false
	}
	return a.Source.NextMoveTarget()
}

// tickAxis implements spec.md §4.8 steps 1-6 for one axis.
func (e *PhaseStepEngine) tickAxis(a *PhaseAxis, now uint32) {
	if !a.Active {
		return
	}

	if !a.haveCurrent {
		next, ok := e.nextTarget(a)
		if !ok {
			return // hold at final position; nothing queued yet
		}
		a.current = next
		a.haveCurrent = true
		a.initialTime = now
	}

	moveEpoch := ticksToSeconds(now - a.initialTime)
	for moveEpoch > a.current.Duration {
		overshoot := moveEpoch - a.current.Duration
		a.current.refcount--
		next, ok := e.nextTarget(a)
		if !ok {
			// No pending target: hold at the retired move's final position.
			moveEpoch = a.current.Duration
			break
		}
		a.current = next
		a.initialTime = now - secondsToTicks(overshoot)
		moveEpoch = ticksToSeconds(now - a.initialTime)
	}

	pos := a.current.StartPos + a.current.StartVel*moveEpoch + a.current.HalfAccel*moveEpoch*moveEpoch
	if a.Inverted {
		pos = -pos
	}

	lastPhase := PosToPhase(a.StepsPerUnit, a.Microsteps, pos) + a.ZeroRotorPhase

	lut := &a.Forward
	if pos < a.lastPosition {
		lut = &a.Backward
	}
	a.lastPosition = pos

	coilA, coilB := lut.CoilCurrents(lastPhase, PhaseCurrentAmplitude)

	ok, err := a.TMC.Write(coilA, coilB)
	if err != nil || !ok {
		a.missedTxCount++
		if a.missedTxCount > PhaseSPIFaultThreshold {
			DebugPrintln("[PHASE] SPI fault threshold exceeded")
		}
		return
	}
	a.missedTxCount = 0
}

// Enable implements spec.md §4.9 "enable phase stepping (axis)": snapshots
// the driver's live microstep counter as the zero-rotor reference, commits
// an initial current, and marks the axis active. Callers must ensure
// motion is stopped first.
func (a *PhaseAxis) Enable(driver MicrostepCounter) error {
	mscnt, err := driver.ReadMSCNT()
	if err != nil {
		return err
	}
	a.ZeroRotorPhase = int32(mscnt)
	a.lastPosition = 0
	a.haveCurrent = false

	if err := driver.SetDirectMode(true); err != nil {
		return err
	}
	coilA, coilB := a.Forward.CoilCurrents(a.ZeroRotorPhase, PhaseCurrentAmplitude)
	if _, err := a.TMC.Write(coilA, coilB); err != nil {
		return err
	}
	a.Active = true
	return nil
}

// Disable implements spec.md §4.9 "disable phase stepping (axis)":
// re-synchronizes MSCNT to the last commanded phase via discrete steps,
// restores the driver's indexer mode, and marks the axis inactive. Callers
// must ensure motion is stopped first.
func (a *PhaseAxis) Disable(driver MicrostepCounter, resync StepResyncer) error {
	mscnt, err := driver.ReadMSCNT()
	if err != nil {
		return err
	}
	target := uint16(int32Mod(PosToPhase(a.StepsPerUnit, a.Microsteps, a.lastPosition)+a.ZeroRotorPhase, MotorPeriod))
	if err := resync.StepToward(a.Axis, mscnt, target); err != nil {
		return err
	}
	if err := driver.SetDirectMode(false); err != nil {
		return err
	}
	a.Active = false
	a.haveCurrent = false
	return nil
}
