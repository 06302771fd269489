package core

import "testing"

type fakeMoveSource struct {
	targets []MoveTarget
	i       int
}

func (s *fakeMoveSource) NextMoveTarget() (MoveTarget, bool) {
	if s.i >= len(s.targets) {
		return MoveTarget{}, false
	}
	t := s.targets[s.i]
	s.i++
	return t, true
}

type fakeSPIBus struct {
	locked  bool
	writes  int
	failNext bool
}

func (b *fakeSPIBus) TryLock() bool {
	if b.locked {
		return false
	}
	b.locked = true
	return true
}
func (b *fakeSPIBus) Unlock() { b.locked = false }
func (b *fakeSPIBus) WriteRegister(addr uint8, value uint32) error {
	b.writes++
	if b.failNext {
		b.failNext = false
		return errFakeWriteFailed
	}
	return nil
}

func TestPhaseStepEngineRoundRobinsAxes(t *testing.T) {
	e := NewPhaseStepEngine()
	a1 := &PhaseAxis{Axis: AxisX, StepsPerUnit: 80, Microsteps: 256, TMC: NewQuickTMC(&fakeSPIBus{})}
	a2 := &PhaseAxis{Axis: AxisY, StepsPerUnit: 80, Microsteps: 256, TMC: NewQuickTMC(&fakeSPIBus{})}
	e.AddAxis(a1)
	e.AddAxis(a2)

	if code := e.Tick(0); code != SF_RESCHEDULE {
		t.Fatalf("expected SF_RESCHEDULE, got %d", code)
	}
	if e.next != 1 {
		t.Fatalf("expected round-robin cursor at 1, got %d", e.next)
	}
	e.Tick(0)
	if e.next != 0 {
		t.Fatalf("expected round-robin cursor wrapped to 0, got %d", e.next)
	}
}

func TestPhaseAxisHoldsWhenInactive(t *testing.T) {
	e := NewPhaseStepEngine()
	a := &PhaseAxis{Axis: AxisX, StepsPerUnit: 80, Microsteps: 256, TMC: NewQuickTMC(&fakeSPIBus{})}
	e.AddAxis(a)
	e.Tick(1000)
	if a.haveCurrent {
		t.Fatal("inactive axis should never pick up a move target")
	}
}

func TestPhaseAxisAdvancesThroughMoveTargets(t *testing.T) {
	src := &fakeMoveSource{targets: []MoveTarget{
		{StartPos: 0, StartVel: 1000, Duration: 0.001},
		{StartPos: 1, StartVel: 1000, Duration: 0.001},
	}}
	bus := &fakeSPIBus{}
	a := &PhaseAxis{
		Axis: AxisX, Active: true,
		StepsPerUnit: 80, Microsteps: 256,
		Source: src, TMC: NewQuickTMC(bus),
	}
	e := NewPhaseStepEngine()
	e.AddAxis(a)

	e.Tick(0)
	if !a.haveCurrent {
		t.Fatal("expected the first move target to be picked up")
	}
	if bus.writes != 1 {
		t.Fatalf("expected one committed SPI write, got %d", bus.writes)
	}

	// Advance far enough past the first target's duration to force retiring
	// it and pulling the second.
	ticks := secondsToTicks(0.0015)
	e.Tick(ticks)
	if src.i != 2 {
		t.Fatalf("expected both move targets consumed, got %d", src.i)
	}
}

func TestPhaseAxisEnableSnapshotsZeroRotorPhase(t *testing.T) {
	driver := &fakeMSCNT{value: 512}
	a := &PhaseAxis{Axis: AxisX, StepsPerUnit: 80, Microsteps: 256, TMC: NewQuickTMC(&fakeSPIBus{})}
	if err := a.Enable(driver); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if !a.Active {
		t.Fatal("expected axis active after Enable")
	}
	if a.ZeroRotorPhase != 512 {
		t.Fatalf("expected zero-rotor phase 512, got %d", a.ZeroRotorPhase)
	}
	if !driver.directMode {
		t.Fatal("expected driver switched to direct-current mode")
	}
}

func TestPhaseAxisDisableRestoresIndexerMode(t *testing.T) {
	driver := &fakeMSCNT{value: 10}
	resync := &fakeResyncer{}
	a := &PhaseAxis{Axis: AxisX, Active: true, StepsPerUnit: 80, Microsteps: 256, TMC: NewQuickTMC(&fakeSPIBus{})}
	if err := a.Disable(driver, resync); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if a.Active {
		t.Fatal("expected axis inactive after Disable")
	}
	if driver.directMode {
		t.Fatal("expected driver restored to indexer mode")
	}
	if resync.calls != 1 {
		t.Fatalf("expected exactly one resync call, got %d", resync.calls)
	}
}

type fakeMSCNT struct {
	value      uint16
	directMode bool
}

func (d *fakeMSCNT) ReadMSCNT() (uint16, error) { return d.value, nil }
func (d *fakeMSCNT) SetDirectMode(enabled bool) error {
	d.directMode = enabled
	return nil
}

type fakeResyncer struct{ calls int }

func (r *fakeResyncer) StepToward(axis Axis, current, target uint16) error {
	r.calls++
	return nil
}

var errFakeWriteFailed = fakeErr("write failed")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }
