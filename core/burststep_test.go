package core

import "testing"

type fakeBurstBus struct {
	armed    []uint32
	armCount int
	dirMask  uint32
	dirValue uint32
}

func (b *fakeBurstBus) Arm(buf []uint32) error {
	b.armed = append([]uint32(nil), buf...)
	b.armCount++
	return nil
}

func (b *fakeBurstBus) SetDirPins(mask, value uint32) error {
	b.dirMask = mask
	b.dirValue = value
	return nil
}

func testBurstAxes() map[Axis]BurstAxis {
	return map[Axis]BurstAxis{
		AxisX: {StepBit: 1 << 0, DirBit: 1 << 1},
		AxisY: {StepBit: 1 << 2, DirBit: 1 << 3, InvertDir: true},
	}
}

func TestBurstStepperSetPhaseDiffPopulatesToggleCount(t *testing.T) {
	bus := &fakeBurstBus{}
	b := NewBurstStepper(bus, testBurstAxes())

	if err := b.SetPhaseDiff(AxisX, 4); err != nil {
		t.Fatalf("SetPhaseDiff failed: %v", err)
	}
	if err := b.Fire(); err != nil {
		t.Fatalf("Fire failed: %v", err)
	}

	var toggles int
	for _, slot := range bus.armed {
		if slot&(1<<0) != 0 {
			toggles++
		}
	}
	if toggles != 4 {
		t.Fatalf("expected 4 toggles armed, got %d", toggles)
	}
	if bus.armCount != 1 {
		t.Fatalf("expected exactly one Arm call, got %d", bus.armCount)
	}
}

func TestBurstStepperFireAppliesDirectionWithInversion(t *testing.T) {
	bus := &fakeBurstBus{}
	b := NewBurstStepper(bus, testBurstAxes())

	if err := b.SetPhaseDiff(AxisY, -3); err != nil {
		t.Fatalf("SetPhaseDiff failed: %v", err)
	}
	if err := b.Fire(); err != nil {
		t.Fatalf("Fire failed: %v", err)
	}

	if bus.dirMask&(1<<3) == 0 {
		t.Fatal("expected axis Y's dir bit included in the mask")
	}
	// delta < 0 means reverse; InvertDir flips it, so the dir pin should be set high.
	if bus.dirValue&(1<<3) == 0 {
		t.Fatal("expected inverted reverse direction to drive the dir pin high")
	}
}

func TestBurstStepperSetPhaseDiffUnknownAxis(t *testing.T) {
	b := NewBurstStepper(&fakeBurstBus{}, testBurstAxes())
	if err := b.SetPhaseDiff(AxisZ, 1); err == nil {
		t.Fatal("expected an error for an axis with no configured bit positions")
	}
}

func TestBurstStepperStepTowardShortestDirection(t *testing.T) {
	bus := &fakeBurstBus{}
	b := NewBurstStepper(bus, testBurstAxes())

	// 1000 -> 10 wrapping forward through 0 is shorter (34 ticks) than
	// going backward (990 ticks), out of MotorPeriod=1024.
	if err := b.StepToward(AxisX, 1000, 10); err != nil {
		t.Fatalf("StepToward failed: %v", err)
	}
	if bus.armCount != 1 {
		t.Fatalf("expected a single burst fired, got %d", bus.armCount)
	}

	var toggles int
	for _, slot := range bus.armed {
		if slot&(1<<0) != 0 {
			toggles++
		}
	}
	if toggles == 0 || toggles > 34 {
		t.Fatalf("expected a small number of toggles for the short path, got %d", toggles)
	}
}

func TestBurstStepperStepTowardNoOpWhenAligned(t *testing.T) {
	bus := &fakeBurstBus{}
	b := NewBurstStepper(bus, testBurstAxes())
	if err := b.StepToward(AxisX, 42, 42); err != nil {
		t.Fatalf("StepToward failed: %v", err)
	}
	if bus.armCount != 0 {
		t.Fatalf("expected no burst fired when already aligned, got %d", bus.armCount)
	}
}
