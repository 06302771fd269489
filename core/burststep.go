package core

import "errors"

// GPIOBufferSize bounds the burst stepper's replay buffer (spec.md §4.8.2
// "up to GPIO_BUFFER_SIZE half-periods").
const GPIOBufferSize = 256

// errUnknownBurstAxis is returned when SetPhaseDiff names an axis the
// stepper was not configured with.
var errUnknownBurstAxis = errors.New("burststep: axis not configured")

// GPIOBurstBus abstracts a DMA-driven GPIO burst-replay peripheral: a
// prebuilt buffer of port-wide pin snapshots replayed at a fixed update
// rate (spec.md §4.8.2). A single shared port backs every axis the burst
// stepper drives, so one replay buffer carries all of their toggles
// together; a build-tagged implementation wires this onto a real DMA/GPIO
// port, tests supply a fake.
type GPIOBurstBus interface {
	// Arm loads buf and starts (or re-arms) DMA replay at the burst rate.
	Arm(buf []uint32) error
	// SetDirPins writes the direction GPIOs covered by mask to value,
	// ahead of the replay starting.
	SetDirPins(mask, value uint32) error
}

// BurstAxis names one axis's bit positions within the shared GPIO port the
// burst stepper drives.
type BurstAxis struct {
	StepBit   uint32
	DirBit    uint32
	InvertDir bool
}

// BurstStepper implements spec.md §4.8.2: replays a prebuilt GPIO toggle
// sequence via DMA for the handful of discrete steps phase-stepping
// enable/disable and homing need, without contending with the step ISR for
// the same GPIO port.
//
// Two buffers are kept: setup (being populated by SetPhaseDiff) and fire
// (currently armed/replaying). Fire() atomically swaps them.
type BurstStepper struct {
	Bus  GPIOBurstBus
	Axes map[Axis]BurstAxis

	setup [GPIOBufferSize]uint32
	fire  [GPIOBufferSize]uint32

	pendingDir map[Axis]bool
}

// NewBurstStepper creates a stepper driving bus, with axes' bit positions
// in the shared port given by axes.
func NewBurstStepper(bus GPIOBurstBus, axes map[Axis]BurstAxis) *BurstStepper {
	return &BurstStepper{Bus: bus, Axes: axes, pendingDir: make(map[Axis]bool)}
}

// SetPhaseDiff populates the setup buffer with |delta| toggles for axis,
// spaced by BUFFER_SIZE/|delta| fixed-point positions, and records the
// pending direction bit for Fire to apply (spec.md §4.8.2).
func (b *BurstStepper) SetPhaseDiff(axis Axis, delta int) error {
	ax, ok := b.Axes[axis]
	if !ok {
		return errUnknownBurstAxis
	}
	b.pendingDir[axis] = delta >= 0
	if delta == 0 {
		return nil
	}

	n := delta
	if n < 0 {
		n = -n
	}
	if n > GPIOBufferSize {
		n = GPIOBufferSize
	}

	const fixedPointShift = 16
	spacing := (GPIOBufferSize << fixedPointShift) / n
	pos := 0
	for i := 0; i < n; i++ {
		slot := (pos >> fixedPointShift) % GPIOBufferSize
		b.setup[slot] |= ax.StepBit
		pos += spacing
	}
	return nil
}

// Fire atomically swaps the setup/fire buffers, writes direction pins, and
// re-arms DMA replay (spec.md §4.8.2).
func (b *BurstStepper) Fire() error {
	var dirMask, dirValue uint32
	for axis, dir := range b.pendingDir {
		ax := b.Axes[axis]
		dirMask |= ax.DirBit
		if dir != ax.InvertDir {
			dirValue |= ax.DirBit
		}
	}
	if dirMask != 0 {
		if err := b.Bus.SetDirPins(dirMask, dirValue); err != nil {
			return err
		}
	}

	b.fire, b.setup = b.setup, b.fire
	for i := range b.setup {
		b.setup[i] = 0
	}
	b.pendingDir = make(map[Axis]bool)

	return b.Bus.Arm(b.fire[:])
}

// StepToward implements StepResyncer (core/phasestep.go): walks axis's
// driver MSCNT from currentMSCNT to targetMSCNT via the shortest direction
// around the MotorPeriod wheel, used when disabling phase stepping
// (spec.md §4.9).
func (b *BurstStepper) StepToward(axis Axis, currentMSCNT, targetMSCNT uint16) error {
	delta := int(int32(targetMSCNT)) - int(int32(currentMSCNT))
	if delta > MotorPeriod/2 {
		delta -= MotorPeriod
	} else if delta < -MotorPeriod/2 {
		delta += MotorPeriod
	}
	if delta == 0 {
		return nil
	}
	if err := b.SetPhaseDiff(axis, delta); err != nil {
		return err
	}
	return b.Fire()
}
